package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/blobsey/flashtoll/internal/alarm"
	"github.com/blobsey/flashtoll/internal/api"
	"github.com/blobsey/flashtoll/internal/app"
	"github.com/blobsey/flashtoll/internal/background"
	"github.com/blobsey/flashtoll/internal/bus"
	"github.com/blobsey/flashtoll/internal/flashcards"
	"github.com/blobsey/flashtoll/internal/ledger"
	"github.com/blobsey/flashtoll/internal/message"
	"github.com/blobsey/flashtoll/internal/store"
	"github.com/blobsey/flashtoll/internal/tab"
)

// defaultShortcuts seed the browse screen with destinations to visit.
var defaultShortcuts = []string{
	"https://news.ycombinator.com",
	"https://www.reddit.com",
	"https://www.youtube.com",
	"https://en.wikipedia.org",
}

// runApp opens the store, wires the background process, a tab, and the
// alarm, then launches the TUI.
func runApp(cmd *cobra.Command) error {
	ctx := cmd.Context()
	dbPath, err := resolveDBPath(cmd)
	if err != nil {
		return fmt.Errorf("resolve DB path: %w", err)
	}
	st, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	kv := st.KV()
	if base, _ := cmd.Flags().GetString("url"); base != "" {
		if err := kv.Set(ctx, store.KeyAPIBaseURL, base); err != nil {
			return fmt.Errorf("store base URL: %w", err)
		}
	}

	log, closeLog := openLogger(dbPath)
	defer closeLog()

	led := ledger.New(kv)
	client, err := api.New(kv)
	if err != nil {
		return fmt.Errorf("build API client: %w", err)
	}
	cache := flashcards.New(kv, client)

	hub := bus.New(log)
	sched := alarm.New(led, func(ctx context.Context) {
		if err := hub.Broadcast(ctx, message.TabEvent{Type: message.EventShowFlashcardAlarm}); err != nil {
			log.Warn("alarm broadcast failed", "error", err)
		}
	}, log)
	sched.Start()
	defer sched.Stop()

	bg := background.New(background.Config{
		Log:    log,
		KV:     kv,
		Ledger: led,
		Alarm:  sched,
		Remote: client,
		Cache:  cache,
		Tabs:   hub,
		Events: st.ReviewEvents(),
	})
	hub.SetHandler(bg.Handle)

	if err := sched.Rearm(ctx); err != nil {
		log.Warn("alarm not rearmed at startup", "error", err)
	}

	observer := app.NewObserver()
	id := bus.NewTabID()
	tb := tab.New(id, hub, cache, led, observer, log)
	hub.RegisterTab(id, tb)
	defer hub.UnregisterTab(id)

	// The TUI runs exactly one tab, so "open a new tab" degrades to
	// re-focusing this one and retrying the delivery.
	hub.SetFallbackOpener(func(ctx context.Context, event message.TabEvent) error {
		hub.SetActiveTab(id)
		return tb.Deliver(ctx, event)
	})

	// Best effort: a missing base URL or a dead server just means the
	// reviews cannot load yet, not that the app cannot start.
	loginCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	if resp := hub.Send(loginCtx, id, message.NewLoginRequest()); !resp.OK() {
		log.Warn("login failed at startup", "detail", resp.Message)
	}
	cancel()

	return app.Run(tb, led, kv, observer, defaultShortcuts[0], defaultShortcuts)
}

// openLogger writes structured logs next to the database; the terminal
// belongs to the TUI. Logging is best effort, falling back to discard.
func openLogger(dbPath string) (*slog.Logger, func()) {
	logPath := filepath.Join(filepath.Dir(dbPath), "flashtoll.log")
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil)), func() {}
	}
	return slog.New(slog.NewTextHandler(f, nil)), func() { _ = f.Close() }
}
