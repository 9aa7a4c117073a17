// Package tab models one browsing surface: the page it is on, the
// overlay it may be showing, and its reactions to background events.
package tab

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/blobsey/flashtoll/internal/api"
	"github.com/blobsey/flashtoll/internal/bus"
	"github.com/blobsey/flashtoll/internal/message"
	"github.com/blobsey/flashtoll/internal/session"
)

// ledgerReader is the read-only slice of the ledger a tab uses.
type ledgerReader interface {
	NextFlashcardTime(ctx context.Context) (time.Time, error)
}

// Observer is notified when a tab's overlay opens or closes, so a UI
// can follow along. Optional.
type Observer interface {
	OverlayOpened(s *session.Session)
	OverlayClosed()
}

// Tab is one registered browsing surface.
type Tab struct {
	id       bus.TabID
	hub      sender
	cache    cardCache
	ledger   ledgerReader
	observer Observer
	log      *slog.Logger
	now      func() time.Time

	mu      sync.Mutex
	url     string
	session *session.Session
}

// New creates a tab. Register it with the hub under the same id.
func New(id bus.TabID, hub sender, cache cardCache, led ledgerReader, observer Observer, log *slog.Logger) *Tab {
	if log == nil {
		log = slog.Default()
	}
	return &Tab{
		id:       id,
		hub:      hub,
		cache:    cache,
		ledger:   led,
		observer: observer,
		log:      log,
		now:      time.Now,
	}
}

// ID returns the tab's hub identifier.
func (t *Tab) ID() bus.TabID { return t.id }

// URL returns the page the tab is on.
func (t *Tab) URL() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.url
}

// Session returns the overlay's session, nil when no overlay is up.
func (t *Tab) Session() *session.Session {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.session
}

// Deliver handles one background event. Implements bus.Endpoint.
func (t *Tab) Deliver(ctx context.Context, event message.TabEvent) error {
	switch event.Type {
	case message.EventShowFlashcardAlarm:
		return t.Evaluate(ctx)
	case message.EventCloseOverlayAllTabs:
		t.teardown()
		return nil
	case message.EventCloseOverlayIfFlashcardScreen:
		t.teardownIfReviewing()
		return nil
	case message.EventCreateOverlay:
		return t.mount(ctx, event.Screen)
	default:
		return fmt.Errorf("unknown tab event %q", event.Type)
	}
}

// Navigate moves the tab to url: the old overlay comes down with the
// old page, then the new page is checked for an interruption.
func (t *Tab) Navigate(ctx context.Context, url string) error {
	t.mu.Lock()
	t.url = url
	t.mu.Unlock()
	t.teardown()
	return t.Evaluate(ctx)
}

// Evaluate re-runs the interruption check for the current page and
// mounts an overlay when a review is due. When a review is due but the
// prefetch slot is empty, one fetch is attempted before deciding.
func (t *Tab) Evaluate(ctx context.Context) error {
	t.mu.Lock()
	url := t.url
	t.mu.Unlock()

	resp := t.hub.Send(ctx, t.id, message.NewGetUserDataRequest())
	if !resp.OK() {
		// Not logged in or the API is down; browsing is never blocked
		// on that.
		t.log.Debug("interruption check skipped", "reason", resp.Message)
		return nil
	}
	data, ok := resp.Data.(*api.UserData)
	if !ok || data == nil {
		return fmt.Errorf("unexpected user data payload %T", resp.Data)
	}

	card, err := t.cache.Cached(ctx)
	if err != nil {
		return err
	}
	next, err := t.ledger.NextFlashcardTime(ctx)
	if err != nil {
		return err
	}
	now := t.now()

	if card == nil && siteBlocked(data.BlockedSites, url) && !now.Before(next) {
		// Due with an empty slot: try to fill it once, then decide.
		card, err = cardResp(t.hub.Send(ctx, t.id, message.NewNextFlashcardRequest("")))
		if err != nil {
			t.log.Debug("due-card fetch failed", "error", err)
		}
	}

	if !ShouldShowFlashcard(data.BlockedSites, url, card, now, next) {
		return nil
	}
	return t.mount(ctx, session.ScreenFlashcard)
}

// AfterOperation applies the session's status after a UI-driven
// operation: a closed session tears the overlay down, a session asking
// for re-evaluation tears down and re-checks the page.
func (t *Tab) AfterOperation(ctx context.Context) error {
	t.mu.Lock()
	s := t.session
	t.mu.Unlock()
	if s == nil {
		return nil
	}

	switch s.Status() {
	case session.StatusClosed:
		t.teardown()
		return nil
	case session.StatusReevaluate:
		t.teardown()
		return t.Evaluate(ctx)
	default:
		return nil
	}
}

// mount opens an overlay at screen. Mounting is idempotent: a tab
// already showing an overlay keeps the one it has.
func (t *Tab) mount(ctx context.Context, screen session.Screen) error {
	t.mu.Lock()
	if t.session != nil && t.session.Status() == session.StatusActive {
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()

	card, err := t.cache.Cached(ctx)
	if err != nil {
		return err
	}
	// Forced onto a grade or review screen with no card to review, the
	// tab falls back to the normal interruption check instead of
	// presenting a session it cannot drive.
	if card == nil && screen != session.ScreenFlashcard && screen.PartOfReviewFlow() {
		return t.Evaluate(ctx)
	}

	// An open overlay pauses the countdown so time does not tick away
	// while the user reviews.
	if resp := t.hub.Send(ctx, t.id, message.NewUnredeemRequest()); !resp.OK() {
		return fmt.Errorf("pause countdown: %s", resp.Message)
	}

	backend := &tabBackend{hubBackend: hubBackend{id: t.id, hub: t.hub}, cache: t.cache}
	s := session.New(backend, card, screen)

	t.mu.Lock()
	t.session = s
	t.mu.Unlock()

	t.log.Debug("overlay mounted", "tab", t.id, "screen", screen)
	if t.observer != nil {
		t.observer.OverlayOpened(s)
	}
	return nil
}

func (t *Tab) teardown() {
	t.mu.Lock()
	had := t.session != nil
	t.session = nil
	t.mu.Unlock()

	if had {
		t.log.Debug("overlay torn down", "tab", t.id)
		if t.observer != nil {
			t.observer.OverlayClosed()
		}
	}
}

// teardownIfReviewing closes the overlay only when it is still in the
// review flow. Edit and list overlays the user opened deliberately
// survive another tab's confirm.
func (t *Tab) teardownIfReviewing() {
	t.mu.Lock()
	s := t.session
	t.mu.Unlock()

	if s == nil || !s.Active().PartOfReviewFlow() {
		return
	}
	t.teardown()
}
