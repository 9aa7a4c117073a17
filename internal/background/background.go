// Package background implements the process that owns all shared state.
// Tabs never touch the ledger, the alarm, or the remote API directly;
// they send requests here and this package serializes the writes. That
// single-writer rule is what keeps concurrent grant/redeem traffic from
// racing across tabs.
package background

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/blobsey/flashtoll/internal/api"
	"github.com/blobsey/flashtoll/internal/bus"
	"github.com/blobsey/flashtoll/internal/flashcards"
	"github.com/blobsey/flashtoll/internal/ledger"
	"github.com/blobsey/flashtoll/internal/message"
	"github.com/blobsey/flashtoll/internal/session"
	"github.com/blobsey/flashtoll/internal/store"
)

// ErrNotCurrentTab rejects a screenshot request from a tab that is not
// the focused one.
var ErrNotCurrentTab = errors.New("sender tab is not the current tab")

// Alarms is the slice of the alarm scheduler the background needs.
type Alarms interface {
	Arm(at time.Time) error
	Rearm(ctx context.Context) error
}

// Remote is the slice of the API client the background needs.
type Remote interface {
	ReviewFlashcard(ctx context.Context, cardID string, grade int) (*api.Flashcard, error)
	EditFlashcard(ctx context.Context, card *api.Flashcard) (*api.Flashcard, error)
	DeleteFlashcard(ctx context.Context, cardID string) error
	ListFlashcards(ctx context.Context, deck string) ([]api.Flashcard, error)
	UserData(ctx context.Context) (*api.UserData, error)
	UpdateUserData(ctx context.Context, data *api.UserData) (*api.UserData, error)
	ValidateAuthentication(ctx context.Context) error
	Logout(ctx context.Context) error
}

// Tabs is the slice of the hub the background needs to reach tabs.
type Tabs interface {
	Broadcast(ctx context.Context, event message.TabEvent) error
	SendToActiveTab(ctx context.Context, event message.TabEvent) error
	ActiveTab() bus.TabID
}

// CaptureFunc captures the focused tab's contents as an image.
type CaptureFunc func(ctx context.Context) ([]byte, error)

// Config wires a Background's collaborators.
type Config struct {
	Log     *slog.Logger
	KV      store.KV
	Ledger  *ledger.Ledger
	Alarm   Alarms
	Remote  Remote
	Cache   *flashcards.Cache
	Tabs    Tabs
	Events  store.ReviewEventRepo // optional, reviews go unlogged when nil
	Capture CaptureFunc           // optional
}

// Background handles every request tabs send through the hub.
type Background struct {
	log       *slog.Logger
	kv        store.KV
	ledger    *ledger.Ledger
	alarm     Alarms
	remote    Remote
	cache     *flashcards.Cache
	tabs      Tabs
	events    store.ReviewEventRepo
	capture   CaptureFunc
	sessionID string
}

// New creates a Background. One sessionID spans the process lifetime
// and stamps every review event it records.
func New(cfg Config) *Background {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	return &Background{
		log:       log,
		kv:        cfg.KV,
		ledger:    cfg.Ledger,
		alarm:     cfg.Alarm,
		remote:    cfg.Remote,
		cache:     cfg.Cache,
		tabs:      cfg.Tabs,
		events:    cfg.Events,
		capture:   cfg.Capture,
		sessionID: uuid.NewString(),
	}
}

// Handle dispatches one request. It always returns a response; failures
// are reported in-band, never as panics.
func (b *Background) Handle(ctx context.Context, from bus.TabID, req message.Request) message.Response {
	switch req.Type {
	case message.TypeRedeemExistingTimeGrant:
		return b.handleRedeem(ctx)
	case message.TypeGrantTime:
		return b.handleGrantTime(ctx, req.Grant)
	case message.TypeUnredeemIfNeeded:
		return b.handleUnredeem(ctx)
	case message.TypeBroadcast:
		return b.handleBroadcast(ctx, req.Event)
	case message.TypeNextFlashcard:
		return b.handleNextFlashcard(ctx, req.Deck)
	case message.TypeReviewFlashcard:
		return b.handleReview(ctx, req.CardID, req.Grade)
	case message.TypeEditFlashcard:
		return b.handleEdit(ctx, req.Card)
	case message.TypeDeleteFlashcard:
		return b.handleDelete(ctx, req.CardID)
	case message.TypeListFlashcards:
		return b.handleList(ctx, req.Deck)
	case message.TypeGetUserData:
		return b.handleGetUserData(ctx)
	case message.TypeSetUserData:
		return b.handleSetUserData(ctx, req.UserData)
	case message.TypeLogin:
		return b.handleLogin(ctx)
	case message.TypeLogout:
		return b.handleLogout(ctx)
	case message.TypeScreenshotCurrentTab:
		return b.handleScreenshot(ctx, from)
	case message.TypeCreateOverlayInCurrentTab:
		return b.handleCreateOverlay(ctx, req.Screen)
	default:
		return message.Error(fmt.Errorf("unknown request type %q", req.Type))
	}
}

// handleRedeem folds the accrued grant into the next review time and
// arms the alarm for it. Closing overlays stays with the caller: a
// confirm broadcasts the close, a tab-navigation redeem does not.
func (b *Background) handleRedeem(ctx context.Context) message.Response {
	next, granted, err := b.ledger.Redeem(ctx)
	if err != nil {
		return message.Error(err)
	}
	if err := b.alarm.Arm(next); err != nil {
		return message.Error(err)
	}
	b.log.Info("time grant redeemed", "granted", granted, "next", next)
	return message.Success(message.RedeemResult{NextFlashcardTime: next, Granted: granted})
}

func (b *Background) handleGrantTime(ctx context.Context, grant time.Duration) message.Response {
	if err := b.ledger.GrantTime(ctx, grant); err != nil {
		return message.Error(err)
	}
	return message.Success(nil)
}

func (b *Background) handleUnredeem(ctx context.Context) message.Response {
	if err := b.ledger.UnredeemIfNeeded(ctx); err != nil {
		return message.Error(err)
	}
	return message.Success(nil)
}

func (b *Background) handleBroadcast(ctx context.Context, event *message.TabEvent) message.Response {
	if event == nil {
		return message.Error(errors.New("broadcast request carries no event"))
	}
	if err := b.tabs.Broadcast(ctx, *event); err != nil {
		return message.Error(err)
	}
	return message.Success(nil)
}

func (b *Background) handleNextFlashcard(ctx context.Context, deck string) message.Response {
	card, err := b.cache.CacheNext(ctx, deck)
	if err != nil {
		return message.Error(err)
	}
	return message.Success(card)
}

// handleReview submits the grade, logs it, grants the reward time, and
// prefetches the next card. The grade submission and the grant are the
// load-bearing steps; logging and prefetch failures only degrade later
// convenience, so they are logged and swallowed.
func (b *Background) handleReview(ctx context.Context, cardID string, grade int) message.Response {
	card, err := b.remote.ReviewFlashcard(ctx, cardID, grade)
	if err != nil {
		return message.Error(err)
	}

	if b.events != nil {
		err := b.events.Append(ctx, store.ReviewEventData{
			CardID:    cardID,
			Grade:     grade,
			GrantedMs: ledger.DefaultGrant.Milliseconds(),
			SessionID: b.sessionID,
		})
		if err != nil {
			b.log.Warn("review event not recorded", "card", cardID, "error", err)
		}
	}

	if err := b.ledger.GrantTime(ctx, ledger.DefaultGrant); err != nil {
		return message.Error(err)
	}

	if _, err := b.cache.CacheNext(ctx, ""); err != nil {
		b.log.Warn("prefetch after review failed", "error", err)
	}
	return message.Success(card)
}

func (b *Background) handleEdit(ctx context.Context, card *api.Flashcard) message.Response {
	if card == nil || card.CardID == "" {
		return message.Error(errors.New("edit request carries no card"))
	}
	updated, err := b.remote.EditFlashcard(ctx, card)
	if err != nil {
		return message.Error(err)
	}
	if err := b.cache.ReconcileEdit(ctx, updated); err != nil {
		return message.Error(err)
	}
	return message.Success(updated)
}

func (b *Background) handleDelete(ctx context.Context, cardID string) message.Response {
	if cardID == "" {
		return message.Error(errors.New("delete request carries no card id"))
	}
	if err := b.remote.DeleteFlashcard(ctx, cardID); err != nil {
		return message.Error(err)
	}
	if err := b.cache.ReconcileDelete(ctx, cardID); err != nil {
		return message.Error(err)
	}
	return message.Success(nil)
}

func (b *Background) handleList(ctx context.Context, deck string) message.Response {
	cards, err := b.remote.ListFlashcards(ctx, deck)
	if err != nil {
		return message.Error(err)
	}
	return message.Success(cards)
}

func (b *Background) handleGetUserData(ctx context.Context) message.Response {
	data, err := b.remote.UserData(ctx)
	if err != nil {
		return message.Error(err)
	}
	return message.Success(data)
}

func (b *Background) handleSetUserData(ctx context.Context, data *api.UserData) message.Response {
	if data == nil {
		return message.Error(errors.New("user data request carries no data"))
	}
	stored, err := b.remote.UpdateUserData(ctx, data)
	if err != nil {
		return message.Error(err)
	}
	return message.Success(stored)
}

// handleLogin confirms the session with the remote, marks the user
// logged in, and warms up the card cache and the alarm.
func (b *Background) handleLogin(ctx context.Context) message.Response {
	if err := b.remote.ValidateAuthentication(ctx); err != nil {
		return message.Error(err)
	}
	if err := b.setLoggedIn(ctx, true); err != nil {
		return message.Error(err)
	}
	if _, err := b.cache.CacheNext(ctx, ""); err != nil {
		b.log.Warn("prefetch after login failed", "error", err)
	}
	if err := b.alarm.Rearm(ctx); err != nil {
		b.log.Warn("alarm not rearmed after login", "error", err)
	}
	return message.Success(nil)
}

// handleLogout ends the remote session, wipes local state except the
// API base URL, and closes every open overlay. The remote call is best
// effort: logging out locally must work even when the server is down.
func (b *Background) handleLogout(ctx context.Context) message.Response {
	if err := b.remote.Logout(ctx); err != nil {
		b.log.Warn("remote logout failed", "error", err)
	}
	if err := b.kv.Clear(ctx, store.KeyAPIBaseURL); err != nil {
		return message.Error(err)
	}
	if err := b.tabs.Broadcast(ctx, message.TabEvent{Type: message.EventCloseOverlayAllTabs}); err != nil {
		return message.Error(err)
	}
	return message.Success(nil)
}

// handleScreenshot captures the focused tab, but only for the focused
// tab itself. Any other sender would be capturing content it cannot see.
func (b *Background) handleScreenshot(ctx context.Context, from bus.TabID) message.Response {
	if from == "" || from != b.tabs.ActiveTab() {
		return message.Error(ErrNotCurrentTab)
	}
	if b.capture == nil {
		return message.Error(errors.New("screenshot capture is not available"))
	}
	img, err := b.capture(ctx)
	if err != nil {
		return message.Error(err)
	}
	return message.Success(img)
}

func (b *Background) handleCreateOverlay(ctx context.Context, screen session.Screen) message.Response {
	if err := b.tabs.SendToActiveTab(ctx, message.TabEvent{Type: message.EventCreateOverlay, Screen: screen}); err != nil {
		return message.Error(err)
	}
	return message.Success(nil)
}

func (b *Background) setLoggedIn(ctx context.Context, v bool) error {
	return b.kv.Set(ctx, store.KeyIsLoggedIn, v)
}
