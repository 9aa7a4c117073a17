package tab

import (
	"context"
	"testing"
	"time"

	"github.com/blobsey/flashtoll/internal/api"
	"github.com/blobsey/flashtoll/internal/background"
	"github.com/blobsey/flashtoll/internal/bus"
	"github.com/blobsey/flashtoll/internal/flashcards"
	"github.com/blobsey/flashtoll/internal/ledger"
	"github.com/blobsey/flashtoll/internal/message"
	"github.com/blobsey/flashtoll/internal/session"
	"github.com/blobsey/flashtoll/internal/store"
)

// systemRemote is a scripted remote serving both the background handler
// and the prefetch cache.
type systemRemote struct {
	userData  *api.UserData
	nextCards []*api.Flashcard
}

func (r *systemRemote) NextFlashcard(ctx context.Context, deck string) (*api.Flashcard, error) {
	if len(r.nextCards) == 0 {
		return nil, nil
	}
	card := r.nextCards[0]
	r.nextCards = r.nextCards[1:]
	return card, nil
}

func (r *systemRemote) ReviewFlashcard(ctx context.Context, cardID string, grade int) (*api.Flashcard, error) {
	return &api.Flashcard{CardID: cardID}, nil
}

func (r *systemRemote) EditFlashcard(ctx context.Context, card *api.Flashcard) (*api.Flashcard, error) {
	return card, nil
}

func (r *systemRemote) DeleteFlashcard(ctx context.Context, cardID string) error { return nil }

func (r *systemRemote) ListFlashcards(ctx context.Context, deck string) ([]api.Flashcard, error) {
	return nil, nil
}

func (r *systemRemote) UserData(ctx context.Context) (*api.UserData, error) {
	return r.userData, nil
}

func (r *systemRemote) UpdateUserData(ctx context.Context, data *api.UserData) (*api.UserData, error) {
	return data, nil
}

func (r *systemRemote) ValidateAuthentication(ctx context.Context) error { return nil }

func (r *systemRemote) Logout(ctx context.Context) error { return nil }

type stubAlarm struct{}

func (stubAlarm) Arm(at time.Time) error { return nil }

func (stubAlarm) Rearm(ctx context.Context) error { return nil }

// system wires a real hub, background, ledger, and cache around a
// scripted remote.
type system struct {
	hub    *bus.Hub
	kv     store.KV
	ledger *ledger.Ledger
	cache  *flashcards.Cache
	remote *systemRemote
}

func newSystem(t *testing.T) *system {
	t.Helper()
	kv := store.NewMemory()
	led := ledger.New(kv)
	remote := &systemRemote{
		userData: &api.UserData{
			BlockedSites: []api.BlockedSite{{URL: "https://reddit.com", Active: true}},
		},
	}
	cache := flashcards.New(kv, remote)
	hub := bus.New(nil)
	bg := background.New(background.Config{
		KV:     kv,
		Ledger: led,
		Alarm:  stubAlarm{},
		Remote: remote,
		Cache:  cache,
		Tabs:   hub,
	})
	hub.SetHandler(bg.Handle)
	return &system{hub: hub, kv: kv, ledger: led, cache: cache, remote: remote}
}

func (s *system) newTab(t *testing.T) *Tab {
	t.Helper()
	id := bus.NewTabID()
	tb := New(id, s.hub, s.cache, s.ledger, nil, nil)
	s.hub.RegisterTab(id, tb)
	return tb
}

func (s *system) seedCard(t *testing.T, id string) {
	t.Helper()
	s.remote.nextCards = append(s.remote.nextCards, &api.Flashcard{CardID: id, CardFront: "q", CardBack: "a"})
	if _, err := s.cache.CacheNext(context.Background(), ""); err != nil {
		t.Fatalf("seed card: %v", err)
	}
}

func TestNavigateToBlockedSiteMountsOverlay(t *testing.T) {
	sys := newSystem(t)
	sys.seedCard(t, "c1")
	tb := sys.newTab(t)
	ctx := context.Background()

	if err := tb.Navigate(ctx, "https://reddit.com/r/all"); err != nil {
		t.Fatalf("navigate: %v", err)
	}
	s := tb.Session()
	if s == nil {
		t.Fatal("expected an overlay")
	}
	if s.Active() != session.ScreenFlashcard {
		t.Fatalf("overlay on %q, want flashcard", s.Active())
	}
	if s.Card() == nil || s.Card().CardID != "c1" {
		t.Fatalf("overlay card %+v", s.Card())
	}
}

func TestNavigateToUnblockedSite(t *testing.T) {
	sys := newSystem(t)
	sys.seedCard(t, "c1")
	tb := sys.newTab(t)

	if err := tb.Navigate(context.Background(), "https://docs.example.org"); err != nil {
		t.Fatalf("navigate: %v", err)
	}
	if tb.Session() != nil {
		t.Fatal("unblocked page must not be interrupted")
	}
}

func TestNoInterruptionBeforeTimeIsUp(t *testing.T) {
	sys := newSystem(t)
	sys.seedCard(t, "c1")
	ctx := context.Background()

	// Buy a minute of browsing.
	if err := sys.ledger.GrantTime(ctx, time.Minute); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if _, _, err := sys.ledger.Redeem(ctx); err != nil {
		t.Fatalf("redeem: %v", err)
	}

	tb := sys.newTab(t)
	if err := tb.Navigate(ctx, "https://reddit.com"); err != nil {
		t.Fatalf("navigate: %v", err)
	}
	if tb.Session() != nil {
		t.Fatal("paid-for time must not be interrupted")
	}
}

func TestEmptySlotFetchesOnceWhenDue(t *testing.T) {
	sys := newSystem(t)
	// Nothing cached, but the remote has a card to hand out.
	sys.remote.nextCards = []*api.Flashcard{{CardID: "fetched", CardFront: "q", CardBack: "a"}}
	tb := sys.newTab(t)

	if err := tb.Navigate(context.Background(), "https://reddit.com"); err != nil {
		t.Fatalf("navigate: %v", err)
	}
	s := tb.Session()
	if s == nil || s.Card() == nil || s.Card().CardID != "fetched" {
		t.Fatal("due page with an empty slot should fetch once and interrupt")
	}
}

func TestEmptySlotAndEmptyDeck(t *testing.T) {
	sys := newSystem(t)
	tb := sys.newTab(t)

	if err := tb.Navigate(context.Background(), "https://reddit.com"); err != nil {
		t.Fatalf("navigate: %v", err)
	}
	if tb.Session() != nil {
		t.Fatal("no card anywhere means no interruption")
	}
}

func TestMountIsIdempotent(t *testing.T) {
	sys := newSystem(t)
	sys.seedCard(t, "c1")
	tb := sys.newTab(t)
	ctx := context.Background()

	if err := tb.Navigate(ctx, "https://reddit.com"); err != nil {
		t.Fatalf("navigate: %v", err)
	}
	first := tb.Session()
	if first == nil {
		t.Fatal("expected an overlay")
	}

	// The alarm fires again while the overlay is already up.
	if err := tb.Deliver(ctx, message.TabEvent{Type: message.EventShowFlashcardAlarm}); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if tb.Session() != first {
		t.Fatal("a second mount replaced the live session")
	}
}

func TestOverlayPausesCountdown(t *testing.T) {
	sys := newSystem(t)
	sys.seedCard(t, "c1")
	ctx := context.Background()

	// Some time was redeemed earlier but has run out plus a bit of
	// grant sits unredeemed; mounting must not destroy either.
	tb := sys.newTab(t)
	if err := tb.Navigate(ctx, "https://reddit.com"); err != nil {
		t.Fatalf("navigate: %v", err)
	}
	if tb.Session() == nil {
		t.Fatal("expected an overlay")
	}

	// With the countdown paused, next stays at roughly now.
	next, err := sys.ledger.NextFlashcardTime(ctx)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if next.After(time.Now().Add(time.Second)) {
		t.Fatalf("next review drifted into the future: %v", next)
	}
}

func TestCloseIfFlashcardScreenSparesEditOverlay(t *testing.T) {
	sys := newSystem(t)
	sys.seedCard(t, "c1")
	ctx := context.Background()

	reviewing := sys.newTab(t)
	if err := reviewing.Navigate(ctx, "https://reddit.com"); err != nil {
		t.Fatalf("navigate: %v", err)
	}

	editing := sys.newTab(t)
	if err := editing.Navigate(ctx, "https://reddit.com/r/golang"); err != nil {
		t.Fatalf("navigate: %v", err)
	}
	es := editing.Session()
	if es == nil {
		t.Fatal("expected an overlay on the second tab")
	}
	if err := es.Flip(); err != nil {
		t.Fatalf("flip: %v", err)
	}
	if err := es.Edit(); err != nil {
		t.Fatalf("edit: %v", err)
	}

	if err := sys.hub.Broadcast(ctx, message.TabEvent{Type: message.EventCloseOverlayIfFlashcardScreen}); err != nil {
		t.Fatalf("broadcast: %v", err)
	}

	if reviewing.Session() != nil {
		t.Error("review-flow overlay should have closed")
	}
	if editing.Session() == nil {
		t.Error("edit overlay should have survived")
	}
}

func TestConfirmClosesOverlaysEverywhere(t *testing.T) {
	sys := newSystem(t)
	sys.seedCard(t, "c1")
	ctx := context.Background()

	first := sys.newTab(t)
	second := sys.newTab(t)
	if err := first.Navigate(ctx, "https://reddit.com"); err != nil {
		t.Fatalf("navigate first: %v", err)
	}
	if err := second.Navigate(ctx, "https://reddit.com/r/all"); err != nil {
		t.Fatalf("navigate second: %v", err)
	}
	s := first.Session()
	if s == nil || second.Session() == nil {
		t.Fatal("both tabs should show overlays")
	}

	// Review a card to earn time, then confirm.
	if err := s.Flip(); err != nil {
		t.Fatalf("flip: %v", err)
	}
	if err := s.SelectGrade(ctx, "Good"); err != nil {
		t.Fatalf("grade: %v", err)
	}
	if err := s.Confirm(ctx); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if err := first.AfterOperation(ctx); err != nil {
		t.Fatalf("after operation: %v", err)
	}

	if first.Session() != nil {
		t.Error("confirming tab's overlay should be gone")
	}
	if second.Session() != nil {
		t.Error("other tab's review overlay should be gone")
	}

	// The countdown restarted with the earned minute.
	next, err := sys.ledger.NextFlashcardTime(ctx)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if !next.After(time.Now().Add(30 * time.Second)) {
		t.Errorf("next review %v, want about a minute out", next)
	}
	grant, err := sys.ledger.ExistingTimeGrant(ctx)
	if err != nil {
		t.Fatalf("grant: %v", err)
	}
	if grant != 0 {
		t.Errorf("grant %v after confirm, want 0", grant)
	}
}

func TestForcedGradeOverlayWithEmptySlot(t *testing.T) {
	sys := newSystem(t)
	tb := sys.newTab(t)
	ctx := context.Background()

	// Nothing is cached and the deck is empty; forcing the grade screen
	// has no card to grade, so the tab re-checks the page instead.
	if err := tb.Navigate(ctx, "https://docs.example.org"); err != nil {
		t.Fatalf("navigate: %v", err)
	}
	if err := tb.Deliver(ctx, message.TabEvent{Type: message.EventCreateOverlay, Screen: session.ScreenGrade}); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if tb.Session() != nil {
		t.Fatal("no overlay should open without a card to review")
	}

	// On a blocked page with a card available, the same event lands on
	// a live review instead of an empty grade screen.
	sys.seedCard(t, "c1")
	if err := tb.Navigate(ctx, "https://reddit.com"); err != nil {
		t.Fatalf("navigate blocked: %v", err)
	}
	tb.teardown()
	if err := tb.Deliver(ctx, message.TabEvent{Type: message.EventCreateOverlay, Screen: session.ScreenGrade}); err != nil {
		t.Fatalf("deliver with card: %v", err)
	}
	s := tb.Session()
	if s == nil || s.Card() == nil {
		t.Fatal("expected an overlay with a card")
	}
}

func TestDeliberateOverlayBypassesPredicate(t *testing.T) {
	sys := newSystem(t)
	sys.seedCard(t, "c1")
	tb := sys.newTab(t)
	ctx := context.Background()

	// The user opens the deck list from the popup on an unblocked page.
	if err := tb.Navigate(ctx, "https://docs.example.org"); err != nil {
		t.Fatalf("navigate: %v", err)
	}
	if err := tb.Deliver(ctx, message.TabEvent{Type: message.EventCreateOverlay, Screen: session.ScreenList}); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	s := tb.Session()
	if s == nil || s.Active() != session.ScreenList {
		t.Fatal("deliberate overlay should open regardless of the predicate")
	}
}
