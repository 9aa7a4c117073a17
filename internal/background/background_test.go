package background

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/blobsey/flashtoll/internal/api"
	"github.com/blobsey/flashtoll/internal/bus"
	"github.com/blobsey/flashtoll/internal/flashcards"
	"github.com/blobsey/flashtoll/internal/ledger"
	"github.com/blobsey/flashtoll/internal/message"
	"github.com/blobsey/flashtoll/internal/session"
	"github.com/blobsey/flashtoll/internal/store"
)

type fakeAlarm struct {
	armedAt []time.Time
	rearmed int
	fail    error
}

func (f *fakeAlarm) Arm(at time.Time) error {
	if f.fail != nil {
		return f.fail
	}
	f.armedAt = append(f.armedAt, at)
	return nil
}

func (f *fakeAlarm) Rearm(ctx context.Context) error {
	f.rearmed++
	return f.fail
}

type fakeRemote struct {
	nextCards   []*api.Flashcard
	reviewed    []string
	grades      []int
	reviewErr   error
	logoutErr   error
	logoutCalls int
	deleted     []string
	userData    *api.UserData
	authErr     error
}

func (f *fakeRemote) NextFlashcard(ctx context.Context, deck string) (*api.Flashcard, error) {
	if len(f.nextCards) == 0 {
		return nil, nil
	}
	card := f.nextCards[0]
	if len(f.nextCards) > 1 {
		f.nextCards = f.nextCards[1:]
	}
	return card, nil
}

func (f *fakeRemote) ReviewFlashcard(ctx context.Context, cardID string, grade int) (*api.Flashcard, error) {
	if f.reviewErr != nil {
		return nil, f.reviewErr
	}
	f.reviewed = append(f.reviewed, cardID)
	f.grades = append(f.grades, grade)
	return &api.Flashcard{CardID: cardID}, nil
}

func (f *fakeRemote) EditFlashcard(ctx context.Context, card *api.Flashcard) (*api.Flashcard, error) {
	return card, nil
}

func (f *fakeRemote) DeleteFlashcard(ctx context.Context, cardID string) error {
	f.deleted = append(f.deleted, cardID)
	return nil
}

func (f *fakeRemote) ListFlashcards(ctx context.Context, deck string) ([]api.Flashcard, error) {
	return nil, nil
}

func (f *fakeRemote) UserData(ctx context.Context) (*api.UserData, error) {
	return f.userData, nil
}

func (f *fakeRemote) UpdateUserData(ctx context.Context, data *api.UserData) (*api.UserData, error) {
	return data, nil
}

func (f *fakeRemote) ValidateAuthentication(ctx context.Context) error { return f.authErr }

func (f *fakeRemote) Logout(ctx context.Context) error {
	f.logoutCalls++
	return f.logoutErr
}

type fakeTabs struct {
	broadcasts []message.TabEvent
	toActive   []message.TabEvent
	active     bus.TabID
}

func (f *fakeTabs) Broadcast(ctx context.Context, event message.TabEvent) error {
	f.broadcasts = append(f.broadcasts, event)
	return nil
}

func (f *fakeTabs) SendToActiveTab(ctx context.Context, event message.TabEvent) error {
	f.toActive = append(f.toActive, event)
	return nil
}

func (f *fakeTabs) ActiveTab() bus.TabID { return f.active }

type fixture struct {
	bg     *Background
	kv     store.KV
	ledger *ledger.Ledger
	alarm  *fakeAlarm
	remote *fakeRemote
	tabs   *fakeTabs
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	kv := store.NewMemory()
	led := ledger.New(kv)
	al := &fakeAlarm{}
	remote := &fakeRemote{}
	tabs := &fakeTabs{}
	bg := New(Config{
		KV:     kv,
		Ledger: led,
		Alarm:  al,
		Remote: remote,
		Cache:  flashcards.New(kv, remote),
		Tabs:   tabs,
	})
	return &fixture{bg: bg, kv: kv, ledger: led, alarm: al, remote: remote, tabs: tabs}
}

func TestRedeemArmsAlarm(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	if err := fx.ledger.GrantTime(ctx, 2*time.Minute); err != nil {
		t.Fatalf("grant: %v", err)
	}

	before := time.Now()
	resp := fx.bg.Handle(ctx, "", message.NewRedeemRequest())
	if !resp.OK() {
		t.Fatalf("redeem failed: %s", resp.Message)
	}

	result, ok := resp.Data.(message.RedeemResult)
	if !ok {
		t.Fatalf("unexpected data %T", resp.Data)
	}
	if result.Granted != 2*time.Minute {
		t.Errorf("granted %v, want 2m", result.Granted)
	}
	if result.NextFlashcardTime.Before(before.Add(2 * time.Minute).Add(-time.Second)) {
		t.Errorf("next review %v too early", result.NextFlashcardTime)
	}

	if len(fx.alarm.armedAt) != 1 {
		t.Fatalf("alarm armed %d times, want 1", len(fx.alarm.armedAt))
	}
	if !fx.alarm.armedAt[0].Equal(result.NextFlashcardTime) {
		t.Errorf("alarm at %v, want %v", fx.alarm.armedAt[0], result.NextFlashcardTime)
	}

	grant, err := fx.ledger.ExistingTimeGrant(ctx)
	if err != nil {
		t.Fatalf("read grant: %v", err)
	}
	if grant != 0 {
		t.Errorf("grant after redeem = %v, want 0", grant)
	}
}

func TestGrantTimeRejectsNegative(t *testing.T) {
	fx := newFixture(t)
	resp := fx.bg.Handle(context.Background(), "", message.NewGrantTimeRequest(-time.Minute))
	if resp.OK() {
		t.Fatal("negative grant must be rejected")
	}
}

func TestReviewGrantsAndPrefetches(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	fx.remote.nextCards = []*api.Flashcard{{CardID: "next"}}

	resp := fx.bg.Handle(ctx, "", message.NewReviewRequest("c1", 3))
	if !resp.OK() {
		t.Fatalf("review failed: %s", resp.Message)
	}
	if len(fx.remote.reviewed) != 1 || fx.remote.reviewed[0] != "c1" || fx.remote.grades[0] != 3 {
		t.Fatalf("remote saw %v/%v", fx.remote.reviewed, fx.remote.grades)
	}

	grant, err := fx.ledger.ExistingTimeGrant(ctx)
	if err != nil {
		t.Fatalf("read grant: %v", err)
	}
	if grant != ledger.DefaultGrant {
		t.Errorf("grant = %v, want %v", grant, ledger.DefaultGrant)
	}

	var cached api.Flashcard
	ok, err := store.GetJSON(ctx, fx.kv, store.KeyFlashcard, &cached)
	if err != nil || !ok {
		t.Fatalf("prefetch slot empty (ok=%v, err=%v)", ok, err)
	}
	if cached.CardID != "next" {
		t.Errorf("prefetched %q, want next", cached.CardID)
	}
}

func TestReviewErrorGrantsNothing(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	fx.remote.reviewErr = errors.New("api down")

	resp := fx.bg.Handle(ctx, "", message.NewReviewRequest("c1", 3))
	if resp.OK() {
		t.Fatal("expected failure when the review call fails")
	}
	grant, _ := fx.ledger.ExistingTimeGrant(ctx)
	if grant != 0 {
		t.Errorf("grant = %v after failed review, want 0", grant)
	}
}

func TestLogoutWipesStateButKeepsBaseURL(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	fx.kv.Set(ctx, store.KeyAPIBaseURL, "https://api.example.com")
	fx.kv.Set(ctx, store.KeyIsLoggedIn, true)
	fx.kv.Set(ctx, store.KeyFlashcard, json.RawMessage(`{"card_id":"a"}`))
	fx.remote.logoutErr = errors.New("server unreachable")

	resp := fx.bg.Handle(ctx, "", message.NewLogoutRequest())
	if !resp.OK() {
		t.Fatalf("logout must succeed even when the remote call fails: %s", resp.Message)
	}

	if v, _ := fx.kv.Get(ctx, store.KeyAPIBaseURL); v == nil {
		t.Error("apiBaseUrl must survive logout")
	}
	if v, _ := fx.kv.Get(ctx, store.KeyIsLoggedIn); v != nil {
		t.Error("isLoggedIn must be wiped")
	}
	if v, _ := fx.kv.Get(ctx, store.KeyFlashcard); v != nil {
		t.Error("cached card must be wiped")
	}

	if len(fx.tabs.broadcasts) != 1 || fx.tabs.broadcasts[0].Type != message.EventCloseOverlayAllTabs {
		t.Fatalf("expected closeOverlayAllTabs broadcast, got %+v", fx.tabs.broadcasts)
	}
}

func TestLoginMarksSessionAndWarmsUp(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	fx.remote.nextCards = []*api.Flashcard{{CardID: "warm"}}

	resp := fx.bg.Handle(ctx, "", message.NewLoginRequest())
	if !resp.OK() {
		t.Fatalf("login failed: %s", resp.Message)
	}

	loggedIn, err := store.GetBool(ctx, fx.kv, store.KeyIsLoggedIn, false)
	if err != nil || !loggedIn {
		t.Errorf("isLoggedIn = %v (err %v), want true", loggedIn, err)
	}
	if fx.alarm.rearmed != 1 {
		t.Errorf("alarm rearmed %d times, want 1", fx.alarm.rearmed)
	}
}

func TestScreenshotRequiresActiveSender(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	fx.tabs.active = "tab-1"

	resp := fx.bg.Handle(ctx, "tab-2", message.NewScreenshotRequest())
	if resp.OK() {
		t.Fatal("screenshot from a background tab must be rejected")
	}
	if resp.Message != ErrNotCurrentTab.Error() {
		t.Errorf("message %q, want %q", resp.Message, ErrNotCurrentTab.Error())
	}
}

func TestScreenshotFromActiveTab(t *testing.T) {
	kv := store.NewMemory()
	remote := &fakeRemote{}
	tabs := &fakeTabs{active: "tab-1"}
	bg := New(Config{
		KV:     kv,
		Ledger: ledger.New(kv),
		Alarm:  &fakeAlarm{},
		Remote: remote,
		Cache:  flashcards.New(kv, remote),
		Tabs:   tabs,
		Capture: func(ctx context.Context) ([]byte, error) {
			return []byte("png bytes"), nil
		},
	})

	resp := bg.Handle(context.Background(), "tab-1", message.NewScreenshotRequest())
	if !resp.OK() {
		t.Fatalf("screenshot failed: %s", resp.Message)
	}
	if img, _ := resp.Data.([]byte); string(img) != "png bytes" {
		t.Fatalf("unexpected data %v", resp.Data)
	}
}

func TestCreateOverlayTargetsActiveTab(t *testing.T) {
	fx := newFixture(t)
	resp := fx.bg.Handle(context.Background(), "", message.NewCreateOverlayRequest(session.ScreenList))
	if !resp.OK() {
		t.Fatalf("create overlay failed: %s", resp.Message)
	}
	if len(fx.tabs.toActive) != 1 {
		t.Fatalf("active-tab sends = %d, want 1", len(fx.tabs.toActive))
	}
	sent := fx.tabs.toActive[0]
	if sent.Type != message.EventCreateOverlay || sent.Screen != session.ScreenList {
		t.Fatalf("unexpected event %+v", sent)
	}
}

func TestBroadcastRequiresEvent(t *testing.T) {
	fx := newFixture(t)
	resp := fx.bg.Handle(context.Background(), "", message.Request{Type: message.TypeBroadcast})
	if resp.OK() {
		t.Fatal("broadcast without an event must fail")
	}
}

func TestUnknownRequestType(t *testing.T) {
	fx := newFixture(t)
	resp := fx.bg.Handle(context.Background(), "", message.Request{Type: "definitelyNotAThing"})
	if resp.OK() {
		t.Fatal("unknown request types must fail")
	}
}

func TestConfirmFlowRedeemsThenClosesReviewOverlays(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	if err := fx.ledger.GrantTime(ctx, time.Minute); err != nil {
		t.Fatalf("grant: %v", err)
	}

	// Confirm is two requests from the overlay: redeem, then a broadcast
	// closing every overlay still in the review flow.
	if resp := fx.bg.Handle(ctx, "tab-1", message.NewRedeemRequest()); !resp.OK() {
		t.Fatalf("redeem failed: %s", resp.Message)
	}
	closeReq := message.NewBroadcastRequest(message.TabEvent{Type: message.EventCloseOverlayIfFlashcardScreen})
	if resp := fx.bg.Handle(ctx, "tab-1", closeReq); !resp.OK() {
		t.Fatalf("broadcast failed: %s", resp.Message)
	}

	if len(fx.alarm.armedAt) != 1 {
		t.Errorf("alarm armed %d times, want 1", len(fx.alarm.armedAt))
	}
	if len(fx.tabs.broadcasts) != 1 || fx.tabs.broadcasts[0].Type != message.EventCloseOverlayIfFlashcardScreen {
		t.Fatalf("expected one close broadcast, got %+v", fx.tabs.broadcasts)
	}
}
