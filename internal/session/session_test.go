package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/blobsey/flashtoll/internal/api"
)

// fakeBackend records calls and serves scripted cards.
type fakeBackend struct {
	redeems     int
	closed      int
	reviews     map[string]int
	edited      []*api.Flashcard
	deleted     []string
	cached      *api.Flashcard
	next        *api.Flashcard
	listResult  []api.Flashcard
	listErr     error
	listStarted chan struct{}
	listUnblock chan struct{}
	reviewErr   error
	redeemErr   error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{reviews: make(map[string]int)}
}

func (f *fakeBackend) Redeem(ctx context.Context) (time.Time, time.Duration, error) {
	if f.redeemErr != nil {
		return time.Time{}, 0, f.redeemErr
	}
	f.redeems++
	return time.Now().Add(time.Minute), time.Minute, nil
}

func (f *fakeBackend) CloseReviewOverlays(ctx context.Context) error {
	f.closed++
	return nil
}

func (f *fakeBackend) Review(ctx context.Context, cardID string, grade int) (*api.Flashcard, error) {
	if f.reviewErr != nil {
		return nil, f.reviewErr
	}
	f.reviews[cardID] = grade
	return &api.Flashcard{CardID: cardID, CardFront: "front", CardBack: "back"}, nil
}

func (f *fakeBackend) Edit(ctx context.Context, card *api.Flashcard) (*api.Flashcard, error) {
	f.edited = append(f.edited, card)
	return card, nil
}

func (f *fakeBackend) Delete(ctx context.Context, cardID string) error {
	f.deleted = append(f.deleted, cardID)
	return nil
}

func (f *fakeBackend) List(ctx context.Context, deck string) ([]api.Flashcard, error) {
	if f.listStarted != nil {
		close(f.listStarted)
	}
	if f.listUnblock != nil {
		<-f.listUnblock
	}
	return f.listResult, f.listErr
}

func (f *fakeBackend) CachedCard(ctx context.Context) (*api.Flashcard, error) {
	return f.cached, nil
}

func (f *fakeBackend) CacheNext(ctx context.Context, deck string) (*api.Flashcard, error) {
	return f.next, nil
}

func testCard(id string) *api.Flashcard {
	return &api.Flashcard{CardID: id, CardFront: "q " + id, CardBack: "a " + id}
}

func TestFullReviewLoop(t *testing.T) {
	b := newFakeBackend()
	b.cached = testCard("second")
	s := New(b, testCard("first"), "")
	ctx := context.Background()

	if s.Active() != ScreenFlashcard {
		t.Fatalf("start screen %q", s.Active())
	}
	if err := s.Flip(); err != nil {
		t.Fatalf("flip: %v", err)
	}
	if s.Active() != ScreenGrade {
		t.Fatalf("after flip: %q", s.Active())
	}
	if err := s.SelectGrade(ctx, "Good"); err != nil {
		t.Fatalf("grade: %v", err)
	}
	if b.reviews["first"] != 3 {
		t.Fatalf("remote grade %d, want 3", b.reviews["first"])
	}
	if s.Active() != ScreenReview {
		t.Fatalf("after grade: %q", s.Active())
	}

	// Keep going with the prefetched card.
	if err := s.Another(ctx); err != nil {
		t.Fatalf("another: %v", err)
	}
	if s.Active() != ScreenFlashcard || s.Card().CardID != "second" {
		t.Fatalf("not restarted on second card: %q %q", s.Active(), s.Card().CardID)
	}
	if s.GradeName() != "" {
		t.Fatalf("grade carried over: %q", s.GradeName())
	}

	// Review the second card and confirm out.
	if err := s.Flip(); err != nil {
		t.Fatalf("flip second: %v", err)
	}
	if err := s.SelectGrade(ctx, "Easy"); err != nil {
		t.Fatalf("grade second: %v", err)
	}
	if err := s.Confirm(ctx); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if s.Status() != StatusClosed {
		t.Fatalf("status %v, want closed", s.Status())
	}
	if b.redeems != 1 || b.closed != 1 {
		t.Fatalf("redeems=%d closed=%d, want 1/1", b.redeems, b.closed)
	}
}

func TestRefusalsOffTheRightScreen(t *testing.T) {
	b := newFakeBackend()
	s := New(b, testCard("c"), "")
	ctx := context.Background()

	var invalid *ErrInvalidTransition

	// Grading before flipping must refuse and submit nothing.
	if err := s.SelectGrade(ctx, "Good"); !errors.As(err, &invalid) {
		t.Fatalf("grade off flashcard screen: %v", err)
	}
	if len(b.reviews) != 0 {
		t.Fatal("a refused grade still reached the backend")
	}

	// Confirming before grading must refuse and redeem nothing.
	if err := s.Confirm(ctx); !errors.As(err, &invalid) {
		t.Fatalf("confirm off review screen: %v", err)
	}
	if b.redeems != 0 {
		t.Fatal("a refused confirm still redeemed")
	}

	// Another only makes sense from the review summary.
	if err := s.Another(ctx); !errors.As(err, &invalid) {
		t.Fatalf("another off review screen: %v", err)
	}
}

func TestStartWithoutCardRefusesSafely(t *testing.T) {
	b := newFakeBackend()
	ctx := context.Background()

	// Grade and review need a card snapshot; started there without one,
	// the session lands on the card front and every operation refuses
	// instead of dereferencing nothing.
	for _, initial := range []Screen{ScreenGrade, ScreenReview} {
		s := New(b, nil, initial)
		if s.Active() != ScreenFlashcard {
			t.Fatalf("start at %q with no card: screen %q, want flashcard", initial, s.Active())
		}
		if err := s.Flip(); !errors.Is(err, ErrNoCardDue) {
			t.Fatalf("flip with no card: %v", err)
		}
		if err := s.SelectGrade(ctx, "Good"); err == nil {
			t.Fatal("grade with no card succeeded")
		}
		if err := s.Edit(); err == nil {
			t.Fatal("edit with no card succeeded")
		}
	}
	if len(b.reviews) != 0 || len(b.edited) != 0 {
		t.Fatalf("refused operations reached the backend: %v %v", b.reviews, b.edited)
	}
}

func TestGradeScreenWithoutSnapshotRefuses(t *testing.T) {
	b := newFakeBackend()
	ctx := context.Background()

	// Force the screen past the constructor guard to pin down the
	// per-operation checks.
	s := New(b, nil, "")
	s.nav.Push(ScreenGrade)

	if err := s.SelectGrade(ctx, "Good"); !errors.Is(err, ErrNoCardDue) {
		t.Fatalf("grade without snapshot: %v", err)
	}
	if err := s.Edit(); !errors.Is(err, ErrNoCardDue) {
		t.Fatalf("edit without snapshot: %v", err)
	}
	if len(b.reviews) != 0 {
		t.Fatal("a refused grade reached the backend")
	}
}

func TestAnotherWithNoCardDue(t *testing.T) {
	b := newFakeBackend()
	s := New(b, testCard("only"), "")
	ctx := context.Background()

	s.Flip()
	s.SelectGrade(ctx, "Again")

	// Nothing cached, nothing fetchable.
	if err := s.Another(ctx); !errors.Is(err, ErrNoCardDue) {
		t.Fatalf("expected ErrNoCardDue, got %v", err)
	}
	// The session stays on the review screen so Confirm still works.
	if s.Active() != ScreenReview {
		t.Fatalf("screen %q after failed continue", s.Active())
	}
}

func TestAnotherSkipsStaleCachedCard(t *testing.T) {
	b := newFakeBackend()
	b.cached = testCard("same")
	b.next = testCard("fresh")
	s := New(b, testCard("same"), "")
	ctx := context.Background()

	s.Flip()
	s.SelectGrade(ctx, "Hard")
	if err := s.Another(ctx); err != nil {
		t.Fatalf("another: %v", err)
	}
	if s.Card().CardID != "fresh" {
		t.Fatalf("card %q, want fresh fetch past the stale slot", s.Card().CardID)
	}
}

func TestEditSaveRoundTrip(t *testing.T) {
	b := newFakeBackend()
	s := New(b, testCard("c"), "")
	ctx := context.Background()

	s.Flip()
	if err := s.Edit(); err != nil {
		t.Fatalf("edit: %v", err)
	}
	if s.Active() != ScreenEdit {
		t.Fatalf("screen %q", s.Active())
	}
	front, back := s.EditContent()
	if front != "q c" || back != "a c" {
		t.Fatalf("edit buffer %q/%q not seeded", front, back)
	}

	if err := s.SetEditContent("new front", "new back"); err != nil {
		t.Fatalf("set content: %v", err)
	}
	if err := s.SaveEdit(ctx); err != nil {
		t.Fatalf("save: %v", err)
	}
	if s.Active() != ScreenGrade {
		t.Fatalf("screen %q after save, want grade", s.Active())
	}
	if s.Card().CardFront != "new front" {
		t.Fatalf("card front %q", s.Card().CardFront)
	}
	if len(b.edited) != 1 {
		t.Fatalf("backend edits = %d", len(b.edited))
	}
}

func TestCancelEditKeepsCard(t *testing.T) {
	b := newFakeBackend()
	s := New(b, testCard("c"), "")

	s.Flip()
	s.Edit()
	s.SetEditContent("scribbles", "more scribbles")
	if err := s.CancelEdit(); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if s.Card().CardFront != "q c" {
		t.Fatalf("cancel leaked into the card: %q", s.Card().CardFront)
	}
	if len(b.edited) != 0 {
		t.Fatal("cancel reached the backend")
	}
}

func TestDeleteClosesForReevaluation(t *testing.T) {
	b := newFakeBackend()
	s := New(b, testCard("c"), "")
	ctx := context.Background()

	s.Flip()
	s.Edit()
	if err := s.DeleteCard(ctx); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(b.deleted) != 1 || b.deleted[0] != "c" {
		t.Fatalf("backend deletes %v", b.deleted)
	}
	if s.Status() != StatusReevaluate {
		t.Fatalf("status %v, want reevaluate", s.Status())
	}
}

func TestBackPastRootAsksForReevaluation(t *testing.T) {
	b := newFakeBackend()
	s := New(b, testCard("c"), "")

	s.Flip()
	s.Back()
	if s.Active() != ScreenFlashcard || s.Status() != StatusActive {
		t.Fatalf("one back: %q %v", s.Active(), s.Status())
	}
	s.Back()
	if s.Status() != StatusReevaluate {
		t.Fatalf("back past root: status %v, want reevaluate", s.Status())
	}
}

func TestListLoadAppliesResult(t *testing.T) {
	b := newFakeBackend()
	b.listResult = []api.Flashcard{*testCard("a"), *testCard("b")}
	s := New(b, testCard("c"), "")

	s.Flip()
	s.SelectGrade(context.Background(), "Good")
	ctx, err := s.OpenList(context.Background())
	if err != nil {
		t.Fatalf("open list: %v", err)
	}
	if !s.ListLoading() {
		t.Fatal("loading flag not set")
	}

	cards, loadErr := b.List(ctx, "")
	if err := s.ApplyListResult(ctx, cards, loadErr); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if s.ListLoading() {
		t.Fatal("loading flag not cleared")
	}
	if len(s.ListCards()) != 2 {
		t.Fatalf("list has %d cards, want 2", len(s.ListCards()))
	}
}

func TestListLoadDiscardedAfterBack(t *testing.T) {
	b := newFakeBackend()
	b.listResult = []api.Flashcard{*testCard("a")}
	s := New(b, testCard("c"), "")

	s.Flip()
	s.SelectGrade(context.Background(), "Good")
	ctx, err := s.OpenList(context.Background())
	if err != nil {
		t.Fatalf("open list: %v", err)
	}

	// The user leaves before the load lands.
	s.Back()
	if s.Active() != ScreenReview {
		t.Fatalf("screen %q after back", s.Active())
	}

	if err := s.ApplyListResult(ctx, b.listResult, nil); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if len(s.ListCards()) != 0 {
		t.Fatal("stale load was applied")
	}
	if s.ListLoading() {
		t.Fatal("loading flag stuck")
	}
}
