package flashcards

import (
	"context"
	"errors"
	"testing"

	"github.com/blobsey/flashtoll/internal/api"
	"github.com/blobsey/flashtoll/internal/store"
)

// scriptedFetcher returns its cards in order, repeating the last one
// when exhausted.
type scriptedFetcher struct {
	cards []*api.Flashcard
	err   error
	calls int
}

func (f *scriptedFetcher) NextFlashcard(ctx context.Context, deck string) (*api.Flashcard, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if len(f.cards) == 0 {
		return nil, nil
	}
	card := f.cards[0]
	if len(f.cards) > 1 {
		f.cards = f.cards[1:]
	}
	return card, nil
}

func card(id string) *api.Flashcard {
	return &api.Flashcard{CardID: id, CardFront: "front " + id, CardBack: "back " + id}
}

func TestCacheNextStoresFreshCard(t *testing.T) {
	kv := store.NewMemory()
	c := New(kv, &scriptedFetcher{cards: []*api.Flashcard{card("a")}})
	ctx := context.Background()

	got, err := c.CacheNext(ctx, "")
	if err != nil {
		t.Fatalf("cache next: %v", err)
	}
	if got == nil || got.CardID != "a" {
		t.Fatalf("unexpected card %+v", got)
	}

	cached, err := c.Cached(ctx)
	if err != nil {
		t.Fatalf("cached: %v", err)
	}
	if cached == nil || cached.CardID != "a" {
		t.Fatalf("slot holds %+v, want card a", cached)
	}
}

func TestCacheNextRetriesPastDuplicate(t *testing.T) {
	kv := store.NewMemory()
	f := &scriptedFetcher{cards: []*api.Flashcard{card("a"), card("a"), card("b")}}
	c := New(kv, f)
	ctx := context.Background()

	if _, err := c.CacheNext(ctx, ""); err != nil {
		t.Fatalf("seed: %v", err)
	}
	got, err := c.CacheNext(ctx, "")
	if err != nil {
		t.Fatalf("cache next: %v", err)
	}
	if got.CardID != "b" {
		t.Fatalf("got card %q, want b", got.CardID)
	}
}

func TestCacheNextGivesUpAfterThreeDuplicates(t *testing.T) {
	kv := store.NewMemory()
	c := New(kv, &scriptedFetcher{cards: []*api.Flashcard{card("a")}})
	ctx := context.Background()

	if _, err := c.CacheNext(ctx, ""); err != nil {
		t.Fatalf("seed: %v", err)
	}

	f := &scriptedFetcher{cards: []*api.Flashcard{card("a")}}
	c = New(kv, f)
	if _, err := c.CacheNext(ctx, ""); !errors.Is(err, ErrDuplicateCard) {
		t.Fatalf("expected ErrDuplicateCard, got %v", err)
	}
	if f.calls != 3 {
		t.Fatalf("made %d attempts, want 3", f.calls)
	}

	// The slot keeps the existing card.
	cached, err := c.Cached(ctx)
	if err != nil {
		t.Fatalf("cached: %v", err)
	}
	if cached == nil || cached.CardID != "a" {
		t.Fatalf("slot holds %+v, want card a", cached)
	}
}

func TestCacheNextEmptyDeckClearsSlot(t *testing.T) {
	kv := store.NewMemory()
	c := New(kv, &scriptedFetcher{cards: []*api.Flashcard{card("a")}})
	ctx := context.Background()

	if _, err := c.CacheNext(ctx, ""); err != nil {
		t.Fatalf("seed: %v", err)
	}

	c = New(kv, &scriptedFetcher{})
	got, err := c.CacheNext(ctx, "")
	if err != nil {
		t.Fatalf("cache next: %v", err)
	}
	if got != nil {
		t.Fatalf("expected no card, got %+v", got)
	}
	cached, err := c.Cached(ctx)
	if err != nil {
		t.Fatalf("cached: %v", err)
	}
	if cached != nil {
		t.Fatalf("slot should be empty, holds %+v", cached)
	}
}

func TestCacheNextPropagatesFetchError(t *testing.T) {
	kv := store.NewMemory()
	fetchErr := errors.New("api down")
	c := New(kv, &scriptedFetcher{err: fetchErr})

	if _, err := c.CacheNext(context.Background(), ""); !errors.Is(err, fetchErr) {
		t.Fatalf("expected fetch error, got %v", err)
	}
}

func TestReconcileEdit(t *testing.T) {
	kv := store.NewMemory()
	c := New(kv, &scriptedFetcher{cards: []*api.Flashcard{card("a")}})
	ctx := context.Background()

	if _, err := c.CacheNext(ctx, ""); err != nil {
		t.Fatalf("seed: %v", err)
	}

	edited := card("a")
	edited.CardFront = "rewritten"
	if err := c.ReconcileEdit(ctx, edited); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	cached, _ := c.Cached(ctx)
	if cached.CardFront != "rewritten" {
		t.Fatalf("slot front %q, want rewritten", cached.CardFront)
	}

	// Editing a different card leaves the slot alone.
	other := card("z")
	if err := c.ReconcileEdit(ctx, other); err != nil {
		t.Fatalf("reconcile other: %v", err)
	}
	cached, _ = c.Cached(ctx)
	if cached.CardID != "a" {
		t.Fatalf("slot holds %q, want a", cached.CardID)
	}
}

func TestReconcileDelete(t *testing.T) {
	kv := store.NewMemory()
	c := New(kv, &scriptedFetcher{cards: []*api.Flashcard{card("a")}})
	ctx := context.Background()

	if _, err := c.CacheNext(ctx, ""); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if err := c.ReconcileDelete(ctx, "other"); err != nil {
		t.Fatalf("reconcile other: %v", err)
	}
	if cached, _ := c.Cached(ctx); cached == nil {
		t.Fatal("slot emptied for a different card")
	}

	if err := c.ReconcileDelete(ctx, "a"); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if cached, _ := c.Cached(ctx); cached != nil {
		t.Fatalf("slot should be empty, holds %+v", cached)
	}
}
