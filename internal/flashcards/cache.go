// Package flashcards maintains the single-slot cache of the next due
// card. The remote API owns card selection; the cache only exists so an
// overlay can open instantly instead of waiting on a fetch.
package flashcards

import (
	"context"
	"errors"
	"fmt"

	"github.com/blobsey/flashtoll/internal/api"
	"github.com/blobsey/flashtoll/internal/store"
)

// maxFetchAttempts bounds how often CacheNext retries when the remote
// keeps handing back the card already in the slot.
const maxFetchAttempts = 3

// ErrDuplicateCard indicates the remote returned the cached card on
// every attempt, usually because the deck has only one due card.
var ErrDuplicateCard = errors.New("duplicate flashcard fetched")

// Fetcher is the slice of the API client the cache needs.
type Fetcher interface {
	NextFlashcard(ctx context.Context, deck string) (*api.Flashcard, error)
}

// Cache is the persistent one-card prefetch slot.
type Cache struct {
	kv      store.KV
	fetcher Fetcher
}

// New creates a cache over kv, filling the slot through fetcher.
func New(kv store.KV, fetcher Fetcher) *Cache {
	return &Cache{kv: kv, fetcher: fetcher}
}

// Cached returns the card in the slot, or nil when the slot is empty.
func (c *Cache) Cached(ctx context.Context) (*api.Flashcard, error) {
	var card api.Flashcard
	ok, err := store.GetJSON(ctx, c.kv, store.KeyFlashcard, &card)
	if err != nil {
		return nil, fmt.Errorf("read cached flashcard: %w", err)
	}
	if !ok {
		return nil, nil
	}
	return &card, nil
}

// CacheNext fetches the next due card in deck and stores it in the
// slot. A fetch that returns the card already cached is retried, on the
// assumption the remote briefly lagged a just-submitted review; if every
// attempt returns the same card the slot is left as is and
// ErrDuplicateCard is reported. A fetch that returns no card empties
// the slot: an exhausted deck means nothing is due.
func (c *Cache) CacheNext(ctx context.Context, deck string) (*api.Flashcard, error) {
	existing, err := c.Cached(ctx)
	if err != nil {
		return nil, err
	}

	for attempt := 0; attempt < maxFetchAttempts; attempt++ {
		card, err := c.fetcher.NextFlashcard(ctx, deck)
		if err != nil {
			return nil, err
		}
		if card == nil {
			if err := c.Clear(ctx); err != nil {
				return nil, err
			}
			return nil, nil
		}
		if existing != nil && card.CardID == existing.CardID {
			continue
		}
		if err := c.put(ctx, card); err != nil {
			return nil, err
		}
		return card, nil
	}
	return nil, ErrDuplicateCard
}

// ReconcileEdit overwrites the slot with card when it holds the same
// card, so a just-edited front or back is what the next overlay shows.
func (c *Cache) ReconcileEdit(ctx context.Context, card *api.Flashcard) error {
	cached, err := c.Cached(ctx)
	if err != nil {
		return err
	}
	if cached == nil || card == nil || cached.CardID != card.CardID {
		return nil
	}
	return c.put(ctx, card)
}

// ReconcileDelete empties the slot when it holds cardID.
func (c *Cache) ReconcileDelete(ctx context.Context, cardID string) error {
	cached, err := c.Cached(ctx)
	if err != nil {
		return err
	}
	if cached == nil || cached.CardID != cardID {
		return nil
	}
	return c.Clear(ctx)
}

// Clear empties the slot.
func (c *Cache) Clear(ctx context.Context) error {
	if err := c.kv.Delete(ctx, store.KeyFlashcard); err != nil {
		return fmt.Errorf("clear cached flashcard: %w", err)
	}
	return nil
}

func (c *Cache) put(ctx context.Context, card *api.Flashcard) error {
	if err := c.kv.Set(ctx, store.KeyFlashcard, card); err != nil {
		return fmt.Errorf("store flashcard: %w", err)
	}
	return nil
}
