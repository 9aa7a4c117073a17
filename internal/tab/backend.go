package tab

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/blobsey/flashtoll/internal/api"
	"github.com/blobsey/flashtoll/internal/bus"
	"github.com/blobsey/flashtoll/internal/message"
)

// sender is the slice of the hub a tab uses to reach the background.
type sender interface {
	Send(ctx context.Context, from bus.TabID, req message.Request) message.Response
}

// hubBackend adapts hub requests to the session.Backend interface. All
// mutations flow through the background process; nothing here writes
// state directly.
type hubBackend struct {
	id  bus.TabID
	hub sender
}

func (b *hubBackend) Redeem(ctx context.Context) (time.Time, time.Duration, error) {
	resp := b.hub.Send(ctx, b.id, message.NewRedeemRequest())
	if !resp.OK() {
		return time.Time{}, 0, errors.New(resp.Message)
	}
	result, ok := resp.Data.(message.RedeemResult)
	if !ok {
		return time.Time{}, 0, fmt.Errorf("unexpected redeem payload %T", resp.Data)
	}
	return result.NextFlashcardTime, result.Granted, nil
}

func (b *hubBackend) CloseReviewOverlays(ctx context.Context) error {
	event := message.TabEvent{Type: message.EventCloseOverlayIfFlashcardScreen}
	return respErr(b.hub.Send(ctx, b.id, message.NewBroadcastRequest(event)))
}

func (b *hubBackend) Review(ctx context.Context, cardID string, grade int) (*api.Flashcard, error) {
	return cardResp(b.hub.Send(ctx, b.id, message.NewReviewRequest(cardID, grade)))
}

func (b *hubBackend) Edit(ctx context.Context, card *api.Flashcard) (*api.Flashcard, error) {
	return cardResp(b.hub.Send(ctx, b.id, message.NewEditRequest(card)))
}

func (b *hubBackend) Delete(ctx context.Context, cardID string) error {
	return respErr(b.hub.Send(ctx, b.id, message.NewDeleteRequest(cardID)))
}

func (b *hubBackend) List(ctx context.Context, deck string) ([]api.Flashcard, error) {
	resp := b.hub.Send(ctx, b.id, message.NewListFlashcardsRequest(deck))
	if !resp.OK() {
		return nil, errors.New(resp.Message)
	}
	cards, _ := resp.Data.([]api.Flashcard)
	return cards, nil
}

func (b *hubBackend) CacheNext(ctx context.Context, deck string) (*api.Flashcard, error) {
	return cardResp(b.hub.Send(ctx, b.id, message.NewNextFlashcardRequest(deck)))
}

// tabBackend is the full session backend: hub requests for mutations,
// a local read for the prefetched card. Reads don't need the
// single-writer routing, only writes do.
type tabBackend struct {
	hubBackend
	cache cardCache
}

// cardCache is the read-only slice of the prefetch slot a tab uses.
type cardCache interface {
	Cached(ctx context.Context) (*api.Flashcard, error)
}

func (b *tabBackend) CachedCard(ctx context.Context) (*api.Flashcard, error) {
	return b.cache.Cached(ctx)
}

func respErr(resp message.Response) error {
	if resp.OK() {
		return nil
	}
	return errors.New(resp.Message)
}

func cardResp(resp message.Response) (*api.Flashcard, error) {
	if !resp.OK() {
		return nil, errors.New(resp.Message)
	}
	if resp.Data == nil {
		return nil, nil
	}
	card, ok := resp.Data.(*api.Flashcard)
	if !ok {
		return nil, fmt.Errorf("unexpected card payload %T", resp.Data)
	}
	return card, nil
}
