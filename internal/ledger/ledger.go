// Package ledger owns the time-grant arithmetic: accrual of browsing time
// earned by reviews, redemption of that time into the next forced review
// timestamp, and the unredeem recomputation that pauses the countdown when
// a review session starts.
//
// The backing KV store has no transactions, so every operation here is a
// plain get-then-set. To keep two tabs from racing on the same keys, the
// ledger is mutated only from the background process: tab contexts request
// mutations over the message hub and never construct a Ledger themselves.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/blobsey/flashtoll/internal/store"
)

// DefaultGrant is the browsing time earned per completed card review.
const DefaultGrant = 60 * time.Second

// Ledger maintains the two persisted ledger values: existingTimeGrant
// (accrued-but-unredeemed milliseconds) and nextFlashcardTime (absolute
// epoch-ms after which a review is due).
type Ledger struct {
	kv  store.KV
	now func() time.Time
}

// New creates a Ledger over kv using the wall clock.
func New(kv store.KV) *Ledger {
	return &Ledger{kv: kv, now: time.Now}
}

// NewWithClock creates a Ledger with an injected clock, for tests.
func NewWithClock(kv store.KV, now func() time.Time) *Ledger {
	return &Ledger{kv: kv, now: now}
}

// ExistingTimeGrant returns the accrued-but-unredeemed grant, zero when absent.
func (l *Ledger) ExistingTimeGrant(ctx context.Context) (time.Duration, error) {
	ms, err := store.GetInt64(ctx, l.kv, store.KeyExistingTimeGrant, 0)
	if err != nil {
		return 0, err
	}
	return time.Duration(ms) * time.Millisecond, nil
}

// NextFlashcardTime returns the instant after which a review is due.
// An absent key degrades to "now" (a review is immediately due).
func (l *Ledger) NextFlashcardTime(ctx context.Context) (time.Time, error) {
	ms, err := store.GetInt64(ctx, l.kv, store.KeyNextFlashcardTime, 0)
	if err != nil {
		return time.Time{}, err
	}
	if ms == 0 {
		return l.now(), nil
	}
	return time.UnixMilli(ms), nil
}

// GrantTime adds d to the existing time grant. Called once per completed
// card review.
func (l *Ledger) GrantTime(ctx context.Context, d time.Duration) error {
	if d < 0 {
		return fmt.Errorf("grant must be non-negative, got %s", d)
	}
	existing, err := store.GetInt64(ctx, l.kv, store.KeyExistingTimeGrant, 0)
	if err != nil {
		return err
	}
	return l.kv.Set(ctx, store.KeyExistingTimeGrant, existing+d.Milliseconds())
}

// Redeem folds the existing time grant into nextFlashcardTime and zeroes
// it. A nextFlashcardTime in the past (or clock skew) is valid: the base
// is clamped to now, so the redeemed time never lands in the past and
// nextFlashcardTime never moves backwards. Returns the new
// nextFlashcardTime and the grant that was redeemed.
func (l *Ledger) Redeem(ctx context.Context) (time.Time, time.Duration, error) {
	existingMs, err := store.GetInt64(ctx, l.kv, store.KeyExistingTimeGrant, 0)
	if err != nil {
		return time.Time{}, 0, err
	}

	now := l.now()
	baseMs, err := store.GetInt64(ctx, l.kv, store.KeyNextFlashcardTime, 0)
	if err != nil {
		return time.Time{}, 0, err
	}
	if baseMs < now.UnixMilli() {
		baseMs = now.UnixMilli()
	}

	nextMs := baseMs + existingMs
	if err := l.kv.Set(ctx, store.KeyNextFlashcardTime, nextMs); err != nil {
		return time.Time{}, 0, err
	}
	if err := l.kv.Set(ctx, store.KeyExistingTimeGrant, int64(0)); err != nil {
		return time.Time{}, 0, err
	}

	return time.UnixMilli(nextMs), time.Duration(existingMs) * time.Millisecond, nil
}

// UnredeemIfNeeded pauses the countdown the instant a review session
// starts: when no grant is accrued, the remaining time until
// nextFlashcardTime is converted back into existingTimeGrant and
// nextFlashcardTime is reset to now, so real time spent reviewing is not
// charged against the user. Idempotent: a second call with no intervening
// GrantTime leaves both values unchanged.
func (l *Ledger) UnredeemIfNeeded(ctx context.Context) error {
	existingMs, err := store.GetInt64(ctx, l.kv, store.KeyExistingTimeGrant, 0)
	if err != nil {
		return err
	}
	if existingMs != 0 {
		return nil
	}

	now := l.now()
	nextMs, err := store.GetInt64(ctx, l.kv, store.KeyNextFlashcardTime, 0)
	if err != nil {
		return err
	}

	remaining := int64(0)
	if nextMs > now.UnixMilli() {
		remaining = nextMs - now.UnixMilli()
	}

	if err := l.kv.Set(ctx, store.KeyExistingTimeGrant, remaining); err != nil {
		return err
	}
	return l.kv.Set(ctx, store.KeyNextFlashcardTime, now.UnixMilli())
}
