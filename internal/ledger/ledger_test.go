package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/blobsey/flashtoll/internal/store"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestGrantTimeAccrues(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemory()
	now := time.UnixMilli(1_000_000)
	l := NewWithClock(kv, fixedClock(now))

	if err := l.GrantTime(ctx, time.Minute); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if err := l.GrantTime(ctx, 30*time.Second); err != nil {
		t.Fatalf("grant: %v", err)
	}

	got, err := l.ExistingTimeGrant(ctx)
	if err != nil {
		t.Fatalf("existing: %v", err)
	}
	if got != 90*time.Second {
		t.Errorf("existing grant = %s, want 90s", got)
	}
}

func TestGrantTimeRejectsNegative(t *testing.T) {
	l := New(store.NewMemory())
	if err := l.GrantTime(context.Background(), -time.Second); err == nil {
		t.Fatal("expected error for negative grant")
	}
}

func TestRedeemRoundTrip(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemory()
	now := time.UnixMilli(10_000_000)
	l := NewWithClock(kv, fixedClock(now))

	// nextFlashcardTime in the past must clamp to now.
	if err := kv.Set(ctx, store.KeyNextFlashcardTime, now.Add(-time.Second).UnixMilli()); err != nil {
		t.Fatal(err)
	}
	if err := kv.Set(ctx, store.KeyExistingTimeGrant, int64(60000)); err != nil {
		t.Fatal(err)
	}

	next, granted, err := l.Redeem(ctx)
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if granted != time.Minute {
		t.Errorf("granted = %s, want 1m", granted)
	}
	if want := now.Add(time.Minute); !next.Equal(want) {
		t.Errorf("next = %s, want %s", next, want)
	}

	remaining, err := l.ExistingTimeGrant(ctx)
	if err != nil {
		t.Fatalf("existing: %v", err)
	}
	if remaining != 0 {
		t.Errorf("existing grant after redeem = %s, want 0", remaining)
	}
}

func TestRedeemStacksOnFutureNextTime(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemory()
	now := time.UnixMilli(10_000_000)
	l := NewWithClock(kv, fixedClock(now))

	future := now.Add(5 * time.Minute)
	if err := kv.Set(ctx, store.KeyNextFlashcardTime, future.UnixMilli()); err != nil {
		t.Fatal(err)
	}
	if err := kv.Set(ctx, store.KeyExistingTimeGrant, int64(60000)); err != nil {
		t.Fatal(err)
	}

	next, _, err := l.Redeem(ctx)
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if want := future.Add(time.Minute); !next.Equal(want) {
		t.Errorf("next = %s, want %s", next, want)
	}
}

// Redemption monotonicity: for any sequence of grants and redeems,
// nextFlashcardTime never moves backwards and never lands before now.
func TestRedeemMonotonic(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemory()
	now := time.UnixMilli(50_000_000)
	l := NewWithClock(kv, fixedClock(now))

	grants := []time.Duration{0, time.Minute, 0, 2 * time.Minute, 30 * time.Second}
	prev := time.Time{}
	for i, g := range grants {
		if g > 0 {
			if err := l.GrantTime(ctx, g); err != nil {
				t.Fatalf("grant %d: %v", i, err)
			}
		}
		next, _, err := l.Redeem(ctx)
		if err != nil {
			t.Fatalf("redeem %d: %v", i, err)
		}
		if next.Before(now) {
			t.Errorf("redeem %d: next %s before now %s", i, next, now)
		}
		if next.Before(prev) {
			t.Errorf("redeem %d: next %s moved backwards from %s", i, next, prev)
		}
		prev = next
	}
}

func TestUnredeemConvertsRemainingTime(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemory()
	now := time.UnixMilli(10_000_000)
	l := NewWithClock(kv, fixedClock(now))

	if err := kv.Set(ctx, store.KeyNextFlashcardTime, now.Add(90*time.Second).UnixMilli()); err != nil {
		t.Fatal(err)
	}

	if err := l.UnredeemIfNeeded(ctx); err != nil {
		t.Fatalf("unredeem: %v", err)
	}

	grant, err := l.ExistingTimeGrant(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if grant != 90*time.Second {
		t.Errorf("grant = %s, want 90s", grant)
	}
	next, err := l.NextFlashcardTime(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !next.Equal(now) {
		t.Errorf("next = %s, want %s", next, now)
	}
}

func TestUnredeemIdempotent(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemory()
	now := time.UnixMilli(10_000_000)
	l := NewWithClock(kv, fixedClock(now))

	if err := kv.Set(ctx, store.KeyNextFlashcardTime, now.Add(time.Minute).UnixMilli()); err != nil {
		t.Fatal(err)
	}

	read := func() (time.Duration, time.Time) {
		t.Helper()
		g, err := l.ExistingTimeGrant(ctx)
		if err != nil {
			t.Fatal(err)
		}
		n, err := l.NextFlashcardTime(ctx)
		if err != nil {
			t.Fatal(err)
		}
		return g, n
	}

	if err := l.UnredeemIfNeeded(ctx); err != nil {
		t.Fatal(err)
	}
	g1, n1 := read()

	if err := l.UnredeemIfNeeded(ctx); err != nil {
		t.Fatal(err)
	}
	g2, n2 := read()

	if g1 != g2 || !n1.Equal(n2) {
		t.Errorf("not idempotent: (%s, %s) vs (%s, %s)", g1, n1, g2, n2)
	}
}

func TestUnredeemNoOpWithAccruedGrant(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemory()
	now := time.UnixMilli(10_000_000)
	l := NewWithClock(kv, fixedClock(now))

	if err := l.GrantTime(ctx, time.Minute); err != nil {
		t.Fatal(err)
	}
	future := now.Add(5 * time.Minute)
	if err := kv.Set(ctx, store.KeyNextFlashcardTime, future.UnixMilli()); err != nil {
		t.Fatal(err)
	}

	if err := l.UnredeemIfNeeded(ctx); err != nil {
		t.Fatal(err)
	}

	grant, _ := l.ExistingTimeGrant(ctx)
	if grant != time.Minute {
		t.Errorf("grant = %s, want 1m (unchanged)", grant)
	}
	next, _ := l.NextFlashcardTime(ctx)
	if !next.Equal(future) {
		t.Errorf("next = %s, want %s (unchanged)", next, future)
	}
}

func TestDefaultsWhenAbsent(t *testing.T) {
	ctx := context.Background()
	now := time.UnixMilli(42_000_000)
	l := NewWithClock(store.NewMemory(), fixedClock(now))

	grant, err := l.ExistingTimeGrant(ctx)
	if err != nil || grant != 0 {
		t.Errorf("grant = (%s, %v), want (0, nil)", grant, err)
	}
	next, err := l.NextFlashcardTime(ctx)
	if err != nil || !next.Equal(now) {
		t.Errorf("next = (%s, %v), want (%s, nil)", next, err, now)
	}
}
