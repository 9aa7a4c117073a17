package alarm

import (
	"context"
	"testing"
	"time"

	"github.com/blobsey/flashtoll/internal/ledger"
	"github.com/blobsey/flashtoll/internal/store"
)

func waitForFire(t *testing.T, fired <-chan struct{}, within time.Duration) {
	t.Helper()
	select {
	case <-fired:
	case <-time.After(within):
		t.Fatal("alarm did not fire in time")
	}
}

func TestArmFires(t *testing.T) {
	fired := make(chan struct{}, 1)
	s := New(nil, func(ctx context.Context) {
		select {
		case fired <- struct{}{}:
		default:
		}
	}, nil)
	s.Start()
	defer s.Stop()

	if err := s.Arm(time.Now().Add(50 * time.Millisecond)); err != nil {
		t.Fatalf("arm: %v", err)
	}
	waitForFire(t, fired, 5*time.Second)
}

func TestArmPastTimeFiresImmediately(t *testing.T) {
	fired := make(chan struct{}, 1)
	s := New(nil, func(ctx context.Context) {
		select {
		case fired <- struct{}{}:
		default:
		}
	}, nil)
	s.Start()
	defer s.Stop()

	if err := s.Arm(time.Now().Add(-time.Hour)); err != nil {
		t.Fatalf("arm: %v", err)
	}
	waitForFire(t, fired, 5*time.Second)
}

func TestArmReplacesPendingAlarm(t *testing.T) {
	fires := make(chan time.Time, 4)
	s := New(nil, func(ctx context.Context) {
		fires <- time.Now()
	}, nil)
	s.Start()
	defer s.Stop()

	// Arm far out, then replace with a near time. Only the replacement
	// may fire.
	if err := s.Arm(time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("first arm: %v", err)
	}
	if err := s.Arm(time.Now().Add(50 * time.Millisecond)); err != nil {
		t.Fatalf("second arm: %v", err)
	}

	select {
	case <-fires:
	case <-time.After(5 * time.Second):
		t.Fatal("replacement alarm did not fire")
	}

	select {
	case <-fires:
		t.Fatal("replaced alarm fired anyway")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestNextFire(t *testing.T) {
	s := New(nil, nil, nil)
	s.Start()
	defer s.Stop()

	if _, ok := s.NextFire(); ok {
		t.Fatal("no alarm armed yet")
	}

	at := time.Now().Add(time.Hour)
	if err := s.Arm(at); err != nil {
		t.Fatalf("arm: %v", err)
	}
	got, ok := s.NextFire()
	if !ok {
		t.Fatal("expected a pending alarm")
	}
	if got.Sub(at) > time.Second || at.Sub(got) > time.Second {
		t.Fatalf("next fire %v, want about %v", got, at)
	}
}

func TestRearmFromPersistedTime(t *testing.T) {
	kv := store.NewMemory()
	led := ledger.New(kv)
	ctx := context.Background()

	// Accrue and redeem so a next review time is persisted.
	if err := led.GrantTime(ctx, 50*time.Millisecond); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if _, _, err := led.Redeem(ctx); err != nil {
		t.Fatalf("redeem: %v", err)
	}

	fired := make(chan struct{}, 1)
	s := New(led, func(ctx context.Context) {
		select {
		case fired <- struct{}{}:
		default:
		}
	}, nil)
	s.Start()
	defer s.Stop()

	if err := s.Rearm(ctx); err != nil {
		t.Fatalf("rearm: %v", err)
	}
	waitForFire(t, fired, 5*time.Second)
}
