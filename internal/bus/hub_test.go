package bus

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/blobsey/flashtoll/internal/message"
)

// recordingTab is a test endpoint that records delivered events and can
// be configured to fail or panic.
type recordingTab struct {
	mu     sync.Mutex
	events []message.TabEvent
	fail   error
	panics bool
}

func (r *recordingTab) Deliver(ctx context.Context, event message.TabEvent) error {
	if r.panics {
		panic("tab exploded")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return r.fail
}

func (r *recordingTab) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func TestBroadcastReachesAllTabs(t *testing.T) {
	h := New(nil)
	tabs := []*recordingTab{{}, {}, {}}
	for _, tab := range tabs {
		h.RegisterTab(NewTabID(), tab)
	}

	event := message.TabEvent{Type: message.EventShowFlashcardAlarm}
	if err := h.Broadcast(context.Background(), event); err != nil {
		t.Fatalf("broadcast: %v", err)
	}

	for i, tab := range tabs {
		if tab.count() != 1 {
			t.Errorf("tab %d received %d events, want 1", i, tab.count())
		}
	}
}

func TestBroadcastSurvivesFailingTab(t *testing.T) {
	h := New(nil)
	good1 := &recordingTab{}
	bad := &recordingTab{fail: errors.New("tab closed mid-delivery")}
	good2 := &recordingTab{}
	h.RegisterTab(NewTabID(), good1)
	h.RegisterTab(NewTabID(), bad)
	h.RegisterTab(NewTabID(), good2)

	event := message.TabEvent{Type: message.EventCloseOverlayAllTabs}
	if err := h.Broadcast(context.Background(), event); err != nil {
		t.Fatalf("broadcast must swallow per-tab failures, got %v", err)
	}

	if good1.count() != 1 || good2.count() != 1 {
		t.Errorf("healthy tabs missed the event: %d, %d", good1.count(), good2.count())
	}
}

func TestBroadcastSurvivesPanickingTab(t *testing.T) {
	h := New(nil)
	good := &recordingTab{}
	h.RegisterTab(NewTabID(), &recordingTab{panics: true})
	h.RegisterTab(NewTabID(), good)

	if err := h.Broadcast(context.Background(), message.TabEvent{Type: message.EventCloseOverlayAllTabs}); err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	if good.count() != 1 {
		t.Errorf("healthy tab received %d events, want 1", good.count())
	}
}

func TestBroadcastRespectsCanceledContext(t *testing.T) {
	h := New(nil)
	tab := &recordingTab{}
	h.RegisterTab(NewTabID(), tab)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := h.Broadcast(ctx, message.TabEvent{Type: message.EventShowFlashcardAlarm}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if tab.count() != 0 {
		t.Errorf("no deliveries expected after cancel, got %d", tab.count())
	}
}

func TestSendWithoutHandler(t *testing.T) {
	h := New(nil)
	resp := h.Send(context.Background(), "", message.NewRedeemRequest())
	if resp.OK() {
		t.Fatal("expected error response without a handler")
	}
}

func TestSendRecoversHandlerPanic(t *testing.T) {
	h := New(nil)
	h.SetHandler(func(ctx context.Context, from TabID, req message.Request) message.Response {
		panic("handler bug")
	})

	resp := h.Send(context.Background(), "", message.NewRedeemRequest())
	if resp.OK() {
		t.Fatal("expected error response from panicking handler")
	}
	if resp.Message == "" {
		t.Error("expected panic detail in the response message")
	}
}

func TestSendPassesSenderIdentity(t *testing.T) {
	h := New(nil)
	var seen TabID
	h.SetHandler(func(ctx context.Context, from TabID, req message.Request) message.Response {
		seen = from
		return message.Success(nil)
	})

	id := NewTabID()
	h.Send(context.Background(), id, message.NewScreenshotRequest())
	if seen != id {
		t.Fatalf("handler saw sender %q, want %q", seen, id)
	}
}

func TestSendToActiveTab(t *testing.T) {
	h := New(nil)
	first := &recordingTab{}
	second := &recordingTab{}
	firstID := NewTabID()
	secondID := NewTabID()
	h.RegisterTab(firstID, first)
	h.RegisterTab(secondID, second)
	h.SetActiveTab(secondID)

	event := message.TabEvent{Type: message.EventCreateOverlay}
	if err := h.SendToActiveTab(context.Background(), event); err != nil {
		t.Fatalf("send to active: %v", err)
	}
	if second.count() != 1 || first.count() != 0 {
		t.Fatalf("active tab got %d, inactive got %d", second.count(), first.count())
	}
}

func TestSendToActiveTabNoReceiver(t *testing.T) {
	h := New(nil)
	err := h.SendToActiveTab(context.Background(), message.TabEvent{Type: message.EventCreateOverlay})
	if !errors.Is(err, ErrNoReceiver) {
		t.Fatalf("expected ErrNoReceiver, got %v", err)
	}
}

func TestSendToActiveTabFallback(t *testing.T) {
	h := New(nil)
	id := NewTabID()
	h.RegisterTab(id, &recordingTab{fail: errors.New("delivery refused")})
	h.SetActiveTab(id)

	opened := false
	h.SetFallbackOpener(func(ctx context.Context, event message.TabEvent) error {
		opened = true
		return nil
	})

	if err := h.SendToActiveTab(context.Background(), message.TabEvent{Type: message.EventCreateOverlay}); err != nil {
		t.Fatalf("fallback should absorb the failure, got %v", err)
	}
	if !opened {
		t.Fatal("fallback opener was not invoked")
	}
}

func TestFallbackRestoresLostFocus(t *testing.T) {
	h := New(nil)
	survivor := &recordingTab{}
	survivorID := NewTabID()
	h.RegisterTab(survivorID, survivor)

	closedID := NewTabID()
	h.RegisterTab(closedID, &recordingTab{})
	h.SetActiveTab(closedID)
	h.UnregisterTab(closedID)

	// Same shape as the app wiring: re-focus the remaining tab and
	// retry the delivery.
	h.SetFallbackOpener(func(ctx context.Context, event message.TabEvent) error {
		h.SetActiveTab(survivorID)
		return survivor.Deliver(ctx, event)
	})

	if err := h.SendToActiveTab(context.Background(), message.TabEvent{Type: message.EventCreateOverlay}); err != nil {
		t.Fatalf("send to active: %v", err)
	}
	if survivor.count() != 1 {
		t.Fatalf("surviving tab received %d events, want 1", survivor.count())
	}
	if h.ActiveTab() != survivorID {
		t.Fatalf("focus not restored, active is %q", h.ActiveTab())
	}
}

func TestUnregisterActiveTabClearsFocus(t *testing.T) {
	h := New(nil)
	id := NewTabID()
	h.RegisterTab(id, &recordingTab{})
	if h.ActiveTab() != id {
		t.Fatalf("first registered tab should be active")
	}
	h.UnregisterTab(id)
	if h.ActiveTab() != "" {
		t.Fatalf("active tab should clear on unregister, got %q", h.ActiveTab())
	}
}
