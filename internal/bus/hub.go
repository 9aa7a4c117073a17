// Package bus is the in-process transport between tabs and the
// background process. Tabs register an endpoint, send requests inward,
// and receive fanned-out events; the background process owns the single
// request handler.
package bus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/blobsey/flashtoll/internal/message"
)

// ErrNoReceiver indicates no tab was available to receive an event.
var ErrNoReceiver = errors.New("no tab available to receive the event")

// TabID identifies one registered tab.
type TabID string

// NewTabID allocates a fresh tab identifier.
func NewTabID() TabID {
	return TabID(uuid.NewString())
}

// Endpoint receives events pushed to a tab. Deliver runs on the hub's
// calling goroutine; implementations must not block indefinitely.
type Endpoint interface {
	Deliver(ctx context.Context, event message.TabEvent) error
}

// Handler processes one request on behalf of the background process.
// from identifies the sending tab, or "" for internal callers such as
// the alarm scheduler.
type Handler func(ctx context.Context, from TabID, req message.Request) message.Response

// FallbackOpener is invoked by SendToActiveTab when no tab can receive
// the event, to open a fresh surface for it (the original opened a new
// tab when delivery to the active one failed).
type FallbackOpener func(ctx context.Context, event message.TabEvent) error

// Hub routes requests to the background handler and events to tabs.
type Hub struct {
	log      *slog.Logger
	fallback FallbackOpener

	mu      sync.RWMutex
	handler Handler
	tabs    map[TabID]Endpoint
	active  TabID
}

// New creates an empty hub. Register a handler before sending requests.
func New(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		log:  log,
		tabs: make(map[TabID]Endpoint),
	}
}

// SetHandler installs the background request handler.
func (h *Hub) SetHandler(handler Handler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handler = handler
}

// SetFallbackOpener installs the opener used when no tab can receive an
// event.
func (h *Hub) SetFallbackOpener(fn FallbackOpener) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.fallback = fn
}

// RegisterTab attaches ep under id. The first registered tab becomes
// the active one.
func (h *Hub) RegisterTab(id TabID, ep Endpoint) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.tabs[id] = ep
	if h.active == "" {
		h.active = id
	}
}

// UnregisterTab detaches id. If it was the active tab, there is no
// active tab until SetActiveTab is called again.
func (h *Hub) UnregisterTab(id TabID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.tabs, id)
	if h.active == id {
		h.active = ""
	}
}

// SetActiveTab marks id as the focused tab. Unknown ids are ignored.
func (h *Hub) SetActiveTab(id TabID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.tabs[id]; ok {
		h.active = id
	}
}

// ActiveTab returns the focused tab's id, or "" when none is focused.
func (h *Hub) ActiveTab() TabID {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.active
}

// Send routes req to the background handler and returns its response.
// A panicking handler becomes an error response rather than taking the
// whole process down with it.
func (h *Hub) Send(ctx context.Context, from TabID, req message.Request) (resp message.Response) {
	h.mu.RLock()
	handler := h.handler
	h.mu.RUnlock()

	if handler == nil {
		return message.Error(errors.New("no request handler registered"))
	}

	defer func() {
		if r := recover(); r != nil {
			h.log.Error("request handler panicked", "type", req.Type, "panic", r)
			resp = message.Error(fmt.Errorf("handler panic: %v", r))
		}
	}()
	return handler(ctx, from, req)
}

// Broadcast delivers event to every registered tab. Each delivery is
// independent: a tab that errors is logged and skipped, never blocking
// or failing the others. Broadcast itself only fails when the context
// is done before delivery starts.
func (h *Hub) Broadcast(ctx context.Context, event message.TabEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	h.mu.RLock()
	targets := make(map[TabID]Endpoint, len(h.tabs))
	for id, ep := range h.tabs {
		targets[id] = ep
	}
	h.mu.RUnlock()

	var wg sync.WaitGroup
	for id, ep := range targets {
		wg.Add(1)
		go func(id TabID, ep Endpoint) {
			defer wg.Done()
			if err := h.deliver(ctx, id, ep, event); err != nil {
				h.log.Warn("broadcast delivery failed", "tab", id, "event", event.Type, "error", err)
			}
		}(id, ep)
	}
	wg.Wait()
	return nil
}

// SendToActiveTab delivers event to the focused tab. When no tab is
// focused, or delivery fails, the fallback opener (if any) gets a
// chance to open a fresh surface for the event.
func (h *Hub) SendToActiveTab(ctx context.Context, event message.TabEvent) error {
	h.mu.RLock()
	active := h.active
	ep := h.tabs[active]
	fallback := h.fallback
	h.mu.RUnlock()

	var deliverErr error
	if ep != nil {
		deliverErr = h.deliver(ctx, active, ep, event)
		if deliverErr == nil {
			return nil
		}
	} else {
		deliverErr = ErrNoReceiver
	}

	if fallback != nil {
		h.log.Info("falling back to a new surface", "event", event.Type, "cause", deliverErr)
		return fallback(ctx, event)
	}
	return deliverErr
}

// deliver invokes one endpoint, converting a panic into an error so one
// broken tab cannot poison a fan-out.
func (h *Hub) deliver(ctx context.Context, id TabID, ep Endpoint, event message.TabEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tab %s panicked: %v", id, r)
		}
	}()
	return ep.Deliver(ctx, event)
}
