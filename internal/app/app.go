// Package app is the root Bubble Tea model: the simulated browsing
// surface at the bottom of the stack, with a review overlay pushed on
// top whenever the tab mounts one.
package app

import (
	"context"
	"fmt"
	"os"
	"time"

	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"

	"github.com/blobsey/flashtoll/internal/ledger"
	"github.com/blobsey/flashtoll/internal/router"
	"github.com/blobsey/flashtoll/internal/screen"
	"github.com/blobsey/flashtoll/internal/screens/browse"
	"github.com/blobsey/flashtoll/internal/screens/overlay"
	"github.com/blobsey/flashtoll/internal/session"
	"github.com/blobsey/flashtoll/internal/store"
	"github.com/blobsey/flashtoll/internal/tab"
	"github.com/blobsey/flashtoll/internal/ui/layout"
)

// overlayOpenedMsg and overlayClosedMsg arrive from the tab observer,
// possibly off a broadcast goroutine.
type overlayOpenedMsg struct{ sess *session.Session }
type overlayClosedMsg struct{}

// navigatedMsg reports a finished page navigation.
type navigatedMsg struct {
	url string
	err error
}

// tickMsg refreshes the toll state in the header.
type tickMsg time.Time

// tollChangedMsg arrives from the store watcher when a ledger key
// changes, so the header updates without waiting for the next tick.
type tollChangedMsg struct{}

// tollStateMsg carries fresh ledger readings for the header.
type tollStateMsg struct {
	grant time.Duration
	next  time.Time
}

// Observer bridges tab overlay callbacks into the running program.
type Observer struct {
	send func(tea.Msg)
}

// NewObserver creates a detached observer; call Attach once the
// program exists.
func NewObserver() *Observer {
	return &Observer{}
}

// Attach connects the observer to the program's message queue.
func (o *Observer) Attach(send func(tea.Msg)) {
	o.send = send
}

// OverlayOpened implements tab.Observer.
func (o *Observer) OverlayOpened(s *session.Session) {
	if o.send != nil {
		o.send(overlayOpenedMsg{sess: s})
	}
}

// OverlayClosed implements tab.Observer.
func (o *Observer) OverlayClosed() {
	if o.send != nil {
		o.send(overlayClosedMsg{})
	}
}

// AppModel is the root Bubble Tea model.
type AppModel struct {
	tab     *tab.Tab
	ledger  *ledger.Ledger
	router  *router.Router
	browser *browse.BrowseScreen

	grant  time.Duration
	next   time.Time
	width  int
	height int
}

// New creates the root model around an already-wired tab.
func New(tb *tab.Tab, led *ledger.Ledger, startURL string, shortcuts []string) AppModel {
	browser := browse.New(startURL, shortcuts)
	return AppModel{
		tab:     tb,
		ledger:  led,
		router:  router.New(browser),
		browser: browser,
	}
}

func (m AppModel) Init() tea.Cmd {
	return tea.Batch(m.readToll(), tick())
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// readToll loads the header's ledger readings off the update loop.
func (m AppModel) readToll() tea.Cmd {
	led := m.ledger
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		grant, err := led.ExistingTimeGrant(ctx)
		if err != nil {
			return tollStateMsg{}
		}
		next, err := led.NextFlashcardTime(ctx)
		if err != nil {
			return tollStateMsg{grant: grant}
		}
		return tollStateMsg{grant: grant, next: next}
	}
}

func (m AppModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tickMsg:
		return m, tea.Batch(m.readToll(), tick())

	case tollChangedMsg:
		return m, m.readToll()

	case tollStateMsg:
		m.grant = msg.grant
		m.next = msg.next
		return m, nil

	case browse.NavigateMsg:
		tb := m.tab
		url := msg.URL
		return m, func() tea.Msg {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			return navigatedMsg{url: url, err: tb.Navigate(ctx, url)}
		}

	case navigatedMsg:
		if msg.err != nil {
			m.browser.SetNotice(fmt.Sprintf("navigation failed: %v", msg.err))
			return m, nil
		}
		m.browser.SetNotice("")
		m.browser.SetURL(msg.url)
		return m, nil

	case overlayOpenedMsg:
		if _, up := m.router.Active().(*overlay.OverlayScreen); !up {
			return m, m.router.Push(overlay.New(msg.sess))
		}
		return m, nil

	case overlayClosedMsg:
		if _, up := m.router.Active().(*overlay.OverlayScreen); up {
			return m, m.router.Pop()
		}
		return m, nil

	case overlay.ChangedMsg:
		// A session operation ran; let the tab apply the session's
		// status (teardown, or teardown plus re-check).
		tb := m.tab
		return m, func() tea.Msg {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := tb.AfterOperation(ctx); err != nil {
				return navigatedMsg{url: tb.URL(), err: err}
			}
			return nil
		}

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
	}

	cmd := m.router.Update(msg)
	return m, cmd
}

func (m AppModel) View() tea.View {
	v := tea.NewView("")
	v.AltScreen = true

	if m.width == 0 || m.height == 0 {
		return v
	}

	if layout.IsTooSmall(m.width, m.height) {
		v.SetContent(layout.RenderMinSizeMessage(m.width, m.height))
		return v
	}

	active := m.router.Active()
	title := ""
	if active != nil {
		title = active.Title()
	}

	header := layout.RenderHeader(title, m.grant, m.next, m.width)

	var footerHints []layout.KeyHint
	if provider, ok := active.(screen.KeyHintProvider); ok {
		footerHints = provider.KeyHints()
	} else {
		footerHints = []layout.KeyHint{
			{Key: "Ctrl+C", Description: "Quit"},
		}
	}

	footer := layout.RenderFooter(footerHints, m.width)

	headerHeight := lipgloss.Height(header)
	footerHeight := lipgloss.Height(footer)
	contentHeight := m.height - headerHeight - footerHeight
	if contentHeight < 0 {
		contentHeight = 0
	}

	content := m.router.View(m.width, contentHeight)
	frame := layout.RenderFrame(header, content, footer, m.width, m.height)

	v.SetContent(frame)
	return v
}

// Run starts the Bubble Tea program over a wired tab. The observer must
// be the one registered with the tab; kv is watched so ledger writes
// from any context show up in the header right away.
func Run(tb *tab.Tab, led *ledger.Ledger, kv store.KV, obs *Observer, startURL string, shortcuts []string) error {
	p := tea.NewProgram(New(tb, led, startURL, shortcuts))
	obs.Attach(p.Send)
	cancel := kv.Watch(func(ch store.Change) {
		if ch.Key == store.KeyExistingTimeGrant || ch.Key == store.KeyNextFlashcardTime {
			p.Send(tollChangedMsg{})
		}
	})
	defer cancel()
	_, err := p.Run()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error running program:", err)
		return err
	}
	return nil
}
