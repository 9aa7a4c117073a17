// Package browse renders the simulated browsing surface: an address
// bar and a handful of destination shortcuts standing in for the pages
// a review overlay can interrupt.
package browse

import (
	"fmt"
	"strings"

	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"

	"github.com/blobsey/flashtoll/internal/screen"
	"github.com/blobsey/flashtoll/internal/ui/components"
	"github.com/blobsey/flashtoll/internal/ui/layout"
	"github.com/blobsey/flashtoll/internal/ui/theme"
)

// NavigateMsg asks the application to move the tab to URL.
type NavigateMsg struct {
	URL string
}

// BrowseScreen is the root screen: the page the tab is on.
type BrowseScreen struct {
	address    components.TextInput
	shortcuts  components.Menu
	currentURL string
	notice     string
}

var _ screen.Screen = (*BrowseScreen)(nil)

// New creates a browse screen with url in the address bar.
func New(url string, shortcuts []string) *BrowseScreen {
	items := make([]components.MenuItem, 0, len(shortcuts))
	for _, s := range shortcuts {
		target := s
		items = append(items, components.MenuItem{
			Label: target,
			Action: func() tea.Cmd {
				return func() tea.Msg { return NavigateMsg{URL: target} }
			},
		})
	}

	return &BrowseScreen{
		address:    components.NewTextInput("Address", "https://", url),
		shortcuts:  components.NewMenu(items),
		currentURL: url,
	}
}

// SetURL records the page the tab actually landed on.
func (b *BrowseScreen) SetURL(url string) {
	b.currentURL = url
}

// SetNotice shows a transient status line (errors, login state).
func (b *BrowseScreen) SetNotice(notice string) {
	b.notice = notice
}

func (b *BrowseScreen) Init() tea.Cmd {
	return nil
}

func (b *BrowseScreen) Update(msg tea.Msg) (screen.Screen, tea.Cmd) {
	if kmsg, ok := msg.(tea.KeyMsg); ok {
		switch kmsg.String() {
		case "/":
			if !b.address.Focused() {
				return b, b.address.Focus()
			}
		case "enter":
			if b.address.Focused() {
				url := strings.TrimSpace(b.address.Value())
				b.address.Blur()
				if url == "" {
					return b, nil
				}
				return b, func() tea.Msg { return NavigateMsg{URL: url} }
			}
		case "esc":
			if b.address.Focused() {
				b.address.Blur()
				return b, nil
			}
		}
	}

	var cmd tea.Cmd
	if b.address.Focused() {
		b.address, cmd = b.address.Update(msg)
		return b, cmd
	}
	b.shortcuts, cmd = b.shortcuts.Update(msg)
	return b, cmd
}

func (b *BrowseScreen) View(width, height int) string {
	var sb strings.Builder

	sb.WriteString(b.address.View())
	sb.WriteString("\n\n")

	sb.WriteString(theme.Subtitle.Render("Shortcuts") + "\n")
	sb.WriteString(b.shortcuts.View())
	sb.WriteString("\n")

	page := theme.Card.Width(width - 8).Render(
		theme.Body.Render(fmt.Sprintf("Viewing  %s", b.currentURL)) + "\n\n" +
			theme.Hint.Render("Reviews interrupt here once the earned time runs out."),
	)
	sb.WriteString(page)

	if b.notice != "" {
		sb.WriteString("\n\n" + theme.Hint.Render(b.notice))
	}

	return lipgloss.NewStyle().Padding(1, 4).Render(sb.String())
}

func (b *BrowseScreen) Title() string {
	return b.currentURL
}

// KeyHints implements screen.KeyHintProvider.
func (b *BrowseScreen) KeyHints() []layout.KeyHint {
	if b.address.Focused() {
		return []layout.KeyHint{
			{Key: "Enter", Description: "Go"},
			{Key: "Esc", Description: "Cancel"},
		}
	}
	return []layout.KeyHint{
		{Key: "↑↓", Description: "Shortcuts"},
		{Key: "Enter", Description: "Visit"},
		{Key: "/", Description: "Address bar"},
		{Key: "Ctrl+C", Description: "Quit"},
	}
}
