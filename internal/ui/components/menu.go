package components

import (
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"

	"github.com/blobsey/flashtoll/internal/ui/theme"
)

// MenuItem represents a single item in a navigation menu.
type MenuItem struct {
	Label    string
	Action   func() tea.Cmd
	Disabled bool
}

// Menu is a navigation menu, vertical by default. Horizontal menus are
// used for the grade row under a flipped card.
type Menu struct {
	Items      []MenuItem
	Selected   int
	Horizontal bool
}

// NewMenu creates a new menu with the given items.
func NewMenu(items []MenuItem) Menu {
	selected := 0
	for i, item := range items {
		if !item.Disabled {
			selected = i
			break
		}
	}
	return Menu{
		Items:    items,
		Selected: selected,
	}
}

// NewHorizontalMenu creates a menu laid out in a single row.
func NewHorizontalMenu(items []MenuItem) Menu {
	m := NewMenu(items)
	m.Horizontal = true
	return m
}

// Init returns nil (no initial command).
func (m Menu) Init() tea.Cmd {
	return nil
}

// Update handles keyboard navigation.
func (m Menu) Update(msg tea.Msg) (Menu, tea.Cmd) {
	kmsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	prev, next := "up", "down"
	prevAlt, nextAlt := "k", "j"
	if m.Horizontal {
		prev, next = "left", "right"
		prevAlt, nextAlt = "h", "l"
	}

	switch kmsg.String() {
	case prev, prevAlt:
		for i := m.Selected - 1; i >= 0; i-- {
			if !m.Items[i].Disabled {
				m.Selected = i
				break
			}
		}
	case next, nextAlt:
		for i := m.Selected + 1; i < len(m.Items); i++ {
			if !m.Items[i].Disabled {
				m.Selected = i
				break
			}
		}
	case "enter":
		if m.Selected >= 0 && m.Selected < len(m.Items) {
			item := m.Items[m.Selected]
			if item.Action != nil && !item.Disabled {
				return m, item.Action()
			}
		}
	}

	return m, nil
}

// View renders the menu.
func (m Menu) View() string {
	if m.Horizontal {
		return m.viewRow()
	}

	var s string
	for i, item := range m.Items {
		if i == m.Selected {
			s += lipgloss.NewStyle().
				Foreground(theme.Primary).
				Bold(true).
				Render("  ▸ "+item.Label) + "\n"
		} else {
			s += lipgloss.NewStyle().
				Foreground(theme.Text).
				Render("    "+item.Label) + "\n"
		}
	}
	return s
}

func (m Menu) viewRow() string {
	parts := make([]string, 0, len(m.Items))
	for i, item := range m.Items {
		label := " " + item.Label + " "
		if i == m.Selected {
			parts = append(parts, theme.ButtonActive.Render(label))
		} else {
			parts = append(parts, theme.ButtonInactive.Render(label))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Center, parts...)
}
