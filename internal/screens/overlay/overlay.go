// Package overlay renders a review session on top of the page: the
// card front, the grade row, the post-review summary, and the edit and
// deck-list side trips. All state lives in the session; this screen
// only translates keys into session operations and draws the result.
package overlay

import (
	"context"
	"fmt"
	"strings"

	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"

	"github.com/blobsey/flashtoll/internal/api"
	"github.com/blobsey/flashtoll/internal/screen"
	"github.com/blobsey/flashtoll/internal/session"
	"github.com/blobsey/flashtoll/internal/ui/components"
	"github.com/blobsey/flashtoll/internal/ui/layout"
	"github.com/blobsey/flashtoll/internal/ui/theme"
)

// ChangedMsg tells the application a session operation ran, so it can
// reconcile the overlay with the session's status.
type ChangedMsg struct{}

// listLoadedMsg carries a finished deck load back to the update loop.
type listLoadedMsg struct {
	ctx   context.Context
	cards []api.Flashcard
	err   error
}

// OverlayScreen presents one review session.
type OverlayScreen struct {
	sess    *session.Session
	grades  components.Menu
	actions components.Menu
	front   components.TextInput
	back    components.TextInput
	notice  string
}

var _ screen.Screen = (*OverlayScreen)(nil)

// New creates the overlay for sess.
func New(sess *session.Session) *OverlayScreen {
	o := &OverlayScreen{sess: sess}

	gradeItems := make([]components.MenuItem, 0, len(api.Grades))
	for _, name := range api.Grades {
		grade := name
		gradeItems = append(gradeItems, components.MenuItem{
			Label:  grade,
			Action: func() tea.Cmd { return o.run(func() error { return sess.SelectGrade(context.Background(), grade) }) },
		})
	}
	o.grades = components.NewHorizontalMenu(gradeItems)

	o.actions = components.NewMenu([]components.MenuItem{
		{Label: "Keep reviewing", Action: func() tea.Cmd {
			return o.run(func() error { return sess.Another(context.Background()) })
		}},
		{Label: "Confirm and keep browsing", Action: func() tea.Cmd {
			return o.run(func() error { return sess.Confirm(context.Background()) })
		}},
		{Label: "Edit this card", Action: func() tea.Cmd {
			return o.run(o.enterEdit)
		}},
		{Label: "Browse deck", Action: func() tea.Cmd {
			return o.openList()
		}},
	})

	return o
}

// run executes a session operation, keeping refusals and failures as a
// notice instead of crashing the overlay.
func (o *OverlayScreen) run(op func() error) tea.Cmd {
	o.notice = ""
	if err := op(); err != nil {
		o.notice = err.Error()
	}
	return func() tea.Msg { return ChangedMsg{} }
}

func (o *OverlayScreen) enterEdit() error {
	if err := o.sess.Edit(); err != nil {
		return err
	}
	front, back := o.sess.EditContent()
	o.front = components.NewTextInput("Front", "question", front)
	o.back = components.NewTextInput("Back", "answer", back)
	o.front.Focus()
	return nil
}

func (o *OverlayScreen) openList() tea.Cmd {
	o.notice = ""
	ctx, err := o.sess.OpenList(context.Background())
	if err != nil {
		o.notice = err.Error()
		return func() tea.Msg { return ChangedMsg{} }
	}
	sess := o.sess
	return func() tea.Msg {
		cards, err := sess.LoadList(ctx, "")
		return listLoadedMsg{ctx: ctx, cards: cards, err: err}
	}
}

func (o *OverlayScreen) Init() tea.Cmd {
	return nil
}

func (o *OverlayScreen) Update(msg tea.Msg) (screen.Screen, tea.Cmd) {
	if loaded, ok := msg.(listLoadedMsg); ok {
		if err := o.sess.ApplyListResult(loaded.ctx, loaded.cards, loaded.err); err != nil {
			o.notice = err.Error()
		}
		return o, nil
	}

	kmsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return o, nil
	}

	switch o.sess.Active() {
	case session.ScreenFlashcard:
		switch kmsg.String() {
		case "enter", " ":
			return o, o.run(o.sess.Flip)
		case "esc":
			return o, o.runBack()
		}

	case session.ScreenGrade:
		switch kmsg.String() {
		case "e":
			return o, o.run(o.enterEdit)
		case "esc":
			return o, o.runBack()
		default:
			var cmd tea.Cmd
			o.grades, cmd = o.grades.Update(msg)
			return o, cmd
		}

	case session.ScreenReview:
		if kmsg.String() == "esc" {
			return o, o.runBack()
		}
		var cmd tea.Cmd
		o.actions, cmd = o.actions.Update(msg)
		return o, cmd

	case session.ScreenEdit:
		return o.updateEdit(kmsg, msg)

	case session.ScreenList:
		if kmsg.String() == "esc" {
			return o, o.runBack()
		}
	}

	return o, nil
}

func (o *OverlayScreen) updateEdit(kmsg tea.KeyMsg, msg tea.Msg) (screen.Screen, tea.Cmd) {
	switch kmsg.String() {
	case "tab":
		if o.front.Focused() {
			o.front.Blur()
			return o, o.back.Focus()
		}
		o.back.Blur()
		return o, o.front.Focus()
	case "ctrl+s":
		return o, o.run(func() error {
			if err := o.sess.SetEditContent(o.front.Value(), o.back.Value()); err != nil {
				return err
			}
			return o.sess.SaveEdit(context.Background())
		})
	case "ctrl+d":
		return o, o.run(func() error { return o.sess.DeleteCard(context.Background()) })
	case "esc":
		return o, o.run(o.sess.CancelEdit)
	}

	var cmd tea.Cmd
	if o.front.Focused() {
		o.front, cmd = o.front.Update(msg)
	} else {
		o.back, cmd = o.back.Update(msg)
	}
	return o, cmd
}

func (o *OverlayScreen) runBack() tea.Cmd {
	o.notice = ""
	o.sess.Back()
	return func() tea.Msg { return ChangedMsg{} }
}

func (o *OverlayScreen) View(width, height int) string {
	var body string
	switch o.sess.Active() {
	case session.ScreenFlashcard:
		body = o.viewFlashcard()
	case session.ScreenGrade:
		body = o.viewGrade()
	case session.ScreenReview:
		body = o.viewReview()
	case session.ScreenEdit:
		body = o.viewEdit()
	case session.ScreenList:
		body = o.viewList(height)
	}

	if o.notice != "" {
		body += "\n\n" + theme.TimeExpired.Render(o.notice)
	}

	card := theme.OverlayCard.Width(min(width-10, 70)).Render(body)
	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, card)
}

func (o *OverlayScreen) viewFlashcard() string {
	card := o.sess.Card()
	if card == nil {
		return theme.Hint.Render("No card to show.")
	}
	return theme.Title.Render("Time for a review") + "\n\n" +
		theme.Body.Render(card.CardFront) + "\n\n" +
		theme.Hint.Render("Press enter to reveal the answer.")
}

func (o *OverlayScreen) viewGrade() string {
	card := o.sess.Card()
	if card == nil {
		return theme.Hint.Render("No card to show.")
	}
	return theme.Body.Render(card.CardFront) + "\n\n" +
		lipgloss.NewStyle().Foreground(theme.Secondary).Render(card.CardBack) + "\n\n" +
		theme.Subtitle.Render("How well did you remember?") + "\n" +
		o.grades.View()
}

func (o *OverlayScreen) viewReview() string {
	head := theme.TimeEarned.Render(fmt.Sprintf("Graded %s — one minute earned", o.sess.GradeName()))
	return head + "\n\n" + o.actions.View()
}

func (o *OverlayScreen) viewEdit() string {
	return theme.Title.Render("Edit card") + "\n\n" +
		o.front.View() + "\n\n" +
		o.back.View() + "\n\n" +
		theme.Hint.Render("tab switch field · ctrl+s save · ctrl+d delete · esc cancel")
}

func (o *OverlayScreen) viewList(height int) string {
	if o.sess.ListLoading() {
		return theme.Hint.Render("Loading deck…")
	}
	cards := o.sess.ListCards()
	if len(cards) == 0 {
		return theme.Hint.Render("The deck is empty.")
	}

	limit := height - 8
	if limit < 1 {
		limit = 1
	}
	var sb strings.Builder
	sb.WriteString(theme.Title.Render(fmt.Sprintf("Deck — %d cards", len(cards))) + "\n\n")
	for i, c := range cards {
		if i >= limit {
			sb.WriteString(theme.Hint.Render(fmt.Sprintf("… and %d more", len(cards)-i)))
			break
		}
		sb.WriteString(theme.Body.Render("· "+c.CardFront) + "\n")
	}
	return sb.String()
}

func (o *OverlayScreen) Title() string {
	return "Review"
}

// KeyHints implements screen.KeyHintProvider.
func (o *OverlayScreen) KeyHints() []layout.KeyHint {
	switch o.sess.Active() {
	case session.ScreenFlashcard:
		return []layout.KeyHint{
			{Key: "Enter", Description: "Reveal"},
			{Key: "Esc", Description: "Back"},
		}
	case session.ScreenGrade:
		return []layout.KeyHint{
			{Key: "←→", Description: "Grade"},
			{Key: "Enter", Description: "Submit"},
			{Key: "E", Description: "Edit"},
			{Key: "Esc", Description: "Back"},
		}
	case session.ScreenReview:
		return []layout.KeyHint{
			{Key: "↑↓", Description: "Choose"},
			{Key: "Enter", Description: "Select"},
			{Key: "Esc", Description: "Back"},
		}
	case session.ScreenEdit:
		return []layout.KeyHint{
			{Key: "Ctrl+S", Description: "Save"},
			{Key: "Ctrl+D", Description: "Delete"},
			{Key: "Esc", Description: "Cancel"},
		}
	default:
		return []layout.KeyHint{
			{Key: "Esc", Description: "Back"},
		}
	}
}
