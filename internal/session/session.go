// Package session implements the state machine behind one review
// overlay: which screen is showing, which card is under review, and
// which transitions are legal from where.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/blobsey/flashtoll/internal/api"
)

// Backend is everything a session needs from the rest of the system.
// All calls go through the background process; the session never
// touches the ledger or the remote API directly.
type Backend interface {
	// Redeem folds the accrued time grant into the next review time.
	Redeem(ctx context.Context) (time.Time, time.Duration, error)

	// CloseReviewOverlays tells every tab still in the review flow to
	// tear its overlay down.
	CloseReviewOverlays(ctx context.Context) error

	// Review submits a numeric grade and returns the card's new state.
	Review(ctx context.Context, cardID string, grade int) (*api.Flashcard, error)

	// Edit updates a card's content and returns the stored copy.
	Edit(ctx context.Context, card *api.Flashcard) (*api.Flashcard, error)

	// Delete removes a card.
	Delete(ctx context.Context, cardID string) error

	// List returns every card in deck.
	List(ctx context.Context, deck string) ([]api.Flashcard, error)

	// CachedCard returns the prefetched next card, nil when none.
	CachedCard(ctx context.Context) (*api.Flashcard, error)

	// CacheNext fetches and caches the next due card.
	CacheNext(ctx context.Context, deck string) (*api.Flashcard, error)
}

// Status reports whether the overlay should stay up.
type Status int

const (
	// StatusActive means the overlay stays open.
	StatusActive Status = iota

	// StatusClosed means the session ended and the overlay comes down.
	StatusClosed

	// StatusReevaluate means the overlay comes down and the tab should
	// re-run the interruption check, which may open a fresh one.
	StatusReevaluate
)

// ErrInvalidTransition reports an operation attempted from the wrong
// screen. The session refuses rather than guessing: a mistimed keypress
// must never grade or redeem anything.
type ErrInvalidTransition struct {
	Op     string
	Screen Screen
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("cannot %s from the %s screen", e.Op, e.Screen)
}

// ErrNoCardDue reports that no further card is available to review.
var ErrNoCardDue = fmt.Errorf("no flashcard available")

// Session is one overlay's state machine. Not safe for concurrent use;
// drive it from a single event loop.
type Session struct {
	backend Backend
	nav     *stack
	status  Status

	// card is snapshotted when the session starts showing it. Later
	// prefetches never swap the card mid-review; only Another moves on.
	card  *api.Flashcard
	grade string

	editFront string
	editBack  string

	listCards   []api.Flashcard
	listLoading bool
	listCancel  context.CancelFunc
}

// New starts a session showing card on initial (ScreenFlashcard when
// empty). The grade and review screens require a card snapshot; asked
// to start there without one, the session starts at the card front
// instead, where the no-card path refuses safely.
func New(backend Backend, card *api.Flashcard, initial Screen) *Session {
	if initial == "" {
		initial = ScreenFlashcard
	}
	if card == nil && (initial == ScreenGrade || initial == ScreenReview) {
		initial = ScreenFlashcard
	}
	return &Session{
		backend: backend,
		nav:     newStack(initial),
		card:    card,
	}
}

// Active returns the screen currently showing.
func (s *Session) Active() Screen { return s.nav.Active() }

// Status reports whether the overlay should stay up.
func (s *Session) Status() Status { return s.status }

// Card returns the card under review.
func (s *Session) Card() *api.Flashcard { return s.card }

// GradeName returns the selected grade's name, empty before grading.
func (s *Session) GradeName() string { return s.grade }

// ListCards returns the loaded deck listing.
func (s *Session) ListCards() []api.Flashcard { return s.listCards }

// ListLoading reports whether a deck listing is still in flight.
func (s *Session) ListLoading() bool { return s.listLoading }

// EditContent returns the edit buffer.
func (s *Session) EditContent() (front, back string) {
	return s.editFront, s.editBack
}

// Flip reveals the card's back and the grade choices.
func (s *Session) Flip() error {
	if s.nav.Active() != ScreenFlashcard {
		return &ErrInvalidTransition{Op: "flip", Screen: s.nav.Active()}
	}
	if s.card == nil {
		return ErrNoCardDue
	}
	s.nav.Push(ScreenGrade)
	return nil
}

// SelectGrade submits the named grade for the card under review and
// moves to the review summary.
func (s *Session) SelectGrade(ctx context.Context, name string) error {
	if s.nav.Active() != ScreenGrade {
		return &ErrInvalidTransition{Op: "grade", Screen: s.nav.Active()}
	}
	if s.card == nil {
		return ErrNoCardDue
	}
	value, ok := api.GradeValue(name)
	if !ok {
		return fmt.Errorf("unknown grade %q", name)
	}

	updated, err := s.backend.Review(ctx, s.card.CardID, value)
	if err != nil {
		return err
	}
	if updated != nil {
		s.card = updated
	}
	s.grade = name
	s.nav.Push(ScreenReview)
	return nil
}

// Another moves on to the next due card, restarting at the card front.
func (s *Session) Another(ctx context.Context) error {
	if s.nav.Active() != ScreenReview {
		return &ErrInvalidTransition{Op: "continue", Screen: s.nav.Active()}
	}

	next, err := s.backend.CachedCard(ctx)
	if err != nil {
		return err
	}
	if next == nil || (s.card != nil && next.CardID == s.card.CardID) {
		next, err = s.backend.CacheNext(ctx, "")
		if err != nil {
			return err
		}
	}
	if next == nil {
		return ErrNoCardDue
	}

	s.card = next
	s.grade = ""
	s.nav.Reset(ScreenFlashcard)
	return nil
}

// Confirm redeems the earned time and ends the session everywhere: this
// tab's overlay closes and every other tab still in the review flow is
// told to close too.
func (s *Session) Confirm(ctx context.Context) error {
	if s.nav.Active() != ScreenReview {
		return &ErrInvalidTransition{Op: "confirm", Screen: s.nav.Active()}
	}
	if _, _, err := s.backend.Redeem(ctx); err != nil {
		return err
	}
	if err := s.backend.CloseReviewOverlays(ctx); err != nil {
		return err
	}
	s.status = StatusClosed
	return nil
}

// Edit opens the edit screen seeded with the card's current content.
func (s *Session) Edit() error {
	active := s.nav.Active()
	if active != ScreenGrade && active != ScreenReview {
		return &ErrInvalidTransition{Op: "edit", Screen: active}
	}
	if s.card == nil {
		return ErrNoCardDue
	}
	s.editFront = s.card.CardFront
	s.editBack = s.card.CardBack
	s.nav.Push(ScreenEdit)
	return nil
}

// SetEditContent updates the edit buffer.
func (s *Session) SetEditContent(front, back string) error {
	if s.nav.Active() != ScreenEdit {
		return &ErrInvalidTransition{Op: "edit content", Screen: s.nav.Active()}
	}
	s.editFront = front
	s.editBack = back
	return nil
}

// SaveEdit persists the edit buffer and returns to the previous screen.
func (s *Session) SaveEdit(ctx context.Context) error {
	if s.nav.Active() != ScreenEdit {
		return &ErrInvalidTransition{Op: "save", Screen: s.nav.Active()}
	}

	draft := *s.card
	draft.CardFront = s.editFront
	draft.CardBack = s.editBack
	updated, err := s.backend.Edit(ctx, &draft)
	if err != nil {
		return err
	}
	if updated != nil {
		s.card = updated
	}
	s.nav.Pop()
	return nil
}

// CancelEdit discards the edit buffer and returns to the previous screen.
func (s *Session) CancelEdit() error {
	if s.nav.Active() != ScreenEdit {
		return &ErrInvalidTransition{Op: "cancel", Screen: s.nav.Active()}
	}
	s.editFront, s.editBack = "", ""
	s.nav.Pop()
	return nil
}

// DeleteCard removes the card under review. With its card gone the
// session cannot continue, so the overlay closes and the tab re-checks
// whether another review is due.
func (s *Session) DeleteCard(ctx context.Context) error {
	if s.nav.Active() != ScreenEdit {
		return &ErrInvalidTransition{Op: "delete", Screen: s.nav.Active()}
	}
	if err := s.backend.Delete(ctx, s.card.CardID); err != nil {
		return err
	}
	s.status = StatusReevaluate
	return nil
}

// OpenList pushes the deck listing and returns the context the load
// must run under. Leaving the list screen cancels that context, so a
// load overtaken by navigation is discarded, not applied.
func (s *Session) OpenList(parent context.Context) (context.Context, error) {
	active := s.nav.Active()
	if active != ScreenEdit && active != ScreenReview {
		return nil, &ErrInvalidTransition{Op: "open list", Screen: active}
	}
	s.nav.Push(ScreenList)
	s.listCards = nil
	s.listLoading = true
	ctx, cancel := context.WithCancel(parent)
	s.listCancel = cancel
	return ctx, nil
}

// LoadList fetches the deck listing. Run it on a separate goroutine
// under the context OpenList returned, then hand the result to
// ApplyListResult on the session's own loop.
func (s *Session) LoadList(ctx context.Context, deck string) ([]api.Flashcard, error) {
	return s.backend.List(ctx, deck)
}

// ApplyListResult stores a finished deck load. Results from a canceled
// load are dropped; the loading flag clears either way.
func (s *Session) ApplyListResult(ctx context.Context, cards []api.Flashcard, err error) error {
	s.listLoading = false
	if ctx.Err() != nil {
		return nil
	}
	if err != nil {
		return err
	}
	s.listCards = cards
	return nil
}

// Back pops the current screen. Leaving the last screen closes the
// overlay and asks the tab to re-check whether a review is still due.
func (s *Session) Back() {
	if s.nav.Active() == ScreenList && s.listCancel != nil {
		s.listCancel()
		s.listCancel = nil
		s.listLoading = false
	}
	if !s.nav.Pop() {
		s.status = StatusReevaluate
	}
}
