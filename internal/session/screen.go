package session

// Screen identifies one view of a review overlay. Navigation between
// screens is a push-down stack so that Back always returns to the exact
// screen the user came from.
type Screen string

const (
	ScreenFlashcard Screen = "flashcard" // front of the due card
	ScreenGrade     Screen = "grade"     // back of the card plus grade buttons
	ScreenReview    Screen = "review"    // post-grade summary, confirm or continue
	ScreenEdit      Screen = "edit"      // edit the current card's content
	ScreenList      Screen = "list"      // browse all cards in the deck
)

// PartOfReviewFlow reports whether s belongs to the core review loop.
// Overlays showing these screens are torn down by a global close; edit
// and list overlays opened deliberately by the user are left alone.
func (s Screen) PartOfReviewFlow() bool {
	return s == ScreenFlashcard || s == ScreenGrade || s == ScreenReview
}

// stack is the navigation history, bottom first. The active screen is
// the top; popping past the bottom means the overlay should close.
type stack struct {
	screens []Screen
}

func newStack(initial Screen) *stack {
	return &stack{screens: []Screen{initial}}
}

// Push makes s the active screen.
func (st *stack) Push(s Screen) {
	st.screens = append(st.screens, s)
}

// Pop removes the active screen and reports whether a screen remains.
func (st *stack) Pop() bool {
	if len(st.screens) == 0 {
		return false
	}
	st.screens = st.screens[:len(st.screens)-1]
	return len(st.screens) > 0
}

// Active returns the top screen, or "" when the stack is empty.
func (st *stack) Active() Screen {
	if len(st.screens) == 0 {
		return ""
	}
	return st.screens[len(st.screens)-1]
}

// Replace swaps the active screen without growing the history.
func (st *stack) Replace(s Screen) {
	if len(st.screens) == 0 {
		st.screens = []Screen{s}
		return
	}
	st.screens[len(st.screens)-1] = s
}

// Reset discards the history and restarts at initial.
func (st *stack) Reset(initial Screen) {
	st.screens = st.screens[:0]
	st.screens = append(st.screens, initial)
}

// Depth returns the number of screens on the stack.
func (st *stack) Depth() int {
	return len(st.screens)
}
