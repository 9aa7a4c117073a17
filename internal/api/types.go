package api

// Flashcard is the locally cached copy of a remote card. The remote API
// owns the authoritative record and all spaced-repetition fields; this
// copy only gates whether a review can be shown.
type Flashcard struct {
	CardID         string  `json:"card_id"`
	CardFront      string  `json:"card_front"`
	CardBack       string  `json:"card_back"`
	CardType       string  `json:"card_type"`
	ReviewDate     string  `json:"review_date"`
	Stability      float64 `json:"stability"`
	Difficulty     float64 `json:"difficulty"`
	LastReviewDate string  `json:"last_review_date"`
	UserID         string  `json:"user_id"`
}

// BlockedSite is one URL prefix where reviews may interrupt browsing.
type BlockedSite struct {
	URL    string `json:"url"`
	Active bool   `json:"active"`
}

// UserData is the remote-owned user configuration.
type UserData struct {
	MaxNewCards  int           `json:"max_new_cards"`
	Deck         string        `json:"deck"`
	Decks        []string      `json:"decks"`
	BlockedSites []BlockedSite `json:"blocked_sites"`
}

// Grades are the possible review grades, in ascending order of recall ease.
var Grades = []string{"Again", "Hard", "Good", "Easy"}

var gradeValues = map[string]int{
	"Again": 1,
	"Hard":  2,
	"Good":  3,
	"Easy":  4,
}

// GradeValue maps a grade name to the numeric grade the remote API expects.
func GradeValue(name string) (int, bool) {
	v, ok := gradeValues[name]
	return v, ok
}
