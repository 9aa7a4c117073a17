package tab

import (
	"testing"
	"time"

	"github.com/blobsey/flashtoll/internal/api"
)

func TestShouldShowFlashcard(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	due := now.Add(-time.Minute)
	notYet := now.Add(time.Minute)
	card := &api.Flashcard{CardID: "c"}
	sites := []api.BlockedSite{
		{URL: "reddit.com", Active: true},
		{URL: "news.example.com", Active: false},
	}

	cases := []struct {
		name string
		url  string
		card *api.Flashcard
		next time.Time
		want bool
	}{
		{"bare host matches scheme and path", "https://reddit.com/r/golang", card, due, true},
		{"exact match", "reddit.com", card, due, true},
		{"subdomain", "https://old.reddit.com", card, due, true},
		{"time exactly due", "https://reddit.com", card, now, true},
		{"unblocked site", "https://docs.example.org", card, due, false},
		{"inactive entry", "https://news.example.com/story", card, due, false},
		{"no card", "https://reddit.com", nil, due, false},
		{"time not up", "https://reddit.com", card, notYet, false},
		{"empty url", "", card, due, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ShouldShowFlashcard(sites, tc.url, tc.card, now, tc.next)
			if got != tc.want {
				t.Errorf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestFullReviewLoopPredicate(t *testing.T) {
	// The entry is a bare host while the page carries scheme and path;
	// the overlay must still interrupt when a card is due.
	sites := []api.BlockedSite{{URL: "example.com", Active: true}}
	card := &api.Flashcard{CardID: "A"}
	now := time.Now()

	if !ShouldShowFlashcard(sites, "https://example.com/page", card, now, now.Add(-time.Second)) {
		t.Fatal("expected a due review on a blocked page to interrupt")
	}
}

func TestShouldShowFlashcardIsPure(t *testing.T) {
	sites := []api.BlockedSite{{URL: "https://reddit.com", Active: true}}
	card := &api.Flashcard{CardID: "c"}
	now := time.Now()

	first := ShouldShowFlashcard(sites, "https://reddit.com", card, now, now)
	for i := 0; i < 100; i++ {
		if ShouldShowFlashcard(sites, "https://reddit.com", card, now, now) != first {
			t.Fatal("verdict changed between identical calls")
		}
	}
	if sites[0].URL != "https://reddit.com" || !sites[0].Active {
		t.Fatal("inputs were mutated")
	}
}

func TestSiteBlockedIgnoresEmptyEntry(t *testing.T) {
	// An active entry with an empty URL would match everything.
	sites := []api.BlockedSite{{URL: "", Active: true}}
	if siteBlocked(sites, "https://anything.example") {
		t.Fatal("empty entry must not block the whole web")
	}
}
