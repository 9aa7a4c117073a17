package tab

import (
	"strings"
	"time"

	"github.com/blobsey/flashtoll/internal/api"
)

// ShouldShowFlashcard decides whether a review overlay should interrupt
// the page at currentURL. Pure function of its inputs, so every caller
// reaches the same verdict from the same state: the URL must match an
// active blocked-site entry, a card must be ready to show, and the
// paid-for time must have run out.
func ShouldShowFlashcard(blockedSites []api.BlockedSite, currentURL string, card *api.Flashcard, now, nextFlashcardTime time.Time) bool {
	if !siteBlocked(blockedSites, currentURL) {
		return false
	}
	if card == nil {
		return false
	}
	return !now.Before(nextFlashcardTime)
}

// siteBlocked reports whether currentURL matches an active entry.
// Entries are bare fragments like "example.com", matched by containment,
// so they hit regardless of scheme, subdomain, or path.
func siteBlocked(blockedSites []api.BlockedSite, currentURL string) bool {
	for _, site := range blockedSites {
		if site.Active && site.URL != "" && strings.Contains(currentURL, site.URL) {
			return true
		}
	}
	return false
}
