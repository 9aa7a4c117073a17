package api

import (
	"context"
	"net/http"
	"net/url"
)

// ListFlashcards fetches every card in deck (empty deck means all decks),
// following the cursor pagination of the /list endpoint.
//
// The context doubles as the cancellation token: it is checked after
// every page, so a caller that switches decks mid-load cancels the old
// context and the superseded fetch stops at the next page boundary.
// Cancellation surfaces as context.Canceled; callers discard those
// results silently rather than reporting an error.
func (c *Client) ListFlashcards(ctx context.Context, deck string) ([]Flashcard, error) {
	var all []Flashcard
	cursor := ""

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		path := "/list?deck=" + url.QueryEscape(deck)
		if cursor != "" {
			path += "&cursor=" + url.QueryEscape(cursor)
		}

		var out struct {
			Flashcards []Flashcard `json:"flashcards"`
			NextCursor string      `json:"next_cursor"`
		}
		if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
			return nil, err
		}

		all = append(all, out.Flashcards...)
		if out.NextCursor == "" {
			return all, nil
		}
		cursor = out.NextCursor
	}
}
