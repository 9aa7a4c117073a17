package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/blobsey/flashtoll/internal/store"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, store.KV) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	kv := store.NewMemory()
	if err := kv.Set(context.Background(), store.KeyAPIBaseURL, srv.URL); err != nil {
		t.Fatalf("set base url: %v", err)
	}

	c, err := New(kv)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c, kv
}

func TestClientNoBaseURL(t *testing.T) {
	c, err := New(store.NewMemory())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	_, err = c.NextFlashcard(context.Background(), "")
	if !errors.Is(err, ErrNoBaseURL) {
		t.Fatalf("expected ErrNoBaseURL, got %v", err)
	}
}

func TestNextFlashcard(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/next" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.URL.Query().Get("deck"); got != "spanish" {
			t.Errorf("deck = %q, want spanish", got)
		}
		fmt.Fprint(w, `{"flashcard": {"card_id": "c1", "card_front": "hola", "card_back": "hello"}}`)
	}))

	card, err := c.NextFlashcard(context.Background(), "spanish")
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if card == nil || card.CardID != "c1" || card.CardFront != "hola" {
		t.Fatalf("unexpected card %+v", card)
	}
}

func TestNextFlashcardNull(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"flashcard": null}`)
	}))

	card, err := c.NextFlashcard(context.Background(), "")
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if card != nil {
		t.Fatalf("expected nil card when deck is exhausted, got %+v", card)
	}
}

func TestNextFlashcardInvalidPayload(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"flashcard": {"card_front": "missing id"}}`)
	}))

	_, err := c.NextFlashcard(context.Background(), "")
	var invalid *ErrInvalidPayload
	if !errors.As(err, &invalid) {
		t.Fatalf("expected ErrInvalidPayload, got %v", err)
	}
	if invalid.Schema != "flashcard" {
		t.Errorf("schema = %q, want flashcard", invalid.Schema)
	}
}

func TestReviewFlashcardSendsGrade(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/review/c1" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var body struct {
			Grade int `json:"grade"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body.Grade != 3 {
			t.Errorf("grade = %d, want 3", body.Grade)
		}
		fmt.Fprint(w, `{"flashcard": {"card_id": "c1", "card_front": "f", "card_back": "b"}}`)
	}))

	card, err := c.ReviewFlashcard(context.Background(), "c1", 3)
	if err != nil {
		t.Fatalf("review: %v", err)
	}
	if card.CardID != "c1" {
		t.Fatalf("unexpected card %+v", card)
	}
}

func TestErrorCarriesStatusAndBody(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"detail": "not logged in"}`)
	}))

	_, err := c.UserData(context.Background())
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if apiErr.Status != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", apiErr.Status)
	}
	if apiErr.Body == "" {
		t.Error("expected body to be carried")
	}
}

func TestUserDataRoundTrip(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data": {
			"max_new_cards": 10,
			"deck": "spanish",
			"decks": ["spanish", "go"],
			"blocked_sites": [{"url": "https://example.com", "active": true}]
		}}`)
	}))

	data, err := c.UserData(context.Background())
	if err != nil {
		t.Fatalf("user data: %v", err)
	}
	if data.Deck != "spanish" || len(data.BlockedSites) != 1 || !data.BlockedSites[0].Active {
		t.Fatalf("unexpected user data %+v", data)
	}
}

func TestValidateAuthenticationRejectsUnexpectedMessage(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"message": "something else"}`)
	}))

	if err := c.ValidateAuthentication(context.Background()); err == nil {
		t.Fatal("expected error for unexpected message")
	}
}

func TestListFlashcardsPaginates(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("cursor") {
		case "":
			fmt.Fprint(w, `{"flashcards": [{"card_id": "a"}, {"card_id": "b"}], "next_cursor": "p2"}`)
		case "p2":
			fmt.Fprint(w, `{"flashcards": [{"card_id": "c"}], "next_cursor": ""}`)
		default:
			t.Errorf("unexpected cursor %q", r.URL.Query().Get("cursor"))
		}
	}))

	cards, err := c.ListFlashcards(context.Background(), "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(cards) != 3 {
		t.Fatalf("got %d cards, want 3", len(cards))
	}
	if cards[0].CardID != "a" || cards[2].CardID != "c" {
		t.Fatalf("pages out of order: %+v", cards)
	}
}

func TestListFlashcardsStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	pages := 0

	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pages++
		// Cancel after the first page; the loop must not fetch another.
		cancel()
		fmt.Fprint(w, `{"flashcards": [{"card_id": "a"}], "next_cursor": "more"}`)
	}))

	_, err := c.ListFlashcards(ctx, "")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if pages != 1 {
		t.Fatalf("fetched %d pages after cancel, want 1", pages)
	}
}
