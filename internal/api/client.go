package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"github.com/blobsey/flashtoll/internal/store"
)

// ErrNoBaseURL indicates the apiBaseUrl store key has never been set.
var ErrNoBaseURL = errors.New("apiBaseUrl is not configured")

// Client talks to the remote flashcard API. The base URL is read from the
// shared store on every call, so a settings change takes effect without
// rebuilding the client. Session cookies live in the client's jar
// (the original sent credentials with every request).
type Client struct {
	kv   store.KV
	http *http.Client
}

// New creates a Client over kv.
func New(kv store.KV) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("cookie jar: %w", err)
	}
	return &Client{
		kv: kv,
		http: &http.Client{
			Jar:     jar,
			Timeout: 30 * time.Second,
		},
	}, nil
}

// UserData fetches the user's configuration.
func (c *Client) UserData(ctx context.Context) (*UserData, error) {
	var out struct {
		Data json.RawMessage `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/user-data", nil, &out); err != nil {
		return nil, err
	}
	return decodeUserData(out.Data)
}

// UpdateUserData writes the user's configuration and returns the stored copy.
func (c *Client) UpdateUserData(ctx context.Context, data *UserData) (*UserData, error) {
	var out struct {
		Data json.RawMessage `json:"data"`
	}
	if err := c.do(ctx, http.MethodPut, "/user-data", data, &out); err != nil {
		return nil, err
	}
	return decodeUserData(out.Data)
}

// NextFlashcard asks the API for the next due card in deck (empty deck
// means all decks). The spaced-repetition selection is entirely remote.
func (c *Client) NextFlashcard(ctx context.Context, deck string) (*Flashcard, error) {
	path := "/next?deck=" + url.QueryEscape(deck)
	var out struct {
		Flashcard json.RawMessage `json:"flashcard"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return decodeFlashcard(out.Flashcard)
}

// ReviewFlashcard submits a numeric grade (1-4) for cardID and returns
// the card's updated remote state.
func (c *Client) ReviewFlashcard(ctx context.Context, cardID string, grade int) (*Flashcard, error) {
	body := map[string]int{"grade": grade}
	var out struct {
		Flashcard json.RawMessage `json:"flashcard"`
	}
	if err := c.do(ctx, http.MethodPost, "/review/"+url.PathEscape(cardID), body, &out); err != nil {
		return nil, err
	}
	return decodeFlashcard(out.Flashcard)
}

// EditFlashcard updates a card's content and returns the stored copy.
func (c *Client) EditFlashcard(ctx context.Context, card *Flashcard) (*Flashcard, error) {
	body := map[string]string{
		"card_type":  card.CardType,
		"card_front": card.CardFront,
		"card_back":  card.CardBack,
	}
	var out struct {
		Flashcard json.RawMessage `json:"flashcard"`
	}
	if err := c.do(ctx, http.MethodPut, "/edit/"+url.PathEscape(card.CardID), body, &out); err != nil {
		return nil, err
	}
	return decodeFlashcard(out.Flashcard)
}

// DeleteFlashcard removes a card from the remote deck.
func (c *Client) DeleteFlashcard(ctx context.Context, cardID string) error {
	return c.do(ctx, http.MethodDelete, "/delete/"+url.PathEscape(cardID), nil, nil)
}

// ValidateAuthentication confirms the session cookie is still valid.
func (c *Client) ValidateAuthentication(ctx context.Context) error {
	var out struct {
		Message string `json:"message"`
	}
	if err := c.do(ctx, http.MethodGet, "/validate-authentication", nil, &out); err != nil {
		return err
	}
	if out.Message != "Authentication valid" {
		return fmt.Errorf("authentication failed: %q", out.Message)
	}
	return nil
}

// Logout invalidates the remote session.
func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/logout", nil, nil)
}

// BaseURL returns the configured API base URL.
func (c *Client) BaseURL(ctx context.Context) (string, error) {
	base, err := store.GetString(ctx, c.kv, store.KeyAPIBaseURL, "")
	if err != nil {
		return "", err
	}
	if base == "" {
		return "", ErrNoBaseURL
	}
	return base, nil
}

// do performs one request against the configured base URL. Non-2xx
// responses become *Error with the response body attached.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	base, err := c.BaseURL(ctx)
	if err != nil {
		return err
	}

	u, err := url.JoinPath(base, path)
	if err != nil {
		return fmt.Errorf("build url: %w", err)
	}
	// JoinPath escapes the query string; keep it verbatim.
	if i := indexQuery(path); i >= 0 {
		u, err = url.JoinPath(base, path[:i])
		if err != nil {
			return fmt.Errorf("build url: %w", err)
		}
		u += path[i:]
	}

	var reqBody io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &Error{Status: resp.StatusCode, Body: string(data)}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func indexQuery(path string) int {
	for i := 0; i < len(path); i++ {
		if path[i] == '?' {
			return i
		}
	}
	return -1
}

func decodeFlashcard(raw json.RawMessage) (*Flashcard, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	if err := validatePayload("flashcard", flashcardSchema, raw); err != nil {
		return nil, err
	}
	var card Flashcard
	if err := json.Unmarshal(raw, &card); err != nil {
		return nil, fmt.Errorf("decode flashcard: %w", err)
	}
	return &card, nil
}

func decodeUserData(raw json.RawMessage) (*UserData, error) {
	if err := validatePayload("user_data", userDataSchema, raw); err != nil {
		return nil, err
	}
	var data UserData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("decode user data: %w", err)
	}
	return &data, nil
}
