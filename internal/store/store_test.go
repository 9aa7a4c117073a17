package store

import (
	"context"
	"encoding/json"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open("file::memory:?cache=shared")
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenClose(t *testing.T) {
	s := openTestStore(t)
	if s.Client() == nil {
		t.Fatal("expected non-nil ent client")
	}
}

func TestKVGetAbsent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	raw, err := s.KV().Get(ctx, KeyNextFlashcardTime)
	if err != nil {
		t.Fatalf("get absent: %v", err)
	}
	if raw != nil {
		t.Fatalf("expected nil for absent key, got %s", raw)
	}
}

func TestKVSetGetRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	kv := s.KV()

	if err := kv.Set(ctx, KeyExistingTimeGrant, int64(60000)); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := GetInt64(ctx, kv, KeyExistingTimeGrant, 0)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != 60000 {
		t.Errorf("got %d, want 60000", got)
	}

	// Overwrite is last-write-wins.
	if err := kv.Set(ctx, KeyExistingTimeGrant, int64(0)); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	got, err = GetInt64(ctx, kv, KeyExistingTimeGrant, -1)
	if err != nil {
		t.Fatalf("get after overwrite: %v", err)
	}
	if got != 0 {
		t.Errorf("got %d, want 0", got)
	}
}

func TestKVTypedDefaults(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	kv := s.KV()

	if v, err := GetInt64(ctx, kv, "missing", 7); err != nil || v != 7 {
		t.Errorf("GetInt64 = (%d, %v), want (7, nil)", v, err)
	}
	if v, err := GetBool(ctx, kv, "missing", true); err != nil || !v {
		t.Errorf("GetBool = (%v, %v), want (true, nil)", v, err)
	}
	if v, err := GetString(ctx, kv, "missing", "now"); err != nil || v != "now" {
		t.Errorf("GetString = (%q, %v), want (now, nil)", v, err)
	}
	var dest struct{ A int }
	ok, err := GetJSON(ctx, kv, "missing", &dest)
	if err != nil || ok {
		t.Errorf("GetJSON = (%v, %v), want (false, nil)", ok, err)
	}
}

func TestKVWatch(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	kv := s.KV()

	var changes []Change
	cancel := kv.Watch(func(c Change) {
		changes = append(changes, c)
	})

	if err := kv.Set(ctx, KeyIsLoggedIn, true); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := kv.Delete(ctx, KeyIsLoggedIn); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if len(changes) != 2 {
		t.Fatalf("expected 2 changes, got %d", len(changes))
	}
	if changes[0].Key != KeyIsLoggedIn || string(changes[0].Value) != "true" {
		t.Errorf("unexpected first change: %+v", changes[0])
	}
	if changes[1].Value != nil {
		t.Errorf("expected nil value on delete, got %s", changes[1].Value)
	}

	// After cancel, no further notifications.
	cancel()
	if err := kv.Set(ctx, KeyIsLoggedIn, false); err != nil {
		t.Fatalf("set after cancel: %v", err)
	}
	if len(changes) != 2 {
		t.Errorf("watcher fired after cancel: %d changes", len(changes))
	}
}

func TestKVClearKeepsListedKeys(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	kv := s.KV()

	mustSet := func(key string, v any) {
		t.Helper()
		if err := kv.Set(ctx, key, v); err != nil {
			t.Fatalf("set %s: %v", key, err)
		}
	}
	mustSet(KeyAPIBaseURL, "https://example.com")
	mustSet(KeyIsLoggedIn, true)
	mustSet(KeyFlashcard, map[string]string{"card_id": "A"})

	if err := kv.Clear(ctx, KeyAPIBaseURL); err != nil {
		t.Fatalf("clear: %v", err)
	}

	base, err := GetString(ctx, kv, KeyAPIBaseURL, "")
	if err != nil || base != "https://example.com" {
		t.Errorf("kept key = (%q, %v)", base, err)
	}
	if raw, _ := kv.Get(ctx, KeyIsLoggedIn); raw != nil {
		t.Errorf("isLoggedIn survived clear: %s", raw)
	}
	if raw, _ := kv.Get(ctx, KeyFlashcard); raw != nil {
		t.Errorf("flashcard survived clear: %s", raw)
	}
}

func TestKVRawJSONPreserved(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	kv := s.KV()

	type card struct {
		CardID    string `json:"card_id"`
		CardFront string `json:"card_front"`
	}
	if err := kv.Set(ctx, KeyFlashcard, card{CardID: "A", CardFront: "2+2?"}); err != nil {
		t.Fatalf("set: %v", err)
	}

	raw, err := kv.Get(ctx, KeyFlashcard)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	var got card
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.CardID != "A" || got.CardFront != "2+2?" {
		t.Errorf("round trip mismatch: %+v", got)
	}
}

func TestReviewEventsAppendAndRecent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	repo := s.ReviewEvents()

	for i, grade := range []int{3, 1, 4} {
		err := repo.Append(ctx, ReviewEventData{
			CardID:    "card-" + string(rune('a'+i)),
			Grade:     grade,
			GrantedMs: 60000,
			SessionID: "sess-1",
		})
		if err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	records, err := repo.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	// Newest first.
	if records[0].CardID != "card-c" || records[0].Grade != 4 {
		t.Errorf("unexpected newest record: %+v", records[0])
	}
	if records[0].Sequence <= records[1].Sequence {
		t.Errorf("sequence not descending: %d <= %d", records[0].Sequence, records[1].Sequence)
	}
}
