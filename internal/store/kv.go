package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/blobsey/flashtoll/ent"
	"github.com/blobsey/flashtoll/ent/kventry"
)

// Keys of the shared persistent state. Every key degrades to a documented
// default when absent: zero for the ledger values, nil for the cached
// flashcard, empty/false for the rest.
const (
	KeyAPIBaseURL        = "apiBaseUrl"
	KeyIsLoggedIn        = "isLoggedIn"
	KeyFlashcard         = "flashcard"
	KeyExistingTimeGrant = "existingTimeGrant"
	KeyNextFlashcardTime = "nextFlashcardTime"
)

// Change describes one key-value write as seen by watchers.
// Value is nil when the key was deleted.
type Change struct {
	Key   string
	Value json.RawMessage
}

// KV is the process-wide durable key-value state shared by the background
// process, all tab contexts, and the popup surfaces. It is the single
// source of truth: contexts must treat in-memory copies as caches that a
// Change notification can invalidate at any time.
//
// KV offers no transactions or compare-and-swap; a read-modify-write is a
// plain get-then-set. Ledger mutations are therefore routed through the
// background process only (see internal/ledger).
type KV interface {
	// Get returns the raw JSON value for key, or nil if the key is absent.
	Get(ctx context.Context, key string) (json.RawMessage, error)

	// Set JSON-encodes value and writes it under key, then notifies watchers.
	Set(ctx context.Context, key string, value any) error

	// Delete removes key and notifies watchers with a nil value.
	Delete(ctx context.Context, key string) error

	// Clear removes every key except those listed in keep.
	Clear(ctx context.Context, keep ...string) error

	// Watch registers fn for all subsequent changes. The returned cancel
	// removes the registration. Notifications are delivered after the
	// write is durable; ordering across concurrent writers is last-write-wins.
	Watch(fn func(Change)) (cancel func())
}

type entKV struct {
	client *ent.Client

	// mu serializes read-modify-write upserts within this process.
	mu sync.Mutex

	watchMu  sync.Mutex
	nextID   int
	watchers map[int]func(Change)
}

func newEntKV(client *ent.Client) *entKV {
	return &entKV{
		client:   client,
		watchers: make(map[int]func(Change)),
	}
}

func (s *entKV) Get(ctx context.Context, key string) (json.RawMessage, error) {
	e, err := s.client.KVEntry.Query().
		Where(kventry.Key(key)).
		Only(ctx)
	if err != nil {
		if ent.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get %q: %w", key, err)
	}
	return json.RawMessage(e.Value), nil
}

func (s *entKV) Set(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %q: %w", key, err)
	}

	s.mu.Lock()
	err = s.upsert(ctx, key, raw)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	s.notify(Change{Key: key, Value: raw})
	return nil
}

func (s *entKV) upsert(ctx context.Context, key string, raw []byte) error {
	e, err := s.client.KVEntry.Query().
		Where(kventry.Key(key)).
		Only(ctx)
	switch {
	case err == nil:
		_, err = s.client.KVEntry.UpdateOneID(e.ID).
			SetValue(raw).
			Save(ctx)
	case ent.IsNotFound(err):
		_, err = s.client.KVEntry.Create().
			SetKey(key).
			SetValue(raw).
			Save(ctx)
	}
	if err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}
	return nil
}

func (s *entKV) Delete(ctx context.Context, key string) error {
	_, err := s.client.KVEntry.Delete().
		Where(kventry.Key(key)).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete %q: %w", key, err)
	}
	s.notify(Change{Key: key})
	return nil
}

func (s *entKV) Clear(ctx context.Context, keep ...string) error {
	cleared, err := s.client.KVEntry.Query().
		Where(kventry.KeyNotIn(keep...)).
		All(ctx)
	if err != nil {
		return fmt.Errorf("clear: %w", err)
	}

	_, err = s.client.KVEntry.Delete().
		Where(kventry.KeyNotIn(keep...)).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("clear: %w", err)
	}

	for _, e := range cleared {
		s.notify(Change{Key: e.Key})
	}
	return nil
}

func (s *entKV) Watch(fn func(Change)) func() {
	s.watchMu.Lock()
	id := s.nextID
	s.nextID++
	s.watchers[id] = fn
	s.watchMu.Unlock()

	return func() {
		s.watchMu.Lock()
		delete(s.watchers, id)
		s.watchMu.Unlock()
	}
}

// notify delivers a change to all watchers. Callbacks run on the writer's
// goroutine and must not block.
func (s *entKV) notify(c Change) {
	s.watchMu.Lock()
	fns := make([]func(Change), 0, len(s.watchers))
	for _, fn := range s.watchers {
		fns = append(fns, fn)
	}
	s.watchMu.Unlock()

	for _, fn := range fns {
		fn(c)
	}
}

// GetInt64 reads an integer key, returning def when the key is absent.
func GetInt64(ctx context.Context, kv KV, key string, def int64) (int64, error) {
	raw, err := kv.Get(ctx, key)
	if err != nil || raw == nil {
		return def, err
	}
	var v int64
	if err := json.Unmarshal(raw, &v); err != nil {
		return def, fmt.Errorf("decode %q: %w", key, err)
	}
	return v, nil
}

// GetBool reads a boolean key, returning def when the key is absent.
func GetBool(ctx context.Context, kv KV, key string, def bool) (bool, error) {
	raw, err := kv.Get(ctx, key)
	if err != nil || raw == nil {
		return def, err
	}
	var v bool
	if err := json.Unmarshal(raw, &v); err != nil {
		return def, fmt.Errorf("decode %q: %w", key, err)
	}
	return v, nil
}

// GetString reads a string key, returning def when the key is absent.
func GetString(ctx context.Context, kv KV, key string, def string) (string, error) {
	raw, err := kv.Get(ctx, key)
	if err != nil || raw == nil {
		return def, err
	}
	var v string
	if err := json.Unmarshal(raw, &v); err != nil {
		return def, fmt.Errorf("decode %q: %w", key, err)
	}
	return v, nil
}

// GetJSON decodes the value under key into dest. It reports whether the
// key was present; an absent key leaves dest untouched.
func GetJSON(ctx context.Context, kv KV, key string, dest any) (bool, error) {
	raw, err := kv.Get(ctx, key)
	if err != nil {
		return false, err
	}
	if raw == nil {
		return false, nil
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, fmt.Errorf("decode %q: %w", key, err)
	}
	return true, nil
}
