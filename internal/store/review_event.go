package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/blobsey/flashtoll/ent"
	"github.com/blobsey/flashtoll/ent/reviewevent"
)

// ReviewEventData captures one completed card review for the local log.
type ReviewEventData struct {
	CardID    string
	Grade     int
	GrantedMs int64
	SessionID string
}

// ReviewEventRecord is a persisted review event.
type ReviewEventRecord struct {
	Sequence  int64
	Timestamp time.Time
	CardID    string
	Grade     int
	GrantedMs int64
	SessionID string
}

// ReviewEventRepo provides append and query access to the review log.
type ReviewEventRepo interface {
	// Append records a completed review.
	Append(ctx context.Context, data ReviewEventData) error

	// Recent returns up to limit events, newest first.
	Recent(ctx context.Context, limit int) ([]ReviewEventRecord, error)
}

type reviewEventRepo struct {
	client *ent.Client
	seq    *sequenceCounter
}

func (r *reviewEventRepo) Append(ctx context.Context, data ReviewEventData) error {
	seqNum, err := r.seq.Next(ctx)
	if err != nil {
		return fmt.Errorf("next sequence: %w", err)
	}

	_, err = r.client.ReviewEvent.Create().
		SetSequence(seqNum).
		SetCardID(data.CardID).
		SetGrade(data.Grade).
		SetGrantedMs(data.GrantedMs).
		SetSessionID(data.SessionID).
		Save(ctx)
	if err != nil {
		return fmt.Errorf("save review event: %w", err)
	}
	return nil
}

func (r *reviewEventRepo) Recent(ctx context.Context, limit int) ([]ReviewEventRecord, error) {
	q := r.client.ReviewEvent.Query().
		Order(ent.Desc(reviewevent.FieldSequence))
	if limit > 0 {
		q = q.Limit(limit)
	}
	events, err := q.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("query review events: %w", err)
	}

	records := make([]ReviewEventRecord, 0, len(events))
	for _, e := range events {
		records = append(records, ReviewEventRecord{
			Sequence:  e.Sequence,
			Timestamp: e.Timestamp,
			CardID:    e.CardID,
			Grade:     e.Grade,
			GrantedMs: e.GrantedMs,
			SessionID: e.SessionID,
		})
	}
	return records, nil
}

// sequenceCounter manages the global monotonic sequence number shared
// across all event types. Uses raw SQL outside ent because ent doesn't
// support database-level atomic counters. The mutex serializes within the
// process; the RETURNING clause makes the increment atomic at the
// database level.
type sequenceCounter struct {
	mu sync.Mutex
	db *sql.DB
}

// newSequenceCounter creates a counter and ensures the tracking table exists.
func newSequenceCounter(db *sql.DB) (*sequenceCounter, error) {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS global_sequence (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		next_val INTEGER NOT NULL DEFAULT 1
	)`)
	if err != nil {
		return nil, fmt.Errorf("create sequence table: %w", err)
	}

	_, err = db.Exec(`INSERT OR IGNORE INTO global_sequence (id, next_val) VALUES (1, 1)`)
	if err != nil {
		return nil, fmt.Errorf("seed sequence: %w", err)
	}

	return &sequenceCounter{db: db}, nil
}

// Next atomically returns the next sequence number and increments the counter.
func (sc *sequenceCounter) Next(ctx context.Context) (int64, error) {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	var seq int64
	err := sc.db.QueryRowContext(ctx,
		`UPDATE global_sequence SET next_val = next_val + 1 WHERE id = 1 RETURNING next_val - 1`,
	).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("next sequence: %w", err)
	}
	return seq, nil
}
