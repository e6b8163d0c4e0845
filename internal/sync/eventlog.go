package syncx

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"time"
)

// Attempt lifecycle event types.
const (
	AttemptStarted   = "AttemptStarted"
	AttemptSubmitted = "AttemptSubmitted"
	AttemptAbandoned = "AttemptAbandoned"
	AttemptGraded    = "AttemptGraded"
)

type Event struct {
	Offset    int64
	Type      string
	Key       string
	DataJSON  string
	CreatedAt int64
}

// EventRepo appends attempt lifecycle events to the event_log table. A nil
// repo (no db, e.g. in-memory runs) records nothing.
type EventRepo struct{ db *sql.DB }

func NewEventRepo(db *sql.DB) *EventRepo { return &EventRepo{db: db} }

func (r *EventRepo) Append(ctx context.Context, e Event) error {
	if r == nil || r.db == nil {
		return nil
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO event_log (typ, key, data, created_at)
		 VALUES ($1,$2,$3,$4)`,
		e.Type, e.Key, e.DataJSON, time.Now().Unix())
	return err
}

// Record marshals payload and appends; the event log is an audit trail, so
// failures are logged rather than failing the request.
func (r *EventRepo) Record(ctx context.Context, typ, key string, payload any) {
	if r == nil || r.db == nil {
		return
	}
	buf, err := json.Marshal(payload)
	if err != nil {
		log.Printf("event %s/%s: marshal: %v", typ, key, err)
		return
	}
	if err := r.Append(ctx, Event{Type: typ, Key: key, DataJSON: string(buf)}); err != nil {
		log.Printf("event %s/%s: append: %v", typ, key, err)
	}
}

// Since reads events after the given offset, oldest first. Used by the
// results dashboard to tail attempt activity.
func (r *EventRepo) Since(ctx context.Context, offset int64, limit int) ([]Event, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT "offset", typ, key, data, created_at FROM event_log
		 WHERE "offset" > $1 ORDER BY "offset" ASC LIMIT $2`, offset, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Event{}
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.Offset, &e.Type, &e.Key, &e.DataJSON, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
