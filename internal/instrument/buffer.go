package instrument

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"fieldengine/internal/store"
)

var eventColumns = []string{
	"id", "trace_id", "span_id", "parent_span_id", "event_type", "source", "component", "action",
	"entity", "record_id", "user_id", "duration_ms", "status", "metadata", "created_at",
}

// EventBuffer collects events in memory and batch-inserts them into _events
// on a timer or when maxSize is reached.
type EventBuffer struct {
	mu       sync.Mutex
	events   []Event
	db       *sql.DB
	dialect  store.Dialect
	maxSize  int
	ticker   *time.Ticker
	done     chan struct{}
	stopOnce sync.Once
}

func NewEventBuffer(db *sql.DB, dialect store.Dialect, maxSize int, flushIntervalMs int) *EventBuffer {
	if maxSize <= 0 {
		maxSize = 500
	}
	if flushIntervalMs <= 0 {
		flushIntervalMs = 100
	}
	eb := &EventBuffer{
		db:      db,
		dialect: dialect,
		maxSize: maxSize,
		ticker:  time.NewTicker(time.Duration(flushIntervalMs) * time.Millisecond),
		done:    make(chan struct{}),
	}
	go eb.run()
	return eb
}

func (eb *EventBuffer) run() {
	for {
		select {
		case <-eb.done:
			return
		case <-eb.ticker.C:
			eb.Flush(context.Background())
		}
	}
}

// Enqueue stamps and buffers an event, flushing asynchronously when full.
func (eb *EventBuffer) Enqueue(event Event) {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	if event.TraceID == "" {
		event.TraceID = uuid.NewString()
	}
	eb.mu.Lock()
	eb.events = append(eb.events, event)
	full := len(eb.events) >= eb.maxSize
	eb.mu.Unlock()
	if full {
		go eb.Flush(context.Background())
	}
}

// Len returns the number of events waiting to be flushed.
func (eb *EventBuffer) Len() int {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	return len(eb.events)
}

// Flush writes all buffered events in one transaction. Failures are logged
// and the batch is dropped.
func (eb *EventBuffer) Flush(ctx context.Context) {
	eb.mu.Lock()
	batch := eb.events
	eb.events = nil
	eb.mu.Unlock()
	if len(batch) == 0 {
		return
	}

	if err := eb.insert(ctx, batch); err != nil {
		log.Printf("ERROR: event buffer: dropped %d events: %v", len(batch), err)
	}
}

func (eb *EventBuffer) insert(ctx context.Context, batch []Event) error {
	tx, err := eb.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if syncOff := eb.dialect.SyncCommitOff(); syncOff != "" {
		if _, err := tx.ExecContext(ctx, syncOff); err != nil {
			return fmt.Errorf("set sync commit: %w", err)
		}
	}

	pb := eb.dialect.NewParamBuilder()
	rows := make([]string, 0, len(batch))
	for _, e := range batch {
		var meta any
		if len(e.Metadata) > 0 {
			b, err := json.Marshal(e.Metadata)
			if err != nil {
				return fmt.Errorf("encode metadata: %w", err)
			}
			meta = eb.dialect.JSONParam(b)
		}
		values := []any{
			uuid.NewString(), e.TraceID, e.SpanID, e.ParentSpanID, e.EventType, e.Source, e.Component, e.Action,
			e.Entity, e.RecordID, e.UserID, e.DurationMs, e.Status, meta, eb.dialect.TimeParam(e.CreatedAt),
		}
		phs := make([]string, len(values))
		for i, v := range values {
			phs[i] = pb.Add(v)
		}
		rows = append(rows, "("+strings.Join(phs, ", ")+")")
	}

	sqlStr := fmt.Sprintf("INSERT INTO _events (%s) VALUES %s", strings.Join(eventColumns, ", "), strings.Join(rows, ", "))
	if _, err := tx.ExecContext(ctx, sqlStr, pb.Params()...); err != nil {
		return fmt.Errorf("insert: %w", err)
	}
	return tx.Commit()
}

// Stop halts the ticker and flushes what is left.
func (eb *EventBuffer) Stop() {
	eb.stopOnce.Do(func() {
		eb.ticker.Stop()
		close(eb.done)
		eb.Flush(context.Background())
	})
}
