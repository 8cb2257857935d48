package instrument

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"

	"fieldengine/internal/store"
)

// EventHandler serves the recorded events, mainly as an audit trail of
// definition and value changes.
type EventHandler struct {
	db      *sql.DB
	dialect store.Dialect
}

func NewEventHandler(db *sql.DB, dialect store.Dialect) *EventHandler {
	return &EventHandler{db: db, dialect: dialect}
}

// List handles GET /api/_admin/events?entity=&record_id=&event_type=&action=&limit=
func (h *EventHandler) List(c *fiber.Ctx) error {
	pb := h.dialect.NewParamBuilder()
	var where []string
	for _, f := range []struct{ param, column string }{
		{"entity", "entity"},
		{"record_id", "record_id"},
		{"event_type", "event_type"},
		{"action", "action"},
		{"trace_id", "trace_id"},
	} {
		if v := c.Query(f.param); v != "" {
			where = append(where, f.column+" = "+pb.Add(v))
		}
	}

	limit := c.QueryInt("limit", 100)
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	q := "SELECT trace_id, span_id, parent_span_id, event_type, source, component, action, entity, record_id, user_id, duration_ms, status, metadata, created_at FROM _events"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += fmt.Sprintf(" ORDER BY created_at DESC LIMIT %d", limit)

	rows, err := h.db.QueryContext(c.UserContext(), q, pb.Params()...)
	if err != nil {
		return fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	events := []Event{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("list events: %w", err)
	}
	return c.JSON(fiber.Map{"data": events})
}

func scanEvent(rows *sql.Rows) (Event, error) {
	var (
		e                                        Event
		parent, entity, recordID, userID, status sql.NullString
		meta                                     sql.NullString
		duration                                 sql.NullFloat64
		createdAt                                any
	)
	if err := rows.Scan(&e.TraceID, &e.SpanID, &parent, &e.EventType, &e.Source, &e.Component, &e.Action,
		&entity, &recordID, &userID, &duration, &status, &meta, &createdAt); err != nil {
		return e, fmt.Errorf("scan event: %w", err)
	}
	e.ParentSpanID = nullable(parent)
	e.Entity = nullable(entity)
	e.RecordID = nullable(recordID)
	e.UserID = nullable(userID)
	e.Status = nullable(status)
	if duration.Valid {
		e.DurationMs = &duration.Float64
	}
	if meta.Valid && meta.String != "" {
		if err := json.Unmarshal([]byte(meta.String), &e.Metadata); err != nil {
			return e, fmt.Errorf("decode event metadata: %w", err)
		}
	}
	t, err := store.ParseTime(createdAt)
	if err != nil {
		return e, err
	}
	e.CreatedAt = t
	return e, nil
}

func nullable(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	return &s.String
}
