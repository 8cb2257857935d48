package instrument

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type ctxKey int

const (
	traceIDKey ctxKey = iota
	parentSpanIDKey
	instrumenterKey
	userIDKey
)

// Instrumenter records timed spans and one-shot business events.
type Instrumenter interface {
	StartSpan(ctx context.Context, source, component, action string) (context.Context, Span)
	EmitBusinessEvent(ctx context.Context, action, entity, recordID string, metadata map[string]any)
}

// Span is a timed operation. End flushes it to the event buffer.
type Span interface {
	End()
	SetStatus(status string)
	SetMetadata(key string, value any)
	SetEntity(entity, recordID string)
	TraceID() string
	SpanID() string
}

// Event is one row of the _events table.
type Event struct {
	TraceID      string         `json:"trace_id"`
	SpanID       string         `json:"span_id"`
	ParentSpanID *string        `json:"parent_span_id"`
	EventType    string         `json:"event_type"` // "system" or "business"
	Source       string         `json:"source"`
	Component    string         `json:"component"`
	Action       string         `json:"action"`
	Entity       *string        `json:"entity"`
	RecordID     *string        `json:"record_id"`
	UserID       *string        `json:"user_id"`
	DurationMs   *float64       `json:"duration_ms"`
	Status       *string        `json:"status"`
	Metadata     map[string]any `json:"metadata"`
	CreatedAt    time.Time      `json:"created_at"`
}

func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

func GetTraceID(ctx context.Context) string {
	v, _ := ctx.Value(traceIDKey).(string)
	return v
}

func WithInstrumenter(ctx context.Context, inst Instrumenter) context.Context {
	return context.WithValue(ctx, instrumenterKey, inst)
}

// GetInstrumenter returns the context's instrumenter, or a no-op one.
func GetInstrumenter(ctx context.Context) Instrumenter {
	if v, ok := ctx.Value(instrumenterKey).(Instrumenter); ok {
		return v
	}
	return &NoopInstrumenter{}
}

// WithUserID tags later spans and events with the caller.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func stringFrom(ctx context.Context, key ctxKey) string {
	v, _ := ctx.Value(key).(string)
	return v
}

// BufferedInstrumenter enqueues spans and events onto an EventBuffer.
type BufferedInstrumenter struct {
	buffer *EventBuffer
}

func NewInstrumenter(buffer *EventBuffer) *BufferedInstrumenter {
	return &BufferedInstrumenter{buffer: buffer}
}

// StartSpan opens a child of the context's current span.
func (i *BufferedInstrumenter) StartSpan(ctx context.Context, source, component, action string) (context.Context, Span) {
	span := &bufferedSpan{
		event: Event{
			TraceID:      GetTraceID(ctx),
			SpanID:       uuid.NewString(),
			ParentSpanID: optional(stringFrom(ctx, parentSpanIDKey)),
			EventType:    "system",
			Source:       source,
			Component:    component,
			Action:       action,
			UserID:       optional(stringFrom(ctx, userIDKey)),
			Metadata:     make(map[string]any),
		},
		start:  time.Now(),
		buffer: i.buffer,
	}
	return context.WithValue(ctx, parentSpanIDKey, span.event.SpanID), span
}

func (i *BufferedInstrumenter) EmitBusinessEvent(ctx context.Context, action, entity, recordID string, metadata map[string]any) {
	i.buffer.Enqueue(Event{
		TraceID:      GetTraceID(ctx),
		SpanID:       uuid.NewString(),
		ParentSpanID: optional(stringFrom(ctx, parentSpanIDKey)),
		EventType:    "business",
		Source:       "fields",
		Component:    "engine",
		Action:       action,
		Entity:       optional(entity),
		RecordID:     optional(recordID),
		UserID:       optional(stringFrom(ctx, userIDKey)),
		Metadata:     metadata,
	})
}

type bufferedSpan struct {
	mu     sync.Mutex
	event  Event
	start  time.Time
	buffer *EventBuffer
	ended  bool
}

func (s *bufferedSpan) TraceID() string { return s.event.TraceID }
func (s *bufferedSpan) SpanID() string  { return s.event.SpanID }

func (s *bufferedSpan) SetStatus(status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.event.Status = &status
}

func (s *bufferedSpan) SetMetadata(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.event.Metadata[key] = value
}

func (s *bufferedSpan) SetEntity(entity, recordID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.event.Entity = optional(entity)
	s.event.RecordID = optional(recordID)
}

func (s *bufferedSpan) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	s.ended = true
	ms := float64(time.Since(s.start).Microseconds()) / 1000.0
	s.event.DurationMs = &ms
	s.buffer.Enqueue(s.event)
}
