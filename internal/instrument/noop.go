package instrument

import "context"

// NoopInstrumenter discards everything. Used when instrumentation is off
// or the request was sampled out.
type NoopInstrumenter struct{}

func (n *NoopInstrumenter) StartSpan(ctx context.Context, _, _, _ string) (context.Context, Span) {
	return ctx, NoopSpan{}
}

func (n *NoopInstrumenter) EmitBusinessEvent(context.Context, string, string, string, map[string]any) {
}

type NoopSpan struct{}

func (NoopSpan) End()                     {}
func (NoopSpan) SetStatus(string)         {}
func (NoopSpan) SetMetadata(string, any)  {}
func (NoopSpan) SetEntity(string, string) {}
func (NoopSpan) TraceID() string          { return "" }
func (NoopSpan) SpanID() string           { return "" }
