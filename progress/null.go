package progress

import "context"

// NullSink discards every event. Useful when progress visibility is
// disabled without changing call sites.
type NullSink struct{}

func NewNullSink() *NullSink { return &NullSink{} }

func (NullSink) Emit(Event) {}

func (NullSink) EmitBatch(context.Context, []Event) error { return nil }

func (NullSink) Flush(context.Context) error { return nil }
