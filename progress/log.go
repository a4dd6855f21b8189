package progress

import (
	"context"

	"github.com/rs/zerolog"
)

// LogSink writes events as structured log lines through a zerolog.Logger,
// one event per line, matching the rest of the module's ambient logging
// convention rather than a bespoke text/JSON writer.
type LogSink struct {
	log zerolog.Logger
}

// NewLogSink builds a LogSink writing through log.
func NewLogSink(log zerolog.Logger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) Emit(event Event) {
	s.log.Info().
		Str("conversationId", event.ConversationID).
		Str("invocationId", event.InvocationID).
		Int64("seq", event.Seq).
		Str("owner", event.Owner).
		Str("nodeId", event.NodeID).
		Str("kind", string(event.Kind)).
		Interface("payload", event.Payload).
		Time("timestamp", event.Timestamp).
		Msg("progress event")
}

func (s *LogSink) EmitBatch(_ context.Context, events []Event) error {
	for _, e := range events {
		s.Emit(e)
	}
	return nil
}

func (s *LogSink) Flush(_ context.Context) error { return nil }
