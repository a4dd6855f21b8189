// Package progress implements the Progress Channel: a per-owner,
// dual-write fan-out of execution events, with a monotonic seq counter
// per (conversationId, invocationId) (spec §3.3, §4.6).
package progress

import "time"

// Kind enumerates a progress event's lifecycle stage (spec §3.3).
type Kind string

const (
	KindStarted       Kind = "STARTED"
	KindStreaming     Kind = "STREAMING"
	KindAwaitingInput Kind = "AWAITING_INPUT"
	KindCompleted     Kind = "COMPLETED"
	KindError         Kind = "ERROR"
)

// Event is one row the Progress Channel writes, once per owner in Owners
// (spec §3.3's dual-write).
type Event struct {
	ConversationID string
	InvocationID   string
	Seq            int64
	Owner          string
	NodeID         string
	Kind           Kind
	Payload        map[string]any
	Timestamp      time.Time
}
