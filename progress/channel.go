package progress

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// seqKey identifies the monotonic counter scope: one sequence per
// (conversationId, invocationId), per spec §4.6.
type seqKey struct {
	conversationID string
	invocationID   string
}

// RetryPolicy bounds the exponential backoff Channel applies to a
// failing Sink write before giving up and logging a non-fatal warning
// (spec §4.6: "persistent failure is logged and surfaced as a non-fatal
// warning — progress loss never aborts execution").
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

func defaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: 50 * time.Millisecond}
}

// Channel is the Progress Channel: it assigns seq numbers, resolves the
// owner set, and dual-writes one Event per owner to Sink, retrying
// transient write failures without ever propagating them to the caller.
type Channel struct {
	sink    Sink
	retry   RetryPolicy
	log     zerolog.Logger

	mu   sync.Mutex
	seqs map[seqKey]int64
}

// NewChannel builds a Channel writing to sink. log is used only to
// surface non-fatal write-failure warnings; it never affects control flow.
func NewChannel(sink Sink, log zerolog.Logger) *Channel {
	return &Channel{
		sink: sink,
		retry: defaultRetryPolicy(),
		log:   log,
		seqs:  make(map[seqKey]int64),
	}
}

// Emit implements spec §4.6's contract: emit(conversationId, invocationId,
// nodeId, kind, payload) -> void. owners is the resolved active owner set
// (state.ownersForProgress plus the invoking user); one Event is written
// per owner, all sharing the same seq so ordering is preserved per
// (conversation, invocation) regardless of owner fan-out order.
func (c *Channel) Emit(ctx context.Context, conversationID, invocationID, nodeID string, kind Kind, owners []string, payload map[string]any) {
	seq := c.nextSeq(conversationID, invocationID)
	now := time.Now()

	for _, owner := range owners {
		event := Event{
			ConversationID: conversationID,
			InvocationID:   invocationID,
			Seq:            seq,
			Owner:          owner,
			NodeID:         nodeID,
			Kind:           kind,
			Payload:        payload,
			Timestamp:      now,
		}
		c.writeWithRetry(ctx, event)
	}
}

func (c *Channel) nextSeq(conversationID, invocationID string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := seqKey{conversationID: conversationID, invocationID: invocationID}
	c.seqs[key]++
	return c.seqs[key]
}

func (c *Channel) writeWithRetry(ctx context.Context, event Event) {
	var lastErr error
	for attempt := 0; attempt < c.retry.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := c.retry.BaseDelay * time.Duration(1<<uint(attempt-1))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				c.logFailure(event, ctx.Err())
				return
			}
		}

		if err := c.tryEmit(event); err != nil {
			lastErr = err
			continue
		}
		return
	}
	c.logFailure(event, lastErr)
}

// tryEmit recovers from a panicking Sink so a misbehaving backend can
// never abort workflow execution (spec §4.6: "progress loss never
// aborts execution").
func (c *Channel) tryEmit(event Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("progress: sink panicked: %v", r)
		}
	}()
	c.sink.Emit(event)
	return nil
}

func (c *Channel) logFailure(event Event, err error) {
	c.log.Warn().
		Str("conversationId", event.ConversationID).
		Str("invocationId", event.InvocationID).
		Str("owner", event.Owner).
		Str("nodeId", event.NodeID).
		Err(err).
		Msg("progress: write failed after retries, continuing")
}

// Flush forces the underlying sink to deliver any buffered events.
func (c *Channel) Flush(ctx context.Context) error {
	return c.sink.Flush(ctx)
}
