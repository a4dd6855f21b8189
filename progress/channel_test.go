package progress

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
)

func TestChannel_SeqMonotonicPerConversationInvocation(t *testing.T) {
	sink := NewBufferedSink()
	ch := NewChannel(sink, zerolog.Nop())
	ctx := context.Background()

	ch.Emit(ctx, "conv-1", "inv-1", "nodeA", KindStarted, []string{"owner1"}, nil)
	ch.Emit(ctx, "conv-1", "inv-1", "nodeA", KindCompleted, []string{"owner1"}, nil)

	history := sink.History("conv-1", "inv-1")
	if len(history) != 2 {
		t.Fatalf("expected 2 events, got %d", len(history))
	}
	if history[0].Seq != 1 || history[1].Seq != 2 {
		t.Errorf("expected seq 1 then 2, got %d then %d", history[0].Seq, history[1].Seq)
	}
}

func TestChannel_DualWritePerOwner(t *testing.T) {
	sink := NewBufferedSink()
	ch := NewChannel(sink, zerolog.Nop())
	ctx := context.Background()

	ch.Emit(ctx, "conv-1", "inv-1", "nodeA", KindStarted, []string{"alice", "bob"}, nil)

	history := sink.History("conv-1", "inv-1")
	if len(history) != 2 {
		t.Fatalf("expected one row per owner (2), got %d", len(history))
	}
	owners := map[string]bool{history[0].Owner: true, history[1].Owner: true}
	if !owners["alice"] || !owners["bob"] {
		t.Errorf("expected both alice and bob to receive a row, got %+v", history)
	}
	if history[0].Seq != history[1].Seq {
		t.Errorf("expected both owner rows to share seq, got %d and %d", history[0].Seq, history[1].Seq)
	}
}

func TestChannel_IndependentSeqPerScope(t *testing.T) {
	sink := NewBufferedSink()
	ch := NewChannel(sink, zerolog.Nop())
	ctx := context.Background()

	ch.Emit(ctx, "conv-1", "inv-1", "nodeA", KindStarted, []string{"owner1"}, nil)
	ch.Emit(ctx, "conv-2", "inv-1", "nodeA", KindStarted, []string{"owner1"}, nil)

	if sink.History("conv-1", "inv-1")[0].Seq != 1 {
		t.Error("expected conv-1 scope to start at seq 1")
	}
	if sink.History("conv-2", "inv-1")[0].Seq != 1 {
		t.Error("expected conv-2 scope to start independently at seq 1")
	}
}

type panickingSink struct{}

func (panickingSink) Emit(Event)                                    { panic("boom") }
func (panickingSink) EmitBatch(context.Context, []Event) error      { return nil }
func (panickingSink) Flush(context.Context) error                   { return nil }

func TestChannel_SinkPanicDoesNotPropagate(t *testing.T) {
	ch := NewChannel(panickingSink{}, zerolog.Nop())
	ch.retry = RetryPolicy{MaxAttempts: 1, BaseDelay: 0}

	// Must not panic.
	ch.Emit(context.Background(), "conv-1", "inv-1", "nodeA", KindStarted, []string{"owner1"}, nil)
}
