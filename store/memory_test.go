package store

import (
	"context"
	"testing"

	"github.com/workflowrunner/workflowrunner/progress"
	"github.com/workflowrunner/workflowrunner/state"
)

func TestMemoryStoreSnapshotRoundTrip(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	if _, found, err := m.LoadSnapshot(ctx, "conv1"); err != nil || found {
		t.Fatalf("expected no snapshot yet, found=%v err=%v", found, err)
	}

	if err := m.SaveSnapshot(ctx, "conv1", []byte(`{"userId":"u1"}`)); err != nil {
		t.Fatalf("save snapshot: %v", err)
	}
	data, found, err := m.LoadSnapshot(ctx, "conv1")
	if err != nil || !found {
		t.Fatalf("expected snapshot to be found, found=%v err=%v", found, err)
	}
	if string(data) != `{"userId":"u1"}` {
		t.Fatalf("unexpected snapshot data: %s", data)
	}

	if err := m.DeleteSnapshot(ctx, "conv1"); err != nil {
		t.Fatalf("delete snapshot: %v", err)
	}
	if _, found, _ := m.LoadSnapshot(ctx, "conv1"); found {
		t.Fatal("expected snapshot to be gone after delete")
	}
}

func TestMemoryStoreTurnsAppendAndLimit(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	turns := []state.Turn{
		{Role: state.RoleUser, Content: "one"},
		{Role: state.RoleAssistant, Content: "two"},
		{Role: state.RoleUser, Content: "three"},
	}
	if err := m.AppendTurns(ctx, "conv1", turns); err != nil {
		t.Fatalf("append turns: %v", err)
	}

	all, err := m.LoadTurns(ctx, "conv1", 0)
	if err != nil || len(all) != 3 {
		t.Fatalf("expected 3 turns, got %d (err=%v)", len(all), err)
	}

	limited, err := m.LoadTurns(ctx, "conv1", 2)
	if err != nil || len(limited) != 2 {
		t.Fatalf("expected 2 turns with limit, got %d (err=%v)", len(limited), err)
	}
	if limited[0].Content != "two" || limited[1].Content != "three" {
		t.Fatalf("expected the most recent 2 turns, got %+v", limited)
	}
}

func TestMemoryStoreEmitPreservesOrderPerInvocation(t *testing.T) {
	m := NewMemoryStore()
	m.Emit(progress.Event{ConversationID: "conv1", InvocationID: "inv1", Seq: 1, Kind: progress.KindStarted})
	m.Emit(progress.Event{ConversationID: "conv1", InvocationID: "inv1", Seq: 2, Kind: progress.KindCompleted})
	m.Emit(progress.Event{ConversationID: "conv1", InvocationID: "inv2", Seq: 1, Kind: progress.KindStarted})

	events := m.Events("conv1", "inv1")
	if len(events) != 2 {
		t.Fatalf("expected 2 events for inv1, got %d", len(events))
	}
	if events[0].Kind != progress.KindStarted || events[1].Kind != progress.KindCompleted {
		t.Fatalf("expected events in emission order, got %+v", events)
	}
}
