package node

import (
	"context"

	"github.com/workflowrunner/workflowrunner/state"
)

// ConversationMemory loads prior turns from the ConversationStore,
// limited to memorySize, and returns them as an append delta so the
// reducer concatenates them onto any turns already in state (spec §4.5).
type ConversationMemory struct{}

func (ConversationMemory) Run(ctx context.Context, st state.State, services Services) (state.Delta, error) {
	var cfg ConversationMemoryConfig
	if err := decodeConfig(st, &cfg); err != nil {
		return state.Delta{}, err
	}
	if cfg.MemorySize <= 0 {
		cfg.MemorySize = 20
	}

	if services.ConversationStore == nil {
		return state.Delta{}, nil
	}

	turns, err := services.ConversationStore.LoadTurns(ctx, st.ConversationID, cfg.MemorySize)
	if err != nil {
		return state.Delta{}, err
	}

	// Only turns not already present in state need to be appended; the
	// store is the source of truth for history predating this
	// invocation, while state.Memory already holds turns from earlier
	// steps of the same invocation.
	var fresh []state.Turn
	if len(st.Memory) == 0 {
		fresh = turns
	}

	return state.Delta{MemoryAppend: fresh}, nil
}

// PersistTurns is the executor's commit hook for ConversationMemory,
// called at end-of-invocation once the final state is known (spec
// §4.5: "Persists new turns at end-of-invocation"). It is not part of
// Node.Run because persistence must happen after suspension/commit
// decisions are finalized, not mid-step.
func PersistTurns(ctx context.Context, services Services, conversationID string, turns []state.Turn) error {
	if services.ConversationStore == nil || len(turns) == 0 {
		return nil
	}
	return services.ConversationStore.AppendTurns(ctx, conversationID, turns)
}
