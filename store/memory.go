// Package store implements the external data stores spec §6 describes
// as collaborators of the core: workflow-definition/state snapshots,
// conversation memory, and progress rows. Grounded on the teacher's
// graph/store package (Store[S]'s SaveStep/LoadLatest/checkpoint
// methods), narrowed from a generic, replay-aware Store[S] interface
// down to the three plain-data contracts our non-replayed, single-state
// executor actually needs: executor.StateStore, node.ConversationStore,
// and progress.Sink.
package store

import (
	"context"
	"sync"

	"github.com/workflowrunner/workflowrunner/progress"
	"github.com/workflowrunner/workflowrunner/state"
)

// MemoryStore is an in-memory implementation of all three store
// contracts, designed for tests and single-process development —
// mirroring the teacher's MemStore[S] (graph/store/memory.go), split
// into our three narrower interfaces instead of one generic Store[S].
type MemoryStore struct {
	mu        sync.RWMutex
	snapshots map[string][]byte
	turns     map[string][]state.Turn
	events    []progress.Event
}

// NewMemoryStore builds an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		snapshots: make(map[string][]byte),
		turns:     make(map[string][]state.Turn),
	}
}

// SaveSnapshot implements executor.StateStore.
func (m *MemoryStore) SaveSnapshot(_ context.Context, conversationID string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := append([]byte(nil), data...)
	m.snapshots[conversationID] = cp
	return nil
}

// LoadSnapshot implements executor.StateStore.
func (m *MemoryStore) LoadSnapshot(_ context.Context, conversationID string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.snapshots[conversationID]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), data...), true, nil
}

// DeleteSnapshot implements executor.StateStore.
func (m *MemoryStore) DeleteSnapshot(_ context.Context, conversationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.snapshots, conversationID)
	return nil
}

// LoadTurns implements node.ConversationStore.
func (m *MemoryStore) LoadTurns(_ context.Context, conversationID string, limit int) ([]state.Turn, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	turns := m.turns[conversationID]
	if limit > 0 && len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	return append([]state.Turn(nil), turns...), nil
}

// AppendTurns implements node.ConversationStore.
func (m *MemoryStore) AppendTurns(_ context.Context, conversationID string, turns []state.Turn) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns[conversationID] = append(m.turns[conversationID], turns...)
	return nil
}

// Emit implements progress.Sink, appending one row per call, preserving
// arrival order (spec §4.6: "the channel may batch writes but never
// reorders within a single invocation").
func (m *MemoryStore) Emit(event progress.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
}

// EmitBatch implements progress.Sink.
func (m *MemoryStore) EmitBatch(_ context.Context, events []progress.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, events...)
	return nil
}

// Flush is a no-op: MemoryStore never buffers.
func (m *MemoryStore) Flush(_ context.Context) error { return nil }

// Events returns every progress row recorded for (conversationID,
// invocationID), in write order. Test and debugging helper.
func (m *MemoryStore) Events(conversationID, invocationID string) []progress.Event {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []progress.Event
	for _, e := range m.events {
		if e.ConversationID == conversationID && e.InvocationID == invocationID {
			out = append(out, e)
		}
	}
	return out
}
