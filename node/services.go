package node

import (
	"context"
	"time"

	"github.com/workflowrunner/workflowrunner/budget"
	"github.com/workflowrunner/workflowrunner/model"
	"github.com/workflowrunner/workflowrunner/progress"
	"github.com/workflowrunner/workflowrunner/state"
)

// VectorDocument is one retrieval hit returned by VectorIndex.Query
// (spec §6: "query(namespace, embedding, topK, filter) -> [{id, score,
// text, metadata}]").
type VectorDocument struct {
	ID       string
	Score    float64
	Text     string
	Metadata map[string]any
}

// VectorWriteItem is one record VectorIndex.Upsert persists.
type VectorWriteItem struct {
	ID       string
	Text     string
	Metadata map[string]any
}

// VectorIndex abstracts the external vector store a VectorSearch/
// VectorWrite node talks to. The vectorstore package provides the
// concrete chromem-go-backed implementation.
type VectorIndex interface {
	Query(ctx context.Context, namespace string, queryText string, topK int, documentIDs []string) ([]VectorDocument, error)
	Upsert(ctx context.Context, namespace string, items []VectorWriteItem) error
}

// ConversationStore is the data store ConversationMemory reads prior
// turns from and persists new ones to, keyed by conversationId (spec
// §4.5's "Loads prior turns from the data store... Persists new turns
// at end-of-invocation").
type ConversationStore interface {
	LoadTurns(ctx context.Context, conversationID string, limit int) ([]state.Turn, error)
	AppendTurns(ctx context.Context, conversationID string, turns []state.Turn) error
}

// ChatModelResolver resolves a model.Capability to the ChatModel that
// can actually place the call, keeping provider wiring out of the node
// package (ModelInvoke only knows capability ids).
type ChatModelResolver func(cap model.Capability) (model.ChatModel, error)

// Services bundles everything a node's Run needs beyond its own state
// and config, per spec §4.5: "the Model Registry, Prompt Engine, Token
// Budget, Progress Channel, vector index, and data/settings stores."
type Services struct {
	Registry      *model.Registry
	ResolveModel  ChatModelResolver
	BudgetCaps    budget.Caps
	ExactTokens   budget.ExactTokenCounter
	VectorIndex       VectorIndex
	ConversationStore ConversationStore
	Progress          *progress.Channel
	InvocationID      string
	InvokingUser      string
	Clock             func() time.Time
}

func (s Services) now() time.Time {
	if s.Clock != nil {
		return s.Clock()
	}
	return time.Now()
}
