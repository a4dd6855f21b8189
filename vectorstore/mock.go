package vectorstore

import (
	"context"
	"sync"

	"github.com/workflowrunner/workflowrunner/node"
)

// Mock is an in-memory node.VectorIndex for tests that need a vector
// store without chromem-go's embedding dependency — scenario tests seed
// Docs directly rather than computing real embeddings.
type Mock struct {
	mu   sync.Mutex
	docs map[string][]node.VectorDocument
}

// NewMock builds an empty Mock.
func NewMock() *Mock {
	return &Mock{docs: make(map[string][]node.VectorDocument)}
}

// Seed preloads namespace with documents a Query call can return,
// without requiring a real embedding call.
func (m *Mock) Seed(namespace string, docs ...node.VectorDocument) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[namespace] = append(m.docs[namespace], docs...)
}

// Query implements node.VectorIndex, ignoring queryText's content (no
// real embedding is computed) and returning Seeded documents restricted
// to documentIDs, up to topK.
func (m *Mock) Query(_ context.Context, namespace, _ string, topK int, documentIDs []string) ([]node.VectorDocument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	allowed := make(map[string]bool, len(documentIDs))
	for _, id := range documentIDs {
		allowed[id] = true
	}

	var out []node.VectorDocument
	for _, d := range m.docs[namespace] {
		if len(allowed) > 0 && !allowed[d.ID] {
			continue
		}
		out = append(out, d)
		if topK > 0 && len(out) == topK {
			break
		}
	}
	return out, nil
}

// Upsert implements node.VectorIndex, recording items as queryable
// documents (Score left zero; Mock performs no similarity ranking).
func (m *Mock) Upsert(_ context.Context, namespace string, items []node.VectorWriteItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, item := range items {
		m.docs[namespace] = append(m.docs[namespace], node.VectorDocument{ID: item.ID, Text: item.Text, Metadata: item.Metadata})
	}
	return nil
}
