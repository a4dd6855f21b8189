// Package vectorstore implements the external vector index spec §6
// describes: "query(namespace, embedding, topK, filter{documentIds[]})
// -> [{id, score, text, metadata}]" and "upsert(namespace, items)". No
// example repo in the pack imports chromem-go directly, so ChromemStore
// is grounded on chromem-go's own documented collection API rather than
// an in-pack usage site; it is the natural embedded vector database for
// a Go process that otherwise has no external services wired in (spec
// §1: "the vector database" is named as an out-of-scope collaborator
// whose interface only is specified — chromem-go lets that collaborator
// exist in-process for this module rather than requiring a separate
// deployment).
package vectorstore

import (
	"context"
	"fmt"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/workflowrunner/workflowrunner/node"
)

// ChromemStore adapts a chromem-go DB to node.VectorIndex. One
// collection is created lazily per namespace, each sharing the same
// embedding function.
type ChromemStore struct {
	db            *chromem.DB
	embeddingFunc chromem.EmbeddingFunc

	mu          sync.Mutex
	collections map[string]*chromem.Collection
}

// NewChromemStore builds a ChromemStore backed by an in-memory
// chromem.DB. embeddingFunc computes the vector for a piece of text;
// callers typically pass chromem.NewEmbeddingFuncOpenAI or an
// equivalent provider-backed function.
func NewChromemStore(embeddingFunc chromem.EmbeddingFunc) *ChromemStore {
	return &ChromemStore{
		db:            chromem.NewDB(),
		embeddingFunc: embeddingFunc,
		collections:   make(map[string]*chromem.Collection),
	}
}

// NewPersistentChromemStore persists its collections under dir, for
// deployments that want vector data to survive a process restart.
func NewPersistentChromemStore(dir string, embeddingFunc chromem.EmbeddingFunc) (*ChromemStore, error) {
	db, err := chromem.NewPersistentDB(dir, false)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: open persistent chromem db: %w", err)
	}
	return &ChromemStore{db: db, embeddingFunc: embeddingFunc, collections: make(map[string]*chromem.Collection)}, nil
}

func (c *ChromemStore) collection(namespace string) (*chromem.Collection, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if col, ok := c.collections[namespace]; ok {
		return col, nil
	}
	col, err := c.db.GetOrCreateCollection(namespace, nil, c.embeddingFunc)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: get or create collection %q: %w", namespace, err)
	}
	c.collections[namespace] = col
	return col, nil
}

// Query implements node.VectorIndex. chromem-go's metadata filters
// match equality on caller-supplied keys, not ID-list membership, so
// the documentIDs restriction (spec §4.5 VectorSearch: "restricted to
// allowedDocumentIds") is applied as a post-filter over a wider chromem
// query, then trimmed back to topK.
func (c *ChromemStore) Query(ctx context.Context, namespace string, queryText string, topK int, documentIDs []string) ([]node.VectorDocument, error) {
	col, err := c.collection(namespace)
	if err != nil {
		return nil, err
	}
	if topK <= 0 {
		topK = 1
	}

	fetch := topK
	if len(documentIDs) > 0 {
		fetch = col.Count()
		if fetch < topK {
			fetch = topK
		}
	}
	if fetch > col.Count() {
		fetch = col.Count()
	}
	if fetch == 0 {
		return nil, nil
	}

	results, err := col.Query(ctx, queryText, fetch, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: query %q: %w", namespace, err)
	}

	allowed := make(map[string]bool, len(documentIDs))
	for _, id := range documentIDs {
		allowed[id] = true
	}

	out := make([]node.VectorDocument, 0, topK)
	for _, r := range results {
		if len(allowed) > 0 && !allowed[r.ID] {
			continue
		}
		out = append(out, node.VectorDocument{
			ID:       r.ID,
			Score:    float64(r.Similarity),
			Text:     r.Content,
			Metadata: metadataToAny(r.Metadata),
		})
		if len(out) == topK {
			break
		}
	}
	return out, nil
}

// Upsert implements node.VectorIndex.
func (c *ChromemStore) Upsert(ctx context.Context, namespace string, items []node.VectorWriteItem) error {
	if len(items) == 0 {
		return nil
	}
	col, err := c.collection(namespace)
	if err != nil {
		return err
	}

	docs := make([]chromem.Document, len(items))
	for i, item := range items {
		docs[i] = chromem.Document{
			ID:       item.ID,
			Content:  item.Text,
			Metadata: anyToMetadata(item.Metadata),
		}
	}
	if err := col.AddDocuments(ctx, docs, 1); err != nil {
		return fmt.Errorf("vectorstore: upsert into %q: %w", namespace, err)
	}
	return nil
}

func metadataToAny(m map[string]string) map[string]any {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func anyToMetadata(m map[string]any) map[string]string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = fmt.Sprintf("%v", v)
	}
	return out
}
