package executor

import "context"

// StateStore is the suspension/resumption persistence boundary: one
// opaque snapshot blob per conversation (spec §4.1 snapshot/§4.7
// suspension). The store package's MemoryStore/SQLiteStore/MySQLStore
// all satisfy this.
type StateStore interface {
	SaveSnapshot(ctx context.Context, conversationID string, data []byte) error
	LoadSnapshot(ctx context.Context, conversationID string) (data []byte, found bool, err error)
	DeleteSnapshot(ctx context.Context, conversationID string) error
}
