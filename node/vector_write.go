package node

import (
	"context"
	"fmt"

	"github.com/workflowrunner/workflowrunner/state"
)

// VectorWrite persists embeddings of the designated state fields. It has
// no effect on control flow and always returns an empty delta (spec
// §4.5).
type VectorWrite struct{}

func (VectorWrite) Run(ctx context.Context, st state.State, services Services) (state.Delta, error) {
	var cfg VectorWriteConfig
	if err := decodeConfig(st, &cfg); err != nil {
		return state.Delta{}, err
	}
	if services.VectorIndex == nil || len(cfg.Fields) == 0 {
		return state.Delta{}, nil
	}

	items, err := fieldsToItems(st, cfg.Fields)
	if err != nil {
		return state.Delta{}, err
	}
	if len(items) == 0 {
		return state.Delta{}, nil
	}

	if err := services.VectorIndex.Upsert(ctx, cfg.Namespace, items); err != nil {
		return state.Delta{}, err
	}
	return state.Delta{}, nil
}

func fieldsToItems(st state.State, fields []string) ([]VectorWriteItem, error) {
	values, err := stateFieldValues(st, fields)
	if err != nil {
		return nil, err
	}

	var items []VectorWriteItem
	for i, field := range fields {
		text, ok := values[i].(string)
		if !ok || text == "" {
			continue
		}
		items = append(items, VectorWriteItem{
			ID:       fmt.Sprintf("%s:%s:%d", st.ConversationID, field, len(text)),
			Text:     text,
			Metadata: map[string]any{"field": field, "conversationId": st.ConversationID},
		})
	}
	return items, nil
}

// stateFieldValues resolves each field path (dotted paths allowed, e.g.
// "contextMeta.text") against st's JSON representation, reusing the
// Router DSL's gjson-backed path resolution rather than a second
// reflection-based accessor.
func stateFieldValues(st state.State, fields []string) ([]any, error) {
	evalCtx, err := stateEvalContext(st)
	if err != nil {
		return nil, err
	}
	out := make([]any, len(fields))
	for i, field := range fields {
		out[i] = evalCtx.resolve(field).Value()
	}
	return out, nil
}
