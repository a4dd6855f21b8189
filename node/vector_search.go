package node

import (
	"context"
	"strings"

	"github.com/workflowrunner/workflowrunner/state"
)

// VectorSearch queries the external vector index, restricted to
// allowedDocumentIds, for the configured searchQuery (or userPrompt when
// unset). It emits contextMeta for the Prompt Engine and no routing
// decision (spec §4.5).
type VectorSearch struct{}

func (VectorSearch) Run(ctx context.Context, st state.State, services Services) (state.Delta, error) {
	var cfg VectorSearchConfig
	if err := decodeConfig(st, &cfg); err != nil {
		return state.Delta{}, err
	}
	if services.VectorIndex == nil {
		return state.Delta{}, nil
	}

	query := resolveSearchQuery(cfg.SearchQuery, st)
	topK := cfg.ResultCount
	if topK <= 0 {
		topK = 5
	}

	docs, err := services.VectorIndex.Query(ctx, cfg.Namespace, query, topK, st.AllowedDocumentIDs)
	if err != nil {
		return state.Delta{}, err
	}

	var texts []string
	combinedLen := 0
	for _, d := range docs {
		texts = append(texts, d.Text)
		combinedLen += len(d.Text)
	}

	meta := &state.ContextMeta{
		Count:              len(docs),
		CombinedTextLength: combinedLen,
		Text:               strings.Join(texts, "\n\n"),
	}
	return state.Delta{ContextMeta: meta}, nil
}

// resolveSearchQuery supports a minimal {{userPrompt}} template token in
// searchQuery; an empty searchQuery defaults to the raw userPrompt.
func resolveSearchQuery(searchQuery string, st state.State) string {
	if searchQuery == "" {
		return st.UserPrompt
	}
	return strings.ReplaceAll(searchQuery, "{{userPrompt}}", st.UserPrompt)
}
