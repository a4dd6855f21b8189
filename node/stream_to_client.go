package node

import (
	"context"

	"github.com/workflowrunner/workflowrunner/progress"
	"github.com/workflowrunner/workflowrunner/state"
)

// StreamToClient is a terminal node: it emits the final COMPLETED
// progress event carrying formattedResponse (falling back to
// modelResponse when no Format node ran) and returns an empty delta
// (spec §4.5).
type StreamToClient struct{}

func (StreamToClient) Run(ctx context.Context, st state.State, services Services) (state.Delta, error) {
	var cfg StreamToClientConfig
	if err := decodeConfig(st, &cfg); err != nil {
		return state.Delta{}, err
	}

	response := st.FormattedResponse
	if response == "" {
		response = st.ModelResponse
	}

	emitProgress(ctx, st, services, progress.KindCompleted, map[string]any{"response": response})
	return state.Delta{}, nil
}
