package node

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/workflowrunner/workflowrunner/state"
)

var errTrailingJSON = errors.New("node: trailing content after JSON value")

// Format transforms modelResponse into formattedResponse per
// cfg.OutputFormat. "json" re-parses and re-emits canonical JSON,
// surfacing *ErrFormatFailed on a parse failure; every other format
// ("markdown", "text", or empty) returns the text with surrounding
// whitespace trimmed (spec §4.5).
type Format struct{}

func (Format) Run(ctx context.Context, st state.State, services Services) (state.Delta, error) {
	var cfg FormatConfig
	if err := decodeConfig(st, &cfg); err != nil {
		return state.Delta{}, err
	}

	formatted, err := formatResponse(st.ModelResponse, cfg.OutputFormat)
	if err != nil {
		return state.Delta{}, &ErrFormatFailed{NodeID: st.CurrentNodeID, Cause: err}
	}
	return state.Delta{FormattedResponse: &formatted}, nil
}

func formatResponse(response, outputFormat string) (string, error) {
	switch outputFormat {
	case "json":
		return canonicalJSON(response)
	default:
		return strings.TrimSpace(response), nil
	}
}

// canonicalJSON parses raw as a JSON value and re-marshals it, rejecting
// trailing garbage and non-JSON text. encoding/json sorts object keys,
// giving a deterministic rendering for downstream comparisons.
func canonicalJSON(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	var v any
	dec := json.NewDecoder(strings.NewReader(trimmed))
	if err := dec.Decode(&v); err != nil {
		return "", err
	}
	if dec.More() {
		return "", errTrailingJSON
	}
	out, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
