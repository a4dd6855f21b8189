package node

import (
	"encoding/json"
	"fmt"

	"github.com/workflowrunner/workflowrunner/state"
)

// decodeConfig unmarshals st.CurrentNodeConfig into out, wrapping any
// failure as *ErrInvalidConfig so the executor can surface a uniform
// node-logic error.
func decodeConfig(st state.State, out any) error {
	if len(st.CurrentNodeConfig) == 0 {
		return nil
	}
	if err := json.Unmarshal(st.CurrentNodeConfig, out); err != nil {
		return &ErrInvalidConfig{NodeID: st.CurrentNodeID, Cause: err}
	}
	return nil
}

// ConversationMemoryConfig configures the ConversationMemory node.
type ConversationMemoryConfig struct {
	MemorySize int `json:"memorySize"`
}

// IntentClassifierConfig configures the IntentClassifier node.
type IntentClassifierConfig struct {
	Intents             []string `json:"intents"`
	ConfidenceThreshold  float64  `json:"confidenceThreshold"`
	FallbackIntent       string   `json:"fallbackIntent"`
	ModelID              string   `json:"modelId"`
}

// RouteRule is one candidate route a Router node may choose.
type RouteRule struct {
	Condition string `json:"condition"`
	Target    string `json:"target"`
	Priority  int    `json:"priority"`
}

// RouterConfig configures the Router node's restricted predicate DSL
// evaluation (see node/router_dsl.go).
type RouterConfig struct {
	Routes                []RouteRule `json:"routes"`
	DefaultRoute          string      `json:"defaultRoute"`
	EvaluateAllConditions bool        `json:"evaluateAllConditions"`
}

// SlotDef is one slot the SlotTracker node collects.
type SlotDef struct {
	Key        string `json:"key"`
	Prompt     string `json:"prompt"`
	Required   bool   `json:"required"`
	Validation string `json:"validation"`
	MaxRetries int    `json:"maxRetries"`
}

// SlotTrackerConfig configures the SlotTracker node.
type SlotTrackerConfig struct {
	Slots            []SlotDef `json:"slots"`
	MaxTotalAttempts int       `json:"maxTotalAttempts"`
	FallbackRoute    string    `json:"fallbackRoute"`
}

// VectorSearchConfig configures the VectorSearch node.
type VectorSearchConfig struct {
	SearchQuery string `json:"searchQuery"`
	ResultCount int    `json:"resultCount"`
	Namespace   string `json:"namespace"`
}

// VectorWriteConfig configures the VectorWrite node.
type VectorWriteConfig struct {
	Namespace string   `json:"namespace"`
	Fields    []string `json:"fields"`
}

// ModelInvokeConfig configures the ModelInvoke node.
type ModelInvokeConfig struct {
	ModelID      string  `json:"modelId"`
	Streaming    bool    `json:"streaming"`
	Temperature  float64 `json:"temperature"`
	MaxTokens    int     `json:"maxTokens"`
	SystemPrompt string  `json:"systemPrompt"`
	OutputFormat string  `json:"outputFormat"`
	Tone         string  `json:"tone"`
	Style        string  `json:"style"`
	UseMemory    bool    `json:"useMemory"`
	MemorySize   int     `json:"memorySize"`
}

// FormatConfig configures the Format node.
type FormatConfig struct {
	OutputFormat string `json:"outputFormat"`
}

// StreamToClientConfig configures the StreamToClient node. It carries no
// fields today; it exists so decodeConfig has a consistent target type
// and future fields don't require changing the node's signature.
type StreamToClientConfig struct{}

func invalidConfigf(nodeID, format string, args ...any) error {
	return &ErrInvalidConfig{NodeID: nodeID, Cause: fmt.Errorf(format, args...)}
}
