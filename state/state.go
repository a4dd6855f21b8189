// Package state implements the execution-wide State Store: a typed record
// of named fields, each governed by a declared reducer, that the Graph
// Executor merges a node's Delta into after every step.
//
// The canonical field set and reducer assignment mirror spec §3.1. Unlike
// the teacher's generic Reducer[S] (one closure per caller-supplied state
// type), this package has exactly one state schema, so each field states
// its own reducer next to its declaration rather than through a
// caller-supplied function.
package state

import "encoding/json"

// Turn is one entry of conversation memory.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Conversation roles recognized by Turn.Role and by the Prompt Engine.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ContextMeta summarizes a VectorSearch node's retrieval for the Prompt
// Engine to consume (spec §4.4 step 4, §4.5 VectorSearch).
type ContextMeta struct {
	Count              int    `json:"count"`
	CombinedTextLength int    `json:"combinedTextLength"`
	Text               string `json:"text"`
}

// State is the execution-wide record carried across the step loop of one
// invocation and, at suspension, persisted for resumption.
//
// Replace fields: update wins when present, otherwise prior is kept.
// Append fields: update is concatenated onto prior, never reordered.
// Merge fields: update's keys overwrite prior's matching keys; the rest survive.
// Sticky-numeric fields: update wins when present and not below prior.
type State struct {
	// Identity and workflow linkage. Reducer: replace.
	UserID         string `json:"userId"`
	WorkflowID     string `json:"workflowId"`
	ConversationID string `json:"conversationId"`

	// Current turn input. Reducer: replace.
	UserPrompt string `json:"userPrompt"`

	// Ordered conversation memory. Reducer: append.
	Memory []Turn `json:"memory"`

	// Slot collection. Reducer: merge (per-key).
	SlotValues   map[string]any `json:"slotValues"`
	SlotAttempts map[string]int `json:"slotAttempts"`

	// Reducer: replace.
	CurrentSlotKey string `json:"currentSlotKey"`
	AllSlotsFilled bool   `json:"allSlotsFilled"`

	// Intent classification. Reducer: replace.
	Intent           string  `json:"intent"`
	IntentConfidence float64 `json:"intentConfidence"`

	// Routing. Reducer: replace.
	NextNode      string `json:"nextNode"`
	RoutingReason string `json:"routingReason"`

	// Model output. Reducer: replace.
	ModelResponse     string `json:"modelResponse"`
	FormattedResponse string `json:"formattedResponse"`

	// Current node bookkeeping, set by the executor before each Run. Reducer: replace.
	CurrentNodeID     string          `json:"currentNodeId"`
	CurrentNodeType   string          `json:"currentNodeType"`
	CurrentNodeConfig json.RawMessage `json:"currentNodeConfig,omitempty"`

	// Access control and observability scope. Reducer: replace.
	AllowedDocumentIDs []string `json:"allowedDocumentIds"`
	OwnersForProgress  []string `json:"ownersForProgress"`

	// RAG hint from VectorSearch. Reducer: replace.
	ContextMeta ContextMeta `json:"contextMeta"`

	// Template payload passed between nodes. Reducer: replace.
	Input any `json:"input,omitempty"`

	// Control-flow flags, spec §3.1's double-underscore fields. Reducer: replace.
	RouteChosen     string `json:"__routeChosen,omitempty"`
	NeedsUserInput  bool   `json:"__needsUserInput"`
	AwaitingInputFor string `json:"awaitingInputFor"`

	// Reducer: sticky numeric — an update only takes effect when it does
	// not move the cursor backward (see Delta.InputCursor and mergeStickyNumeric).
	InputCursor int `json:"inputCursor"`
}

// Clone returns a deep copy, used by the executor before handing state to
// a node so that node.Run's read-only contract (spec §4.5: "a node must
// not mutate its inputs") cannot be violated by slices/maps aliasing.
func (s State) Clone() State {
	out := s
	if s.Memory != nil {
		out.Memory = append([]Turn(nil), s.Memory...)
	}
	if s.SlotValues != nil {
		out.SlotValues = make(map[string]any, len(s.SlotValues))
		for k, v := range s.SlotValues {
			out.SlotValues[k] = v
		}
	}
	if s.SlotAttempts != nil {
		out.SlotAttempts = make(map[string]int, len(s.SlotAttempts))
		for k, v := range s.SlotAttempts {
			out.SlotAttempts[k] = v
		}
	}
	if s.AllowedDocumentIDs != nil {
		out.AllowedDocumentIDs = append([]string(nil), s.AllowedDocumentIDs...)
	}
	if s.OwnersForProgress != nil {
		out.OwnersForProgress = append([]string(nil), s.OwnersForProgress...)
	}
	if s.CurrentNodeConfig != nil {
		out.CurrentNodeConfig = append(json.RawMessage(nil), s.CurrentNodeConfig...)
	}
	return out
}
