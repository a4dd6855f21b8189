package state

import "encoding/json"

// Delta is what a Node.Run returns: a sparse set of field updates for the
// executor to merge into State via Merge. Every field is optional; a zero
// value distinguishes "no update" from "update to the zero value" by using
// a pointer (scalars) or a nil slice/map (collections) as the absence marker.
type Delta struct {
	UserPrompt *string `json:"userPrompt,omitempty"`

	// MemoryAppend is appended onto State.Memory in order.
	MemoryAppend []Turn `json:"memoryAppend,omitempty"`

	// SlotValues/SlotAttempts are merged key-by-key into the prior maps.
	SlotValues   map[string]any `json:"slotValues,omitempty"`
	SlotAttempts map[string]int `json:"slotAttempts,omitempty"`

	CurrentSlotKey *string `json:"currentSlotKey,omitempty"`
	AllSlotsFilled *bool   `json:"allSlotsFilled,omitempty"`

	Intent           *string  `json:"intent,omitempty"`
	IntentConfidence *float64 `json:"intentConfidence,omitempty"`

	NextNode      *string `json:"nextNode,omitempty"`
	RoutingReason *string `json:"routingReason,omitempty"`

	ModelResponse     *string `json:"modelResponse,omitempty"`
	FormattedResponse *string `json:"formattedResponse,omitempty"`

	CurrentNodeID     *string         `json:"currentNodeId,omitempty"`
	CurrentNodeType   *string         `json:"currentNodeType,omitempty"`
	CurrentNodeConfig json.RawMessage `json:"currentNodeConfig,omitempty"`

	AllowedDocumentIDs []string `json:"allowedDocumentIds,omitempty"`
	OwnersForProgress  []string `json:"ownersForProgress,omitempty"`

	ContextMeta *ContextMeta `json:"contextMeta,omitempty"`

	Input any `json:"input,omitempty"`

	RouteChosen      *string `json:"__routeChosen,omitempty"`
	NeedsUserInput   *bool   `json:"__needsUserInput,omitempty"`
	AwaitingInputFor *string `json:"awaitingInputFor,omitempty"`

	// InputCursor follows the sticky-numeric reducer: a nil value leaves
	// State.InputCursor untouched, and a non-nil value wins unless it is
	// below the prior value — "sticky" here means the field departs from
	// the ordinary replace-on-presence rule of every other pointer field
	// by refusing backward rollbacks (see mergeStickyNumeric).
	InputCursor *int `json:"inputCursor,omitempty"`
}
