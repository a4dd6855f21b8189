package state

// Merge applies delta onto prior and returns the resulting State. Merge
// never mutates prior: it starts from a Clone so that two deltas applied
// to the same prior cannot observe each other's writes (spec §8 property 1,
// determinism; property 2, associativity of independent-field deltas).
func Merge(prior State, delta Delta) State {
	next := prior.Clone()

	if delta.UserPrompt != nil {
		next.UserPrompt = *delta.UserPrompt
	}
	if len(delta.MemoryAppend) > 0 {
		next.Memory = append(next.Memory, delta.MemoryAppend...)
	}
	next.SlotValues = mergeAnyMap(next.SlotValues, delta.SlotValues)
	next.SlotAttempts = mergeIntMap(next.SlotAttempts, delta.SlotAttempts)

	if delta.CurrentSlotKey != nil {
		next.CurrentSlotKey = *delta.CurrentSlotKey
	}
	if delta.AllSlotsFilled != nil {
		next.AllSlotsFilled = *delta.AllSlotsFilled
	}
	if delta.Intent != nil {
		next.Intent = *delta.Intent
	}
	if delta.IntentConfidence != nil {
		next.IntentConfidence = *delta.IntentConfidence
	}
	if delta.NextNode != nil {
		next.NextNode = *delta.NextNode
	}
	if delta.RoutingReason != nil {
		next.RoutingReason = *delta.RoutingReason
	}
	if delta.ModelResponse != nil {
		next.ModelResponse = *delta.ModelResponse
	}
	if delta.FormattedResponse != nil {
		next.FormattedResponse = *delta.FormattedResponse
	}
	if delta.CurrentNodeID != nil {
		next.CurrentNodeID = *delta.CurrentNodeID
	}
	if delta.CurrentNodeType != nil {
		next.CurrentNodeType = *delta.CurrentNodeType
	}
	if delta.CurrentNodeConfig != nil {
		next.CurrentNodeConfig = append([]byte(nil), delta.CurrentNodeConfig...)
	}
	if delta.AllowedDocumentIDs != nil {
		next.AllowedDocumentIDs = append([]string(nil), delta.AllowedDocumentIDs...)
	}
	if delta.OwnersForProgress != nil {
		next.OwnersForProgress = append([]string(nil), delta.OwnersForProgress...)
	}
	if delta.ContextMeta != nil {
		next.ContextMeta = *delta.ContextMeta
	}
	if delta.Input != nil {
		next.Input = delta.Input
	}
	if delta.RouteChosen != nil {
		next.RouteChosen = *delta.RouteChosen
	}
	if delta.NeedsUserInput != nil {
		next.NeedsUserInput = *delta.NeedsUserInput
	}
	if delta.AwaitingInputFor != nil {
		next.AwaitingInputFor = *delta.AwaitingInputFor
	}
	next.InputCursor = mergeStickyNumeric(next.InputCursor, delta.InputCursor)

	return next
}

// mergeAnyMap implements the merge reducer for State.SlotValues: delta's
// keys overwrite prior's matching keys, every other key of prior survives.
func mergeAnyMap(prior map[string]any, delta map[string]any) map[string]any {
	if len(delta) == 0 {
		return prior
	}
	out := make(map[string]any, len(prior)+len(delta))
	for k, v := range prior {
		out[k] = v
	}
	for k, v := range delta {
		out[k] = v
	}
	return out
}

func mergeIntMap(prior map[string]int, delta map[string]int) map[string]int {
	if len(delta) == 0 {
		return prior
	}
	out := make(map[string]int, len(prior)+len(delta))
	for k, v := range prior {
		out[k] = v
	}
	for k, v := range delta {
		out[k] = v
	}
	return out
}

// mergeStickyNumeric implements the sticky-numeric reducer: InputCursor
// only ever advances. A delta that tries to move it backward (stale retry,
// replayed step) is silently dropped rather than applied, so resumption
// after a crash can never rewind past where the user already answered.
func mergeStickyNumeric(prior int, delta *int) int {
	if delta == nil {
		return prior
	}
	if *delta < prior {
		return prior
	}
	return *delta
}
