package state

import (
	"encoding/json"
	"fmt"
)

// Snapshot serializes State to JSON for suspension (spec §4.7: a suspended
// invocation persists its State verbatim so resumption can continue from
// exactly where it paused). The source implementation JSON-stringifies
// unconditionally, so Snapshot never special-cases an empty or zero State.
func Snapshot(s State) ([]byte, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("state: snapshot: %w", err)
	}
	return b, nil
}

// Load deserializes a Snapshot produced earlier by this package.
func Load(data []byte) (State, error) {
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return State{}, fmt.Errorf("state: load: %w", err)
	}
	return s, nil
}
