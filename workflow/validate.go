package workflow

import (
	"encoding/json"
	"fmt"
)

// RouterType is the node kind whose config carries additional routing
// targets (routes[].target, defaultRoute) that validation must also
// resolve against known node ids.
const RouterType = "Router"

// TerminalType is the node kind that legitimately has no successors
// (spec §4.7: "the graph has at least one terminal (StreamToClient or a
// node with no successors)").
const TerminalType = "StreamToClient"

// routerConfigShape mirrors node.RouterConfig's target-bearing fields.
// workflow does not import node (node already imports workflow-adjacent
// packages but not vice versa) so it redeclares only what validation needs.
type routerConfigShape struct {
	Routes []struct {
		Target string `json:"target"`
	} `json:"routes"`
	DefaultRoute string `json:"defaultRoute"`
}

// ValidationError reports a single structural defect found by Validate.
// Validate collects every defect it finds rather than stopping at the
// first, so a workflow author sees the whole picture in one pass.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return "workflow: " + e.Reason }

// Errors aggregates every ValidationError Validate found.
type Errors []*ValidationError

func (e Errors) Error() string {
	if len(e) == 1 {
		return e[0].Error()
	}
	msg := fmt.Sprintf("workflow: %d validation errors:", len(e))
	for _, ve := range e {
		msg += "\n  - " + ve.Reason
	}
	return msg
}

// Validate checks the structural invariants spec §3.2 and §4.7 demand
// before a workflow may be executed:
//
//   - entryPoint names a known node
//   - no node id is duplicated
//   - every edge references known nodes
//   - a node has at most one unconditional outgoing edge (multiple
//     unconditional edges from the same node are rejected at validation
//     time, per spec §4.7 step 1)
//   - every Router route target (and defaultRoute) names a known node
//   - every non-terminal node reaches at least one successor, via an
//     edge or a Router target
//   - the graph has at least one terminal node
//
// Grounded on the teacher's Add/StartAt/Connect existence checks
// (graph/engine.go), folded into a single batch pass since this package
// has no incremental builder API.
func Validate(w Workflow) error {
	var errs Errors

	seen := make(map[string]bool, len(w.Nodes))
	for _, n := range w.Nodes {
		if seen[n.ID] {
			errs = append(errs, &ValidationError{Reason: fmt.Sprintf("duplicate node id %q", n.ID)})
			continue
		}
		seen[n.ID] = true
	}

	if w.EntryPoint == "" {
		errs = append(errs, &ValidationError{Reason: "entryPoint is empty"})
	} else if !seen[w.EntryPoint] {
		errs = append(errs, &ValidationError{Reason: fmt.Sprintf("entryPoint %q does not name a known node", w.EntryPoint)})
	}

	outgoingCount := make(map[string]int, len(w.Nodes))
	for _, e := range w.Edges {
		if !seen[e.From] {
			errs = append(errs, &ValidationError{Reason: fmt.Sprintf("edge %q: from %q is not a known node", e.ID, e.From)})
		}
		if !seen[e.To] {
			errs = append(errs, &ValidationError{Reason: fmt.Sprintf("edge %q: to %q is not a known node", e.ID, e.To)})
		}
		outgoingCount[e.From]++
	}
	for nodeID, count := range outgoingCount {
		if count > 1 {
			errs = append(errs, &ValidationError{Reason: fmt.Sprintf("node %q has %d unconditional outgoing edges; at most one is allowed", nodeID, count)})
		}
	}

	reachesSuccessor := make(map[string]bool, len(w.Nodes))
	for _, e := range w.Edges {
		reachesSuccessor[e.From] = true
	}

	hasTerminal := false
	for _, n := range w.Nodes {
		if n.Type == TerminalType {
			hasTerminal = true
		}
		if n.Type == RouterType {
			var cfg routerConfigShape
			if len(n.Config) > 0 {
				if err := json.Unmarshal(n.Config, &cfg); err != nil {
					errs = append(errs, &ValidationError{Reason: fmt.Sprintf("node %q: invalid Router config: %v", n.ID, err)})
					continue
				}
			}
			reachesSuccessor[n.ID] = true
			if cfg.DefaultRoute != "" && !seen[cfg.DefaultRoute] {
				errs = append(errs, &ValidationError{Reason: fmt.Sprintf("node %q: defaultRoute %q is not a known node", n.ID, cfg.DefaultRoute)})
			}
			for _, r := range cfg.Routes {
				if r.Target != "" && !seen[r.Target] {
					errs = append(errs, &ValidationError{Reason: fmt.Sprintf("node %q: route target %q is not a known node", n.ID, r.Target)})
				}
			}
		}
	}
	// A node with no successor is terminal by definition (spec §4.7:
	// "StreamToClient or a node with no successors"), so the absence of
	// a successor is never itself a validation error — only the absence
	// of any terminal node at all is.
	for _, n := range w.Nodes {
		if !reachesSuccessor[n.ID] {
			hasTerminal = true
		}
	}
	if !hasTerminal {
		errs = append(errs, &ValidationError{Reason: "graph has no terminal node (StreamToClient or a node with no successors)"})
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}
