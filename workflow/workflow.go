// Package workflow defines the workflow graph shape the Graph Executor
// runs: a directed graph of typed nodes connected by unconditional edges
// (spec §3.2). Conditional branching lives entirely inside Router node
// config (see node.RouterConfig), never on the edge itself — mirroring
// the teacher's split between graph.Edge's optional predicate and its
// node-level Route, except here the predicate moves into the node.
package workflow

import "encoding/json"

// NodeDef is one node of a workflow definition: an id, the node kind it
// instantiates (see node.Node implementations), and the kind's own
// configuration, decoded lazily by that node at Run.
type NodeDef struct {
	ID     string          `json:"id"`
	Type   string          `json:"type"`
	Config json.RawMessage `json:"config,omitempty"`
}

// EdgeDef is one unconditional edge, grounded on the teacher's
// graph.Edge[S] minus its predicate field — spec §3.2: "Edges are
// unconditional; conditional branching is performed by Router nodes."
type EdgeDef struct {
	ID   string `json:"id"`
	From string `json:"from"`
	To   string `json:"to"`
}

// Workflow is a complete graph definition as loaded from the workflow
// definition store (spec §3.2, §6).
type Workflow struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	EntryPoint string    `json:"entryPoint"`
	Nodes      []NodeDef `json:"nodes"`
	Edges      []EdgeDef `json:"edges"`
}

// NodeByID returns the node definition with the given id, if any.
func (w Workflow) NodeByID(id string) (NodeDef, bool) {
	for _, n := range w.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return NodeDef{}, false
}

// OutgoingEdges returns every edge whose From matches nodeID, in
// declaration order.
func (w Workflow) OutgoingEdges(nodeID string) []EdgeDef {
	var out []EdgeDef
	for _, e := range w.Edges {
		if e.From == nodeID {
			out = append(out, e)
		}
	}
	return out
}
