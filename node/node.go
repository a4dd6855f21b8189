// Package node implements the Node Library: the nine node kinds a
// workflow graph is built from (spec §4.5). Every node implements Run,
// decodes its own configuration from state.CurrentNodeConfig, and
// returns only the Delta fields it wishes to update — it must never
// mutate its inputs.
package node

import (
	"context"

	"github.com/workflowrunner/workflowrunner/state"
)

// Node is the uniform contract every node kind implements.
type Node interface {
	Run(ctx context.Context, st state.State, services Services) (state.Delta, error)
}

// Func adapts a plain function to the Node interface, mirroring the
// teacher's NodeFunc adapter for ad hoc or test nodes.
type Func func(ctx context.Context, st state.State, services Services) (state.Delta, error)

func (f Func) Run(ctx context.Context, st state.State, services Services) (state.Delta, error) {
	return f(ctx, st, services)
}
