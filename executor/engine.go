// Package executor implements the Graph Executor (spec §4.7): it
// validates a workflow once per invocation, then runs a sequential,
// single-threaded step loop that picks the next node, calls it, merges
// its state delta, evaluates routing, and detects suspension or
// termination. Grounded on the teacher's graph.Engine[S].Run loop
// (graph/engine.go), generalized from a generic, concurrent,
// checkpoint-replayable engine to our single concrete State schema and
// strictly sequential scheduling model (spec §5: "the step loop is
// sequential and single-threaded at the executor level").
package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/workflowrunner/workflowrunner/node"
	"github.com/workflowrunner/workflowrunner/progress"
	"github.com/workflowrunner/workflowrunner/state"
	"github.com/workflowrunner/workflowrunner/workflow"
)

// DefaultStepCap is spec §4.7's default step cap ("a step cap (default 64)").
const DefaultStepCap = 64

// Options configures one Engine, grounded on the teacher's Options
// struct (graph/options.go) minus every field tied to concurrent or
// replayable execution (MaxConcurrentNodes, QueueDepth,
// BackpressureTimeout, ReplayMode, StrictReplay, CostTracker) — none of
// which a sequential, non-replayed executor needs.
type Options struct {
	// StepCap bounds the step loop; zero defaults to DefaultStepCap.
	StepCap int

	// WallClockBudget bounds one invocation's total Run time via
	// context.WithTimeout, mirroring the teacher's RunWallClockBudget
	// (spec §5). Zero disables the budget.
	WallClockBudget time.Duration

	// DefaultNodeTimeout, when non-zero, wraps every node's Run call in
	// its own per-step deadline in addition to WallClockBudget.
	DefaultNodeTimeout time.Duration

	Metrics *Metrics
}

func (o Options) stepCap() int {
	if o.StepCap <= 0 {
		return DefaultStepCap
	}
	return o.StepCap
}

// InvocationRequest is the transport-facing invocation request (spec §6).
type InvocationRequest struct {
	WorkflowID         string
	UserID             string
	ConversationID     string
	UserPrompt         string
	AllowedDocumentIDs []string

	// InvocationID is generated via uuid when empty.
	InvocationID string
}

// Engine runs one validated Workflow's step loop against a shared
// Services bundle, persisting suspension snapshots to an optional
// StateStore.
type Engine struct {
	workflow workflow.Workflow
	nodes    NodeRegistry
	store    StateStore
	services node.Services
	opts     Options
	log      zerolog.Logger
}

// NewEngine validates wf and builds an Engine. Validation happens once
// here rather than per-Run, matching spec §4.7 ("Validation (once per
// invocation)") interpreted at the granularity of "once per loaded
// workflow definition" — the teacher's Add/StartAt/Connect checks are
// similarly paid once, at graph-construction time, not per Run call.
func NewEngine(wf workflow.Workflow, nodes NodeRegistry, store StateStore, services node.Services, opts Options, log zerolog.Logger) (*Engine, error) {
	if err := workflow.Validate(wf); err != nil {
		return nil, err
	}
	if nodes == nil {
		nodes = DefaultNodeRegistry()
	}
	return &Engine{
		workflow: wf,
		nodes:    nodes,
		store:    store,
		services: services,
		opts:     opts,
		log:      log,
	}, nil
}

// Run executes one invocation to completion or suspension. A nil error
// with NeedsUserInput set on the returned State means the invocation
// suspended normally awaiting a subsequent call with the same
// ConversationID; the caller is not expected to treat that as failure.
func (e *Engine) Run(ctx context.Context, req InvocationRequest) (state.State, error) {
	invocationID := req.InvocationID
	if invocationID == "" {
		invocationID = uuid.NewString()
	}
	services := e.services
	services.InvocationID = invocationID
	services.InvokingUser = req.UserID

	if e.opts.WallClockBudget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.WallClockBudget)
		defer cancel()
	}

	st, err := e.loadOrFresh(ctx, req)
	if err != nil {
		return state.State{}, err
	}

	for step := 1; ; step++ {
		if step > e.opts.stepCap() {
			e.opts.Metrics.observeRunOutcome("step_limit_exceeded")
			return st, &ErrStepLimitExceeded{RunID: req.ConversationID, Steps: e.opts.stepCap()}
		}

		select {
		case <-ctx.Done():
			e.emit(ctx, st, services, progress.KindError, map[string]any{"reason": "TIMEOUT"})
			if err := e.persistSnapshot(ctx, req.ConversationID, st); err != nil {
				e.log.Warn().Err(err).Msg("executor: snapshot persist failed on timeout")
			}
			e.opts.Metrics.observeRunOutcome("timeout")
			return st, &ErrWallClockBudgetExceeded{RunID: req.ConversationID}
		default:
		}

		nodeDef, ok := e.workflow.NodeByID(st.CurrentNodeID)
		if !ok {
			return st, &ErrNodeNotFound{NodeID: st.CurrentNodeID}
		}
		impl, ok := e.nodes[nodeDef.Type]
		if !ok {
			return st, &ErrNoImplementation{NodeType: nodeDef.Type}
		}
		st.CurrentNodeType = nodeDef.Type
		st.CurrentNodeConfig = nodeDef.Config

		e.emit(ctx, st, services, progress.KindStarted, nil)

		nodeCtx, cancelNode := e.nodeContext(ctx)
		start := e.now(services)
		delta, runErr := impl.Run(nodeCtx, st, services)
		cancelNode()
		latencyMs := float64(e.now(services).Sub(start).Milliseconds())

		if runErr != nil {
			e.opts.Metrics.observeStep(nodeDef.ID, nodeDef.Type, "error", latencyMs)
			e.emit(ctx, st, services, progress.KindError, map[string]any{"reason": runErr.Error()})
			e.opts.Metrics.observeRunOutcome("error")
			return st, &ErrNodeRunFailed{NodeID: nodeDef.ID, Cause: runErr}
		}
		e.opts.Metrics.observeStep(nodeDef.ID, nodeDef.Type, "ok", latencyMs)

		st = state.Merge(st, delta)

		if st.NeedsUserInput {
			e.opts.Metrics.observeSuspension()
			e.emit(ctx, st, services, progress.KindAwaitingInput, map[string]any{"awaitingInputFor": st.AwaitingInputFor})
			if err := e.persistSnapshot(ctx, req.ConversationID, st); err != nil {
				e.log.Warn().Err(err).Str("conversationId", req.ConversationID).Msg("executor: snapshot persist failed on suspension")
			}
			e.commitMemory(ctx, services, req.ConversationID, req.UserPrompt, st)
			e.opts.Metrics.observeRunOutcome("suspended")
			return st, nil
		}

		// The terminal node emits its own COMPLETED row carrying the
		// final response payload (node/stream_to_client.go); emitting a
		// second, payload-less COMPLETED here would double-count it.
		if nodeDef.Type == workflow.TerminalType {
			e.finish(ctx, services, req, st)
			e.opts.Metrics.observeRunOutcome("completed")
			return st, nil
		}
		e.emit(ctx, st, services, progress.KindCompleted, nil)

		next, terminal, err := e.resolveNext(nodeDef, &st)
		if err != nil {
			e.opts.Metrics.observeRunOutcome("error")
			return st, err
		}
		if terminal {
			e.finish(ctx, services, req, st)
			e.opts.Metrics.observeRunOutcome("completed")
			return st, nil
		}
		st.CurrentNodeID = next
	}
}

// resolveNext implements spec §4.7 step 1's priority order: an explicit
// state.nextNode override, then a Router's __routeChosen, then the
// node's unique outgoing edge. Both override fields are cleared once
// consumed so a later step never reuses a stale choice (a node fresh in
// RouteChosen/NextNode each time it legitimately produces one).
func (e *Engine) resolveNext(current workflow.NodeDef, st *state.State) (next string, terminal bool, err error) {
	if st.NextNode != "" {
		next = st.NextNode
		st.NextNode = ""
		return next, false, nil
	}
	if current.Type == workflow.RouterType {
		if st.RouteChosen == "" {
			return "", false, &ErrNoRoute{NodeID: current.ID}
		}
		next = st.RouteChosen
		st.RouteChosen = ""
		return next, false, nil
	}
	edges := e.workflow.OutgoingEdges(current.ID)
	switch len(edges) {
	case 0:
		return "", true, nil
	case 1:
		return edges[0].To, false, nil
	default:
		// Validate rejects workflows with more than one unconditional
		// edge from the same node; this branch only guards a caller
		// that skipped NewEngine's validation.
		return "", false, &ErrNoRoute{NodeID: current.ID}
	}
}

func (e *Engine) loadOrFresh(ctx context.Context, req InvocationRequest) (state.State, error) {
	if e.store != nil {
		data, found, err := e.store.LoadSnapshot(ctx, req.ConversationID)
		if err != nil {
			return state.State{}, fmt.Errorf("executor: load snapshot: %w", err)
		}
		if found {
			prior, err := state.Load(data)
			if err != nil {
				return state.State{}, fmt.Errorf("executor: decode snapshot: %w", err)
			}
			return e.resume(prior, req), nil
		}
	}
	return e.fresh(req), nil
}

// fresh seeds a brand-new invocation's state (spec §4.1 "fresh(workflow,
// request)"): identity/workflow/user-prompt fields plus the entry node.
func (e *Engine) fresh(req InvocationRequest) state.State {
	return state.State{
		UserID:             req.UserID,
		WorkflowID:         e.workflow.ID,
		ConversationID:     req.ConversationID,
		UserPrompt:         req.UserPrompt,
		AllowedDocumentIDs: req.AllowedDocumentIDs,
		CurrentNodeID:      e.workflow.EntryPoint,
	}
}

// resume implements spec §4.7's suspension/resumption contract: load the
// prior snapshot, append the new userPrompt, increment inputCursor,
// clear the suspension flags, and re-enter the loop at the same node
// (prior.CurrentNodeID, preserved by Clone).
func (e *Engine) resume(prior state.State, req InvocationRequest) state.State {
	next := prior.Clone()
	next.UserPrompt = req.UserPrompt
	next.AllowedDocumentIDs = req.AllowedDocumentIDs
	next.NeedsUserInput = false
	next.AwaitingInputFor = ""
	cursor := next.InputCursor + 1
	next.InputCursor = cursor
	return next
}

func (e *Engine) persistSnapshot(ctx context.Context, conversationID string, st state.State) error {
	if e.store == nil {
		return nil
	}
	data, err := state.Snapshot(st)
	if err != nil {
		return err
	}
	return e.store.SaveSnapshot(ctx, conversationID, data)
}

// finish clears any stale suspension snapshot and commits this
// invocation's new conversation turns once the step loop reaches a
// terminal node, so a later invocation of the same conversation starts
// fresh at the entry node rather than resuming a completed run.
func (e *Engine) finish(ctx context.Context, services node.Services, req InvocationRequest, st state.State) {
	if e.store != nil {
		if err := e.store.DeleteSnapshot(ctx, req.ConversationID); err != nil {
			e.log.Warn().Err(err).Str("conversationId", req.ConversationID).Msg("executor: snapshot cleanup failed on completion")
		}
	}
	e.commitMemory(ctx, services, req.ConversationID, req.UserPrompt, st)
}

// commitMemory is the executor's commit hook for ConversationMemory
// (spec §4.5: "Persists new turns at end-of-invocation"): the turn the
// user just sent, and the model's reply if one was produced before
// suspension or completion.
func (e *Engine) commitMemory(ctx context.Context, services node.Services, conversationID, userPrompt string, st state.State) {
	var turns []state.Turn
	if userPrompt != "" {
		turns = append(turns, state.Turn{Role: state.RoleUser, Content: userPrompt})
	}
	if st.ModelResponse != "" {
		response := st.FormattedResponse
		if response == "" {
			response = st.ModelResponse
		}
		turns = append(turns, state.Turn{Role: state.RoleAssistant, Content: response})
	}
	if len(turns) == 0 {
		return
	}
	if err := node.PersistTurns(ctx, services, conversationID, turns); err != nil {
		e.log.Warn().Err(err).Str("conversationId", conversationID).Msg("executor: commit memory failed")
	}
}

// resolveOwners computes the set ownersForProgress ∪ {userId} (spec
// §4.6): every owner listed exactly once, even when the invoking user
// is already present in st.OwnersForProgress.
func resolveOwners(st state.State, services node.Services) []string {
	seen := make(map[string]struct{}, len(st.OwnersForProgress)+1)
	var owners []string
	add := func(owner string) {
		if owner == "" {
			return
		}
		if _, ok := seen[owner]; ok {
			return
		}
		seen[owner] = struct{}{}
		owners = append(owners, owner)
	}
	for _, owner := range st.OwnersForProgress {
		add(owner)
	}
	add(services.InvokingUser)
	if len(owners) == 0 {
		add(st.UserID)
	}
	return owners
}

func (e *Engine) emit(ctx context.Context, st state.State, services node.Services, kind progress.Kind, payload map[string]any) {
	if services.Progress == nil {
		return
	}
	owners := resolveOwners(st, services)
	services.Progress.Emit(ctx, st.ConversationID, services.InvocationID, st.CurrentNodeID, kind, owners, payload)
}

func (e *Engine) nodeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.opts.DefaultNodeTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, e.opts.DefaultNodeTimeout)
}

func (e *Engine) now(services node.Services) time.Time {
	if services.Clock != nil {
		return services.Clock()
	}
	return time.Now()
}
