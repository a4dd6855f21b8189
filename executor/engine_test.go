package executor

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/workflowrunner/workflowrunner/budget"
	"github.com/workflowrunner/workflowrunner/model"
	"github.com/workflowrunner/workflowrunner/node"
	"github.com/workflowrunner/workflowrunner/progress"
	"github.com/workflowrunner/workflowrunner/state"
	"github.com/workflowrunner/workflowrunner/store"
	"github.com/workflowrunner/workflowrunner/workflow"
)

func mustConfig(t *testing.T, v any) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	return raw
}

func testServices(t *testing.T, chat *model.MockChatModel, mem *store.MemoryStore) node.Services {
	t.Helper()
	reg, err := model.NewRegistry(model.DefaultCapabilities(), "gpt-4o-mini")
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}
	return node.Services{
		Registry:          reg,
		ResolveModel:      func(model.Capability) (model.ChatModel, error) { return chat, nil },
		BudgetCaps:        budget.Caps{},
		ConversationStore: mem,
		Progress:          progress.NewChannel(mem, zerolog.Nop()),
	}
}

// linearWorkflow builds a two-node ModelInvoke -> StreamToClient graph,
// the minimal shape exercising a normal completion run.
func linearWorkflow(t *testing.T) workflow.Workflow {
	t.Helper()
	return workflow.Workflow{
		ID:         "wf1",
		Name:       "linear",
		EntryPoint: "invoke",
		Nodes: []workflow.NodeDef{
			{ID: "invoke", Type: TypeModelInvoke, Config: mustConfig(t, node.ModelInvokeConfig{ModelID: "gpt-4o-mini"})},
			{ID: "stream", Type: TypeStreamToClient},
		},
		Edges: []workflow.EdgeDef{
			{ID: "e1", From: "invoke", To: "stream"},
		},
	}
}

func TestEngineRunsLinearWorkflowToCompletion(t *testing.T) {
	mem := store.NewMemoryStore()
	chat := &model.MockChatModel{Responses: []model.ChatOut{{Text: "hi there"}}}
	services := testServices(t, chat, mem)

	eng, err := NewEngine(linearWorkflow(t), nil, mem, services, Options{}, zerolog.Nop())
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	st, err := eng.Run(context.Background(), InvocationRequest{ConversationID: "conv1", UserID: "u1", UserPrompt: "hello", InvocationID: "inv1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st.ModelResponse != "hi there" {
		t.Fatalf("expected modelResponse=hi there, got %q", st.ModelResponse)
	}
	if st.NeedsUserInput {
		t.Fatal("expected completed run, not suspended")
	}

	events := mem.Events("conv1", "inv1")
	if len(events) == 0 {
		t.Fatal("expected progress events to have been recorded")
	}
	last := events[len(events)-1]
	if last.Kind != progress.KindCompleted {
		t.Fatalf("expected final event COMPLETED, got %v", last.Kind)
	}

	if _, found, _ := mem.LoadSnapshot(context.Background(), "conv1"); found {
		t.Fatal("expected no lingering snapshot after normal completion")
	}
}

// slotWorkflow builds a SlotTracker -> StreamToClient graph whose single
// required slot has no matching value in the first invocation's prompt,
// forcing suspension.
func slotWorkflow(t *testing.T) workflow.Workflow {
	t.Helper()
	return workflow.Workflow{
		ID:         "wf2",
		EntryPoint: "slots",
		Nodes: []workflow.NodeDef{
			{ID: "slots", Type: TypeSlotTracker, Config: mustConfig(t, node.SlotTrackerConfig{
				Slots: []node.SlotDef{{Key: "email", Prompt: "What is your email?", Required: true, Validation: `[^\s@]+@[^\s@]+`, MaxRetries: 3}},
			})},
			{ID: "stream", Type: TypeStreamToClient},
		},
		Edges: []workflow.EdgeDef{{ID: "e1", From: "slots", To: "stream"}},
	}
}

func TestEngineSuspendsAwaitingSlotAndResumes(t *testing.T) {
	mem := store.NewMemoryStore()
	chat := &model.MockChatModel{}
	services := testServices(t, chat, mem)

	eng, err := NewEngine(slotWorkflow(t), nil, mem, services, Options{}, zerolog.Nop())
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	st, err := eng.Run(context.Background(), InvocationRequest{ConversationID: "conv2", UserID: "u1", UserPrompt: "hi, no email here"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !st.NeedsUserInput || st.AwaitingInputFor != "email" {
		t.Fatalf("expected suspension awaiting email, got needsInput=%v awaitingFor=%q", st.NeedsUserInput, st.AwaitingInputFor)
	}

	if _, found, err := mem.LoadSnapshot(context.Background(), "conv2"); err != nil || !found {
		t.Fatalf("expected a persisted snapshot on suspension, found=%v err=%v", found, err)
	}

	st2, err := eng.Run(context.Background(), InvocationRequest{ConversationID: "conv2", UserID: "u1", UserPrompt: "reach me at a@b.com"})
	if err != nil {
		t.Fatalf("unexpected error on resume: %v", err)
	}
	if st2.NeedsUserInput {
		t.Fatal("expected resumed invocation to complete, still suspended")
	}
	if v, ok := st2.SlotValues["email"]; !ok || v != "a@b.com" {
		t.Fatalf("expected slotValues.email=a@b.com, got %+v", st2.SlotValues)
	}
	if st2.InputCursor != 1 {
		t.Fatalf("expected inputCursor to have incremented once across resume, got %d", st2.InputCursor)
	}
	if _, found, _ := mem.LoadSnapshot(context.Background(), "conv2"); found {
		t.Fatal("expected the snapshot to be cleared once the workflow completed")
	}
}

// routerWorkflow routes to one of two terminals based on state.intent.
func routerWorkflow(t *testing.T) workflow.Workflow {
	t.Helper()
	return workflow.Workflow{
		ID:         "wf3",
		EntryPoint: "classify",
		Nodes: []workflow.NodeDef{
			{ID: "classify", Type: TypeIntentClassifier, Config: mustConfig(t, node.IntentClassifierConfig{
				Intents: []string{"billing", "support"}, ConfidenceThreshold: 0.1, FallbackIntent: "support",
			})},
			{ID: "route", Type: TypeRouter, Config: mustConfig(t, node.RouterConfig{
				Routes:       []node.RouteRule{{Condition: `intent == "billing"`, Target: "billing_stream", Priority: 1}},
				DefaultRoute: "support_stream",
			})},
			{ID: "billing_stream", Type: TypeStreamToClient},
			{ID: "support_stream", Type: TypeStreamToClient},
		},
		Edges: []workflow.EdgeDef{
			{ID: "e1", From: "classify", To: "route"},
		},
	}
}

func TestEngineRoutesOnIntent(t *testing.T) {
	mem := store.NewMemoryStore()
	chat := &model.MockChatModel{Responses: []model.ChatOut{{Text: `{"intent":"billing","confidence":0.9}`}}}
	services := testServices(t, chat, mem)

	eng, err := NewEngine(routerWorkflow(t), nil, mem, services, Options{}, zerolog.Nop())
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	st, err := eng.Run(context.Background(), InvocationRequest{ConversationID: "conv3", UserID: "u1", UserPrompt: "I have a billing question"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st.CurrentNodeID != "billing_stream" {
		t.Fatalf("expected routing to billing_stream, ended at %q", st.CurrentNodeID)
	}
}

// loopingRouterWorkflow never satisfies its exit condition, forcing the
// step cap to trip.
func loopingRouterWorkflow(t *testing.T) workflow.Workflow {
	t.Helper()
	return workflow.Workflow{
		ID:         "wf4",
		EntryPoint: "loop",
		Nodes: []workflow.NodeDef{
			{ID: "loop", Type: TypeRouter, Config: mustConfig(t, node.RouterConfig{
				Routes:       []node.RouteRule{{Condition: `intent == "done"`, Target: "stream", Priority: 1}},
				DefaultRoute: "loop",
			})},
			{ID: "stream", Type: TypeStreamToClient},
		},
	}
}

func TestEngineStepLimitExceeded(t *testing.T) {
	mem := store.NewMemoryStore()
	services := testServices(t, &model.MockChatModel{}, mem)

	eng, err := NewEngine(loopingRouterWorkflow(t), nil, mem, services, Options{StepCap: 5}, zerolog.Nop())
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	_, err = eng.Run(context.Background(), InvocationRequest{ConversationID: "conv4", UserID: "u1", UserPrompt: "go"})
	if err == nil {
		t.Fatal("expected STEP_LIMIT_EXCEEDED error")
	}
	var limitErr *ErrStepLimitExceeded
	if !errors.As(err, &limitErr) {
		t.Fatalf("expected *ErrStepLimitExceeded, got %T: %v", err, err)
	}
}

func TestEngineHaltsOnNodeError(t *testing.T) {
	mem := store.NewMemoryStore()
	chat := &model.MockChatModel{Err: errors.New("invalid api key")}
	services := testServices(t, chat, mem)

	eng, err := NewEngine(linearWorkflow(t), nil, mem, services, Options{}, zerolog.Nop())
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	_, err = eng.Run(context.Background(), InvocationRequest{ConversationID: "conv5", UserID: "u1", UserPrompt: "hello"})
	if err == nil {
		t.Fatal("expected a node-run failure")
	}
	var runErr *ErrNodeRunFailed
	if !errors.As(err, &runErr) {
		t.Fatalf("expected *ErrNodeRunFailed, got %T: %v", err, err)
	}
	if runErr.NodeID != "invoke" {
		t.Fatalf("expected failure attributed to invoke, got %q", runErr.NodeID)
	}
}

func TestNewEngineRejectsInvalidWorkflow(t *testing.T) {
	mem := store.NewMemoryStore()
	services := testServices(t, &model.MockChatModel{}, mem)

	bad := workflow.Workflow{
		ID:         "bad",
		EntryPoint: "missing",
		Nodes:      []workflow.NodeDef{{ID: "stream", Type: TypeStreamToClient}},
	}
	if _, err := NewEngine(bad, nil, mem, services, Options{}, zerolog.Nop()); err == nil {
		t.Fatal("expected validation error for a missing entryPoint")
	}
}

func TestEngineMergesConversationMemoryAndCommitsNewTurns(t *testing.T) {
	mem := store.NewMemoryStore()
	chat := &model.MockChatModel{Responses: []model.ChatOut{{Text: "glad to help"}}}
	services := testServices(t, chat, mem)

	wf := workflow.Workflow{
		ID:         "wf6",
		EntryPoint: "memory",
		Nodes: []workflow.NodeDef{
			{ID: "memory", Type: TypeConversationMemory, Config: mustConfig(t, node.ConversationMemoryConfig{MemorySize: 10})},
			{ID: "invoke", Type: TypeModelInvoke, Config: mustConfig(t, node.ModelInvokeConfig{ModelID: "gpt-4o-mini"})},
			{ID: "stream", Type: TypeStreamToClient},
		},
		Edges: []workflow.EdgeDef{
			{ID: "e1", From: "memory", To: "invoke"},
			{ID: "e2", From: "invoke", To: "stream"},
		},
	}
	if err := mem.AppendTurns(context.Background(), "conv6", []state.Turn{{Role: state.RoleUser, Content: "earlier turn"}}); err != nil {
		t.Fatalf("seed turns: %v", err)
	}

	eng, err := NewEngine(wf, nil, mem, services, Options{}, zerolog.Nop())
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	st, err := eng.Run(context.Background(), InvocationRequest{ConversationID: "conv6", UserID: "u1", UserPrompt: "follow up question"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(st.Memory) != 1 || st.Memory[0].Content != "earlier turn" {
		t.Fatalf("expected prior turn loaded into state.Memory, got %+v", st.Memory)
	}

	turns, err := mem.LoadTurns(context.Background(), "conv6", 0)
	if err != nil {
		t.Fatalf("load turns: %v", err)
	}
	if len(turns) != 3 {
		t.Fatalf("expected 3 persisted turns (seeded + new user + new assistant), got %d: %+v", len(turns), turns)
	}
}
