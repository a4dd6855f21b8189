package executor

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/workflowrunner/workflowrunner/budget"
	"github.com/workflowrunner/workflowrunner/model"
	"github.com/workflowrunner/workflowrunner/node"
	"github.com/workflowrunner/workflowrunner/progress"
	"github.com/workflowrunner/workflowrunner/store"
	"github.com/workflowrunner/workflowrunner/workflow"
)

// TestScenarioS1SingleShotGeneration: entry -> Memory -> ModelInvoke ->
// Format -> StreamToClient, empty memory, one user turn expected.
func TestScenarioS1SingleShotGeneration(t *testing.T) {
	mem := store.NewMemoryStore()
	chat := &model.MockChatModel{Responses: []model.ChatOut{{Text: "Hello back"}}}
	services := testServices(t, chat, mem)

	wf := workflow.Workflow{
		ID:         "s1",
		EntryPoint: "memory",
		Nodes: []workflow.NodeDef{
			{ID: "memory", Type: TypeConversationMemory, Config: mustConfig(t, node.ConversationMemoryConfig{MemorySize: 20})},
			{ID: "invoke", Type: TypeModelInvoke, Config: mustConfig(t, node.ModelInvokeConfig{ModelID: "gpt-4o-mini"})},
			{ID: "format", Type: TypeFormat, Config: mustConfig(t, node.FormatConfig{OutputFormat: "text"})},
			{ID: "stream", Type: TypeStreamToClient},
		},
		Edges: []workflow.EdgeDef{
			{ID: "e1", From: "memory", To: "invoke"},
			{ID: "e2", From: "invoke", To: "format"},
			{ID: "e3", From: "format", To: "stream"},
		},
	}

	eng, err := NewEngine(wf, nil, mem, services, Options{}, zerolog.Nop())
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	st, err := eng.Run(context.Background(), InvocationRequest{ConversationID: "s1conv", UserID: "u1", UserPrompt: "Hello", InvocationID: "s1inv"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st.FormattedResponse != "Hello back" {
		t.Fatalf("expected formattedResponse=Hello back, got %q", st.FormattedResponse)
	}

	events := mem.Events("s1conv", "s1inv")
	counts := map[progress.Kind]int{}
	for _, e := range events {
		counts[e.Kind]++
	}
	if counts[progress.KindStarted] != 4 || counts[progress.KindCompleted] != 4 {
		t.Fatalf("expected one STARTED/COMPLETED pair per of 4 nodes, got %+v", counts)
	}

	turns, err := mem.LoadTurns(context.Background(), "s1conv", 0)
	if err != nil {
		t.Fatalf("load turns: %v", err)
	}
	if len(turns) != 2 || turns[0].Content != "Hello" || turns[1].Content != "Hello back" {
		t.Fatalf("expected one user and one assistant turn, got %+v", turns)
	}
}

// TestScenarioS2SlotSuspension: required slot "email" with no matching
// value in the prompt forces AWAITING_INPUT, no model call, snapshot saved.
func TestScenarioS2SlotSuspension(t *testing.T) {
	mem := store.NewMemoryStore()
	chat := &model.MockChatModel{}
	services := testServices(t, chat, mem)

	wf := workflow.Workflow{
		ID:         "s2",
		EntryPoint: "slots",
		Nodes: []workflow.NodeDef{
			{ID: "slots", Type: TypeSlotTracker, Config: mustConfig(t, node.SlotTrackerConfig{
				Slots: []node.SlotDef{{Key: "email", Prompt: "What is your email?", Required: true, Validation: `[^\s@]+@[^\s@]+`, MaxRetries: 3}},
			})},
			{ID: "invoke", Type: TypeModelInvoke, Config: mustConfig(t, node.ModelInvokeConfig{ModelID: "gpt-4o-mini"})},
			{ID: "stream", Type: TypeStreamToClient},
		},
		Edges: []workflow.EdgeDef{
			{ID: "e1", From: "slots", To: "invoke"},
			{ID: "e2", From: "invoke", To: "stream"},
		},
	}

	eng, err := NewEngine(wf, nil, mem, services, Options{}, zerolog.Nop())
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	st, err := eng.Run(context.Background(), InvocationRequest{ConversationID: "s2conv", UserID: "u1", UserPrompt: "I want to sign up", InvocationID: "s2inv"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !st.NeedsUserInput || st.AwaitingInputFor != "email" {
		t.Fatalf("expected suspension awaiting email, got needsInput=%v awaitingFor=%q", st.NeedsUserInput, st.AwaitingInputFor)
	}
	if chat.CallCount() != 0 {
		t.Fatalf("expected no model invocation before the slot is filled, got %d calls", chat.CallCount())
	}
	if _, found, err := mem.LoadSnapshot(context.Background(), "s2conv"); err != nil || !found {
		t.Fatalf("expected snapshot persisted on suspension, found=%v err=%v", found, err)
	}

	events := mem.Events("s2conv", "s2inv")
	var sawAwaiting bool
	for _, e := range events {
		if e.Kind == progress.KindAwaitingInput {
			sawAwaiting = true
		}
	}
	if !sawAwaiting {
		t.Fatal("expected an AWAITING_INPUT progress event")
	}
}

// TestScenarioS3SlotResumption continues S2 with a valid email, expects
// the slot filled, allSlotsFilled, and execution proceeding past SlotTracker.
func TestScenarioS3SlotResumption(t *testing.T) {
	mem := store.NewMemoryStore()
	chat := &model.MockChatModel{Responses: []model.ChatOut{{Text: "welcome aboard"}}}
	services := testServices(t, chat, mem)

	wf := workflow.Workflow{
		ID:         "s3",
		EntryPoint: "slots",
		Nodes: []workflow.NodeDef{
			{ID: "slots", Type: TypeSlotTracker, Config: mustConfig(t, node.SlotTrackerConfig{
				Slots: []node.SlotDef{{Key: "email", Prompt: "What is your email?", Required: true, Validation: `[^\s@]+@[^\s@]+`, MaxRetries: 3}},
			})},
			{ID: "invoke", Type: TypeModelInvoke, Config: mustConfig(t, node.ModelInvokeConfig{ModelID: "gpt-4o-mini"})},
			{ID: "stream", Type: TypeStreamToClient},
		},
		Edges: []workflow.EdgeDef{
			{ID: "e1", From: "slots", To: "invoke"},
			{ID: "e2", From: "invoke", To: "stream"},
		},
	}

	eng, err := NewEngine(wf, nil, mem, services, Options{}, zerolog.Nop())
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	if _, err := eng.Run(context.Background(), InvocationRequest{ConversationID: "s3conv", UserID: "u1", UserPrompt: "I want to sign up"}); err != nil {
		t.Fatalf("unexpected error on first invocation: %v", err)
	}

	st, err := eng.Run(context.Background(), InvocationRequest{ConversationID: "s3conv", UserID: "u1", UserPrompt: "a@b.co"})
	if err != nil {
		t.Fatalf("unexpected error on resumption: %v", err)
	}
	if st.NeedsUserInput {
		t.Fatal("expected the resumed invocation to proceed past SlotTracker")
	}
	if !st.AllSlotsFilled {
		t.Fatal("expected allSlotsFilled=true")
	}
	if v, ok := st.SlotValues["email"]; !ok || v != "a@b.co" {
		t.Fatalf("expected slotValues.email=a@b.co, got %+v", st.SlotValues)
	}
	if chat.CallCount() != 1 {
		t.Fatalf("expected exactly one model invocation once the slot was filled, got %d", chat.CallCount())
	}
}

// TestScenarioS4Routing: two candidate routes, higher-priority one
// matches first and __routeChosen/routingReason reflect it. Routed via
// a preceding IntentClassifier, since Router itself only reads intent.
func TestScenarioS4Routing(t *testing.T) {
	mem := store.NewMemoryStore()
	services := testServices(t, &model.MockChatModel{}, mem)

	wf := workflow.Workflow{
		ID:         "s4b",
		EntryPoint: "classify",
		Nodes: []workflow.NodeDef{
			{ID: "classify", Type: TypeIntentClassifier, Config: mustConfig(t, node.IntentClassifierConfig{
				Intents: []string{"refund", "greeting"}, ConfidenceThreshold: 0, FallbackIntent: "greeting",
			})},
			{ID: "route", Type: TypeRouter, Config: mustConfig(t, node.RouterConfig{
				Routes: []node.RouteRule{
					{Condition: `intent == "refund"`, Target: "r", Priority: 10},
					{Condition: `intent == "greeting"`, Target: "g", Priority: 5},
				},
			})},
			{ID: "r", Type: TypeStreamToClient},
			{ID: "g", Type: TypeStreamToClient},
		},
		Edges: []workflow.EdgeDef{{ID: "e1", From: "classify", To: "route"}},
	}

	mockChat := &model.MockChatModel{Responses: []model.ChatOut{{Text: `{"intent":"refund","confidence":1.0}`}}}
	services.ResolveModel = func(model.Capability) (model.ChatModel, error) { return mockChat, nil }

	eng, err := NewEngine(wf, nil, mem, services, Options{}, zerolog.Nop())
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	st, err := eng.Run(context.Background(), InvocationRequest{ConversationID: "s4conv", UserID: "u1", UserPrompt: "I'd like a refund please"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st.CurrentNodeID != "r" {
		t.Fatalf("expected the higher-priority refund route to win, ended at %q", st.CurrentNodeID)
	}
	if st.RoutingReason == "" {
		t.Fatal("expected routingReason to be set")
	}
}

// TestScenarioS5BudgetRefusal: a capability whose projected cost exceeds
// requestCostCapUSD must refuse before any provider call is made, and
// modelResponse must remain unchanged.
func TestScenarioS5BudgetRefusal(t *testing.T) {
	mem := store.NewMemoryStore()
	chat := &model.MockChatModel{Responses: []model.ChatOut{{Text: "should never be reached"}}}

	expensive := model.Capability{
		ID:            "expensive-model",
		Provider:      "anthropic",
		ContextWindow: 200_000,
		Tokenizer:     model.Tokenizer{Mode: model.TokenizerApprox, CharsPerToken: 4, Overhead: 1},
		Pricing:       model.Pricing{InputCostPerUnit: 1000, OutputCostPerUnit: 1000},
	}
	reg, err := model.NewRegistry([]model.Capability{expensive}, expensive.ID)
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}
	services := node.Services{
		Registry:          reg,
		ResolveModel:      func(model.Capability) (model.ChatModel, error) { return chat, nil },
		BudgetCaps:        budget.Caps{RequestCostCapUSD: 0.01},
		ConversationStore: mem,
		Progress:          progress.NewChannel(mem, zerolog.Nop()),
	}

	wf := workflow.Workflow{
		ID:         "s5",
		EntryPoint: "invoke",
		Nodes: []workflow.NodeDef{
			{ID: "invoke", Type: TypeModelInvoke, Config: mustConfig(t, node.ModelInvokeConfig{ModelID: expensive.ID})},
			{ID: "stream", Type: TypeStreamToClient},
		},
		Edges: []workflow.EdgeDef{{ID: "e1", From: "invoke", To: "stream"}},
	}

	eng, err := NewEngine(wf, nil, mem, services, Options{}, zerolog.Nop())
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	st, err := eng.Run(context.Background(), InvocationRequest{ConversationID: "s5conv", UserID: "u1", UserPrompt: "hello"})
	if err == nil {
		t.Fatal("expected a budget refusal error")
	}
	if st.ModelResponse != "" {
		t.Fatalf("expected modelResponse to remain unchanged on refusal, got %q", st.ModelResponse)
	}
	if chat.CallCount() != 0 {
		t.Fatalf("expected no provider call to have been made, got %d", chat.CallCount())
	}
}
