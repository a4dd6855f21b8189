package node

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/workflowrunner/workflowrunner/budget"
	"github.com/workflowrunner/workflowrunner/model"
	"github.com/workflowrunner/workflowrunner/state"
)

func testRegistry(t *testing.T) *model.Registry {
	t.Helper()
	reg, err := model.NewRegistry(model.DefaultCapabilities(), "gpt-4o-mini")
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}
	return reg
}

func servicesWithMock(t *testing.T, chat *model.MockChatModel, caps budget.Caps) Services {
	t.Helper()
	return Services{
		Registry:     testRegistry(t),
		ResolveModel: func(model.Capability) (model.ChatModel, error) { return chat, nil },
		BudgetCaps:   caps,
		InvocationID: "inv1",
	}
}

func modelInvokeState(t *testing.T, cfg ModelInvokeConfig, userPrompt string) state.State {
	t.Helper()
	raw, err := json.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	return state.State{
		CurrentNodeID:     "model1",
		CurrentNodeConfig: raw,
		UserPrompt:        userPrompt,
	}
}

func TestModelInvokeHappyPath(t *testing.T) {
	chat := &model.MockChatModel{Responses: []model.ChatOut{{Text: "hello there"}}}
	services := servicesWithMock(t, chat, budget.Caps{})

	st := modelInvokeState(t, ModelInvokeConfig{ModelID: "gpt-4o-mini"}, "hi")

	delta, err := ModelInvoke{}.Run(context.Background(), st, services)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if delta.ModelResponse == nil || *delta.ModelResponse != "hello there" {
		t.Fatalf("expected modelResponse=hello there, got %+v", delta.ModelResponse)
	}
	if chat.CallCount() != 1 {
		t.Fatalf("expected exactly one call, got %d", chat.CallCount())
	}
}

func TestModelInvokeRefusesOverEmergencyCap(t *testing.T) {
	chat := &model.MockChatModel{Responses: []model.ChatOut{{Text: "should not be reached"}}}
	services := servicesWithMock(t, chat, budget.Caps{EmergencyCostThresholdUSD: 0.0000001})

	st := modelInvokeState(t, ModelInvokeConfig{ModelID: "gpt-4o-mini"}, "hi")

	_, err := ModelInvoke{}.Run(context.Background(), st, services)
	if err == nil {
		t.Fatal("expected budget refusal error")
	}
	var capErr *budget.ErrEmergencyCapHit
	if !errors.As(err, &capErr) {
		t.Fatalf("expected *budget.ErrEmergencyCapHit, got %T: %v", err, err)
	}
	if chat.CallCount() != 0 {
		t.Fatalf("expected no model calls after emergency cap refusal, got %d", chat.CallCount())
	}
}

func TestModelInvokeSurfacesModelCallFailedOnPersistentError(t *testing.T) {
	chat := &model.MockChatModel{Err: errors.New("invalid api key")}
	services := servicesWithMock(t, chat, budget.Caps{})

	st := modelInvokeState(t, ModelInvokeConfig{ModelID: "gpt-4o-mini"}, "hi")

	_, err := ModelInvoke{}.Run(context.Background(), st, services)
	if err == nil {
		t.Fatal("expected MODEL_CALL_FAILED error")
	}
	var callErr *ErrModelCallFailed
	if !errors.As(err, &callErr) {
		t.Fatalf("expected *ErrModelCallFailed, got %T: %v", err, err)
	}
	if chat.CallCount() != 1 {
		t.Fatalf("expected no retries for a non-transient error, got %d calls", chat.CallCount())
	}
}

func TestModelInvokeRetriesTransientErrors(t *testing.T) {
	chat := &model.MockChatModel{Err: errors.New("503 service unavailable")}
	services := servicesWithMock(t, chat, budget.Caps{})

	st := modelInvokeState(t, ModelInvokeConfig{ModelID: "gpt-4o-mini"}, "hi")

	_, err := ModelInvoke{}.Run(context.Background(), st, services)
	if err == nil {
		t.Fatal("expected MODEL_CALL_FAILED after exhausting retries")
	}
	if chat.CallCount() != modelInvokeRetry.maxAttempts {
		t.Fatalf("expected %d attempts, got %d", modelInvokeRetry.maxAttempts, chat.CallCount())
	}
}

func TestIsTransientClassification(t *testing.T) {
	cases := map[string]bool{
		"503 service unavailable":  true,
		"rate limit exceeded":      true,
		"invalid api key":          false,
		"unauthorized":             false,
	}
	for msg, want := range cases {
		if got := isTransient(errors.New(msg)); got != want {
			t.Errorf("isTransient(%q) = %v, want %v", msg, got, want)
		}
	}
}
