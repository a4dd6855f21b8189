package budget

import (
	"errors"
	"testing"

	"github.com/workflowrunner/workflowrunner/model"
)

func TestEstimateTokens_ApproxFormula(t *testing.T) {
	tok := model.Tokenizer{Mode: model.TokenizerApprox, CharsPerToken: 4, Overhead: 2}

	// L=40, c=4 -> ceil(10) = 10; N=2 messages -> +2*2=4; total 14.
	got := EstimateTokens(tok, 40, 2)
	if got != 14 {
		t.Errorf("expected 14 tokens, got %d", got)
	}
}

func TestEstimateTokens_OffModeIsZero(t *testing.T) {
	tok := model.Tokenizer{Mode: model.TokenizerOff, CharsPerToken: 4}
	got := EstimateTokens(tok, 1000, 5)
	if got != 0 {
		t.Errorf("expected 0 tokens in off mode, got %d", got)
	}
}

func TestCost_Formula(t *testing.T) {
	pricing := model.Pricing{InputCostPerUnit: 0.01, OutputCostPerUnit: 0.02}
	got := Cost(pricing, 1000, 500)
	want := 0.01*1000/1000 + 0.02*500/1000
	if got != want {
		t.Errorf("expected cost %v, got %v", want, got)
	}
}

func TestCheck_EmergencyThresholdUnconditional(t *testing.T) {
	caps := Caps{RequestCostCapUSD: 100, TokenCap: 1_000_000, EmergencyCostThresholdUSD: 5}
	est := Estimate{CostUSD: 5}

	err := Check(est, caps)

	var emergency *ErrEmergencyCapHit
	if !errors.As(err, &emergency) {
		t.Fatalf("expected *ErrEmergencyCapHit, got %v", err)
	}
}

func TestCheck_RequestCostCap(t *testing.T) {
	caps := Caps{RequestCostCapUSD: 1, EmergencyCostThresholdUSD: 100}
	est := Estimate{CostUSD: 2}

	err := Check(est, caps)

	var exceeded *ErrBudgetExceeded
	if !errors.As(err, &exceeded) {
		t.Fatalf("expected *ErrBudgetExceeded, got %v", err)
	}
	if exceeded.Reason != "cost_cap_exceeded" {
		t.Errorf("expected cost_cap_exceeded reason, got %q", exceeded.Reason)
	}
}

func TestCheck_TokenCap(t *testing.T) {
	caps := Caps{TokenCap: 100, EmergencyCostThresholdUSD: 100}
	est := Estimate{InputTokens: 200}

	err := Check(est, caps)

	var exceeded *ErrBudgetExceeded
	if !errors.As(err, &exceeded) {
		t.Fatalf("expected *ErrBudgetExceeded, got %v", err)
	}
	if exceeded.Reason != "token_cap_exceeded" {
		t.Errorf("expected token_cap_exceeded reason, got %q", exceeded.Reason)
	}
}

func TestCheck_WithinCapsReturnsNil(t *testing.T) {
	caps := Caps{RequestCostCapUSD: 10, TokenCap: 10_000, EmergencyCostThresholdUSD: 100}
	est := Estimate{CostUSD: 1, InputTokens: 500}

	if err := Check(est, caps); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
}

func TestEstimateCall_ExactModeRequiresCounter(t *testing.T) {
	cap := model.Capability{ID: "exact-model", Tokenizer: model.Tokenizer{Mode: model.TokenizerExact}}

	_, err := EstimateCall(cap, []string{"hello"}, nil)
	if err == nil {
		t.Fatal("expected error when exact mode has no counter")
	}
}

func TestEstimateCall_UsesExactCounterWhenProvided(t *testing.T) {
	cap := model.Capability{
		ID:                   "exact-model",
		Tokenizer:            model.Tokenizer{Mode: model.TokenizerExact},
		ReservedOutputTokens: 100,
		Pricing:              model.Pricing{InputCostPerUnit: 1, OutputCostPerUnit: 1},
	}
	counter := func(id string, texts []string) (int, error) { return 42, nil }

	est, err := EstimateCall(cap, []string{"hello"}, counter)
	if err != nil {
		t.Fatalf("EstimateCall: %v", err)
	}
	if est.InputTokens != 42 {
		t.Errorf("expected 42 input tokens from exact counter, got %d", est.InputTokens)
	}
}
