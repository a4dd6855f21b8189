// Package budget implements the Token Budget: it projects the token and
// USD cost of a prospective model call against a capability's tokenizer
// and pricing, then enforces the configured caps (spec §4.3).
package budget

import (
	"fmt"
	"math"

	"github.com/workflowrunner/workflowrunner/model"
)

// Caps are the three configured thresholds a Check call enforces. All
// three are per-invocation by default; callers may build per-request
// overrides by constructing a new Caps value.
type Caps struct {
	RequestCostCapUSD         float64
	TokenCap                  int
	EmergencyCostThresholdUSD float64
}

// Estimate is a projected token count and USD cost for a prospective
// model call, before the call is made.
type Estimate struct {
	InputTokens  int
	OutputTokens int
	CostUSD      float64
}

// ErrBudgetExceeded is the recoverable BUDGET_EXCEEDED error: the caller
// may retry with a cheaper model, a shorter prompt, or raised caps.
type ErrBudgetExceeded struct {
	Estimate Estimate
	Caps     Caps
	Reason   string
}

func (e *ErrBudgetExceeded) Error() string {
	return fmt.Sprintf("budget: BUDGET_EXCEEDED (%s): estimate=%+v caps=%+v", e.Reason, e.Estimate, e.Caps)
}

// ErrEmergencyCapHit is the unconditional refusal raised when a
// prospective call's cost meets or exceeds EmergencyCostThresholdUSD.
// Unlike ErrBudgetExceeded it is never meant to be retried with the
// same model — the caller must change model or request shape.
type ErrEmergencyCapHit struct {
	Estimate Estimate
	Caps     Caps
}

func (e *ErrEmergencyCapHit) Error() string {
	return fmt.Sprintf("budget: emergency cost threshold hit: estimate=%+v caps=%+v", e.Estimate, e.Caps)
}

// EstimateTokens implements spec §4.3's estimation formula: ⌈L/c⌉ + h·N
// for a capability whose tokenizer mode is "approx", where L is total
// message text length and N is the message count. Mode "off" estimates
// zero (no cap enforcement on the input side); mode "exact" is left to
// callers who wire in a provider-accurate tokenizer via ExactTokenCounter.
func EstimateTokens(tok model.Tokenizer, totalTextLen, messageCount int) int {
	switch tok.Mode {
	case model.TokenizerOff:
		return 0
	default:
		if tok.CharsPerToken <= 0 {
			return 0
		}
		base := math.Ceil(float64(totalTextLen) / tok.CharsPerToken)
		return int(base + tok.Overhead*float64(messageCount))
	}
}

// ExactTokenCounter lets a caller substitute a provider-accurate
// tokenizer for a capability whose Tokenizer.Mode is "exact" (spec
// §4.3: "the implementer may substitute a provider-accurate tokenizer").
type ExactTokenCounter func(capabilityID string, texts []string) (int, error)

// EstimateCall projects the input/output token counts and USD cost for a
// message sequence about to be sent to cap. exact may be nil; it is only
// consulted when cap.Tokenizer.Mode == "exact".
func EstimateCall(cap model.Capability, texts []string, exact ExactTokenCounter) (Estimate, error) {
	var inputTokens int
	var err error

	switch cap.Tokenizer.Mode {
	case model.TokenizerExact:
		if exact == nil {
			return Estimate{}, fmt.Errorf("budget: capability %q requires an exact token counter but none was provided", cap.ID)
		}
		inputTokens, err = exact(cap.ID, texts)
		if err != nil {
			return Estimate{}, fmt.Errorf("budget: exact token count: %w", err)
		}
	case model.TokenizerOff:
		inputTokens = 0
	default:
		totalLen := 0
		for _, t := range texts {
			totalLen += len(t)
		}
		inputTokens = EstimateTokens(cap.Tokenizer, totalLen, len(texts))
	}

	outputTokens := cap.ReservedOutputTokens
	cost := Cost(cap.Pricing, inputTokens, outputTokens)

	return Estimate{InputTokens: inputTokens, OutputTokens: outputTokens, CostUSD: cost}, nil
}

// Cost implements spec §4.3's cost formula:
// inputCostPerUnit·inputTokens/1000 + outputCostPerUnit·reservedOutputTokens/1000.
func Cost(pricing model.Pricing, inputTokens, outputTokens int) float64 {
	return pricing.InputCostPerUnit*float64(inputTokens)/1000 + pricing.OutputCostPerUnit*float64(outputTokens)/1000
}

// Check enforces caps against est, per spec §4.3's refusal policy:
//   - cost ≥ EmergencyCostThresholdUSD: unconditional refusal (*ErrEmergencyCapHit).
//   - cost > RequestCostCapUSD or input tokens > TokenCap: recoverable refusal (*ErrBudgetExceeded).
//   - otherwise nil.
//
// A zero-valued cap field disables that particular check.
func Check(est Estimate, caps Caps) error {
	if caps.EmergencyCostThresholdUSD > 0 && est.CostUSD >= caps.EmergencyCostThresholdUSD {
		return &ErrEmergencyCapHit{Estimate: est, Caps: caps}
	}
	if caps.RequestCostCapUSD > 0 && est.CostUSD > caps.RequestCostCapUSD {
		return &ErrBudgetExceeded{Estimate: est, Caps: caps, Reason: "cost_cap_exceeded"}
	}
	if caps.TokenCap > 0 && est.InputTokens > caps.TokenCap {
		return &ErrBudgetExceeded{Estimate: est, Caps: caps, Reason: "token_cap_exceeded"}
	}
	return nil
}
