package model

// DefaultCapabilities returns the built-in capability set for the major
// OpenAI, Anthropic, and Google providers. Pricing mirrors the teacher's
// static per-1M-token table, converted to the per-1000-token units this
// registry's Pricing uses (spec §4.3's cost formula divides by 1000).
//
// Context windows and reserved-output defaults are conservative published
// values; callers with more precise figures should build their own
// Capability set instead of relying on this table for production pricing.
func DefaultCapabilities() []Capability {
	approx := func(charsPerToken, overhead float64) Tokenizer {
		return Tokenizer{Mode: TokenizerApprox, CharsPerToken: charsPerToken, Overhead: overhead}
	}
	per1M := func(inPer1M, outPer1M float64) Pricing {
		return Pricing{InputCostPerUnit: inPer1M / 1000, OutputCostPerUnit: outPer1M / 1000}
	}

	return []Capability{
		{
			ID: "gpt-4o", Provider: "openai", ContextWindow: 128_000,
			Modalities: []string{"text"}, ParameterSpecs: map[string]any{"streaming": true, "tools": true},
			Tokenizer: approx(4, 3), ReservedOutputTokens: 4096,
			Pricing:     per1M(2.50, 10.00),
			APIModelIDs: map[string]string{"openai": "gpt-4o"},
		},
		{
			ID: "gpt-4o-mini", Provider: "openai", ContextWindow: 128_000,
			Modalities: []string{"text"}, ParameterSpecs: map[string]any{"streaming": true, "tools": true},
			Tokenizer: approx(4, 3), ReservedOutputTokens: 4096,
			Pricing:     per1M(0.15, 0.60),
			APIModelIDs: map[string]string{"openai": "gpt-4o-mini"},
		},
		{
			ID: "gpt-4-turbo", Provider: "openai", ContextWindow: 128_000,
			Modalities: []string{"text"}, ParameterSpecs: map[string]any{"streaming": true, "tools": true},
			Tokenizer: approx(4, 3), ReservedOutputTokens: 4096,
			Pricing:     per1M(10.00, 30.00),
			APIModelIDs: map[string]string{"openai": "gpt-4-turbo"},
		},
		{
			ID: "claude-3-5-sonnet", Provider: "anthropic", ContextWindow: 200_000,
			Modalities: []string{"text"}, ParameterSpecs: map[string]any{"streaming": true, "tools": true},
			Tokenizer: approx(4, 4), ReservedOutputTokens: 4096,
			Pricing:     per1M(3.00, 15.00),
			APIModelIDs: map[string]string{"anthropic": "claude-3-5-sonnet-20241022"},
		},
		{
			ID: "claude-3-opus", Provider: "anthropic", ContextWindow: 200_000,
			Modalities: []string{"text"}, ParameterSpecs: map[string]any{"streaming": true, "tools": true},
			Tokenizer: approx(4, 4), ReservedOutputTokens: 4096,
			Pricing:     per1M(15.00, 75.00),
			APIModelIDs: map[string]string{"anthropic": "claude-3-opus-20240229"},
		},
		{
			ID: "claude-3-haiku", Provider: "anthropic", ContextWindow: 200_000,
			Modalities: []string{"text"}, ParameterSpecs: map[string]any{"streaming": true, "tools": true},
			Tokenizer: approx(4, 4), ReservedOutputTokens: 4096,
			Pricing:     per1M(0.25, 1.25),
			APIModelIDs: map[string]string{"anthropic": "claude-3-haiku-20240307"},
		},
		{
			ID: "gemini-1.5-pro", Provider: "google", ContextWindow: 1_000_000,
			Modalities: []string{"text"}, ParameterSpecs: map[string]any{"streaming": true, "tools": true},
			Tokenizer: approx(4, 2), ReservedOutputTokens: 8192,
			Pricing:     per1M(1.25, 5.00),
			APIModelIDs: map[string]string{"google": "gemini-1.5-pro"},
		},
		{
			ID: "gemini-1.5-flash", Provider: "google", ContextWindow: 1_000_000,
			Modalities: []string{"text"}, ParameterSpecs: map[string]any{"streaming": true, "tools": true},
			Tokenizer: approx(4, 2), ReservedOutputTokens: 8192,
			Pricing:     per1M(0.075, 0.30),
			APIModelIDs: map[string]string{"google": "gemini-1.5-flash"},
		},
	}
}
