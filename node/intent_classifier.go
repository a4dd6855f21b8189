package node

import (
	"context"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/workflowrunner/workflowrunner/model"
	"github.com/workflowrunner/workflowrunner/prompt"
	"github.com/workflowrunner/workflowrunner/state"
)

// IntentClassifier calls the configured model with the declared
// intents[] and confidenceThreshold, returning intent and
// intentConfidence (zero when the model reports none). Any failure degrades to
// fallbackIntent with zero confidence rather than halting the step loop
// (spec §4.5).
type IntentClassifier struct{}

func (IntentClassifier) Run(ctx context.Context, st state.State, services Services) (state.Delta, error) {
	var cfg IntentClassifierConfig
	if err := decodeConfig(st, &cfg); err != nil {
		return state.Delta{}, err
	}

	intent, confidence := classify(ctx, st, cfg, services)

	if confidence < cfg.ConfidenceThreshold {
		intent = cfg.FallbackIntent
	}

	intentPtr := &intent
	confidencePtr := &confidence
	return state.Delta{Intent: intentPtr, IntentConfidence: confidencePtr}, nil
}

func classify(ctx context.Context, st state.State, cfg IntentClassifierConfig, services Services) (string, float64) {
	cap, chat, err := resolveChatModel(cfg.ModelID, services)
	if err != nil {
		return cfg.FallbackIntent, 0
	}

	stepPrompt := fmt.Sprintf(
		"Classify the user's message into exactly one of these intents: %s. "+
			"Respond with a single JSON object: {\"intent\": \"<one of the intents>\", \"confidence\": <0 to 1>}.",
		strings.Join(cfg.Intents, ", "),
	)

	messages, _, err := prompt.Assemble(st, cap, stepPrompt, prompt.Config{OutputFormat: "json"}, prompt.Options{})
	if err != nil {
		return cfg.FallbackIntent, 0
	}

	out, err := chat.Chat(ctx, messages, nil)
	if err != nil {
		return cfg.FallbackIntent, 0
	}

	parsed := gjson.Parse(out.Text)
	intent := parsed.Get("intent").String()
	confidence := parsed.Get("confidence").Float()

	if intent == "" || !containsIntent(cfg.Intents, intent) {
		return cfg.FallbackIntent, 0
	}
	return intent, confidence
}

func containsIntent(intents []string, candidate string) bool {
	for _, i := range intents {
		if i == candidate {
			return true
		}
	}
	return false
}

// resolveChatModel looks up capability modelID (or the registry default
// when empty) and resolves its ChatModel through services.ResolveModel.
func resolveChatModel(modelID string, services Services) (model.Capability, model.ChatModel, error) {
	if services.Registry == nil || services.ResolveModel == nil {
		return model.Capability{}, nil, fmt.Errorf("node: model services not configured")
	}

	var cap model.Capability
	var err error
	if modelID == "" {
		cap, err = services.Registry.Default()
	} else {
		cap, err = services.Registry.Lookup(modelID)
	}
	if err != nil {
		return model.Capability{}, nil, err
	}

	chat, err := services.ResolveModel(cap)
	if err != nil {
		return model.Capability{}, nil, err
	}
	return cap, chat, nil
}
