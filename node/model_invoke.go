package node

import (
	"context"
	"math/rand"
	"strings"
	"time"

	"github.com/workflowrunner/workflowrunner/budget"
	"github.com/workflowrunner/workflowrunner/model"
	"github.com/workflowrunner/workflowrunner/progress"
	"github.com/workflowrunner/workflowrunner/prompt"
	"github.com/workflowrunner/workflowrunner/state"
)

// modelInvokeRetry bounds transient-error retries (spec §4.5/§7:
// "retries up to a small bounded count on transient provider errors").
var modelInvokeRetry = struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
}{maxAttempts: 3, baseDelay: 200 * time.Millisecond, maxDelay: 2 * time.Second}

// streamChunkSize approximates provider chunking when the underlying
// ChatModel interface only returns a completed response: STREAMING
// events are emitted over the final text split into fixed-size
// segments rather than true incremental tokens.
const streamChunkSize = 64

// ModelInvoke resolves a model capability, assembles the prompt, checks
// the token budget, calls the model (retrying transient failures), and
// writes modelResponse (spec §4.5). Token usage and cost are not
// written to state.
type ModelInvoke struct{}

func (ModelInvoke) Run(ctx context.Context, st state.State, services Services) (state.Delta, error) {
	var cfg ModelInvokeConfig
	if err := decodeConfig(st, &cfg); err != nil {
		return state.Delta{}, err
	}

	cap, chat, err := resolveChatModel(cfg.ModelID, services)
	if err != nil {
		return state.Delta{}, &ErrModelCallFailed{NodeID: st.CurrentNodeID, Cause: err}
	}

	promptCfg := prompt.Config{
		UseMemory:    cfg.UseMemory,
		MemorySize:   cfg.MemorySize,
		OutputFormat: cfg.OutputFormat,
		Tone:         cfg.Tone,
		Style:        cfg.Style,
	}
	messages, _, err := prompt.Assemble(st, cap, cfg.SystemPrompt, promptCfg, prompt.Options{})
	if err != nil {
		return state.Delta{}, &ErrModelCallFailed{NodeID: st.CurrentNodeID, Cause: err}
	}

	texts := make([]string, len(messages))
	for i, m := range messages {
		texts[i] = m.Content
	}
	estimate, err := budget.EstimateCall(cap, texts, services.ExactTokens)
	if err != nil {
		return state.Delta{}, &ErrModelCallFailed{NodeID: st.CurrentNodeID, Cause: err}
	}
	if err := budget.Check(estimate, services.BudgetCaps); err != nil {
		emitProgress(ctx, st, services, progress.KindError, map[string]any{"reason": err.Error()})
		return state.Delta{}, err
	}

	out, err := invokeWithRetry(ctx, chat, messages)
	if err != nil {
		return state.Delta{}, &ErrModelCallFailed{NodeID: st.CurrentNodeID, Cause: err}
	}

	if cfg.Streaming && supportsStreaming(cap) && out.Text != "" {
		emitStreamChunks(ctx, st, services, out.Text)
	}

	response := out.Text
	return state.Delta{ModelResponse: &response}, nil
}

// supportsStreaming reads the "streaming" capability flag from
// ParameterSpecs — the Model Registry's generic per-capability flag bag
// (spec §3.4), rather than a dedicated struct field.
func supportsStreaming(cap model.Capability) bool {
	v, ok := cap.ParameterSpecs["streaming"]
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// invokeWithRetry retries transient provider failures with exponential
// backoff plus jitter, grounded on the teacher's backoff convention
// (computeBackoff below).
func invokeWithRetry(ctx context.Context, chat model.ChatModel, messages []model.Message) (model.ChatOut, error) {
	rng := rand.New(rand.NewSource(1))
	var lastErr error
	for attempt := 0; attempt < modelInvokeRetry.maxAttempts; attempt++ {
		if attempt > 0 {
			delay := computeBackoff(attempt, modelInvokeRetry.baseDelay, modelInvokeRetry.maxDelay, rng)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return model.ChatOut{}, ctx.Err()
			}
		}

		out, err := chat.Chat(ctx, messages, nil)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if !isTransient(err) {
			return model.ChatOut{}, err
		}
	}
	return model.ChatOut{}, lastErr
}

func emitProgress(ctx context.Context, st state.State, services Services, kind progress.Kind, payload map[string]any) {
	if services.Progress == nil {
		return
	}
	services.Progress.Emit(ctx, st.ConversationID, services.InvocationID, st.CurrentNodeID, kind, resolveOwners(st, services), payload)
}

func emitStreamChunks(ctx context.Context, st state.State, services Services, text string) {
	if services.Progress == nil {
		return
	}
	for i := 0; i < len(text); i += streamChunkSize {
		end := i + streamChunkSize
		if end > len(text) {
			end = len(text)
		}
		emitProgress(ctx, st, services, progress.KindStreaming, map[string]any{"chunk": text[i:end]})
	}
}

// computeBackoff doubles base per attempt, capped at maxDelay, plus up to
// one base-delay of jitter — the teacher's backoff shape generalized to
// ModelInvoke's retry loop.
func computeBackoff(attempt int, base, maxDelay time.Duration, rng *rand.Rand) time.Duration {
	delay := base * time.Duration(int64(1)<<uint(attempt))
	if delay > maxDelay {
		delay = maxDelay
	}
	jitter := time.Duration(rng.Int63n(int64(base) + 1))
	return delay + jitter
}

// isTransient classifies provider errors worth retrying. Adapters surface
// plain errors (no provider-specific status type is shared across the
// three SDKs), so classification matches on message content.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{"timeout", "network", "connection", "temporary", "rate limit", "503", "502", "500", "overloaded"} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}
