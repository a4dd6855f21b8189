// Package prompt implements the Prompt Engine: it assembles a
// {messages[], metadata} pair from state, a model capability, and a step
// prompt, following the fixed assembly order, normalization, and
// truncation rules of spec §4.4.
package prompt

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/workflowrunner/workflowrunner/model"
	"github.com/workflowrunner/workflowrunner/state"
)

// basePromptVersion identifies the assembly policy implemented by this
// package. Bump it whenever assembly semantics (ordering, normalization,
// truncation) change, per spec §4.4.
const basePromptVersion = "prompt-engine/v1"

// Config carries the per-node assembly knobs sourced from
// currentNodeConfig (spec §4.4's "Inputs recognized from state").
type Config struct {
	UseMemory    bool
	MemorySize   int
	OutputFormat string // "json", "markdown", or ""
	Tone         string
	Style        string
}

// Options are caller-level hooks that do not come from workflow state.
type Options struct {
	// RedactInput, when set, transforms userPrompt before it is recorded
	// in any returned metadata (Design Note open question 1: no
	// redaction is applied by default).
	RedactInput func(string) string
}

// Metadata accompanies the assembled messages (spec §4.4's "Metadata
// returned").
type Metadata struct {
	TotalTokens            int
	CostEstimate           float64
	BuildTimeMs            int64
	BasePromptVersion      string
	PIIDetected            *bool
	PromptSegmentBreakdown map[string]int
	TruncationApplied      bool
}

// ErrPromptBuildFailed wraps any internal assembly failure as
// PROMPT_BUILD_FAILED (spec §4.4).
type ErrPromptBuildFailed struct {
	Cause error
}

func (e *ErrPromptBuildFailed) Error() string {
	return fmt.Sprintf("prompt: PROMPT_BUILD_FAILED: %v", e.Cause)
}

func (e *ErrPromptBuildFailed) Unwrap() error { return e.Cause }

var toneStyleSanitizer = regexp.MustCompile(`[^\w\s-]`)

// sanitizeDirective strips non-word characters and truncates to 120
// chars, per spec §4.4 step 1.
func sanitizeDirective(s string) string {
	clean := toneStyleSanitizer.ReplaceAllString(s, "")
	clean = strings.TrimSpace(clean)
	if len(clean) > 120 {
		clean = clean[:120]
	}
	return clean
}

// Assemble builds the message sequence and metadata for one ModelInvoke
// call, following spec §4.4's six-step assembly order, user-first
// normalization, and oldest-first truncation.
func Assemble(st state.State, cap model.Capability, stepPrompt string, cfg Config, opts Options) ([]model.Message, Metadata, error) {
	start := nowStamp()
	segments := map[string]int{}

	var messages []model.Message

	// 1. style/tone directive
	if cfg.Tone != "" || cfg.Style != "" {
		directive := styleToneDirective(cfg.Tone, cfg.Style)
		if directive != "" {
			messages = append(messages, model.Message{Role: model.RoleSystem, Content: directive})
			segments["styleTone"] = len(directive)
		}
	}

	// 2. step prompt, with {{input}} interpolated as canonical JSON of state.Input
	resolvedStep, err := interpolateInput(stepPrompt, st.Input)
	if err != nil {
		return nil, Metadata{}, &ErrPromptBuildFailed{Cause: err}
	}
	if resolvedStep != "" {
		messages = append(messages, model.Message{Role: model.RoleSystem, Content: resolvedStep})
		segments["stepPrompt"] = len(resolvedStep)
	}

	// 3. output-format directive
	if directive := outputFormatDirective(cfg.OutputFormat); directive != "" {
		messages = append(messages, model.Message{Role: model.RoleSystem, Content: directive})
		segments["outputFormat"] = len(directive)
	}

	// 4. retrieved-context block
	if st.ContextMeta.Count > 0 {
		block := fmt.Sprintf("Retrieved context (%d item(s)):\n%s", st.ContextMeta.Count, st.ContextMeta.Text)
		messages = append(messages, model.Message{Role: model.RoleSystem, Content: block})
		segments["retrievedContext"] = len(block)
	}

	// 5. conversation memory
	var memoryTurns []state.Turn
	if cfg.UseMemory {
		memoryTurns = recentTurns(st.Memory, cfg.MemorySize)
		for _, turn := range memoryTurns {
			role := model.RoleUser
			if turn.Role == state.RoleAssistant {
				role = model.RoleAssistant
			}
			messages = append(messages, model.Message{Role: role, Content: turn.Content})
		}
		segments["memory"] = memoryTextLen(memoryTurns)
	}

	// 6. current userPrompt
	userPrompt := st.UserPrompt
	if opts.RedactInput != nil {
		userPrompt = opts.RedactInput(userPrompt)
	}
	if userPrompt != "" {
		messages = append(messages, model.Message{Role: model.RoleUser, Content: userPrompt})
		segments["userPrompt"] = len(userPrompt)
	}

	messages = normalizeUserFirst(messages, st.UserPrompt)

	truncated, messages := truncateToContextWindow(messages, cap)

	totalLen := 0
	for _, m := range messages {
		totalLen += len(m.Content)
	}
	totalTokens := approxTokenEstimate(cap.Tokenizer, totalLen, len(messages))
	cost := cap.Pricing.InputCostPerUnit * float64(totalTokens) / 1000

	meta := Metadata{
		TotalTokens:            totalTokens,
		CostEstimate:           cost,
		BuildTimeMs:            sinceMs(start),
		BasePromptVersion:      basePromptVersion,
		PromptSegmentBreakdown: segments,
		TruncationApplied:      truncated,
	}

	return messages, meta, nil
}

func styleToneDirective(tone, style string) string {
	tone = sanitizeDirective(tone)
	style = sanitizeDirective(style)
	switch {
	case tone != "" && style != "":
		return fmt.Sprintf("Respond with a %s tone, in a %s style.", tone, style)
	case tone != "":
		return fmt.Sprintf("Respond with a %s tone.", tone)
	case style != "":
		return fmt.Sprintf("Respond in a %s style.", style)
	default:
		return ""
	}
}

func outputFormatDirective(format string) string {
	switch format {
	case "json":
		return "Respond with a single JSON value and nothing else."
	case "markdown":
		return "You may use markdown headings and lists in your response."
	default:
		return ""
	}
}

const inputToken = "{{input}}"

// interpolateInput replaces the literal {{input}} token with the
// canonical JSON encoding of input. encoding/json already sorts map keys,
// giving a deterministic ("canonical") encoding for the map[string]any
// shapes state.Input typically holds.
func interpolateInput(stepPrompt string, input any) (string, error) {
	if !strings.Contains(stepPrompt, inputToken) {
		return stepPrompt, nil
	}
	if input == nil {
		return strings.ReplaceAll(stepPrompt, inputToken, "null"), nil
	}
	encoded, err := json.Marshal(input)
	if err != nil {
		return "", fmt.Errorf("prompt: encode input for interpolation: %w", err)
	}
	return strings.ReplaceAll(stepPrompt, inputToken, string(encoded)), nil
}

func recentTurns(memory []state.Turn, size int) []state.Turn {
	if size <= 0 || size >= len(memory) {
		return memory
	}
	return memory[len(memory)-size:]
}

func memoryTextLen(turns []state.Turn) int {
	total := 0
	for _, t := range turns {
		total += len(t.Content)
	}
	return total
}

// normalizeUserFirst guarantees a user-first conversation body, per spec
// §4.4: if there is no message after the system messages, append a user
// turn; if no user turn exists and the first non-system turn is
// assistant, prepend a user turn before it.
func normalizeUserFirst(messages []model.Message, userPrompt string) []model.Message {
	firstNonSystem := -1
	hasUser := false
	for i, m := range messages {
		if m.Role == model.RoleSystem {
			continue
		}
		if firstNonSystem == -1 {
			firstNonSystem = i
		}
		if m.Role == model.RoleUser {
			hasUser = true
		}
	}

	seed := userPrompt
	if seed == "" {
		seed = "Continue."
	}

	if firstNonSystem == -1 {
		return append(messages, model.Message{Role: model.RoleUser, Content: seed})
	}
	if !hasUser && messages[firstNonSystem].Role == model.RoleAssistant {
		out := make([]model.Message, 0, len(messages)+1)
		out = append(out, messages[:firstNonSystem]...)
		out = append(out, model.Message{Role: model.RoleUser, Content: seed})
		out = append(out, messages[firstNonSystem:]...)
		return out
	}
	return messages
}

// truncateToContextWindow drops memory turns oldest-first, then shortens
// the retrieved-context block, then truncates the user message tail,
// stopping as soon as the projected token count fits
// contextWindow-reservedOutputTokens. System messages other than the
// retrieved-context block are never touched.
func truncateToContextWindow(messages []model.Message, cap model.Capability) (bool, []model.Message) {
	budget := cap.ContextWindow - cap.ReservedOutputTokens
	if budget <= 0 {
		return false, messages
	}

	fits := func(msgs []model.Message) bool {
		total := 0
		for _, m := range msgs {
			total += len(m.Content)
		}
		return approxTokenEstimate(cap.Tokenizer, total, len(msgs)) <= budget
	}

	if fits(messages) {
		return false, messages
	}

	truncated := append([]model.Message(nil), messages...)

	// Drop memory (non-system, non-last-user) turns oldest-first. The
	// final user message is preserved until every other lever is spent.
	for i := 0; i < len(truncated) && !fits(truncated); i++ {
		if truncated[i].Role == model.RoleSystem {
			continue
		}
		if i == lastUserIndex(truncated) {
			continue
		}
		truncated = append(truncated[:i], truncated[i+1:]...)
		i--
	}

	// Shorten the retrieved-context system block if still over.
	for i := range truncated {
		if fits(truncated) {
			break
		}
		if truncated[i].Role == model.RoleSystem && strings.HasPrefix(truncated[i].Content, "Retrieved context") {
			truncated[i].Content = shortenTo(truncated[i].Content, len(truncated[i].Content)/2)
		}
	}

	// Last resort: truncate the final user message's tail.
	if !fits(truncated) {
		if idx := lastUserIndex(truncated); idx >= 0 {
			truncated[idx].Content = shortenTo(truncated[idx].Content, len(truncated[idx].Content)/2)
		}
	}

	return true, truncated
}

func lastUserIndex(messages []model.Message) int {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == model.RoleUser {
			return i
		}
	}
	return -1
}

func shortenTo(s string, n int) string {
	if n <= 0 || n >= len(s) {
		return s
	}
	return s[len(s)-n:]
}

func approxTokenEstimate(tok model.Tokenizer, totalLen, messageCount int) int {
	if tok.Mode == model.TokenizerOff || tok.CharsPerToken <= 0 {
		return 0
	}
	return int(float64(totalLen)/tok.CharsPerToken+0.999999) + int(tok.Overhead*float64(messageCount))
}

// nowStamp and sinceMs are indirected so build timing never calls
// time.Now() in a way that could be mistaken for state; they're purely
// observational metadata, never part of State/Delta.
func nowStamp() time.Time { return time.Now() }
func sinceMs(start time.Time) int64 { return time.Since(start).Milliseconds() }
