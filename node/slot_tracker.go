package node

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/workflowrunner/workflowrunner/progress"
	"github.com/workflowrunner/workflowrunner/prompt"
	"github.com/workflowrunner/workflowrunner/state"
)

// SlotTracker walks its declared slots in order, filling each from
// slotValues if already present, otherwise attempting extraction from
// userPrompt (by the slot's validation pattern when it has one, else via
// a small model call; see extractSlotValue). It suspends
// for user input when a required slot remains empty and retries are
// available, falls back when MaxTotalAttempts is exceeded, and marks
// allSlotsFilled once every required slot has a value (spec §4.5).
type SlotTracker struct{}

func (SlotTracker) Run(ctx context.Context, st state.State, services Services) (state.Delta, error) {
	var cfg SlotTrackerConfig
	if err := decodeConfig(st, &cfg); err != nil {
		return state.Delta{}, err
	}

	totalAttempts := 0
	for _, attempts := range st.SlotAttempts {
		totalAttempts += attempts
	}
	if cfg.MaxTotalAttempts > 0 && totalAttempts >= cfg.MaxTotalAttempts {
		route := cfg.FallbackRoute
		return state.Delta{NextNode: &route}, nil
	}

	newSlotValues := map[string]any{}
	newSlotAttempts := map[string]int{}

	for _, slot := range cfg.Slots {
		if existing, ok := st.SlotValues[slot.Key]; ok && existing != nil && existing != "" {
			continue
		}

		extracted, ok := extractSlotValue(ctx, st, slot, services)
		if ok {
			newSlotValues[slot.Key] = extracted
			continue
		}

		newSlotAttempts[slot.Key] = st.SlotAttempts[slot.Key] + 1

		if !slot.Required {
			continue
		}
		if slot.MaxRetries <= 0 || newSlotAttempts[slot.Key] < slot.MaxRetries {
			needsInput := true
			awaitingFor := slot.Key
			if services.Progress != nil {
				services.Progress.Emit(ctx, st.ConversationID, services.InvocationID, st.CurrentNodeID,
					progress.KindAwaitingInput, resolveOwners(st, services), map[string]any{"prompt": slot.Prompt, "slot": slot.Key})
			}
			return state.Delta{
				SlotValues:      newSlotValues,
				SlotAttempts:    newSlotAttempts,
				CurrentSlotKey:  &awaitingFor,
				NeedsUserInput:  &needsInput,
				AwaitingInputFor: &awaitingFor,
			}, nil
		}
	}

	allFilled := allRequiredFilled(cfg.Slots, st.SlotValues, newSlotValues)
	return state.Delta{
		SlotValues:     newSlotValues,
		SlotAttempts:   newSlotAttempts,
		AllSlotsFilled: &allFilled,
	}, nil
}

func allRequiredFilled(slots []SlotDef, existing, fresh map[string]any) bool {
	for _, slot := range slots {
		if !slot.Required {
			continue
		}
		if v, ok := fresh[slot.Key]; ok && v != nil && v != "" {
			continue
		}
		if v, ok := existing[slot.Key]; ok && v != nil && v != "" {
			continue
		}
		return false
	}
	return true
}

// extractSlotValue attempts to pull slot.Key's value out of userPrompt.
// When slot.Validation names a valid pattern, the value is the pattern's
// first match and a prompt without a match leaves the slot empty (no
// model call is made). Without a pattern, a small model call extracts
// the value; when no model services are configured, the trimmed
// userPrompt itself is taken as the value.
func extractSlotValue(ctx context.Context, st state.State, slot SlotDef, services Services) (string, bool) {
	if st.UserPrompt == "" {
		return "", false
	}

	if slot.Validation != "" {
		if re, err := regexp.Compile(slot.Validation); err == nil {
			match := re.FindString(st.UserPrompt)
			return match, match != ""
		}
	}

	if services.Registry == nil || services.ResolveModel == nil {
		return strings.TrimSpace(st.UserPrompt), st.UserPrompt != ""
	}

	cap, chat, err := resolveChatModel("", services)
	if err != nil {
		return strings.TrimSpace(st.UserPrompt), st.UserPrompt != ""
	}

	stepPrompt := fmt.Sprintf("Extract the value for %q from the user's message. Respond with only the value, or an empty string if absent.", slot.Key)
	messages, _, err := prompt.Assemble(st, cap, stepPrompt, prompt.Config{}, prompt.Options{})
	if err != nil {
		return "", false
	}
	out, err := chat.Chat(ctx, messages, nil)
	if err != nil {
		return "", false
	}
	value := strings.TrimSpace(out.Text)
	return value, value != ""
}

// resolveOwners computes the set ownersForProgress ∪ {userId} (spec
// §4.6): every owner listed exactly once, even when the invoking user
// is already present in OwnersForProgress.
func resolveOwners(st state.State, services Services) []string {
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
