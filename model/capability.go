package model

import "fmt"

// TokenizerMode selects how the Token Budget estimates a capability's
// token counts (spec §4.3).
type TokenizerMode string

const (
	TokenizerApprox TokenizerMode = "approx"
	TokenizerExact  TokenizerMode = "exact"
	TokenizerOff    TokenizerMode = "off"
)

// Tokenizer configures per-capability token estimation.
type Tokenizer struct {
	Mode         TokenizerMode
	CharsPerToken float64
	Overhead      float64
}

// Pricing is the per-1000-token USD cost for one capability.
type Pricing struct {
	InputCostPerUnit  float64
	OutputCostPerUnit float64
}

// Capability is the immutable record the Model Registry returns for a
// model id (spec §3.4).
type Capability struct {
	ID                   string
	Provider             string
	ContextWindow        int
	Modalities           []string
	ParameterSpecs       map[string]any
	APIConventions       map[string]any
	Tokenizer            Tokenizer
	ReservedOutputTokens int
	Pricing              Pricing
	// APIModelIDs maps a provider name to the literal model identifier
	// that provider's SDK expects (e.g. APIModelIDs["anthropic"]).
	// Region-qualified aliases such as "us.claude-3-5-sonnet" reach the
	// same Capability through NormalizeID, not through this map.
	APIModelIDs map[string]string
}

// ErrRegistryMiss is returned by Registry.Lookup for an id the registry
// does not recognize. The Model Registry never falls back to a silent
// default (spec §4.2).
type ErrRegistryMiss struct {
	ID string
}

func (e *ErrRegistryMiss) Error() string {
	return fmt.Sprintf("model: registry miss for id %q", e.ID)
}

// Registry is a process-wide immutable mapping from model id to
// Capability, built once at startup from NewRegistry.
type Registry struct {
	capabilities map[string]Capability
	defaultID    string
}

// NewRegistry builds a Registry from a caller-supplied capability set
// and a configured default model id. The default id must itself be
// present in capabilities.
func NewRegistry(capabilities []Capability, defaultID string) (*Registry, error) {
	m := make(map[string]Capability, len(capabilities))
	for _, c := range capabilities {
		m[c.ID] = c
	}
	if _, ok := m[defaultID]; defaultID != "" && !ok {
		return nil, fmt.Errorf("model: default id %q not present among registered capabilities", defaultID)
	}
	return &Registry{capabilities: m, defaultID: defaultID}, nil
}

// NormalizeID strips a single leading region token (e.g. "us.claude-3-5-sonnet"
// -> "claude-3-5-sonnet") so regionally-qualified ids resolve to the same
// Capability as their bare form (spec §4.2).
func NormalizeID(id string) string {
	for i, r := range id {
		if r == '.' {
			rest := id[i+1:]
			if rest != "" {
				return rest
			}
			return id
		}
		// Anything but a short lower-case region prefix before the dot
		// means this isn't a region-qualified id; stop looking.
		if !(r >= 'a' && r <= 'z') {
			break
		}
	}
	return id
}

// Lookup resolves id to its Capability, normalizing a leading region
// token first. Returns *ErrRegistryMiss if no capability matches either
// the raw or normalized id.
func (r *Registry) Lookup(id string) (Capability, error) {
	if c, ok := r.capabilities[id]; ok {
		return c, nil
	}
	normalized := NormalizeID(id)
	if normalized != id {
		if c, ok := r.capabilities[normalized]; ok {
			return c, nil
		}
	}
	return Capability{}, &ErrRegistryMiss{ID: id}
}

// ByProvider returns every registered Capability for the given provider.
func (r *Registry) ByProvider(provider string) []Capability {
	var out []Capability
	for _, c := range r.capabilities {
		if c.Provider == provider {
			out = append(out, c)
		}
	}
	return out
}

// ByCapabilityFlag returns every registered Capability whose
// ParameterSpecs contains flag set to a truthy value (e.g. "streaming",
// "tools").
func (r *Registry) ByCapabilityFlag(flag string) []Capability {
	var out []Capability
	for _, c := range r.capabilities {
		if v, ok := c.ParameterSpecs[flag]; ok {
			if b, ok := v.(bool); ok && b {
				out = append(out, c)
			}
		}
	}
	return out
}

// Default returns the configured default Capability. Returns
// *ErrRegistryMiss if no default was configured.
func (r *Registry) Default() (Capability, error) {
	if r.defaultID == "" {
		return Capability{}, &ErrRegistryMiss{ID: ""}
	}
	return r.Lookup(r.defaultID)
}
