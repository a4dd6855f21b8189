package node

import (
	"context"
	"fmt"
	"sort"

	"github.com/workflowrunner/workflowrunner/state"
)

// Router evaluates routes[] against state using the restricted
// predicate DSL (router_dsl.go), trying routes in descending priority
// with ties broken by declaration order. The first match sets
// __routeChosen and routingReason; no match falls back to defaultRoute
// (spec §4.5). With EvaluateAllConditions set, every route is evaluated
// and routingReason also lists the targets of all matching routes; the
// first match still wins.
type Router struct{}

func (Router) Run(ctx context.Context, st state.State, services Services) (state.Delta, error) {
	var cfg RouterConfig
	if err := decodeConfig(st, &cfg); err != nil {
		return state.Delta{}, err
	}

	evalCtx, err := stateEvalContext(st)
	if err != nil {
		return state.Delta{}, fmt.Errorf("node: router: build eval context: %w", err)
	}

	ordered := orderRoutes(cfg.Routes)

	var chosen *RouteRule
	var matchedAny []string
	for i := range ordered {
		route := ordered[i]
		pred, err := compileCondition(route.Condition)
		if err != nil {
			return state.Delta{}, fmt.Errorf("node: router: condition %q: %w", route.Condition, err)
		}
		if pred(evalCtx) {
			matchedAny = append(matchedAny, route.Target)
			if chosen == nil {
				chosen = &route
				if !cfg.EvaluateAllConditions {
					break
				}
			}
		}
	}

	target := cfg.DefaultRoute
	reason := "no route matched; using defaultRoute"
	if chosen != nil {
		target = chosen.Target
		reason = fmt.Sprintf("matched condition %q", chosen.Condition)
		if cfg.EvaluateAllConditions {
			reason += fmt.Sprintf("; all matching targets: %v", matchedAny)
		}
	}

	return state.Delta{
		RouteChosen:   &target,
		RoutingReason: &reason,
	}, nil
}

// orderRoutes sorts by descending priority, stable so equal-priority
// routes keep their declaration order (spec §4.5: "ties broken by
// declaration order").
func orderRoutes(routes []RouteRule) []RouteRule {
	ordered := append([]RouteRule(nil), routes...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority > ordered[j].Priority
	})
	return ordered
}
