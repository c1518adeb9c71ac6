package config

// builtinStrategies mirrors the Python source's declarative strategy
// tables (core/router/strategies/*.py), expressed as plain data per §4.8.
// Config.Routing.SortingStrategies is merged on top of these so operators
// can add or override strategies from YAML without recompiling.
var builtinStrategies = map[string][]SortRule{
	"balanced": {
		{Field: "cost", Order: "desc", Weight: 0.20},
		{Field: "speed", Order: "desc", Weight: 0.15},
		{Field: "quality", Order: "desc", Weight: 0.20},
		{Field: "reliability", Order: "desc", Weight: 0.20},
		{Field: "parameter", Order: "desc", Weight: 0.10},
		{Field: "context", Order: "desc", Weight: 0.10},
		{Field: "free", Order: "desc", Weight: 0.025},
		{Field: "local", Order: "desc", Weight: 0.025},
	},
	"cost_first": {
		{Field: "cost", Order: "desc", Weight: 0.55},
		{Field: "reliability", Order: "desc", Weight: 0.20},
		{Field: "quality", Order: "desc", Weight: 0.15},
		{Field: "speed", Order: "desc", Weight: 0.10},
	},
	"cost_optimized": {
		{Field: "cost", Order: "desc", Weight: 0.45},
		{Field: "free", Order: "desc", Weight: 0.20},
		{Field: "reliability", Order: "desc", Weight: 0.20},
		{Field: "quality", Order: "desc", Weight: 0.15},
	},
	"free_first": {
		{Field: "free", Order: "desc", Weight: 0.60},
		{Field: "cost", Order: "desc", Weight: 0.20},
		{Field: "reliability", Order: "desc", Weight: 0.10},
		{Field: "quality", Order: "desc", Weight: 0.10},
	},
	"local_first": {
		{Field: "local", Order: "desc", Weight: 0.60},
		{Field: "speed", Order: "desc", Weight: 0.15},
		{Field: "reliability", Order: "desc", Weight: 0.15},
		{Field: "cost", Order: "desc", Weight: 0.10},
	},
	"speed_optimized": {
		{Field: "speed", Order: "desc", Weight: 0.50},
		{Field: "reliability", Order: "desc", Weight: 0.25},
		{Field: "cost", Order: "desc", Weight: 0.15},
		{Field: "quality", Order: "desc", Weight: 0.10},
	},
	"quality_optimized": {
		{Field: "quality", Order: "desc", Weight: 0.45},
		{Field: "parameter", Order: "desc", Weight: 0.20},
		{Field: "context", Order: "desc", Weight: 0.15},
		{Field: "reliability", Order: "desc", Weight: 0.15},
		{Field: "cost", Order: "desc", Weight: 0.05},
	},
}

// ResolveStrategy returns the weight table for a named strategy, falling
// back to "balanced" when name is empty or unknown. User-supplied
// sorting_strategies take precedence over the built-in table of the same name.
func (r *Registry) ResolveStrategy(name string) []SortRule {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if name == "" {
		name = r.cfg.Routing.DefaultStrategy
	}
	if name == "" {
		name = "balanced"
	}
	if rules, ok := r.cfg.Routing.SortingStrategies[name]; ok {
		return rules
	}
	if rules, ok := builtinStrategies[name]; ok {
		return rules
	}
	return builtinStrategies["balanced"]
}

// StrategyNames lists every strategy an `auto:` selector may name: the
// built-in table plus any operator-defined sorting_strategies, used by the
// GET /v1/models union (§6.1).
func (r *Registry) StrategyNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool, len(builtinStrategies)+len(r.cfg.Routing.SortingStrategies))
	names := make([]string, 0, len(seen))
	for name := range builtinStrategies {
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	for name := range r.cfg.Routing.SortingStrategies {
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	return names
}
