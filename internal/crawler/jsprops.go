package crawler

import (
	"sort"
	"strings"

	"github.com/nao1215/stackcrawl/internal/model"
)

// Extract resolves each chain of the set against the script-global object.
// Resolution walks the dotted path segment by segment; a missing or falsy
// intermediate leaves the chain unresolved. String and number values are
// kept as they are, any other truthy value becomes true. The output only
// holds entries for chains that resolved to a truthy value.
//
// Matches are ordered by application, chain and slot index.
func Extract(global map[string]any, chains model.ChainSet) []model.ScriptMatch {
	matches := make([]model.ScriptMatch, 0)
	if len(global) == 0 || len(chains) == 0 {
		return matches
	}

	apps := make([]string, 0, len(chains))
	for app := range chains {
		apps = append(apps, app)
	}
	sort.Strings(apps)

	for _, app := range apps {
		names := make([]string, 0, len(chains[app]))
		for chain := range chains[app] {
			names = append(names, chain)
		}
		sort.Strings(names)

		for _, chain := range names {
			value, ok := resolveChain(global, chain)
			if !ok {
				continue
			}
			for index := range chains[app][chain] {
				matches = append(matches, model.ScriptMatch{
					App:   app,
					Chain: chain,
					Index: index,
					Value: value,
				})
			}
		}
	}
	return matches
}

// resolveChain walks chain through nested maps and returns the coerced leaf.
func resolveChain(global map[string]any, chain string) (any, bool) {
	if chain == "" {
		return nil, false
	}

	var current any = global
	for _, segment := range strings.Split(chain, ".") {
		obj, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		next, ok := obj[segment]
		if !ok || !truthy(next) {
			return nil, false
		}
		current = next
	}
	return coerce(current), true
}

// truthy mirrors script truthiness for the value shapes a decoded
// script-global object can hold.
func truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		return val != ""
	case float64:
		return val != 0
	case float32:
		return val != 0
	case int:
		return val != 0
	case int64:
		return val != 0
	case map[string]any:
		return val != nil
	case []any:
		return val != nil
	default:
		return true
	}
}

// coerce keeps strings and numbers and turns everything else into a
// presence flag.
func coerce(v any) any {
	switch v.(type) {
	case string, float64, float32, int, int64:
		return v
	default:
		return true
	}
}
