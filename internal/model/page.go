package model

import "sort"

// PageSignals is the per-page payload handed to the fingerprinting engine.
type PageSignals struct {
	// Cookies maps cookie names to values.
	Cookies map[string]string

	// Headers maps lower-cased header names to their values.
	Headers map[string][]string

	// HTML is the windowed markup of the page.
	HTML string

	// ScriptMatches holds the script-global properties that resolved.
	ScriptMatches []ScriptMatch

	// Scripts are the external script URLs referenced by the page.
	Scripts []string
}

// ScriptMatch records that a property chain resolved to a truthy value for
// the pattern slot Index of application App.
type ScriptMatch struct {
	App   string
	Chain string
	Index int
	Value any
}

// ChainSet maps application names to the dotted property chains the
// fingerprinting engine wants resolved against the script-global object.
// Each chain carries one pattern per slot; a resolved chain produces one
// ScriptMatch per slot.
type ChainSet map[string]map[string][]string

// Chains returns every distinct chain in the set, sorted.
func (c ChainSet) Chains() []string {
	seen := make(map[string]bool)
	chains := make([]string, 0)
	for _, byChain := range c {
		for chain := range byChain {
			if !seen[chain] {
				seen[chain] = true
				chains = append(chains, chain)
			}
		}
	}
	sort.Strings(chains)
	return chains
}
