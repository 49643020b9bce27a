package schema

import (
	"fmt"
	"sort"
	"strings"

	"livetrade/pkg/exception"
)

// SymbolSet is an immutable set of normalized instrument names.
type SymbolSet struct {
	names []string
	index map[string]struct{}
}

// NormalizeSymbol trims and upper-cases a symbol name.
func NormalizeSymbol(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}

// NewSymbolSet builds a set from names, dropping duplicates.
func NewSymbolSet(names []string) (SymbolSet, error) {
	set := SymbolSet{index: make(map[string]struct{}, len(names))}
	for _, raw := range names {
		name := NormalizeSymbol(raw)
		if name == "" {
			return SymbolSet{}, fmt.Errorf("symbol %q: %w", raw, exception.ErrInvalidSymbol)
		}
		if _, ok := set.index[name]; ok {
			continue
		}
		set.index[name] = struct{}{}
		set.names = append(set.names, name)
	}
	sort.Strings(set.names)
	return set, nil
}

// Contains reports whether the normalized symbol is in the set.
func (s SymbolSet) Contains(name string) bool {
	_, ok := s.index[NormalizeSymbol(name)]
	return ok
}

// Len returns the number of symbols.
func (s SymbolSet) Len() int {
	return len(s.names)
}

// Names returns a sorted copy of the symbols.
func (s SymbolSet) Names() []string {
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}
