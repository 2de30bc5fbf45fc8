// Package reconcile merges freshly collected sensor records into the previous
// in-memory collection so that user metadata survives every refresh.
package reconcile

import "github.com/Guliveer/spectrometer/internal/models"

// Merge returns incoming with IsPinned and IsGraphEnabled carried over from
// the record with the same identifier in previous. Reading fields (value,
// min, max, name) always come from incoming.
//
// The provider occasionally reports the same identifier twice in one pass.
// The first occurrence wins and later ones are dropped. Incoming order is
// preserved.
func Merge(previous, incoming models.Collection) models.Collection {
	type flags struct {
		pinned, graphed bool
	}
	known := make(map[string]flags, len(previous))
	for _, r := range previous {
		if _, ok := known[r.Identifier]; ok {
			continue
		}
		known[r.Identifier] = flags{pinned: r.IsPinned, graphed: r.IsGraphEnabled}
	}

	seen := make(map[string]struct{}, len(incoming))
	merged := make(models.Collection, 0, len(incoming))
	for _, r := range incoming {
		if _, dup := seen[r.Identifier]; dup {
			continue
		}
		seen[r.Identifier] = struct{}{}

		if f, ok := known[r.Identifier]; ok {
			r.IsPinned = f.pinned
			r.IsGraphEnabled = f.graphed
		}
		merged = append(merged, r)
	}
	return merged
}

// Duplicates returns the identifiers that occur more than once in c, each
// listed once in order of their second occurrence.
func Duplicates(c models.Collection) []string {
	seen := make(map[string]int, len(c))
	var dups []string
	for _, r := range c {
		seen[r.Identifier]++
		if seen[r.Identifier] == 2 {
			dups = append(dups, r.Identifier)
		}
	}
	return dups
}
