// Package selection keeps the user's pinned and graphed sensor sets in sync
// between the live collection and the persisted settings document.
package selection

import (
	"fmt"

	"github.com/Guliveer/spectrometer/internal/models"
)

// Store is the persisted selection set.
type Store interface {
	PinnedSensorIdentifiers() []string
	SetPinnedSensorIdentifiers(ids []string) error
	GraphedSensorIdentifiers() []string
	SetGraphedSensorIdentifiers(ids []string) error
}

// RestoreSelection returns a copy of all with IsPinned and IsGraphEnabled set
// for every record whose identifier appears in the corresponding list. Flags
// are only ever set; records not listed keep theirs. Persisted identifiers
// with no live record are ignored.
func RestoreSelection(all models.Collection, pinnedIDs, graphedIDs []string) models.Collection {
	pinned := toSet(pinnedIDs)
	graphed := toSet(graphedIDs)

	out := make(models.Collection, len(all))
	for i, r := range all {
		if _, ok := pinned[r.Identifier]; ok {
			r.IsPinned = true
		}
		if _, ok := graphed[r.Identifier]; ok {
			r.IsGraphEnabled = true
		}
		out[i] = r
	}
	return out
}

// SyncPinnedToStorage writes the live pinned set to the store if it differs
// from the persisted one. It reports whether a write happened.
func SyncPinnedToStorage(all models.Collection, store Store) (bool, error) {
	next, changed := reconcile(all, all.Pinned(), store.PinnedSensorIdentifiers())
	if !changed {
		return false, nil
	}
	if err := store.SetPinnedSensorIdentifiers(next); err != nil {
		return false, fmt.Errorf("saving pinned sensors: %w", err)
	}
	return true, nil
}

// SyncGraphedToStorage is SyncPinnedToStorage for the graph-enabled set.
func SyncGraphedToStorage(all models.Collection, store Store) (bool, error) {
	next, changed := reconcile(all, all.Graphed(), store.GraphedSensorIdentifiers())
	if !changed {
		return false, nil
	}
	if err := store.SetGraphedSensorIdentifiers(next); err != nil {
		return false, fmt.Errorf("saving graphed sensors: %w", err)
	}
	return true, nil
}

// reconcile builds the list to persist: every live selected identifier in
// collection order, then every persisted identifier that has no live record
// this run. Hardware that is unplugged today keeps its selection for the next
// run. Comparison with the persisted list ignores order and repeats.
func reconcile(all, selected models.Collection, persisted []string) ([]string, bool) {
	live := toSet(all.Identifiers())

	next := make([]string, 0, len(selected)+len(persisted))
	seen := make(map[string]struct{}, cap(next))
	for _, r := range selected {
		if _, ok := seen[r.Identifier]; ok {
			continue
		}
		seen[r.Identifier] = struct{}{}
		next = append(next, r.Identifier)
	}
	for _, id := range persisted {
		if _, ok := live[id]; ok {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		next = append(next, id)
	}

	return next, !sameSet(next, persisted)
}

func toSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func sameSet(a, b []string) bool {
	sa, sb := toSet(a), toSet(b)
	if len(sa) != len(sb) {
		return false
	}
	for id := range sa {
		if _, ok := sb[id]; !ok {
			return false
		}
	}
	return true
}
