// Package lineup keeps the stream mappings of one channel in order.
//
// A channel's mappings always carry dense priorities 0..n-1 and at most one
// primary, which sits at priority 0. Every function returns a new slice and
// leaves its input untouched, so stores can diff the result against what
// they hold.
package lineup

import (
	"fmt"
	"slices"
	"sort"

	"github.com/voyagen/guidevault/internal/models"
)

type mapping = models.ChannelStreamMapping

// Normalize orders mappings by priority (then id) and renumbers them densely.
func Normalize(list []mapping) []mapping {
	out := slices.Clone(list)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].ID < out[j].ID
	})
	for i := range out {
		out[i].Priority = i
	}
	return out
}

// Add inserts m. As primary it takes priority 0 and every existing mapping
// moves down one place, the old primary included; otherwise it is appended.
func Add(list []mapping, m mapping, primary bool) []mapping {
	out := Normalize(list)
	if !primary {
		m.IsPrimary = false
		m.Priority = len(out)
		return append(out, m)
	}
	for i := range out {
		out[i].IsPrimary = false
		out[i].Priority++
	}
	m.IsPrimary = true
	m.Priority = 0
	return append([]mapping{m}, out...)
}

// Remove deletes the mappings with the given ids and closes the gaps. When
// the primary is removed, the mapping now at priority 0 becomes primary.
func Remove(list []mapping, ids ...int64) (kept, removed []mapping) {
	drop := make(map[int64]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	lostPrimary := false
	for _, m := range Normalize(list) {
		if drop[m.ID] {
			removed = append(removed, m)
			lostPrimary = lostPrimary || m.IsPrimary
			continue
		}
		kept = append(kept, m)
	}
	kept = Normalize(kept)
	if lostPrimary && len(kept) > 0 {
		kept[0].IsPrimary = true
	}
	return kept, removed
}

// SetPrimary moves the mapping to streamID to priority 0 and makes it the
// only primary. ok is false when the channel has no mapping to that stream.
func SetPrimary(list []mapping, streamID int64) (out []mapping, ok bool) {
	ordered := Normalize(list)
	idx := slices.IndexFunc(ordered, func(m mapping) bool { return m.CatalogStreamID == streamID })
	if idx < 0 {
		return ordered, false
	}
	target := ordered[idx]
	target.IsPrimary = true
	out = make([]mapping, 0, len(ordered))
	out = append(out, target)
	for i, m := range ordered {
		if i == idx {
			continue
		}
		m.IsPrimary = false
		out = append(out, m)
	}
	for i := range out {
		out[i].Priority = i
	}
	return out, true
}

// Validate checks the ordering invariants of one channel's mappings.
func Validate(list []mapping) error {
	seen := make(map[int]bool, len(list))
	primaries := 0
	for _, m := range list {
		if m.Priority < 0 || m.Priority >= len(list) || seen[m.Priority] {
			return fmt.Errorf("priorities are not dense 0..%d", len(list)-1)
		}
		seen[m.Priority] = true
		if m.IsPrimary {
			primaries++
			if m.Priority != 0 {
				return fmt.Errorf("primary mapping %d has priority %d", m.ID, m.Priority)
			}
		}
	}
	if primaries > 1 {
		return fmt.Errorf("%d primary mappings", primaries)
	}
	return nil
}
