// Package progress computes which missions a student may attempt. It is a
// pure function over the role-filtered mission sequence: the first mission is
// always unlocked, and any mission is unlocked once it or its immediate
// predecessor in that same sequence is completed.
package progress

import (
	"github.com/portalkids/portal-api/src/portal/types"
)

// FilterForRole keeps the missions visible to role, preserving order.
// Missions with an empty or wildcard role set are visible to every role.
func FilterForRole(missions []types.Mission, role string) []types.Mission {
	out := make([]types.Mission, 0, len(missions))
	for _, m := range missions {
		if m.AppliesTo(role) {
			out = append(out, m)
		}
	}
	return out
}

// UnlockedSet returns the IDs of the unlocked missions in the given
// role-filtered, order-preserving sequence. Single predecessor, forward only.
func UnlockedSet(filtered []types.Mission, completed map[uint32]struct{}) map[uint32]struct{} {
	unlocked := make(map[uint32]struct{}, len(filtered))
	for i, m := range filtered {
		switch {
		case i == 0:
			unlocked[m.ID] = struct{}{}
		default:
			if _, ok := completed[m.ID]; ok {
				unlocked[m.ID] = struct{}{}
				continue
			}
			if _, ok := completed[filtered[i-1].ID]; ok {
				unlocked[m.ID] = struct{}{}
			}
		}
	}
	return unlocked
}
