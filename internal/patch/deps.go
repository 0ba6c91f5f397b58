package patch

import "sort"

// MinimalAntichain reduces a direct dependency set to the minimal
// antichain in the dependency DAG (spec §4.3): an element is dropped
// when some other element of the set transitively depends on it
// already. dependsOn(y, x) must report whether y transitively depends
// on x (i.e. x is an ancestor of y in the channel's applied history).
// Ties are irrelevant to the result set but the output is sorted by
// content-hash lexicographic order for determinism (spec §4.3).
func MinimalAntichain(direct []Hash, dependsOn func(y, x Hash) bool) []Hash {
	keep := make([]bool, len(direct))
	for i := range direct {
		keep[i] = true
	}
	for i, x := range direct {
		for j, y := range direct {
			if i == j {
				continue
			}
			if dependsOn(y, x) {
				keep[i] = false
				break
			}
		}
	}
	var out []Hash
	for i, x := range direct {
		if keep[i] {
			out = append(out, x)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Less(out[b]) })
	return out
}

// TagShortcutEligible reports whether every hash in direct is a member
// of consolidated, making it safe (spec §4.3, P7) to replace the whole
// dependency list with the single consolidating tag hash.
func TagShortcutEligible(direct []Hash, consolidated map[Hash]bool) bool {
	for _, d := range direct {
		if !consolidated[d] {
			return false
		}
	}
	return true
}
