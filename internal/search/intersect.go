package search

import "sort"

// Intersect returns the positions present in every group. Each group must be
// strictly ascending. Groups are merged smallest first and the walk stops as
// soon as the running result is empty. No groups yields nil.
func Intersect(groups ...[]int) []int {
	if len(groups) == 0 {
		return nil
	}
	ordered := make([][]int, len(groups))
	copy(ordered, groups)
	sort.SliceStable(ordered, func(i, j int) bool { return len(ordered[i]) < len(ordered[j]) })

	result := ordered[0]
	if len(result) == 0 {
		return []int{}
	}
	if len(ordered) == 1 {
		out := make([]int, len(result))
		copy(out, result)
		return out
	}
	for _, g := range ordered[1:] {
		result = intersectPair(result, g)
		if len(result) == 0 {
			return result
		}
	}
	return result
}

// intersectPair is a two-pointer merge of two ascending lists.
func intersectPair(a, b []int) []int {
	out := make([]int, 0, min(len(a), len(b)))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] == b[j]:
			out = append(out, a[i])
			i++
			j++
		case a[i] < b[j]:
			i++
		default:
			j++
		}
	}
	return out
}
