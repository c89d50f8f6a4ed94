// Package cachewindow picks which note entries carry a cache-stable marker
// on the next provider call.
package cachewindow

import "sort"

// Defaults match the Anthropic prompt cache: a breakpoint is only found
// again if it sits within the last 20 blocks, and one of the four allowed
// breakpoints is spent on the system prompt.
const (
	DefaultWindow      = 20
	DefaultBreakpoints = 3
)

// Select returns the indices (ascending) of the notes to mark cache-stable,
// given the current note count and the marker set used on the previous call.
//
// Previous markers still inside the most recent window entries are kept so
// the cached prefix stays stable between calls, the newest entry is always
// marked, and the oldest markers are evicted until at most breakpoints
// remain.
func Select(count int, previous []int, window, breakpoints int) []int {
	if count <= 0 || window <= 0 || breakpoints <= 0 {
		return nil
	}
	lowest := count - window
	if lowest < 0 {
		lowest = 0
	}

	seen := make(map[int]bool, len(previous)+1)
	markers := make([]int, 0, len(previous)+1)
	for _, i := range previous {
		if i < lowest || i >= count || seen[i] {
			continue
		}
		seen[i] = true
		markers = append(markers, i)
	}
	if newest := count - 1; !seen[newest] {
		markers = append(markers, newest)
	}

	sort.Ints(markers)
	if len(markers) > breakpoints {
		markers = markers[len(markers)-breakpoints:]
	}
	return markers
}

// Marked reports whether index i is in markers.
func Marked(markers []int, i int) bool {
	for _, m := range markers {
		if m == i {
			return true
		}
	}
	return false
}
