package jobs

import (
	"sort"
)

// IterateParameters expands a parameter grid into the cross product of its
// values, one map per combination. Global parameters are copied into every
// combination. Grid keys are walked in sorted order so the output order is
// stable across runs.
func IterateParameters(global map[string]string, grid map[string][]string) []map[string]string {
	keys := make([]string, 0, len(grid))
	for k := range grid {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := []map[string]string{}
	current := make(map[string]string, len(global)+len(grid))
	for k, v := range global {
		current[k] = v
	}

	var expand func(i int)
	expand = func(i int) {
		if i == len(keys) {
			c := make(map[string]string, len(current))
			for k, v := range current {
				c[k] = v
			}
			out = append(out, c)
			return
		}
		for _, v := range grid[keys[i]] {
			current[keys[i]] = v
			expand(i + 1)
		}
		delete(current, keys[i])
	}
	expand(0)
	return out
}
