package client

import "sort"

// Diff lists the per-key changes turning before into after, ordered by key.
// Backends that only see whole snapshots (a file, a polled table) use it to
// turn them into individual notifications.
func Diff(before, after map[string]string) []Change {
	keys := make(map[string]struct{}, len(before)+len(after))
	for k := range before {
		keys[k] = struct{}{}
	}
	for k := range after {
		keys[k] = struct{}{}
	}
	sorted := make([]string, 0, len(keys))
	for k := range keys {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)

	var out []Change
	for _, k := range sorted {
		old, hadOld := before[k]
		cur, hasCur := after[k]
		switch {
		case hasCur && (!hadOld || old != cur):
			out = append(out, Change{Key: k, Value: cur, Present: true})
		case !hasCur && hadOld:
			out = append(out, Change{Key: k})
		}
	}
	return out
}
