package storylet

import "sort"

// Intersect returns keys present in both ascending lists.
func Intersect(a, b []Key) []Key {
	out := make([]Key, 0, min(len(a), len(b)))
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

// Union merges ascending lists without duplicates.
func Union(lists ...[]Key) []Key {
	seen := map[Key]bool{}
	var out []Key
	for _, l := range lists {
		for _, k := range l {
			if seen[k] {
				continue
			}
			seen[k] = true
			out = append(out, k)
		}
	}
	SortKeys(out)
	return out
}

func SortKeys(keys []Key) {
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
}
