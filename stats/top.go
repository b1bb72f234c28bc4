package stats

import (
	"fmt"
	"io"
	"sort"
)

// Count is one value of a frequency table.
type Count struct {
	Key string
	N   int
}

// Top returns the limit most frequent keys of m, most frequent first and
// alphabetical among equal counts. A negative limit returns all of them.
func Top(m map[string]int, limit int) []Count {
	counts := make([]Count, 0, len(m))
	for k, n := range m {
		counts = append(counts, Count{Key: k, N: n})
	}
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].N != counts[j].N {
			return counts[i].N > counts[j].N
		}
		return counts[i].Key < counts[j].Key
	})
	if limit >= 0 && limit < len(counts) {
		counts = counts[:limit]
	}
	return counts
}

// PrettyPrintTop writes the top N most frequent items in a map to w.
func PrettyPrintTop(w io.Writer, m map[string]int, limit int) {
	for i, c := range Top(m, limit) {
		fmt.Fprintf(w, "%d. %s (%d)\n", i+1, c.Key, c.N)
	}
}
