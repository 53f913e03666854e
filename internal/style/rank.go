package style

import "sort"

// topEntries ranks counts by count descending, then text ascending, and
// returns at most n entries. Ordering depends only on map content, never on
// map iteration order.
func topEntries(counts map[string]int, n int) []Entry {
	entries := make([]Entry, 0, len(counts))
	for text, count := range counts {
		entries = append(entries, Entry{Text: text, Count: count})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Count != entries[j].Count {
			return entries[i].Count > entries[j].Count
		}
		return entries[i].Text < entries[j].Text
	})
	if len(entries) > n {
		entries = entries[:n]
	}
	return entries
}

// retainTop keeps only the n highest-ranked entries. Entries outside the cut
// are lost; equal counts at the boundary are decided by text order.
func retainTop(counts map[string]int, n int) map[string]int {
	top := topEntries(counts, n)
	kept := make(map[string]int, len(top))
	for _, e := range top {
		kept[e.Text] = e.Count
	}
	return kept
}
