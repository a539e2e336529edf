package banners

import "sort"

// SelectActive returns the ids displayed on today: active entries scheduled for
// today or DayRandom, ordered by ascending priority with document order on ties,
// without duplicates. Entries that fail to decode are skipped.
func SelectActive(document *Document, today Day) []string {
	if document == nil {
		return []string{}
	}
	entries, _ := document.Entries()

	eligible := make([]Entry, 0, len(entries))
	for _, entry := range entries {
		if entry.Active && entry.Day.Matches(today) {
			eligible = append(eligible, entry)
		}
	}
	sortByPriority(eligible)

	seen := make(map[string]struct{}, len(eligible))
	ids := make([]string, 0, len(eligible))
	for _, entry := range eligible {
		if _, dup := seen[entry.ID]; dup {
			continue
		}
		seen[entry.ID] = struct{}{}
		ids = append(ids, entry.ID)
	}
	return ids
}

func sortByPriority(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Priority < entries[j].Priority
	})
}
