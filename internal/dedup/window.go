package dedup

import "time"

// selectWindow picks the representatives of one date-sorted group under the
// rolling-window rule. The first article always opens the group. Every later
// article either crosses the gap threshold measured from the last kept
// article, which makes it a burst boundary and keeps it, or it falls inside
// the current burst and is dropped. Articles inside a burst are never
// selected, regardless of score; only group openers and burst boundaries
// survive.
func selectWindow(group []Article, windowDays int) []Article {
	var kept []Article
	var lastKept time.Time
	for i, a := range group {
		if i == 0 {
			kept = append(kept, a)
			lastKept = a.Date
			continue
		}
		if daysBetween(lastKept, a.Date) >= windowDays {
			kept = append(kept, a)
			lastKept = a.Date
		}
	}
	return kept
}

// selectCalendarMonth keeps one representative per calendar month, chosen by
// the pick policy. The group must be sorted by date.
func selectCalendarMonth(group []Article, policy Policy) []Article {
	var kept []Article
	for start := 0; start < len(group); {
		end := start + 1
		for end < len(group) && sameMonth(group[end].Date, group[start].Date) {
			end++
		}
		kept = append(kept, pick(group[start:end], policy))
		start = end
	}
	return kept
}

// pick applies the tie-break policy to a non-empty candidate slice.
// PickHighestScore treats a missing score as minus infinity and keeps the
// first candidate on ties.
func pick(candidates []Article, policy Policy) Article {
	best := candidates[0]
	switch policy {
	case PickHighestScore:
		for _, c := range candidates[1:] {
			if c.HasScore && (!best.HasScore || c.Score > best.Score) {
				best = c
			}
		}
	default:
		for _, c := range candidates[1:] {
			if c.Date.Before(best.Date) {
				best = c
			}
		}
	}
	return best
}

func daysBetween(a, b time.Time) int {
	return int(b.Sub(a).Hours() / 24)
}

func sameMonth(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month()
}
