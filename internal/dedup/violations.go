package dedup

// scanViolations reports every consecutive same-group pair whose day gap is
// below the window threshold. It runs over the full date-sorted table before
// any window selection, so pairs that selection later collapses still appear.
func scanViolations(rows []Article, windowDays int) []Violation {
	var out []Violation
	for i := 1; i < len(rows); i++ {
		prev, cur := rows[i-1], rows[i]
		if prev.companyKey != cur.companyKey || prev.keywordKey != cur.keywordKey {
			continue
		}
		gap := daysBetween(prev.Date, cur.Date)
		if gap < windowDays {
			out = append(out, Violation{
				Company:  cur.Company,
				Keyword:  cur.Keyword,
				Date:     cur.Date.Format("20060102"),
				PrevDate: prev.Date.Format("20060102"),
				GapDays:  gap,
			})
		}
	}
	return out
}
