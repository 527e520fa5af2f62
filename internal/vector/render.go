package vector

import (
	"fmt"
	"math"
	"strings"

	"github.com/mattn/go-runewidth"
)

// barWidth is the longest similarity bar.
const barWidth = 40

// Bar renders a score as a block bar scaled to barWidth. Scores outside
// [-1, 1] fill the whole bar.
func Bar(score float64) string {
	n := int(math.Abs(score) * barWidth)
	if n > barWidth {
		n = barWidth
	}
	if n < 0 {
		n = 0
	}
	return strings.Repeat("█", n)
}

// FormatMatches renders ranked matches as an aligned table. Hangul fills
// two terminal cells per syllable, so padding goes through runewidth.
func FormatMatches(matches []Match) string {
	width := 0
	for _, m := range matches {
		if w := runewidth.StringWidth(m.Word); w > width {
			width = w
		}
	}

	var b strings.Builder
	for i, m := range matches {
		fmt.Fprintf(&b, "%2d. %s  %8.4f  %s\n", i+1, runewidth.FillRight(m.Word, width), m.Score, Bar(m.Score))
	}
	return b.String()
}
