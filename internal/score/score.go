// Package score assigns negative ESG issue scores to articles by
// comparing text embeddings against each issue's negative keyword list.
package score

import (
	"context"
	"fmt"
	"log"
	"math"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/esglab/newsdesk/internal/dedup"
	"github.com/esglab/newsdesk/internal/embed"
	"github.com/esglab/newsdesk/internal/vector"
	"github.com/esglab/newsdesk/internal/xlsx"
)

// textColumnCandidates are the headers tried, in order, when picking the
// article text column to embed.
var textColumnCandidates = []string{
	xlsx.ColTitle, "제목", "headline", "내용", "content", "본문", "요약",
}

// ScoredColumns are appended to a scored table, in this order.
var ScoredColumns = []string{
	"핵심이슈(자동)",
	xlsx.ColNegatives,
	xlsx.ColScore,
	"부정 초과 키워드",
	"부정 여부",
}

// DefaultThreshold marks an article negative when its best issue score
// exceeds it.
const DefaultThreshold = 0.5

// Result summarizes one scoring pass.
type Result struct {
	TextColumn string
	Scored     int
	Negative   int
}

// Scorer scores articles against issue keyword embeddings.
type Scorer struct {
	embedder  embed.Embedder
	threshold float64

	// TextColumn forces the scored text column; empty means auto-detect.
	TextColumn string
}

// NewScorer creates a scorer. A zero threshold falls back to the default.
func NewScorer(embedder embed.Embedder, threshold float64) *Scorer {
	if threshold == 0 {
		threshold = DefaultThreshold
	}
	return &Scorer{embedder: embedder, threshold: threshold}
}

// ScoreTable scores every row in place. Each row gets its best-matching
// issue, score and negative flag written into the five scored columns;
// columns the table already carries (crawl outputs ship 부정 ESG 키워드
// and 부정점수 pre-filled) are overwritten, the rest are appended. Row
// order is untouched.
func (s *Scorer) ScoreTable(ctx context.Context, t *dedup.Table, issues []xlsx.Issue) (*Result, error) {
	if len(issues) == 0 {
		return nil, fmt.Errorf("no issues to score against")
	}

	var textCol int
	if s.TextColumn != "" {
		textCol = findColumn(t.Columns, s.TextColumn)
		if textCol < 0 {
			return nil, fmt.Errorf("text column %q not in table", s.TextColumn)
		}
	} else {
		textCol = pickTextColumn(t.Columns)
		if textCol < 0 {
			return nil, fmt.Errorf("no text column found (tried %s)", strings.Join(textColumnCandidates, ", "))
		}
	}

	keywords, keywordIdx := collectKeywords(issues)
	if len(keywords) == 0 {
		return nil, fmt.Errorf("issues carry no negative keywords")
	}

	texts := make([]string, len(t.Rows))
	for i, a := range t.Rows {
		if textCol < len(a.Cells) {
			texts[i] = a.Cells[textCol]
		}
	}

	log.Printf("embedding %d articles and %d keywords with %s", len(texts), len(keywords), s.embedder.Name())
	textVecs, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embedding articles: %w", err)
	}
	keywordVecs, err := s.embedder.Embed(ctx, keywords)
	if err != nil {
		return nil, fmt.Errorf("embedding keywords: %w", err)
	}
	if len(textVecs) != len(texts) || len(keywordVecs) != len(keywords) {
		return nil, fmt.Errorf("embedding count mismatch")
	}

	result := &Result{TextColumn: t.Columns[textCol]}
	targets := make([]int, len(ScoredColumns))
	for i, name := range ScoredColumns {
		idx := findColumn(t.Columns, name)
		if idx < 0 {
			idx = len(t.Columns)
			t.Columns = append(t.Columns, name)
		}
		targets[i] = idx
	}
	if t.Layout.Score < 0 {
		t.Layout.Score = targets[2]
	}

	for i := range t.Rows {
		a := &t.Rows[i]
		best, exceeded := bestIssue(textVecs[i], issues, keywordVecs, keywordIdx, s.threshold)

		negative := "0"
		if best.score > s.threshold {
			negative = "1"
			result.Negative++
		}

		cells := make([]string, len(t.Columns))
		copy(cells, a.Cells)
		cells[targets[0]] = best.issue.KeyIssue
		cells[targets[1]] = best.issue.Joined
		cells[targets[2]] = strconv.FormatFloat(best.score, 'f', 4, 64)
		cells[targets[3]] = strings.Join(exceeded, ", ")
		cells[targets[4]] = negative
		a.Cells = cells
		a.Score = best.score
		a.HasScore = true
		result.Scored++
	}
	return result, nil
}

// ScoreFile scores a deduplicated workbook against the ESG sheet of the
// issue workbook and writes the result. An empty outPath derives the
// "_scored" sibling of the input.
func (s *Scorer) ScoreFile(ctx context.Context, inPath, issuesPath, outPath, sheet string) (string, *Result, error) {
	t, err := xlsx.ReadTable(inPath, "")
	if err != nil {
		return "", nil, err
	}
	issues, err := xlsx.ReadIssues(issuesPath)
	if err != nil {
		return "", nil, err
	}

	result, err := s.ScoreTable(ctx, t, issues)
	if err != nil {
		return "", nil, err
	}

	if outPath == "" {
		outPath = ScoredPath(inPath)
	}
	if err := xlsx.WriteTable(outPath, t, xlsx.Meta{CreatedAt: time.Now(), Sheet: sheet}); err != nil {
		return "", nil, err
	}
	return outPath, result, nil
}

// ScoredPath derives the default output path for a scored workbook.
func ScoredPath(inPath string) string {
	ext := filepath.Ext(inPath)
	return strings.TrimSuffix(inPath, ext) + "_scored" + ext
}

func pickTextColumn(columns []string) int {
	for _, want := range textColumnCandidates {
		if i := findColumn(columns, want); i >= 0 {
			return i
		}
	}
	return -1
}

func findColumn(columns []string, name string) int {
	for i, col := range columns {
		if strings.TrimSpace(col) == name {
			return i
		}
	}
	return -1
}

// collectKeywords flattens issue keywords into one embedding batch,
// de-duplicated but in first-seen order so indexes stay stable.
func collectKeywords(issues []xlsx.Issue) ([]string, map[string]int) {
	var keywords []string
	idx := make(map[string]int)
	for _, issue := range issues {
		for _, kw := range issue.Negatives {
			if _, ok := idx[kw]; ok {
				continue
			}
			idx[kw] = len(keywords)
			keywords = append(keywords, kw)
		}
	}
	return keywords, idx
}

type issueScore struct {
	issue xlsx.Issue
	score float64
}

// bestIssue returns the issue whose keywords sit closest to the text
// vector, with the keywords of that issue that cleared the threshold.
// Ties keep the earlier issue: a later issue must score strictly higher
// to take over.
func bestIssue(textVec []float64, issues []xlsx.Issue, keywordVecs [][]float64, keywordIdx map[string]int, threshold float64) (issueScore, []string) {
	best := issueScore{issue: issues[0], score: math.Inf(-1)}
	var bestExceeded []string

	for _, issue := range issues {
		if len(issue.Negatives) == 0 {
			continue
		}
		maxSim := math.Inf(-1)
		var exceeded []string
		for _, kw := range issue.Negatives {
			i, ok := keywordIdx[kw]
			if !ok {
				continue
			}
			sim := vector.Cosine(textVec, keywordVecs[i])
			if sim > maxSim {
				maxSim = sim
			}
			if sim > threshold {
				exceeded = append(exceeded, kw)
			}
		}
		if maxSim > best.score {
			best = issueScore{issue: issue, score: maxSim}
			bestExceeded = exceeded
		}
	}
	return best, bestExceeded
}
