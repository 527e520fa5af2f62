// Package pipeline orchestrates one end-to-end batch run: collect into
// the article store, shape the stored window into the output table,
// deduplicate, score, and write the workbook with its report.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/esglab/newsdesk/internal/collect"
	"github.com/esglab/newsdesk/internal/config"
	"github.com/esglab/newsdesk/internal/database"
	"github.com/esglab/newsdesk/internal/dedup"
	"github.com/esglab/newsdesk/internal/embed"
	"github.com/esglab/newsdesk/internal/report"
	"github.com/esglab/newsdesk/internal/score"
	"github.com/esglab/newsdesk/internal/xlsx"
)

// StepResult holds the result of a single pipeline step.
type StepResult struct {
	Name    string
	Summary string
	Err     error
}

// Result holds the results of a full pipeline run.
type Result struct {
	RunID      string
	OutputPath string
	ReportPath string
	Steps      []StepResult
}

// Options configures one run. Empty dates leave the window to the input
// workbook's Config sheet, then to the current year.
type Options struct {
	InputPath string
	OutputDir string
	DateFrom  string
	DateTo    string
}

// Pipeline orchestrates the 5-step batch pipeline.
type Pipeline struct {
	cfg    *config.Config
	db     *database.DB
	source collect.Source

	// Embedder overrides configured provider selection when non-nil.
	Embedder embed.Embedder
}

// New creates a pipeline over an open database and a collection source.
func New(cfg *config.Config, db *database.DB, source collect.Source) *Pipeline {
	return &Pipeline{cfg: cfg, db: db, source: source}
}

// Run executes the full 5-step pipeline. A collect, table or dedup error
// aborts the run; a score error still writes the unscored workbook.
func (p *Pipeline) Run(ctx context.Context, opts Options) *Result {
	runID := database.MakeRunID(time.Now())
	r := &Result{RunID: runID}

	in, err := xlsx.ReadInputs(opts.InputPath)
	if err != nil {
		r.Steps = append(r.Steps, StepResult{Name: "Collect", Err: err})
		return r
	}
	from, to, err := resolveWindow(opts, in.Config)
	if err != nil {
		r.Steps = append(r.Steps, StepResult{Name: "Collect", Err: err})
		return r
	}

	// Step 1: Collect
	step, collected := p.runCollect(ctx, runID, in, from, to)
	r.Steps = append(r.Steps, step)
	if step.Err != nil {
		return r
	}

	// Step 2: Table
	step, table := p.runTable(in, from, to)
	r.Steps = append(r.Steps, step)
	if step.Err != nil {
		return r
	}

	// Step 3: Dedup
	step, deduped := p.runDedup(runID, table)
	r.Steps = append(r.Steps, step)
	if step.Err != nil {
		return r
	}

	// Step 4: Score
	step, scored := p.runScore(ctx, deduped.Table, in.Issues)
	r.Steps = append(r.Steps, step)

	// Step 5: Write
	step, outPath, reportPath := p.runWrite(runID, opts.OutputDir, from, to, collected, deduped, scored)
	r.Steps = append(r.Steps, step)
	r.OutputPath = outPath
	r.ReportPath = reportPath
	return r
}

// Collect runs only the collection step and records the run. When
// watchFirst is set and the watch list has active companies, those
// replace the workbook's Company sheet, so scheduled runs follow the
// viewer's list instead of a stale file.
func (p *Pipeline) Collect(ctx context.Context, opts Options, watchFirst bool) (string, *collect.Result, error) {
	in, err := xlsx.ReadInputs(opts.InputPath)
	if err != nil {
		return "", nil, err
	}
	if watchFirst {
		watched, err := p.db.GetActiveWatchCompanies()
		if err != nil {
			return "", nil, err
		}
		if len(watched) > 0 {
			in.Companies = watchCompanies(watched)
		}
	}
	from, to, err := resolveWindow(opts, in.Config)
	if err != nil {
		return "", nil, err
	}

	runID := database.MakeRunID(time.Now())
	step, result := p.runCollect(ctx, runID, in, from, to)
	if step.Err != nil {
		return runID, nil, step.Err
	}
	return runID, result, nil
}

func watchCompanies(watched []database.WatchCompany) []xlsx.Company {
	companies := make([]xlsx.Company, len(watched))
	for i, w := range watched {
		companies[i] = xlsx.Company{Name: w.Name, CorpID: deref(w.CorpID), Ticker: deref(w.Ticker)}
	}
	return companies
}

// DryRun shows what a run would do without crawling or writing.
func (p *Pipeline) DryRun(opts Options) *Result {
	r := &Result{}

	in, err := xlsx.ReadInputs(opts.InputPath)
	if err != nil {
		r.Steps = append(r.Steps, StepResult{Name: "Collect", Err: err})
		return r
	}
	from, to, err := resolveWindow(opts, in.Config)
	if err != nil {
		r.Steps = append(r.Steps, StepResult{Name: "Collect", Err: err})
		return r
	}

	queries := buildQueries(in, from, to)
	r.Steps = append(r.Steps, StepResult{
		Name: "Collect",
		Summary: fmt.Sprintf("[dry-run] %d queries (%d companies, %d issues) over %s ~ %s via %s",
			len(queries), len(in.Companies), len(in.Issues), from, to, p.source.Name()),
	})

	stored, _ := p.db.GetArticlesInWindow(from, to)
	r.Steps = append(r.Steps, StepResult{
		Name:    "Table",
		Summary: fmt.Sprintf("[dry-run] %d articles already stored in the window", len(stored)),
	})

	r.Steps = append(r.Steps, StepResult{
		Name: "Dedup",
		Summary: fmt.Sprintf("[dry-run] window %d days, policy %s, mode %s",
			p.cfg.Dedup.WindowDays, p.cfg.Dedup.Policy, p.cfg.Dedup.Mode),
	})

	r.Steps = append(r.Steps, StepResult{
		Name:    "Score",
		Summary: fmt.Sprintf("[dry-run] %d issues, embedding provider %q", len(in.Issues), p.cfg.Embedding.Provider),
	})

	dir := opts.OutputDir
	if dir == "" {
		dir = "."
	}
	r.Steps = append(r.Steps, StepResult{
		Name:    "Write",
		Summary: fmt.Sprintf("[dry-run] would write news_output_<runid>.xlsx under %s", dir),
	})
	return r
}

func (p *Pipeline) runCollect(ctx context.Context, runID string, in *xlsx.Inputs, from, to string) (StepResult, *collect.Result) {
	log.Println("Step 1/5: Collecting articles...")
	if err := p.db.CreateRun(runID, from, to); err != nil {
		return StepResult{Name: "Collect", Err: fmt.Errorf("recording run: %w", err)}, nil
	}

	collector := collect.NewCollector(p.cfg, p.db, p.source)
	result, err := collector.Collect(ctx, runID, buildQueries(in, from, to))
	if err != nil {
		return StepResult{Name: "Collect", Err: err}, nil
	}
	if err := p.db.UpdateRunCounts(runID, result.TotalFound, result.NewArticles, result.Duplicates); err != nil {
		return StepResult{Name: "Collect", Err: fmt.Errorf("recording run counts: %w", err)}, nil
	}

	summary := fmt.Sprintf("Found %d new articles (%d total, %d duplicates)",
		result.NewArticles, result.TotalFound, result.Duplicates)
	if result.Failed > 0 {
		summary += fmt.Sprintf(", %d queries failed", result.Failed)
	}
	return StepResult{Name: "Collect", Summary: summary}, result
}

func (p *Pipeline) runTable(in *xlsx.Inputs, from, to string) (StepResult, *dedup.Table) {
	log.Println("Step 2/5: Building the output table...")
	articles, err := p.db.GetArticlesInWindow(from, to)
	if err != nil {
		return StepResult{Name: "Table", Err: err}, nil
	}
	table := buildTable(articles, in)
	return StepResult{
		Name:    "Table",
		Summary: fmt.Sprintf("%d stored articles in the window", len(table.Rows)),
	}, table
}

func (p *Pipeline) runDedup(runID string, table *dedup.Table) (StepResult, *dedup.Result) {
	log.Println("Step 3/5: Deduplicating...")
	result, err := dedup.Run(table, dedup.Options{
		WindowDays: p.cfg.Dedup.WindowDays,
		Policy:     dedup.Policy(p.cfg.Dedup.Policy),
		Mode:       dedup.Mode(p.cfg.Dedup.Mode),
	})
	if err != nil {
		return StepResult{Name: "Dedup", Err: err}, nil
	}

	violations := make([]database.Violation, len(result.Violations))
	for i, v := range result.Violations {
		violations[i] = database.Violation{
			Company:  v.Company,
			Keyword:  v.Keyword,
			Date:     v.Date,
			PrevDate: v.PrevDate,
			GapDays:  v.GapDays,
		}
	}
	if err := p.db.ReplaceViolations(runID, violations); err != nil {
		return StepResult{Name: "Dedup", Err: fmt.Errorf("recording violations: %w", err)}, nil
	}

	return StepResult{
		Name: "Dedup",
		Summary: fmt.Sprintf("%d rows in, %d kept, %d window violations",
			result.Stats.Input, result.Stats.Kept, len(result.Violations)),
	}, result
}

// runScore is skipped, not failed, when no embedding provider is
// configured: the workbook still ships with the crawl placeholders.
func (p *Pipeline) runScore(ctx context.Context, table *dedup.Table, issues []xlsx.Issue) (StepResult, *score.Result) {
	log.Println("Step 4/5: Scoring against ESG issues...")
	embedder := p.Embedder
	if embedder == nil {
		var err error
		embedder, err = embed.New(ctx, p.cfg)
		if err != nil {
			log.Printf("scoring skipped: %v", err)
			return StepResult{Name: "Score", Summary: fmt.Sprintf("skipped: %v", err)}, nil
		}
		if c, ok := embedder.(interface{ Close() }); ok {
			defer c.Close()
		}
	}

	scorer := score.NewScorer(embedder, p.cfg.Score.Threshold)
	scorer.TextColumn = p.cfg.Score.TextColumn
	result, err := scorer.ScoreTable(ctx, table, issues)
	if err != nil {
		return StepResult{Name: "Score", Err: err}, nil
	}

	for _, a := range table.Rows {
		if !a.HasScore || a.URL == "" {
			continue
		}
		if err := p.db.UpdateArticleScoreByURL(a.URL, a.Score); err != nil {
			return StepResult{Name: "Score", Err: fmt.Errorf("storing scores: %w", err)}, result
		}
	}

	return StepResult{
		Name:    "Score",
		Summary: fmt.Sprintf("Scored %d articles, %d negative", result.Scored, result.Negative),
	}, result
}

func (p *Pipeline) runWrite(runID, outputDir, from, to string, collected *collect.Result, deduped *dedup.Result, scored *score.Result) (StepResult, string, string) {
	log.Println("Step 5/5: Writing the workbook and report...")
	if outputDir == "" {
		outputDir = "."
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return StepResult{Name: "Write", Err: fmt.Errorf("creating output dir: %w", err)}, "", ""
	}

	outPath := filepath.Join(outputDir, "news_output_"+runID+".xlsx")
	meta := xlsx.Meta{CreatedAt: time.Now(), DateFrom: from, DateTo: to, Sheet: p.cfg.Output.SheetName}
	if err := xlsx.WriteTable(outPath, deduped.Table, meta); err != nil {
		return StepResult{Name: "Write", Err: err}, "", ""
	}

	data := &report.Data{
		RunID:         runID,
		DateFrom:      from,
		DateTo:        to,
		Source:        p.source.Name(),
		OutputPath:    outPath,
		TotalFound:    collected.TotalFound,
		NewArticles:   collected.NewArticles,
		Duplicates:    collected.Duplicates,
		FailedQueries: collected.Failed,
		PerCompany:    collected.PerCompany,
		Dedup:         &deduped.Stats,
		Violations:    deduped.Violations,
	}
	if scored != nil {
		data.Scored = scored.Scored
		data.Negative = scored.Negative
	}
	reportPath, err := report.Write(outputDir, data)
	if err != nil {
		return StepResult{Name: "Write", Err: err}, outPath, ""
	}

	abs, err := filepath.Abs(outPath)
	if err != nil {
		abs = outPath
	}
	fmt.Printf("SAVED: %s\n", abs)

	return StepResult{
		Name:    "Write",
		Summary: fmt.Sprintf("%d rows -> %s", len(deduped.Table.Rows), outPath),
	}, outPath, reportPath
}

// resolveWindow picks the crawl window: explicit options win, then the
// Config sheet of the input workbook, then the current year.
func resolveWindow(opts Options, params map[string]string) (string, string, error) {
	from, to := opts.DateFrom, opts.DateTo
	if from == "" && to == "" {
		from, to = windowFromParams(params, time.Now())
	}
	if from == "" || to == "" {
		return "", "", fmt.Errorf("incomplete date window %q ~ %q", from, to)
	}
	for _, d := range []string{from, to} {
		if _, err := time.Parse("20060102", d); err != nil {
			return "", "", fmt.Errorf("bad date %q, expected YYYYMMDD", d)
		}
	}
	if from > to {
		return "", "", fmt.Errorf("date window starts after it ends: %s ~ %s", from, to)
	}
	return from, to, nil
}

// windowFromParams reads date_from/date_to or the year-style keys from
// the Config sheet. Dates may carry dots (2024.01.01); a year expands to
// its full calendar span.
func windowFromParams(params map[string]string, now time.Time) (string, string) {
	from, to := cleanDay(params["date_from"]), cleanDay(params["date_to"])
	if from != "" && to != "" {
		return from, to
	}
	if y, err := strconv.Atoi(strings.TrimSpace(params["year"])); err == nil {
		return yearSpan(y, y)
	}
	sy, errS := strconv.Atoi(strings.TrimSpace(params["start_year"]))
	ey, errE := strconv.Atoi(strings.TrimSpace(params["end_year"]))
	if errS == nil && errE == nil {
		return yearSpan(sy, ey)
	}
	return yearSpan(now.Year(), now.Year())
}

func yearSpan(from, to int) (string, string) {
	return fmt.Sprintf("%d0101", from), fmt.Sprintf("%d1231", to)
}

// cleanDay strips separators from a config date cell and rejects
// anything that does not parse as a calendar day.
func cleanDay(s string) string {
	s = strings.NewReplacer(".", "", "-", "", "/", "", " ", "").Replace(s)
	if len(s) != 8 {
		return ""
	}
	if _, err := time.Parse("20060102", s); err != nil {
		return ""
	}
	return s
}

// buildQueries expands companies against every negative keyword of every
// issue. The keyword column doubles as the search candidate list.
func buildQueries(in *xlsx.Inputs, from, to string) []collect.Query {
	var queries []collect.Query
	for _, c := range in.Companies {
		for _, issue := range in.Issues {
			for _, kw := range issue.Negatives {
				queries = append(queries, collect.Query{
					Company:  c.Name,
					Keyword:  kw,
					DateFrom: from,
					DateTo:   to,
				})
			}
		}
	}
	return queries
}

// buildTable shapes stored articles into the output column schema. Issue
// metadata is joined back over the search keyword; the score cell keeps
// the crawl placeholder until the scoring step overwrites it.
func buildTable(articles []database.Article, in *xlsx.Inputs) *dedup.Table {
	issueByKeyword := make(map[string]xlsx.Issue)
	for _, issue := range in.Issues {
		for _, kw := range issue.Negatives {
			if _, ok := issueByKeyword[kw]; !ok {
				issueByKeyword[kw] = issue
			}
		}
	}
	companyByName := make(map[string]xlsx.Company)
	for _, c := range in.Companies {
		companyByName[c.Name] = c
	}

	cols := append([]string(nil), xlsx.OutputColumns...)
	t := &dedup.Table{
		Columns: cols,
		Layout: dedup.Layout{
			Company: colIndex(cols, xlsx.ColCompany),
			Keyword: colIndex(cols, xlsx.ColKeyword),
			Date:    colIndex(cols, xlsx.ColDate),
			URL:     colIndex(cols, xlsx.ColURL),
			Title:   colIndex(cols, xlsx.ColTitle),
			Score:   colIndex(cols, xlsx.ColScore),
		},
	}

	for _, a := range articles {
		issue := issueByKeyword[a.Keyword]
		company := companyByName[a.Company]

		scoreCell := "-1"
		if a.NegativeScore != nil {
			scoreCell = strconv.FormatFloat(*a.NegativeScore, 'f', 4, 64)
		}
		row := dedup.Article{
			Company: a.Company,
			Keyword: a.Keyword,
			RawDate: deref(a.PublishedDate),
			URL:     a.URL,
			Title:   a.Title,
			Cells: []string{
				issue.Group(),
				issue.Theme,
				issue.KeyIssue,
				a.Keyword,
				issue.Joined,
				scoreCell,
				deref(a.PublishedDate),
				a.Title,
				deref(a.Press),
				a.URL,
				a.Company,
				company.CorpID,
				company.Ticker,
			},
		}
		if a.NegativeScore != nil {
			row.Score = *a.NegativeScore
			row.HasScore = true
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

func colIndex(columns []string, name string) int {
	for i, c := range columns {
		if c == name {
			return i
		}
	}
	return -1
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
