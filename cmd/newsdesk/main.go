package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/esglab/newsdesk/internal/collect"
	"github.com/esglab/newsdesk/internal/config"
	"github.com/esglab/newsdesk/internal/database"
	"github.com/esglab/newsdesk/internal/dedup"
	"github.com/esglab/newsdesk/internal/embed"
	"github.com/esglab/newsdesk/internal/fetch"
	"github.com/esglab/newsdesk/internal/pipeline"
	"github.com/esglab/newsdesk/internal/report"
	"github.com/esglab/newsdesk/internal/schedule"
	"github.com/esglab/newsdesk/internal/score"
	"github.com/esglab/newsdesk/internal/server"
	"github.com/esglab/newsdesk/internal/vector"
	"github.com/esglab/newsdesk/internal/xlsx"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "newsdesk",
	Short:   "Korean ESG news collection and dedup toolkit",
	Long:    "Newsdesk crawls Korean news coverage for watched companies, collapses repeated coverage into one article per burst, scores negative ESG issues, and writes Excel reports.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if verbose {
			log.SetFlags(log.LstdFlags | log.Lshortfile)
		} else {
			log.SetFlags(log.LstdFlags)
		}

		config.LoadDotEnv()

		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(collectCmd)
	rootCmd.AddCommand(dedupCmd)
	rootCmd.AddCommand(scoreCmd)
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(vecCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("newsdesk", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/newsdesk/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to configure the crawl source, dedup window, and embedding provider.")
		fmt.Println("Naver and Gemini credentials go into the environment or a .env file.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show store counts and the active configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.GetStats()
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}

		fmt.Printf("Data directory: %s\n\n", cfg.GetDataDir())
		fmt.Println("Articles:")
		fmt.Printf("  Collected: %d\n", stats.TotalArticles)
		fmt.Printf("  Bodies fetched: %d\n", stats.FetchedArticles)
		fmt.Printf("  Scored: %d\n", stats.ScoredArticles)
		fmt.Println("\nRuns:")
		fmt.Printf("  Crawl runs: %d\n", stats.Runs)
		fmt.Printf("  Window violations: %d\n", stats.Violations)
		fmt.Println("\nWatch list:")
		fmt.Printf("  Companies: %d (%d active)\n", stats.TotalCompanies, stats.ActiveCompanies)
		fmt.Println("\nConfig:")
		fmt.Printf("  Crawl source: %s\n", cfg.Crawl.Source)
		fmt.Printf("  Dedup: %d-day window, %s policy, %s mode\n",
			cfg.Dedup.WindowDays, cfg.Dedup.Policy, cfg.Dedup.Mode)
		fmt.Printf("  Embedding provider: %s\n", cfg.Embedding.Provider)
		return nil
	},
}

// --- collect command ---

var (
	collectInput  string
	collectFrom   string
	collectTo     string
	collectSource string
	collectCron   string
	collectDryRun bool
)

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Crawl news for every company/keyword pair into the store",
	RunE: func(cmd *cobra.Command, args []string) error {
		if collectSource != "" {
			cfg.Crawl.Source = collectSource
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		source, err := collect.NewSource(cfg)
		if err != nil {
			return err
		}
		pipe := pipeline.New(cfg, db, source)
		opts := pipeline.Options{InputPath: collectInput, DateFrom: collectFrom, DateTo: collectTo}

		if collectDryRun {
			for _, step := range pipe.DryRun(opts).Steps {
				if step.Err != nil {
					return step.Err
				}
				if step.Name == "Collect" || step.Name == "Table" {
					fmt.Println(step.Summary)
				}
			}
			return nil
		}

		if collectCron != "" {
			return schedule.Run(collectCron, func(ctx context.Context) error {
				_, _, err := pipe.Collect(ctx, opts, true)
				return err
			})
		}

		runID, result, err := pipe.Collect(cmd.Context(), opts, false)
		if err != nil {
			return err
		}

		fmt.Println("\nCollection complete:")
		fmt.Printf("  Run: %s\n", runID)
		fmt.Printf("  Total found: %d\n", result.TotalFound)
		fmt.Printf("  New articles: %d\n", result.NewArticles)
		fmt.Printf("  Duplicates skipped: %d\n", result.Duplicates)
		if result.Failed > 0 {
			fmt.Printf("  Failed queries: %d\n", result.Failed)
		}

		if len(result.PerCompany) > 0 {
			fmt.Println("\nNew articles by company:")
			type kv struct {
				key string
				val int
			}
			var sorted []kv
			for k, v := range result.PerCompany {
				sorted = append(sorted, kv{k, v})
			}
			sort.Slice(sorted, func(i, j int) bool { return sorted[i].val > sorted[j].val })
			for _, s := range sorted {
				fmt.Printf("  %s: %d\n", s.key, s.val)
			}
		}
		return nil
	},
}

func init() {
	collectCmd.Flags().StringVar(&collectInput, "input", "", "Company/ESG input workbook (required)")
	collectCmd.Flags().StringVar(&collectFrom, "from", "", "Crawl window start (YYYYMMDD)")
	collectCmd.Flags().StringVar(&collectTo, "to", "", "Crawl window end (YYYYMMDD)")
	collectCmd.Flags().StringVar(&collectSource, "source", "", "Override the crawl source: api, html or rss")
	collectCmd.Flags().StringVar(&collectCron, "cron", "", "Run on a cron schedule over the active watch list")
	collectCmd.Flags().BoolVar(&collectDryRun, "dry-run", false, "Show the queries without crawling")
	collectCmd.MarkFlagRequired("input")
}

// --- dedup command ---

var (
	dedupInput  string
	dedupOutput string
	dedupWindow int
	dedupPolicy string
	dedupMode   string
	dedupReport bool
)

var dedupCmd = &cobra.Command{
	Use:   "dedup",
	Short: "Collapse duplicate coverage in a workbook",
	RunE: func(cmd *cobra.Command, args []string) error {
		table, err := xlsx.ReadTable(dedupInput, "")
		if err != nil {
			return err
		}

		opts := dedup.Options{
			WindowDays: cfg.Dedup.WindowDays,
			Policy:     dedup.Policy(cfg.Dedup.Policy),
			Mode:       dedup.Mode(cfg.Dedup.Mode),
		}
		if dedupWindow > 0 {
			opts.WindowDays = dedupWindow
		}
		if dedupPolicy != "" {
			opts.Policy = dedup.Policy(dedupPolicy)
		}
		if dedupMode != "" {
			opts.Mode = dedup.Mode(dedupMode)
		}

		result, err := dedup.Run(table, opts)
		if err != nil {
			return err
		}

		out := dedupOutput
		if out == "" {
			out = dedupedPath(dedupInput)
		}
		meta := xlsx.Meta{CreatedAt: time.Now(), Sheet: cfg.Output.SheetName}
		if err := xlsx.WriteTable(out, result.Table, meta); err != nil {
			return err
		}

		s := result.Stats
		fmt.Printf("Dedup complete: %d rows in, %d dated, %d after exact dedup, %d kept\n",
			s.Input, s.Dated, s.AfterExact, s.Kept)
		fmt.Printf("Window violations: %d\n", len(result.Violations))
		fmt.Printf("SAVED: %s\n", absPath(out))

		if dedupReport {
			data := &report.Data{
				RunID:      database.MakeRunID(time.Now()),
				Dedup:      &result.Stats,
				Violations: result.Violations,
				OutputPath: out,
			}
			path, err := report.Write(filepath.Dir(out), data)
			if err != nil {
				return err
			}
			fmt.Printf("Report: %s\n", path)
		}
		return nil
	},
}

func init() {
	dedupCmd.Flags().StringVar(&dedupInput, "input", "", "Workbook to deduplicate (required)")
	dedupCmd.Flags().StringVar(&dedupOutput, "output", "", "Output workbook (default: _deduped sibling)")
	dedupCmd.Flags().IntVar(&dedupWindow, "window", 0, "Burst window in days (0 uses the config)")
	dedupCmd.Flags().StringVar(&dedupPolicy, "policy", "", "Pick policy: earliest or highest_score")
	dedupCmd.Flags().StringVar(&dedupMode, "mode", "", "Grouping mode: rolling_window or calendar_month")
	dedupCmd.Flags().BoolVar(&dedupReport, "report", false, "Write a markdown report next to the output")
	dedupCmd.MarkFlagRequired("input")
}

func dedupedPath(in string) string {
	ext := filepath.Ext(in)
	return strings.TrimSuffix(in, ext) + "_deduped" + ext
}

// --- score command ---

var (
	scoreInput     string
	scoreESG       string
	scoreThreshold float64
	scoreTextCol   string
)

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Score a workbook against negative ESG issues",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		embedder, err := embed.New(ctx, cfg)
		if err != nil {
			return err
		}
		if c, ok := embedder.(interface{ Close() }); ok {
			defer c.Close()
		}

		threshold := scoreThreshold
		if threshold == 0 {
			threshold = cfg.Score.Threshold
		}
		scorer := score.NewScorer(embedder, threshold)
		scorer.TextColumn = scoreTextCol
		if scorer.TextColumn == "auto" {
			scorer.TextColumn = cfg.Score.TextColumn
		}

		out, result, err := scorer.ScoreFile(ctx, scoreInput, scoreESG, "", cfg.Output.SheetName)
		if err != nil {
			return err
		}

		fmt.Printf("Scored %d articles, %d negative (text column %q)\n",
			result.Scored, result.Negative, result.TextColumn)
		fmt.Printf("SAVED: %s\n", absPath(out))
		return nil
	},
}

func init() {
	scoreCmd.Flags().StringVar(&scoreInput, "input", "", "Workbook to score (required)")
	scoreCmd.Flags().StringVar(&scoreESG, "esg", "", "Workbook with the ESG issue sheet (required)")
	scoreCmd.Flags().Float64Var(&scoreThreshold, "threshold", 0, "Negative threshold (0 uses the config)")
	scoreCmd.Flags().StringVar(&scoreTextCol, "text-col", "auto", "Column to embed, or auto")
	scoreCmd.MarkFlagRequired("input")
	scoreCmd.MarkFlagRequired("esg")
}

// --- fetch command ---

var fetchRun string

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch missing article bodies",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		var runFilter *string
		if fetchRun != "" {
			runFilter = &fetchRun
		}

		fetcher := fetch.NewContentFetcher(db, 0)
		result, err := fetcher.FetchMissingContent(cmd.Context(), runFilter)
		if err != nil {
			return err
		}
		fmt.Printf("Fetched %d article bodies, %d failed\n", result.Fetched, result.Failed)
		return nil
	},
}

func init() {
	fetchCmd.Flags().StringVar(&fetchRun, "run", "", "Only fetch articles from this run ID")
}

// --- run command ---

var (
	runInput  string
	runOutput string
	runFrom   string
	runTo     string
	runSource string
	runDryRun bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full pipeline: collect -> dedup -> score -> write",
	RunE: func(cmd *cobra.Command, args []string) error {
		if runSource != "" {
			cfg.Crawl.Source = runSource
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		source, err := collect.NewSource(cfg)
		if err != nil {
			return err
		}
		pipe := pipeline.New(cfg, db, source)
		opts := pipeline.Options{
			InputPath: runInput,
			OutputDir: runOutput,
			DateFrom:  runFrom,
			DateTo:    runTo,
		}

		var result *pipeline.Result
		if runDryRun {
			result = pipe.DryRun(opts)
		} else {
			result = pipe.Run(cmd.Context(), opts)
		}

		for i, step := range result.Steps {
			fmt.Printf("\nStep %d/5: %s\n", i+1, step.Name)
			if step.Err != nil {
				fmt.Printf("  Error: %v\n", step.Err)
			} else {
				fmt.Printf("  %s\n", step.Summary)
			}
		}

		if !runDryRun && result.ReportPath != "" {
			fmt.Printf("\nReport: %s\n", result.ReportPath)
			fmt.Println("Run 'newsdesk serve' to browse the results.")
		}
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&runInput, "input", "", "Company/ESG input workbook (required)")
	runCmd.Flags().StringVar(&runOutput, "output", "", "Output directory (default: current directory)")
	runCmd.Flags().StringVar(&runFrom, "from", "", "Crawl window start (YYYYMMDD)")
	runCmd.Flags().StringVar(&runTo, "to", "", "Crawl window end (YYYYMMDD)")
	runCmd.Flags().StringVar(&runSource, "source", "", "Override the crawl source: api, html or rss")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "Show what would be done without executing")
	runCmd.MarkFlagRequired("input")
}

// --- serve command ---

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local run and report viewer",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}
		fmt.Printf("Starting server at http://localhost:%d\n", port)
		fmt.Println("Press Ctrl+C to stop")
		return server.Serve(db, port)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to listen on (0 uses the config)")
}

// --- vec command ---

var (
	vecModel  string
	vecMetric string
)

var vecCmd = &cobra.Command{
	Use:   "vec",
	Short: "Explore word vector models",
}

var vecSearchTopN int

var vecSearchCmd = &cobra.Command{
	Use:   "search WORD",
	Short: "List the words closest to WORD",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession()
		if err != nil {
			return err
		}
		matches, err := s.Similar(args[0], vecSearchTopN)
		if err != nil {
			return err
		}
		fmt.Printf("%s (%s)\n\n", args[0], sessionLabel(s))
		fmt.Print(vector.FormatMatches(matches))
		return nil
	},
}

var vecAnalogyTopN int

var vecAnalogyCmd = &cobra.Command{
	Use:   "analogy A B C",
	Short: "Solve the analogy A - B + C",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession()
		if err != nil {
			return err
		}
		matches, err := s.Analogy(args[0], args[1], args[2], vecAnalogyTopN)
		if err != nil {
			return err
		}
		fmt.Printf("%s (%s)\n\n", vector.AnalogyLabel(args[0], args[1], args[2]), sessionLabel(s))
		fmt.Print(vector.FormatMatches(matches))
		return nil
	},
}

var vecCompareCmd = &cobra.Command{
	Use:   "compare SENTENCE SENTENCE",
	Short: "Score the similarity of two sentences",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession()
		if err != nil {
			return err
		}
		sim := s.CompareSentences(args[0], args[1])
		fmt.Printf("유사도 (%s): %.4f  %s\n", s.Metric.Name(), sim, vector.Bar(sim))
		return nil
	},
}

var vecModelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List available .vec models",
	RunE: func(cmd *cobra.Command, args []string) error {
		names, err := listModels()
		if err != nil {
			return err
		}
		if len(names) == 0 {
			fmt.Printf("No .vec models under %s\n", cfg.ModelDir())
			return nil
		}
		for _, name := range names {
			fmt.Printf("%s  (%s)\n", name, filepath.Join(cfg.ModelDir(), name+".vec"))
		}
		return nil
	},
}

var vecMetricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "List similarity metrics",
	Run: func(cmd *cobra.Command, args []string) {
		for _, name := range vector.MetricNames() {
			fmt.Println(name)
		}
	},
}

func init() {
	vecCmd.PersistentFlags().StringVar(&vecModel, "model", "", "Path to a .vec model (default: first model in the model dir)")
	vecCmd.PersistentFlags().StringVar(&vecMetric, "metric", "", "Similarity metric (default from config)")
	vecSearchCmd.Flags().IntVarP(&vecSearchTopN, "topn", "k", 10, "Number of results")
	vecAnalogyCmd.Flags().IntVarP(&vecAnalogyTopN, "topn", "k", 5, "Number of results")

	vecCmd.AddCommand(vecSearchCmd)
	vecCmd.AddCommand(vecAnalogyCmd)
	vecCmd.AddCommand(vecCompareCmd)
	vecCmd.AddCommand(vecModelsCmd)
	vecCmd.AddCommand(vecMetricsCmd)
}

// openSession loads the chosen model and metric. Without --model the
// first .vec file in the model directory is used.
func openSession() (*vector.Session, error) {
	path := vecModel
	if path == "" {
		names, err := listModels()
		if err != nil {
			return nil, err
		}
		if len(names) == 0 {
			return nil, fmt.Errorf("no .vec models under %s; pass --model", cfg.ModelDir())
		}
		path = filepath.Join(cfg.ModelDir(), names[0]+".vec")
	}

	model, err := vector.Load(path)
	if err != nil {
		return nil, err
	}

	name := vecMetric
	if name == "" {
		name = cfg.Vectors.Metric
	}
	metric, err := vector.NewMetric(name)
	if err != nil {
		return nil, err
	}
	return vector.NewSession(model, metric), nil
}

func sessionLabel(s *vector.Session) string {
	return s.Model.Name + ", " + s.Metric.Name()
}

// listModels scans the model directory, treating a missing directory as
// an empty list.
func listModels() ([]string, error) {
	names, err := vector.ListModels(cfg.ModelDir())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	return names, nil
}

func absPath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return abs
}

func openDB() (*database.DB, error) {
	dataDir := cfg.GetDataDir()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return database.Open(cfg.DBPath())
}
