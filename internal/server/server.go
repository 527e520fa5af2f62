// Package server is the local web viewer over collected runs, articles
// and window violations.
package server

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/yuin/goldmark"

	"github.com/esglab/newsdesk/internal/database"
	"github.com/esglab/newsdesk/internal/dedup"
	"github.com/esglab/newsdesk/internal/report"
	"github.com/esglab/newsdesk/internal/score"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

var md = goldmark.New()

// Server is the HTTP server for browsing runs.
type Server struct {
	db    *database.DB
	pages map[string]*template.Template
	mux   *http.ServeMux
}

// New creates a new Server.
func New(db *database.DB) (*Server, error) {
	funcMap := template.FuncMap{
		"markdown":     renderMarkdown,
		"formatRun":    database.FormatRunDisplay,
		"formatWindow": database.FormatWindowDisplay,
		"deref": func(s *string) string {
			if s == nil {
				return ""
			}
			return *s
		},
		"score": func(v *float64) string {
			if v == nil {
				return "-"
			}
			return fmt.Sprintf("%.2f", *v)
		},
		"negative": func(v *float64) bool {
			return v != nil && *v > score.DefaultThreshold
		},
	}

	base, err := template.New("base.html").Funcs(funcMap).ParseFS(templateFS, "templates/base.html")
	if err != nil {
		return nil, fmt.Errorf("parsing base template: %w", err)
	}

	// Each page gets its own clone of the base so the per page
	// {{define "content"}} and {{define "title"}} do not collide.
	pageNames := []string{"index.html", "run.html", "violations.html", "watch.html"}
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		clone, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("cloning base for %s: %w", name, err)
		}
		_, err = clone.ParseFS(templateFS, "templates/"+name)
		if err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", name, err)
		}
		pages[name] = clone
	}

	s := &Server{db: db, pages: pages, mux: http.NewServeMux()}
	s.routes()
	return s, nil
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	staticSub, _ := fs.Sub(staticFS, "static")
	s.mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.FS(staticSub))))

	s.mux.HandleFunc("/", s.handleIndex)
	s.mux.HandleFunc("/run/", s.handleRun)
	s.mux.HandleFunc("/violations/", s.handleViolations)
	s.mux.HandleFunc("/watch", s.handleWatch)
	s.mux.HandleFunc("/watch/add", s.handleAddWatch)
	s.mux.HandleFunc("/watch/", s.handleWatchAction)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	runs, err := s.db.ListRuns(50)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	stats, _ := s.db.GetStats()

	s.render(w, "index.html", map[string]any{
		"Runs":  runs,
		"Stats": stats,
	})
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	runID := strings.TrimPrefix(r.URL.Path, "/run/")
	if runID == "" {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	run, err := s.db.GetRun(runID)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if run == nil {
		http.NotFound(w, r)
		return
	}

	articles, _ := s.db.GetArticlesForRun(runID)
	violations, _ := s.db.GetViolationsForRun(runID)

	s.render(w, "run.html", map[string]any{
		"Run":        run,
		"Articles":   articles,
		"Violations": violations,
		"Report":     composeRunReport(run, articles, violations),
	})
}

func (s *Server) handleViolations(w http.ResponseWriter, r *http.Request) {
	runID := strings.TrimPrefix(r.URL.Path, "/violations/")
	if runID == "" {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	run, err := s.db.GetRun(runID)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if run == nil {
		http.NotFound(w, r)
		return
	}

	violations, _ := s.db.GetViolationsForRun(runID)

	s.render(w, "violations.html", map[string]any{
		"Run":        run,
		"Violations": violations,
	})
}

// composeRunReport rebuilds the run's markdown report from what the
// database still knows about it.
func composeRunReport(run *database.CrawlRun, articles []database.Article, violations []database.Violation) string {
	perCompany := make(map[string]int)
	scored, negative := 0, 0
	for _, a := range articles {
		perCompany[a.Company]++
		if a.NegativeScore != nil {
			scored++
			if *a.NegativeScore > score.DefaultThreshold {
				negative++
			}
		}
	}

	d := &report.Data{
		RunID:       run.RunID,
		DateFrom:    run.DateFrom,
		DateTo:      run.DateTo,
		TotalFound:  run.TotalFound,
		NewArticles: run.NewCount,
		Duplicates:  run.DupCount,
		PerCompany:  perCompany,
		Scored:      scored,
		Negative:    negative,
	}
	for _, v := range violations {
		d.Violations = append(d.Violations, dedup.Violation{
			Company:  v.Company,
			Keyword:  v.Keyword,
			Date:     v.Date,
			PrevDate: v.PrevDate,
			GapDays:  v.GapDays,
		})
	}
	return report.Compose(d)
}

func (s *Server) handleWatch(w http.ResponseWriter, r *http.Request) {
	companies, _ := s.db.GetAllWatchCompanies()
	s.render(w, "watch.html", map[string]any{
		"Companies": companies,
	})
}

func (s *Server) handleAddWatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Redirect(w, r, "/watch", http.StatusFound)
		return
	}

	name := strings.TrimSpace(r.FormValue("name"))
	corpID := optionalField(r, "corp_id")
	ticker := optionalField(r, "ticker")

	if name != "" {
		if _, err := s.db.UpsertWatchCompany(name, corpID, ticker); err != nil {
			log.Printf("adding watch company: %v", err)
		}
	}

	http.Redirect(w, r, "/watch", http.StatusFound)
}

func (s *Server) handleWatchAction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Redirect(w, r, "/watch", http.StatusFound)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/watch/")
	parts := strings.SplitN(path, "/", 2)
	if len(parts) != 2 {
		http.Redirect(w, r, "/watch", http.StatusFound)
		return
	}

	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		http.Redirect(w, r, "/watch", http.StatusFound)
		return
	}

	switch parts[1] {
	case "toggle":
		s.db.ToggleWatchCompany(id)
	case "delete":
		s.db.DeleteWatchCompany(id)
	}

	http.Redirect(w, r, "/watch", http.StatusFound)
}

func optionalField(r *http.Request, name string) *string {
	v := strings.TrimSpace(r.FormValue(name))
	if v == "" {
		return nil
	}
	return &v
}

func (s *Server) render(w http.ResponseWriter, name string, data any) {
	tmpl, ok := s.pages[name]
	if !ok {
		log.Printf("template %s not found", name)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.ExecuteTemplate(w, "base.html", data); err != nil {
		log.Printf("rendering template %s: %v", name, err)
	}
}

func renderMarkdown(text string) template.HTML {
	var buf bytes.Buffer
	if err := md.Convert([]byte(text), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(text))
	}
	return template.HTML(buf.String()) //nolint: gosec
}

// Serve starts the HTTP server on the given port. The viewer is local
// tooling, so it binds loopback only.
func Serve(db *database.DB, port int) error {
	srv, err := New(db)
	if err != nil {
		return err
	}

	addr := fmt.Sprintf("127.0.0.1:%d", port)
	log.Printf("server listening on http://%s", addr)
	return http.ListenAndServe(addr, srv.Handler())
}
