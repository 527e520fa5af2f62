package server

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/esglab/newsdesk/internal/database"
)

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func ptr(s string) *string { return &s }

func fptr(f float64) *float64 { return &f }

func seedRun(t *testing.T, db *database.DB) string {
	t.Helper()
	runID := "20240105_120000"
	if err := db.CreateRun(runID, "20240101", "20240105"); err != nil {
		t.Fatalf("failed to create run: %v", err)
	}
	if err := db.UpdateRunCounts(runID, 4, 3, 1); err != nil {
		t.Fatalf("failed to update run counts: %v", err)
	}
	return runID
}

func TestIndexRoute(t *testing.T) {
	db := openTestDB(t)
	seedRun(t, db)

	srv, err := New(db)
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}

	req := httptest.NewRequest("GET", "/", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "수집 이력") {
		t.Error("expected '수집 이력' in response body")
	}
	if !strings.Contains(body, "/run/20240105_120000") {
		t.Error("expected run link in response body")
	}
}

func TestRunRoute(t *testing.T) {
	db := openTestDB(t)
	runID := seedRun(t, db)
	db.InsertArticle(database.Article{
		URL:           "https://news.example.com/1",
		Title:         "삼성전자 공장 폐수 유출 논란",
		Press:         ptr("환경일보"),
		PublishedDate: ptr("20240103"),
		Company:       "삼성전자",
		Keyword:       "유출",
		NegativeScore: fptr(0.91),
		RunID:         &runID,
	})
	db.ReplaceViolations(runID, []database.Violation{
		{Company: "삼성전자", Keyword: "유출", Date: "20240103", PrevDate: "20240101", GapDays: 2},
	})

	srv, err := New(db)
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}

	req := httptest.NewRequest("GET", "/run/"+runID, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "삼성전자 공장 폐수 유출 논란") {
		t.Error("expected article title in response")
	}
	if !strings.Contains(body, "윈도우 위반") {
		t.Error("expected violations section in response")
	}
	if !strings.Contains(body, `class="negative"`) {
		t.Error("expected negative score row highlighted")
	}
	if !strings.Contains(body, "리포트 미리보기") {
		t.Error("expected report preview in response")
	}
}

func TestViolationsRoute(t *testing.T) {
	db := openTestDB(t)
	runID := seedRun(t, db)
	db.ReplaceViolations(runID, []database.Violation{
		{Company: "삼성전자", Keyword: "유출", Date: "20240103", PrevDate: "20240101", GapDays: 2},
	})

	srv, err := New(db)
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}

	req := httptest.NewRequest("GET", "/violations/"+runID, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "윈도우 위반") || !strings.Contains(body, "2일") {
		t.Error("expected the violation table in response")
	}
	if !strings.Contains(body, "/run/"+runID) {
		t.Error("expected a link back to the run page")
	}

	req = httptest.NewRequest("GET", "/violations/29991231_000000", nil)
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown run, got %d", rec.Code)
	}
}

func TestRunRouteUnknown(t *testing.T) {
	db := openTestDB(t)
	srv, err := New(db)
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}

	req := httptest.NewRequest("GET", "/run/29991231_000000", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestWatchRoutes(t *testing.T) {
	db := openTestDB(t)
	srv, err := New(db)
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}

	// Add a company through the form.
	form := strings.NewReader("name=삼성전자&corp_id=00126380&ticker=005930")
	req := httptest.NewRequest("POST", "/watch/add", form)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusFound {
		t.Fatalf("expected 302 after add, got %d", rec.Code)
	}

	companies, _ := db.GetAllWatchCompanies()
	if len(companies) != 1 {
		t.Fatalf("expected 1 company, got %d", len(companies))
	}
	c := companies[0]
	if c.Name != "삼성전자" {
		t.Errorf("expected name 삼성전자, got %q", c.Name)
	}
	if c.CorpID == nil || *c.CorpID != "00126380" {
		t.Error("expected corp_id stored")
	}

	// The list page shows it.
	req = httptest.NewRequest("GET", "/watch", nil)
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if !strings.Contains(rec.Body.String(), "삼성전자") {
		t.Error("expected company listed on watch page")
	}

	// Toggle it off.
	req = httptest.NewRequest("POST", fmt.Sprintf("/watch/%d/toggle", c.ID), nil)
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusFound {
		t.Fatalf("expected 302 after toggle, got %d", rec.Code)
	}
	companies, _ = db.GetAllWatchCompanies()
	if len(companies) != 1 || companies[0].IsActive {
		t.Error("expected company inactive after toggle")
	}

	// Delete it.
	req = httptest.NewRequest("POST", fmt.Sprintf("/watch/%d/delete", c.ID), nil)
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	companies, _ = db.GetAllWatchCompanies()
	if len(companies) != 0 {
		t.Errorf("expected no companies after delete, got %d", len(companies))
	}
}

func TestStaticRoute(t *testing.T) {
	db := openTestDB(t)
	srv, err := New(db)
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}

	req := httptest.NewRequest("GET", "/static/style.css", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "site-header") {
		t.Error("expected CSS content")
	}
}
