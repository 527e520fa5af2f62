package xlsx

import (
	"fmt"
	"sort"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Company is one row of the Company input sheet.
type Company struct {
	Name   string
	CorpID string
	Ticker string
}

// Issue is one row of the ESG input sheet: a key issue and its negative
// keyword list. Joined keeps the original comma-joined cell for output rows.
type Issue struct {
	Theme     string
	KeyIssue  string
	Negatives []string
	Joined    string
}

// Group maps the issue theme to its E, S, G or F group letter. F covers the
// KOSELF financial themes; anything unrecognized maps to an empty group.
func (i Issue) Group() string {
	t := strings.ToUpper(strings.TrimSpace(i.Theme))
	switch {
	case t == "":
		return ""
	case strings.HasPrefix(t, "F"), strings.Contains(t, "KOSELF"):
		return "F"
	case t[0] == 'E', t[0] == 'S', t[0] == 'G':
		return string(t[0])
	default:
		return ""
	}
}

// Inputs holds everything read from a company/issue input workbook.
type Inputs struct {
	Companies []Company
	Issues    []Issue
	Config    map[string]string
}

// ReadInputs loads the Company and ESG sheets plus the optional Config
// sheet from one workbook.
func ReadInputs(path string) (*Inputs, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	companies, err := readCompanies(f)
	if err != nil {
		return nil, err
	}
	issues, err := readIssues(f)
	if err != nil {
		return nil, err
	}
	return &Inputs{Companies: companies, Issues: issues, Config: readConfig(f)}, nil
}

// ReadIssues loads only the ESG sheet, for scoring a workbook that was
// deduplicated separately.
func ReadIssues(path string) ([]Issue, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return readIssues(f)
}

func readCompanies(f *excelize.File) ([]Company, error) {
	rows, err := f.GetRows("Company")
	if err != nil {
		return nil, fmt.Errorf("input workbook has no Company sheet: %w", err)
	}
	var companies []Company
	for i, cells := range rows {
		if i == 0 {
			continue
		}
		c := Company{Name: cell(cells, 0), CorpID: cell(cells, 1), Ticker: cell(cells, 2)}
		if c.Name == "" {
			continue
		}
		companies = append(companies, c)
	}
	if len(companies) == 0 {
		return nil, fmt.Errorf("company sheet has no company rows")
	}
	return companies, nil
}

func readIssues(f *excelize.File) ([]Issue, error) {
	rows, err := f.GetRows("ESG")
	if err != nil {
		return nil, fmt.Errorf("input workbook has no ESG sheet: %w", err)
	}
	var issues []Issue
	for i, cells := range rows {
		if i == 0 {
			continue
		}
		issue := Issue{
			Theme:    cell(cells, 0),
			KeyIssue: cell(cells, 2),
			Joined:   cell(cells, 3),
		}
		if issue.KeyIssue == "" {
			continue
		}
		issue.Negatives = splitKeywords(issue.Joined)
		issues = append(issues, issue)
	}
	if len(issues) == 0 {
		return nil, fmt.Errorf("esg sheet has no issue rows")
	}
	return issues, nil
}

// readConfig reads the optional Config sheet of parameter/value rows. A
// workbook without one yields an empty map.
func readConfig(f *excelize.File) map[string]string {
	rows, err := f.GetRows("Config")
	if err != nil {
		return map[string]string{}
	}
	params := make(map[string]string)
	for i, cells := range rows {
		if i == 0 {
			continue
		}
		key := cell(cells, 0)
		if key == "" {
			continue
		}
		params[key] = cell(cells, 1)
	}
	return params
}

// splitKeywords turns a comma-joined cell into a sorted list of unique
// keywords.
func splitKeywords(joined string) []string {
	seen := make(map[string]bool)
	var words []string
	for _, part := range strings.Split(joined, ",") {
		w := strings.TrimSpace(part)
		if w == "" || seen[w] {
			continue
		}
		seen[w] = true
		words = append(words, w)
	}
	sort.Strings(words)
	return words
}

func cell(cells []string, i int) string {
	if i < len(cells) {
		return strings.TrimSpace(cells[i])
	}
	return ""
}
