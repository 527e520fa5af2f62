package database

// Article represents a stored news article.
type Article struct {
	ID             int64
	URL            string
	Title          string
	Press          *string
	PublishedDate  *string // YYYYMMDD
	Company        string
	Keyword        string
	NegativeScore  *float64
	Content        *string
	ContentFetched bool
	RunID          *string
	CollectedAt    *string
}

// CrawlRun summarizes one collection run over a date window.
type CrawlRun struct {
	RunID      string
	StartedAt  *string
	DateFrom   string
	DateTo     string
	TotalFound int
	NewCount   int
	DupCount   int
}

// Violation is a same-group article pair closer together than the dedup
// window allows.
type Violation struct {
	ID       int64
	RunID    string
	Company  string
	Keyword  string
	Date     string // YYYYMMDD
	PrevDate string // YYYYMMDD
	GapDays  int
}

// WatchCompany is a company on the recurring crawl list.
type WatchCompany struct {
	ID        int64
	Name      string
	CorpID    *string
	Ticker    *string
	IsActive  bool
	CreatedAt *string
	UpdatedAt *string
}

// Stats contains aggregate database statistics.
type Stats struct {
	TotalArticles   int
	ScoredArticles  int
	FetchedArticles int
	Runs            int
	Violations      int
	TotalCompanies  int
	ActiveCompanies int
}
