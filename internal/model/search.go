package model

// Search filters accepted by /api/websites/search.
const (
	FilterAll    = "all"
	FilterSafe   = "safe"
	FilterUnsafe = "unsafe"
)

// Search sort orders accepted by /api/websites/search.
const (
	SortRecent = "recent"
	SortScore  = "score"
	SortName   = "name"
)

// DefaultPerPage is the page size used by the search view.
const DefaultPerPage = 20

// KidsSafety is the child-safety classification attached to a website.
type KidsSafety struct {
	Rating     SafetyRating `json:"rating"`
	Score      int          `json:"score"`
	Confidence string       `json:"confidence,omitempty"`
	Warnings   []string     `json:"warnings,omitempty"`
}

// Website is a search result row.
type Website struct {
	ID               string      `json:"id"`
	URL              string      `json:"url"`
	Grade            string      `json:"grade,omitempty"`
	PerformanceScore float64     `json:"performance_score,omitempty"`
	LoadTime         float64     `json:"load_time,omitempty"`
	StatusCode       int         `json:"status_code,omitempty"`
	Timestamp        int64       `json:"timestamp"`
	ScanMethod       string      `json:"scan_method,omitempty"`
	KidsSafety       *KidsSafety `json:"kids_safety,omitempty"`
}

// SearchQuery is encoded as the query string of GET /api/websites/search.
type SearchQuery struct {
	Q       string
	Page    int
	PerPage int
	Filter  string
	Sort    string
}

// SearchResponse is one page of search results.
type SearchResponse struct {
	Results []Website `json:"results"`
	Total   int       `json:"total"`
	Page    int       `json:"page"`
	PerPage int       `json:"per_page"`
}

// ScanNewResponse reports whether scan-new found an existing entry or
// produced a fresh one.
type ScanNewResponse struct {
	Exists  bool     `json:"exists"`
	Website *Website `json:"website,omitempty"`
}
