package model

// ScanRequest is the body of POST /api/scan and POST /api/check-content-safety.
// URL is already normalized: no scheme, no trailing slash.
type ScanRequest struct {
	URL string `json:"url"`
}

// ScanResult is the report produced by the backend for a single scan.
// Once received it is never mutated; a newer scan supersedes it.
type ScanResult struct {
	ID               string   `json:"id"`
	URL              string   `json:"url"`
	Title            string   `json:"title,omitempty"`
	Grade            string   `json:"grade"`
	PerformanceScore float64  `json:"performance_score"`
	LoadTimeMS       float64  `json:"load_time_ms"`
	ContentLength    int      `json:"content_length"`
	Status           int      `json:"status"`
	IsSafe           bool     `json:"is_safe"`
	SafetyStatus     string   `json:"safety_status"`
	SafetyReasons    []string `json:"safety_reasons"`
	Bugs             []string `json:"bugs"`
	ScanMethod       string   `json:"scan_method,omitempty"`
	Timestamp        int64    `json:"timestamp,omitempty"`
}

// ContentSafetyVerdict gates whether a scan proceeds immediately or waits for
// an explicit confirmation.
type ContentSafetyVerdict struct {
	Warning        bool     `json:"warning"`
	IsAdultContent bool     `json:"is_adult_content"`
	URL            string   `json:"url"`
	Title          string   `json:"title,omitempty"`
	Reasons        []string `json:"reasons"`
	Message        string   `json:"message"`
}

// Stats are the aggregate counters shown in the page footer.
type Stats struct {
	TotalScans    int     `json:"total_scans"`
	TotalRatings  int     `json:"total_ratings"`
	AverageRating float64 `json:"average_rating"`
	UniqueSites   int     `json:"unique_sites"`
}
