package model

// ScanHistoryEntry is a read-only row from GET /api/recent-scans.
// Timestamp is Unix seconds.
type ScanHistoryEntry struct {
	ID               string   `json:"id"`
	URL              string   `json:"url"`
	Grade            string   `json:"grade"`
	PerformanceScore float64  `json:"performance_score"`
	Bugs             []string `json:"bugs,omitempty"`
	Timestamp        int64    `json:"timestamp"`
}

// FeedbackEntry is a read-only row from GET /api/recent-feedback.
type FeedbackEntry struct {
	ID          string `json:"id"`
	ScanID      string `json:"scan_id"`
	URL         string `json:"url"`
	Rating      int    `json:"rating"`
	Comment     string `json:"comment"`
	VisitorName string `json:"visitor_name"`
	Timestamp   int64  `json:"timestamp"`
}
