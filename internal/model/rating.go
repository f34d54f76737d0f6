package model

// RatingStatus mirrors the server's view of whether a visitor may rate.
// It is only ever used for display; the server re-checks on every request.
type RatingStatus struct {
	CanRate              bool `json:"can_rate"`
	NeedsPin             bool `json:"needs_pin"`
	IsLocked             bool `json:"is_locked"`
	RatingCount          int  `json:"rating_count"`
	PinAttempts          int  `json:"pin_attempts"`
	PinAttemptsRemaining int  `json:"pin_attempts_remaining"`
}

// CaptchaChallenge is single-use: it is discarded after any submission.
type CaptchaChallenge struct {
	ID       string `json:"id"`
	Question string `json:"question"`
}

// RateRequest is the body of POST /api/rate.
type RateRequest struct {
	ScanID        string `json:"scan_id"`
	Rating        int    `json:"rating"`
	Comment       string `json:"comment"`
	VisitorName   string `json:"visitor_name"`
	VisitorID     string `json:"visitor_id,omitempty"`
	Pin           string `json:"pin,omitempty"`
	CaptchaID     string `json:"captcha_id"`
	CaptchaAnswer string `json:"captcha_answer"`
}

// RatingStats are the per-scan aggregates returned after an accepted rating.
type RatingStats struct {
	AverageRating float64 `json:"average_rating"`
	TotalRatings  int     `json:"total_ratings"`
}

// RateResponse is the body of a POST /api/rate reply. Exactly one of Success,
// NeedsPin and Locked is expected to be true; none of them means rejected.
type RateResponse struct {
	Success  bool         `json:"success"`
	NeedsPin bool         `json:"needs_pin,omitempty"`
	Locked   bool         `json:"locked,omitempty"`
	Error    string       `json:"error,omitempty"`
	Message  string       `json:"message,omitempty"`
	Pin      string       `json:"pin,omitempty"`
	Stats    *RatingStats `json:"stats,omitempty"`
}

// PinVerifyRequest is the body of POST /api/verify-pin.
type PinVerifyRequest struct {
	VisitorID string `json:"visitor_id"`
	Pin       string `json:"pin"`
}

// PinVerifyResponse carries the server-computed attempt counter.
// AttemptsRemaining is nil when the server did not report one.
type PinVerifyResponse struct {
	Success           bool   `json:"success"`
	Locked            bool   `json:"locked,omitempty"`
	AttemptsRemaining *int   `json:"attempts_remaining,omitempty"`
	Error             string `json:"error,omitempty"`
}

// Remaining returns the attempt counter and whether the server sent one.
func (r *PinVerifyResponse) Remaining() (int, bool) {
	if r.AttemptsRemaining == nil {
		return 0, false
	}
	return *r.AttemptsRemaining, true
}

// Attempts returns a pointer for PinVerifyResponse.AttemptsRemaining.
func Attempts(n int) *int { return &n }
