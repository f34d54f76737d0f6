// Package apiclient is a typed client for the website scanner HTTP API.
package apiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/raysh454/fastscan/internal/logging"
	"github.com/raysh454/fastscan/internal/model"
	"github.com/raysh454/fastscan/internal/webclient"
)

const (
	HeaderVisitorID  = "X-Visitor-ID"
	DefaultUserAgent = "fastscan-client/1.0"
)

// Client talks JSON to the scanner backend over a webclient.WebClient.
type Client struct {
	baseURL   string
	wc        webclient.WebClient
	userAgent string
	visitorID string
	logger    logging.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithUserAgent overrides DefaultUserAgent.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// WithVisitorID sets the X-Visitor-ID header on every request.
func WithVisitorID(id string) Option {
	return func(c *Client) { c.visitorID = id }
}

func New(baseURL string, wc webclient.WebClient, logger logging.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = logging.Nop()
	}
	c := &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		wc:        wc,
		userAgent: DefaultUserAgent,
		logger:    logger.With(logging.Field{Key: "component", Value: "apiclient"}),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// SetVisitorID changes the visitor id sent with later requests.
func (c *Client) SetVisitorID(id string) { c.visitorID = id }

// VisitorID returns the visitor id sent with requests.
func (c *Client) VisitorID() string { return c.visitorID }

// BaseURL returns the backend root this client talks to.
func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) Scan(ctx context.Context, target string) (*model.ScanResult, error) {
	var out model.ScanResult
	if err := c.do(ctx, "scan", http.MethodPost, "/api/scan", nil, model.ScanRequest{URL: target}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CheckContentSafety(ctx context.Context, target string) (*model.ContentSafetyVerdict, error) {
	var out model.ContentSafetyVerdict
	if err := c.do(ctx, "check content safety", http.MethodPost, "/api/check-content-safety", nil, model.ScanRequest{URL: target}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) RecentScans(ctx context.Context, limit int) ([]model.ScanHistoryEntry, error) {
	var out []model.ScanHistoryEntry
	if err := c.do(ctx, "recent scans", http.MethodGet, "/api/recent-scans", limitQuery(limit), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) RecentFeedback(ctx context.Context, limit int) ([]model.FeedbackEntry, error) {
	var out []model.FeedbackEntry
	if err := c.do(ctx, "recent feedback", http.MethodGet, "/api/recent-feedback", limitQuery(limit), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Stats(ctx context.Context) (*model.Stats, error) {
	var out model.Stats
	if err := c.do(ctx, "stats", http.MethodGet, "/api/stats", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Captcha(ctx context.Context) (*model.CaptchaChallenge, error) {
	var out model.CaptchaChallenge
	if err := c.do(ctx, "captcha", http.MethodGet, "/api/captcha", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Rate submits a rating. Guarded outcomes (needs_pin, locked) and server-side
// rejections come back as a RateResponse, not as an error, so callers can
// drive their state from it.
func (c *Client) Rate(ctx context.Context, req model.RateRequest) (*model.RateResponse, error) {
	if req.VisitorID == "" {
		req.VisitorID = c.visitorID
	}
	var out model.RateResponse
	if err := c.doGuarded(ctx, "rate", http.MethodPost, "/api/rate", nil, req, &out, rateGates...); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CheckRatingStatus(ctx context.Context) (*model.RatingStatus, error) {
	q := url.Values{}
	if c.visitorID != "" {
		q.Set("visitor_id", c.visitorID)
	}
	var out model.RatingStatus
	if err := c.do(ctx, "check rating status", http.MethodGet, "/api/check-rating-status", q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyPin, like Rate, reports wrong PINs and lockout in the response body.
func (c *Client) VerifyPin(ctx context.Context, pin string) (*model.PinVerifyResponse, error) {
	var out model.PinVerifyResponse
	body := model.PinVerifyRequest{VisitorID: c.visitorID, Pin: pin}
	if err := c.doGuarded(ctx, "verify pin", http.MethodPost, "/api/verify-pin", nil, body, &out, pinGates...); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) SearchWebsites(ctx context.Context, q model.SearchQuery) (*model.SearchResponse, error) {
	v := url.Values{}
	v.Set("q", q.Q)
	if q.Page > 0 {
		v.Set("page", strconv.Itoa(q.Page))
	}
	if q.PerPage > 0 {
		v.Set("per_page", strconv.Itoa(q.PerPage))
	}
	if q.Filter != "" {
		v.Set("filter", q.Filter)
	}
	if q.Sort != "" {
		v.Set("sort", q.Sort)
	}
	var out model.SearchResponse
	if err := c.do(ctx, "search websites", http.MethodGet, "/api/websites/search", v, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ScanNew(ctx context.Context, target string) (*model.ScanNewResponse, error) {
	var out model.ScanNewResponse
	if err := c.do(ctx, "scan new website", http.MethodPost, "/api/websites/scan-new", nil, model.ScanRequest{URL: target}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Health pings /api/health.
func (c *Client) Health(ctx context.Context) error {
	var out map[string]any
	return c.do(ctx, "health", http.MethodGet, "/api/health", nil, nil, &out)
}

func limitQuery(limit int) url.Values {
	if limit <= 0 {
		return nil
	}
	return url.Values{"limit": []string{strconv.Itoa(limit)}}
}

// errorBody is the shape the backend uses for failures.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Statuses whose bodies are outcomes, not failures. A rate rejection (400)
// carries the reason for the form; verify-pin reports its counter only with
// 401 and 423, so a 400 there stays an APIError.
var (
	rateGates = []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusLocked}
	pinGates  = []int{http.StatusUnauthorized, http.StatusLocked}
)

func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, in, out any) error {
	return c.roundTrip(ctx, op, method, path, query, in, out, nil)
}

// doGuarded also decodes into out for the gate statuses listed, because the
// rating endpoints report their gates with them.
func (c *Client) doGuarded(ctx context.Context, op, method, path string, query url.Values, in, out any, gates ...int) error {
	return c.roundTrip(ctx, op, method, path, query, in, out, gates)
}

func (c *Client) roundTrip(ctx context.Context, op, method, path string, query url.Values, in, out any, gates []int) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req := &model.Request{Method: method, URL: u, Headers: http.Header{}}
	req.Headers.Set("Accept", "application/json")
	req.Headers.Set("User-Agent", c.userAgent)
	if c.visitorID != "" {
		req.Headers.Set(HeaderVisitorID, c.visitorID)
	}
	if in != nil {
		body, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
		req.Body = body
		req.Headers.Set("Content-Type", "application/json")
	}

	resp, err := c.wc.Do(ctx, req)
	if err != nil {
		c.logger.Warn("backend request failed",
			logging.Field{Key: "op", Value: op},
			logging.Field{Key: "error", Value: err.Error()})
		return &ConnectivityError{Op: op, Err: err}
	}

	ok := resp.StatusCode >= 200 && resp.StatusCode < 300
	if !ok && slices.Contains(gates, resp.StatusCode) {
		if err := json.Unmarshal(resp.Body, out); err == nil {
			return nil
		}
	}
	if !ok {
		return c.apiError(op, resp)
	}

	if err := json.Unmarshal(resp.Body, out); err != nil {
		return &ConnectivityError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func (c *Client) apiError(op string, resp *model.Response) error {
	var eb errorBody
	if err := json.Unmarshal(resp.Body, &eb); err != nil {
		// Proxies and dead backends answer with HTML, not our JSON.
		return &ConnectivityError{Op: op, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}
	msg := eb.Error
	if msg == "" {
		msg = eb.Message
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	c.logger.Info("backend returned error",
		logging.Field{Key: "op", Value: op},
		logging.Field{Key: "status", Value: resp.StatusCode},
		logging.Field{Key: "message", Value: msg})
	return &APIError{Op: op, Status: resp.StatusCode, Message: msg}
}
