package backend

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/raysh454/fastscan/internal/logging"
	"github.com/raysh454/fastscan/internal/model"
	"github.com/raysh454/fastscan/internal/webclient"
)

// Scan methods recorded on every result.
const (
	MethodBrowser = "browser"
	MethodLegacy  = "legacy"
)

const maxStoredHTML = 50000

// ErrNoClient is returned by NewScanner when no fetcher is configured.
var ErrNoClient = errors.New("scanner needs at least one web client")

var browserHeaders = http.Header{
	"User-Agent":                {"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"},
	"Accept":                    {"text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8"},
	"Accept-Language":           {"en-US,en;q=0.9"},
	"Upgrade-Insecure-Requests": {"1"},
	"Sec-Fetch-Dest":            {"document"},
	"Sec-Fetch-Mode":            {"navigate"},
	"Sec-Fetch-Site":            {"none"},
	"Sec-Fetch-User":            {"?1"},
	"Cache-Control":             {"max-age=0"},
}

// PageScan is the raw outcome of fetching and inspecting one page.
type PageScan struct {
	URL           string
	StatusCode    int
	Title         string
	LoadTimeMS    float64
	ContentLength int
	HTML          string
	Bugs          []string
	Method        string
}

// Score is 100 minus the penalties for each detected bug.
func (p *PageScan) Score() float64 {
	score := 100.0
	for _, b := range p.Bugs {
		switch {
		case strings.HasPrefix(b, "HTTP Error"):
			score -= 30
		case strings.HasPrefix(b, "Very slow load time"):
			score -= 20
		default:
			score -= 10
		}
	}
	return math.Max(0, score)
}

// Grade maps a performance score onto A..F.
func Grade(score float64) string {
	switch {
	case score >= 90:
		return "A"
	case score >= 80:
		return "B"
	case score >= 70:
		return "C"
	case score >= 60:
		return "D"
	default:
		return "F"
	}
}

// Scanner fetches pages through a browser client when one is configured and
// falls back to the plain HTTP client.
type Scanner struct {
	browser webclient.WebClient
	legacy  webclient.WebClient
	logger  logging.Logger
}

// NewScanner returns a Scanner. browser may be nil.
func NewScanner(browser, legacy webclient.WebClient, logger logging.Logger) (*Scanner, error) {
	if browser == nil && legacy == nil {
		return nil, ErrNoClient
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Scanner{
		browser: browser,
		legacy:  legacy,
		logger:  logger.With(logging.Field{Key: "component", Value: "scanner"}),
	}, nil
}

// Scan fetches target (absolute URL) and analyzes the page.
func (s *Scanner) Scan(ctx context.Context, target string) (*PageScan, error) {
	if s.browser != nil {
		resp, err := s.browser.Get(ctx, target)
		if err == nil {
			return analyze(resp, target, MethodBrowser), nil
		}
		if s.legacy == nil {
			return nil, fmt.Errorf("browser scan %s: %w", target, err)
		}
		s.logger.Warn("browser scan failed, falling back",
			logging.Field{Key: "url", Value: target},
			logging.Field{Key: "error", Value: err})
	}

	resp, err := s.legacy.Do(ctx, &model.Request{
		Method:  http.MethodGet,
		URL:     target,
		Headers: browserHeaders.Clone(),
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", target, err)
	}
	return analyze(resp, target, MethodLegacy), nil
}

func analyze(resp *model.Response, target, method string) *PageScan {
	html := string(resp.Body)
	p := &PageScan{
		URL:           resp.FinalURL,
		StatusCode:    resp.StatusCode,
		Title:         resp.Title,
		LoadTimeMS:    math.Round(float64(resp.Elapsed)/float64(time.Millisecond)*100) / 100,
		ContentLength: len(resp.Body),
		Method:        method,
	}
	if p.URL == "" {
		p.URL = target
	}
	if len(html) > maxStoredHTML {
		p.HTML = html[:maxStoredHTML]
	} else {
		p.HTML = html
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		p.Bugs = []string{"Unparseable HTML"}
		if p.Title == "" {
			p.Title = "No Title Found"
		}
		return p
	}
	if p.Title == "" {
		p.Title = strings.TrimSpace(doc.Find("title").First().Text())
	}
	if p.Title == "" {
		p.Title = "No Title Found"
	}
	p.Bugs = findBugs(doc, p.StatusCode, p.LoadTimeMS)
	return p
}

func findBugs(doc *goquery.Document, status int, loadTimeMS float64) []string {
	bugs := []string{}

	if status >= 400 {
		bugs = append(bugs, fmt.Sprintf("HTTP Error: %d", status))
	}
	if doc.Find(`meta[name="viewport"]`).Length() == 0 {
		bugs = append(bugs, "Missing viewport meta tag (Not Mobile Friendly)")
	}
	if doc.Find("h1").Length() == 0 {
		bugs = append(bugs, "Missing H1 tag (SEO issue)")
	}
	if doc.Find(`meta[name="description"]`).Length() == 0 {
		bugs = append(bugs, "Missing meta description (SEO issue)")
	}
	if doc.Find("meta[charset]").Length() == 0 && !hasContentTypeMeta(doc) {
		bugs = append(bugs, "Missing charset declaration")
	}
	if n := doc.Find("img:not([alt])").Length(); n > 0 {
		bugs = append(bugs, fmt.Sprintf("%d images missing alt text (Accessibility issue)", n))
	}
	if n := doc.Find("[style]").Length(); n > 10 {
		bugs = append(bugs, fmt.Sprintf("%d elements with inline styles (Consider using CSS classes)", n))
	}
	switch {
	case loadTimeMS > 5000:
		bugs = append(bugs, fmt.Sprintf("Very slow load time (%.1fs) - Consider optimization", loadTimeMS/1000))
	case loadTimeMS > 3000:
		bugs = append(bugs, fmt.Sprintf("Slow load time (%.1fs) - Could be faster", loadTimeMS/1000))
	}
	return bugs
}

func hasContentTypeMeta(doc *goquery.Document) bool {
	return doc.Find("meta[http-equiv]").FilterFunction(func(_ int, s *goquery.Selection) bool {
		v, _ := s.Attr("http-equiv")
		return strings.EqualFold(v, "Content-Type")
	}).Length() > 0
}
