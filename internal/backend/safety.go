package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/raysh454/fastscan/internal/logging"
	"github.com/raysh454/fastscan/internal/model"
	"github.com/raysh454/fastscan/internal/webclient"
)

// SafeBrowsingURL is the Google Safe Browsing v4 lookup endpoint.
const SafeBrowsingURL = "https://safebrowsing.googleapis.com/v4/threatMatches:find"

var adultKeywords = []string{
	"adult", "porn", "xxx", "sex", "mature", "18+", "nsfw", "nude", "naked",
	"escort", "hookup", "cam", "live cam", "webcam", "dating site",
	"sugar daddy", "sugar baby", "onlyfans", "fansly",
}

var suspiciousKeywords = []string{
	"gambling", "casino", "betting", "poker", "lottery", "drugs", "cannabis",
	"marijuana", "cbd oil", "alcohol", "tobacco", "vape", "e-cigarette",
	"violence", "gore", "horror", "terror", "hate", "racist", "extremist",
	"weapon", "gun", "firearm",
}

var metaRatings = map[string]model.SafetyRating{
	"safe for kids":     model.SafetySafeForAll,
	"general":           model.SafetySafeForAll,
	"safe for all":      model.SafetySafeForAll,
	"everyone":          model.SafetySafeForAll,
	"pg":                model.SafetyParentalGuidance,
	"parental guidance": model.SafetyParentalGuidance,
	"pg-13":             model.SafetyTeen,
	"teen":              model.SafetyTeen,
	"mature":            model.SafetyMature,
	"adult":             model.SafetyMature,
	"restricted":        model.SafetyMature,
	"r":                 model.SafetyMature,
	"nc-17":             model.SafetyMature,
	"xxx":               model.SafetyBlocked,
	"rtn":               model.SafetyBlocked,
	"blocked":           model.SafetyBlocked,
}

var ratingScores = map[model.SafetyRating]int{
	model.SafetySafeForAll:       95,
	model.SafetyParentalGuidance: 75,
	model.SafetyTeen:             50,
	model.SafetyMature:           20,
	model.SafetyBlocked:          0,
	model.SafetyUnknown:          50,
}

var rtaLabel = regexp.MustCompile(`(?i)rta-\d{4}-\d{4}-\d{4}-\d{4}-rta`)

var (
	adultPatterns      = wordPatterns(adultKeywords)
	suspiciousPatterns = wordPatterns(suspiciousKeywords)
)

func wordPatterns(words []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(words))
	for i, w := range words {
		out[i] = regexp.MustCompile(`\b` + regexp.QuoteMeta(w) + `\b`)
	}
	return out
}

// SafetyReport is the result of a child-safety check.
type SafetyReport struct {
	Rating     model.SafetyRating
	Score      int
	Confidence string
	Sources    []string
	Warnings   []string
}

// KidsSafety projects the report into the wire type.
func (r *SafetyReport) KidsSafety() model.KidsSafety {
	return model.KidsSafety{
		Rating:     r.Rating,
		Score:      r.Score,
		Confidence: r.Confidence,
		Warnings:   r.Warnings,
	}
}

// SafetyChecker classifies a site from its domain and HTML.
type SafetyChecker struct {
	apiKey   string
	endpoint string
	client   webclient.WebClient
	logger   logging.Logger
}

// NewSafetyChecker returns a checker. Safe Browsing lookups are skipped when
// apiKey is empty or client is nil.
func NewSafetyChecker(apiKey string, client webclient.WebClient, logger logging.Logger) *SafetyChecker {
	if logger == nil {
		logger = logging.Nop()
	}
	return &SafetyChecker{
		apiKey:   apiKey,
		endpoint: SafeBrowsingURL,
		client:   client,
		logger:   logger.With(logging.Field{Key: "component", Value: "safety"}),
	}
}

// WithEndpoint overrides the Safe Browsing endpoint.
func (c *SafetyChecker) WithEndpoint(endpoint string) *SafetyChecker {
	c.endpoint = endpoint
	return c
}

// Check rates pageURL. html may be empty, in which case only the domain
// and Safe Browsing are consulted.
func (c *SafetyChecker) Check(ctx context.Context, pageURL, html string) *SafetyReport {
	r := &SafetyReport{Rating: model.SafetyUnknown, Score: 50, Confidence: "low"}

	checked, threats := c.safeBrowsing(ctx, pageURL)
	if len(threats) > 0 {
		r.Rating = model.SafetyBlocked
		r.Score = 0
		r.Confidence = "high"
		r.Sources = append(r.Sources, "google_safe_browsing")
		r.Warnings = append(r.Warnings, threats...)
		return r
	}
	if checked {
		r.Sources = append(r.Sources, "google_safe_browsing")
		r.Score += 20
	}

	if found := domainKeywords(domainOf(pageURL)); len(found) > 0 {
		r.Rating = model.SafetyMature
		r.Score -= 30
		r.Sources = append(r.Sources, "domain_analysis")
		r.Warnings = append(r.Warnings, "Adult keywords in domain: "+strings.Join(found, ", "))
	}

	if html != "" {
		c.checkHTML(r, html)
	}

	if r.Rating == model.SafetyUnknown {
		r.Rating = scoreToRating(r.Score)
	}

	switch {
	case len(r.Sources) >= 3:
		r.Confidence = "high"
	case len(r.Sources) == 2:
		r.Confidence = "medium"
	default:
		r.Confidence = "low"
	}
	r.Score = max(0, min(100, r.Score))
	return r
}

func (c *SafetyChecker) checkHTML(r *SafetyReport, html string) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		c.logger.Warn("parse html for safety check", logging.Field{Key: "error", Value: err})
		return
	}

	if content, ok := doc.Find(`meta[name="rating"]`).First().Attr("content"); ok {
		if rating, known := metaRatings[strings.ToLower(strings.TrimSpace(content))]; known {
			r.Rating = rating
			r.Sources = append(r.Sources, "meta_tags")
			r.Score = ratingScores[rating]
		}
	}

	rta := false
	doc.Find("meta").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		content, _ := s.Attr("content")
		rta = rtaLabel.MatchString(content)
		return !rta
	})
	if rta {
		r.Rating = model.SafetyMature
		r.Score = min(r.Score, 25)
		r.Sources = append(r.Sources, "rta_label")
		r.Warnings = append(r.Warnings, "RTA (Restricted to Adults) label detected")
	}

	text := strings.ToLower(doc.Text())
	switch {
	case countMatches(adultPatterns, text) > 3:
		r.Rating = model.SafetyMature
		r.Score -= 20
		r.Sources = append(r.Sources, "content_analysis")
		r.Warnings = append(r.Warnings, "Adult content keywords detected in page")
	case countMatches(suspiciousPatterns, text) > 5:
		r.Rating = model.SafetyTeen
		r.Score -= 10
		r.Sources = append(r.Sources, "content_analysis")
		r.Warnings = append(r.Warnings, "Potentially inappropriate content detected")
	}
}

type safeBrowsingRequest struct {
	Client struct {
		ClientID      string `json:"clientId"`
		ClientVersion string `json:"clientVersion"`
	} `json:"client"`
	ThreatInfo struct {
		ThreatTypes      []string            `json:"threatTypes"`
		PlatformTypes    []string            `json:"platformTypes"`
		ThreatEntryTypes []string            `json:"threatEntryTypes"`
		ThreatEntries    []map[string]string `json:"threatEntries"`
	} `json:"threatInfo"`
}

type safeBrowsingResponse struct {
	Matches []struct {
		ThreatType string `json:"threatType"`
	} `json:"matches"`
}

// safeBrowsing reports whether the lookup ran and the threats it found.
func (c *SafetyChecker) safeBrowsing(ctx context.Context, pageURL string) (bool, []string) {
	if c.apiKey == "" || c.client == nil {
		return false, nil
	}

	var body safeBrowsingRequest
	body.Client.ClientID = "fastscan"
	body.Client.ClientVersion = "2.0.0"
	body.ThreatInfo.ThreatTypes = []string{
		"MALWARE", "SOCIAL_ENGINEERING", "UNWANTED_SOFTWARE",
		"POTENTIALLY_HARMFUL_APPLICATION", "THREAT_TYPE_UNSPECIFIED",
	}
	body.ThreatInfo.PlatformTypes = []string{"ANY_PLATFORM"}
	body.ThreatInfo.ThreatEntryTypes = []string{"URL"}
	body.ThreatInfo.ThreatEntries = []map[string]string{{"url": pageURL}}

	payload, err := json.Marshal(body)
	if err != nil {
		return false, nil
	}
	resp, err := c.client.Do(ctx, &model.Request{
		Method:  http.MethodPost,
		URL:     c.endpoint + "?key=" + url.QueryEscape(c.apiKey),
		Headers: http.Header{"Content-Type": []string{"application/json"}},
		Body:    payload,
	})
	if err != nil {
		c.logger.Warn("safe browsing lookup failed", logging.Field{Key: "error", Value: err})
		return false, nil
	}
	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("safe browsing lookup failed",
			logging.Field{Key: "error", Value: fmt.Sprintf("API error: %d", resp.StatusCode)})
		return false, nil
	}

	var out safeBrowsingResponse
	if err := json.NewDecoder(bytes.NewReader(resp.Body)).Decode(&out); err != nil {
		return false, nil
	}
	threats := make([]string, 0, len(out.Matches))
	for _, m := range out.Matches {
		t := m.ThreatType
		if t == "" {
			t = "Unknown"
		}
		threats = append(threats, t)
	}
	return true, threats
}

func domainOf(pageURL string) string {
	u, err := url.Parse(pageURL)
	if err != nil || u.Host == "" {
		return strings.ToLower(pageURL)
	}
	return strings.ToLower(u.Host)
}

func domainKeywords(domain string) []string {
	var found []string
	for _, kw := range adultKeywords {
		if strings.Contains(domain, kw) {
			found = append(found, kw)
		}
	}
	return found
}

func countMatches(patterns []*regexp.Regexp, text string) int {
	n := 0
	for _, p := range patterns {
		n += len(p.FindAllStringIndex(text, -1))
	}
	return n
}

func scoreToRating(score int) model.SafetyRating {
	switch {
	case score >= 90:
		return model.SafetySafeForAll
	case score >= 70:
		return model.SafetyParentalGuidance
	case score >= 40:
		return model.SafetyTeen
	case score >= 10:
		return model.SafetyMature
	default:
		return model.SafetyBlocked
	}
}
