package utils

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/net/idna"
)

// Errors
var (
	ErrEmptyURL    = errors.New("empty url")
	ErrInvalidURL  = errors.New("please enter a valid URL (e.g., example.com)")
	ErrMissingHost = errors.New("missing host")
)

var schemePrefix = regexp.MustCompile(`(?i)^https?://`)

// NormalizeTarget turns raw user input into the form the scan endpoint
// expects: scheme stripped, trailing slashes stripped. The result must contain
// a dot and no whitespace anywhere, otherwise ErrInvalidURL is returned.
//
// Examples:
//
//	"https://example.com/"   → "example.com"
//	"HTTP://Example.com/a/"  → "Example.com/a"
//	"localhost"              → ErrInvalidURL
//	"exa mple.com"           → ErrInvalidURL
func NormalizeTarget(raw string) (string, error) {
	if raw == "" {
		return "", ErrEmptyURL
	}
	if strings.IndexFunc(raw, unicode.IsSpace) >= 0 {
		return "", fmt.Errorf("%w: contains whitespace", ErrInvalidURL)
	}

	cleaned := schemePrefix.ReplaceAllString(raw, "")
	cleaned = strings.TrimRight(cleaned, "/")

	if cleaned == "" {
		return "", ErrEmptyURL
	}
	if !strings.Contains(cleaned, ".") {
		return "", fmt.Errorf("%w: missing a dot", ErrInvalidURL)
	}
	return cleaned, nil
}

// IsValidationError reports whether err came from NormalizeTarget.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidURL) || errors.Is(err, ErrEmptyURL)
}

// Hostname extracts the lower-cased, punycode-encoded hostname of raw.
// Schemeless input is parsed as https.
//
// Examples:
//
//	"https://A.com/x?y=1" → "a.com"
//	"b.com/path"          → "b.com"
//	"http://"             → ErrMissingHost
func Hostname(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrEmptyURL
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse %q: %w", raw, err)
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", ErrMissingHost
	}
	if puny, err := idna.Lookup.ToASCII(host); err == nil {
		host = puny
	}
	return host, nil
}

// ExtractDomain pulls the bare domain out of anything a visitor might type
// into the search box: scheme, "www." and everything from the first '/', '?'
// or '#' are removed and the result is lower-cased.
//
// Examples:
//
//	"https://www.Web.abc.com/hello?a=1" → "web.abc.com"
//	"abc.com#top"                       → "abc.com"
func ExtractDomain(raw string) string {
	if raw == "" {
		return ""
	}
	d := schemePrefix.ReplaceAllString(strings.TrimSpace(raw), "")
	if len(d) >= 4 && strings.EqualFold(d[:4], "www.") {
		d = d[4:]
	}
	if i := strings.IndexAny(d, "/?#"); i >= 0 {
		d = d[:i]
	}
	return strings.ToLower(d)
}

// LooksLikeDomain reports whether d is worth auto-scanning.
func LooksLikeDomain(d string) bool {
	return d != "" && strings.Contains(d, ".") && strings.IndexFunc(d, unicode.IsSpace) < 0
}

// FetchURL turns a normalized target back into an absolute URL to fetch.
func FetchURL(target string) string {
	if schemePrefix.MatchString(target) {
		return target
	}
	return "https://" + target
}
