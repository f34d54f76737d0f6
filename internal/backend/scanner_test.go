package backend_test

import (
	"context"
	"strings"
	"testing"

	"github.com/raysh454/fastscan/internal/backend"
	"github.com/raysh454/fastscan/internal/testutil"
)

const cleanPage = `<!doctype html><html><head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width">
<meta name="description" content="A tidy page">
<title>Tidy</title></head>
<body><h1>Hello</h1><img src="a.png" alt="a"></body></html>`

const messyPage = `<html><head><title>Messy</title></head><body>
<img src="a.png"><img src="b.png"><img src="c.png" alt="c">
<p style="x">1</p><p style="x">2</p><p style="x">3</p><p style="x">4</p>
<p style="x">5</p><p style="x">6</p><p style="x">7</p><p style="x">8</p>
<p style="x">9</p><p style="x">10</p><p style="x">11</p>
</body></html>`

func TestScanner_CleanPageHasNoBugs(t *testing.T) {
	t.Parallel()
	wc := &testutil.DummyWebClient{Pages: map[string]string{"https://tidy.com": cleanPage}}
	s, err := backend.NewScanner(nil, wc, &testutil.DummyLogger{})
	if err != nil {
		t.Fatalf("NewScanner: %v", err)
	}

	page, err := s.Scan(context.Background(), "https://tidy.com")
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(page.Bugs) != 0 {
		t.Errorf("expected no bugs, got %v", page.Bugs)
	}
	if page.Title != "Tidy" || page.Method != backend.MethodLegacy {
		t.Errorf("unexpected page %+v", page)
	}
	if page.Score() != 100 || backend.Grade(page.Score()) != "A" {
		t.Errorf("expected score 100/A, got %v", page.Score())
	}
	if page.ContentLength != len(cleanPage) {
		t.Errorf("content length = %d, want %d", page.ContentLength, len(cleanPage))
	}
}

func TestScanner_ReportsHeuristicBugs(t *testing.T) {
	t.Parallel()
	wc := &testutil.DummyWebClient{
		Pages:  map[string]string{"https://messy.com": messyPage},
		Status: map[string]int{"https://messy.com": 404},
	}
	s, _ := backend.NewScanner(nil, wc, nil)

	page, err := s.Scan(context.Background(), "https://messy.com")
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	want := []string{
		"HTTP Error: 404",
		"Missing viewport meta tag (Not Mobile Friendly)",
		"Missing H1 tag (SEO issue)",
		"Missing meta description (SEO issue)",
		"Missing charset declaration",
		"2 images missing alt text (Accessibility issue)",
		"11 elements with inline styles (Consider using CSS classes)",
	}
	if strings.Join(page.Bugs, "\n") != strings.Join(want, "\n") {
		t.Errorf("bugs =\n%s\nwant\n%s", strings.Join(page.Bugs, "\n"), strings.Join(want, "\n"))
	}
	// 100 - 30 (HTTP error) - 6*10
	if page.Score() != 10 || backend.Grade(page.Score()) != "F" {
		t.Errorf("expected score 10/F, got %v", page.Score())
	}
}

func TestScanner_HTTPEquivCountsAsCharset(t *testing.T) {
	t.Parallel()
	html := `<html><head><meta http-equiv="content-type" content="text/html; charset=utf-8"></head></html>`
	wc := &testutil.DummyWebClient{Pages: map[string]string{"https://x.com": html}}
	s, _ := backend.NewScanner(nil, wc, nil)

	page, _ := s.Scan(context.Background(), "https://x.com")
	for _, b := range page.Bugs {
		if b == "Missing charset declaration" {
			t.Errorf("http-equiv Content-Type should satisfy the charset check")
		}
	}
	if page.Title != "No Title Found" {
		t.Errorf("expected placeholder title, got %q", page.Title)
	}
}

func TestScanner_BrowserFirstThenFallback(t *testing.T) {
	t.Parallel()
	browser := &testutil.DummyWebClient{FailURLs: map[string]bool{"https://down.com": true}}
	legacy := &testutil.DummyWebClient{}
	s, _ := backend.NewScanner(browser, legacy, &testutil.DummyLogger{})

	page, err := s.Scan(context.Background(), "https://up.com")
	if err != nil || page.Method != backend.MethodBrowser {
		t.Fatalf("expected browser scan, got %+v, %v", page, err)
	}
	if legacy.RequestCount() != 0 {
		t.Errorf("legacy client should not be used when the browser succeeds")
	}

	page, err = s.Scan(context.Background(), "https://down.com")
	if err != nil || page.Method != backend.MethodLegacy {
		t.Fatalf("expected legacy fallback, got %+v, %v", page, err)
	}
	if ua := legacy.Requests[0].Headers.Get("User-Agent"); !strings.Contains(ua, "Chrome") {
		t.Errorf("expected browser-like user agent on legacy scan, got %q", ua)
	}
}

func TestScanner_FailsWhenEveryClientFails(t *testing.T) {
	t.Parallel()
	legacy := &testutil.DummyWebClient{FailURLs: map[string]bool{"https://down.com": true}}
	s, _ := backend.NewScanner(nil, legacy, nil)

	if _, err := s.Scan(context.Background(), "https://down.com"); err == nil {
		t.Fatal("expected error")
	}
}

func TestNewScanner_RequiresAClient(t *testing.T) {
	t.Parallel()
	if _, err := backend.NewScanner(nil, nil, nil); err != backend.ErrNoClient {
		t.Errorf("expected ErrNoClient, got %v", err)
	}
}

func TestGrade(t *testing.T) {
	t.Parallel()
	cases := map[float64]string{100: "A", 90: "A", 89.9: "B", 80: "B", 70: "C", 60: "D", 59: "F", 0: "F"}
	for score, want := range cases {
		if got := backend.Grade(score); got != want {
			t.Errorf("Grade(%v) = %s, want %s", score, got, want)
		}
	}
}
