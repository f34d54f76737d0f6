// Package testutil provides shared test doubles for use across package tests.
// All dummies implement the corresponding interfaces from the production code,
// allowing injection into components under test without real I/O or side effects.
package testutil

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/raysh454/fastscan/internal/logging"
	"github.com/raysh454/fastscan/internal/model"
)

// ─── Logger ────────────────────────────────────────────────────────────

// DummyLogger implements logging.Logger with in-memory recording.
type DummyLogger struct {
	mu     sync.Mutex
	Errors []string
	Infos  []string
	Debugs []string
	Warns  []string
}

func (l *DummyLogger) Debug(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Debugs = append(l.Debugs, msg)
}

func (l *DummyLogger) Info(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Infos = append(l.Infos, msg)
}

func (l *DummyLogger) Warn(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Warns = append(l.Warns, msg)
}

func (l *DummyLogger) Error(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Errors = append(l.Errors, msg)
}

func (l *DummyLogger) With(_ ...logging.Field) logging.Logger { return l }

// WarnCount returns the number of warnings recorded so far.
func (l *DummyLogger) WarnCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.Warns)
}

// ─── WebClient ─────────────────────────────────────────────────────────

// DummyWebClient implements webclient.WebClient.
// By default it returns body "ok:<url>" with status 200.
// Set Pages[url] to serve a specific HTML body, or FailURLs[url] = true to
// force an error for a specific URL.
type DummyWebClient struct {
	ResponseDelay time.Duration
	Pages         map[string]string
	Status        map[string]int
	FailURLs      map[string]bool
	mu            sync.Mutex
	Requests      []*model.Request
}

func (d *DummyWebClient) Do(ctx context.Context, req *model.Request) (*model.Response, error) {
	start := time.Now()
	if d.ResponseDelay > 0 {
		select {
		case <-time.After(d.ResponseDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	d.mu.Lock()
	d.Requests = append(d.Requests, req)
	d.mu.Unlock()

	if d.FailURLs != nil && d.FailURLs[req.URL] {
		return nil, &errString{"dummy fetch fail for " + req.URL}
	}

	body := "ok:" + req.URL
	if page, ok := d.Pages[req.URL]; ok {
		body = page
	}
	status := http.StatusOK
	if s, ok := d.Status[req.URL]; ok {
		status = s
	}

	return &model.Response{
		Request:    req,
		Headers:    http.Header{"Content-Type": []string{"text/html; charset=utf-8"}},
		Body:       []byte(body),
		StatusCode: status,
		FinalURL:   req.URL,
		FetchedAt:  time.Now(),
		Elapsed:    time.Since(start),
	}, nil
}

func (d *DummyWebClient) Get(ctx context.Context, url string) (*model.Response, error) {
	return d.Do(ctx, &model.Request{Method: http.MethodGet, URL: url})
}

func (d *DummyWebClient) Close() error { return nil }

// RequestCount returns the number of requests served so far.
func (d *DummyWebClient) RequestCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.Requests)
}

// ─── helpers ───────────────────────────────────────────────────────────

type errString struct{ s string }

func (e *errString) Error() string { return e.s }
