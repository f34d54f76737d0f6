package model

import (
	"net/http"
	"time"
)

// Request is a transport-neutral HTTP request handed to a webclient.
type Request struct {
	Method  string
	URL     string
	Headers http.Header
	Body    []byte
}

// Response is what a webclient returns. Elapsed covers the full round trip
// including reading the body.
type Response struct {
	Request    *Request
	Headers    http.Header
	Body       []byte
	StatusCode int
	FinalURL   string
	Title      string
	FetchedAt  time.Time
	Elapsed    time.Duration
}
