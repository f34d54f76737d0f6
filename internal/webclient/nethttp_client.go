package webclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/raysh454/fastscan/internal/logging"
	"github.com/raysh454/fastscan/internal/model"
)

var ErrNilRequest = errors.New("nil request")

// NetHTTPClient is the net/http backed implementation of WebClient.
type NetHTTPClient struct {
	client    *http.Client
	userAgent string
	logger    logging.Logger
}

// NewNetHTTPClient wraps httpClient, or builds one with cfg's timeout when
// httpClient is nil.
func NewNetHTTPClient(cfg Config, logger logging.Logger, httpClient *http.Client) (*NetHTTPClient, error) {
	if logger == nil {
		logger = logging.Nop()
	}
	componentLogger := logger.With(logging.Field{Key: "backend", Value: "nethttp"})

	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.timeout()}
	}

	componentLogger.Debug("created nethttp webclient",
		logging.Field{Key: "timeout", Value: httpClient.Timeout.String()})

	return &NetHTTPClient{
		client:    httpClient,
		userAgent: cfg.UserAgent,
		logger:    componentLogger,
	}, nil
}

// Do implements the generic request execution using net/http.
func (nhc *NetHTTPClient) Do(ctx context.Context, req *model.Request) (*model.Response, error) {
	if req == nil {
		return nil, ErrNilRequest
	}

	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodGet
	}

	nhc.logger.Debug("sending http request",
		logging.Field{Key: "method", Value: method},
		logging.Field{Key: "url", Value: req.URL})

	var bodyReader io.Reader
	if len(req.Body) > 0 {
		bodyReader = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	for k, vs := range req.Headers {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if nhc.userAgent != "" && httpReq.Header.Get("User-Agent") == "" {
		httpReq.Header.Set("User-Agent", nhc.userAgent)
	}

	start := time.Now()
	resp, err := nhc.client.Do(httpReq)
	if err != nil {
		nhc.logger.Warn("http request failed",
			logging.Field{Key: "method", Value: method},
			logging.Field{Key: "url", Value: req.URL},
			logging.Field{Key: "error", Value: err.Error()})
		return nil, fmt.Errorf("http do: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		nhc.logger.Warn("failed to read response body",
			logging.Field{Key: "method", Value: method},
			logging.Field{Key: "url", Value: req.URL},
			logging.Field{Key: "error", Value: err.Error()})
		return nil, fmt.Errorf("read body: %w", err)
	}

	finalURL := req.URL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	return &model.Response{
		Request:    req,
		Body:       body,
		Headers:    resp.Header,
		StatusCode: resp.StatusCode,
		FinalURL:   finalURL,
		FetchedAt:  time.Now(),
		Elapsed:    time.Since(start),
	}, nil
}

// Get is a convenience method for simple GET requests.
func (nhc *NetHTTPClient) Get(ctx context.Context, url string) (*model.Response, error) {
	return nhc.Do(ctx, &model.Request{Method: http.MethodGet, URL: url})
}

func (nhc *NetHTTPClient) Close() error {
	nhc.logger.Debug("closing nethttp webclient")
	nhc.client.CloseIdleConnections()
	return nil
}

// HTTPClient returns the underlying *http.Client.
func (nhc *NetHTTPClient) HTTPClient() *http.Client {
	return nhc.client
}
