package webclient

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/raysh454/fastscan/internal/logging"
	"github.com/raysh454/fastscan/internal/model"
)

// ChromedpClient renders pages in a headless browser. Only GET is supported.
// One browser process is shared; every Do opens a fresh tab.
type ChromedpClient struct {
	allocCancel  context.CancelFunc
	browserCtx   context.Context
	closeBrowser context.CancelFunc
	idleAfter    time.Duration
	timeout      time.Duration
	logger       logging.Logger
}

// NewChromedpClient starts the browser. It fails when no Chrome binary is
// available.
func NewChromedpClient(cfg Config, logger logging.Logger) (*ChromedpClient, error) {
	if logger == nil {
		logger = logging.Nop()
	}
	componentLogger := logger.With(logging.Field{Key: "backend", Value: "chromedp"})

	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	if !cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, closeBrowser := chromedp.NewContext(allocCtx)

	// Run with no actions launches the browser so a missing binary surfaces here.
	if err := chromedp.Run(browserCtx); err != nil {
		closeBrowser()
		allocCancel()
		return nil, fmt.Errorf("start browser: %w", err)
	}

	componentLogger.Debug("created chromedp webclient",
		logging.Field{Key: "idle_after", Value: cfg.idleAfter().String()})

	return &ChromedpClient{
		allocCancel:  allocCancel,
		browserCtx:   browserCtx,
		closeBrowser: closeBrowser,
		idleAfter:    cfg.idleAfter(),
		timeout:      cfg.timeout(),
		logger:       componentLogger,
	}, nil
}

// pageListener tracks in-flight requests and the main document's response.
type pageListener struct {
	active   int32
	timer    *time.Timer
	timerMu  sync.Mutex
	once     sync.Once
	idle     chan struct{}
	status   atomic.Int64
	headers  http.Header
	headerMu sync.Mutex
}

func newPageListener() *pageListener {
	return &pageListener{idle: make(chan struct{}), headers: http.Header{}}
}

func (p *pageListener) startTimer(idleAfter time.Duration) {
	p.timerMu.Lock()
	defer p.timerMu.Unlock()

	if p.timer != nil {
		p.timer.Stop()
	}
	p.timer = time.AfterFunc(idleAfter, func() {
		if atomic.LoadInt32(&p.active) <= 0 {
			p.once.Do(func() { close(p.idle) })
		}
	})
}

func (p *pageListener) listen(ctx context.Context, idleAfter time.Duration) {
	chromedp.ListenTarget(ctx, func(ev any) {
		switch e := ev.(type) {
		case *network.EventRequestWillBeSent:
			atomic.AddInt32(&p.active, 1)
		case *network.EventResponseReceived:
			if e.Type == network.ResourceTypeDocument && e.Response != nil && p.status.Load() == 0 {
				p.status.Store(e.Response.Status)
				p.headerMu.Lock()
				for k, v := range e.Response.Headers {
					p.headers.Set(k, fmt.Sprint(v))
				}
				p.headerMu.Unlock()
			}
		case *network.EventLoadingFinished, *network.EventLoadingFailed:
			if atomic.AddInt32(&p.active, -1) <= 0 {
				p.startTimer(idleAfter)
			}
		}
	})
}

// Do navigates to req.URL, waits for the network to go idle and returns the
// rendered document.
func (c *ChromedpClient) Do(ctx context.Context, req *model.Request) (*model.Response, error) {
	if req == nil {
		return nil, ErrNilRequest
	}
	method := strings.ToUpper(req.Method)
	if method != "" && method != http.MethodGet {
		return nil, fmt.Errorf("chromedp: method %s not supported", method)
	}

	tabCtx, cancelTab := chromedp.NewContext(c.browserCtx)
	defer cancelTab()
	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, c.timeout)
	defer cancelTimeout()

	// Tie the tab to the caller's context as well.
	stop := context.AfterFunc(ctx, cancelTab)
	defer stop()

	listener := newPageListener()
	listener.listen(tabCtx, c.idleAfter)

	c.logger.Debug("navigating", logging.Field{Key: "url", Value: req.URL})

	start := time.Now()
	if err := chromedp.Run(tabCtx, network.Enable(), chromedp.Navigate(req.URL)); err != nil {
		return nil, fmt.Errorf("navigate %s: %w", req.URL, err)
	}
	listener.startTimer(c.idleAfter)

	select {
	case <-listener.idle:
	case <-tabCtx.Done():
		return nil, fmt.Errorf("wait for network idle: %w", tabCtx.Err())
	}

	var html, title, location string
	err := chromedp.Run(tabCtx,
		chromedp.OuterHTML("html", &html),
		chromedp.Title(&title),
		chromedp.Location(&location),
	)
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	elapsed := time.Since(start)

	status := int(listener.status.Load())
	if status == 0 {
		status = http.StatusOK
	}
	listener.headerMu.Lock()
	headers := listener.headers.Clone()
	listener.headerMu.Unlock()

	return &model.Response{
		Request:    req,
		Headers:    headers,
		Body:       []byte(html),
		StatusCode: status,
		FinalURL:   location,
		Title:      title,
		FetchedAt:  time.Now(),
		Elapsed:    elapsed,
	}, nil
}

func (c *ChromedpClient) Get(ctx context.Context, url string) (*model.Response, error) {
	return c.Do(ctx, &model.Request{Method: http.MethodGet, URL: url})
}

func (c *ChromedpClient) Close() error {
	c.logger.Debug("closing chromedp webclient")
	c.closeBrowser()
	c.allocCancel()
	return nil
}
