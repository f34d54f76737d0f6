package history

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/raysh454/fastscan/internal/logging"
	"github.com/raysh454/fastscan/internal/model"
	"github.com/raysh454/fastscan/internal/utils"
)

const DefaultDebounce = 300 * time.Millisecond

// SearchAPI is the part of the backend client the searcher uses.
type SearchAPI interface {
	SearchWebsites(ctx context.Context, q model.SearchQuery) (*model.SearchResponse, error)
	ScanNew(ctx context.Context, target string) (*model.ScanNewResponse, error)
}

// SearchResult is delivered to the OnResults callback after a debounced search.
type SearchResult struct {
	Query       string
	Response    *model.SearchResponse
	AutoScanned bool
	Err         error
}

// Searcher runs server-side website search. Query changes are debounced; a
// domain-shaped query with no results is scanned once and searched again.
type Searcher struct {
	api       SearchAPI
	logger    logging.Logger
	debounce  time.Duration
	onResults func(SearchResult)

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	query       string
	filter      string
	sort        string
	gen         uint64
	timer       *time.Timer
	autoScanned map[string]bool
}

// NewSearcher builds a Searcher. A debounce <= 0 uses DefaultDebounce.
func NewSearcher(api SearchAPI, debounce time.Duration, onResults func(SearchResult), logger logging.Logger) *Searcher {
	if logger == nil {
		logger = logging.Nop()
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Searcher{
		api:         api,
		logger:      logger.With(logging.Field{Key: "component", Value: "search"}),
		debounce:    debounce,
		onResults:   onResults,
		ctx:         ctx,
		cancel:      cancel,
		filter:      model.FilterAll,
		sort:        model.SortRecent,
		autoScanned: make(map[string]bool),
	}
}

// SetQuery records q and restarts the debounce timer. An empty query clears
// the results immediately without a request.
func (s *Searcher) SetQuery(q string) {
	s.mu.Lock()
	s.query = strings.TrimSpace(q)
	empty := s.query == ""
	s.rearmLocked()
	s.mu.Unlock()

	if empty && s.onResults != nil {
		s.onResults(SearchResult{Response: &model.SearchResponse{Page: 1, PerPage: model.DefaultPerPage}})
	}
}

// SetFilter changes the safety filter; unknown values fall back to all.
func (s *Searcher) SetFilter(f string) {
	switch f {
	case model.FilterAll, model.FilterSafe, model.FilterUnsafe:
	default:
		f = model.FilterAll
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filter = f
	s.rearmLocked()
}

// SetSort changes the ordering; unknown values fall back to recent.
func (s *Searcher) SetSort(o string) {
	switch o {
	case model.SortRecent, model.SortScore, model.SortName:
	default:
		o = model.SortRecent
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sort = o
	s.rearmLocked()
}

// rearmLocked stops any pending timer and, for a non-empty query, starts a
// new one. Callers hold s.mu.
func (s *Searcher) rearmLocked() {
	s.gen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.query == "" {
		return
	}
	gen := s.gen
	s.timer = time.AfterFunc(s.debounce, func() { s.fire(gen) })
}

func (s *Searcher) fire(gen uint64) {
	s.mu.Lock()
	stale := gen != s.gen
	query := s.query
	s.mu.Unlock()
	if stale || s.ctx.Err() != nil {
		return
	}

	resp, scanned, err := s.search(s.ctx, query, 1)

	// The query may have changed while the request was in flight.
	s.mu.Lock()
	stale = gen != s.gen
	s.mu.Unlock()
	if stale {
		s.logger.Debug("dropping stale search results", logging.Field{Key: "query", Value: query})
		return
	}
	if s.onResults != nil {
		s.onResults(SearchResult{Query: query, Response: resp, AutoScanned: scanned, Err: err})
	}
}

// Search runs the current query for page immediately.
func (s *Searcher) Search(ctx context.Context, page int) (*model.SearchResponse, error) {
	s.mu.Lock()
	query := s.query
	s.mu.Unlock()
	resp, _, err := s.search(ctx, query, page)
	return resp, err
}

func (s *Searcher) search(ctx context.Context, query string, page int) (*model.SearchResponse, bool, error) {
	if page < 1 {
		page = 1
	}
	if query == "" && page == 1 {
		return &model.SearchResponse{Page: 1, PerPage: model.DefaultPerPage}, false, nil
	}

	resp, err := s.runQuery(ctx, query, page)
	if err != nil {
		return nil, false, err
	}
	if resp.Total > 0 || page != 1 {
		return resp, false, nil
	}

	domain := utils.ExtractDomain(query)
	if !strings.Contains(domain, ".") || !s.claimAutoScan(query) {
		return resp, false, nil
	}

	s.logger.Info("no results, scanning domain", logging.Field{Key: "domain", Value: domain})
	if _, err := s.api.ScanNew(ctx, domain); err != nil {
		s.logger.Warn("auto scan failed", logging.Field{Key: "domain", Value: domain}, logging.Field{Key: "error", Value: err.Error()})
		return resp, true, nil
	}

	resp, err = s.runQuery(ctx, query, 1)
	if err != nil {
		return nil, true, err
	}
	return resp, true, nil
}

// claimAutoScan reports whether query has not been auto-scanned yet and marks it.
func (s *Searcher) claimAutoScan(query string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.autoScanned[query] {
		return false
	}
	s.autoScanned[query] = true
	return true
}

func (s *Searcher) runQuery(ctx context.Context, query string, page int) (*model.SearchResponse, error) {
	s.mu.Lock()
	q := model.SearchQuery{Q: query, Page: page, PerPage: model.DefaultPerPage, Filter: s.filter, Sort: s.sort}
	s.mu.Unlock()

	resp, err := s.api.SearchWebsites(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}
	return resp, nil
}

// ScanNew adds target to the index by hand.
func (s *Searcher) ScanNew(ctx context.Context, target string) (*model.ScanNewResponse, error) {
	domain := utils.ExtractDomain(target)
	if !utils.LooksLikeDomain(domain) {
		return nil, utils.ErrInvalidURL
	}
	resp, err := s.api.ScanNew(ctx, domain)
	if err != nil {
		return nil, fmt.Errorf("scan new %s: %w", domain, err)
	}
	return resp, nil
}

// Close stops any pending search.
func (s *Searcher) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	if s.timer != nil {
		s.timer.Stop()
	}
	s.cancel()
}
