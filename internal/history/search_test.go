package history_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/raysh454/fastscan/internal/history"
	"github.com/raysh454/fastscan/internal/model"
	"github.com/raysh454/fastscan/internal/testutil"
)

type fakeSearchAPI struct {
	mu       sync.Mutex
	queries  []model.SearchQuery
	scanned  []string
	indexed  map[string]bool
	scanFail bool
}

func (f *fakeSearchAPI) SearchWebsites(_ context.Context, q model.SearchQuery) (*model.SearchResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	resp := &model.SearchResponse{Page: q.Page, PerPage: q.PerPage}
	for url := range f.indexed {
		if url == q.Q {
			resp.Results = append(resp.Results, model.Website{ID: "w-" + url, URL: url})
		}
	}
	resp.Total = len(resp.Results)
	return resp, nil
}

func (f *fakeSearchAPI) ScanNew(_ context.Context, target string) (*model.ScanNewResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scanned = append(f.scanned, target)
	if f.scanFail {
		return &model.ScanNewResponse{}, nil
	}
	if f.indexed == nil {
		f.indexed = map[string]bool{}
	}
	f.indexed[target] = true
	return &model.ScanNewResponse{Website: &model.Website{URL: target}}, nil
}

func (f *fakeSearchAPI) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queries), len(f.scanned)
}

func TestSearcher_DebouncesToLastQuery(t *testing.T) {
	t.Parallel()
	api := &fakeSearchAPI{indexed: map[string]bool{"abc.com": true}}
	results := make(chan history.SearchResult, 4)
	s := history.NewSearcher(api, 30*time.Millisecond, func(r history.SearchResult) { results <- r }, &testutil.DummyLogger{})
	defer s.Close()

	s.SetQuery("a")
	s.SetQuery("ab")
	s.SetQuery("abc.com")

	select {
	case r := <-results:
		if r.Query != "abc.com" || r.Err != nil || r.Response.Total != 1 {
			t.Fatalf("unexpected result %+v", r)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("debounced search never fired")
	}

	time.Sleep(100 * time.Millisecond)
	if q, _ := api.counts(); q != 1 {
		t.Errorf("expected exactly one search request, got %d", q)
	}
	api.mu.Lock()
	first := api.queries[0]
	api.mu.Unlock()
	if first.Page != 1 || first.PerPage != model.DefaultPerPage || first.Filter != model.FilterAll || first.Sort != model.SortRecent {
		t.Errorf("unexpected query %+v", first)
	}
}

func TestSearcher_EmptyQueryClearsWithoutRequest(t *testing.T) {
	t.Parallel()
	api := &fakeSearchAPI{}
	var got []history.SearchResult
	s := history.NewSearcher(api, 10*time.Millisecond, func(r history.SearchResult) { got = append(got, r) }, &testutil.DummyLogger{})
	defer s.Close()

	s.SetQuery("   ")
	if len(got) != 1 || got[0].Response == nil || len(got[0].Response.Results) != 0 {
		t.Fatalf("expected one immediate empty result, got %+v", got)
	}

	resp, err := s.Search(context.Background(), 1)
	if err != nil || resp.Total != 0 {
		t.Fatalf("Search empty: %+v %v", resp, err)
	}
	time.Sleep(50 * time.Millisecond)
	if q, _ := api.counts(); q != 0 {
		t.Errorf("expected no requests, got %d", q)
	}
}

// slowSearchAPI holds every search until release is closed.
type slowSearchAPI struct {
	fakeSearchAPI
	started chan struct{}
	release chan struct{}
}

func (f *slowSearchAPI) SearchWebsites(ctx context.Context, q model.SearchQuery) (*model.SearchResponse, error) {
	select {
	case f.started <- struct{}{}:
	default:
	}
	<-f.release
	return f.fakeSearchAPI.SearchWebsites(ctx, q)
}

func TestSearcher_DropsResultsForChangedQuery(t *testing.T) {
	t.Parallel()
	api := &slowSearchAPI{
		fakeSearchAPI: fakeSearchAPI{indexed: map[string]bool{"abc.com": true}},
		started:       make(chan struct{}, 1),
		release:       make(chan struct{}),
	}
	results := make(chan history.SearchResult, 4)
	s := history.NewSearcher(api, 10*time.Millisecond, func(r history.SearchResult) { results <- r }, &testutil.DummyLogger{})
	defer s.Close()

	s.SetQuery("abc.com")
	select {
	case <-api.started:
	case <-time.After(2 * time.Second):
		t.Fatal("search never started")
	}

	s.SetQuery("")
	close(api.release)
	time.Sleep(100 * time.Millisecond)

	var got []history.SearchResult
drain:
	for {
		select {
		case r := <-results:
			got = append(got, r)
		default:
			break drain
		}
	}
	if len(got) != 1 || got[0].Query != "" || len(got[0].Response.Results) != 0 {
		t.Fatalf("expected only the cleared result, got %+v", got)
	}
	if q, _ := api.counts(); q != 1 {
		t.Errorf("expected the in-flight request to finish, got %d requests", q)
	}
}

func TestSearcher_ZeroResultDomainAutoScansOncePerQuery(t *testing.T) {
	t.Parallel()
	api := &fakeSearchAPI{scanFail: true}
	s := history.NewSearcher(api, time.Hour, nil, &testutil.DummyLogger{})
	defer s.Close()
	ctx := context.Background()

	s.SetQuery("https://www.new-site.com/page")
	for i := 0; i < 3; i++ {
		if _, err := s.Search(ctx, 1); err != nil {
			t.Fatalf("Search: %v", err)
		}
	}
	_, scans := api.counts()
	if scans != 1 {
		t.Fatalf("expected exactly one auto scan, got %d", scans)
	}
	if api.scanned[0] != "new-site.com" {
		t.Errorf("expected extracted domain, got %q", api.scanned[0])
	}
}

func TestSearcher_AutoScanRequeries(t *testing.T) {
	t.Parallel()
	api := &fakeSearchAPI{}
	results := make(chan history.SearchResult, 1)
	s := history.NewSearcher(api, 10*time.Millisecond, func(r history.SearchResult) { results <- r }, &testutil.DummyLogger{})
	defer s.Close()

	s.SetQuery("fresh.org")
	select {
	case r := <-results:
		if !r.AutoScanned || r.Response.Total != 1 {
			t.Fatalf("expected auto scan plus re-query hit, got %+v", r)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("search never fired")
	}
	if q, scans := api.counts(); q != 2 || scans != 1 {
		t.Errorf("expected 2 searches and 1 scan, got %d and %d", q, scans)
	}
}

func TestSearcher_NonDomainQueryDoesNotAutoScan(t *testing.T) {
	t.Parallel()
	api := &fakeSearchAPI{}
	s := history.NewSearcher(api, time.Hour, nil, &testutil.DummyLogger{})
	defer s.Close()

	s.SetQuery("news")
	if _, err := s.Search(context.Background(), 1); err != nil {
		t.Fatalf("Search: %v", err)
	}
	if _, scans := api.counts(); scans != 0 {
		t.Fatalf("expected no auto scan for %q", "news")
	}
}

func TestSearcher_LaterPagesDoNotAutoScan(t *testing.T) {
	t.Parallel()
	api := &fakeSearchAPI{}
	s := history.NewSearcher(api, time.Hour, nil, &testutil.DummyLogger{})
	defer s.Close()

	s.SetQuery("nothing.com")
	if _, err := s.Search(context.Background(), 2); err != nil {
		t.Fatalf("Search: %v", err)
	}
	if _, scans := api.counts(); scans != 0 {
		t.Fatal("page 2 must not trigger an auto scan")
	}
}

func TestSearcher_FilterAndSortFallbacks(t *testing.T) {
	t.Parallel()
	api := &fakeSearchAPI{}
	s := history.NewSearcher(api, time.Hour, nil, &testutil.DummyLogger{})
	defer s.Close()

	s.SetQuery("x")
	s.SetFilter("bogus")
	s.SetSort(model.SortName)
	if _, err := s.Search(context.Background(), 1); err != nil {
		t.Fatalf("Search: %v", err)
	}
	q := api.queries[0]
	if q.Filter != model.FilterAll || q.Sort != model.SortName {
		t.Errorf("unexpected filter/sort %q/%q", q.Filter, q.Sort)
	}
}

func TestSearcher_ScanNewRejectsNonDomain(t *testing.T) {
	t.Parallel()
	s := history.NewSearcher(&fakeSearchAPI{}, time.Hour, nil, &testutil.DummyLogger{})
	defer s.Close()
	if _, err := s.ScanNew(context.Background(), "nodot"); err == nil {
		t.Fatal("expected validation error")
	}
}
