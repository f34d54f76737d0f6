package backend_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/raysh454/fastscan/internal/backend"
	"github.com/raysh454/fastscan/internal/model"
)

func openStore(t *testing.T) *backend.Store {
	t.Helper()
	st, err := backend.OpenStore(":memory:")
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func scanRec(id, host string, ts int64, score float64, rating model.SafetyRating) *backend.ScanRecord {
	return &backend.ScanRecord{
		ScanResult: model.ScanResult{
			ID:               id,
			URL:              host,
			Title:            "Title " + host,
			Grade:            backend.Grade(score),
			PerformanceScore: score,
			Status:           200,
			IsSafe:           !rating.IsAdult(),
			SafetyStatus:     string(rating),
			Bugs:             []string{"Missing H1 tag (SEO issue)"},
			ScanMethod:       backend.MethodLegacy,
			Timestamp:        ts,
		},
		Host:   host,
		Safety: model.KidsSafety{Rating: rating, Score: 50, Confidence: "low"},
	}
}

func insertScans(t *testing.T, st *backend.Store, recs ...*backend.ScanRecord) {
	t.Helper()
	for _, r := range recs {
		if err := st.InsertScan(context.Background(), r); err != nil {
			t.Fatalf("InsertScan %s: %v", r.ID, err)
		}
	}
}

// ─── Scans ─────────────────────────────────────────────────────────────

func TestStore_GetScanRoundTripsBugsAndSafety(t *testing.T) {
	t.Parallel()
	st := openStore(t)
	insertScans(t, st, scanRec("s1", "a.com", 100, 90, model.SafetyMature))

	got, err := st.GetScan(context.Background(), "s1")
	if err != nil {
		t.Fatalf("GetScan: %v", err)
	}
	if got.Host != "a.com" || got.Grade != "A" || got.IsSafe {
		t.Errorf("unexpected record %+v", got)
	}
	if len(got.Bugs) != 1 || got.Safety.Rating != model.SafetyMature {
		t.Errorf("bugs/safety not restored: %+v %+v", got.Bugs, got.Safety)
	}

	if _, err := st.GetScan(context.Background(), "missing"); !errors.Is(err, backend.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_RecentScansNewestFirst(t *testing.T) {
	t.Parallel()
	st := openStore(t)
	insertScans(t, st,
		scanRec("s1", "a.com", 100, 90, model.SafetyTeen),
		scanRec("s2", "b.com", 300, 80, model.SafetyTeen),
		scanRec("s3", "a.com", 200, 70, model.SafetyTeen),
	)

	got, err := st.RecentScans(context.Background(), 2)
	if err != nil {
		t.Fatalf("RecentScans: %v", err)
	}
	if len(got) != 2 || got[0].ID != "s2" || got[1].ID != "s3" {
		t.Fatalf("unexpected order %+v", got)
	}
	if len(got[0].Bugs) != 1 {
		t.Errorf("expected bugs decoded, got %v", got[0].Bugs)
	}
}

func TestStore_SearchReturnsLatestScanPerHost(t *testing.T) {
	t.Parallel()
	st := openStore(t)
	insertScans(t, st,
		scanRec("a-old", "a.com", 100, 50, model.SafetyTeen),
		scanRec("a-new", "a.com", 300, 95, model.SafetySafeForAll),
		scanRec("b", "b.com", 200, 75, model.SafetyMature),
	)
	ctx := context.Background()

	res, total, err := st.SearchWebsites(ctx, model.SearchQuery{})
	if err != nil {
		t.Fatalf("SearchWebsites: %v", err)
	}
	if total != 2 || len(res) != 2 {
		t.Fatalf("expected 2 hosts, got total=%d rows=%d", total, len(res))
	}
	if res[0].ID != "a-new" || res[0].KidsSafety.Rating != model.SafetySafeForAll {
		t.Errorf("expected newest a.com scan first, got %+v", res[0])
	}

	res, total, _ = st.SearchWebsites(ctx, model.SearchQuery{Q: "b.c"})
	if total != 1 || res[0].URL != "b.com" {
		t.Errorf("expected only b.com for q=b.c, got %+v", res)
	}

	res, _, _ = st.SearchWebsites(ctx, model.SearchQuery{Filter: model.FilterUnsafe})
	if len(res) != 1 || res[0].ID != "b" {
		t.Errorf("expected unsafe filter to return b, got %+v", res)
	}
	res, _, _ = st.SearchWebsites(ctx, model.SearchQuery{Filter: model.FilterSafe})
	if len(res) != 1 || res[0].ID != "a-new" {
		t.Errorf("expected safe filter to return a-new, got %+v", res)
	}

	res, _, _ = st.SearchWebsites(ctx, model.SearchQuery{Sort: model.SortName})
	if res[0].URL != "a.com" || res[1].URL != "b.com" {
		t.Errorf("expected name order, got %+v", res)
	}
}

func TestStore_SearchPaginates(t *testing.T) {
	t.Parallel()
	st := openStore(t)
	insertScans(t, st,
		scanRec("1", "a.com", 1, 90, model.SafetyTeen),
		scanRec("2", "b.com", 2, 90, model.SafetyTeen),
		scanRec("3", "c.com", 3, 90, model.SafetyTeen),
	)

	res, total, err := st.SearchWebsites(context.Background(), model.SearchQuery{Page: 2, PerPage: 2})
	if err != nil {
		t.Fatalf("SearchWebsites: %v", err)
	}
	if total != 3 || len(res) != 1 || res[0].URL != "a.com" {
		t.Errorf("unexpected page 2: total=%d %+v", total, res)
	}
}

func TestStore_LatestScanForHost(t *testing.T) {
	t.Parallel()
	st := openStore(t)
	insertScans(t, st,
		scanRec("old", "a.com", 1, 90, model.SafetyTeen),
		scanRec("new", "a.com", 2, 90, model.SafetyTeen),
	)
	got, err := st.LatestScanForHost(context.Background(), "a.com")
	if err != nil || got.ID != "new" {
		t.Fatalf("expected new, got %+v, %v", got, err)
	}
	if _, err := st.LatestScanForHost(context.Background(), "z.com"); !errors.Is(err, backend.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

// ─── Feedback & stats ──────────────────────────────────────────────────

func TestStore_FeedbackAndStats(t *testing.T) {
	t.Parallel()
	st := openStore(t)
	ctx := context.Background()
	insertScans(t, st,
		scanRec("s1", "a.com", 1, 90, model.SafetyTeen),
		scanRec("s2", "a.com", 2, 90, model.SafetyTeen),
		scanRec("s3", "b.com", 3, 90, model.SafetyTeen),
	)
	for i, rating := range []int{4, 2} {
		err := st.InsertFeedback(ctx, &backend.FeedbackRecord{
			ID: []string{"f1", "f2"}[i], ScanID: "s1", VisitorID: "v", VisitorName: "Sunny Otter 07",
			Rating: rating, Comment: "good enough site", CreatedAt: int64(10 + i),
		})
		if err != nil {
			t.Fatalf("InsertFeedback: %v", err)
		}
	}

	stats, err := st.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	want := model.Stats{TotalScans: 3, TotalRatings: 2, AverageRating: 3, UniqueSites: 2}
	if *stats != want {
		t.Errorf("stats = %+v, want %+v", *stats, want)
	}

	fb, err := st.RecentFeedback(ctx, 10)
	if err != nil {
		t.Fatalf("RecentFeedback: %v", err)
	}
	if len(fb) != 2 || fb[0].Rating != 2 || fb[0].URL != "a.com" {
		t.Errorf("unexpected feedback %+v", fb)
	}
}

// ─── Captchas & visitors ───────────────────────────────────────────────

func TestStore_TakeCaptchaIsSingleUse(t *testing.T) {
	t.Parallel()
	st := openStore(t)
	ctx := context.Background()
	if err := st.InsertCaptcha(ctx, "c1", 7); err != nil {
		t.Fatalf("InsertCaptcha: %v", err)
	}

	got, err := st.TakeCaptcha(ctx, "c1", time.Minute)
	if err != nil || got != 7 {
		t.Fatalf("TakeCaptcha = %d, %v", got, err)
	}
	if _, err := st.TakeCaptcha(ctx, "c1", time.Minute); !errors.Is(err, backend.ErrNotFound) {
		t.Errorf("expected second take to fail with ErrNotFound, got %v", err)
	}
}

func TestStore_VisitorDefaultsAndUpsert(t *testing.T) {
	t.Parallel()
	st := openStore(t)
	ctx := context.Background()

	v, err := st.GetVisitor(ctx, "v1")
	if err != nil {
		t.Fatalf("GetVisitor: %v", err)
	}
	if v.RatingCount != 0 || v.Locked {
		t.Errorf("expected zero visitor, got %+v", v)
	}

	v.RatingCount = 2
	v.PinAttempts = 1
	v.Locked = true
	if err := st.SaveVisitor(ctx, v); err != nil {
		t.Fatalf("SaveVisitor: %v", err)
	}
	got, _ := st.GetVisitor(ctx, "v1")
	if got.RatingCount != 2 || got.PinAttempts != 1 || !got.Locked {
		t.Errorf("visitor not persisted: %+v", got)
	}
}
