package history_test

import (
	"testing"

	"github.com/raysh454/fastscan/internal/history"
	"github.com/raysh454/fastscan/internal/model"
)

func TestGroupByHost_TwoHosts(t *testing.T) {
	t.Parallel()
	entries := []model.ScanHistoryEntry{
		{ID: "1", URL: "https://a.com/x", Grade: "C", PerformanceScore: 72, Timestamp: 100},
		{ID: "2", URL: "b.com", Grade: "B", PerformanceScore: 85, Timestamp: 150},
		{ID: "3", URL: "http://A.com", Grade: "A", PerformanceScore: 93, Timestamp: 200},
	}

	groups := history.GroupByHost(entries)
	if len(groups) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(groups))
	}

	a, b := groups[0], groups[1]
	if a.Host != "a.com" || a.Count != 2 || a.LatestGrade != "A" || a.LatestScore != 93 || a.LatestTimestamp != 200 {
		t.Errorf("unexpected a.com group %+v", a)
	}
	if a.Entries[0].ID != "3" || a.Entries[1].ID != "1" {
		t.Errorf("expected a.com entries newest first, got %+v", a.Entries)
	}
	if b.Host != "b.com" || b.Count != 1 || b.LatestGrade != "B" || b.LatestScore != 85 {
		t.Errorf("unexpected b.com group %+v", b)
	}
}

func TestGroupByHost_SkipsInvalidURLs(t *testing.T) {
	t.Parallel()
	entries := []model.ScanHistoryEntry{
		{ID: "1", URL: "", Timestamp: 1},
		{ID: "2", URL: "http://", Timestamp: 2},
		{ID: "3", URL: "https://%zz", Timestamp: 3},
		{ID: "4", URL: "ok.com", Timestamp: 4},
	}
	groups := history.GroupByHost(entries)
	if len(groups) != 1 || groups[0].Host != "ok.com" {
		t.Fatalf("expected only ok.com, got %+v", groups)
	}
}

func TestGroupByHost_Empty(t *testing.T) {
	t.Parallel()
	if g := history.GroupByHost(nil); len(g) != 0 {
		t.Fatalf("expected no groups, got %d", len(g))
	}
}

func TestGroupFeedback_AveragesAndOrders(t *testing.T) {
	t.Parallel()
	entries := []model.FeedbackEntry{
		{ID: "f1", URL: "a.com", Rating: 4, Timestamp: 10},
		{ID: "f2", URL: "https://a.com/p", Rating: 2, Timestamp: 30},
		{ID: "f3", URL: "b.com", Rating: 5, Timestamp: 20},
	}
	groups := history.GroupFeedback(entries)
	if len(groups) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(groups))
	}
	if groups[0].Host != "a.com" || groups[0].AverageRating != 3 || groups[0].Entries[0].ID != "f2" {
		t.Errorf("unexpected first group %+v", groups[0])
	}
}

// ─── View ──────────────────────────────────────────────────────────────

func TestView_ToggleExpandsRows(t *testing.T) {
	t.Parallel()
	groups := history.GroupByHost([]model.ScanHistoryEntry{
		{ID: "1", URL: "a.com", Timestamp: 1},
		{ID: "2", URL: "a.com", Timestamp: 2},
		{ID: "3", URL: "b.com", Timestamp: 3},
	})
	v := history.NewView(groups)

	if rows := v.Rows(); len(rows) != 2 {
		t.Fatalf("collapsed view should have 2 rows, got %d", len(rows))
	}
	if !v.Toggle("a.com") || !v.Expanded("a.com") {
		t.Fatal("expected a.com expanded")
	}
	rows := v.Rows()
	if len(rows) != 4 {
		t.Fatalf("expanded view should have 4 rows, got %d", len(rows))
	}
	if rows[2].Depth != 1 || rows[2].Group.Host != "a.com" || rows[2].Entry != 0 {
		t.Errorf("unexpected detail row %+v", rows[2])
	}
	if v.Toggle("a.com") {
		t.Fatal("second toggle should collapse")
	}

	v.Toggle("b.com")
	v.SetGroups(groups[:1])
	if v.Expanded("b.com") {
		t.Error("expand state for a vanished host should be dropped")
	}
}

// ─── Changes ───────────────────────────────────────────────────────────

func TestChanges_ComparesNewestTwo(t *testing.T) {
	t.Parallel()
	g := history.GroupByHost([]model.ScanHistoryEntry{
		{URL: "a.com", Timestamp: 1, Bugs: []string{"ancient"}},
		{URL: "a.com", Timestamp: 2, Bugs: []string{"Missing H1 tag", "Missing meta description"}},
		{URL: "a.com", Timestamp: 3, Bugs: []string{"Missing meta description", "Slow load time (3.4s)"}},
	})[0]

	c, ok := history.Changes(g)
	if !ok {
		t.Fatal("expected changes for a host with 3 scans")
	}
	if len(c.Added) != 1 || c.Added[0] != "Slow load time (3.4s)" {
		t.Errorf("unexpected added %v", c.Added)
	}
	if len(c.Removed) != 1 || c.Removed[0] != "Missing H1 tag" {
		t.Errorf("unexpected removed %v", c.Removed)
	}
}

func TestChanges_SingleScanHasNone(t *testing.T) {
	t.Parallel()
	g := history.GroupByHost([]model.ScanHistoryEntry{{URL: "a.com", Timestamp: 1}})[0]
	if _, ok := history.Changes(g); ok {
		t.Fatal("expected no comparison for a single scan")
	}
}

func TestChanges_IdenticalBugsAreEmpty(t *testing.T) {
	t.Parallel()
	g := history.GroupByHost([]model.ScanHistoryEntry{
		{URL: "a.com", Timestamp: 1, Bugs: []string{"x", "y"}},
		{URL: "a.com", Timestamp: 2, Bugs: []string{"y", "x"}},
	})[0]
	c, ok := history.Changes(g)
	if !ok || !c.Empty() {
		t.Fatalf("expected empty changes, got %+v", c)
	}
}
