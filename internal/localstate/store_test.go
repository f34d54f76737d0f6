package localstate_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/raysh454/fastscan/internal/localstate"
	"github.com/raysh454/fastscan/internal/testutil"
)

func openTemp(t *testing.T) (*localstate.Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state", "fastscan.db")
	s, err := localstate.Open(path, &testutil.DummyLogger{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return s, path
}

func TestOpen_NilLogger(t *testing.T) {
	t.Parallel()
	if _, err := localstate.Open(":memory:", nil); err == nil {
		t.Fatal("expected error for nil logger")
	}
}

func TestSetGet_RoundTrip(t *testing.T) {
	t.Parallel()
	s, _ := openTemp(t)
	defer s.Close()
	ctx := context.Background()

	if _, ok, _ := s.Get(ctx, "missing"); ok {
		t.Fatal("expected missing key")
	}
	if err := s.Set(ctx, "k", "v1"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Set(ctx, "k", "v2"); err != nil {
		t.Fatalf("Set overwrite: %v", err)
	}
	v, ok, err := s.Get(ctx, "k")
	if err != nil || !ok || v != "v2" {
		t.Fatalf("Get = %q, %v, %v", v, ok, err)
	}
}

func TestMarkRated_SurvivesReopen(t *testing.T) {
	t.Parallel()
	s, path := openTemp(t)
	ctx := context.Background()

	if err := s.MarkRated(ctx, "fast and clean site"); err != nil {
		t.Fatalf("MarkRated: %v", err)
	}
	if err := s.SetLastScanID(ctx, "scan-1"); err != nil {
		t.Fatalf("SetLastScanID: %v", err)
	}
	s.Close()

	reopened, err := localstate.Open(path, &testutil.DummyLogger{})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	rated, err := reopened.HasRated(ctx)
	if err != nil || !rated {
		t.Fatalf("expected has_rated after reopen, got %v (%v)", rated, err)
	}
	fb, _ := reopened.LastFeedback(ctx)
	if fb != "fast and clean site" {
		t.Errorf("unexpected last feedback %q", fb)
	}
	id, _ := reopened.LastScanID(ctx)
	if id != "scan-1" {
		t.Errorf("unexpected last scan id %q", id)
	}
}

func TestReset_KeepsVisitor(t *testing.T) {
	t.Parallel()
	s, _ := openTemp(t)
	defer s.Close()
	ctx := context.Background()

	_ = s.SaveVisitor(ctx, "v-1", "Brave Otter 42")
	_ = s.MarkRated(ctx, "one two three")
	_ = s.SetLastScanID(ctx, "scan-1")

	if err := s.Reset(ctx); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if rated, _ := s.HasRated(ctx); rated {
		t.Error("expected has_rated cleared")
	}
	if id, _ := s.LastScanID(ctx); id != "" {
		t.Errorf("expected last scan id cleared, got %q", id)
	}
	id, name, ok, err := s.Visitor(ctx)
	if err != nil || !ok || id != "v-1" || name != "Brave Otter 42" {
		t.Errorf("expected visitor kept, got %q %q %v %v", id, name, ok, err)
	}
}

func TestApplyResetParam(t *testing.T) {
	t.Parallel()
	s, _ := openTemp(t)
	defer s.Close()
	ctx := context.Background()

	_ = s.MarkRated(ctx, "one two three")

	did, err := s.ApplyResetParam(ctx, "foo=bar")
	if err != nil || did {
		t.Fatalf("expected no reset without param, got %v %v", did, err)
	}
	if rated, _ := s.HasRated(ctx); !rated {
		t.Fatal("state should be untouched")
	}

	did, err = s.ApplyResetParam(ctx, "reset=true&x=1")
	if err != nil || !did {
		t.Fatalf("expected reset, got %v %v", did, err)
	}
	if rated, _ := s.HasRated(ctx); rated {
		t.Error("expected has_rated cleared by reset=true")
	}
}

func TestVisitor_MissingUntilSaved(t *testing.T) {
	t.Parallel()
	s, err := localstate.Open(":memory:", &testutil.DummyLogger{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	if _, _, ok, _ := s.Visitor(context.Background()); ok {
		t.Fatal("expected no visitor in a fresh store")
	}
}
