package apiclient_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/raysh454/fastscan/internal/apiclient"
	"github.com/raysh454/fastscan/internal/model"
	"github.com/raysh454/fastscan/internal/testutil"
	"github.com/raysh454/fastscan/internal/webclient"
)

func newClient(t *testing.T, h http.Handler, opts ...apiclient.Option) *apiclient.Client {
	t.Helper()
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)
	wc, err := webclient.NewNetHTTPClient(webclient.Config{}, &testutil.DummyLogger{}, ts.Client())
	if err != nil {
		t.Fatalf("NewNetHTTPClient: %v", err)
	}
	return apiclient.New(ts.URL, wc, &testutil.DummyLogger{}, opts...)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// ─── Success paths ─────────────────────────────────────────────────────

func TestScan_PostsURLAndDecodesResult(t *testing.T) {
	t.Parallel()
	var gotBody model.ScanRequest
	var gotUA, gotVisitor string
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/scan" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		gotUA = r.Header.Get("User-Agent")
		gotVisitor = r.Header.Get(apiclient.HeaderVisitorID)
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotBody)
		writeJSON(w, http.StatusOK, model.ScanResult{ID: "s1", Grade: "B", PerformanceScore: 84})
	}), apiclient.WithVisitorID("v-1"))

	res, err := c.Scan(context.Background(), "example.com")
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if res.ID != "s1" || res.Grade != "B" {
		t.Errorf("unexpected result %+v", res)
	}
	if gotBody.URL != "example.com" {
		t.Errorf("expected url example.com in body, got %q", gotBody.URL)
	}
	if gotUA != apiclient.DefaultUserAgent {
		t.Errorf("expected default user agent, got %q", gotUA)
	}
	if gotVisitor != "v-1" {
		t.Errorf("expected visitor header v-1, got %q", gotVisitor)
	}
}

func TestSearchWebsites_EncodesQuery(t *testing.T) {
	t.Parallel()
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("q") != "abc.com" || q.Get("page") != "2" || q.Get("per_page") != "20" ||
			q.Get("filter") != "safe" || q.Get("sort") != "score" {
			t.Errorf("unexpected query %v", q)
		}
		writeJSON(w, http.StatusOK, model.SearchResponse{Total: 1, Page: 2, PerPage: 20,
			Results: []model.Website{{ID: "w1", URL: "abc.com"}}})
	}))

	resp, err := c.SearchWebsites(context.Background(), model.SearchQuery{
		Q: "abc.com", Page: 2, PerPage: 20, Filter: model.FilterSafe, Sort: model.SortScore,
	})
	if err != nil {
		t.Fatalf("SearchWebsites: %v", err)
	}
	if resp.Total != 1 || len(resp.Results) != 1 {
		t.Errorf("unexpected response %+v", resp)
	}
}

func TestCheckRatingStatus_SendsVisitorID(t *testing.T) {
	t.Parallel()
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("visitor_id") != "v-9" {
			t.Errorf("expected visitor_id query, got %q", r.URL.RawQuery)
		}
		writeJSON(w, http.StatusOK, model.RatingStatus{CanRate: false, NeedsPin: true, PinAttemptsRemaining: 3})
	}), apiclient.WithVisitorID("v-9"))

	st, err := c.CheckRatingStatus(context.Background())
	if err != nil {
		t.Fatalf("CheckRatingStatus: %v", err)
	}
	if !st.NeedsPin || st.PinAttemptsRemaining != 3 {
		t.Errorf("unexpected status %+v", st)
	}
}

// ─── Error taxonomy ────────────────────────────────────────────────────

func TestAPIError_CarriesServerMessage(t *testing.T) {
	t.Parallel()
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": "Could not reach site"})
	}))

	_, err := c.Scan(context.Background(), "down.example")
	var ae *apiclient.APIError
	if !errors.As(err, &ae) {
		t.Fatalf("expected *APIError, got %T: %v", err, err)
	}
	if ae.Status != http.StatusUnprocessableEntity || ae.Message != "Could not reach site" {
		t.Errorf("unexpected api error %+v", ae)
	}
	if apiclient.UserMessage(err) != "Could not reach site" {
		t.Errorf("unexpected user message %q", apiclient.UserMessage(err))
	}
}

func TestAPIError_FallsBackToMessageField(t *testing.T) {
	t.Parallel()
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "boom"})
	}))
	_, err := c.Stats(context.Background())
	var ae *apiclient.APIError
	if !errors.As(err, &ae) || ae.Message != "boom" {
		t.Fatalf("expected APIError with message boom, got %v", err)
	}
}

func TestConnectivityError_OnUnreachableBackend(t *testing.T) {
	t.Parallel()
	wc, _ := webclient.NewNetHTTPClient(webclient.Config{}, &testutil.DummyLogger{}, nil)
	c := apiclient.New("http://127.0.0.1:1", wc, &testutil.DummyLogger{})

	_, err := c.Stats(context.Background())
	if !apiclient.IsConnectivity(err) {
		t.Fatalf("expected connectivity error, got %v", err)
	}
	if apiclient.UserMessage(err) != apiclient.ConnectivityMessage {
		t.Errorf("unexpected user message %q", apiclient.UserMessage(err))
	}
}

func TestConnectivityError_OnNonJSONBody(t *testing.T) {
	t.Parallel()
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "<html>gateway</html>")
	}))
	_, err := c.Captcha(context.Background())
	if !apiclient.IsConnectivity(err) {
		t.Fatalf("expected connectivity error for undecodable body, got %v", err)
	}
}

// ─── Guarded rating responses ──────────────────────────────────────────

func TestRate_LockedResponseIsNotAnError(t *testing.T) {
	t.Parallel()
	var got model.RateRequest
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		writeJSON(w, http.StatusLocked, model.RateResponse{Locked: true, Error: "locked"})
	}), apiclient.WithVisitorID("v-2"))

	resp, err := c.Rate(context.Background(), model.RateRequest{ScanID: "s1", Rating: 4, CaptchaID: "c", CaptchaAnswer: "3"})
	if err != nil {
		t.Fatalf("Rate: %v", err)
	}
	if !resp.Locked {
		t.Errorf("expected locked response, got %+v", resp)
	}
	if got.VisitorID != "v-2" {
		t.Errorf("expected visitor id filled from client, got %q", got.VisitorID)
	}
}

func TestVerifyPin_WrongPinReportsRemaining(t *testing.T) {
	t.Parallel()
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusUnauthorized, model.PinVerifyResponse{AttemptsRemaining: model.Attempts(1), Error: "wrong pin"})
	}))
	resp, err := c.VerifyPin(context.Background(), "0000")
	if err != nil {
		t.Fatalf("VerifyPin: %v", err)
	}
	if n, ok := resp.Remaining(); resp.Success || !ok || n != 1 {
		t.Errorf("unexpected response %+v", resp)
	}
}

func TestVerifyPin_BadRequestIsAPIError(t *testing.T) {
	t.Parallel()
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing visitor_id"})
	}))
	resp, err := c.VerifyPin(context.Background(), "1234")
	var ae *apiclient.APIError
	if !errors.As(err, &ae) {
		t.Fatalf("expected *APIError, got %T: %v (resp %+v)", err, err, resp)
	}
	if ae.Status != http.StatusBadRequest || ae.Message != "missing visitor_id" {
		t.Errorf("unexpected error %+v", ae)
	}
}

func TestRate_BadRequestDecodesRejection(t *testing.T) {
	t.Parallel()
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusBadRequest, model.RateResponse{Error: "Incorrect captcha"})
	}))
	resp, err := c.Rate(context.Background(), model.RateRequest{ScanID: "s1", Rating: 4, CaptchaID: "c", CaptchaAnswer: "9"})
	if err != nil {
		t.Fatalf("Rate: %v", err)
	}
	if resp.Error != "Incorrect captcha" {
		t.Errorf("unexpected response %+v", resp)
	}
}
