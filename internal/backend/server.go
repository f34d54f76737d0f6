package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/raysh454/fastscan/internal/logging"
	"github.com/raysh454/fastscan/internal/model"
	"github.com/raysh454/fastscan/internal/utils"
	"github.com/raysh454/fastscan/internal/webclient"
)

const (
	defaultListLimit = 10
	maxListLimit     = 100
	headerVisitorID  = "X-Visitor-ID"
)

// Server is the HTTP + WebSocket API surface of the scanner service.
type Server struct {
	cfg      Config
	store    *Store
	scanner  *Scanner
	safety   *SafetyChecker
	captchas *Captchas
	ratings  *Ratings
	limiter  *visitorLimiter
	hub      *statsHub
	router   chi.Router
	upgrader websocket.Upgrader
	logger   logging.Logger
	clients  []webclient.WebClient
}

// NewServer opens the store, builds the web clients and wires the routes.
func NewServer(cfg Config) (*Server, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewStdoutLogger("backend")
	}
	if cfg.DBPath == "" {
		cfg.DBPath = DefaultConfig().DBPath
	}

	store, err := OpenStore(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	s := &Server{
		cfg:    cfg,
		store:  store,
		router: chi.NewRouter(),
		logger: logger,
		hub:    newStatsHub(logger),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		limiter: newVisitorLimiter(cfg.ScanRate, cfg.ScanBurst),
	}

	browser, legacy, err := s.buildClients()
	if err != nil {
		store.Close()
		return nil, err
	}
	s.scanner, err = NewScanner(browser, legacy, logger)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.safety = NewSafetyChecker(cfg.SafeBrowsingKey, legacy, logger)
	s.captchas = NewCaptchas(store)
	s.ratings = NewRatings(store, s.captchas, logger)

	s.routes()
	return s, nil
}

// buildClients returns the optional browser client and the plain HTTP
// client. A browser that cannot start only costs the browser scan method.
func (s *Server) buildClients() (webclient.WebClient, webclient.WebClient, error) {
	browser, legacy := s.cfg.Browser, s.cfg.Legacy

	if legacy == nil {
		fetch := s.cfg.Fetch
		fetch.Client = webclient.ClientNetHTTP
		wc, err := webclient.NewWebClient(fetch, s.logger)
		if err != nil {
			return nil, nil, fmt.Errorf("creating http client: %w", err)
		}
		legacy = wc
		s.clients = append(s.clients, wc)
	}

	if browser == nil && s.cfg.Fetch.Client == webclient.ClientChromedp {
		wc, err := webclient.NewWebClient(s.cfg.Fetch, s.logger)
		if err != nil {
			s.logger.Warn("browser unavailable, using legacy scans only", logging.Field{Key: "error", Value: err.Error()})
		} else {
			browser = wc
			s.clients = append(s.clients, wc)
		}
	}
	return browser, legacy, nil
}

func (s *Server) routes() {
	r := s.router

	r.Use(s.corsMiddleware)

	// CORS preflight
	r.Options("/api/*", s.optionsHandler("GET, POST"))

	r.Get("/api/health", s.handleHealth)

	// Scans
	r.Post("/api/scan", s.handleScan)
	r.Post("/api/check-content-safety", s.handleCheckContentSafety)
	r.Get("/api/recent-scans", s.handleRecentScans)
	r.Get("/api/stats", s.handleStats)

	// Ratings
	r.Get("/api/recent-feedback", s.handleRecentFeedback)
	r.Get("/api/captcha", s.handleCaptcha)
	r.Post("/api/rate", s.handleRate)
	r.Get("/api/check-rating-status", s.handleCheckRatingStatus)
	r.Post("/api/verify-pin", s.handleVerifyPin)

	// Search
	r.Get("/api/websites/search", s.handleSearchWebsites)
	r.Post("/api/websites/scan-new", s.handleScanNew)

	// Live stats
	r.Get("/ws/stats", s.handleStatsWS)

	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+headerVisitorID)
		w.Header().Set("Access-Control-Max-Age", "86400")

		next.ServeHTTP(w, r)
	})
}

func (s *Server) optionsHandler(methods string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Methods", methods)
		w.WriteHeader(http.StatusNoContent)
	}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	fields := []logging.Field{
		{Key: "method", Value: r.Method},
		{Key: "path", Value: r.URL.Path},
	}

	if q := r.URL.Query(); len(q) > 0 {
		fields = append(fields, logging.Field{Key: "query", Value: q})
	}

	if r.Body != nil && r.Method == http.MethodPost && r.URL.Path != "/api/verify-pin" && r.URL.Path != "/api/rate" {
		if bodyBytes, err := io.ReadAll(r.Body); err == nil {
			fields = append(fields, logging.Field{Key: "body", Value: string(bodyBytes)})
			r.Body = io.NopCloser(bytes.NewReader(bodyBytes))
		}
	}

	s.logger.Info("http_request", fields...)

	s.router.ServeHTTP(w, r)
}

// Close releases the store, the web clients and any websocket subscribers.
func (s *Server) Close() {
	s.hub.closeAll()
	for _, c := range s.clients {
		c.Close()
	}
	if s.store != nil {
		s.store.Close()
	}
}

// HTTPServer creates an *http.Server ready to ListenAndServe.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:         s.cfg.ListenAddr,
		Handler:      s,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // scans can take as long as the fetch timeout
	}
}

// --- JSON helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func visitorKey(r *http.Request) string {
	if id := r.Header.Get(headerVisitorID); id != "" {
		return id
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func queryInt(r *http.Request, key string, def, maxVal int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || v <= 0 {
		return def
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}

// --- HTTP handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "message": "Hello World from Fast API!"})
}

// Scans

// runScan fetches, analyzes, classifies and stores target.
func (s *Server) runScan(ctx context.Context, target string) (*ScanRecord, error) {
	host, err := utils.Hostname(target)
	if err != nil {
		return nil, err
	}
	page, err := s.scanner.Scan(ctx, utils.FetchURL(target))
	if err != nil {
		return nil, err
	}
	report := s.safety.Check(ctx, page.URL, page.HTML)

	score := page.Score()
	rec := &ScanRecord{
		ScanResult: model.ScanResult{
			ID:               uuid.NewString(),
			URL:              target,
			Title:            page.Title,
			Grade:            Grade(score),
			PerformanceScore: score,
			LoadTimeMS:       page.LoadTimeMS,
			ContentLength:    page.ContentLength,
			Status:           page.StatusCode,
			IsSafe:           !report.Rating.IsAdult(),
			SafetyStatus:     string(report.Rating),
			SafetyReasons:    nonNil(report.Warnings),
			Bugs:             nonNil(page.Bugs),
			ScanMethod:       page.Method,
		},
		Host:   host,
		Safety: report.KidsSafety(),
	}
	if err := s.store.InsertScan(ctx, rec); err != nil {
		return nil, err
	}
	s.logger.Info("scan completed",
		logging.Field{Key: "url", Value: target},
		logging.Field{Key: "grade", Value: rec.Grade},
		logging.Field{Key: "method", Value: rec.ScanMethod},
		logging.Field{Key: "rating", Value: rec.SafetyStatus})
	s.publishStats(ctx)
	return rec, nil
}

func (s *Server) decodeTarget(w http.ResponseWriter, r *http.Request) (string, bool) {
	var body model.ScanRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return "", false
	}
	target, err := utils.NormalizeTarget(strings.TrimSpace(body.URL))
	if err != nil {
		writeError(w, http.StatusBadRequest, utils.ErrInvalidURL.Error())
		return "", false
	}
	return target, true
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	target, ok := s.decodeTarget(w, r)
	if !ok {
		return
	}
	if !s.limiter.Allow(visitorKey(r)) {
		writeError(w, http.StatusTooManyRequests, "Too many scans, please slow down")
		return
	}

	rec, err := s.runScan(r.Context(), target)
	if err != nil {
		s.logger.Warn("scanning", logging.Field{Key: "url", Value: target}, logging.Field{Key: "error", Value: err.Error()})
		writeError(w, http.StatusBadGateway, "Failed to scan website: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rec.ScanResult)
}

func (s *Server) handleCheckContentSafety(w http.ResponseWriter, r *http.Request) {
	target, ok := s.decodeTarget(w, r)
	if !ok {
		return
	}
	pageURL := utils.FetchURL(target)
	verdict := model.ContentSafetyVerdict{URL: target, Reasons: []string{}}

	html := ""
	if page, err := s.scanner.Scan(r.Context(), pageURL); err != nil {
		s.logger.Warn("content safety fetch failed, checking domain only",
			logging.Field{Key: "url", Value: target}, logging.Field{Key: "error", Value: err.Error()})
	} else {
		html = page.HTML
		pageURL = page.URL
		verdict.Title = page.Title
	}

	report := s.safety.Check(r.Context(), pageURL, html)
	verdict.IsAdultContent = report.Rating.IsAdult()
	verdict.Warning = verdict.IsAdultContent
	verdict.Reasons = nonNil(report.Warnings)
	if verdict.Warning {
		verdict.Message = "This website may contain content that is not suitable for children. Do you want to continue?"
	} else {
		verdict.Message = "No adult content detected"
	}
	writeJSON(w, http.StatusOK, verdict)
}

func (s *Server) handleRecentScans(w http.ResponseWriter, r *http.Request) {
	scans, err := s.store.RecentScans(r.Context(), queryInt(r, "limit", defaultListLimit, maxListLimit))
	if err != nil {
		s.logger.Warn("listing recent scans", logging.Field{Key: "error", Value: err.Error()})
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, scans)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.store.Stats(r.Context())
	if err != nil {
		s.logger.Warn("computing stats", logging.Field{Key: "error", Value: err.Error()})
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// Ratings

func (s *Server) handleRecentFeedback(w http.ResponseWriter, r *http.Request) {
	fb, err := s.store.RecentFeedback(r.Context(), queryInt(r, "limit", defaultListLimit, maxListLimit))
	if err != nil {
		s.logger.Warn("listing recent feedback", logging.Field{Key: "error", Value: err.Error()})
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, fb)
}

func (s *Server) handleCaptcha(w http.ResponseWriter, r *http.Request) {
	c, err := s.captchas.New(r.Context())
	if err != nil {
		s.logger.Warn("issuing captcha", logging.Field{Key: "error", Value: err.Error()})
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleRate(w http.ResponseWriter, r *http.Request) {
	var body model.RateRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if body.VisitorID == "" {
		body.VisitorID = r.Header.Get(headerVisitorID)
	}

	status, resp, err := s.ratings.Rate(r.Context(), body)
	if err != nil {
		s.logger.Warn("rating", logging.Field{Key: "error", Value: err.Error()})
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if resp.Success {
		s.publishStats(r.Context())
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleCheckRatingStatus(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("visitor_id")
	if id == "" {
		id = r.Header.Get(headerVisitorID)
	}
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing visitor_id")
		return
	}
	st, err := s.ratings.Status(r.Context(), id)
	if err != nil {
		s.logger.Warn("checking rating status", logging.Field{Key: "error", Value: err.Error()})
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleVerifyPin(w http.ResponseWriter, r *http.Request) {
	var body model.PinVerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if body.VisitorID == "" {
		body.VisitorID = r.Header.Get(headerVisitorID)
	}
	if body.VisitorID == "" {
		writeError(w, http.StatusBadRequest, "missing visitor_id")
		return
	}

	status, resp, err := s.ratings.VerifyPin(r.Context(), body)
	if err != nil {
		s.logger.Warn("verifying pin", logging.Field{Key: "error", Value: err.Error()})
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, status, resp)
}

// Search

func (s *Server) handleSearchWebsites(w http.ResponseWriter, r *http.Request) {
	q := model.SearchQuery{
		Q:       utils.ExtractDomain(r.URL.Query().Get("q")),
		Page:    queryInt(r, "page", 1, 0),
		PerPage: queryInt(r, "per_page", model.DefaultPerPage, maxListLimit),
		Filter:  r.URL.Query().Get("filter"),
		Sort:    r.URL.Query().Get("sort"),
	}

	results, total, err := s.store.SearchWebsites(r.Context(), q)
	if err != nil {
		s.logger.Warn("searching websites", logging.Field{Key: "error", Value: err.Error()})
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, model.SearchResponse{
		Results: results,
		Total:   total,
		Page:    q.Page,
		PerPage: q.PerPage,
	})
}

func (s *Server) handleScanNew(w http.ResponseWriter, r *http.Request) {
	var body model.ScanRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	domain := utils.ExtractDomain(body.URL)
	if !utils.LooksLikeDomain(domain) {
		writeError(w, http.StatusBadRequest, utils.ErrInvalidURL.Error())
		return
	}

	host, err := utils.Hostname(domain)
	if err != nil {
		writeError(w, http.StatusBadRequest, utils.ErrInvalidURL.Error())
		return
	}
	existing, err := s.store.LatestScanForHost(r.Context(), host)
	switch {
	case err == nil:
		site := existing.Website()
		writeJSON(w, http.StatusOK, model.ScanNewResponse{Exists: true, Website: &site})
		return
	case !errors.Is(err, ErrNotFound):
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if !s.limiter.Allow(visitorKey(r)) {
		writeError(w, http.StatusTooManyRequests, "Too many scans, please slow down")
		return
	}
	rec, err := s.runScan(r.Context(), domain)
	if err != nil {
		s.logger.Warn("scanning new website", logging.Field{Key: "url", Value: domain}, logging.Field{Key: "error", Value: err.Error()})
		writeError(w, http.StatusBadGateway, "Failed to scan website: "+err.Error())
		return
	}
	site := rec.Website()
	writeJSON(w, http.StatusOK, model.ScanNewResponse{Exists: false, Website: &site})
}

// WebSockets

func (s *Server) handleStatsWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("upgrading to websocket", logging.Field{Key: "error", Value: err.Error()})
		return
	}

	if st, err := s.store.Stats(r.Context()); err == nil {
		if err := conn.WriteJSON(st); err != nil {
			conn.Close()
			return
		}
	}
	s.hub.add(conn)
	defer s.hub.remove(conn)

	// Drain until the client goes away; subscribers never send anything.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) publishStats(ctx context.Context) {
	st, err := s.store.Stats(ctx)
	if err != nil {
		s.logger.Warn("computing stats for subscribers", logging.Field{Key: "error", Value: err.Error()})
		return
	}
	s.hub.broadcast(st)
}
