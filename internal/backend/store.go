package backend

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/raysh454/fastscan/internal/model"
	_ "modernc.org/sqlite" // SQLite driver
)

//go:embed schema.sql
var schemaSQL string

// ErrNotFound is returned for unknown scans and captchas.
var ErrNotFound = errors.New("not found")

// Store is the sqlite persistence of the reference backend.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// OpenStore opens the database at path; ":memory:" is accepted.
func OpenStore(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

func applySchema(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	return nil
}

func (s *Store) Close() error { return s.db.Close() }

// ─── Scans ─────────────────────────────────────────────────────────────

// ScanRecord is a stored scan with its safety classification.
type ScanRecord struct {
	model.ScanResult
	Host   string
	Safety model.KidsSafety
}

func (s *Store) InsertScan(ctx context.Context, r *ScanRecord) error {
	reasons, _ := json.Marshal(nonNil(r.SafetyReasons))
	bugs, _ := json.Marshal(nonNil(r.Bugs))
	if r.Timestamp == 0 {
		r.Timestamp = s.now().Unix()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scans (id, url, host, title, grade, performance_score, load_time_ms,
			content_length, status_code, is_safe, safety_rating, safety_score,
			safety_confidence, safety_reasons, bugs, scan_method, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.URL, r.Host, r.Title, r.Grade, r.PerformanceScore, r.LoadTimeMS,
		r.ContentLength, r.Status, boolInt(r.IsSafe), string(r.Safety.Rating), r.Safety.Score,
		r.Safety.Confidence, string(reasons), string(bugs), r.ScanMethod, r.Timestamp)
	if err != nil {
		return fmt.Errorf("insert scan: %w", err)
	}
	return nil
}

const scanColumns = `id, url, host, title, grade, performance_score, load_time_ms, content_length,
	status_code, is_safe, safety_rating, safety_score, safety_confidence, safety_reasons,
	bugs, scan_method, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*ScanRecord, error) {
	var (
		r             ScanRecord
		isSafe        int
		rating        string
		reasons, bugs string
	)
	err := row.Scan(&r.ID, &r.URL, &r.Host, &r.Title, &r.Grade, &r.PerformanceScore,
		&r.LoadTimeMS, &r.ContentLength, &r.Status, &isSafe, &rating, &r.Safety.Score,
		&r.Safety.Confidence, &reasons, &bugs, &r.ScanMethod, &r.Timestamp)
	if err != nil {
		return nil, err
	}
	r.IsSafe = isSafe != 0
	r.Safety.Rating = model.SafetyRating(rating)
	r.SafetyStatus = rating
	_ = json.Unmarshal([]byte(reasons), &r.SafetyReasons)
	_ = json.Unmarshal([]byte(bugs), &r.Bugs)
	r.Safety.Warnings = r.SafetyReasons
	return &r, nil
}

func (s *Store) GetScan(ctx context.Context, id string) (*ScanRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+scanColumns+` FROM scans WHERE id = ?`, id)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get scan %s: %w", id, err)
	}
	return r, nil
}

// LatestScanForHost returns the newest scan of host.
func (s *Store) LatestScanForHost(ctx context.Context, host string) (*ScanRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+scanColumns+` FROM scans WHERE host = ? ORDER BY created_at DESC, rowid DESC LIMIT 1`, host)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("latest scan for %s: %w", host, err)
	}
	return r, nil
}

func (s *Store) RecentScans(ctx context.Context, limit int) ([]model.ScanHistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, url, grade, performance_score, bugs, created_at FROM scans
		 ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent scans: %w", err)
	}
	defer rows.Close()

	out := []model.ScanHistoryEntry{}
	for rows.Next() {
		var e model.ScanHistoryEntry
		var bugs string
		if err := rows.Scan(&e.ID, &e.URL, &e.Grade, &e.PerformanceScore, &bugs, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		_ = json.Unmarshal([]byte(bugs), &e.Bugs)
		out = append(out, e)
	}
	return out, rows.Err()
}

// SearchWebsites returns the newest scan per host matching q.
func (s *Store) SearchWebsites(ctx context.Context, q model.SearchQuery) ([]model.Website, int, error) {
	where := []string{`s.rowid = (SELECT rowid FROM scans WHERE host = s.host ORDER BY created_at DESC, rowid DESC LIMIT 1)`}
	args := []any{}
	if term := strings.TrimSpace(strings.ToLower(q.Q)); term != "" {
		where = append(where, `(s.host LIKE ? OR LOWER(s.url) LIKE ? OR LOWER(s.title) LIKE ?)`)
		like := "%" + term + "%"
		args = append(args, like, like, like)
	}
	switch q.Filter {
	case model.FilterSafe:
		where = append(where, `s.is_safe = 1`)
	case model.FilterUnsafe:
		where = append(where, `s.is_safe = 0`)
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM scans s WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count websites: %w", err)
	}

	order := "s.created_at DESC"
	switch q.Sort {
	case model.SortScore:
		order = "s.performance_score DESC, s.created_at DESC"
	case model.SortName:
		order = "s.host ASC"
	}

	perPage := q.PerPage
	if perPage <= 0 {
		perPage = model.DefaultPerPage
	}
	page := q.Page
	if page < 1 {
		page = 1
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+prefixed("s.", scanColumns)+` FROM scans s WHERE `+cond+` ORDER BY `+order+` LIMIT ? OFFSET ?`,
		append(args, perPage, (page-1)*perPage)...)
	if err != nil {
		return nil, 0, fmt.Errorf("search websites: %w", err)
	}
	defer rows.Close()

	out := []model.Website{}
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, r.Website())
	}
	return out, total, rows.Err()
}

// Website projects r into a search row.
func (r *ScanRecord) Website() model.Website {
	safety := r.Safety
	return model.Website{
		ID:               r.ID,
		URL:              r.Host,
		Grade:            r.Grade,
		PerformanceScore: r.PerformanceScore,
		LoadTime:         r.LoadTimeMS,
		StatusCode:       r.Status,
		Timestamp:        r.Timestamp,
		ScanMethod:       r.ScanMethod,
		KidsSafety:       &safety,
	}
}

func prefixed(prefix, cols string) string {
	parts := strings.Split(cols, ",")
	for i, p := range parts {
		parts[i] = prefix + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

// ─── Feedback ──────────────────────────────────────────────────────────

type FeedbackRecord struct {
	ID          string
	ScanID      string
	VisitorID   string
	VisitorName string
	Rating      int
	Comment     string
	CreatedAt   int64
}

func (s *Store) InsertFeedback(ctx context.Context, f *FeedbackRecord) error {
	if f.CreatedAt == 0 {
		f.CreatedAt = s.now().Unix()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO feedback (id, scan_id, visitor_id, visitor_name, rating, comment, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.ScanID, f.VisitorID, f.VisitorName, f.Rating, f.Comment, f.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert feedback: %w", err)
	}
	return nil
}

func (s *Store) RecentFeedback(ctx context.Context, limit int) ([]model.FeedbackEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT f.id, f.scan_id, s.url, f.rating, f.comment, f.visitor_name, f.created_at
		 FROM feedback f JOIN scans s ON s.id = f.scan_id
		 ORDER BY f.created_at DESC, f.rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent feedback: %w", err)
	}
	defer rows.Close()

	out := []model.FeedbackEntry{}
	for rows.Next() {
		var e model.FeedbackEntry
		if err := rows.Scan(&e.ID, &e.ScanID, &e.URL, &e.Rating, &e.Comment, &e.VisitorName, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ScanRatingStats aggregates the ratings of one scan.
func (s *Store) ScanRatingStats(ctx context.Context, scanID string) (*model.RatingStats, error) {
	var st model.RatingStats
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(AVG(rating), 0), COUNT(*) FROM feedback WHERE scan_id = ?`, scanID).
		Scan(&st.AverageRating, &st.TotalRatings)
	if err != nil {
		return nil, fmt.Errorf("rating stats: %w", err)
	}
	return &st, nil
}

// Stats aggregates the global counters.
func (s *Store) Stats(ctx context.Context) (*model.Stats, error) {
	var st model.Stats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM scans),
			(SELECT COUNT(*) FROM feedback),
			(SELECT COALESCE(AVG(rating), 0) FROM feedback),
			(SELECT COUNT(DISTINCT host) FROM scans)`).
		Scan(&st.TotalScans, &st.TotalRatings, &st.AverageRating, &st.UniqueSites)
	if err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}
	return &st, nil
}

// ─── Captchas ──────────────────────────────────────────────────────────

func (s *Store) InsertCaptcha(ctx context.Context, id string, answer int) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO captchas (id, answer, created_at) VALUES (?, ?, ?)`, id, answer, s.now().Unix())
	if err != nil {
		return fmt.Errorf("insert captcha: %w", err)
	}
	return nil
}

// TakeCaptcha deletes the captcha and returns its answer. It is single-use
// whether or not the caller's answer turns out to be right.
func (s *Store) TakeCaptcha(ctx context.Context, id string, maxAge time.Duration) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var answer int
	var created int64
	err = tx.QueryRowContext(ctx, `SELECT answer, created_at FROM captchas WHERE id = ?`, id).Scan(&answer, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("load captcha: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM captchas WHERE id = ?`, id); err != nil {
		return 0, fmt.Errorf("delete captcha: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	if maxAge > 0 && s.now().Unix()-created > int64(maxAge/time.Second) {
		return 0, ErrNotFound
	}
	return answer, nil
}

// PurgeCaptchas removes challenges older than maxAge.
func (s *Store) PurgeCaptchas(ctx context.Context, maxAge time.Duration) error {
	cutoff := s.now().Add(-maxAge).Unix()
	if _, err := s.db.ExecContext(ctx, `DELETE FROM captchas WHERE created_at < ?`, cutoff); err != nil {
		return fmt.Errorf("purge captchas: %w", err)
	}
	return nil
}

// ─── Visitors ──────────────────────────────────────────────────────────

type VisitorRecord struct {
	ID          string
	RatingCount int
	PinHash     string
	PinAttempts int
	PinVerified bool
	Locked      bool
}

// GetVisitor returns the visitor, or a zero record for an unknown id.
func (s *Store) GetVisitor(ctx context.Context, id string) (*VisitorRecord, error) {
	v := VisitorRecord{ID: id}
	var verified, locked int
	err := s.db.QueryRowContext(ctx,
		`SELECT rating_count, pin_hash, pin_attempts, pin_verified, locked FROM visitors WHERE id = ?`, id).
		Scan(&v.RatingCount, &v.PinHash, &v.PinAttempts, &verified, &locked)
	if errors.Is(err, sql.ErrNoRows) {
		return &v, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get visitor: %w", err)
	}
	v.PinVerified = verified != 0
	v.Locked = locked != 0
	return &v, nil
}

func (s *Store) SaveVisitor(ctx context.Context, v *VisitorRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO visitors (id, rating_count, pin_hash, pin_attempts, pin_verified, locked, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			rating_count = excluded.rating_count,
			pin_hash = excluded.pin_hash,
			pin_attempts = excluded.pin_attempts,
			pin_verified = excluded.pin_verified,
			locked = excluded.locked,
			updated_at = excluded.updated_at`,
		v.ID, v.RatingCount, v.PinHash, v.PinAttempts, boolInt(v.PinVerified), boolInt(v.Locked), s.now().Unix())
	if err != nil {
		return fmt.Errorf("save visitor: %w", err)
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
