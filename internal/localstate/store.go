// Package localstate persists the few client-side values that must survive a
// restart: the visitor identity, the last scan, and whether this visitor has
// already rated. None of it is used for authorization.
package localstate

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/raysh454/fastscan/internal/logging"
	_ "modernc.org/sqlite" // SQLite driver
)

// Keys
const (
	KeyHasRated     = "has_rated"
	KeyLastFeedback = "last_feedback"
	KeyLastScanID   = "last_scan_id"
	KeyVisitorID    = "visitor_id"
	KeyVisitorName  = "visitor_name"
)

// ratingKeys are cleared by Reset. The visitor identity survives.
var ratingKeys = []string{KeyHasRated, KeyLastFeedback, KeyLastScanID}

var ErrNilLogger = errors.New("localstate: nil logger provided")

//go:embed schema.sql
var schemaSQL string

// Store is a sqlite-backed key-value store.
type Store struct {
	db     *sql.DB
	logger logging.Logger
	now    func() time.Time
}

// Open opens (creating if needed) the state database at path. ":memory:"
// gives a private in-memory store.
func Open(path string, logger logging.Logger) (*Store, error) {
	if logger == nil {
		return nil, ErrNilLogger
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create state directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open state db: %w", err)
	}
	// A single connection keeps ":memory:" databases coherent.
	db.SetMaxOpenConns(1)

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply state schema: %w", err)
	}

	return &Store{
		db:     db,
		logger: logger.With(logging.Field{Key: "component", Value: "localstate"}),
		now:    time.Now,
	}, nil
}

func applySchema(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
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

// Get returns the value for key and whether it was present.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %s: %w", key, err)
	}
	return v, true, nil
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, s.now().Unix())
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, keys ...string) error {
	for _, k := range keys {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, k); err != nil {
			return fmt.Errorf("delete %s: %w", k, err)
		}
	}
	return nil
}

// HasRated reports the locally remembered "already rated" flag.
func (s *Store) HasRated(ctx context.Context) (bool, error) {
	v, ok, err := s.Get(ctx, KeyHasRated)
	if err != nil || !ok {
		return false, err
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, nil
	}
	return b, nil
}

// MarkRated records a successful rating together with its feedback text.
func (s *Store) MarkRated(ctx context.Context, feedback string) error {
	if err := s.Set(ctx, KeyHasRated, "true"); err != nil {
		return err
	}
	return s.Set(ctx, KeyLastFeedback, feedback)
}

func (s *Store) LastFeedback(ctx context.Context) (string, error) {
	v, _, err := s.Get(ctx, KeyLastFeedback)
	return v, err
}

func (s *Store) LastScanID(ctx context.Context) (string, error) {
	v, _, err := s.Get(ctx, KeyLastScanID)
	return v, err
}

func (s *Store) SetLastScanID(ctx context.Context, id string) error {
	return s.Set(ctx, KeyLastScanID, id)
}

// Visitor returns the stored identity; ok is false until one is saved.
func (s *Store) Visitor(ctx context.Context) (id, name string, ok bool, err error) {
	id, okID, err := s.Get(ctx, KeyVisitorID)
	if err != nil {
		return "", "", false, err
	}
	name, okName, err := s.Get(ctx, KeyVisitorName)
	if err != nil {
		return "", "", false, err
	}
	return id, name, okID && okName && id != "", nil
}

func (s *Store) SaveVisitor(ctx context.Context, id, name string) error {
	if err := s.Set(ctx, KeyVisitorID, id); err != nil {
		return err
	}
	return s.Set(ctx, KeyVisitorName, name)
}

// Reset clears the rating flag, last feedback and last scan id.
func (s *Store) Reset(ctx context.Context) error {
	if err := s.Delete(ctx, ratingKeys...); err != nil {
		return fmt.Errorf("reset local state: %w", err)
	}
	s.logger.Info("local state cleared")
	return nil
}

// ApplyResetParam calls Reset when rawQuery carries reset=true. It reports
// whether a reset happened.
func (s *Store) ApplyResetParam(ctx context.Context, rawQuery string) (bool, error) {
	q, err := url.ParseQuery(rawQuery)
	if err != nil {
		return false, fmt.Errorf("parse reset query: %w", err)
	}
	if reset, _ := strconv.ParseBool(q.Get("reset")); !reset {
		return false, nil
	}
	return true, s.Reset(ctx)
}
