// Package scanflow runs a single scan: validate, content-safety gate,
// optional confirmation, then the scan itself.
package scanflow

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/raysh454/fastscan/internal/logging"
	"github.com/raysh454/fastscan/internal/model"
	"github.com/raysh454/fastscan/internal/utils"
)

var (
	ErrScanCancelled  = errors.New("scan cancelled")
	ErrScanInProgress = errors.New("a scan is already in progress")
)

// API is the part of the backend client the orchestrator needs.
type API interface {
	CheckContentSafety(ctx context.Context, target string) (*model.ContentSafetyVerdict, error)
	Scan(ctx context.Context, target string) (*model.ScanResult, error)
}

// ScanIDStore remembers the last scan id across restarts.
type ScanIDStore interface {
	SetLastScanID(ctx context.Context, id string) error
}

// Confirmer asks the visitor whether to continue past a content warning.
type Confirmer interface {
	Confirm(ctx context.Context, verdict *model.ContentSafetyVerdict) (bool, error)
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, verdict *model.ContentSafetyVerdict) (bool, error)

func (f ConfirmFunc) Confirm(ctx context.Context, v *model.ContentSafetyVerdict) (bool, error) {
	return f(ctx, v)
}

// Stage is reported to an observer as the scan progresses.
type Stage int

const (
	StageValidating Stage = iota
	StageCheckingSafety
	StageConfirming
	StageScanning
	StageDone
)

func (s Stage) String() string {
	switch s {
	case StageValidating:
		return "validating"
	case StageCheckingSafety:
		return "checking_safety"
	case StageConfirming:
		return "confirming"
	case StageScanning:
		return "scanning"
	case StageDone:
		return "done"
	}
	return "unknown"
}

// Orchestrator owns the current scan result and the in-flight guard.
type Orchestrator struct {
	api     API
	store   ScanIDStore
	logger  logging.Logger
	OnStage func(Stage)

	mu       sync.Mutex
	inFlight bool
	current  *model.ScanResult
}

// New builds an Orchestrator. store may be nil when nothing is persisted.
func New(api API, store ScanIDStore, logger logging.Logger) *Orchestrator {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Orchestrator{
		api:    api,
		store:  store,
		logger: logger.With(logging.Field{Key: "component", Value: "scanflow"}),
	}
}

// Current returns the most recent successful result, or nil.
func (o *Orchestrator) Current() *model.ScanResult {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.current
}

// Busy reports whether a scan is outstanding.
func (o *Orchestrator) Busy() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.inFlight
}

func (o *Orchestrator) stage(s Stage) {
	if o.OnStage != nil {
		o.OnStage(s)
	}
}

// Scan validates raw, runs the safety gate and then the scan. A nil confirmer
// declines every warning.
func (o *Orchestrator) Scan(ctx context.Context, raw string, confirm Confirmer) (*model.ScanResult, error) {
	o.stage(StageValidating)
	target, err := utils.NormalizeTarget(raw)
	if err != nil {
		return nil, err
	}

	o.mu.Lock()
	if o.inFlight {
		o.mu.Unlock()
		return nil, ErrScanInProgress
	}
	o.inFlight = true
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		o.inFlight = false
		o.mu.Unlock()
	}()

	logger := o.logger.With(logging.Field{Key: "target", Value: target})

	o.stage(StageCheckingSafety)
	verdict, err := o.api.CheckContentSafety(ctx, target)
	if err != nil {
		// The safety gate is secondary; availability wins.
		logger.Warn("content safety check failed, continuing",
			logging.Field{Key: "error", Value: err.Error()})
	} else if verdict != nil && verdict.Warning {
		o.stage(StageConfirming)
		proceed := false
		if confirm != nil {
			proceed, err = confirm.Confirm(ctx, verdict)
			if err != nil {
				return nil, fmt.Errorf("confirm content warning: %w", err)
			}
		}
		if !proceed {
			logger.Info("scan cancelled at content warning")
			return nil, ErrScanCancelled
		}
	}

	o.stage(StageScanning)
	res, err := o.api.Scan(ctx, target)
	if err != nil {
		logger.Warn("scan failed", logging.Field{Key: "error", Value: err.Error()})
		return nil, fmt.Errorf("scan %s: %w", target, err)
	}

	o.mu.Lock()
	o.current = res
	o.mu.Unlock()

	if o.store != nil && res.ID != "" {
		if err := o.store.SetLastScanID(ctx, res.ID); err != nil {
			logger.Warn("failed to persist last scan id", logging.Field{Key: "error", Value: err.Error()})
		}
	}

	logger.Info("scan completed",
		logging.Field{Key: "scan_id", Value: res.ID},
		logging.Field{Key: "grade", Value: res.Grade})
	o.stage(StageDone)
	return res, nil
}

// Restore installs a result fetched elsewhere, e.g. after a reload.
func (o *Orchestrator) Restore(res *model.ScanResult) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.current = res
}
