// Package controller ties the scan flow, the rating machine, history and
// stats into one explicit page state.
package controller

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/raysh454/fastscan/internal/history"
	"github.com/raysh454/fastscan/internal/identity"
	"github.com/raysh454/fastscan/internal/logging"
	"github.com/raysh454/fastscan/internal/model"
	"github.com/raysh454/fastscan/internal/rating"
	"github.com/raysh454/fastscan/internal/scanflow"
	"github.com/raysh454/fastscan/internal/statspoll"
)

// API is everything the controller needs from the backend client.
type API interface {
	scanflow.API
	rating.API
	statspoll.StatsAPI
	RecentScans(ctx context.Context, limit int) ([]model.ScanHistoryEntry, error)
	RecentFeedback(ctx context.Context, limit int) ([]model.FeedbackEntry, error)
}

// LocalState is the persisted client state the controller reads and writes.
type LocalState interface {
	scanflow.ScanIDStore
	rating.RatedStore
	HasRated(ctx context.Context) (bool, error)
	LastScanID(ctx context.Context) (string, error)
}

// History is the grouped content of the history panels.
type History struct {
	Scans    []history.HostGroup
	Feedback []history.FeedbackGroup
}

// Controller owns the page state. All methods are safe for concurrent use.
type Controller struct {
	api     API
	local   LocalState
	scans   *scanflow.Orchestrator
	rater   *rating.Machine
	logger  logging.Logger
	visitor identity.Visitor

	mu    sync.Mutex
	state State

	pollCancel context.CancelFunc
	pollDone   chan struct{}
}

// New builds a Controller for visitor. local may be nil.
func New(api API, local LocalState, visitor identity.Visitor, logger logging.Logger) *Controller {
	if logger == nil {
		logger = logging.Nop()
	}
	c := &Controller{
		api:     api,
		local:   local,
		logger:  logger.With(logging.Field{Key: "component", Value: "controller"}),
		visitor: visitor,
		state:   State{Flow: FlowIdle, Rating: rating.Idle{}, Visitor: visitor},
	}

	var idStore scanflow.ScanIDStore
	var ratedStore rating.RatedStore
	if local != nil {
		idStore, ratedStore = local, local
	}
	c.scans = scanflow.New(api, idStore, logger)
	c.scans.OnStage = func(s scanflow.Stage) {
		c.mu.Lock()
		c.state.Flow = flowFor(s)
		c.mu.Unlock()
	}
	c.rater = rating.NewMachine(api, ratedStore, visitor.Name, logger)
	return c
}

// State returns a snapshot of the page state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.state
	s.Rating = c.rater.State()
	return s
}

func (c *Controller) fail(err error) error {
	ui := classify(err)
	c.mu.Lock()
	c.state.Err = ui
	c.mu.Unlock()
	return ui
}

// Submit scans raw. confirm answers the content warning; nil declines.
// A declined warning returns the page to Idle without an error.
func (c *Controller) Submit(ctx context.Context, raw string, confirm scanflow.Confirmer) (State, error) {
	c.mu.Lock()
	c.state.Err = nil
	c.mu.Unlock()

	res, err := c.scans.Scan(ctx, raw, confirm)
	switch {
	case errors.Is(err, scanflow.ErrScanInProgress):
		return c.State(), err
	case errors.Is(err, scanflow.ErrScanCancelled):
		c.mu.Lock()
		c.state.Flow = FlowIdle
		c.mu.Unlock()
		return c.State(), nil
	case err != nil:
		ui := c.fail(err)
		c.mu.Lock()
		c.state.Flow = FlowError
		c.mu.Unlock()
		return c.State(), ui
	}

	c.rater.Close()
	c.mu.Lock()
	c.state.Flow = FlowShowing
	c.state.Current = res
	c.mu.Unlock()
	return c.State(), nil
}

// OpenRating starts rating the current scan.
func (c *Controller) OpenRating(ctx context.Context) (State, error) {
	cur := c.scans.Current()
	if cur == nil {
		return c.State(), c.fail(rating.ErrNotOpen)
	}
	if _, err := c.rater.Open(ctx, cur.ID); err != nil {
		return c.State(), c.fail(err)
	}
	return c.clearErr(), nil
}

// Rate submits the rating form.
func (c *Controller) Rate(ctx context.Context, d rating.Draft) (State, error) {
	st, err := c.rater.Submit(ctx, d)
	if err != nil {
		return c.State(), c.fail(err)
	}
	if _, ok := st.(rating.Accepted); ok {
		c.mu.Lock()
		c.state.AlreadyRated = true
		c.mu.Unlock()
	}
	return c.clearErr(), nil
}

// VerifyPin submits the PIN entry form.
func (c *Controller) VerifyPin(ctx context.Context, pin string) (State, error) {
	if _, err := c.rater.VerifyPin(ctx, pin); err != nil {
		return c.State(), c.fail(err)
	}
	return c.clearErr(), nil
}

// NewCaptcha swaps the open form's captcha for a fresh one.
func (c *Controller) NewCaptcha(ctx context.Context) (State, error) {
	if _, err := c.rater.RefreshCaptcha(ctx); err != nil {
		return c.State(), c.fail(err)
	}
	return c.clearErr(), nil
}

// CloseRating dismisses the rating form. A lock survives it.
func (c *Controller) CloseRating() State {
	c.rater.Close()
	return c.State()
}

func (c *Controller) clearErr() State {
	c.mu.Lock()
	c.state.Err = nil
	c.mu.Unlock()
	return c.State()
}

// LoadHistory fetches and groups the recent scans and feedback.
func (c *Controller) LoadHistory(ctx context.Context, limit int) (*History, error) {
	scans, err := c.api.RecentScans(ctx, limit)
	if err != nil {
		return nil, c.fail(err)
	}
	fb, err := c.api.RecentFeedback(ctx, limit)
	if err != nil {
		return nil, c.fail(err)
	}
	return &History{Scans: history.GroupByHost(scans), Feedback: history.GroupFeedback(fb)}, nil
}

// Restore rebuilds the page after a reload: the last scan when it is still
// in the recent list, and the "already rated" flag when both the local flag
// and the server agree.
func (c *Controller) Restore(ctx context.Context) (State, error) {
	if c.local == nil {
		return c.State(), nil
	}

	if id, err := c.local.LastScanID(ctx); err == nil && id != "" {
		c.restoreScan(ctx, id)
	}

	rated, err := c.local.HasRated(ctx)
	if err != nil {
		c.logger.Warn("reading local rating flag", logging.Field{Key: "error", Value: err.Error()})
	}
	if !rated {
		return c.State(), nil
	}

	st, err := c.rater.RefreshStatus(ctx)
	if err != nil {
		return c.State(), c.fail(err)
	}
	c.mu.Lock()
	c.state.AlreadyRated = !st.CanRate
	c.mu.Unlock()
	return c.State(), nil
}

// restoreWindow is how far back Restore looks for the last scan. The API has
// no lookup by id, so an older scan is simply not restored.
const restoreWindow = 50

func (c *Controller) restoreScan(ctx context.Context, id string) {
	recent, err := c.api.RecentScans(ctx, restoreWindow)
	if err != nil {
		c.logger.Warn("restoring last scan", logging.Field{Key: "error", Value: err.Error()})
		return
	}
	for _, e := range recent {
		if e.ID != id {
			continue
		}
		res := &model.ScanResult{
			ID:               e.ID,
			URL:              e.URL,
			Grade:            e.Grade,
			PerformanceScore: e.PerformanceScore,
			Bugs:             e.Bugs,
			Timestamp:        e.Timestamp,
		}
		c.scans.Restore(res)
		c.mu.Lock()
		c.state.Current = res
		c.state.Flow = FlowShowing
		c.mu.Unlock()
		return
	}
}

// StartStats polls the stats endpoint every interval until Close. onStats,
// when set, sees every fresh snapshot after the state holds it.
func (c *Controller) StartStats(ctx context.Context, interval time.Duration, onStats func(model.Stats)) {
	c.mu.Lock()
	if c.pollCancel != nil {
		c.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	c.pollCancel, c.pollDone = cancel, done
	c.mu.Unlock()

	p := statspoll.NewPoller(c.api, interval, c.logger)
	go func() {
		defer close(done)
		p.Run(ctx, func(s model.Stats) {
			c.setStats(s)
			if onStats != nil {
				onStats(s)
			}
		})
	}()
}

func (c *Controller) setStats(s model.Stats) {
	c.mu.Lock()
	c.state.Stats = &s
	c.mu.Unlock()
}

// StopStats stops the poller started by StartStats and waits for it.
func (c *Controller) StopStats() {
	c.mu.Lock()
	cancel, done := c.pollCancel, c.pollDone
	c.pollCancel, c.pollDone = nil, nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// Close stops the stats poller and waits for it to exit.
func (c *Controller) Close() {
	c.StopStats()
	c.rater.Close()
}
