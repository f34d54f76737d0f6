// Package rating drives the star-rating flow: captcha, submission, and the
// PIN gate the server applies after a visitor's first rating.
package rating

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/raysh454/fastscan/internal/apiclient"
	"github.com/raysh454/fastscan/internal/logging"
	"github.com/raysh454/fastscan/internal/model"
)

const MinFeedbackWords = 3

var (
	ErrTooFewWords       = fmt.Errorf("please write at least %d words of feedback", MinFeedbackWords)
	ErrCaptchaRequired   = errors.New("please answer the captcha")
	ErrInvalidRating     = errors.New("rating must be between 1 and 5 stars")
	ErrLocked            = errors.New("rating is permanently locked for this visitor")
	ErrNotOpen           = errors.New("rating form is not open")
	ErrNotAwaitingPin    = errors.New("no PIN is being requested")
	ErrEmptyPin          = errors.New("please enter your PIN")
	ErrNoAttemptCount    = errors.New("server did not report remaining PIN attempts")
	ErrRatingUnavailable = errors.New("rating is not available for this visitor")
)

// API is the subset of the backend client used by the machine.
type API interface {
	CheckRatingStatus(ctx context.Context) (*model.RatingStatus, error)
	Captcha(ctx context.Context) (*model.CaptchaChallenge, error)
	Rate(ctx context.Context, req model.RateRequest) (*model.RateResponse, error)
	VerifyPin(ctx context.Context, pin string) (*model.PinVerifyResponse, error)
}

// RatedStore remembers that this visitor has rated.
type RatedStore interface {
	MarkRated(ctx context.Context, feedback string) error
}

// Draft is what the visitor filled into the form.
type Draft struct {
	Stars         int
	Comment       string
	CaptchaAnswer string
	// Pin optionally sets the visitor's PIN on a first rating.
	Pin string
}

// Machine is the rating state machine. Methods are serialized.
type Machine struct {
	api         API
	store       RatedStore
	logger      logging.Logger
	visitorName string

	mu          sync.Mutex
	state       State
	status      *model.RatingStatus
	pinVerified bool
	verifiedPin string
}

func NewMachine(api API, store RatedStore, visitorName string, logger logging.Logger) *Machine {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Machine{
		api:         api,
		store:       store,
		visitorName: visitorName,
		logger:      logger.With(logging.Field{Key: "component", Value: "rating"}),
		state:       Idle{},
	}
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Status returns the last server status seen, or nil.
func (m *Machine) Status() *model.RatingStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Actionable reports whether the stars can be used right now.
func (m *Machine) Actionable() bool {
	return Actionable(m.State())
}

func (m *Machine) locked() bool {
	_, ok := m.state.(Locked)
	return ok
}

// RefreshStatus reloads the server status. A locked status moves the
// machine to Locked.
func (m *Machine) RefreshStatus(ctx context.Context) (*model.RatingStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refreshStatus(ctx)
}

func (m *Machine) refreshStatus(ctx context.Context) (*model.RatingStatus, error) {
	st, err := m.api.CheckRatingStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("check rating status: %w", err)
	}
	m.status = st
	if st.IsLocked {
		m.state = Locked{Message: lockMessage("")}
	}
	return st, nil
}

// Open starts rating scanID. The server status decides between Locked,
// PinEntry and a fresh captcha in ModalOpen.
func (m *Machine) Open(ctx context.Context, scanID string) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.locked() {
		return m.state, ErrLocked
	}

	st, err := m.refreshStatus(ctx)
	if err != nil {
		return m.state, err
	}
	switch {
	case st.IsLocked:
		return m.state, ErrLocked
	case st.NeedsPin && !m.pinVerified:
		m.state = PinEntry{ScanID: scanID, AttemptsRemaining: st.PinAttemptsRemaining}
		return m.state, nil
	case !st.CanRate && !st.NeedsPin:
		return m.state, ErrRatingUnavailable
	}

	m.state = AwaitingCaptcha{ScanID: scanID}
	return m.openWithCaptcha(ctx, scanID)
}

func (m *Machine) openWithCaptcha(ctx context.Context, scanID string) (State, error) {
	c, err := m.api.Captcha(ctx)
	if err != nil {
		m.state = Idle{}
		return m.state, fmt.Errorf("fetch captcha: %w", err)
	}
	m.state = ModalOpen{ScanID: scanID, Captcha: *c}
	return m.state, nil
}

// Submit validates d locally and sends it. Server-driven outcomes come back
// as the new state with a nil error.
func (m *Machine) Submit(ctx context.Context, d Draft) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.locked() {
		return m.state, ErrLocked
	}
	scanID, captcha := currentCaptcha(m.state)
	if captcha == nil {
		return m.state, ErrNotOpen
	}
	if err := validate(d); err != nil {
		return m.state, err
	}

	// The captcha is single-use from here on, whatever the outcome.
	m.state = Submitting{ScanID: scanID}

	pin := d.Pin
	if m.pinVerified {
		pin = m.verifiedPin
	}
	resp, err := m.api.Rate(ctx, model.RateRequest{
		ScanID:        scanID,
		Rating:        d.Stars,
		Comment:       strings.TrimSpace(d.Comment),
		VisitorName:   m.visitorName,
		Pin:           pin,
		CaptchaID:     captcha.ID,
		CaptchaAnswer: strings.TrimSpace(d.CaptchaAnswer),
	})
	if err != nil {
		m.reject(ctx, scanID, apiclient.UserMessage(err))
		return m.state, fmt.Errorf("submit rating: %w", err)
	}

	switch {
	case resp.Locked:
		m.state = Locked{Message: lockMessage(resp.Error)}
		m.logger.Warn("visitor locked on rating submit")
	case resp.Success:
		m.pinVerified = false
		m.verifiedPin = ""
		if m.store != nil {
			if err := m.store.MarkRated(ctx, strings.TrimSpace(d.Comment)); err != nil {
				m.logger.Warn("failed to persist rated flag", logging.Field{Key: "error", Value: err.Error()})
			}
		}
		m.state = Accepted{ScanID: scanID, Stats: resp.Stats, IssuedPin: resp.Pin}
		m.logger.Info("rating accepted", logging.Field{Key: "scan_id", Value: scanID})
	case resp.NeedsPin:
		m.pinVerified = false
		m.verifiedPin = ""
		remaining := 0
		if st, err := m.refreshStatus(ctx); err == nil {
			remaining = st.PinAttemptsRemaining
		} else if m.status != nil {
			remaining = m.status.PinAttemptsRemaining
		}
		if !m.locked() {
			m.state = PinEntry{ScanID: scanID, AttemptsRemaining: remaining, Message: serverMessage(resp.Error, resp.Message)}
		}
	default:
		m.reject(ctx, scanID, serverMessage(resp.Error, resp.Message))
	}
	return m.state, nil
}

// reject moves to Rejected with a fresh captcha when one can be fetched.
func (m *Machine) reject(ctx context.Context, scanID, msg string) {
	rej := Rejected{ScanID: scanID, Message: msg}
	if c, err := m.api.Captcha(ctx); err == nil {
		rej.Captcha = c
	} else {
		m.logger.Warn("failed to refresh captcha", logging.Field{Key: "error", Value: err.Error()})
	}
	m.state = rej
}

// RefreshCaptcha replaces the captcha of an open or rejected form.
func (m *Machine) RefreshCaptcha(ctx context.Context) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.locked() {
		return m.state, ErrLocked
	}
	var scanID string
	switch v := m.state.(type) {
	case ModalOpen:
		scanID = v.ScanID
	case Rejected:
		scanID = v.ScanID
	default:
		return m.state, ErrNotOpen
	}
	return m.openWithCaptcha(ctx, scanID)
}

// VerifyPin checks pin with the server. On success the form reopens with a
// fresh captcha; attempts are counted only by the server.
func (m *Machine) VerifyPin(ctx context.Context, pin string) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.locked() {
		return m.state, ErrLocked
	}
	entry, ok := m.state.(PinEntry)
	if !ok {
		return m.state, ErrNotAwaitingPin
	}
	pin = strings.TrimSpace(pin)
	if pin == "" {
		return m.state, ErrEmptyPin
	}

	m.state = VerifyingPin{ScanID: entry.ScanID}
	resp, err := m.api.VerifyPin(ctx, pin)
	if err != nil {
		entry.Message = apiclient.UserMessage(err)
		m.state = entry
		return m.state, fmt.Errorf("verify pin: %w", err)
	}

	if resp.Success {
		m.pinVerified = true
		m.verifiedPin = pin
		m.logger.Info("pin verified")
		m.state = AwaitingCaptcha{ScanID: entry.ScanID}
		return m.openWithCaptcha(ctx, entry.ScanID)
	}

	// Only the server locks: an explicit flag or a reported count of zero.
	remaining, counted := resp.Remaining()
	switch {
	case resp.Locked || (counted && remaining <= 0):
		m.state = Locked{Message: lockMessage(resp.Error)}
		m.logger.Warn("visitor locked after wrong pin")
	case !counted:
		entry.Message = serverMessage(resp.Error, "PIN could not be checked")
		m.state = entry
		return m.state, fmt.Errorf("verify pin: %w", ErrNoAttemptCount)
	default:
		m.state = PinEntry{
			ScanID:            entry.ScanID,
			AttemptsRemaining: remaining,
			Message:           serverMessage(resp.Error, "Incorrect PIN"),
		}
	}
	return m.state, nil
}

// Close returns a non-locked machine to Idle.
func (m *Machine) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.locked() {
		m.state = Idle{}
	}
}

func validate(d Draft) error {
	if len(strings.Fields(d.Comment)) < MinFeedbackWords {
		return ErrTooFewWords
	}
	if strings.TrimSpace(d.CaptchaAnswer) == "" {
		return ErrCaptchaRequired
	}
	if d.Stars < 1 || d.Stars > 5 {
		return ErrInvalidRating
	}
	return nil
}

func serverMessage(primary, fallback string) string {
	if primary != "" {
		return primary
	}
	if fallback != "" {
		return fallback
	}
	return "Rating was not accepted"
}

func lockMessage(server string) string {
	if server != "" {
		return server
	}
	return "Too many incorrect PIN attempts. Rating is permanently locked."
}
