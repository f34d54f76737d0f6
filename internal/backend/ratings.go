package backend

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/raysh454/fastscan/internal/logging"
	"github.com/raysh454/fastscan/internal/model"
	"golang.org/x/crypto/bcrypt"
)

// MaxPinAttempts wrong PINs lock a visitor for good.
const MaxPinAttempts = 3

const minCommentWords = 3

// Ratings enforces the rating gate: a free first rating, then one rating per
// verified PIN, and a permanent lock after MaxPinAttempts failures.
type Ratings struct {
	store    *Store
	captchas *Captchas
	logger   logging.Logger
	issuePin func() string
}

func NewRatings(store *Store, captchas *Captchas, logger logging.Logger) *Ratings {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Ratings{
		store:    store,
		captchas: captchas,
		logger:   logger.With(logging.Field{Key: "component", Value: "ratings"}),
		issuePin: func() string { return fmt.Sprintf("%04d", rand.IntN(10000)) },
	}
}

// Status reports what visitorID may do next.
func (r *Ratings) Status(ctx context.Context, visitorID string) (*model.RatingStatus, error) {
	v, err := r.store.GetVisitor(ctx, visitorID)
	if err != nil {
		return nil, err
	}
	return statusOf(v), nil
}

func statusOf(v *VisitorRecord) *model.RatingStatus {
	st := &model.RatingStatus{
		RatingCount:          v.RatingCount,
		PinAttempts:          v.PinAttempts,
		PinAttemptsRemaining: max(0, MaxPinAttempts-v.PinAttempts),
	}
	switch {
	case v.Locked:
		st.IsLocked = true
		st.PinAttemptsRemaining = 0
	case v.RatingCount == 0 || v.PinVerified:
		st.CanRate = true
	default:
		st.NeedsPin = true
	}
	return st
}

// Rate validates and records a rating. The returned status code is the HTTP
// status to answer with; the body always describes the outcome.
func (r *Ratings) Rate(ctx context.Context, req model.RateRequest) (int, *model.RateResponse, error) {
	if req.Rating < 1 || req.Rating > 5 {
		return http.StatusBadRequest, &model.RateResponse{Error: "Rating must be between 1 and 5"}, nil
	}
	if len(strings.Fields(req.Comment)) < minCommentWords {
		return http.StatusBadRequest, &model.RateResponse{
			Error: fmt.Sprintf("Feedback must be at least %d words", minCommentWords),
		}, nil
	}
	if req.VisitorID == "" {
		return http.StatusBadRequest, &model.RateResponse{Error: "Missing visitor id"}, nil
	}
	if _, err := r.store.GetScan(ctx, req.ScanID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return http.StatusNotFound, &model.RateResponse{Error: "Scan not found"}, nil
		}
		return 0, nil, err
	}

	ok, err := r.captchas.Verify(ctx, req.CaptchaID, req.CaptchaAnswer)
	if err != nil {
		return 0, nil, err
	}
	if !ok {
		return http.StatusBadRequest, &model.RateResponse{Error: "Incorrect captcha answer"}, nil
	}

	v, err := r.store.GetVisitor(ctx, req.VisitorID)
	if err != nil {
		return 0, nil, err
	}
	if v.Locked {
		return http.StatusLocked, lockedRate(), nil
	}

	if v.RatingCount > 0 && !v.PinVerified {
		if req.Pin == "" {
			return http.StatusForbidden, &model.RateResponse{NeedsPin: true, Message: "PIN required to rate again"}, nil
		}
		if !r.checkPin(v, req.Pin) {
			if err := r.store.SaveVisitor(ctx, v); err != nil {
				return 0, nil, err
			}
			if v.Locked {
				return http.StatusLocked, lockedRate(), nil
			}
			return http.StatusForbidden, &model.RateResponse{
				NeedsPin: true,
				Error:    fmt.Sprintf("Incorrect PIN. %d attempts remaining", MaxPinAttempts-v.PinAttempts),
			}, nil
		}
	}

	resp := &model.RateResponse{Success: true, Message: "Thank you for your feedback!"}
	if v.RatingCount == 0 {
		pin := strings.TrimSpace(req.Pin)
		if pin == "" {
			pin = r.issuePin()
			resp.Pin = pin
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
		if err != nil {
			return 0, nil, fmt.Errorf("hash pin: %w", err)
		}
		v.PinHash = string(hash)
	}

	err = r.store.InsertFeedback(ctx, &FeedbackRecord{
		ID:          uuid.NewString(),
		ScanID:      req.ScanID,
		VisitorID:   req.VisitorID,
		VisitorName: req.VisitorName,
		Rating:      req.Rating,
		Comment:     strings.TrimSpace(req.Comment),
	})
	if err != nil {
		return 0, nil, err
	}

	v.RatingCount++
	v.PinVerified = false
	v.PinAttempts = 0
	if err := r.store.SaveVisitor(ctx, v); err != nil {
		return 0, nil, err
	}

	stats, err := r.store.ScanRatingStats(ctx, req.ScanID)
	if err != nil {
		return 0, nil, err
	}
	resp.Stats = stats
	r.logger.Info("rating accepted",
		logging.Field{Key: "scan_id", Value: req.ScanID},
		logging.Field{Key: "visitor_id", Value: req.VisitorID},
		logging.Field{Key: "rating", Value: req.Rating})
	return http.StatusOK, resp, nil
}

// VerifyPin checks pin for visitorID. A correct PIN authorizes exactly one
// further rating.
func (r *Ratings) VerifyPin(ctx context.Context, req model.PinVerifyRequest) (int, *model.PinVerifyResponse, error) {
	v, err := r.store.GetVisitor(ctx, req.VisitorID)
	if err != nil {
		return 0, nil, err
	}
	if v.Locked {
		return http.StatusLocked, lockedVerify(), nil
	}
	if v.PinHash == "" {
		return http.StatusBadRequest, &model.PinVerifyResponse{
			Error:             "No PIN has been set for this visitor",
			AttemptsRemaining: model.Attempts(MaxPinAttempts - v.PinAttempts),
		}, nil
	}

	if r.checkPin(v, req.Pin) {
		v.PinVerified = true
		if err := r.store.SaveVisitor(ctx, v); err != nil {
			return 0, nil, err
		}
		return http.StatusOK, &model.PinVerifyResponse{Success: true, AttemptsRemaining: model.Attempts(MaxPinAttempts)}, nil
	}

	if err := r.store.SaveVisitor(ctx, v); err != nil {
		return 0, nil, err
	}
	if v.Locked {
		r.logger.Warn("visitor locked", logging.Field{Key: "visitor_id", Value: v.ID})
		return http.StatusLocked, lockedVerify(), nil
	}
	remaining := MaxPinAttempts - v.PinAttempts
	return http.StatusUnauthorized, &model.PinVerifyResponse{
		AttemptsRemaining: model.Attempts(remaining),
		Error:             fmt.Sprintf("Incorrect PIN. %d attempts remaining", remaining),
	}, nil
}

// checkPin compares pin with the stored hash, counting failures on v.
func (r *Ratings) checkPin(v *VisitorRecord, pin string) bool {
	if bcrypt.CompareHashAndPassword([]byte(v.PinHash), []byte(strings.TrimSpace(pin))) == nil {
		v.PinAttempts = 0
		return true
	}
	v.PinAttempts++
	if v.PinAttempts >= MaxPinAttempts {
		v.Locked = true
	}
	return false
}

const lockMessage = "Too many incorrect PIN attempts. Rating is locked for this visitor."

func lockedRate() *model.RateResponse {
	return &model.RateResponse{Locked: true, Error: lockMessage}
}

func lockedVerify() *model.PinVerifyResponse {
	return &model.PinVerifyResponse{Locked: true, AttemptsRemaining: model.Attempts(0), Error: lockMessage}
}
