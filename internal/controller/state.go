package controller

import (
	"errors"

	"github.com/raysh454/fastscan/internal/apiclient"
	"github.com/raysh454/fastscan/internal/identity"
	"github.com/raysh454/fastscan/internal/model"
	"github.com/raysh454/fastscan/internal/rating"
	"github.com/raysh454/fastscan/internal/scanflow"
	"github.com/raysh454/fastscan/internal/utils"
)

// Flow is the scan-side phase of the page.
type Flow int

const (
	FlowIdle Flow = iota
	FlowValidating
	FlowCheckingSafety
	FlowConfirmingSafety
	FlowScanning
	FlowShowing
	FlowError
)

var flowNames = [...]string{
	FlowIdle:             "idle",
	FlowValidating:       "validating",
	FlowCheckingSafety:   "checking_safety",
	FlowConfirmingSafety: "confirming_safety",
	FlowScanning:         "scanning",
	FlowShowing:          "showing",
	FlowError:            "error",
}

func (f Flow) String() string {
	if int(f) < len(flowNames) {
		return flowNames[f]
	}
	return "unknown"
}

func flowFor(s scanflow.Stage) Flow {
	switch s {
	case scanflow.StageValidating:
		return FlowValidating
	case scanflow.StageCheckingSafety:
		return FlowCheckingSafety
	case scanflow.StageConfirming:
		return FlowConfirmingSafety
	case scanflow.StageScanning:
		return FlowScanning
	}
	return FlowShowing
}

type ErrorKind int

const (
	ErrValidation ErrorKind = iota
	ErrConnectivity
	ErrApplication
	ErrAuthorization
)

func (k ErrorKind) String() string {
	switch k {
	case ErrValidation:
		return "validation"
	case ErrConnectivity:
		return "connectivity"
	case ErrApplication:
		return "application"
	case ErrAuthorization:
		return "authorization"
	}
	return "unknown"
}

// UIError is an error ready to be shown to the visitor.
type UIError struct {
	Kind    ErrorKind
	Message string
}

func (e *UIError) Error() string { return e.Kind.String() + ": " + e.Message }

// classify maps err onto one of the four visible error kinds.
func classify(err error) *UIError {
	var apiErr *apiclient.APIError
	switch {
	case err == nil:
		return nil
	case utils.IsValidationError(err):
		return &UIError{Kind: ErrValidation, Message: utils.ErrInvalidURL.Error()}
	case errors.Is(err, rating.ErrTooFewWords),
		errors.Is(err, rating.ErrCaptchaRequired),
		errors.Is(err, rating.ErrInvalidRating),
		errors.Is(err, rating.ErrEmptyPin):
		return &UIError{Kind: ErrValidation, Message: err.Error()}
	case errors.Is(err, rating.ErrLocked),
		errors.Is(err, rating.ErrRatingUnavailable):
		return &UIError{Kind: ErrAuthorization, Message: err.Error()}
	case apiclient.IsConnectivity(err):
		return &UIError{Kind: ErrConnectivity, Message: apiclient.ConnectivityMessage}
	case errors.As(err, &apiErr):
		return &UIError{Kind: ErrApplication, Message: apiErr.Message}
	}
	return &UIError{Kind: ErrApplication, Message: err.Error()}
}

// State is the single record the page is rendered from.
type State struct {
	Flow    Flow
	Current *model.ScanResult
	Err     *UIError
	Rating  rating.State
	// AlreadyRated is only true when the server agrees the visitor has
	// rated; local state alone never sets it.
	AlreadyRated bool
	Stats        *model.Stats
	Visitor      identity.Visitor
}
