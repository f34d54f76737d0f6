package rating

import "github.com/raysh454/fastscan/internal/model"

// Phase names where the rating flow currently is.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseAwaitingCaptcha
	PhaseModalOpen
	PhaseSubmitting
	PhaseAccepted
	PhasePinEntry
	PhaseVerifyingPin
	PhaseLocked
	PhaseRejected
)

var phaseNames = [...]string{
	PhaseIdle:            "idle",
	PhaseAwaitingCaptcha: "awaiting_captcha",
	PhaseModalOpen:       "modal_open",
	PhaseSubmitting:      "submitting",
	PhaseAccepted:        "accepted",
	PhasePinEntry:        "pin_entry",
	PhaseVerifyingPin:    "verifying_pin",
	PhaseLocked:          "locked",
	PhaseRejected:        "rejected",
}

func (p Phase) String() string {
	if int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return "unknown"
}

// State is a closed set of phase payloads. Each concrete type carries only
// the data that phase can have, so e.g. a locked state has no PIN counter.
type State interface {
	Phase() Phase
	isState()
}

type Idle struct{}

type AwaitingCaptcha struct {
	ScanID string
}

// ModalOpen holds the captcha the next submission must answer.
type ModalOpen struct {
	ScanID  string
	Captcha model.CaptchaChallenge
}

type Submitting struct {
	ScanID string
}

// Accepted carries the per-scan stats. IssuedPin is set when the server
// generated the visitor's PIN on this first rating.
type Accepted struct {
	ScanID    string
	Stats     *model.RatingStats
	IssuedPin string
}

// PinEntry waits for the visitor's PIN. AttemptsRemaining is the server's count.
type PinEntry struct {
	ScanID            string
	AttemptsRemaining int
	Message           string
}

type VerifyingPin struct {
	ScanID string
}

// Locked is absorbing.
type Locked struct {
	Message string
}

// Rejected shows a server error. Captcha is the fresh challenge for a retry,
// or nil when it could not be fetched.
type Rejected struct {
	ScanID  string
	Message string
	Captcha *model.CaptchaChallenge
}

func (Idle) Phase() Phase            { return PhaseIdle }
func (AwaitingCaptcha) Phase() Phase { return PhaseAwaitingCaptcha }
func (ModalOpen) Phase() Phase       { return PhaseModalOpen }
func (Submitting) Phase() Phase      { return PhaseSubmitting }
func (Accepted) Phase() Phase        { return PhaseAccepted }
func (PinEntry) Phase() Phase        { return PhasePinEntry }
func (VerifyingPin) Phase() Phase    { return PhaseVerifyingPin }
func (Locked) Phase() Phase          { return PhaseLocked }
func (Rejected) Phase() Phase        { return PhaseRejected }

func (Idle) isState()            {}
func (AwaitingCaptcha) isState() {}
func (ModalOpen) isState()       {}
func (Submitting) isState()      {}
func (Accepted) isState()        {}
func (PinEntry) isState()        {}
func (VerifyingPin) isState()    {}
func (Locked) isState()          {}
func (Rejected) isState()        {}

// Actionable reports whether the rating stars may be used in s.
func Actionable(s State) bool {
	switch v := s.(type) {
	case ModalOpen:
		return true
	case Rejected:
		return v.Captcha != nil
	}
	return false
}

// currentCaptcha returns the captcha a submission in s would answer.
func currentCaptcha(s State) (string, *model.CaptchaChallenge) {
	switch v := s.(type) {
	case ModalOpen:
		c := v.Captcha
		return v.ScanID, &c
	case Rejected:
		return v.ScanID, v.Captcha
	}
	return "", nil
}
