package sender

import (
	"errors"
	"strings"

	"github.com/wasender/pkg/constant"
)

var (
	ErrAlreadyRunning = errors.New(constant.ALREADY_SENDING)
	ErrNoRecipients   = errors.New(constant.NO_RECIPIENTS)
	ErrInvalidJob     = errors.New(constant.INVALID_REQUEST)
)

// Outcome of StartSending. Queued means the tenant is at its number limit.
type Outcome string

const (
	Started Outcome = "started"
	Queued  Outcome = "queued"
)

// Status events published on the number's channel.
const (
	EventStarted  = "started"
	EventQueued   = "queued"
	EventProgress = "progress"
	EventWarning  = "warning"
	EventFinished = "finished"
	EventStopped  = "stopped"
	EventReset    = "reset"
)

type Recipient struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// Job is one bulk send campaign. Recipients are fixed once started.
type Job struct {
	NumberID        string
	UserID          string
	SessionID       string
	Recipients      []Recipient
	MessageTemplate string
	DelaySeconds    float64
	// ForceStartIndex, when set, is the first recipient index to send to.
	ForceStartIndex *int
}

func (j Job) validate() error {
	if j.NumberID == "" || j.UserID == "" || j.SessionID == "" || j.DelaySeconds < 0 {
		return ErrInvalidJob
	}
	if len(j.Recipients) == 0 {
		return ErrNoRecipients
	}
	if f := j.ForceStartIndex; f != nil && (*f < 0 || *f >= len(j.Recipients)) {
		return ErrInvalidJob
	}
	return nil
}

type Status struct {
	NumberID      string `json:"numberId"`
	IsSending     bool   `json:"isSending"`
	Queued        bool   `json:"queued"`
	SentCount     int    `json:"sentCount"`
	TotalCount    int    `json:"totalCount"`
	LastSentIndex int    `json:"lastSentIndex"`
	FailedCount   int    `json:"failedCount"`
}

func zeroStatus(numberID string) Status {
	return Status{NumberID: numberID, LastSentIndex: -1}
}

// StatusEvent is the published payload.
type StatusEvent struct {
	Event string `json:"event"`
	Status
	Error string `json:"error,omitempty"`
}

// Render fills the recipient placeholders. Unknown tokens are kept.
func Render(template string, r Recipient) string {
	return strings.NewReplacer(
		"{name}", r.Name,
		"{שם}", r.Name,
		"{phone}", r.Phone,
		"{טלפון}", r.Phone,
	).Replace(template)
}
