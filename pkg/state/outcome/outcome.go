package outcome

import (
	"time"

	"github.com/pkg/errors"
)

type Status string

const (
	Success Status = "Success"
	Failure Status = "Failure"

	// Placeholder is stored when an outcome has no message or no reason.
	Placeholder = "-"
)

// Outcome is the result of the latest processing attempt of one record.
type Outcome struct {
	Identifier string
	Status     Status
	Message    string
	Reason     string
	UpdatedAt  time.Time
}

func New(identifier string, status Status, message string, reason string) *Outcome {
	if message == "" {
		message = Placeholder
	}
	if reason == "" {
		reason = Placeholder
	}

	return &Outcome{
		Identifier: identifier,
		Status:     status,
		Message:    message,
		Reason:     reason,
		UpdatedAt:  time.Now().UTC(),
	}
}

func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case Success, Failure:
		return Status(s), nil
	default:
		return "", errors.Errorf("unknown outcome status %q", s)
	}
}
