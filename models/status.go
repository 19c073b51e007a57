package models

import (
	"errors"
	"fmt"
	"strings"
)

// JobStatus represents the current state of a job in the system
type JobStatus string

const (
	StatusUploaded   JobStatus = "UPLOADED"
	StatusProcessing JobStatus = "PROCESSING"
	StatusDone       JobStatus = "DONE"
	StatusError      JobStatus = "ERROR"
)

// AllStatuses lists every status in lifecycle order.
var AllStatuses = []JobStatus{StatusUploaded, StatusProcessing, StatusDone, StatusError}

// ErrInvalidTransition is matched by every *TransitionError.
var ErrInvalidTransition = errors.New("invalid status transition")

type TransitionError struct {
	From JobStatus
	To   JobStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid status transition: %s -> %s", e.From, e.To)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// Transition validates one edge of the job state machine:
//
//	UPLOADED -> PROCESSING -> DONE | ERROR, ERROR -> UPLOADED (retry)
func Transition(from, to JobStatus) error {
	if !isValidTransition(from, to) {
		return &TransitionError{From: from, To: to}
	}
	return nil
}

func isValidTransition(from, to JobStatus) bool {
	switch from {
	case StatusUploaded:
		return to == StatusProcessing
	case StatusProcessing:
		return to == StatusDone || to == StatusError
	case StatusError:
		return to == StatusUploaded
	default:
		return false
	}
}

// IsTerminal reports whether processing has finished for the status.
func (s JobStatus) IsTerminal() bool {
	return s == StatusDone || s == StatusError
}

func (s JobStatus) Valid() bool {
	for _, known := range AllStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// ParseStatus accepts any letter case.
func ParseStatus(raw string) (JobStatus, error) {
	for _, known := range AllStatuses {
		if strings.EqualFold(strings.TrimSpace(raw), string(known)) {
			return known, nil
		}
	}
	return "", fmt.Errorf("unknown job status %q", raw)
}
