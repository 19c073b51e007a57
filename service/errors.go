package service

import (
	"errors"
	"fmt"

	"github.com/jupark12/go-transcription-queue/models"
)

var (
	ErrNotFound     = errors.New("transcription job not found")
	ErrInvalidState = errors.New("invalid job state")
)

// InvalidStateError rejects an operation the job's current status does not allow.
type InvalidStateError struct {
	Status  models.JobStatus
	Message string
}

func (e *InvalidStateError) Error() string {
	return e.Message
}

func (e *InvalidStateError) Is(target error) bool {
	return target == ErrInvalidState
}

// ValidationError rejects caller input before anything is stored.
type ValidationError struct {
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// StorageError means the upload or its record could not be persisted. The job does not exist.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage failure (%s): %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
