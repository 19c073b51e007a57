package models

import (
	"time"
	"unicode/utf8"
)

// MaxErrorMessageLength bounds the stored failure text, in runes.
const MaxErrorMessageLength = 1000

// TranscriptionJob is one uploaded audio file and the state of its transcription.
type TranscriptionJob struct {
	ID                string     `json:"id" db:"id"`
	FileName          string     `json:"file_name" db:"file_name"`
	FilePath          string     `json:"file_path" db:"file_path"`
	Status            JobStatus  `json:"status" db:"status"`
	TranscriptionText *string    `json:"transcription_text" db:"transcription_text"`
	CreatedAt         time.Time  `json:"created_at" db:"created_at"`
	CompletedAt       *time.Time `json:"completed_at" db:"completed_at"`
	ErrorMessage      *string    `json:"error_message" db:"error_message"`
	Language          *string    `json:"language" db:"language"`
	FileSizeBytes     int64      `json:"file_size_bytes" db:"file_size_bytes"`
}

// Clone returns a deep copy so stores never share pointers with callers.
func (j *TranscriptionJob) Clone() *TranscriptionJob {
	if j == nil {
		return nil
	}
	c := *j
	c.TranscriptionText = cloneString(j.TranscriptionText)
	c.ErrorMessage = cloneString(j.ErrorMessage)
	c.Language = cloneString(j.Language)
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

func (j *TranscriptionJob) IsCompleted() bool  { return j.Status == StatusDone }
func (j *TranscriptionJob) HasError() bool     { return j.Status == StatusError }
func (j *TranscriptionJob) IsProcessing() bool { return j.Status == StatusProcessing }

// MarkProcessing moves an UPLOADED job into PROCESSING.
func (j *TranscriptionJob) MarkProcessing() error {
	if err := Transition(j.Status, StatusProcessing); err != nil {
		return err
	}
	j.Status = StatusProcessing
	return nil
}

// MarkDone stores the assembled text and stamps completion.
func (j *TranscriptionJob) MarkDone(text string, at time.Time) error {
	if err := Transition(j.Status, StatusDone); err != nil {
		return err
	}
	j.Status = StatusDone
	j.TranscriptionText = &text
	j.ErrorMessage = nil
	j.CompletedAt = &at
	return nil
}

// MarkError stores a bounded failure message and stamps completion.
func (j *TranscriptionJob) MarkError(msg string, at time.Time) error {
	if err := Transition(j.Status, StatusError); err != nil {
		return err
	}
	msg = TruncateMessage(msg, MaxErrorMessageLength)
	j.Status = StatusError
	j.ErrorMessage = &msg
	j.TranscriptionText = nil
	j.CompletedAt = &at
	return nil
}

// ResetForRetry puts a failed job back at the start of the cycle.
func (j *TranscriptionJob) ResetForRetry() error {
	if err := Transition(j.Status, StatusUploaded); err != nil {
		return err
	}
	j.Status = StatusUploaded
	j.ErrorMessage = nil
	j.TranscriptionText = nil
	j.CompletedAt = nil
	return nil
}

// TruncateMessage cuts msg to at most limit runes.
func TruncateMessage(msg string, limit int) string {
	if utf8.RuneCountInString(msg) <= limit {
		return msg
	}
	runes := []rune(msg)
	return string(runes[:limit])
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
