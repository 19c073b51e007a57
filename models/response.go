package models

import "time"

// JobResponse is the client-facing view of a job. The storage path never leaves the process.
type JobResponse struct {
	ID                string     `json:"id"`
	FileName          string     `json:"file_name"`
	Status            JobStatus  `json:"status"`
	TranscriptionText *string    `json:"transcription_text,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
	ErrorMessage      *string    `json:"error_message,omitempty"`
	Language          *string    `json:"language,omitempty"`
	FileSizeBytes     int64      `json:"file_size_bytes"`
	IsCompleted       bool       `json:"is_completed"`
	HasError          bool       `json:"has_error"`
}

func NewJobResponse(job *TranscriptionJob) JobResponse {
	return JobResponse{
		ID:                job.ID,
		FileName:          job.FileName,
		Status:            job.Status,
		TranscriptionText: job.TranscriptionText,
		CreatedAt:         job.CreatedAt,
		CompletedAt:       job.CompletedAt,
		ErrorMessage:      job.ErrorMessage,
		Language:          job.Language,
		FileSizeBytes:     job.FileSizeBytes,
		IsCompleted:       job.IsCompleted(),
		HasError:          job.HasError(),
	}
}

func NewJobResponses(jobs []*TranscriptionJob) []JobResponse {
	out := make([]JobResponse, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, NewJobResponse(job))
	}
	return out
}
