package models

import "math"

// Statistics summarizes the job store by status.
type Statistics struct {
	Total       int64   `json:"total"`
	Processing  int64   `json:"processing"`
	Completed   int64   `json:"completed"`
	Errors      int64   `json:"errors"`
	Pending     int64   `json:"pending"`
	SuccessRate float64 `json:"success_rate_percent"`
	ErrorRate   float64 `json:"error_rate_percent"`
}

// NewStatistics derives pending count and percentage rates from raw counts.
func NewStatistics(total, processing, completed, errors int64) Statistics {
	return Statistics{
		Total:       total,
		Processing:  processing,
		Completed:   completed,
		Errors:      errors,
		Pending:     total - processing - completed - errors,
		SuccessRate: percentOf(completed, total),
		ErrorRate:   percentOf(errors, total),
	}
}

func (s Statistics) HasJobsProcessing() bool {
	return s.Processing > 0
}

// percentOf rounds to two decimals and is 0 for an empty total.
func percentOf(part, total int64) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(part)/float64(total)*10000) / 100
}
