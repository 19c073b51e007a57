package models

// Chunk is one time-bounded segment of a job's source audio on disk.
// Chunks live only for the duration of one processing attempt.
type Chunk struct {
	Index int    `json:"index"`
	Path  string `json:"path"`
	Dir   string `json:"dir"`
}
