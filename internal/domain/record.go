package domain

import "time"

const (
	RenderStatusSucceeded = "succeeded"
	RenderStatusFailed    = "failed"
)

// RenderRecord is the render log entry written after every job attempt.
type RenderRecord struct {
	JobID      string
	Identifier string
	Request    string
	Status     string
	OutputKey  string
	Format     string
	Width      int
	Height     int
	Bytes      int64
	DurationMS int64
	Error      string
	CreatedAt  time.Time
}

// Pixels is the output area of a successful render.
func (r RenderRecord) Pixels() int64 {
	return int64(r.Width) * int64(r.Height)
}
