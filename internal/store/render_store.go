package store

import (
	"context"

	"github.com/dunamismax/tileflow/internal/domain"
)

// RenderStore is the render log: one record per job attempt.
type RenderStore interface {
	Record(ctx context.Context, rec domain.RenderRecord) error
	// Latest returns the most recent record for a job.
	Latest(ctx context.Context, jobID string) (domain.RenderRecord, bool, error)
	// ByIdentifier lists the newest records for a source image, newest first.
	ByIdentifier(ctx context.Context, identifier string, limit int) ([]domain.RenderRecord, error)
}

const defaultListLimit = 50

func normalizeLimit(limit int) int {
	if limit <= 0 || limit > 1000 {
		return defaultListLimit
	}
	return limit
}
