package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dunamismax/tileflow/internal/domain"
)

var ErrMissingJobID = errors.New("render record requires a job id")

type MemoryRenderStore struct {
	mu      sync.RWMutex
	records []domain.RenderRecord
}

func NewMemoryRenderStore() *MemoryRenderStore {
	return &MemoryRenderStore{}
}

func (s *MemoryRenderStore) Record(_ context.Context, rec domain.RenderRecord) error {
	if rec.JobID == "" {
		return ErrMissingJobID
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

func (s *MemoryRenderStore) Latest(_ context.Context, jobID string) (domain.RenderRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := len(s.records) - 1; i >= 0; i-- {
		if s.records[i].JobID == jobID {
			return s.records[i], true, nil
		}
	}
	return domain.RenderRecord{}, false, nil
}

func (s *MemoryRenderStore) ByIdentifier(_ context.Context, identifier string, limit int) ([]domain.RenderRecord, error) {
	limit = normalizeLimit(limit)

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.RenderRecord, 0, limit)
	for i := len(s.records) - 1; i >= 0 && len(out) < limit; i-- {
		if s.records[i].Identifier == identifier {
			out = append(out, s.records[i])
		}
	}
	return out, nil
}
