package store

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dunamismax/tileflow/internal/domain"
)

func exerciseRenderStore(t *testing.T, s RenderStore) {
	t.Helper()
	ctx := context.Background()
	suffix := fmt.Sprintf("%d", time.Now().UnixNano())
	identifier := "ff139pd0160-" + suffix

	require.ErrorIs(t, s.Record(ctx, domain.RenderRecord{}), ErrMissingJobID)

	require.NoError(t, s.Record(ctx, domain.RenderRecord{
		JobID:      "job-a-" + suffix,
		Identifier: identifier,
		Request:    identifier + "/full/full/0/default.jpg",
		Status:     domain.RenderStatusFailed,
		Error:      "fetch stage: timeout",
	}))
	require.NoError(t, s.Record(ctx, domain.RenderRecord{
		JobID:      "job-a-" + suffix,
		Identifier: identifier,
		Request:    identifier + "/full/full/0/default.jpg",
		Status:     domain.RenderStatusSucceeded,
		Width:      1000,
		Height:     500,
		Bytes:      4096,
	}))
	require.NoError(t, s.Record(ctx, domain.RenderRecord{
		JobID:      "job-b-" + suffix,
		Identifier: identifier,
		Request:    identifier + "/full/100,/0/gray.png",
		Status:     domain.RenderStatusSucceeded,
	}))

	latest, ok, err := s.Latest(ctx, "job-a-"+suffix)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, domain.RenderStatusSucceeded, latest.Status)
	require.Equal(t, int64(500000), latest.Pixels())
	require.False(t, latest.CreatedAt.IsZero())

	_, ok, err = s.Latest(ctx, "job-missing-"+suffix)
	require.NoError(t, err)
	require.False(t, ok)

	recs, err := s.ByIdentifier(ctx, identifier, 2)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	require.Equal(t, "job-b-"+suffix, recs[0].JobID)

	recs, err = s.ByIdentifier(ctx, identifier, 0)
	require.NoError(t, err)
	require.Len(t, recs, 3)
}

func TestMemoryRenderStore(t *testing.T) {
	exerciseRenderStore(t, NewMemoryRenderStore())
}

func TestPostgresRenderStore(t *testing.T) {
	dsn := os.Getenv("TILEFLOW_TEST_DATABASE_DSN")
	if dsn == "" {
		t.Skip("TILEFLOW_TEST_DATABASE_DSN not set")
	}

	s, err := NewPostgresRenderStore(context.Background(), dsn)
	require.NoError(t, err)
	defer s.Close()

	exerciseRenderStore(t, s)
}
