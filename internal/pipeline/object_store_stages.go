package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/dunamismax/tileflow/internal/domain"
)

// ObjectStore is the slice of the storage client the pipeline needs.
type ObjectStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte, contentType string) error
}

type ObjectStoreFetcher struct {
	Store ObjectStore
}

func (f ObjectStoreFetcher) Fetch(ctx context.Context, src domain.Source) ([]byte, error) {
	if f.Store == nil {
		return nil, errors.New("storage client is required")
	}
	if !strings.EqualFold(src.Kind, domain.SourceKindObjectStore) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedSourceType, src.Kind)
	}
	return f.Store.Get(ctx, src.Key)
}

type ObjectStoreEmitter struct {
	Store  ObjectStore
	Prefix string
}

func (e ObjectStoreEmitter) Emit(ctx context.Context, key string, tile Tile) (string, error) {
	if e.Store == nil {
		return "", errors.New("storage client is required")
	}

	objectKey := path.Join(defaultOutputPrefix(e.Prefix), strings.TrimPrefix(key, "/"))
	if err := e.Store.Put(ctx, objectKey, tile.data, tile.MIME()); err != nil {
		return "", err
	}
	return objectKey, nil
}

func defaultOutputPrefix(prefix string) string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return "derivatives"
	}
	return prefix
}

// SourceFetcher dispatches on the source kind.
type SourceFetcher struct {
	Local       LocalFileFetcher
	ObjectStore *ObjectStoreFetcher
}

func (f SourceFetcher) Fetch(ctx context.Context, src domain.Source) ([]byte, error) {
	switch strings.ToLower(src.Kind) {
	case domain.SourceKindLocalFile:
		return f.Local.Fetch(ctx, src)
	case domain.SourceKindObjectStore:
		if f.ObjectStore == nil {
			return nil, fmt.Errorf("%w: object store not configured", ErrUnsupportedSourceType)
		}
		return f.ObjectStore.Fetch(ctx, src)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedSourceType, src.Kind)
	}
}
