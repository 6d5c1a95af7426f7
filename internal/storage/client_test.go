package storage

import (
	"bytes"
	"errors"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/require"
)

func TestNewClientRequiresBucket(t *testing.T) {
	_, err := NewClient(Config{Endpoint: "localhost:9000"})
	require.Error(t, err)

	c, err := NewClient(Config{Endpoint: "localhost:9000", Bucket: "tiles"})
	require.NoError(t, err)
	require.Equal(t, "tiles", c.Bucket())
	require.Equal(t, int64(DefaultMaxObjectBytes), c.maxBytes)
}

func TestReadLimited(t *testing.T) {
	data, err := readLimited(bytes.NewReader([]byte("abcd")), 4)
	require.NoError(t, err)
	require.Equal(t, []byte("abcd"), data)

	_, err = readLimited(bytes.NewReader([]byte("abcde")), 4)
	require.ErrorIs(t, err, ErrObjectTooLarge)
}

func TestReadErrorMapsMissingKeys(t *testing.T) {
	c := &Client{bucket: "masters"}

	err := c.readError("a.tif", minio.ErrorResponse{Code: "NoSuchKey"})
	require.ErrorIs(t, err, ErrObjectNotFound)

	err = c.readError("a.tif", errors.New("connection reset"))
	require.NotErrorIs(t, err, ErrObjectNotFound)
}
