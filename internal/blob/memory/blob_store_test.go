package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPutObjectStoresCopy(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	payload := []byte("extracted content")

	uri, err := store.PutObject(context.Background(), "jobs/abc/docs/intro.txt", "text/plain", payload)
	require.NoError(t, err)
	require.Equal(t, "memory://jobs/abc/docs/intro.txt", uri)

	payload[0] = 'X'
	stored, ok := store.Object("jobs/abc/docs/intro.txt")
	require.True(t, ok)
	require.Equal(t, []byte("extracted content"), stored)
}

func TestPutObjectRequiresPath(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	_, err := store.PutObject(context.Background(), "", "text/plain", []byte("x"))
	require.Error(t, err)
}
