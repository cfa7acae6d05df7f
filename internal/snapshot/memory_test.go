package snapshot

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoryStorePutGet(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	uri, err := s.Put(context.Background(), "example.com/home.html", "text/html", []byte("<html></html>"))
	require.NoError(t, err)
	require.Equal(t, "mem://example.com/home.html", uri)

	body, ok := s.Get("example.com/home.html")
	require.True(t, ok)
	require.Equal(t, []byte("<html></html>"), body)
	require.Equal(t, 1, s.Len())
}

func TestLocalStorePut(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s, err := NewLocalStore(dir)
	require.NoError(t, err)

	uri, err := s.Put(context.Background(), "example.com/contact.html", "text/html", []byte("body"))
	require.NoError(t, err)
	require.Contains(t, uri, "contact.html")
}
