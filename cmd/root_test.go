package cmd

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/outreachkit/prospector/internal/config"
	pubmemory "github.com/outreachkit/prospector/internal/publisher/memory"
	"github.com/outreachkit/prospector/internal/snapshot"
	"github.com/outreachkit/prospector/internal/store"
)

func TestLoadTargets(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "targets.json")
	payload := `[
		{"website": "example.com", "company": "Acme"},
		{"website": "other.org", "email": "editor@other.org"}
	]`
	require.NoError(t, os.WriteFile(path, []byte(payload), 0o600))

	targets, err := loadTargets(path)
	require.NoError(t, err)
	require.Len(t, targets, 2)
	require.Equal(t, "example.com", targets[0].Website)
	require.Equal(t, "Acme", targets[0].Company)
	require.Equal(t, "editor@other.org", targets[1].Email)

	_, err = loadTargets(filepath.Join(dir, "missing.json"))
	require.Error(t, err)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{not json"), 0o600))
	_, err = loadTargets(bad)
	require.Error(t, err)
}

func TestBuildSnapshotStoreDefaultsToMemory(t *testing.T) {
	t.Parallel()

	s, err := buildSnapshotStore(context.Background(), config.Config{}, zap.NewNop())
	require.NoError(t, err)
	require.IsType(t, &snapshot.MemoryStore{}, s)
}

func TestBuildSnapshotStoreLocalDir(t *testing.T) {
	t.Parallel()

	cfg := config.Config{Snapshot: config.SnapshotConfig{LocalDir: t.TempDir()}}
	s, err := buildSnapshotStore(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	require.IsType(t, &snapshot.LocalStore{}, s)
}

func TestBuildRepositoryDefaultsToMemory(t *testing.T) {
	t.Parallel()

	repo, err := buildRepository(context.Background(), config.Config{}, zap.NewNop())
	require.NoError(t, err)
	require.IsType(t, &store.MemoryRepository{}, repo)
}

func TestBuildPublisherDefaultsToMemory(t *testing.T) {
	t.Parallel()

	pub, err := buildPublisher(context.Background(), config.Config{}, zap.NewNop())
	require.NoError(t, err)
	require.IsType(t, &pubmemory.Publisher{}, pub)
}
