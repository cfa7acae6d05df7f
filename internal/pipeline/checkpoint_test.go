package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/outreachkit/prospector/internal/store"
)

type flakyRepo struct {
	mu       sync.Mutex
	failures int
	upserts  [][]store.TargetRecord
}

func (r *flakyRepo) UpsertTargets(_ context.Context, _ store.Stage, records []store.TargetRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failures > 0 {
		r.failures--
		return errors.New("database is locked")
	}
	r.upserts = append(r.upserts, append([]store.TargetRecord(nil), records...))
	return nil
}

func (r *flakyRepo) GetTarget(context.Context, string, string) (store.TargetRecord, error) {
	return store.TargetRecord{}, store.ErrNotFound
}

func (r *flakyRepo) ListTargets(context.Context, string) ([]store.TargetRecord, error) {
	return nil, nil
}

func (r *flakyRepo) chunks() [][]store.TargetRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]store.TargetRecord(nil), r.upserts...)
}

func TestCheckpointerFlushesFullChunks(t *testing.T) {
	t.Parallel()

	repo := &flakyRepo{}
	ck := newCheckpointer(repo, 2, nil)
	ctx := context.Background()

	ck.add(ctx, store.StageBlogCheck, store.TargetRecord{UploadID: "u1", Website: "a.com"})
	require.Empty(t, repo.chunks())
	ck.add(ctx, store.StageBlogCheck, store.TargetRecord{UploadID: "u1", Website: "b.com"})
	require.Len(t, repo.chunks(), 1)
	require.Len(t, repo.chunks()[0], 2)

	ck.add(ctx, store.StageBlogCheck, store.TargetRecord{UploadID: "u1", Website: "c.com"})
	ck.flush(ctx, store.StageBlogCheck)
	require.Len(t, repo.chunks(), 2)
	require.Equal(t, "c.com", repo.chunks()[1][0].Website)
}

func TestCheckpointerRetriesContention(t *testing.T) {
	t.Parallel()

	repo := &flakyRepo{failures: 2}
	ck := newCheckpointer(repo, 1, nil)

	ck.add(context.Background(), store.StageBlogCheck, store.TargetRecord{UploadID: "u1", Website: "a.com"})
	require.Len(t, repo.chunks(), 1)
}

func TestCheckpointerDropsAfterExhaustedRetries(t *testing.T) {
	t.Parallel()

	repo := &flakyRepo{failures: 10}
	ck := newCheckpointer(repo, 1, nil)

	start := time.Now()
	ck.add(context.Background(), store.StageBlogCheck, store.TargetRecord{UploadID: "u1", Website: "a.com"})
	// The chunk is dropped, not retried forever.
	require.Less(t, time.Since(start), 10*time.Second)
	require.Empty(t, repo.chunks())
}
