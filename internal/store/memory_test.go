package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func boolPtr(b bool) *bool { return &b }
func intPtr(n int) *int    { return &n }

func TestMemoryRepositoryStageMerge(t *testing.T) {
	t.Parallel()

	repo := NewMemoryRepository()
	ctx := context.Background()
	now := time.Unix(1700000000, 0).UTC()

	err := repo.UpsertTargets(ctx, StageBlogCheck, []TargetRecord{{
		UploadID:  "u1",
		Website:   "example.com",
		Company:   "Acme",
		IsBlog:    boolPtr(true),
		BlogScore: intPtr(12),
		UpdatedAt: now,
	}})
	require.NoError(t, err)

	err = repo.UpsertTargets(ctx, StageEmailScrape, []TargetRecord{{
		UploadID:  "u1",
		Website:   "example.com",
		Company:   "Ignored Corp",
		Email:     "editor@example.com",
		Phone:     "+12125550187",
		UpdatedAt: now.Add(time.Minute),
	}})
	require.NoError(t, err)

	got, err := repo.GetTarget(ctx, "u1", "example.com")
	require.NoError(t, err)
	// Identity columns stick with the first non-empty value.
	require.Equal(t, "Acme", got.Company)
	// Blog columns survive the scrape-stage upsert.
	require.NotNil(t, got.IsBlog)
	require.True(t, *got.IsBlog)
	require.Equal(t, "editor@example.com", got.Email)
	require.Equal(t, now.Add(time.Minute), got.UpdatedAt)
}

func TestMemoryRepositoryStageReplacesWholesale(t *testing.T) {
	t.Parallel()

	repo := NewMemoryRepository()
	ctx := context.Background()

	require.NoError(t, repo.UpsertTargets(ctx, StageEmailScrape, []TargetRecord{{
		UploadID: "u1", Website: "example.com",
		Email: "editor@example.com", Email2: "info@example.com",
	}}))
	require.NoError(t, repo.UpsertTargets(ctx, StageEmailScrape, []TargetRecord{{
		UploadID: "u1", Website: "example.com",
		Email: "press@example.com",
	}}))

	got, err := repo.GetTarget(ctx, "u1", "example.com")
	require.NoError(t, err)
	require.Equal(t, "press@example.com", got.Email)
	// The second upsert clears the slot it no longer fills.
	require.Empty(t, got.Email2)
}

func TestMemoryRepositoryValidation(t *testing.T) {
	t.Parallel()

	repo := NewMemoryRepository()
	ctx := context.Background()

	require.Error(t, repo.UpsertTargets(ctx, Stage("bogus"), nil))
	require.Error(t, repo.UpsertTargets(ctx, StageBlogCheck, []TargetRecord{{Website: "x.com"}}))

	_, err := repo.GetTarget(ctx, "u1", "missing.com")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryRepositoryListSorted(t *testing.T) {
	t.Parallel()

	repo := NewMemoryRepository()
	ctx := context.Background()

	require.NoError(t, repo.UpsertTargets(ctx, StageBlogCheck, []TargetRecord{
		{UploadID: "u1", Website: "zeta.com"},
		{UploadID: "u1", Website: "alpha.com"},
		{UploadID: "u2", Website: "other.com"},
	}))

	rows, err := repo.ListTargets(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, "alpha.com", rows[0].Website)
	require.Equal(t, "zeta.com", rows[1].Website)
}
