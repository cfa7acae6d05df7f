package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

type targetKey struct {
	uploadID string
	website  string
}

// MemoryRepository is an in-memory TargetRepository for tests and
// single-process runs without Postgres.
type MemoryRepository struct {
	mu   sync.RWMutex
	rows map[targetKey]TargetRecord
}

// NewMemoryRepository builds an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{rows: make(map[targetKey]TargetRecord)}
}

// UpsertTargets merges each record into the table under the stage's
// column-replacement rules.
func (r *MemoryRepository) UpsertTargets(_ context.Context, stage Stage, records []TargetRecord) error {
	if !stage.Valid() {
		return fmt.Errorf("unknown stage %q", stage)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range records {
		if rec.UploadID == "" || rec.Website == "" {
			return fmt.Errorf("record requires upload id and website")
		}
		key := targetKey{uploadID: rec.UploadID, website: rec.Website}
		existing, ok := r.rows[key]
		if !ok {
			existing = TargetRecord{UploadID: rec.UploadID, Website: rec.Website}
		}
		mergeStageColumns(&existing, rec, stage)
		r.rows[key] = existing
	}
	return nil
}

// GetTarget loads one row or returns ErrNotFound.
func (r *MemoryRepository) GetTarget(_ context.Context, uploadID, website string) (TargetRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.rows[targetKey{uploadID: uploadID, website: website}]
	if !ok {
		return TargetRecord{}, ErrNotFound
	}
	return rec, nil
}

// ListTargets returns every row for an upload ordered by website.
func (r *MemoryRepository) ListTargets(_ context.Context, uploadID string) ([]TargetRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []TargetRecord
	for key, rec := range r.rows {
		if key.uploadID == uploadID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Website < out[j].Website })
	return out, nil
}

// mergeStageColumns applies the upsert rules shared with the SQL
// implementation: identity columns fill only when previously empty, and
// the stage's own column group is replaced wholesale.
func mergeStageColumns(dst *TargetRecord, src TargetRecord, stage Stage) {
	if dst.Company == "" && src.Company != "" {
		dst.Company = src.Company
	}
	if dst.Name == "" && src.Name != "" {
		dst.Name = src.Name
	}
	dst.UpdatedAt = src.UpdatedAt

	switch stage {
	case StageBlogCheck:
		dst.IsBlog = src.IsBlog
		dst.BlogScore = src.BlogScore
		dst.BlogIndicators = src.BlogIndicators
		dst.HasRecentContent = src.HasRecentContent
		dst.RecentReason = src.RecentReason
	case StageEmailScrape:
		dst.Email = src.Email
		dst.Email2 = src.Email2
		dst.Email3 = src.Email3
		dst.Phone = src.Phone
		dst.LinkedIn = src.LinkedIn
		dst.Instagram = src.Instagram
		dst.Facebook = src.Facebook
		dst.ContactForm = src.ContactForm
	case StageEmailVerify:
		dst.EmailQuality = src.EmailQuality
		dst.EmailStatus = src.EmailStatus
		dst.EmailNotes = src.EmailNotes
		dst.EmailVerified = src.EmailVerified
		dst.Email2Quality = src.Email2Quality
		dst.Email2Status = src.Email2Status
		dst.Email2Notes = src.Email2Notes
		dst.Email2Verified = src.Email2Verified
		dst.Email3Quality = src.Email3Quality
		dst.Email3Status = src.Email3Status
		dst.Email3Notes = src.Email3Notes
		dst.Email3Verified = src.Email3Verified
		dst.BestEmail = src.BestEmail
	}
}
