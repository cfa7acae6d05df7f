package pipeline

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/outreachkit/prospector/internal/metrics"
	"github.com/outreachkit/prospector/internal/retry"
	"github.com/outreachkit/prospector/internal/store"
	"github.com/outreachkit/prospector/internal/verify"
)

// checkpointer accumulates finished records and commits them in chunks
// so a crash loses at most the current partial chunk. Each chunk is an
// independent upsert with bounded retry on contention; a chunk that
// still fails is dropped and logged rather than stalling the run.
type checkpointer struct {
	repo   store.TargetRepository
	policy *retry.Policy
	chunk  int
	logger *zap.Logger

	mu  sync.Mutex
	buf []store.TargetRecord
}

func newCheckpointer(repo store.TargetRepository, chunk int, logger *zap.Logger) *checkpointer {
	if chunk <= 0 {
		chunk = 25
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &checkpointer{
		repo:   repo,
		policy: retry.NewPolicyWith(3, 200*time.Millisecond, 2*time.Second),
		chunk:  chunk,
		logger: logger,
	}
}

// add buffers one record and commits when the chunk fills.
func (c *checkpointer) add(ctx context.Context, stage store.Stage, rec store.TargetRecord) {
	if c.repo == nil {
		return
	}
	c.mu.Lock()
	c.buf = append(c.buf, rec)
	var ready []store.TargetRecord
	if len(c.buf) >= c.chunk {
		ready = c.buf
		c.buf = nil
	}
	c.mu.Unlock()
	if ready != nil {
		c.write(ctx, stage, ready)
	}
}

// flush commits whatever remains in the buffer.
func (c *checkpointer) flush(ctx context.Context, stage store.Stage) {
	if c.repo == nil {
		return
	}
	c.mu.Lock()
	ready := c.buf
	c.buf = nil
	c.mu.Unlock()
	if len(ready) > 0 {
		c.write(ctx, stage, ready)
	}
}

func (c *checkpointer) write(ctx context.Context, stage store.Stage, records []store.TargetRecord) {
	var err error
	for attempt := 1; attempt <= c.policy.MaxAttempts(); attempt++ {
		err = c.repo.UpsertTargets(ctx, stage, records)
		if err == nil {
			metrics.ObserveCheckpointFlush("ok")
			return
		}
		if !c.policy.ShouldRetry(err, attempt) {
			break
		}
		if sleepErr := c.policy.Sleep(ctx, attempt); sleepErr != nil {
			break
		}
	}
	metrics.ObserveCheckpointFlush("dropped")
	c.logger.Error("checkpoint chunk dropped",
		zap.String("stage", string(stage)),
		zap.Int("records", len(records)),
		zap.Error(err))
}

// stageFor maps a pipeline step to its persistence column group.
func stageFor(step Step) store.Stage {
	return store.Stage(step)
}

// recordFor flattens one target into the CRM row for the given step.
func recordFor(uploadID string, t *Target, step Step, now time.Time) store.TargetRecord {
	rec := store.TargetRecord{
		UploadID:  uploadID,
		Website:   t.SiteKey(),
		Company:   t.Company,
		Name:      t.Name,
		UpdatedAt: now,
	}
	switch step {
	case StepBlogCheck:
		if t.Blog != nil {
			isBlog := t.Blog.IsBlog
			score := t.Blog.Score
			hasRecent := t.Blog.HasRecent
			rec.IsBlog = &isBlog
			rec.BlogScore = &score
			rec.BlogIndicators = strings.Join(t.Blog.Indicators, ",")
			rec.HasRecentContent = &hasRecent
			rec.RecentReason = t.Blog.RecentReason
		}
	case StepEmailScrape:
		if t.Scrape != nil {
			slots := []*string{&rec.Email, &rec.Email2, &rec.Email3}
			for i, re := range t.Scrape.Emails {
				if i >= len(slots) {
					break
				}
				*slots[i] = re.Email
			}
			if len(t.Scrape.Phones) > 0 {
				rec.Phone = t.Scrape.Phones[0]
			}
			rec.LinkedIn = t.Scrape.Social.LinkedIn
			rec.Instagram = t.Scrape.Social.Instagram
			rec.Facebook = t.Scrape.Social.Facebook
			rec.ContactForm = t.Scrape.Social.ContactForm
		}
	case StepEmailVerify:
		if t.Verify != nil {
			type slot struct {
				quality  **int
				status   *string
				notes    *string
				verified **bool
			}
			slots := []slot{
				{&rec.EmailQuality, &rec.EmailStatus, &rec.EmailNotes, &rec.EmailVerified},
				{&rec.Email2Quality, &rec.Email2Status, &rec.Email2Notes, &rec.Email2Verified},
				{&rec.Email3Quality, &rec.Email3Status, &rec.Email3Notes, &rec.Email3Verified},
			}
			for i, res := range t.Verify.Results {
				if i >= len(slots) {
					break
				}
				quality := res.Quality
				verified := res.Quality >= verify.QualityAdvisoryMin
				*slots[i].quality = &quality
				*slots[i].status = res.Status
				*slots[i].notes = res.Notes
				*slots[i].verified = &verified
			}
			rec.BestEmail = t.Verify.BestEmail
		}
	}
	return rec
}
