// Package pipeline orchestrates enrichment runs: ordered stages over a
// batch of targets with bounded concurrency, chunked checkpointing, and
// progress broadcast.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/outreachkit/prospector/internal/blog"
	"github.com/outreachkit/prospector/internal/scrape"
	"github.com/outreachkit/prospector/internal/verify"
)

// Step names one pipeline stage.
type Step string

// Recognized steps, executed strictly in the order requested.
// Verification is never auto-appended after scraping.
const (
	StepBlogCheck   Step = "blog_check"
	StepEmailScrape Step = "email_scrape"
	StepEmailVerify Step = "email_verify"
)

// ParseSteps validates and deduplicates step names, preserving
// first-seen order.
func ParseSteps(names []string) ([]Step, error) {
	seen := make(map[Step]struct{}, len(names))
	var steps []Step
	for _, name := range names {
		step := Step(name)
		switch step {
		case StepBlogCheck, StepEmailScrape, StepEmailVerify:
		default:
			return nil, fmt.Errorf("unknown step %q", name)
		}
		if _, dup := seen[step]; dup {
			continue
		}
		seen[step] = struct{}{}
		steps = append(steps, step)
	}
	if len(steps) == 0 {
		return nil, fmt.Errorf("at least one step is required")
	}
	return steps, nil
}

// VerifyOutcome carries per-slot verification results for one target.
// Results[i] corresponds to the target's i-th email candidate.
type VerifyOutcome struct {
	Results   []verify.Result `json:"results,omitempty"`
	BestEmail string          `json:"best_email,omitempty"`
}

// Target is one row moving through the pipeline: the caller's input
// fields plus typed stage results attached as stages complete.
type Target struct {
	Website string `json:"website"`
	URL     string `json:"url,omitempty"`
	Email   string `json:"email,omitempty"`
	Company string `json:"company,omitempty"`
	Name    string `json:"name,omitempty"`

	Blog   *blog.Result       `json:"blog_check,omitempty"`
	Scrape *scrape.SiteResult `json:"email_scrape,omitempty"`
	Verify *VerifyOutcome     `json:"email_verify,omitempty"`

	// StageErrors tags per-stage failures (timeouts, capacity waits)
	// without aborting the batch.
	StageErrors map[Step]string `json:"stage_errors,omitempty"`
}

// SiteKey returns the normalized host used as the persistence key.
func (t *Target) SiteKey() string {
	return scrape.SiteHost(t.pageURL())
}

func (t *Target) pageURL() string {
	if t.URL != "" {
		return t.URL
	}
	return t.Website
}

func (t *Target) tagError(step Step, msg string) {
	if t.StageErrors == nil {
		t.StageErrors = make(map[Step]string, 1)
	}
	t.StageErrors[step] = msg
}

// emailCandidates lists the addresses to verify for this target:
// scraped ranked emails first, falling back to the caller-provided
// address when scraping found nothing.
func (t *Target) emailCandidates(maxSlots int) []string {
	var out []string
	if t.Scrape != nil {
		for _, re := range t.Scrape.Emails {
			out = append(out, re.Email)
			if len(out) >= maxSlots {
				return out
			}
		}
	}
	if len(out) == 0 && t.Email != "" {
		out = append(out, t.Email)
	}
	return out
}

// Status is the lifecycle state of a run.
type Status string

// Run statuses; every status except running is terminal.
const (
	StatusRunning      Status = "running"
	StatusCompleted    Status = "completed"
	StatusFailed       Status = "failed"
	StatusTimeout      Status = "timeout"
	StatusStopped      Status = "stopped"
	StatusForceStopped Status = "force_stopped"
)

// Terminal reports whether the status ends the run.
func (s Status) Terminal() bool {
	return s != StatusRunning && s != ""
}

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}

// Run is one pipeline execution over a batch of targets. All mutable
// state sits behind a single mutex; counters reset at each step.
type Run struct {
	id       string
	uploadID string
	steps    []Step
	targets  []*Target

	mu          sync.Mutex
	status      Status
	errMsg      string
	currentStep Step
	stepIndex   int
	processed   int
	total       int
	startedAt   time.Time
	finishedAt  time.Time

	stop   atomic.Bool
	force  atomic.Bool
	cancel context.CancelFunc
}

func newRun(id, uploadID string, steps []Step, targets []Target, startedAt time.Time) *Run {
	owned := make([]*Target, len(targets))
	for i := range targets {
		t := targets[i]
		owned[i] = &t
	}
	return &Run{
		id:        id,
		uploadID:  uploadID,
		steps:     steps,
		targets:   owned,
		status:    StatusRunning,
		startedAt: startedAt,
	}
}

// ID returns the run identifier.
func (r *Run) ID() string { return r.id }

// UploadID returns the upload this run enriches.
func (r *Run) UploadID() string { return r.uploadID }

// Steps returns the deduplicated step plan.
func (r *Run) Steps() []Step {
	return append([]Step(nil), r.steps...)
}

// Stop requests a cooperative stop, observed at the next batch or stage
// boundary. In-flight items finish on their own timeouts.
func (r *Run) Stop() {
	r.stop.Store(true)
}

// requestForceStop cancels the run context so blocked acquires and
// in-flight items unwind immediately.
func (r *Run) requestForceStop() {
	r.force.Store(true)
	r.stop.Store(true)
	r.mu.Lock()
	cancel := r.cancel
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (r *Run) setCancel(cancel context.CancelFunc) {
	r.mu.Lock()
	r.cancel = cancel
	r.mu.Unlock()
}

func (r *Run) stopRequested() bool  { return r.stop.Load() }
func (r *Run) forceRequested() bool { return r.force.Load() }

func (r *Run) beginStep(step Step, index, total int) {
	r.mu.Lock()
	r.currentStep = step
	r.stepIndex = index
	r.processed = 0
	r.total = total
	r.mu.Unlock()
}

// markProcessed bumps the step counter and returns (processed, total).
func (r *Run) markProcessed() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.processed++
	return r.processed, r.total
}

// withLock runs fn under the run mutex; target mutation from worker
// goroutines goes through here so snapshots stay consistent.
func (r *Run) withLock(fn func()) {
	r.mu.Lock()
	fn()
	r.mu.Unlock()
}

func (r *Run) finish(status Status, errMsg string, at time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status.Terminal() {
		return false
	}
	r.status = status
	r.errMsg = errMsg
	r.finishedAt = at
	return true
}

// RunStatus is an immutable snapshot for API polling.
type RunStatus struct {
	ID          string     `json:"run_id"`
	UploadID    string     `json:"upload_id,omitempty"`
	Status      Status     `json:"status"`
	Steps       []Step     `json:"steps"`
	CurrentStep Step       `json:"current_step,omitempty"`
	StepIndex   int        `json:"step_index,omitempty"`
	Processed   int        `json:"processed"`
	Total       int        `json:"total"`
	Targets     int        `json:"targets"`
	Error       string     `json:"error,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
}

// Snapshot returns the current run state.
func (r *Run) Snapshot() RunStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := RunStatus{
		ID:          r.id,
		UploadID:    r.uploadID,
		Status:      r.status,
		Steps:       append([]Step(nil), r.steps...),
		CurrentStep: r.currentStep,
		StepIndex:   r.stepIndex,
		Processed:   r.processed,
		Total:       r.total,
		Targets:     len(r.targets),
		Error:       r.errMsg,
		StartedAt:   r.startedAt,
	}
	if !r.finishedAt.IsZero() {
		finished := r.finishedAt
		out.FinishedAt = &finished
	}
	return out
}

// Targets returns a copy of the run's targets with whatever stage
// results have been attached so far.
func (r *Run) Targets() []Target {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Target, len(r.targets))
	for i, t := range r.targets {
		out[i] = *t
	}
	return out
}
