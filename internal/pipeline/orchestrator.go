package pipeline

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/outreachkit/prospector/internal/blog"
	"github.com/outreachkit/prospector/internal/id/uuid"
	"github.com/outreachkit/prospector/internal/metrics"
	"github.com/outreachkit/prospector/internal/progress"
	"github.com/outreachkit/prospector/internal/publisher"
	"github.com/outreachkit/prospector/internal/scrape"
	"github.com/outreachkit/prospector/internal/store"
	"github.com/outreachkit/prospector/internal/verify"
)

const (
	defaultRunBudget       = 2 * time.Hour
	defaultCheckpointEvery = 25
	maxEmailSlots          = 3
	defaultPublishTopic    = "prospector-run-events"
)

// BlogChecker classifies one site.
type BlogChecker interface {
	CheckURL(ctx context.Context, url string) blog.Result
}

// SiteScraper extracts contacts from one site.
type SiteScraper interface {
	ScrapeSite(ctx context.Context, website string) scrape.SiteResult
}

// EmailVerifier checks deliverability for one address.
type EmailVerifier interface {
	Verify(ctx context.Context, email string) verify.Result
}

// StepConfig bounds one stage's concurrency and timeouts.
type StepConfig struct {
	Concurrency  int64
	BatchSize    int
	ItemTimeout  time.Duration
	BatchTimeout time.Duration
}

var defaultStepConfigs = map[Step]StepConfig{
	StepBlogCheck:   {Concurrency: 15, BatchSize: 25, ItemTimeout: 120 * time.Second, BatchTimeout: 20 * time.Minute},
	StepEmailScrape: {Concurrency: 12, BatchSize: 20, ItemTimeout: 300 * time.Second, BatchTimeout: 30 * time.Minute},
	StepEmailVerify: {Concurrency: 25, BatchSize: 30, ItemTimeout: 60 * time.Second, BatchTimeout: 15 * time.Minute},
}

// Config tunes the orchestrator. Zero values take defaults.
type Config struct {
	RunBudget       time.Duration
	CheckpointEvery int
	StepOverrides   map[Step]StepConfig
	PublishTopic    string
}

// Deps wires the orchestrator's collaborators. Repo, Publisher, and
// Emitter are optional; stages run without persistence or broadcast
// when they are nil.
type Deps struct {
	Checker   BlogChecker
	Scraper   SiteScraper
	Verifier  EmailVerifier
	Repo      store.TargetRepository
	Emitter   progress.Emitter
	Publisher publisher.Publisher
	Clock     Clock
	IDs       *uuid.Generator
	Logger    *zap.Logger
}

// Orchestrator runs enrichment pipelines. Stage semaphores are shared
// across runs so global concurrency stays bounded; force-stop swaps in
// fresh semaphores to reclaim capacity held by stuck items.
type Orchestrator struct {
	deps Deps
	cfg  Config

	semMu sync.Mutex
	sems  map[Step]*semaphore.Weighted

	runMu sync.RWMutex
	runs  map[string]*Run
}

// New builds an Orchestrator with defaulted config.
func New(deps Deps, cfg Config) *Orchestrator {
	if cfg.RunBudget <= 0 {
		cfg.RunBudget = defaultRunBudget
	}
	if cfg.CheckpointEvery <= 0 {
		cfg.CheckpointEvery = defaultCheckpointEvery
	}
	if cfg.PublishTopic == "" {
		cfg.PublishTopic = defaultPublishTopic
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Clock == nil {
		deps.Clock = systemClock{}
	}
	if deps.IDs == nil {
		deps.IDs = uuid.New()
	}
	return &Orchestrator{
		deps: deps,
		cfg:  cfg,
		sems: make(map[Step]*semaphore.Weighted),
		runs: make(map[string]*Run),
	}
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// StartRun registers a run and executes it in the background.
func (o *Orchestrator) StartRun(uploadID string, targets []Target, stepNames []string) (*Run, error) {
	steps, err := ParseSteps(stepNames)
	if err != nil {
		return nil, err
	}
	if len(targets) == 0 {
		return nil, fmt.Errorf("at least one target is required")
	}
	id, err := o.deps.IDs.NewID()
	if err != nil {
		return nil, fmt.Errorf("generate run id: %w", err)
	}
	run := newRun(id, uploadID, steps, targets, o.deps.Clock.Now())

	o.runMu.Lock()
	o.runs[run.ID()] = run
	o.runMu.Unlock()

	go o.execute(run)
	return run, nil
}

// Run looks up a run by ID.
func (o *Orchestrator) Run(id string) (*Run, bool) {
	o.runMu.RLock()
	defer o.runMu.RUnlock()
	run, ok := o.runs[id]
	return run, ok
}

// Runs returns snapshots of every known run, newest first.
func (o *Orchestrator) Runs() []RunStatus {
	o.runMu.RLock()
	defer o.runMu.RUnlock()
	out := make([]RunStatus, 0, len(o.runs))
	for _, run := range o.runs {
		out = append(out, run.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out
}

// StopRun requests a cooperative stop.
func (o *Orchestrator) StopRun(id string) error {
	run, ok := o.Run(id)
	if !ok {
		return fmt.Errorf("run %s not found", id)
	}
	run.Stop()
	return nil
}

// ForceStopRun cancels the run context and discards the shared stage
// semaphores so capacity held by stuck items is released.
func (o *Orchestrator) ForceStopRun(id string) error {
	run, ok := o.Run(id)
	if !ok {
		return fmt.Errorf("run %s not found", id)
	}
	run.requestForceStop()
	o.semMu.Lock()
	o.sems = make(map[Step]*semaphore.Weighted)
	o.semMu.Unlock()
	return nil
}

func (o *Orchestrator) stepConfig(step Step) StepConfig {
	cfg := defaultStepConfigs[step]
	if override, ok := o.cfg.StepOverrides[step]; ok {
		if override.Concurrency > 0 {
			cfg.Concurrency = override.Concurrency
		}
		if override.BatchSize > 0 {
			cfg.BatchSize = override.BatchSize
		}
		if override.ItemTimeout > 0 {
			cfg.ItemTimeout = override.ItemTimeout
		}
		if override.BatchTimeout > 0 {
			cfg.BatchTimeout = override.BatchTimeout
		}
	}
	return cfg
}

func (o *Orchestrator) semaphore(step Step, capacity int64) *semaphore.Weighted {
	o.semMu.Lock()
	defer o.semMu.Unlock()
	if sem, ok := o.sems[step]; ok {
		return sem
	}
	sem := semaphore.NewWeighted(capacity)
	o.sems[step] = sem
	return sem
}

// haltStatus reports the terminal status the run should take if a halt
// condition is pending, checked only at batch and stage boundaries.
func (o *Orchestrator) haltStatus(ctx context.Context, run *Run) (Status, bool) {
	switch {
	case run.forceRequested():
		return StatusForceStopped, true
	case run.stopRequested():
		return StatusStopped, true
	case ctx.Err() != nil:
		return StatusTimeout, true
	default:
		return StatusRunning, false
	}
}

func (o *Orchestrator) execute(run *Run) {
	ctx, cancel := context.WithTimeout(context.Background(), o.cfg.RunBudget)
	run.setCancel(cancel)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			o.deps.Logger.Error("run panicked", zap.String("run_id", run.ID()), zap.Any("panic", r))
			o.finishRun(run, StatusFailed, fmt.Sprintf("panic: %v", r))
		}
	}()

	o.emit(run, progress.Event{Type: progress.TypeStarted, Total: len(run.targets)})

	for i, step := range run.steps {
		if status, halted := o.haltStatus(ctx, run); halted {
			o.finishRun(run, status, "")
			return
		}
		o.runStep(ctx, run, step, i)
	}

	if status, halted := o.haltStatus(ctx, run); halted {
		o.finishRun(run, status, "")
		return
	}
	o.finishRun(run, StatusCompleted, "")
}

func (o *Orchestrator) runStep(ctx context.Context, run *Run, step Step, index int) {
	switch step {
	case StepBlogCheck:
		o.runTargetStep(ctx, run, step, index, o.processBlogCheck)
	case StepEmailScrape:
		o.runTargetStep(ctx, run, step, index, o.processScrape)
	case StepEmailVerify:
		o.runVerifyStep(ctx, run, index)
	}
}

// runTargetStep drives one target-scoped stage: batches, semaphore
// acquisition, per-item timeout, progress, and chunked checkpointing.
func (o *Orchestrator) runTargetStep(
	ctx context.Context,
	run *Run,
	step Step,
	index int,
	process func(ctx context.Context, run *Run, t *Target),
) {
	cfg := o.stepConfig(step)
	total := len(run.targets)
	run.beginStep(step, index, total)
	o.emitStep(run, progress.TypeStepStart, step, index, 0, 0, total, "")

	ck := newCheckpointer(o.deps.Repo, o.cfg.CheckpointEvery, o.deps.Logger)
	for start := 0; start < total; start += cfg.BatchSize {
		if _, halted := o.haltStatus(ctx, run); halted {
			break
		}
		end := start + cfg.BatchSize
		if end > total {
			end = total
		}
		o.runBatch(ctx, run, step, index, cfg, run.targets[start:end], ck, process)
	}
	ck.flush(ctx, stageFor(step))
	o.emitStep(run, progress.TypeStepComplete, step, index, 100, run.Snapshot().Processed, total, "")
}

func (o *Orchestrator) runBatch(
	ctx context.Context,
	run *Run,
	step Step,
	index int,
	cfg StepConfig,
	batch []*Target,
	ck *checkpointer,
	process func(ctx context.Context, run *Run, t *Target),
) {
	batchCtx, cancelBatch := context.WithTimeout(ctx, cfg.BatchTimeout)
	defer cancelBatch()

	var wg sync.WaitGroup
	for _, t := range batch {
		sem := o.semaphore(step, cfg.Concurrency)
		if err := sem.Acquire(batchCtx, 1); err != nil {
			run.withLock(func() { t.tagError(step, "batch_timeout") })
			continue
		}
		wg.Add(1)
		go func(t *Target) {
			defer wg.Done()
			defer sem.Release(1)

			itemCtx, cancelItem := context.WithTimeout(batchCtx, cfg.ItemTimeout)
			defer cancelItem()

			started := o.deps.Clock.Now()
			process(itemCtx, run, t)
			metrics.ObserveStageItem(string(step), o.deps.Clock.Now().Sub(started))

			processed, total := run.markProcessed()
			o.emitStep(run, progress.TypeProgress, step, index,
				percent(processed, total), processed, total, t.SiteKey())
			ck.add(ctx, stageFor(step), o.flatten(run, t, step))
		}(t)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-batchCtx.Done():
		// Abandon the batch; cancelBatch unwinds whatever is still
		// in flight and the next batch proceeds.
		o.deps.Logger.Warn("batch abandoned",
			zap.String("run_id", run.ID()),
			zap.String("step", string(step)),
			zap.Error(batchCtx.Err()))
	}
}

func (o *Orchestrator) processBlogCheck(ctx context.Context, run *Run, t *Target) {
	res := o.deps.Checker.CheckURL(ctx, t.pageURL())
	run.withLock(func() {
		t.Blog = &res
		if res.Error != "" {
			t.tagError(StepBlogCheck, res.Error)
		}
	})
}

func (o *Orchestrator) processScrape(ctx context.Context, run *Run, t *Target) {
	res := o.deps.Scraper.ScrapeSite(ctx, t.pageURL())
	run.withLock(func() {
		t.Scrape = &res
		if ctx.Err() != nil {
			t.tagError(StepEmailScrape, "timeout")
		}
	})
}

// runVerifyStep deduplicates email candidates across targets, verifies
// the unique set under the stage's concurrency bounds, then re-applies
// results to each target and selects its best email.
func (o *Orchestrator) runVerifyStep(ctx context.Context, run *Run, index int) {
	step := StepEmailVerify
	cfg := o.stepConfig(step)

	seen := make(map[string]struct{})
	var unique []string
	run.withLock(func() {
		for _, t := range run.targets {
			for _, email := range t.emailCandidates(maxEmailSlots) {
				key := verify.NormalizeEmail(email)
				if key == "" {
					continue
				}
				if _, dup := seen[key]; dup {
					continue
				}
				seen[key] = struct{}{}
				unique = append(unique, key)
			}
		}
	})

	total := len(unique)
	run.beginStep(step, index, total)
	o.emitStep(run, progress.TypeStepStart, step, index, 0, 0, total, "")

	results := make(map[string]verify.Result, total)
	var resultsMu sync.Mutex

	for start := 0; start < total; start += cfg.BatchSize {
		if _, halted := o.haltStatus(ctx, run); halted {
			break
		}
		end := start + cfg.BatchSize
		if end > total {
			end = total
		}
		o.runVerifyBatch(ctx, run, step, index, cfg, unique[start:end], results, &resultsMu)
	}

	o.applyVerifyResults(run, results)

	ck := newCheckpointer(o.deps.Repo, o.cfg.CheckpointEvery, o.deps.Logger)
	now := o.deps.Clock.Now()
	run.withLock(func() {
		for _, t := range run.targets {
			if t.Verify == nil {
				continue
			}
			ck.add(ctx, stageFor(step), recordFor(run.uploadID, t, step, now))
		}
	})
	ck.flush(ctx, stageFor(step))
	o.emitStep(run, progress.TypeStepComplete, step, index, 100, run.Snapshot().Processed, total, "")
}

func (o *Orchestrator) runVerifyBatch(
	ctx context.Context,
	run *Run,
	step Step,
	index int,
	cfg StepConfig,
	batch []string,
	results map[string]verify.Result,
	resultsMu *sync.Mutex,
) {
	batchCtx, cancelBatch := context.WithTimeout(ctx, cfg.BatchTimeout)
	defer cancelBatch()

	var wg sync.WaitGroup
	for _, email := range batch {
		sem := o.semaphore(step, cfg.Concurrency)
		if err := sem.Acquire(batchCtx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(email string) {
			defer wg.Done()
			defer sem.Release(1)

			itemCtx, cancelItem := context.WithTimeout(batchCtx, cfg.ItemTimeout)
			defer cancelItem()

			started := o.deps.Clock.Now()
			res := o.deps.Verifier.Verify(itemCtx, email)
			metrics.ObserveStageItem(string(step), o.deps.Clock.Now().Sub(started))

			resultsMu.Lock()
			results[email] = res
			resultsMu.Unlock()

			processed, total := run.markProcessed()
			o.emitStep(run, progress.TypeProgress, step, index,
				percent(processed, total), processed, total, email)
		}(email)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-batchCtx.Done():
		o.deps.Logger.Warn("batch abandoned",
			zap.String("run_id", run.ID()),
			zap.String("step", string(step)),
			zap.Error(batchCtx.Err()))
	}
}

func (o *Orchestrator) applyVerifyResults(run *Run, results map[string]verify.Result) {
	run.withLock(func() {
		for _, t := range run.targets {
			candidates := t.emailCandidates(maxEmailSlots)
			if len(candidates) == 0 {
				continue
			}
			out := &VerifyOutcome{Results: make([]verify.Result, 0, len(candidates))}
			for _, email := range candidates {
				key := verify.NormalizeEmail(email)
				res, ok := results[key]
				if !ok {
					res = verify.Result{Email: key, Status: verify.StatusError, Notes: "not_verified"}
				}
				out.Results = append(out.Results, res)
			}
			out.BestEmail = bestEmail(out.Results)
			t.Verify = out
		}
	})
}

// bestEmail picks the highest-(valid, quality) candidate; ties keep the
// earlier slot, which carries the higher rank score.
func bestEmail(results []verify.Result) string {
	best := -1
	bestScore := -1
	for i, res := range results {
		score := res.Quality
		if res.Valid {
			score += 1000
		}
		if score > bestScore {
			bestScore = score
			best = i
		}
	}
	if best < 0 {
		return ""
	}
	return results[best].Email
}

func (o *Orchestrator) flatten(run *Run, t *Target, step Step) store.TargetRecord {
	var rec store.TargetRecord
	run.withLock(func() {
		rec = recordFor(run.uploadID, t, step, o.deps.Clock.Now())
	})
	return rec
}

func (o *Orchestrator) finishRun(run *Run, status Status, message string) {
	if !run.finish(status, message, o.deps.Clock.Now()) {
		return
	}
	metrics.ObserveRun(string(status))

	eventType := map[Status]progress.Type{
		StatusCompleted:    progress.TypeCompleted,
		StatusFailed:       progress.TypeError,
		StatusTimeout:      progress.TypeTimeout,
		StatusStopped:      progress.TypeStopped,
		StatusForceStopped: progress.TypeForceStopped,
	}[status]
	o.emit(run, progress.Event{Type: eventType, Message: message, Progress: 100})

	if status == StatusCompleted && o.deps.Publisher != nil {
		snap := run.Snapshot()
		payload := map[string]any{
			"run_id":    snap.ID,
			"upload_id": snap.UploadID,
			"status":    string(snap.Status),
			"processed": snap.Processed,
			"total":     snap.Total,
			"timestamp": o.deps.Clock.Now(),
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if _, err := o.deps.Publisher.Publish(ctx, o.cfg.PublishTopic, payload); err != nil {
			o.deps.Logger.Warn("run notification publish failed",
				zap.String("run_id", run.ID()), zap.Error(err))
		}
	}
}

func (o *Orchestrator) emit(run *Run, evt progress.Event) {
	if o.deps.Emitter == nil {
		return
	}
	evt.RunID = run.ID()
	evt.TS = o.deps.Clock.Now()
	o.deps.Emitter.Emit(evt)
}

func (o *Orchestrator) emitStep(
	run *Run,
	typ progress.Type,
	step Step,
	index int,
	pct float64,
	processed, total int,
	currentItem string,
) {
	o.emit(run, progress.Event{
		Type:        typ,
		Step:        string(step),
		StepIndex:   index + 1,
		TotalSteps:  len(run.steps),
		Progress:    pct,
		Processed:   processed,
		Total:       total,
		CurrentItem: currentItem,
	})
}

func percent(processed, total int) float64 {
	if total <= 0 {
		return 100
	}
	pct := float64(processed) / float64(total) * 100
	if pct > 100 {
		pct = 100
	}
	return pct
}
