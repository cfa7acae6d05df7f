package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/outreachkit/prospector/internal/pipeline"
)

// newRunCmd creates the 'run' subcommand for one-shot enrichment.
func newRunCmd() *cobra.Command {
	var (
		uploadID    string
		targetsPath string
		steps       []string
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Runs one enrichment pass over a targets file",
		Long: `Loads a JSON array of targets, runs the requested pipeline steps
to completion, and writes the enriched targets to stdout. Interrupting the
process requests a cooperative stop at the next batch boundary.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRunCommand(cmd.Context(), uploadID, targetsPath, steps)
		},
	}
	cmd.Flags().StringVar(&uploadID, "upload-id", "", "upload identifier for persisted rows")
	cmd.Flags().StringVar(&targetsPath, "targets", "", "path to a JSON array of targets")
	cmd.Flags().StringSliceVar(&steps, "steps", []string{"blog_check", "email_scrape", "email_verify"},
		"pipeline steps to execute, in order")
	_ = cmd.MarkFlagRequired("upload-id")
	_ = cmd.MarkFlagRequired("targets")
	return cmd
}

func runRunCommand(parent context.Context, uploadID, targetsPath string, steps []string) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	targets, err := loadTargets(targetsPath)
	if err != nil {
		return err
	}

	svc, err := buildServices(ctx)
	if err != nil {
		return err
	}
	logger := svc.logger

	run, err := svc.orchestrator.StartRun(uploadID, targets, steps)
	if err != nil {
		return fmt.Errorf("start run: %w", err)
	}
	logger.Info("run started",
		zap.String("run_id", run.ID()),
		zap.String("upload_id", uploadID),
		zap.Int("targets", len(targets)))

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	interrupt := ctx.Done()
	for {
		select {
		case <-interrupt:
			logger.Info("interrupt received, stopping at next batch boundary")
			run.Stop()
			interrupt = nil
		case <-ticker.C:
		}
		if run.Snapshot().Status.Terminal() {
			break
		}
	}

	snap := run.Snapshot()
	logger.Info("run finished",
		zap.String("run_id", snap.ID),
		zap.String("status", string(snap.Status)),
		zap.Int("processed", snap.Processed))

	closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	svc.close(closeCtx)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(run.Targets()); err != nil {
		return fmt.Errorf("encode results: %w", err)
	}
	if snap.Status != pipeline.StatusCompleted {
		return fmt.Errorf("run ended with status %s", snap.Status)
	}
	return nil
}

func loadTargets(path string) ([]pipeline.Target, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read targets file: %w", err)
	}
	var targets []pipeline.Target
	if err := json.Unmarshal(data, &targets); err != nil {
		return nil, fmt.Errorf("parse targets file: %w", err)
	}
	return targets, nil
}
