// Package progress defines the event stream emitted by pipeline runs
// and the hub that fans events out to sinks.
package progress

import (
	"errors"
	"fmt"
	"time"
)

// Type names a run lifecycle or step milestone.
type Type string

// Supported event types.
const (
	TypeStarted      Type = "started"
	TypeStepStart    Type = "step_start"
	TypeProgress     Type = "progress"
	TypeStepComplete Type = "step_complete"
	TypeCompleted    Type = "completed"
	TypeTimeout      Type = "timeout"
	TypeError        Type = "error"
	TypeStopped      Type = "stopped"
	TypeForceStopped Type = "force_stopped"
)

// Event is one milestone in a pipeline run.
type Event struct {
	// RunID identifies the run this event belongs to.
	RunID string `json:"run_id"`
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time `json:"ts"`
	// Type denotes which lifecycle or step milestone occurred.
	Type Type `json:"type"`
	// Step names the pipeline stage for step-scoped events.
	Step string `json:"step,omitempty"`
	// StepIndex and TotalSteps position the step within the run plan.
	StepIndex  int `json:"step_index,omitempty"`
	TotalSteps int `json:"total_steps,omitempty"`
	// Progress is the percent complete for the current step, 0 to 100.
	Progress float64 `json:"progress"`
	// Processed and Total count items within the current step.
	Processed int `json:"processed"`
	Total     int `json:"total"`
	// CurrentItem is the website being worked when the event fired.
	CurrentItem string `json:"current_item,omitempty"`
	// Message carries low-volume context, such as error text.
	Message string `json:"message,omitempty"`
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == "" {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Type {
	case TypeStarted, TypeCompleted, TypeTimeout, TypeError, TypeStopped, TypeForceStopped:
	case TypeStepStart, TypeProgress, TypeStepComplete:
		if e.Step == "" {
			return fmt.Errorf("%s requires a step name", e.Type)
		}
	default:
		return fmt.Errorf("unknown event type %q", e.Type)
	}
	if e.Progress < 0 || e.Progress > 100 {
		return errors.New("progress must be within [0, 100]")
	}
	if e.Processed < 0 || e.Total < 0 {
		return errors.New("counts must be >= 0")
	}
	return nil
}

// Terminal reports whether the event ends its run.
func (e Event) Terminal() bool {
	switch e.Type {
	case TypeCompleted, TypeTimeout, TypeError, TypeStopped, TypeForceStopped:
		return true
	default:
		return false
	}
}
