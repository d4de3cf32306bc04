// Package engine defines the capability interface over simulation engines.
// The orchestrator depends only on this contract, so an external-process
// adapter, an in-process solver, or a test stub can be substituted freely.
package engine

import (
	"context"

	"github.com/simsynai/platform/internal/app/domain/simulation"
)

// ValidationResult reports the outcome of validating a run configuration.
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Issues []string `json:"issues,omitempty"`
}

// StatusInfo reports engine-side progress for a run, independent of the
// durable task record.
type StatusInfo struct {
	TaskID   string            `json:"task_id"`
	State    simulation.Status `json:"state"`
	Progress float64           `json:"progress"`
}

// Engine is the contract every simulation engine implements.
//
// RunSimulation never fails past this boundary: it returns a Result with
// status completed or failed, classifying every internal fault into the
// result's error message. Callers receive a value, never a panic or an
// unhandled error.
type Engine interface {
	// Initialize prepares engine-wide resources. It fails by returning
	// false rather than an error so callers can degrade gracefully.
	Initialize(ctx context.Context) bool

	// ValidateConfig checks a configuration without executing anything.
	ValidateConfig(ctx context.Context, cfg simulation.Config) ValidationResult

	// RunSimulation executes one run and blocks until it terminates.
	RunSimulation(ctx context.Context, cfg simulation.Config, taskID string) simulation.Result

	// GetStatus queries engine-side progress for a run.
	GetStatus(ctx context.Context, taskID string) StatusInfo

	// StopSimulation cancels an in-flight run, best effort. It reports
	// whether a run with the given id was found and signalled.
	StopSimulation(ctx context.Context, taskID string) bool

	// GetAvailableModels lists the models the engine can execute.
	GetAvailableModels(ctx context.Context) ([]simulation.ModelDescriptor, error)

	// GetModelParameters fetches the parameter schema of a model.
	GetModelParameters(ctx context.Context, modelPath string) (map[string]any, error)
}
