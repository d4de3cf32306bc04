// Package simulation defines the value objects of the simulation domain:
// run configurations, durable task records, and normalized results.
package simulation

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of a task. Transitions are monotonic:
// pending -> running -> completed | failed.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether no further automatic transition occurs.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Config describes one simulation run. It is constructed per invocation and
// never touches the filesystem or network itself.
type Config struct {
	Parameters      map[string]any `json:"parameters"`
	ModelPath       string         `json:"model_path"`
	Duration        float64        `json:"duration"`
	StepSize        float64        `json:"step_size"`
	OutputVariables []string       `json:"output_variables"`
}

// Validate checks the structural constraints of the value object. Semantic
// checks against the engine (model existence, step/duration relation) are
// the engine's ValidateConfig concern.
func (c Config) Validate() error {
	if c.Duration <= 0 {
		return fmt.Errorf("duration must be positive, got %g", c.Duration)
	}
	if c.StepSize <= 0 {
		return fmt.Errorf("step_size must be positive, got %g", c.StepSize)
	}
	return nil
}

// Task is the durable record describing one submitted simulation job.
type Task struct {
	ID              string         `json:"id"`
	OwnerID         string         `json:"owner_id"`
	Name            string         `json:"name"`
	Description     string         `json:"description,omitempty"`
	Status          Status         `json:"status"`
	Parameters      map[string]any `json:"parameters"`
	ModelPath       string         `json:"model_path"`
	Duration        float64        `json:"duration"`
	StepSize        float64        `json:"step_size"`
	OutputVariables []string       `json:"output_variables"`
	ResultPath      string         `json:"result_path,omitempty"`
	ErrorMessage    string         `json:"error_message,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	CompletedAt     *time.Time     `json:"completed_at,omitempty"`
}

// Config returns the run configuration snapshotted on the task.
func (t Task) Config() Config {
	return Config{
		Parameters:      t.Parameters,
		ModelPath:       t.ModelPath,
		Duration:        t.Duration,
		StepSize:        t.StepSize,
		OutputVariables: t.OutputVariables,
	}
}

// TaskPatch is a partial update applied to a pending task. Nil fields are
// left unchanged.
type TaskPatch struct {
	Name            *string        `json:"name,omitempty"`
	Description     *string        `json:"description,omitempty"`
	ModelPath       *string        `json:"model_path,omitempty"`
	Parameters      map[string]any `json:"parameters,omitempty"`
	Duration        *float64       `json:"duration,omitempty"`
	StepSize        *float64       `json:"step_size,omitempty"`
	OutputVariables []string       `json:"output_variables,omitempty"`
}

// Result is the normalized artifact of one run. For a completed run every
// series in Data is index-aligned with TimePoints.
type Result struct {
	TaskID       string               `json:"task_id"`
	Status       Status               `json:"status"`
	Data         map[string][]float64 `json:"data"`
	TimePoints   []float64            `json:"time_points"`
	Metadata     map[string]any       `json:"metadata"`
	ErrorMessage string               `json:"error_message,omitempty"`
}

// ResultRecord is the index row linking a task to its persisted artifact.
type ResultRecord struct {
	ID        string         `json:"id"`
	TaskID    string         `json:"task_id"`
	DataPath  string         `json:"data_path"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// DataPoint is one reshaped sample of a result, aligning every variable's
// value at a single time.
type DataPoint struct {
	Time   float64            `json:"time"`
	Values map[string]float64 `json:"values"`
}

// DataResponse is the presentation shape served to result readers. It is
// derived from the stored artifact on every read and never cached.
type DataResponse struct {
	TaskID       string         `json:"task_id"`
	Status       Status         `json:"status"`
	Data         []DataPoint    `json:"data"`
	Metadata     map[string]any `json:"metadata"`
	ErrorMessage string         `json:"error_message,omitempty"`
}

// ModelDescriptor describes one model available to the engine.
type ModelDescriptor struct {
	Name     string    `json:"name"`
	Path     string    `json:"path"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
}
