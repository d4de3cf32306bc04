// Package simulation coordinates the task lifecycle: record creation,
// status transitions, engine invocation, and result persistence.
package simulation

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/simsynai/platform/internal/app/domain/simulation"
	"github.com/simsynai/platform/internal/app/engine"
	"github.com/simsynai/platform/internal/app/metrics"
	"github.com/simsynai/platform/internal/app/storage"
	"github.com/simsynai/platform/pkg/logger"
)

// Service is the simulation orchestrator. Its public operations never let a
// fault escape: every outcome is a value, so callers can poll safely and
// task records always reach a terminal status.
type Service struct {
	tasks      storage.TaskStore
	results    storage.ResultStore
	users      storage.UserStore
	engine     engine.Engine
	resultsDir string
	log        *logger.Logger
}

// New creates a configured simulation service. The users store is optional;
// when present, task owners are validated on creation.
func New(tasks storage.TaskStore, results storage.ResultStore, users storage.UserStore, eng engine.Engine, resultsDir string, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("simulation")
	}
	return &Service{
		tasks:      tasks,
		results:    results,
		users:      users,
		engine:     eng,
		resultsDir: resultsDir,
		log:        log,
	}
}

// CreateTaskInput carries the submission fields for a new task.
type CreateTaskInput struct {
	Name            string         `json:"name"`
	Description     string         `json:"description"`
	ModelPath       string         `json:"model_path"`
	Parameters      map[string]any `json:"parameters"`
	Duration        float64        `json:"duration"`
	StepSize        float64        `json:"step_size"`
	OutputVariables []string       `json:"output_variables"`
}

// CreateTask allocates an id and persists a pending task record. No engine
// interaction happens here.
func (s *Service) CreateTask(ctx context.Context, ownerID string, in CreateTaskInput) (simulation.Task, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return simulation.Task{}, fmt.Errorf("owner_id is required")
	}
	if strings.TrimSpace(in.Name) == "" {
		return simulation.Task{}, fmt.Errorf("name is required")
	}
	if in.ModelPath == "" {
		return simulation.Task{}, fmt.Errorf("model_path is required")
	}

	cfg := simulation.Config{
		Parameters:      in.Parameters,
		ModelPath:       in.ModelPath,
		Duration:        in.Duration,
		StepSize:        in.StepSize,
		OutputVariables: in.OutputVariables,
	}
	if err := cfg.Validate(); err != nil {
		return simulation.Task{}, err
	}

	if s.users != nil {
		if _, err := s.users.GetUser(ctx, ownerID); err != nil {
			return simulation.Task{}, fmt.Errorf("owner validation failed: %w", err)
		}
	}

	task := simulation.Task{
		ID:              uuid.NewString(),
		OwnerID:         ownerID,
		Name:            in.Name,
		Description:     in.Description,
		Status:          simulation.StatusPending,
		Parameters:      in.Parameters,
		ModelPath:       in.ModelPath,
		Duration:        in.Duration,
		StepSize:        in.StepSize,
		OutputVariables: in.OutputVariables,
	}

	task, err := s.tasks.CreateTask(ctx, task)
	if err != nil {
		return simulation.Task{}, err
	}

	s.log.WithField("task_id", task.ID).
		WithField("owner_id", ownerID).
		Info("simulation task created")
	return task, nil
}

// GetTask fetches a task by identifier.
func (s *Service) GetTask(ctx context.Context, id string) (simulation.Task, error) {
	return s.tasks.GetTask(ctx, id)
}

// ListTasks lists an owner's tasks, newest first.
func (s *Service) ListTasks(ctx context.Context, ownerID string, skip, limit int) ([]simulation.Task, error) {
	return s.tasks.ListTasks(ctx, ownerID, skip, limit)
}

// UpdateTask applies a partial update to a pending task. Tasks that have
// started or finished are immutable; the call then returns (nil, nil) so
// callers can distinguish "not updated" from "not found".
func (s *Service) UpdateTask(ctx context.Context, id string, patch simulation.TaskPatch) (*simulation.Task, error) {
	task, err := s.tasks.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}

	if task.Status != simulation.StatusPending {
		s.log.WithField("task_id", id).
			WithField("status", string(task.Status)).
			Debug("update rejected: task is not pending")
		return nil, nil
	}

	if patch.Name != nil {
		trimmed := strings.TrimSpace(*patch.Name)
		if trimmed == "" {
			return nil, fmt.Errorf("name cannot be empty")
		}
		task.Name = trimmed
	}
	if patch.Description != nil {
		task.Description = *patch.Description
	}
	if patch.ModelPath != nil {
		task.ModelPath = *patch.ModelPath
	}
	if patch.Parameters != nil {
		task.Parameters = patch.Parameters
	}
	if patch.Duration != nil {
		task.Duration = *patch.Duration
	}
	if patch.StepSize != nil {
		task.StepSize = *patch.StepSize
	}
	if patch.OutputVariables != nil {
		task.OutputVariables = patch.OutputVariables
	}

	if err := task.Config().Validate(); err != nil {
		return nil, err
	}

	task, err = s.tasks.UpdateTask(ctx, task)
	if err != nil {
		return nil, err
	}
	s.log.WithField("task_id", id).Info("simulation task updated")
	return &task, nil
}

// ExecuteTask drives one task through running to a terminal status. The
// running transition is committed before the engine is invoked, so a crash
// mid-run leaves a recoverable record instead of a lost request. The task
// always reaches completed or failed on return.
func (s *Service) ExecuteTask(ctx context.Context, id string) (*simulation.Task, error) {
	task, err := s.tasks.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	if task.Status != simulation.StatusPending {
		return nil, fmt.Errorf("task %s is %s; only pending tasks can be executed", id, task.Status)
	}

	cfg := task.Config()
	if vr := s.engine.ValidateConfig(ctx, cfg); !vr.Valid {
		// Refused before any process is spawned; the record still reaches
		// a queryable terminal state.
		task = s.finishTask(ctx, task, simulation.Result{
			TaskID:       id,
			Status:       simulation.StatusFailed,
			Data:         map[string][]float64{},
			TimePoints:   []float64{},
			ErrorMessage: "config validation failed: " + strings.Join(vr.Issues, "; "),
		})
		return &task, nil
	}

	task.Status = simulation.StatusRunning
	task, err = s.tasks.UpdateTask(ctx, task)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	result := s.runEngine(ctx, cfg, id)
	metrics.RecordSimulationExecution(string(result.Status), time.Since(start))

	task = s.finishTask(ctx, task, result)
	return &task, nil
}

// runEngine invokes the engine, defensively converting any contract
// violation (panic) into a classified failure.
func (s *Service) runEngine(ctx context.Context, cfg simulation.Config, taskID string) (result simulation.Result) {
	defer func() {
		if r := recover(); r != nil {
			s.log.WithField("task_id", taskID).Errorf("engine panicked: %v", r)
			result = simulation.Result{
				TaskID:       taskID,
				Status:       simulation.StatusFailed,
				Data:         map[string][]float64{},
				TimePoints:   []float64{},
				ErrorMessage: fmt.Sprintf("engine fault: %v", r),
			}
		}
	}()
	return s.engine.RunSimulation(ctx, cfg, taskID)
}

// finishTask persists the normalized result artifact, then commits the
// terminal task state, in that order: a crash between the two leaves an
// artifact with a stale status rather than a status pointing at nothing.
func (s *Service) finishTask(ctx context.Context, task simulation.Task, result simulation.Result) simulation.Task {
	now := time.Now().UTC()

	resultPath, err := s.writeArtifact(task.ID, result)
	if err != nil {
		s.log.WithField("task_id", task.ID).WithError(err).Error("persist result artifact")
		result.Status = simulation.StatusFailed
		if result.ErrorMessage == "" {
			result.ErrorMessage = fmt.Sprintf("persist result: %v", err)
		}
		resultPath = ""
	}

	task.Status = result.Status
	task.ResultPath = resultPath
	task.ErrorMessage = result.ErrorMessage
	task.CompletedAt = &now

	updated, err := s.tasks.UpdateTask(ctx, task)
	if err != nil {
		// The artifact exists; the record is stale. Log loudly and return
		// the in-memory view so the caller still sees the terminal state.
		s.log.WithField("task_id", task.ID).WithError(err).Error("commit terminal task state")
		updated = task
	}

	if resultPath != "" {
		if _, err := s.results.CreateResult(ctx, simulation.ResultRecord{
			TaskID:   task.ID,
			DataPath: resultPath,
			Metadata: result.Metadata,
		}); err != nil {
			s.log.WithField("task_id", task.ID).WithError(err).Warn("record result index row")
		}
	}

	s.log.WithField("task_id", task.ID).
		WithField("status", string(updated.Status)).
		Info("simulation task finished")
	return updated
}

func (s *Service) writeArtifact(taskID string, result simulation.Result) (string, error) {
	if err := os.MkdirAll(s.resultsDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(s.resultsDir, taskID+".json")
	data, err := json.Marshal(result)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// GetTaskResult loads the task's result artifact and reshapes it into an
// ordered sequence of per-time points. A missing or unreadable artifact
// yields a failed-shaped response carrying the task's current status, never
// an error for the transient condition.
func (s *Service) GetTaskResult(ctx context.Context, id string) (*simulation.DataResponse, error) {
	task, err := s.tasks.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}

	if task.ResultPath == "" {
		return unavailableResult(task, "result data is not available"), nil
	}
	data, err := os.ReadFile(task.ResultPath)
	if err != nil {
		if os.IsNotExist(err) {
			return unavailableResult(task, "result data is not available"), nil
		}
		return unavailableResult(task, fmt.Sprintf("read result data: %v", err)), nil
	}

	var result simulation.Result
	if err := json.Unmarshal(data, &result); err != nil {
		return unavailableResult(task, fmt.Sprintf("decode result data: %v", err)), nil
	}

	points := make([]simulation.DataPoint, 0, len(result.TimePoints))
	for i, t := range result.TimePoints {
		values := make(map[string]float64, len(result.Data))
		for name, series := range result.Data {
			if i < len(series) {
				values[name] = series[i]
			}
		}
		points = append(points, simulation.DataPoint{Time: t, Values: values})
	}

	metadata := result.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	return &simulation.DataResponse{
		TaskID:       id,
		Status:       task.Status,
		Data:         points,
		Metadata:     metadata,
		ErrorMessage: result.ErrorMessage,
	}, nil
}

func unavailableResult(task simulation.Task, msg string) *simulation.DataResponse {
	return &simulation.DataResponse{
		TaskID:       task.ID,
		Status:       task.Status,
		Data:         []simulation.DataPoint{},
		Metadata:     map[string]any{},
		ErrorMessage: msg,
	}
}

// StopTask requests cancellation of an in-flight run.
func (s *Service) StopTask(ctx context.Context, id string) bool {
	return s.engine.StopSimulation(ctx, id)
}

// GetAvailableModels returns the engine's model catalog. Catalog browsing
// must not crash the caller, so engine failures degrade to an empty list.
func (s *Service) GetAvailableModels(ctx context.Context) []simulation.ModelDescriptor {
	models, err := s.engine.GetAvailableModels(ctx)
	if err != nil {
		s.log.WithError(err).Warn("list available models")
		return []simulation.ModelDescriptor{}
	}
	return models
}

// GetModelParameters returns a model's parameter schema.
func (s *Service) GetModelParameters(ctx context.Context, modelPath string) (map[string]any, error) {
	return s.engine.GetModelParameters(ctx, modelPath)
}
