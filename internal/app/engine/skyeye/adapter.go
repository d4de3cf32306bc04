// Package skyeye drives the external SkyEye simulation executable as a
// child process and normalizes its tabular output into time-series results.
package skyeye

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/simsynai/platform/internal/app/domain/simulation"
	"github.com/simsynai/platform/internal/app/engine"
	"github.com/simsynai/platform/pkg/logger"
)

const resultFileName = "results.csv"

// Config holds the adapter's injected settings. Nothing is read ambiently.
type Config struct {
	ExecutablePath string
	ModelsDir      string
	ResultsDir     string
	ExecTimeout    time.Duration
}

// Adapter runs simulations by invoking the SkyEye executable.
type Adapter struct {
	cfg Config
	log *logger.Logger

	mu      sync.Mutex
	running map[string]context.CancelFunc
}

var _ engine.Engine = (*Adapter)(nil)

// New creates an adapter with the given configuration.
func New(cfg Config, log *logger.Logger) *Adapter {
	if log == nil {
		log = logger.NewDefault("skyeye")
	}
	return &Adapter{
		cfg:     cfg,
		log:     log,
		running: make(map[string]context.CancelFunc),
	}
}

// Initialize verifies the executable and prepares the results directory.
// It returns false on failure so callers can degrade gracefully.
func (a *Adapter) Initialize(_ context.Context) bool {
	if a.cfg.ExecutablePath == "" {
		a.log.Warn("skyeye executable path not configured")
		return false
	}
	info, err := os.Stat(a.cfg.ExecutablePath)
	if err != nil || info.IsDir() {
		a.log.WithField("path", a.cfg.ExecutablePath).Warn("skyeye executable not found")
		return false
	}
	if err := os.MkdirAll(a.cfg.ResultsDir, 0o755); err != nil {
		a.log.WithError(err).Warn("cannot create results directory")
		return false
	}
	return true
}

// ValidateConfig checks the configuration without spawning a process.
func (a *Adapter) ValidateConfig(_ context.Context, cfg simulation.Config) engine.ValidationResult {
	var issues []string
	if cfg.Duration <= 0 {
		issues = append(issues, fmt.Sprintf("duration must be positive, got %g", cfg.Duration))
	}
	if cfg.StepSize <= 0 {
		issues = append(issues, fmt.Sprintf("step_size must be positive, got %g", cfg.StepSize))
	}
	if cfg.Duration > 0 && cfg.StepSize > cfg.Duration {
		issues = append(issues, fmt.Sprintf("step_size %g exceeds duration %g", cfg.StepSize, cfg.Duration))
	}
	if cfg.ModelPath == "" {
		issues = append(issues, "model_path is required")
	} else if _, err := os.Stat(cfg.ModelPath); err != nil {
		issues = append(issues, fmt.Sprintf("model %s is not accessible", cfg.ModelPath))
	}
	return engine.ValidationResult{Valid: len(issues) == 0, Issues: issues}
}

// RunSimulation executes one run. It always returns a well-formed result:
// every failure mode is classified into the result's error message and no
// fault escapes this boundary.
func (a *Adapter) RunSimulation(ctx context.Context, cfg simulation.Config, taskID string) (res simulation.Result) {
	defer func() {
		if r := recover(); r != nil {
			a.log.WithField("task_id", taskID).Errorf("simulation run panicked: %v", r)
			res = failedResult(taskID, fmt.Sprintf("internal engine fault: %v", r))
		}
	}()
	return a.run(ctx, cfg, taskID)
}

func (a *Adapter) run(ctx context.Context, cfg simulation.Config, taskID string) simulation.Result {
	resultDir := filepath.Join(a.cfg.ResultsDir, taskID)
	if err := os.MkdirAll(resultDir, 0o755); err != nil {
		return failedResult(taskID, fmt.Sprintf("create result directory: %v", err))
	}

	// Snapshot the config before launch, for reproducibility. The snapshot
	// is not part of the run outcome but a write failure still classifies
	// as a run failure since the directory is unusable.
	snapshot, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return failedResult(taskID, fmt.Sprintf("serialize config snapshot: %v", err))
	}
	if err := os.WriteFile(filepath.Join(resultDir, "config.json"), snapshot, 0o644); err != nil {
		return failedResult(taskID, fmt.Sprintf("write config snapshot: %v", err))
	}

	outputPath := filepath.Join(resultDir, resultFileName)
	args := buildArgs(cfg, outputPath)

	runCtx, cancel := a.runContext(ctx)
	defer cancel()
	a.track(taskID, cancel)
	defer a.untrack(taskID)

	cmd := exec.CommandContext(runCtx, a.cfg.ExecutablePath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	a.log.WithField("task_id", taskID).Infof("running simulation")
	a.log.Debugf("command: %s %s", a.cfg.ExecutablePath, strings.Join(args, " "))

	runErr := cmd.Run()

	// Persist the raw logs for postmortem diagnosis regardless of exit code.
	if err := os.WriteFile(filepath.Join(resultDir, "stdout.log"), stdout.Bytes(), 0o644); err != nil {
		return failedResult(taskID, fmt.Sprintf("write stdout log: %v", err))
	}
	if err := os.WriteFile(filepath.Join(resultDir, "stderr.log"), stderr.Bytes(), 0o644); err != nil {
		return failedResult(taskID, fmt.Sprintf("write stderr log: %v", err))
	}

	if runErr != nil {
		switch {
		case errors.Is(runCtx.Err(), context.DeadlineExceeded):
			return failedResult(taskID, fmt.Sprintf("simulation timed out after %s", a.cfg.ExecTimeout))
		case errors.Is(runCtx.Err(), context.Canceled):
			return failedResult(taskID, "simulation stopped")
		}
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			msg := strings.TrimSpace(stderr.String())
			if msg == "" {
				msg = runErr.Error()
			}
			a.log.WithField("task_id", taskID).Warnf("simulation failed: %s", msg)
			return failedResult(taskID, msg)
		}
		return failedResult(taskID, fmt.Sprintf("start simulation process: %v", runErr))
	}

	if _, err := os.Stat(outputPath); err != nil {
		return failedResult(taskID, "simulation completed but no result file was produced")
	}

	timePoints, data, err := parseResultTable(outputPath, cfg.OutputVariables)
	if err != nil {
		return failedResult(taskID, fmt.Sprintf("parse result table: %v", err))
	}

	return simulation.Result{
		TaskID:     taskID,
		Status:     simulation.StatusCompleted,
		Data:       data,
		TimePoints: timePoints,
		Metadata: map[string]any{
			"model":      cfg.ModelPath,
			"duration":   cfg.Duration,
			"step_size":  cfg.StepSize,
			"parameters": cfg.Parameters,
		},
	}
}

// GetStatus reports whether a run is currently tracked as in flight.
func (a *Adapter) GetStatus(_ context.Context, taskID string) engine.StatusInfo {
	a.mu.Lock()
	_, inFlight := a.running[taskID]
	a.mu.Unlock()

	state := simulation.StatusPending
	if inFlight {
		state = simulation.StatusRunning
	}
	return engine.StatusInfo{TaskID: taskID, State: state}
}

// StopSimulation cancels the run context of an in-flight task, killing the
// child process. The interrupted run classifies as failed with a stop
// message; partial output is not preserved.
func (a *Adapter) StopSimulation(_ context.Context, taskID string) bool {
	a.mu.Lock()
	cancel, ok := a.running[taskID]
	a.mu.Unlock()
	if !ok {
		return false
	}
	cancel()
	a.log.WithField("task_id", taskID).Info("simulation stop requested")
	return true
}

func (a *Adapter) runContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.cfg.ExecTimeout > 0 {
		return context.WithTimeout(ctx, a.cfg.ExecTimeout)
	}
	return context.WithCancel(ctx)
}

// track registers the cancel func for an in-flight run. Only the map access
// is guarded; the process wait itself never holds the lock, so concurrent
// runs do not serialize.
func (a *Adapter) track(taskID string, cancel context.CancelFunc) {
	a.mu.Lock()
	a.running[taskID] = cancel
	a.mu.Unlock()
}

func (a *Adapter) untrack(taskID string) {
	a.mu.Lock()
	delete(a.running, taskID)
	a.mu.Unlock()
}

// buildArgs assembles the command line. Parameters are emitted in sorted
// key order so the command is deterministic for logs and tests.
func buildArgs(cfg simulation.Config, outputPath string) []string {
	args := []string{
		"--model", cfg.ModelPath,
		"--duration", formatFloat(cfg.Duration),
		"--step", formatFloat(cfg.StepSize),
		"--output", outputPath,
	}

	keys := make([]string, 0, len(cfg.Parameters))
	for k := range cfg.Parameters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, "--param", fmt.Sprintf("%s=%v", k, cfg.Parameters[k]))
	}

	for _, v := range cfg.OutputVariables {
		args = append(args, "--output-var", v)
	}
	return args
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func failedResult(taskID, msg string) simulation.Result {
	return simulation.Result{
		TaskID:       taskID,
		Status:       simulation.StatusFailed,
		Data:         map[string][]float64{},
		TimePoints:   []float64{},
		ErrorMessage: msg,
	}
}
