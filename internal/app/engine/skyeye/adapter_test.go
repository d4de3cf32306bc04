package skyeye

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/simsynai/platform/internal/app/domain/simulation"
)

// writeScript installs an executable shell script standing in for the real
// engine binary.
func writeScript(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "skyeye")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

// captureOutput is shared script plumbing that extracts the --output flag.
const captureOutput = `out=""
prev=""
for arg in "$@"; do
  if [ "$prev" = "--output" ]; then out="$arg"; fi
  prev="$arg"
done
`

func newTestAdapter(t *testing.T, script string) *Adapter {
	t.Helper()
	return New(Config{
		ExecutablePath: script,
		ModelsDir:      t.TempDir(),
		ResultsDir:     t.TempDir(),
		ExecTimeout:    time.Minute,
	}, nil)
}

func testConfig(t *testing.T, outputVars ...string) simulation.Config {
	t.Helper()
	model := filepath.Join(t.TempDir(), "demo.mdl")
	if err := os.WriteFile(model, []byte("model"), 0o644); err != nil {
		t.Fatalf("write model: %v", err)
	}
	return simulation.Config{
		ModelPath:       model,
		Duration:        1.0,
		StepSize:        0.5,
		OutputVariables: outputVars,
	}
}

func TestRunSimulationSuccess(t *testing.T) {
	script := writeScript(t, t.TempDir(), captureOutput+`cat > "$out" <<CSV
time,x,y
0,1,10
0.5,2,20
1,3,30
CSV
`)
	a := newTestAdapter(t, script)

	res := a.RunSimulation(context.Background(), testConfig(t), "task-1")
	require.Equal(t, simulation.StatusCompleted, res.Status)
	require.Empty(t, res.ErrorMessage)
	require.Equal(t, []float64{0, 0.5, 1}, res.TimePoints)
	require.Equal(t, []float64{1, 2, 3}, res.Data["x"])
	require.Equal(t, []float64{10, 20, 30}, res.Data["y"])
	require.Equal(t, 1.0, res.Metadata["duration"])

	// Run directory keeps the config snapshot and raw logs.
	runDir := filepath.Join(a.cfg.ResultsDir, "task-1")
	for _, name := range []string{"config.json", "stdout.log", "stderr.log", "results.csv"} {
		if _, err := os.Stat(filepath.Join(runDir, name)); err != nil {
			t.Fatalf("expected %s in run directory: %v", name, err)
		}
	}
}

func TestRunSimulationMissingRequestedColumn(t *testing.T) {
	script := writeScript(t, t.TempDir(), captureOutput+`cat > "$out" <<CSV
time,x
0,1
1,2
CSV
`)
	a := newTestAdapter(t, script)

	res := a.RunSimulation(context.Background(), testConfig(t, "x", "ghost"), "task-2")
	require.Equal(t, simulation.StatusCompleted, res.Status)
	require.Equal(t, []float64{1, 2}, res.Data["x"])
	_, ok := res.Data["ghost"]
	require.False(t, ok, "absent column must be omitted, not invented")
}

func TestRunSimulationNonZeroExit(t *testing.T) {
	script := writeScript(t, t.TempDir(), `echo "solver diverged at t=0.3" >&2
exit 3
`)
	a := newTestAdapter(t, script)

	res := a.RunSimulation(context.Background(), testConfig(t), "task-3")
	require.Equal(t, simulation.StatusFailed, res.Status)
	require.Equal(t, "solver diverged at t=0.3", res.ErrorMessage)
	require.Empty(t, res.TimePoints)
}

func TestRunSimulationNoOutputFile(t *testing.T) {
	script := writeScript(t, t.TempDir(), `exit 0
`)
	a := newTestAdapter(t, script)

	res := a.RunSimulation(context.Background(), testConfig(t), "task-4")
	require.Equal(t, simulation.StatusFailed, res.Status)
	require.Equal(t, "simulation completed but no result file was produced", res.ErrorMessage)
}

func TestRunSimulationMissingExecutable(t *testing.T) {
	a := New(Config{
		ExecutablePath: filepath.Join(t.TempDir(), "no-such-binary"),
		ResultsDir:     t.TempDir(),
	}, nil)

	res := a.RunSimulation(context.Background(), testConfig(t), "task-5")
	require.Equal(t, simulation.StatusFailed, res.Status)
	require.Contains(t, res.ErrorMessage, "start simulation process")
}

func TestStopSimulation(t *testing.T) {
	script := writeScript(t, t.TempDir(), `sleep 30
`)
	a := newTestAdapter(t, script)

	done := make(chan simulation.Result, 1)
	go func() {
		done <- a.RunSimulation(context.Background(), testConfig(t), "task-6")
	}()

	// Wait for the run to register itself.
	deadline := time.After(5 * time.Second)
	for a.GetStatus(context.Background(), "task-6").State != simulation.StatusRunning {
		select {
		case <-deadline:
			t.Fatal("run never became tracked")
		case <-time.After(10 * time.Millisecond):
		}
	}

	require.True(t, a.StopSimulation(context.Background(), "task-6"))

	select {
	case res := <-done:
		require.Equal(t, simulation.StatusFailed, res.Status)
		require.Equal(t, "simulation stopped", res.ErrorMessage)
	case <-time.After(10 * time.Second):
		t.Fatal("stopped run did not return")
	}

	require.False(t, a.StopSimulation(context.Background(), "task-6"), "finished run must no longer be stoppable")
}

func TestValidateConfig(t *testing.T) {
	a := newTestAdapter(t, writeScript(t, t.TempDir(), "exit 0\n"))

	valid := testConfig(t)
	require.True(t, a.ValidateConfig(context.Background(), valid).Valid)

	bad := simulation.Config{ModelPath: "/nope/missing.mdl", Duration: -1, StepSize: 0}
	vr := a.ValidateConfig(context.Background(), bad)
	require.False(t, vr.Valid)
	require.Len(t, vr.Issues, 3)

	step := valid
	step.StepSize = valid.Duration * 2
	vr = a.ValidateConfig(context.Background(), step)
	require.False(t, vr.Valid)
	require.Contains(t, vr.Issues[0], "exceeds duration")
}

func TestBuildArgsDeterministic(t *testing.T) {
	cfg := simulation.Config{
		ModelPath: "/models/demo.mdl",
		Duration:  10,
		StepSize:  0.1,
		Parameters: map[string]any{
			"beta":  0.5,
			"alpha": 2,
		},
		OutputVariables: []string{"x", "y"},
	}

	want := []string{
		"--model", "/models/demo.mdl",
		"--duration", "10",
		"--step", "0.1",
		"--output", "/tmp/out.csv",
		"--param", "alpha=2",
		"--param", "beta=0.5",
		"--output-var", "x",
		"--output-var", "y",
	}
	for i := 0; i < 20; i++ {
		require.Equal(t, want, buildArgs(cfg, "/tmp/out.csv"))
	}
}

func TestInitialize(t *testing.T) {
	script := writeScript(t, t.TempDir(), "exit 0\n")
	a := newTestAdapter(t, script)
	require.True(t, a.Initialize(context.Background()))

	missing := New(Config{ExecutablePath: "/nope", ResultsDir: t.TempDir()}, nil)
	require.False(t, missing.Initialize(context.Background()))
}
