package skyeye

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetAvailableModels(t *testing.T) {
	modelsDir := t.TempDir()
	for _, name := range []string{"lorenz.mdl", "predator-prey.mdl", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(modelsDir, name), []byte("m"), 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(modelsDir, "archive.mdl.d"), 0o755))

	a := New(Config{ModelsDir: modelsDir, ResultsDir: t.TempDir()}, nil)

	models, err := a.GetAvailableModels(context.Background())
	require.NoError(t, err)
	require.Len(t, models, 2)

	names := map[string]bool{}
	for _, m := range models {
		names[m.Name] = true
		require.NotEmpty(t, m.Path)
	}
	require.True(t, names["lorenz"])
	require.True(t, names["predator-prey"])
}

func TestGetAvailableModelsMissingDir(t *testing.T) {
	a := New(Config{ModelsDir: filepath.Join(t.TempDir(), "nope")}, nil)

	models, err := a.GetAvailableModels(context.Background())
	require.NoError(t, err)
	require.Empty(t, models)
}

func TestGetModelParametersJSON(t *testing.T) {
	script := writeScript(t, t.TempDir(), `echo '{"parameters":{"alpha":{"default":1.0},"beta":{"default":0.5}}}'
`)
	a := New(Config{ExecutablePath: script, ResultsDir: t.TempDir()}, nil)

	params, err := a.GetModelParameters(context.Background(), "/models/demo.mdl")
	require.NoError(t, err)
	require.Contains(t, params, "alpha")
	require.Contains(t, params, "beta")
}

func TestGetModelParametersPlainText(t *testing.T) {
	script := writeScript(t, t.TempDir(), `echo "a classic two-species model"
`)
	a := New(Config{ExecutablePath: script, ResultsDir: t.TempDir()}, nil)

	params, err := a.GetModelParameters(context.Background(), "/models/demo.mdl")
	require.NoError(t, err)
	require.Equal(t, "a classic two-species model", params["description"])
}

func TestGetModelParametersFailure(t *testing.T) {
	script := writeScript(t, t.TempDir(), `echo "unknown model" >&2
exit 1
`)
	a := New(Config{ExecutablePath: script, ResultsDir: t.TempDir()}, nil)

	_, err := a.GetModelParameters(context.Background(), "/models/demo.mdl")
	require.ErrorContains(t, err, "unknown model")
}
