package skyeye

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/simsynai/platform/internal/app/domain/simulation"
)

const modelFileSuffix = ".mdl"

// GetAvailableModels lists the model files under the configured models
// directory. A missing directory yields an empty catalog, not an error.
func (a *Adapter) GetAvailableModels(_ context.Context) ([]simulation.ModelDescriptor, error) {
	entries, err := os.ReadDir(a.cfg.ModelsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []simulation.ModelDescriptor{}, nil
		}
		return nil, fmt.Errorf("read models directory: %w", err)
	}

	models := make([]simulation.ModelDescriptor, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), modelFileSuffix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		models = append(models, simulation.ModelDescriptor{
			Name:     strings.TrimSuffix(entry.Name(), modelFileSuffix),
			Path:     filepath.Join(a.cfg.ModelsDir, entry.Name()),
			Size:     info.Size(),
			Modified: info.ModTime(),
		})
	}
	return models, nil
}

// GetModelParameters asks the executable for the model's parameter schema
// via `--info`. The executable is expected to emit JSON; non-JSON output is
// wrapped into a descriptive map rather than rejected.
func (a *Adapter) GetModelParameters(ctx context.Context, modelPath string) (map[string]any, error) {
	cmd := exec.CommandContext(ctx, a.cfg.ExecutablePath, "--info", modelPath)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return nil, fmt.Errorf("model info for %s: %s", modelPath, msg)
	}

	out := stdout.Bytes()
	if gjson.ValidBytes(out) {
		parsed := gjson.ParseBytes(out)
		// Prefer a dedicated parameters object when the tool emits one.
		if params := parsed.Get("parameters"); params.IsObject() {
			if m, ok := params.Value().(map[string]any); ok {
				return m, nil
			}
		}
		if parsed.IsObject() {
			if m, ok := parsed.Value().(map[string]any); ok {
				return m, nil
			}
		}
	}

	text := strings.TrimSpace(stdout.String())
	return map[string]any{
		"description": text,
		"raw_output":  text,
	}, nil
}
