package metric

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"time"
)

// Command invokes an external corpus scorer (a CIDEr or VQA-accuracy
// tool) with its annotation arguments followed by the predictions file
// path, and parses a scalar from its stdout. The scorer may print a
// bare number or a JSON object, in which case Key selects the field.
type Command struct {
	NameHint string
	Path     string
	Args     []string
	Key      string
	Timeout  time.Duration
}

func (c Command) Name() string {
	if c.NameHint != "" {
		return c.NameHint
	}
	return c.Path
}

func (c Command) Score(ctx context.Context, resultsPath string) (float64, error) {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := append(append([]string{}, c.Args...), resultsPath)
	cmd := exec.CommandContext(ctx, c.Path, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return 0, fmt.Errorf("metric: %s: %w (stderr: %s)", c.Name(), err, stderr.String())
	}
	return parseScalar(stdout.Bytes(), c.Key)
}

func parseScalar(out []byte, key string) (float64, error) {
	trimmed := bytes.TrimSpace(out)
	if len(trimmed) == 0 {
		return 0, fmt.Errorf("metric: scorer produced no output")
	}

	var scalar float64
	if err := json.Unmarshal(trimmed, &scalar); err == nil {
		return scalar, nil
	}

	var object map[string]float64
	if err := json.Unmarshal(trimmed, &object); err != nil {
		return 0, fmt.Errorf("metric: unparseable scorer output %q: %w", trimmed, err)
	}
	value, ok := object[key]
	if !ok {
		return 0, fmt.Errorf("metric: scorer output has no %q field", key)
	}
	return value, nil
}
