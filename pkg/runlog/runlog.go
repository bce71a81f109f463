package runlog

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"time"

	"vlmeval/pkg/core"

	"github.com/google/uuid"
)

const timeLayout = "2006-01-02T15:04:05-07:00"

// RunLog is the durable record of one evaluation run: the sweep
// configuration, the effective seeds per task, and the aggregates.
type RunLog struct {
	Version int          `json:"version"`
	Status  string       `json:"status"`
	Run     RunSpec      `json:"run"`
	Results core.Results `json:"results"`
	Trials  []Trial      `json:"trials,omitempty"`
	Stats   RunStats     `json:"stats"`
	Error   string       `json:"error,omitempty"`
}

type RunSpec struct {
	RunID     string             `json:"run_id"`
	Created   string             `json:"created"`
	Model     string             `json:"model"`
	Shots     []int              `json:"shots"`
	NumTrials int                `json:"num_trials"`
	Seeds     map[string][]int64 `json:"seeds"`
	Tasks     []string           `json:"tasks"`
	Config    map[string]any     `json:"config,omitempty"`
}

// Trial is one (task, shots, seed) cell of the sweep.
type Trial struct {
	Task  string  `json:"task"`
	Shots int     `json:"shots"`
	Seed  int64   `json:"seed"`
	Score float64 `json:"score"`
}

type RunStats struct {
	StartedAt   string `json:"started_at"`
	CompletedAt string `json:"completed_at"`
}

// Build assembles a RunLog from the aggregates and the effective seeds
// used for each task. Trials are expanded so a single sweep cell can be
// located without re-deriving the seed extension.
func Build(model string, shots []int, numTrials int, seeds map[string][]int64, results core.Results, started, completed time.Time) RunLog {
	if started.IsZero() {
		started = time.Now().UTC()
	}
	if completed.IsZero() {
		completed = time.Now().UTC()
	}

	tasks := make([]string, 0, len(results))
	var trials []Trial
	for task, shotResults := range results {
		tasks = append(tasks, task)
		for _, shot := range shotResults {
			for t, score := range shot.Trials {
				trial := Trial{Task: task, Shots: shot.Shots, Score: score}
				if taskSeeds, ok := seeds[task]; ok && t < len(taskSeeds) {
					trial.Seed = taskSeeds[t]
				}
				trials = append(trials, trial)
			}
		}
	}

	return RunLog{
		Version: 1,
		Status:  "success",
		Run: RunSpec{
			RunID:     uuid.New().String(),
			Created:   started.UTC().Format(timeLayout),
			Model:     model,
			Shots:     shots,
			NumTrials: numTrials,
			Seeds:     seeds,
			Tasks:     tasks,
		},
		Results: results,
		Trials:  trials,
		Stats: RunStats{
			StartedAt:   started.UTC().Format(timeLayout),
			CompletedAt: completed.UTC().Format(timeLayout),
		},
	}
}

func WriteJSON(logDir string, log RunLog) (string, error) {
	if logDir == "" {
		return "", fmt.Errorf("runlog: logDir is required")
	}
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return "", err
	}

	path := filepath.Join(logDir, buildLogFileName(log, "json"))
	file, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(log); err != nil {
		return "", err
	}
	return path, nil
}

// WriteArchive writes the run as a zip: a header without the per-trial
// records, plus one entry per trial under trials/.
func WriteArchive(logDir string, log RunLog) (string, error) {
	if logDir == "" {
		return "", fmt.Errorf("runlog: logDir is required")
	}
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return "", err
	}

	path := filepath.Join(logDir, buildLogFileName(log, "zip"))
	file, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	zipWriter := zip.NewWriter(file)
	defer zipWriter.Close()

	header := log
	header.Trials = nil
	if err := writeZipJSON(zipWriter, "header.json", header); err != nil {
		return "", err
	}

	// The index keeps entry names unique when a seed repeats for the
	// same task and shot count.
	for i, trial := range log.Trials {
		name := fmt.Sprintf("trials/%03d_%s_shots%d_seed%d.json", i, sanitizeName(trial.Task), trial.Shots, trial.Seed)
		if err := writeZipJSON(zipWriter, name, trial); err != nil {
			return "", err
		}
	}

	return path, nil
}

func ReadJSON(path string) (RunLog, error) {
	var log RunLog
	f, err := os.Open(path)
	if err != nil {
		return RunLog{}, err
	}
	defer f.Close()
	if err := json.NewDecoder(f).Decode(&log); err != nil {
		return RunLog{}, err
	}
	return log, nil
}

func ReadArchive(path string) (RunLog, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return RunLog{}, err
	}
	defer r.Close()

	var header RunLog
	for _, f := range r.File {
		if f.Name == "header.json" {
			rc, err := f.Open()
			if err != nil {
				return RunLog{}, err
			}
			err = json.NewDecoder(rc).Decode(&header)
			rc.Close()
			if err != nil {
				return RunLog{}, err
			}
			break
		}
	}

	for _, f := range r.File {
		if dir := filepath.Dir(f.Name); dir != "trials" || filepath.Ext(f.Name) != ".json" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return RunLog{}, err
		}
		var trial Trial
		decodeErr := json.NewDecoder(rc).Decode(&trial)
		rc.Close()
		if decodeErr != nil {
			return RunLog{}, decodeErr
		}
		header.Trials = append(header.Trials, trial)
	}
	return header, nil
}

func buildLogFileName(log RunLog, ext string) string {
	timestamp := time.Now().Format("2006-01-02T15-04-05")
	model := sanitizeName(log.Run.Model)
	if model == "" {
		model = "model"
	}
	run := log.Run.RunID
	if len(run) > 8 {
		run = run[:8]
	}
	return fmt.Sprintf("%s_%s_%s.%s", timestamp, model, run, ext)
}

func writeZipJSON(writer *zip.Writer, name string, data any) error {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return err
	}

	payload := buf.Bytes()
	size := uint64(len(payload))
	header := &zip.FileHeader{
		Name:               name,
		Method:             zip.Store,
		Flags:              0,
		UncompressedSize64: size,
		CompressedSize64:   size,
		UncompressedSize:   uint32(size),
		CompressedSize:     uint32(size),
		CRC32:              crc32.ChecksumIEEE(payload),
	}
	header.SetModTime(time.Unix(0, 0))

	header.Flags &^= 0x8 // ensure no data descriptor
	entry, err := writer.CreateRaw(header)
	if err != nil {
		return err
	}
	if _, err := entry.Write(payload); err != nil {
		return err
	}
	return nil
}

func sanitizeName(input string) string {
	out := make([]rune, 0, len(input))
	for _, r := range input {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' || r == '-' {
			out = append(out, r)
		}
	}
	return string(out)
}
