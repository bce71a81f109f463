package runlog

import (
	"archive/zip"
	"os"
	"testing"
	"time"

	"vlmeval/pkg/core"

	"github.com/stretchr/testify/require"
)

func sampleLog() RunLog {
	results := core.Results{
		"vqa": {
			{Shots: 0, Trials: []float64{48.0, 52.0}, Mean: 50.0},
		},
	}
	seeds := map[string][]int64{"vqa": {42, 7}}
	return Build("mock", []int{0}, 2, seeds, results, time.Now(), time.Now())
}

func TestBuildExpandsTrials(t *testing.T) {
	log := sampleLog()

	require.Equal(t, "success", log.Status)
	require.Equal(t, []string{"vqa"}, log.Run.Tasks)
	require.Len(t, log.Trials, 2)
	require.Equal(t, Trial{Task: "vqa", Shots: 0, Seed: 42, Score: 48.0}, log.Trials[0])
	require.Equal(t, Trial{Task: "vqa", Shots: 0, Seed: 7, Score: 52.0}, log.Trials[1])
	require.NotEmpty(t, log.Run.RunID)
}

func TestWriteJSON(t *testing.T) {
	log := sampleLog()
	dir := t.TempDir()
	path, err := WriteJSON(dir, log)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), `"status": "success"`)

	read, err := ReadJSON(path)
	require.NoError(t, err)
	require.Equal(t, log.Run.RunID, read.Run.RunID)
	require.Equal(t, log.Results, read.Results)
}

func TestWriteArchive(t *testing.T) {
	log := sampleLog()
	dir := t.TempDir()
	path, err := WriteArchive(dir, log)
	require.NoError(t, err)

	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	reader, err := zip.NewReader(file, fileStatSize(t, file))
	require.NoError(t, err)

	paths := make(map[string]bool)
	for _, f := range reader.File {
		paths[f.Name] = true
	}
	require.True(t, paths["header.json"])
	require.True(t, paths["trials/000_vqa_shots0_seed42.json"])
	require.True(t, paths["trials/001_vqa_shots0_seed7.json"])

	read, err := ReadArchive(path)
	require.NoError(t, err)
	require.Equal(t, log.Run.RunID, read.Run.RunID)
	require.Len(t, read.Trials, 2)
}

func TestWriteArchiveRepeatedSeed(t *testing.T) {
	results := core.Results{
		"vqa": {
			{Shots: 4, Trials: []float64{40.0, 44.0}, Mean: 42.0},
		},
	}
	seeds := map[string][]int64{"vqa": {42, 42}}
	log := Build("mock", []int{4}, 2, seeds, results, time.Now(), time.Now())

	path, err := WriteArchive(t.TempDir(), log)
	require.NoError(t, err)

	read, err := ReadArchive(path)
	require.NoError(t, err)
	require.Len(t, read.Trials, 2)
	require.Equal(t, 40.0, read.Trials[0].Score)
	require.Equal(t, 44.0, read.Trials[1].Score)
}

func TestWriteJSONRequiresDir(t *testing.T) {
	_, err := WriteJSON("", sampleLog())
	require.Error(t, err)
}

func fileStatSize(t *testing.T, file *os.File) int64 {
	stat, err := file.Stat()
	require.NoError(t, err)
	return stat.Size()
}
