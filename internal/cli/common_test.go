package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danieljhkim/stagemerge/internal/engine"
	"github.com/danieljhkim/stagemerge/internal/planner"
)

func TestFormatJSON(t *testing.T) {
	tests := []struct {
		name  string
		input interface{}
	}{
		{name: "simple map", input: map[string]string{"key": "value"}},
		{name: "empty map", input: map[string]string{}},
		{name: "array", input: []string{"a", "b", "c"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := formatJSON(tt.input)
			require.NoError(t, err)

			var v interface{}
			assert.NoError(t, json.Unmarshal([]byte(got), &v))
		})
	}
}

func TestFormatError(t *testing.T) {
	got := formatError(os.ErrNotExist)
	assert.Contains(t, got, "Error:")
}

func TestOutputJSON(t *testing.T) {
	output := captureStdout(t, func() {
		require.NoError(t, outputJSON(map[string]string{"test": "value"}))
	})

	var v map[string]string
	require.NoError(t, json.Unmarshal([]byte(output), &v))
	assert.Equal(t, "value", v["test"])
}

func TestPrintFunctions(t *testing.T) {
	output := captureStdout(t, func() {
		PrintSuccess("Success message")
		PrintWarning("Warning message")
		PrintInfo("Info message")
		PrintTable([]string{"PATH", "RESOLUTION"}, [][]string{{"conf/x.txt", "user-preserved"}})
	})

	assert.Contains(t, output, "Success message")
	assert.Contains(t, output, "Warning message")
	assert.Contains(t, output, "Info message")
	assert.Contains(t, output, "conf/x.txt")
}

func TestPrintUpdatesAndConflicts(t *testing.T) {
	output := captureStdout(t, func() {
		PrintUpdates(&engine.UpdateSet{Changes: []engine.ArtifactChange{{
			Artifact:   "org.example:core",
			Status:     engine.ChangeUpdated,
			OldVersion: "1.0",
			NewVersion: "1.1",
		}}})
		PrintConflicts([]planner.FileConflict{{
			Path:       "conf/plug",
			User:       planner.StatusAdded,
			Candidate:  planner.StatusAdded,
			Resolution: planner.ResolutionUserPreserved,
		}})
	})

	assert.Contains(t, output, "org.example:core: 1.0 ==> 1.1")
	assert.Contains(t, output, "conf/plug")
	assert.Contains(t, output, string(planner.ResolutionUserPreserved))
	assert.Contains(t, output, "1 conflict")

	empty := captureStdout(t, func() {
		PrintUpdates(nil)
		PrintConflicts(nil)
	})
	assert.Contains(t, empty, "No artifact changes")
	assert.Contains(t, empty, "No conflicts")
}

func TestPrintCount(t *testing.T) {
	assert.Equal(t, "1 conflict", PrintCount(1, "conflict", "conflicts"))
	assert.Equal(t, "3 conflicts", PrintCount(3, "conflict", "conflicts"))
}

func TestAbsDir(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "f.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0644))

	got, err := absDir(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, got)

	_, err = absDir(file)
	assert.ErrorContains(t, err, "not a directory")

	_, err = absDir(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}
