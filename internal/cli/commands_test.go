package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/fatih/color"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danieljhkim/stagemerge/internal/clock"
	"github.com/danieljhkim/stagemerge/internal/config"
	"github.com/danieljhkim/stagemerge/internal/engine"
	"github.com/danieljhkim/stagemerge/internal/fsdiff"
	"github.com/danieljhkim/stagemerge/internal/fsops"
	"github.com/danieljhkim/stagemerge/internal/hash"
	"github.com/danieljhkim/stagemerge/internal/metadata"
)

// resetFlags clears flag state left behind by earlier Execute calls on the
// shared command tree.
func resetFlags(t *testing.T) {
	t.Helper()
	jsonOutput = false
	verbosity = 0
	installationDir = ""
	applyFullBackup = false
	removeCandidateForce = false
	hashesAlgorithm = ""
	applyOperation = string(metadata.OperationUpdate)
	conflictsOperation = string(metadata.OperationUpdate)
	verifyOperation = string(metadata.OperationUpdate)

	for _, name := range []string{"help", "version"} {
		if f := rootCmd.Flags().Lookup(name); f != nil {
			_ = f.Value.Set("false")
			f.Changed = false
		}
	}
	for _, c := range rootCmd.Commands() {
		c.Flags().VisitAll(func(f *pflag.Flag) { f.Changed = false })
	}
}

func captureStdout(t *testing.T, fn func()) string {
	t.Helper()

	oldStdout := os.Stdout
	oldColorOutput := color.Output
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w
	color.Output = w

	fn()

	_ = w.Close()
	os.Stdout = oldStdout
	color.Output = oldColorOutput

	var buf bytes.Buffer
	_, _ = buf.ReadFrom(r)
	return buf.String()
}

// runCLI executes the root command with an isolated settings file and
// backup staging directory.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(t)
	t.Setenv(config.EnvPrefix+"BACKUP_TMPDIR", t.TempDir())

	full := append([]string{"--config", filepath.Join(t.TempDir(), "config.yaml")}, args...)
	rootCmd.SetArgs(full)

	var err error
	output := captureStdout(t, func() {
		err = rootCmd.Execute()
	})
	return output, err
}

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	}
}

func readFile(t *testing.T, root, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(name)))
	require.NoError(t, err)
	return string(data)
}

func manifestOf(version string) *metadata.Manifest {
	return &metadata.Manifest{Streams: []metadata.Stream{
		{GroupID: "org.example", ArtifactID: "core", Version: version},
	}}
}

// setupInstallation provisions an installation through record-hashes and
// prepares an UPDATE candidate for it.
func setupInstallation(t *testing.T, base, candidateFiles map[string]string) (string, string) {
	t.Helper()
	fs := fsops.NewRealFS()
	clk := clock.RealClock{}

	installation := t.TempDir()
	writeFiles(t, installation, base)
	_, err := runCLI(t, "record-hashes", installation)
	require.NoError(t, err)
	require.NoError(t, metadata.WriteManifest(fs, installation, manifestOf("1.0")))
	rev, err := metadata.AppendRevision(fs, clk, installation, metadata.ChangeInstall)
	require.NoError(t, err)

	candidate := t.TempDir()
	writeFiles(t, candidate, candidateFiles)
	_, err = fsdiff.WriteManifest(fs, hash.NewSHA256Hasher(), candidate)
	require.NoError(t, err)
	require.NoError(t, metadata.WriteManifest(fs, candidate, manifestOf("1.1")))
	_, err = metadata.AppendRevision(fs, clk, candidate, metadata.ChangeUpdate)
	require.NoError(t, err)
	require.NoError(t, metadata.WriteMarker(fs, candidate, &metadata.Marker{
		State:     rev.ID,
		Operation: metadata.OperationUpdate,
	}))

	return installation, candidate
}

func TestRecordHashesCommand(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{"bin/run.sh": "run", "conf/x.txt": "x"})

	output, err := runCLI(t, "--json", "record-hashes", "--algorithm", "xxh3", root)
	require.NoError(t, err)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(output), &got))
	assert.Equal(t, "xxh3", got["algorithm"])
	assert.EqualValues(t, 2, got["files"])

	m, err := fsdiff.ReadManifest(fsops.NewRealFS(), root)
	require.NoError(t, err)
	assert.Contains(t, m.Files, "bin/run.sh")
}

func TestRecordHashesCommand_RejectsUnknownAlgorithm(t *testing.T) {
	_, err := runCLI(t, "record-hashes", "--algorithm", "md5", t.TempDir())
	assert.ErrorContains(t, err, "unsupported hash algorithm")
}

func TestApplyCommand_JSONOutput(t *testing.T) {
	installation, candidate := setupInstallation(t,
		map[string]string{"conf/x.txt": "1", "bin/run.sh": "v1"},
		map[string]string{"conf/x.txt": "3", "bin/run.sh": "v2"},
	)
	writeFiles(t, installation, map[string]string{"conf/x.txt": "2"})

	output, err := runCLI(t, "--json", "apply", "--dir", installation, candidate)
	require.NoError(t, err)

	var result engine.ApplyResult
	require.NoError(t, json.Unmarshal([]byte(output), &result))
	require.Len(t, result.Conflicts, 1)
	assert.Equal(t, "conf/x.txt", result.Conflicts[0].Path)
	assert.NotEmpty(t, result.Revision)
	require.NotNil(t, result.Updates)
	require.Len(t, result.Updates.Changes, 1)
	assert.Equal(t, "org.example:core", result.Updates.Changes[0].Artifact)

	assert.Equal(t, "2", readFile(t, installation, "conf/x.txt"))
	assert.Equal(t, "3", readFile(t, installation, "conf/x.txt.glnew"))
	assert.Equal(t, "v2", readFile(t, installation, "bin/run.sh"))
}

func TestApplyCommand_TextOutput(t *testing.T) {
	installation, candidate := setupInstallation(t,
		map[string]string{"conf/x.txt": "1"},
		map[string]string{"conf/x.txt": "3"},
	)
	writeFiles(t, installation, map[string]string{"conf/x.txt": "2"})

	output, err := runCLI(t, "apply", "-d", installation, "--full-backup", candidate)
	require.NoError(t, err)

	assert.Contains(t, output, "Applied UPDATE candidate")
	assert.Contains(t, output, "org.example:core: 1.0 ==> 1.1")
	assert.Contains(t, output, "conf/x.txt")
	assert.Contains(t, output, "1 conflict")
}

func TestApplyCommand_WrongOperation(t *testing.T) {
	installation, candidate := setupInstallation(t,
		map[string]string{"a.txt": "a"},
		map[string]string{"a.txt": "b"},
	)

	_, err := runCLI(t, "apply", "--dir", installation, "--operation", "revert", candidate)
	require.Error(t, err)
	assert.ErrorIs(t, err, engine.ErrValidation)
	assert.Equal(t, ExitRejected, ExitCode(err))
	assert.Equal(t, "a", readFile(t, installation, "a.txt"))
}

func TestApplyCommand_InvalidArgs(t *testing.T) {
	_, err := runCLI(t, "apply")
	assert.Error(t, err)

	_, err = runCLI(t, "apply", "--operation", "upgrade", t.TempDir())
	assert.ErrorContains(t, err, "unknown operation")
}

func TestConflictsCommand_DryRun(t *testing.T) {
	installation, candidate := setupInstallation(t,
		map[string]string{"conf/x.txt": "1"},
		map[string]string{"conf/x.txt": "3"},
	)
	writeFiles(t, installation, map[string]string{"conf/x.txt": "2"})

	output, err := runCLI(t, "--json", "conflicts", "--dir", installation, candidate)
	require.NoError(t, err)

	var got struct {
		Conflicts []map[string]string `json:"conflicts"`
	}
	require.NoError(t, json.Unmarshal([]byte(output), &got))
	require.Len(t, got.Conflicts, 1)
	assert.Equal(t, "user-preserved", got.Conflicts[0]["resolution"])

	assert.Equal(t, "2", readFile(t, installation, "conf/x.txt"))
	assert.NoFileExists(t, filepath.Join(installation, "conf", "x.txt.glnew"))
}

func TestVerifyCommand(t *testing.T) {
	installation, candidate := setupInstallation(t,
		map[string]string{"a.txt": "a"},
		map[string]string{"a.txt": "b"},
	)

	t.Run("ok", func(t *testing.T) {
		output, err := runCLI(t, "--json", "verify", "--dir", installation, candidate)
		require.NoError(t, err)

		var got map[string]string
		require.NoError(t, json.Unmarshal([]byte(output), &got))
		assert.Equal(t, string(engine.ValidationOK), got["result"])
	})

	t.Run("not a candidate", func(t *testing.T) {
		output, err := runCLI(t, "verify", "--dir", installation, t.TempDir())
		require.Error(t, err)
		assert.Equal(t, ExitRejected, ExitCode(err))
		assert.Contains(t, output, string(engine.ValidationNotCandidate))
	})
}

func TestChangesCommand(t *testing.T) {
	installation, candidate := setupInstallation(t,
		map[string]string{"a.txt": "a"},
		map[string]string{"a.txt": "a"},
	)

	output, err := runCLI(t, "changes", "--dir", installation, candidate)
	require.NoError(t, err)
	assert.Contains(t, output, "org.example:core: 1.0 ==> 1.1")
}

func TestRevisionCommand(t *testing.T) {
	_, candidate := setupInstallation(t,
		map[string]string{"a.txt": "a"},
		map[string]string{"a.txt": "a"},
	)

	output, err := runCLI(t, "--json", "revision", candidate)
	require.NoError(t, err)

	var rev metadata.Revision
	require.NoError(t, json.Unmarshal([]byte(output), &rev))
	assert.NotEmpty(t, rev.ID)
	assert.Equal(t, metadata.ChangeUpdate, rev.Type)
	assert.Equal(t, []string{"org.example:core:1.1"}, rev.Artifacts)
}

func TestRemoveCandidateCommand(t *testing.T) {
	_, candidate := setupInstallation(t,
		map[string]string{"a.txt": "a"},
		map[string]string{"a.txt": "a"},
	)

	t.Run("refuses plain directories", func(t *testing.T) {
		dir := t.TempDir()
		_, err := runCLI(t, "remove-candidate", dir)
		assert.ErrorContains(t, err, "not a candidate")
		assert.DirExists(t, dir)
	})

	t.Run("removes candidate", func(t *testing.T) {
		_, err := runCLI(t, "remove-candidate", candidate)
		require.NoError(t, err)
		assert.NoDirExists(t, candidate)
	})

	t.Run("force", func(t *testing.T) {
		dir := t.TempDir()
		_, err := runCLI(t, "remove-candidate", "--force", dir)
		require.NoError(t, err)
		assert.NoDirExists(t, dir)
	})
}
