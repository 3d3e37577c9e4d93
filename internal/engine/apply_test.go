package engine

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danieljhkim/stagemerge/internal/config"
	"github.com/danieljhkim/stagemerge/internal/fsdiff"
	"github.com/danieljhkim/stagemerge/internal/fsops"
	"github.com/danieljhkim/stagemerge/internal/metadata"
	"github.com/danieljhkim/stagemerge/internal/planner"
)

func TestApplyUpdate_UserModifiedFileIsPreserved(t *testing.T) {
	env := newTestEnv(t, map[string]string{"conf/x.txt": "1"})
	writeTree(t, env.installation, map[string]string{"conf/x.txt": "2"})
	candidate := env.newCandidate(t, candidateOpts{files: map[string]string{"conf/x.txt": "3"}})

	result, err := env.engine(nil).ApplyUpdate(context.Background(), env.request(candidate, metadata.OperationUpdate))
	require.NoError(t, err)

	assert.Equal(t, []planner.FileConflict{{
		Path:       "conf/x.txt",
		User:       planner.StatusModified,
		Candidate:  planner.StatusModified,
		Resolution: planner.ResolutionUserPreserved,
	}}, result.Conflicts)
	assert.Equal(t, "2", readFile(t, env.installation, "conf/x.txt"))
	assert.Equal(t, "3", readFile(t, env.installation, "conf/x.txt.glnew"))
}

func TestApplyUpdate_SystemPathIsOverwritten(t *testing.T) {
	env := newTestEnv(t, map[string]string{"conf/x.txt": "1"})
	writeTree(t, env.installation, map[string]string{"conf/x.txt": "2"})
	candidate := env.newCandidate(t, candidateOpts{
		files:       map[string]string{"conf/x.txt": "3"},
		systemPaths: []string{"conf/x.txt"},
	})

	result, err := env.engine(nil).ApplyUpdate(context.Background(), env.request(candidate, metadata.OperationUpdate))
	require.NoError(t, err)

	require.Len(t, result.Conflicts, 1)
	assert.Equal(t, planner.ResolutionOverwritten, result.Conflicts[0].Resolution)
	assert.Equal(t, "3", readFile(t, env.installation, "conf/x.txt"))
	assert.Equal(t, "2", readFile(t, env.installation, "conf/x.txt.glold"))
}

func TestApplyUpdate_RemovedSystemPathIsRestored(t *testing.T) {
	env := newTestEnv(t, map[string]string{"modules/foo.jar": "foo-1", "modules/bar.jar": "bar"})
	require.NoError(t, env.fs.Remove(filepath.Join(env.installation, "modules", "foo.jar")))
	candidate := env.newCandidate(t, candidateOpts{
		files:       map[string]string{"modules/foo.jar": "foo-2", "modules/bar.jar": "bar"},
		systemPaths: []string{"modules/foo.jar"},
	})

	result, err := env.engine(nil).ApplyUpdate(context.Background(), env.request(candidate, metadata.OperationUpdate))
	require.NoError(t, err)

	assert.Equal(t, []planner.FileConflict{{
		Path:       "modules/foo.jar",
		User:       planner.StatusRemoved,
		Candidate:  planner.StatusModified,
		Resolution: planner.ResolutionOverwritten,
	}}, result.Conflicts)
	assert.Equal(t, "foo-2", readFile(t, env.installation, "modules/foo.jar"))
}

func TestApplyUpdate_NewCandidateFile(t *testing.T) {
	env := newTestEnv(t, map[string]string{"bin/run.sh": "run", "old/legacy.jar": "legacy"})
	candidate := env.newCandidate(t, candidateOpts{files: map[string]string{
		"bin/run.sh":        "run",
		"bin/new-script.sh": "#!/bin/sh",
	}})

	result, err := env.engine(nil).ApplyUpdate(context.Background(), env.request(candidate, metadata.OperationUpdate))
	require.NoError(t, err)

	assert.Empty(t, result.Conflicts)
	assert.Equal(t, "#!/bin/sh", readFile(t, env.installation, "bin/new-script.sh"))
	assert.NoDirExists(t, filepath.Join(env.installation, "old"))

	require.Len(t, result.Updates.Changes, 1)
	assert.Equal(t, ArtifactChange{
		Artifact: "org.example:core", Status: ChangeUpdated, OldVersion: "1.0", NewVersion: "1.1",
	}, result.Updates.Changes[0])
}

func TestApplyUpdate_UserDirectoryShadowingCandidateFile(t *testing.T) {
	env := newTestEnv(t, map[string]string{"conf/x.txt": "1"})
	writeTree(t, env.installation, map[string]string{"conf/plug/mine.txt": "precious"})
	candidate := env.newCandidate(t, candidateOpts{files: map[string]string{
		"conf/x.txt": "1",
		"conf/plug":  "candidate-file",
	}})

	result, err := env.engine(nil).ApplyUpdate(context.Background(), env.request(candidate, metadata.OperationUpdate))
	require.NoError(t, err)

	assert.Equal(t, []planner.FileConflict{{
		Path:       "conf/plug",
		User:       planner.StatusAdded,
		Candidate:  planner.StatusAdded,
		Resolution: planner.ResolutionUserPreserved,
	}}, result.Conflicts)
	assert.Equal(t, "precious", readFile(t, env.installation, "conf/plug/mine.txt"))
	assert.Equal(t, "candidate-file", readFile(t, env.installation, "conf/plug.glnew"))
}

func TestApplyUpdate_UserFileShadowingCandidateDirectory(t *testing.T) {
	env := newTestEnv(t, map[string]string{"conf/x.txt": "1"})
	writeTree(t, env.installation, map[string]string{"conf/plug": "mine"})
	candidate := env.newCandidate(t, candidateOpts{files: map[string]string{
		"conf/x.txt":      "1",
		"conf/plug/a.txt": "a",
	}})

	result, err := env.engine(nil).ApplyUpdate(context.Background(), env.request(candidate, metadata.OperationUpdate))
	require.NoError(t, err)

	require.Len(t, result.Conflicts, 1)
	assert.Equal(t, planner.ResolutionUserPreserved, result.Conflicts[0].Resolution)
	assert.Equal(t, "mine", readFile(t, env.installation, "conf/plug"))
}

func TestApplyUpdate_IdenticalCandidate(t *testing.T) {
	base := map[string]string{"a.txt": "a", "b/c.txt": "c", "b/d/e.txt": "e"}
	env := newTestEnv(t, base)
	candidate := env.newCandidate(t, candidateOpts{files: base})

	result, err := env.engine(nil).ApplyUpdate(context.Background(), env.request(candidate, metadata.OperationUpdate))
	require.NoError(t, err)

	assert.Empty(t, result.Conflicts)
	after := snapshot(t, env.installation)
	for name, content := range base {
		assert.Equal(t, content, after[name])
	}
}

func TestApplyUpdate_UpdatesMetadata(t *testing.T) {
	env := newTestEnv(t, map[string]string{"a.txt": "a"})
	candidate := env.newCandidate(t, candidateOpts{
		files:       map[string]string{"a.txt": "a2"},
		systemPaths: []string{"bin/"},
	})
	writeTree(t, candidate, map[string]string{".installation/licenses/accepted.yaml": "- apache-2.0\n"})

	result, err := env.engine(nil).ApplyUpdate(context.Background(), env.request(candidate, metadata.OperationUpdate))
	require.NoError(t, err)

	inst := config.NewLayout(env.installation)
	cand := config.NewLayout(candidate)

	m, err := metadata.ReadManifest(env.fs, env.installation)
	require.NoError(t, err)
	assert.Contains(t, m.Streams, metadata.Stream{GroupID: "org.example", ArtifactID: "core", Version: "1.1"})

	h, err := metadata.ReadHistory(env.fs, env.installation)
	require.NoError(t, err)
	require.Len(t, h.Revisions, 2)
	assert.Equal(t, result.Revision, h.Head().ID)
	assert.Equal(t, metadata.ChangeUpdate, h.Head().Type)

	same, err := env.fs.ContentEquals(inst.HashManifestFile(), cand.HashManifestFile())
	require.NoError(t, err)
	assert.True(t, same, "provisioned state is replaced")
	assert.FileExists(t, inst.SystemPathsFile())
	assert.FileExists(t, filepath.Join(inst.CacheDir(), "core-1.1.jar"))
	assert.FileExists(t, filepath.Join(inst.LicensesDir(), "accepted.yaml"))
	assert.FileExists(t, inst.CurrentVersionFile())
	assert.NoFileExists(t, inst.MarkerFile(), "the candidate marker is not copied")
	assert.Equal(t, "channels: [main]\n", readFile(t, env.installation, ".installation/installer-channels.yaml"))
	assert.Empty(t, env.stageDirs(t), "backup is closed")
}

func TestApplyUpdate_RevertCopiesInstallerChannels(t *testing.T) {
	env := newTestEnv(t, map[string]string{"a.txt": "a"})
	candidate := env.newCandidate(t, candidateOpts{
		files:     map[string]string{"a.txt": "a0"},
		operation: metadata.OperationRevert,
	})

	_, err := env.engine(nil).ApplyUpdate(context.Background(), env.request(candidate, metadata.OperationRevert))
	require.NoError(t, err)

	assert.Equal(t, "channels: [main, next]\n", readFile(t, env.installation, ".installation/installer-channels.yaml"))
	h, err := metadata.ReadHistory(env.fs, env.installation)
	require.NoError(t, err)
	assert.Equal(t, metadata.ChangeRollback, h.Head().Type)
}

func TestGetConflicts_DoesNotModify(t *testing.T) {
	env := newTestEnv(t, map[string]string{"conf/x.txt": "1", "bin/run.sh": "run"})
	writeTree(t, env.installation, map[string]string{"conf/x.txt": "2"})
	candidate := env.newCandidate(t, candidateOpts{files: map[string]string{"conf/x.txt": "3", "bin/new.sh": "new"}})
	before := snapshot(t, env.installation)

	conflicts, err := env.engine(nil).GetConflicts(context.Background(), env.request(candidate, metadata.OperationUpdate))
	require.NoError(t, err)

	require.Len(t, conflicts, 1)
	assert.Equal(t, "conf/x.txt", conflicts[0].Path)
	assert.Equal(t, before, snapshot(t, env.installation))
	assert.Empty(t, env.stageDirs(t))
}

// mergeFixture sets up an installation where an apply touches every kind of
// path: sidecars, forced overwrites, restores, new files, deletions and
// directory pruning.
func mergeFixture(t *testing.T) (*testEnv, string) {
	t.Helper()
	env := newTestEnv(t, map[string]string{
		"bin/run.sh":          "run-1",
		"conf/x.txt":          "1",
		"conf/sys.xml":        "sys-1",
		"modules/foo.jar":     "foo-1",
		"modules/old/old.jar": "old",
		"docs/readme.txt":     "readme",
	})
	writeTree(t, env.installation, map[string]string{
		"conf/x.txt":     "2",
		"conf/sys.xml":   "sys-user",
		"custom/mine.sh": "mine",
	})
	require.NoError(t, env.fs.Remove(filepath.Join(env.installation, "modules", "foo.jar")))

	candidate := env.newCandidate(t, candidateOpts{
		files: map[string]string{
			"bin/run.sh":        "run-2",
			"bin/new-script.sh": "new",
			"conf/x.txt":        "3",
			"conf/sys.xml":      "sys-2",
			"modules/foo.jar":   "foo-2",
			"docs/readme.txt":   "readme",
		},
		systemPaths: []string{"conf/sys.xml", "modules/"},
	})
	return env, candidate
}

func TestApplyUpdate_FaultDuringSyncRestoresInstallation(t *testing.T) {
	env, candidate := mergeFixture(t)
	before := snapshot(t, env.installation)

	fault := fsops.NewFaultFS(env.fs, -1)
	fault.FailOnPath = "new-script.sh"

	_, err := env.engine(fault).ApplyUpdate(context.Background(), env.request(candidate, metadata.OperationUpdate))

	require.ErrorIs(t, err, ErrApplyFailed)
	assert.ErrorIs(t, err, fsops.ErrInjectedFault)
	assert.True(t, fault.Fired)
	assert.Equal(t, before, snapshot(t, env.installation))
	assert.Empty(t, env.stageDirs(t), "backup is closed after restore")
}

func TestApplyUpdate_FaultAtEveryMutationRestoresInstallation(t *testing.T) {
	for n := 0; n < 200; n++ {
		env, candidate := mergeFixture(t)
		before := snapshot(t, env.installation)

		fault := fsops.NewFaultFS(env.fs, n)
		_, err := env.engine(fault).ApplyUpdate(context.Background(), env.request(candidate, metadata.OperationUpdate))
		if err == nil {
			require.Greater(t, n, 0)
			return
		}

		require.ErrorIs(t, err, ErrApplyFailed, "fault after %d mutations", n)
		require.Equal(t, before, snapshot(t, env.installation), "fault after %d mutations", n)
	}
	t.Fatal("apply never succeeded")
}

func TestApplyUpdate_FullBackup(t *testing.T) {
	env, candidate := mergeFixture(t)
	before := snapshot(t, env.installation)

	fault := fsops.NewFaultFS(env.fs, -1)
	fault.FailOnPath = config.HistoryFileName

	req := env.request(candidate, metadata.OperationUpdate)
	req.FullBackup = true
	_, err := env.engine(fault).ApplyUpdate(context.Background(), req)

	require.ErrorIs(t, err, ErrApplyFailed)
	assert.Equal(t, before, snapshot(t, env.installation))
}

func TestApplyUpdate_RestoreFailure(t *testing.T) {
	env, candidate := mergeFixture(t)

	fault := fsops.NewFaultFS(env.fs, 2)
	fault.Persistent = true

	_, err := env.engine(fault).ApplyUpdate(context.Background(), env.request(candidate, metadata.OperationUpdate))

	require.ErrorIs(t, err, ErrRestoreFailed)
	assert.False(t, errors.Is(err, ErrApplyFailed))
	assert.ErrorIs(t, err, fsops.ErrInjectedFault)
}

func TestApplyUpdate_Cancelled(t *testing.T) {
	env, candidate := mergeFixture(t)
	before := snapshot(t, env.installation)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := env.engine(nil).ApplyUpdate(ctx, env.request(candidate, metadata.OperationUpdate))

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, before, snapshot(t, env.installation))
}

func TestApplyUpdate_LogsSystemPaths(t *testing.T) {
	env := newTestEnv(t, map[string]string{"conf/x.txt": "1"})
	candidate := env.newCandidate(t, candidateOpts{
		files:       map[string]string{"conf/x.txt": "2"},
		systemPaths: []string{"conf/x.txt"},
	})

	var buf bytes.Buffer
	settings := &config.Settings{Backup: config.BackupSettings{TmpDir: env.stageParent}}
	e := New(env.fs, fsdiff.NewManifestProvider(env.fs), env.clock, settings, zerolog.New(&buf).Level(zerolog.DebugLevel))

	_, err := e.ApplyUpdate(context.Background(), env.request(candidate, metadata.OperationUpdate))
	require.NoError(t, err)

	assert.Contains(t, buf.String(), `"message":"system paths"`)
	assert.Contains(t, buf.String(), `"patterns":["conf/x.txt"]`)
}
