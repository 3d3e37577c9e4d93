package engine

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/danieljhkim/stagemerge/internal/clock"
	"github.com/danieljhkim/stagemerge/internal/config"
	"github.com/danieljhkim/stagemerge/internal/fsdiff"
	"github.com/danieljhkim/stagemerge/internal/fsops"
	"github.com/danieljhkim/stagemerge/internal/hash"
	"github.com/danieljhkim/stagemerge/internal/metadata"
)

type testEnv struct {
	fs           fsops.FS
	clock        *clock.FakeClock
	installation string
	revision     string
	stageParent  string
}

func writeTree(t *testing.T, root string, files map[string]string) {
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

// snapshot maps every file below root to its content.
func snapshot(t *testing.T, root string) map[string]string {
	t.Helper()
	out := make(map[string]string)
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		out[filepath.ToSlash(rel)] = string(data)
		return nil
	})
	require.NoError(t, err)
	return out
}

func streams(versions map[string]string) *metadata.Manifest {
	m := &metadata.Manifest{}
	for key, version := range versions {
		parts := strings.SplitN(key, ":", 2)
		m.Streams = append(m.Streams, metadata.Stream{GroupID: parts[0], ArtifactID: parts[1], Version: version})
	}
	return m
}

// newTestEnv provisions an installation from base, records its hashes and an
// INSTALL revision.
func newTestEnv(t *testing.T, base map[string]string) *testEnv {
	t.Helper()
	fs := fsops.NewRealFS()
	clk := clock.NewFakeClock(time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC))
	installation := t.TempDir()

	writeTree(t, installation, base)
	_, err := fsdiff.WriteManifest(fs, hash.NewSHA256Hasher(), installation)
	require.NoError(t, err)
	require.NoError(t, metadata.WriteManifest(fs, installation, streams(map[string]string{
		"org.example:core": "1.0",
		"org.example:web":  "1.0",
	})))
	writeTree(t, installation, map[string]string{".installation/installer-channels.yaml": "channels: [main]\n"})
	rev, err := metadata.AppendRevision(fs, clk, installation, metadata.ChangeInstall)
	require.NoError(t, err)

	return &testEnv{
		fs:           fs,
		clock:        clk,
		installation: installation,
		revision:     rev.ID,
		stageParent:  t.TempDir(),
	}
}

type candidateOpts struct {
	files       map[string]string
	systemPaths []string
	operation   metadata.Operation
	versions    map[string]string
}

// newCandidate prepares a candidate for the env's current revision.
func (env *testEnv) newCandidate(t *testing.T, opts candidateOpts) string {
	t.Helper()
	candidate := t.TempDir()
	if opts.operation == "" {
		opts.operation = metadata.OperationUpdate
	}
	if opts.versions == nil {
		opts.versions = map[string]string{"org.example:core": "1.1", "org.example:web": "1.0"}
	}

	writeTree(t, candidate, opts.files)
	_, err := fsdiff.WriteManifest(env.fs, hash.NewSHA256Hasher(), candidate)
	require.NoError(t, err)

	layout := config.NewLayout(candidate)
	writeTree(t, candidate, map[string]string{
		".galleon/" + config.SystemPathsFileName:                 strings.Join(opts.systemPaths, "\n"),
		".installation/" + config.InstallerChannelsFileName:      "channels: [main, next]\n",
		".installation/" + config.CurrentVersionFileName:         "version: 1.1\n",
		".installation/" + config.CacheDirName + "/core-1.1.jar": "cached",
	})
	require.FileExists(t, layout.SystemPathsFile())
	require.NoError(t, metadata.WriteManifest(env.fs, candidate, streams(opts.versions)))
	_, err = metadata.AppendRevision(env.fs, env.clock, candidate, metadata.ChangeUpdate)
	require.NoError(t, err)
	require.NoError(t, metadata.WriteMarker(env.fs, candidate, &metadata.Marker{
		State:     env.revision,
		Operation: opts.operation,
	}))

	return candidate
}

func (env *testEnv) engine(fs fsops.FS) *Engine {
	if fs == nil {
		fs = env.fs
	}
	settings := &config.Settings{Backup: config.BackupSettings{TmpDir: env.stageParent}}
	return New(fs, fsdiff.NewManifestProvider(fs), env.clock, settings, zerolog.Nop())
}

func (env *testEnv) request(candidate string, op metadata.Operation) *ApplyRequest {
	return &ApplyRequest{Installation: env.installation, Candidate: candidate, Operation: op}
}

// stageDirs lists leftover backup staging directories.
func (env *testEnv) stageDirs(t *testing.T) []os.DirEntry {
	t.Helper()
	entries, err := os.ReadDir(env.stageParent)
	require.NoError(t, err)
	return entries
}
