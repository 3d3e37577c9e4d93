package integration

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
	"github.com/danieljhkim/stagemerge/internal/engine"
	"github.com/danieljhkim/stagemerge/internal/fsdiff"
	"github.com/danieljhkim/stagemerge/internal/fsops"
	"github.com/danieljhkim/stagemerge/internal/hash"
	"github.com/danieljhkim/stagemerge/internal/metadata"
)

// server is a provisioned installation plus the state needed to prepare
// candidates for it.
type server struct {
	fs           *fsops.RealFS
	clock        *clock.FakeClock
	installation string
	stage        string
}

// release describes the distribution content of one candidate.
type release struct {
	files       map[string]string
	systemPaths []string
	version     string
	channels    string
}

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	}
}

func readTree(t *testing.T, root string) map[string]string {
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

func manifestFor(version string) *metadata.Manifest {
	return &metadata.Manifest{Name: "server", Streams: []metadata.Stream{
		{GroupID: "org.example", ArtifactID: "core", Version: version},
		{GroupID: "org.example", ArtifactID: "web", Version: "1.0"},
	}}
}

// provision lays out rel as a fresh installation with one INSTALL revision.
func provision(t *testing.T, rel release) *server {
	t.Helper()
	s := &server{
		fs:           fsops.NewRealFS(),
		clock:        clock.NewFakeClock(time.Date(2024, 1, 15, 8, 0, 0, 0, time.UTC)),
		installation: t.TempDir(),
		stage:        t.TempDir(),
	}
	s.layout(t, s.installation, rel)
	_, err := metadata.AppendRevision(s.fs, s.clock, s.installation, metadata.ChangeInstall)
	require.NoError(t, err)
	return s
}

// layout writes the files, provisioned hashes and metadata of rel under root.
func (s *server) layout(t *testing.T, root string, rel release) {
	t.Helper()
	writeTree(t, root, rel.files)
	_, err := fsdiff.WriteManifest(s.fs, hash.NewXXH3Hasher(), root)
	require.NoError(t, err)

	channels := rel.channels
	if channels == "" {
		channels = "channels: [main]\n"
	}
	writeTree(t, root, map[string]string{
		".galleon/" + config.SystemPathsFileName:            strings.Join(rel.systemPaths, "\n"),
		".installation/" + config.InstallerChannelsFileName: channels,
		".installation/" + config.CurrentVersionFileName:    "version: " + rel.version + "\n",
	})
	require.NoError(t, metadata.WriteManifest(s.fs, root, manifestFor(rel.version)))
}

// prepare builds a candidate of rel for the installation's current revision.
func (s *server) prepare(t *testing.T, rel release, op metadata.Operation) string {
	t.Helper()
	inst, err := metadata.LoadInstallation(s.fs, s.installation)
	require.NoError(t, err)

	candidate := t.TempDir()
	s.layout(t, candidate, rel)

	// The candidate history is the installation's plus the prepared revision.
	require.NoError(t, metadata.WriteHistory(s.fs, candidate, inst.History))
	s.clock.Advance(time.Hour)
	_, err = metadata.AppendRevision(s.fs, s.clock, candidate, op.ChangeType())
	require.NoError(t, err)

	require.NoError(t, metadata.WriteMarker(s.fs, candidate, &metadata.Marker{
		State:     inst.RevisionID(),
		Operation: op,
	}))
	return candidate
}

func (s *server) engine(fs fsops.FS) *engine.Engine {
	if fs == nil {
		fs = s.fs
	}
	settings := &config.Settings{Backup: config.BackupSettings{TmpDir: s.stage}}
	return engine.New(fs, fsdiff.NewManifestProvider(fs), s.clock, settings, zerolog.Nop())
}

func (s *server) request(candidate string, op metadata.Operation) *engine.ApplyRequest {
	return &engine.ApplyRequest{Installation: s.installation, Candidate: candidate, Operation: op}
}

func (s *server) history(t *testing.T) *metadata.History {
	t.Helper()
	h, err := metadata.ReadHistory(s.fs, s.installation)
	require.NoError(t, err)
	return h
}
