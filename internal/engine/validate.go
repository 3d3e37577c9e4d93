package engine

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/danieljhkim/stagemerge/internal/config"
	"github.com/danieljhkim/stagemerge/internal/fsops"
	"github.com/danieljhkim/stagemerge/internal/metadata"
)

// VerifyCandidate checks that candidate was prepared from the current state
// of installation for operation. Rejections are reported as a result, not an
// error; errors are reserved for unreadable metadata.
func (e *Engine) VerifyCandidate(installation, candidate string, operation metadata.Operation) (ValidationResult, error) {
	ref := candidateRef{Installation: installation, Candidate: candidate}

	marker, err := metadata.ReadMarker(e.fs, candidate)
	if err != nil {
		if errors.Is(err, metadata.ErrNoMarker) {
			return ValidationNotCandidate, nil
		}
		return "", newError(KindMetadata, ref, err, "failed to read candidate marker")
	}

	inst, err := metadata.LoadInstallation(e.fs, installation)
	if err != nil {
		return "", newError(KindMetadata, ref, err, "failed to read installation metadata")
	}

	if marker.State != inst.RevisionID() {
		e.logger.Debug().
			Str("marker", marker.State).
			Str("installation", inst.RevisionID()).
			Msg("candidate was prepared for a different revision")
		return ValidationStale, nil
	}
	if marker.Operation != operation {
		e.logger.Debug().
			Str("marker", string(marker.Operation)).
			Str("requested", string(operation)).
			Msg("candidate was prepared for a different operation")
		return ValidationWrongType, nil
	}

	if operation == metadata.OperationRevert {
		same, err := e.sameProvisionedState(installation, candidate)
		if err != nil {
			return "", newError(KindMetadata, ref, err, "failed to compare provisioned state")
		}
		if same {
			return ValidationNoChanges, nil
		}
	}

	return ValidationOK, nil
}

// checkCandidate runs VerifyCandidate and turns rejections into errors.
func (e *Engine) checkCandidate(req *ApplyRequest) error {
	result, err := e.VerifyCandidate(req.Installation, req.Candidate, req.Operation)
	if err != nil {
		return err
	}

	var msg string
	switch result {
	case ValidationOK:
		return nil
	case ValidationNotCandidate:
		msg = fmt.Sprintf("%s is not a candidate", req.Candidate)
	case ValidationStale:
		msg = fmt.Sprintf("candidate %s was prepared for a different state of %s", req.Candidate, req.Installation)
	case ValidationWrongType:
		msg = fmt.Sprintf("candidate %s was not prepared for %s", req.Candidate, req.Operation)
	case ValidationNoChanges:
		msg = "no changes found to revert"
	default:
		msg = fmt.Sprintf("unexpected validation result %s", result)
	}

	verr := newError(KindValidation, req.ref(), nil, "%s", msg)
	verr.Status = result
	return verr
}

// checkNotRunning fails when a startup marker shows the server is running.
func (e *Engine) checkNotRunning(req *ApplyRequest) error {
	for _, marker := range config.StartupMarkers {
		path := filepath.Join(req.Installation, marker)
		exists, err := e.fs.Exists(path)
		if err != nil {
			return newError(KindPrecondition, req.ref(), err, "failed to check %s", path)
		}
		if exists {
			return newError(KindPrecondition, req.ref(), nil, "server at %s is running (found %s)", req.Installation, marker)
		}
	}
	return nil
}

// sameProvisionedState reports whether both trees carry byte-identical hash
// manifests and installer channels.
func (e *Engine) sameProvisionedState(installation, candidate string) (bool, error) {
	a, b := config.NewLayout(installation), config.NewLayout(candidate)

	same, err := sameTree(e.fs, a.HashesDir(), b.HashesDir())
	if err != nil || !same {
		return same, err
	}
	return sameOptionalFile(e.fs, a.InstallerChannelsFile(), b.InstallerChannelsFile())
}

func sameOptionalFile(fs fsops.FS, a, b string) (bool, error) {
	aExists, err := fs.Exists(a)
	if err != nil {
		return false, err
	}
	bExists, err := fs.Exists(b)
	if err != nil {
		return false, err
	}
	if !aExists || !bExists {
		return aExists == bExists, nil
	}
	return fs.ContentEquals(a, b)
}

// sameTree reports whether two directories hold the same files with the
// same content. Missing directories count as empty.
func sameTree(fs fsops.FS, a, b string) (bool, error) {
	aFiles, err := listFiles(fs, a)
	if err != nil {
		return false, err
	}
	bFiles, err := listFiles(fs, b)
	if err != nil {
		return false, err
	}
	if len(aFiles) != len(bFiles) {
		return false, nil
	}

	for i := range aFiles {
		if aFiles[i] != bFiles[i] {
			return false, nil
		}
		same, err := fs.ContentEquals(filepath.Join(a, aFiles[i]), filepath.Join(b, bFiles[i]))
		if err != nil || !same {
			return false, err
		}
	}
	return true, nil
}

func listFiles(fs fsops.FS, root string) ([]string, error) {
	if _, err := fs.Lstat(root); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var files []string
	err := fsops.WalkTree(fs, root, fsops.Visitor{
		File: func(_, rel string) error {
			files = append(files, rel)
			return nil
		},
	})
	sort.Strings(files)
	return files, err
}
