package engine

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/danieljhkim/stagemerge/internal/backup"
	"github.com/danieljhkim/stagemerge/internal/config"
	"github.com/danieljhkim/stagemerge/internal/fsdiff"
	"github.com/danieljhkim/stagemerge/internal/logging"
	"github.com/danieljhkim/stagemerge/internal/metadata"
	"github.com/danieljhkim/stagemerge/internal/planner"
	"github.com/danieljhkim/stagemerge/internal/syspaths"
)

// Algorithm steps:
// 1. Validate the candidate against the installation
// 2. Refuse to touch a running server
// 3. Compute the user's changes (read-only)
// 4. Open a backup session
// 5. Resolve conflicts, then sync the remaining tree, recording every path
// 6. Replace the installation metadata and append a history revision
// 7. On failure restore from the backup; always close it
func (e *Engine) ApplyUpdate(ctx context.Context, req *ApplyRequest) (*ApplyResult, error) {
	defer logging.LogOperationStart(e.logger, "apply")()

	if err := e.checkCandidate(req); err != nil {
		return nil, err
	}
	if err := e.checkNotRunning(req); err != nil {
		return nil, err
	}

	diff, resolver, err := e.prepare(req)
	if err != nil {
		return nil, err
	}

	updates, err := e.FindUpdates(req.Installation, req.Candidate)
	if err != nil {
		return nil, err
	}
	if !updates.IsEmpty() {
		e.logger.Info().Str("updates", updates.String()).Msg("applying candidate")
	}

	if err := ctx.Err(); err != nil {
		return nil, newError(KindApplyFailed, req.ref(), err, "apply cancelled")
	}

	session, err := backup.Open(e.fs, req.Installation, e.settings.Backup.TmpDir, e.logger)
	if err != nil {
		return nil, newError(KindApplyFailed, req.ref(), err, "failed to open backup")
	}
	defer session.Close()

	conflicts, revision, err := e.merge(session, resolver, diff, req)
	if err != nil {
		return nil, e.rollback(session, req, err)
	}

	for _, c := range conflicts {
		e.logger.Info().Str("conflict", c.String()).Msg("file conflict")
	}
	e.logger.Info().
		Str("installation", req.Installation).
		Str("operation", string(req.Operation)).
		Int("conflicts", len(conflicts)).
		Int("recorded", session.Len()).
		Msg("candidate applied")

	return &ApplyResult{
		Conflicts: conflicts,
		Updates:   updates,
		Revision:  revision,
	}, nil
}

// GetConflicts previews the conflicts ApplyUpdate would produce without
// modifying anything.
func (e *Engine) GetConflicts(ctx context.Context, req *ApplyRequest) ([]planner.FileConflict, error) {
	defer logging.LogOperationStart(e.logger, "conflicts")()

	if err := e.checkCandidate(req); err != nil {
		return nil, err
	}
	diff, resolver, err := e.prepare(req)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	conflicts, err := resolver.Resolve(diff, req.Installation, req.Candidate, nil)
	if err != nil {
		return nil, newError(KindMetadata, req.ref(), err, "failed to compare installation and candidate")
	}
	return conflicts, nil
}

// prepare computes the user's changes and loads the candidate's system paths.
func (e *Engine) prepare(req *ApplyRequest) (*fsdiff.Diff, *planner.Resolver, error) {
	diff, err := e.provider.Compute(req.Installation)
	if err != nil {
		return nil, nil, newError(KindMetadata, req.ref(), err, "failed to compute installation changes")
	}
	e.logger.Debug().
		Int("added", len(diff.Added)).
		Int("removed", len(diff.Removed)).
		Int("modified", len(diff.Modified)).
		Msg("user changes")

	matcher, err := syspaths.Load(e.fs, req.Candidate)
	if err != nil {
		return nil, nil, newError(KindMetadata, req.ref(), err, "failed to load system paths")
	}
	e.logger.Debug().Strs("patterns", matcher.Patterns()).Msg("system paths")

	return diff, planner.NewResolver(e.fs, matcher, e.logger), nil
}

func (e *Engine) merge(session *backup.Session, resolver *planner.Resolver, diff *fsdiff.Diff, req *ApplyRequest) ([]planner.FileConflict, string, error) {
	if req.FullBackup {
		if err := session.RecordAll(); err != nil {
			return nil, "", err
		}
	}

	conflicts, err := resolver.Resolve(diff, req.Installation, req.Candidate, session)
	if err != nil {
		return nil, "", err
	}
	if err := resolver.Sync(diff, req.Installation, req.Candidate, session); err != nil {
		return nil, "", err
	}

	revision, err := e.updateMetadata(session, req)
	if err != nil {
		return nil, "", err
	}

	return conflicts, revision, nil
}

// rollback restores the installation after a failed merge.
func (e *Engine) rollback(session *backup.Session, req *ApplyRequest, cause error) error {
	e.logger.Debug().Err(cause).Msg("apply failed, restoring installation")

	if rerr := session.Restore(); rerr != nil {
		e.logger.Warn().
			Err(rerr).
			AnErr("cause", cause).
			Str("installation", session.Root()).
			Str("stage", session.Stage()).
			Msg("unable to restore installation from backup")
		return newError(KindRestoreFailed, req.ref(), errors.Join(cause, rerr),
			"unable to restore %s from backup, manual recovery required", req.Installation)
	}

	return newError(KindApplyFailed, req.ref(), cause, "failed to apply candidate")
}

// updateMetadata copies the candidate's metadata into the installation and
// records a history revision. It runs after the content tree is merged.
func (e *Engine) updateMetadata(session *backup.Session, req *ApplyRequest) (string, error) {
	inst := config.NewLayout(req.Installation)
	cand := config.NewLayout(req.Candidate)

	if err := session.Record(inst.MetadataDir()); err != nil {
		return "", err
	}
	if err := session.Record(inst.ProvisionedStateDir()); err != nil {
		return "", err
	}

	if err := e.copyIfExists(cand.CurrentVersionFile(), inst.CurrentVersionFile()); err != nil {
		return "", err
	}
	if err := e.replaceDir(cand.ProvisionedStateDir(), inst.ProvisionedStateDir()); err != nil {
		return "", err
	}
	if err := e.copyIfExists(cand.ManifestFile(), inst.ManifestFile()); err != nil {
		return "", err
	}
	if req.Operation == metadata.OperationRevert {
		if err := e.copyIfExists(cand.InstallerChannelsFile(), inst.InstallerChannelsFile()); err != nil {
			return "", err
		}
	}

	rev, err := metadata.AppendRevision(e.fs, e.clock, req.Installation, req.Operation.ChangeType())
	if err != nil {
		return "", err
	}

	if err := e.replaceDir(cand.CacheDir(), inst.CacheDir()); err != nil {
		return "", err
	}
	if err := e.copyIfExists(cand.LicensesDir(), inst.LicensesDir()); err != nil {
		return "", err
	}

	return rev.ID, nil
}

func (e *Engine) copyIfExists(src, dst string) error {
	exists, err := e.fs.Exists(src)
	if err != nil {
		return fmt.Errorf("failed to check %s: %w", src, err)
	}
	if !exists {
		return nil
	}
	if err := e.fs.Copy(src, dst); err != nil {
		return fmt.Errorf("failed to copy %s: %w", src, err)
	}
	return nil
}

// replaceDir removes dst and copies src in its place when src exists.
func (e *Engine) replaceDir(src, dst string) error {
	if err := e.fs.RemoveAll(dst); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove %s: %w", dst, err)
	}
	return e.copyIfExists(src, dst)
}
