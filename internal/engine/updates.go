package engine

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/danieljhkim/stagemerge/internal/metadata"
)

// FindUpdates lists the artifacts that differ between the manifests of
// installation and candidate. Updated artifacts are annotated with the channel
// named in the candidate properties, when the candidate carries them.
func (e *Engine) FindUpdates(installation, candidate string) (*UpdateSet, error) {
	ref := candidateRef{Installation: installation, Candidate: candidate}

	base, err := metadata.LoadInstallation(e.fs, installation)
	if err != nil {
		return nil, newError(KindMetadata, ref, err, "failed to read installation metadata")
	}
	cand, err := metadata.LoadInstallation(e.fs, candidate)
	if err != nil {
		return nil, newError(KindMetadata, ref, err, "failed to read candidate metadata")
	}

	props := e.candidateProperties(candidate)
	baseArtifacts := base.Artifacts()
	candArtifacts := cand.Artifacts()

	set := &UpdateSet{Changes: []ArtifactChange{}}
	for key, old := range baseArtifacts {
		next, ok := candArtifacts[key]
		switch {
		case !ok:
			set.Changes = append(set.Changes, ArtifactChange{
				Artifact: key, Status: ChangeRemoved, OldVersion: old.Version,
			})
		case old.Version != next.Version:
			set.Changes = append(set.Changes, ArtifactChange{
				Artifact:   key,
				Status:     ChangeUpdated,
				OldVersion: old.Version,
				NewVersion: next.Version,
				Channel:    props.UpdateChannel(key),
			})
		}
	}
	for key, next := range candArtifacts {
		if _, ok := baseArtifacts[key]; !ok {
			set.Changes = append(set.Changes, ArtifactChange{
				Artifact: key, Status: ChangeAdded, NewVersion: next.Version,
			})
		}
	}

	sort.Slice(set.Changes, func(i, j int) bool {
		return set.Changes[i].Artifact < set.Changes[j].Artifact
	})
	return set, nil
}

// candidateProperties returns nil when the properties cannot be read; channel
// names are informational only.
func (e *Engine) candidateProperties(candidate string) *metadata.CandidateProperties {
	props, err := metadata.ReadCandidateProperties(e.fs, candidate)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			e.logger.Warn().Err(err).Msg("unable to read channel names of the candidate")
		}
		return nil
	}
	return props
}

// CandidateRevision returns the head revision of the candidate's history.
func (e *Engine) CandidateRevision(candidate string) (*metadata.Revision, error) {
	ref := candidateRef{Candidate: candidate}

	inst, err := metadata.LoadInstallation(e.fs, candidate)
	if err != nil {
		return nil, newError(KindMetadata, ref, err, "failed to read candidate metadata")
	}
	head := inst.History.Head()
	if head == nil {
		return nil, newError(KindMetadata, ref, nil, "candidate %s has no history", candidate)
	}
	return head, nil
}

// RemoveCandidate deletes a candidate directory.
func (e *Engine) RemoveCandidate(candidate string) error {
	if candidate == "" {
		return fmt.Errorf("candidate path is empty")
	}
	if err := e.fs.RemoveAll(candidate); err != nil {
		return fmt.Errorf("failed to remove candidate %s: %w", candidate, err)
	}
	e.logger.Debug().Str("candidate", candidate).Msg("candidate removed")
	return nil
}
