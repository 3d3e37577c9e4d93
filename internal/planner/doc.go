// Package planner decides how a candidate tree is merged into a live
// installation.
//
// The Resolver walks the user's changes (added, removed and modified entries
// of an fsdiff.Diff) against the candidate and produces one FileConflict per
// path where both sides disagree. System paths always end up with the
// candidate's content, the user's version parked as a .glold sidecar; user
// paths keep the user's content, the candidate's version parked as a .glnew
// sidecar.
//
// Sync then brings every remaining path in line with the candidate: new and
// changed candidate files are copied in, installation files the candidate no
// longer ships are deleted and emptied directories pruned.
//
// Both phases record every path into a Recorder before touching it. A nil
// Recorder means dry-run: conflicts are computed and nothing is written.
package planner
