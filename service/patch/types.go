package patch

import (
	"fmt"
)

// Diff describes one file mutation expressed as unified-diff text.  Path is
// always relative to the workspace root; containment is checked, not assumed.
type Diff struct {
	Path           string   `json:"path"`
	BeforeHash     string   `json:"beforeHash,omitempty"`
	AfterHash      string   `json:"afterHash,omitempty"`
	Patch          string   `json:"patch"`
	PredictedTests []string `json:"predictedTests,omitempty"`
}

// CommitResult identifies one applied batch.  CommitSha is a digest of the
// serialized (diffs, message) tuple used as an idempotency and audit token,
// not a version-control commit.
type CommitResult struct {
	CommitSha string `json:"commitSha"`
}

// PathEscapeError reports a diff path that resolves outside the workspace
// root after normalization.
type PathEscapeError struct {
	Path string
}

func (e *PathEscapeError) Error() string {
	return fmt.Sprintf("patch: path %q escapes workspace root", e.Path)
}

// RejectedError reports a patch that does not apply cleanly against the
// current file content.
type RejectedError struct {
	Path string
	Err  error
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("patch: rejected for %s: %v", e.Path, e.Err)
}

func (e *RejectedError) Unwrap() error {
	return e.Err
}
