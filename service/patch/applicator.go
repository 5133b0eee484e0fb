// Package patch applies batches of unified-diff patches to files under a
// fixed workspace root.  It is a pure effect executor: it keeps no state
// beyond the root path, enforces path containment on every diff, and returns
// a deterministic content hash identifying the applied batch.
package patch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	sgdiff "github.com/sourcegraph/go-diff/diff"

	"github.com/patchgate/patchgate/tracing"
)

// DefaultRoot is used when no workspace root is configured.
const DefaultRoot = "work"

// Applicator applies diff batches under its workspace root.
type Applicator struct {
	root string
}

// New creates an Applicator rooted at root, creating the directory when
// missing.  An empty root selects DefaultRoot relative to the working
// directory.
func New(root string) (*Applicator, error) {
	if root == "" {
		root = DefaultRoot
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("patch: resolve workspace root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("patch: create workspace root: %w", err)
	}
	return &Applicator{root: abs}, nil
}

// Root returns the absolute workspace root.
func (a *Applicator) Root() string {
	return a.root
}

// Apply applies diffs in the order supplied and returns the batch commit
// hash.  The first failing diff aborts the remainder; files written by
// earlier diffs in the same batch stay written.  Callers needing
// all-or-nothing semantics must snapshot the workspace themselves.
func (a *Applicator) Apply(ctx context.Context, diffs []Diff, message string) (result *CommitResult, err error) {
	ctx, span := tracing.StartSpan(ctx, "patch.apply", "INTERNAL")
	defer func() { tracing.EndSpan(span, err) }()

	for i := range diffs {
		if err = a.applyOne(ctx, &diffs[i]); err != nil {
			return nil, err
		}
	}
	sha, err := commitSha(diffs, message)
	if err != nil {
		return nil, err
	}
	return &CommitResult{CommitSha: sha}, nil
}

func (a *Applicator) applyOne(_ context.Context, d *Diff) error {
	target, err := a.resolve(d.Path)
	if err != nil {
		return err
	}

	base, err := os.ReadFile(target)
	if err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("patch: read %s: %w", d.Path, err)
		}
		base = nil // file does not exist yet, patch applies against empty content
	}

	next, err := applyUnified(base, d.Patch)
	if err != nil {
		return &RejectedError{Path: d.Path, Err: err}
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("patch: create parent directories for %s: %w", d.Path, err)
	}
	if err := writeFileAtomic(target, next); err != nil {
		return fmt.Errorf("patch: write %s: %w", d.Path, err)
	}
	return nil
}

// resolve joins path against the root and fails closed when the normalized
// result is neither the root itself nor strictly contained in it.
func (a *Applicator) resolve(path string) (string, error) {
	if path == "" || filepath.IsAbs(path) {
		return "", &PathEscapeError{Path: path}
	}
	abs, err := filepath.Abs(filepath.Join(a.root, path))
	if err != nil {
		return "", &PathEscapeError{Path: path}
	}
	if abs != a.root && !strings.HasPrefix(abs, a.root+string(os.PathSeparator)) {
		return "", &PathEscapeError{Path: path}
	}
	return abs, nil
}

// applyUnified parses a single-file unified diff and replays its hunks
// against base.
func applyUnified(base []byte, patchText string) ([]byte, error) {
	fileDiffs, err := sgdiff.ParseMultiFileDiff([]byte(patchText))
	if err != nil {
		return nil, fmt.Errorf("parse unified diff: %w", err)
	}
	if len(fileDiffs) != 1 {
		return nil, fmt.Errorf("expected a single-file patch, got %d file sections", len(fileDiffs))
	}
	return applyHunks(base, fileDiffs[0].Hunks)
}

// applyHunks walks the base content line by line, verifying every context and
// deletion line before emitting the patched output.  Any mismatch aborts.
func applyHunks(base []byte, hunks []*sgdiff.Hunk) ([]byte, error) {
	baseLines := strings.SplitAfter(string(base), "\n")
	cursor := 0 // index of the next unconsumed base line

	var out strings.Builder

	for _, hunk := range hunks {
		// Copy untouched lines preceding the hunk.  OrigStartLine is
		// 1-based.
		for cursor < int(hunk.OrigStartLine)-1 && cursor < len(baseLines) {
			out.WriteString(baseLines[cursor])
			cursor++
		}

		for _, bodyLine := range strings.SplitAfter(string(hunk.Body), "\n") {
			if bodyLine == "" {
				continue
			}
			tag, content := bodyLine[0], bodyLine[1:]
			switch tag {
			case ' ':
				if cursor >= len(baseLines) || !sameLine(baseLines[cursor], content) {
					return nil, fmt.Errorf("context mismatch at line %d", cursor+1)
				}
				// An implicit final newline shows up as an empty base
				// line against a "\n" context line; it was already
				// emitted with the previous line.
				if !(baseLines[cursor] == "" && content == "\n") {
					out.WriteString(content)
				}
				cursor++
			case '-':
				if cursor >= len(baseLines) || !sameLine(baseLines[cursor], content) {
					return nil, fmt.Errorf("delete mismatch at line %d", cursor+1)
				}
				cursor++
			case '+':
				out.WriteString(content)
			case '\\':
				// "\ No newline at end of file"
			default:
				return nil, fmt.Errorf("unexpected hunk tag %q", tag)
			}
		}
	}

	for cursor < len(baseLines) {
		out.WriteString(baseLines[cursor])
		cursor++
	}
	return []byte(out.String()), nil
}

// sameLine compares a base line with a hunk line, treating the implicit
// newline terminating a file as equal to an explicit "\n" context line.
func sameLine(a, b string) bool {
	if a == b {
		return true
	}
	return (a == "" && b == "\n") || (a == "\n" && b == "")
}

// writeFileAtomic replaces path via a temp file and rename so a partial write
// never corrupts the target.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".patchgate-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o644); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}
