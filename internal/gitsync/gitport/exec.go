package gitport

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/llamaha/sagitta-sub008/internal/sagerr"
)

// ExecRepository implements Repository by shelling out to the system `git`
// binary, the same approach manifold/internal/documents/git.go uses for
// `git ls-files` rather than linking a pure-Go git implementation — no
// example repo in the retrieval pack vendors one either.
type ExecRepository struct {
	root string
}

// Open verifies path is a directory under Git control and returns a handle
// to it.
func Open(ctx context.Context, path string) (*ExecRepository, error) {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("open repository %s: %w", path, sagerr.ErrNotFound)
	}
	r := &ExecRepository{root: path}
	if _, err := r.run(ctx, "rev-parse", "--is-inside-work-tree"); err != nil {
		return nil, fmt.Errorf("open repository %s: %w", path, sagerr.ErrGit)
	}
	return r, nil
}

func (r *ExecRepository) Root() string { return r.root }

func (r *ExecRepository) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", append([]string{"-C", r.root}, args...)...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), sagerr.ErrGit, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

func (r *ExecRepository) CurrentBranch(ctx context.Context) (string, error) {
	out, err := r.run(ctx, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func (r *ExecRepository) CommitHash(ctx context.Context, ref string) (string, error) {
	out, err := r.run(ctx, "rev-parse", "--verify", "--quiet", ref+"^{commit}")
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", ref, sagerr.ErrNotFound)
	}
	return strings.TrimSpace(out), nil
}

func (r *ExecRepository) ListBranches(ctx context.Context) ([]string, error) {
	out, err := r.run(ctx, "branch", "--list", "--format=%(refname:short)")
	if err != nil {
		return nil, err
	}
	return splitNonEmptyLines(out), nil
}

func (r *ExecRepository) ListRefs(ctx context.Context) (map[string]string, error) {
	out, err := r.run(ctx, "show-ref")
	if err != nil {
		// An empty repository has no refs; `git show-ref` exits non-zero.
		return map[string]string{}, nil
	}
	refs := map[string]string{}
	for _, line := range splitNonEmptyLines(out) {
		parts := strings.SplitN(line, " ", 2)
		if len(parts) != 2 {
			continue
		}
		hash, name := parts[0], parts[1]
		refs[name] = hash
		for _, prefix := range []string{"refs/heads/", "refs/tags/", "refs/remotes/"} {
			if strings.HasPrefix(name, prefix) {
				refs[strings.TrimPrefix(name, prefix)] = hash
			}
		}
	}
	return refs, nil
}

func (r *ExecRepository) Checkout(ctx context.Context, ref string, force bool) error {
	args := []string{"checkout"}
	if force {
		args = append(args, "--force")
	}
	args = append(args, ref)
	_, err := r.run(ctx, args...)
	return err
}

func (r *ExecRepository) Status(ctx context.Context) (Status, error) {
	out, err := r.run(ctx, "status", "--porcelain")
	if err != nil {
		return Status{}, err
	}
	st := Status{Clean: strings.TrimSpace(out) == ""}
	for _, line := range strings.Split(out, "\n") {
		if len(line) < 4 {
			continue
		}
		code := line[:2]
		path := strings.TrimSpace(line[3:])
		if code == "??" {
			st.UntrackedPaths = append(st.UntrackedPaths, path)
		} else {
			st.ModifiedPaths = append(st.ModifiedPaths, path)
		}
	}
	return st, nil
}

func (r *ExecRepository) DiffTree(ctx context.Context, fromCommit, toCommit string, detectRenames bool) ([]TreeChange, error) {
	args := []string{"diff", "--name-status"}
	if detectRenames {
		args = append(args, "-M")
	} else {
		args = append(args, "--no-renames")
	}
	args = append(args, fromCommit, toCommit)
	out, err := r.run(ctx, args...)
	if err != nil {
		return nil, err
	}
	var changes []TreeChange
	for _, line := range splitNonEmptyLines(out) {
		fields := strings.Split(line, "\t")
		if len(fields) < 2 {
			continue
		}
		statusCode := fields[0]
		switch {
		case strings.HasPrefix(statusCode, "A"):
			changes = append(changes, TreeChange{Status: StatusAdded, Path: fields[1]})
		case strings.HasPrefix(statusCode, "M"):
			changes = append(changes, TreeChange{Status: StatusModified, Path: fields[1]})
		case strings.HasPrefix(statusCode, "D"):
			changes = append(changes, TreeChange{Status: StatusDeleted, Path: fields[1]})
		case strings.HasPrefix(statusCode, "R"):
			if len(fields) >= 3 {
				changes = append(changes, TreeChange{Status: StatusRenamed, Path: fields[1], NewPath: fields[2]})
			}
		}
	}
	return changes, nil
}

func (r *ExecRepository) WalkTree(ctx context.Context, commit string) ([]TreeEntry, error) {
	out, err := r.run(ctx, "ls-tree", "-r", "--long", commit)
	if err != nil {
		return nil, err
	}
	var entries []TreeEntry
	for _, line := range splitNonEmptyLines(out) {
		// format: <mode> <type> <blob-id> <size>\t<path>
		tabIdx := strings.Index(line, "\t")
		if tabIdx < 0 {
			continue
		}
		meta := strings.Fields(line[:tabIdx])
		path := line[tabIdx+1:]
		if len(meta) < 4 || meta[1] != "blob" {
			continue
		}
		size, _ := strconv.ParseInt(meta[3], 10, 64)
		entries = append(entries, TreeEntry{Path: path, Size: size, BlobID: meta[2]})
	}
	return entries, nil
}

func (r *ExecRepository) ReadFile(ctx context.Context, relPath string) ([]byte, error) {
	full := filepath.Join(r.root, relPath)
	data, err := os.ReadFile(full)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", relPath, sagerr.ErrIO)
	}
	return data, nil
}

func splitNonEmptyLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}
