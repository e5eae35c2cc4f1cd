package testutil

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// GitRepo is a throwaway repository for tests that shell out to git.
type GitRepo struct {
	t   testing.TB
	Dir string
}

// NewGitRepo initializes a repository on branch main with one commit
// holding README. The test is skipped when git is not installed.
func NewGitRepo(t testing.TB) *GitRepo {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	r := &GitRepo{t: t, Dir: t.TempDir()}
	r.Git("init", "-q")
	r.Git("symbolic-ref", "HEAD", "refs/heads/main")
	r.Git("config", "user.name", "Graft Test")
	r.Git("config", "user.email", "graft@example.com")
	r.Git("config", "commit.gpgsign", "false")
	r.Commit("README", "readme\n", "initial commit")
	return r
}

// Git runs a git command in the repository and returns trimmed output.
// Any failure fails the test.
func (r *GitRepo) Git(args ...string) string {
	r.t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = r.Dir
	cmd.Env = append(os.Environ(),
		"GIT_AUTHOR_DATE=2024-01-01T00:00:00Z",
		"GIT_COMMITTER_DATE=2024-01-01T00:00:00Z",
	)
	out, err := cmd.CombinedOutput()
	if err != nil {
		r.t.Fatalf("git %s: %v\n%s", strings.Join(args, " "), err, out)
	}
	return strings.TrimSpace(string(out))
}

// Write creates or replaces a file relative to the repository root.
func (r *GitRepo) Write(path, content string) {
	r.t.Helper()
	full := filepath.Join(r.Dir, path)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		r.t.Fatal(err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		r.t.Fatal(err)
	}
}

// Read returns a file's content, or "" when it does not exist.
func (r *GitRepo) Read(path string) string {
	r.t.Helper()
	data, err := os.ReadFile(filepath.Join(r.Dir, path))
	if os.IsNotExist(err) {
		return ""
	}
	if err != nil {
		r.t.Fatal(err)
	}
	return string(data)
}

// Commit writes path and commits it. It returns the new commit id.
func (r *GitRepo) Commit(path, content, message string) string {
	r.t.Helper()
	r.Write(path, content)
	r.Git("add", path)
	r.Git("commit", "-q", "-m", message)
	return r.Head()
}

// Head returns the current commit id.
func (r *GitRepo) Head() string {
	r.t.Helper()
	return r.Git("rev-parse", "HEAD")
}

// FormatPatch returns commit id as an mbox patch.
func (r *GitRepo) FormatPatch(id string) string {
	r.t.Helper()
	cmd := exec.Command("git", "format-patch", "-1", "--stdout", id)
	cmd.Dir = r.Dir
	out, err := cmd.Output()
	if err != nil {
		r.t.Fatalf("git format-patch %s: %v", id, err)
	}
	return string(out)
}

// Diff returns the plain diff introduced by commit id.
func (r *GitRepo) Diff(id string) string {
	r.t.Helper()
	cmd := exec.Command("git", "diff", id+"^", id)
	cmd.Dir = r.Dir
	out, err := cmd.Output()
	if err != nil {
		r.t.Fatalf("git diff %s: %v", id, err)
	}
	return string(out)
}
