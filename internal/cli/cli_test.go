package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/graft/internal/testutil"
)

// execute runs the root command with args and returns stdout and stderr.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := NewRootCommand()
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

// decodeResponse parses a JSON envelope and returns its data as a map.
func decodeResponse(t *testing.T, out string) (CLIResponse, map[string]any) {
	t.Helper()
	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp), "output: %s", out)
	data, _ := resp.Data.(map[string]any)
	return resp, data
}

// fixture is a repository with three commits on feature, the second of
// which breaks the check, and a configuration integrating them into main.
type fixture struct {
	repo   *testutil.GitRepo
	config string
	db     string
	base   string
	good   []string
	bad    string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := testutil.NewGitRepo(t)
	fx := &fixture{repo: repo, base: repo.Head()}

	repo.Git("checkout", "-q", "-b", "feature")
	a := repo.Commit("a.txt", "a\n", "add a")
	fx.bad = repo.Commit("bad.txt", "bad\n", "add bad")
	c := repo.Commit("c.txt", "c\n", "add c")
	fx.good = []string{a, c}
	repo.Git("checkout", "-q", "main")

	dir := t.TempDir()
	stateDir := filepath.Join(dir, "state")
	fx.db = filepath.Join(stateDir, "graft.db")
	fx.config = filepath.Join(dir, "graft.yaml")
	cfg := fmt.Sprintf(`git:
  source_ref: feature
  target_branch: main
  target_workdir: %q
  mode: cherry-pick
check:
  commands:
    test: "test ! -e bad.txt"
  timeout: 60
state:
  dir: %q
`, repo.Dir, stateDir)
	require.NoError(t, os.WriteFile(fx.config, []byte(cfg), 0o644))
	return fx
}
