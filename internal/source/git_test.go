package source

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/graft/internal/model"
	"github.com/roach88/graft/internal/target"
	"github.com/roach88/graft/internal/testutil"
)

func featureRepo(t *testing.T) (*testutil.GitRepo, []string) {
	t.Helper()
	repo := testutil.NewGitRepo(t)
	repo.Git("checkout", "-q", "-b", "feature")
	ids := []string{
		repo.Commit("a.txt", "a\n", "add a"),
		repo.Commit("b.txt", "b\nb\n", "add b"),
	}
	repo.Git("checkout", "-q", "main")
	return repo, ids
}

func TestContentFor(t *testing.T) {
	assert.Equal(t, ContentMbox, ContentFor(target.ModeAm))
	assert.Equal(t, ContentDiff, ContentFor(target.ModeApply))
	assert.Equal(t, ContentNone, ContentFor(target.ModeCherryPick))
}

func TestGitSource_ListsCommitsOldestFirst(t *testing.T) {
	repo, ids := featureRepo(t)

	units, err := NewGitSource(repo.Dir, "feature", "main", ContentNone, nil).Units(context.Background())
	require.NoError(t, err)
	require.Len(t, units, 2)
	assert.Equal(t, ids, []string{units[0].ID, units[1].ID})

	u := units[1]
	assert.Empty(t, u.Content)
	assert.Equal(t, "add b", u.Subject())
	assert.Equal(t, []string{"b.txt"}, u.ChangedFiles())
	author, _ := u.Metadata.GetString(model.MetaAuthor)
	email, _ := u.Metadata.GetString(model.MetaEmail)
	ts, _ := u.Metadata.GetInt(model.MetaTimestamp)
	added, _ := u.Metadata.GetInt(model.MetaLinesAdded)
	assert.Equal(t, "Graft Test", author)
	assert.Equal(t, "graft@example.com", email)
	assert.Equal(t, int64(1704067200), ts)
	assert.Equal(t, int64(2), added)
}

func TestGitSource_ContentModes(t *testing.T) {
	repo, ids := featureRepo(t)
	ctx := context.Background()

	mbox, err := NewGitSource(repo.Dir, "feature", "main", ContentMbox, nil).Units(ctx)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(mbox[0].Content, "From "+ids[0]), mbox[0].Content)
	assert.Contains(t, mbox[0].Content, "Subject: [PATCH] add a")

	diffs, err := NewGitSource(repo.Dir, "feature", "main", ContentDiff, nil).Units(ctx)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(diffs[0].Content, "diff --git a/a.txt b/a.txt"), diffs[0].Content)
}

func TestGitSource_SkipsMerges(t *testing.T) {
	repo, _ := featureRepo(t)
	repo.Git("checkout", "-q", "feature")
	repo.Git("checkout", "-q", "-b", "side")
	side := repo.Commit("c.txt", "c\n", "add c")
	repo.Git("checkout", "-q", "feature")
	repo.Commit("d.txt", "d\n", "add d")
	repo.Git("merge", "-q", "--no-ff", "--no-edit", "side")
	merge := repo.Head()
	repo.Git("checkout", "-q", "main")

	units, err := NewGitSource(repo.Dir, "feature", "main", ContentNone, nil).Units(context.Background())
	require.NoError(t, err)
	require.Len(t, units, 4)
	var got []string
	for _, u := range units {
		got = append(got, u.ID)
	}
	assert.Contains(t, got, side)
	assert.NotContains(t, got, merge)
}

func TestGitSource_EmptyRange(t *testing.T) {
	repo, _ := featureRepo(t)

	units, err := NewGitSource(repo.Dir, "main", "feature", ContentNone, nil).Units(context.Background())
	require.NoError(t, err)
	assert.Empty(t, units)
}

func TestGitSource_UnknownRef(t *testing.T) {
	repo, _ := featureRepo(t)

	_, err := NewGitSource(repo.Dir, "does-not-exist", "main", ContentNone, nil).Units(context.Background())
	assert.Error(t, err)
}
