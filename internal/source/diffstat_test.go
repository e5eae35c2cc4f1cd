package source

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/graft/internal/model"
)

const mboxPatch = `From 1234567890abcdef1234567890abcdef12345678 Mon Sep 17 00:00:00 2001
From: Ada Lovelace <ada@example.com>
Date: Mon, 1 Jan 2024 00:00:00 +0000
Subject: [PATCH 1/2] Fix the widget

Longer body.
---
 widget.go | 3 ++-
 1 file changed, 2 insertions(+), 1 deletion(-)

diff --git a/widget.go b/widget.go
index 1111111..2222222 100644
--- a/widget.go
+++ b/widget.go
@@ -1,3 +1,4 @@
 package widget
-var x = 1
+var x = 2
+var y = 3
 // end
-- 
2.43.0
`

const multiFileDiff = `diff --git a/pkg/a.go b/pkg/a.go
index 1111111..2222222 100644
--- a/pkg/a.go
+++ b/pkg/a.go
@@ -1 +1,3 @@
 package pkg
+var a = 1
+var b = 2
diff --git a/old.go b/old.go
deleted file mode 100644
index 3333333..0000000
--- a/old.go
+++ /dev/null
@@ -1,2 +0,0 @@
-package old
-var z = 1
`

func TestParseDiffStat_Mbox(t *testing.T) {
	st, err := ParseDiffStat(mboxPatch)
	require.NoError(t, err)
	assert.Equal(t, []string{"widget.go"}, st.Files)
	assert.Equal(t, 2, st.Added)
	assert.Equal(t, 1, st.Deleted)
}

func TestParseDiffStat_MultiFile(t *testing.T) {
	st, err := ParseDiffStat(multiFileDiff)
	require.NoError(t, err)
	assert.Equal(t, []string{"pkg/a.go", "old.go"}, st.Files)
	assert.Equal(t, 2, st.Added)
	assert.Equal(t, 2, st.Deleted)
}

func TestParseDiffStat_NoDiff(t *testing.T) {
	st, err := ParseDiffStat("just some notes\n")
	require.NoError(t, err)
	assert.Empty(t, st.Files)
	assert.Zero(t, st.Added)
}

func TestDiffStat_Apply(t *testing.T) {
	meta := model.Object{}
	DiffStat{Files: []string{"a.go", "b.go"}, Added: 4, Deleted: 1}.apply(meta)

	assert.Equal(t, []string{"a.go", "b.go"}, meta.GetStrings(model.MetaChangedFiles))
	added, _ := meta.GetInt(model.MetaLinesAdded)
	deleted, _ := meta.GetInt(model.MetaLinesDeleted)
	assert.Equal(t, int64(4), added)
	assert.Equal(t, int64(1), deleted)
}

func TestDiffSection(t *testing.T) {
	body := diffSection(mboxPatch)
	assert.True(t, len(body) > 0)
	assert.Equal(t, "diff --git ", body[:11])
	assert.NotContains(t, body, "2.43.0")
	assert.NotContains(t, body, "Longer body")

	assert.Equal(t, "--- a/x\n+++ b/x\n", diffSection("--- a/x\n+++ b/x\n"))
	assert.Empty(t, diffSection("no diff here"))
}
