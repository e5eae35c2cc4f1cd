package source

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/graft/internal/model"
)

func TestMailHeaders_FormatPatch(t *testing.T) {
	meta := model.Object{}
	mailHeaders(mboxPatch, meta)

	author, _ := meta.GetString(model.MetaAuthor)
	email, _ := meta.GetString(model.MetaEmail)
	subject, _ := meta.GetString(model.MetaSubject)
	ts, _ := meta.GetInt(model.MetaTimestamp)
	assert.Equal(t, "Ada Lovelace", author)
	assert.Equal(t, "ada@example.com", email)
	assert.Equal(t, "Fix the widget", subject)
	assert.Equal(t, int64(1704067200), ts)
}

func TestMailHeaders_EncodedAndFoldedSubject(t *testing.T) {
	content := "From: =?UTF-8?q?Ren=C3=A9?= <rene@example.com>\n" +
		"Subject: [PATCH v2 3/5] =?UTF-8?q?Caf=C3=A9?= handling\n" +
		" for long lines\n" +
		"\n" +
		"body\n"
	meta := model.Object{}
	mailHeaders(content, meta)

	author, _ := meta.GetString(model.MetaAuthor)
	subject, _ := meta.GetString(model.MetaSubject)
	assert.Equal(t, "Ren\u00e9", author)
	assert.Equal(t, "Caf\u00e9 handling for long lines", subject)
}

func TestMailHeaders_PlainDiffLeavesMetaAlone(t *testing.T) {
	meta := model.Object{}
	mailHeaders(multiFileDiff, meta)
	assert.Empty(t, meta)
}

func TestCleanSubject(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"[PATCH] Add x", "Add x"},
		{"[PATCH 2/7] Add y", "Add y"},
		{"[RFC PATCH v3 1/1]   Add   z", "Add z"},
		{"No tag here", "No tag here"},
		{"[WIP] keep other tags", "[WIP] keep other tags"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, cleanSubject(tt.in))
		})
	}
}
