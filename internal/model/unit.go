package model

// Well-known metadata keys filled in by change sources.
// All of them are informational; the engine never reads them.
const (
	MetaAuthor       = "author"
	MetaEmail        = "email"
	MetaSubject      = "subject"
	MetaTimestamp    = "timestamp" // unix seconds
	MetaChangedFiles = "changed_files"
	MetaLinesAdded   = "lines_added"
	MetaLinesDeleted = "lines_deleted"
	MetaSourceFile   = "source_file"
)

// Unit is one change to integrate: a patch or a commit.
type Unit struct {
	// ID is stable and unique within a run (commit SHA or content hash).
	ID string `json:"id"`

	// Content is the payload the Target applies. Empty when the Target
	// resolves the change from ID alone (cherry-pick mode).
	Content string `json:"content,omitempty"`

	// Metadata is an open bag (author, subject, changed files, ...).
	Metadata Object `json:"metadata,omitempty"`
}

// ShortID returns the first eight characters of the id for log output.
func (u Unit) ShortID() string {
	return ShortID(u.ID)
}

// Subject returns the subject metadata or the short id.
func (u Unit) Subject() string {
	if s, ok := u.Metadata.GetString(MetaSubject); ok && s != "" {
		return s
	}
	return u.ShortID()
}

// ChangedFiles returns the paths the unit touches, if the source recorded them.
func (u Unit) ChangedFiles() []string {
	return u.Metadata.GetStrings(MetaChangedFiles)
}

// ShortID abbreviates a unit id to eight characters.
func ShortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
