// Package patch parses unified diff and mbox-style patch text into
// normalized changesets ready for indexing.
//
// Parsing is split in two independent passes: a textual scan for
// "Subject: " mail headers, and a structural parse of the diff grammar.
// Both are pure functions of the input and safe for concurrent use.
package patch

import "strings"

// Metadata keys produced by Changeset.Metadata.
const (
	MetaCommitMessages  = "commit_messages"
	MetaFilesChanged    = "files_changed"
	MetaNumFilesChanged = "num_files_changed"
)

const subjectPrefix = "Subject: "

// hunkSeparator puts exactly one blank line between rendered hunks.
const hunkSeparator = "\n\n"

// Changeset is the normalized result of parsing one patch.
type Changeset struct {
	// Content holds every rendered hunk in patch order, separated by a
	// blank line. Empty when the patch has no hunks.
	Content string `json:"content"`

	// CommitMessages holds the Subject: header values in appearance order.
	CommitMessages []string `json:"commit_messages"`

	// FilesChanged holds one path per file section, in patch order.
	// Duplicates are kept.
	FilesChanged []string `json:"files_changed"`

	// NumFilesChanged always equals len(FilesChanged).
	NumFilesChanged int `json:"num_files_changed"`
}

// Parse converts patch text into a Changeset. It returns a
// *PatchFormatError, and no changeset, when the text is not a valid
// unified diff.
func Parse(text string) (Changeset, error) {
	set, err := ParseSet(text)
	if err != nil {
		return Changeset{}, err
	}
	return NewChangeset(set, CommitMessages(text)), nil
}

// NewChangeset shapes a parsed Set and its commit messages into a Changeset.
func NewChangeset(set *Set, messages []string) Changeset {
	files := make([]string, 0, len(set.Files))
	hunks := make([]string, 0, set.HunkCount())
	for _, f := range set.Files {
		files = append(files, f.Path())
		for _, h := range f.Hunks {
			hunks = append(hunks, h.String())
		}
	}

	msgs := make([]string, len(messages))
	copy(msgs, messages)

	return Changeset{
		Content:         strings.Join(hunks, hunkSeparator),
		CommitMessages:  msgs,
		FilesChanged:    files,
		NumFilesChanged: len(files),
	}
}

// CommitMessages returns the value of every line starting with the literal
// "Subject: " prefix, trimmed, in order. It never returns nil.
func CommitMessages(text string) []string {
	msgs := []string{}
	for _, line := range splitLines(text) {
		if strings.HasPrefix(line, subjectPrefix) {
			msgs = append(msgs, strings.TrimSpace(line[len(subjectPrefix):]))
		}
	}
	return msgs
}

// Empty reports whether the changeset carries no hunk content.
func (c Changeset) Empty() bool {
	return c.Content == ""
}

// Metadata returns the changeset's metadata bag. The slices are copies, so
// callers may modify the result freely.
func (c Changeset) Metadata() map[string]interface{} {
	msgs := make([]string, len(c.CommitMessages))
	copy(msgs, c.CommitMessages)
	files := make([]string, len(c.FilesChanged))
	copy(files, c.FilesChanged)

	return map[string]interface{}{
		MetaCommitMessages:  msgs,
		MetaFilesChanged:    files,
		MetaNumFilesChanged: c.NumFilesChanged,
	}
}
