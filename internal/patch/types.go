package patch

import (
	"fmt"
	"strings"
)

// LineKind identifies the role of a hunk body line.
type LineKind int

const (
	// Context is an unchanged line, prefixed with a space.
	Context LineKind = iota
	// Added is a line present only in the new file, prefixed with '+'.
	Added
	// Removed is a line present only in the old file, prefixed with '-'.
	Removed
	// NoNewline is the "\ No newline at end of file" marker.
	NoNewline
)

// Prefix returns the diff prefix character for the kind.
func (k LineKind) Prefix() byte {
	switch k {
	case Added:
		return '+'
	case Removed:
		return '-'
	case NoNewline:
		return '\\'
	default:
		return ' '
	}
}

func (k LineKind) String() string {
	switch k {
	case Added:
		return "added"
	case Removed:
		return "removed"
	case NoNewline:
		return "no_newline"
	default:
		return "context"
	}
}

// Line is a single hunk body line. Text excludes the prefix character.
type Line struct {
	Kind LineKind
	Text string
}

// String renders the line with its original prefix.
func (l Line) String() string {
	return string(l.Kind.Prefix()) + l.Text
}

// Hunk is a contiguous block of changes bounded by an @@ range header.
type Hunk struct {
	OldStart int
	OldLines int
	NewStart int
	NewLines int
	// Section is the optional text after the closing @@, usually the
	// enclosing function signature.
	Section string
	Lines   []Line
}

// Header renders the normalized range header.
func (h Hunk) Header() string {
	header := fmt.Sprintf("@@ -%d,%d +%d,%d @@", h.OldStart, h.OldLines, h.NewStart, h.NewLines)
	if h.Section != "" {
		header += " " + h.Section
	}
	return header
}

// String renders the hunk back to text: the header line followed by each
// body line, separated by newlines, without a trailing newline.
func (h Hunk) String() string {
	var b strings.Builder
	b.WriteString(h.Header())
	for _, l := range h.Lines {
		b.WriteByte('\n')
		b.WriteString(l.String())
	}
	return b.String()
}

// Status describes what happened to a file.
type Status string

const (
	StatusModified Status = "modified"
	StatusAdded    Status = "added"
	StatusDeleted  Status = "deleted"
	StatusRenamed  Status = "renamed"
)

// DevNull is the placeholder name for the missing side of an added or deleted file.
const DevNull = "/dev/null"

// File is one per-file section of a patch.
type File struct {
	OldName  string
	NewName  string
	Status   Status
	IsBinary bool
	Hunks    []Hunk
}

// Path returns the path the file is reported under: the old name, or the
// new name when the file was added.
func (f File) Path() string {
	if f.OldName == DevNull || f.OldName == "" {
		return f.NewName
	}
	return f.OldName
}

// Added counts added lines across all hunks.
func (f File) Added() int {
	return f.count(Added)
}

// Removed counts removed lines across all hunks.
func (f File) Removed() int {
	return f.count(Removed)
}

func (f File) count(kind LineKind) int {
	n := 0
	for _, h := range f.Hunks {
		for _, l := range h.Lines {
			if l.Kind == kind {
				n++
			}
		}
	}
	return n
}

// Set is the structural form of a whole patch: its file sections in order.
type Set struct {
	Files []File
}

// HunkCount returns the number of hunks across all files.
func (s *Set) HunkCount() int {
	n := 0
	for _, f := range s.Files {
		n += len(f.Hunks)
	}
	return n
}
