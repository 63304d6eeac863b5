package patch

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	gitHeaderRe     = regexp.MustCompile(`^diff --git a/(.+) b/(.+)$`)
	bareGitHeaderRe = regexp.MustCompile(`^diff --git (\S+) (\S+)$`)
	hunkHeaderRe    = regexp.MustCompile(`^@@ -(\d+)(?:,(\d+))? \+(\d+)(?:,(\d+))? @@(.*)$`)
	renameFromRe    = regexp.MustCompile(`^rename from (.+)$`)
	renameToRe      = regexp.MustCompile(`^rename to (.+)$`)
	binaryRe        = regexp.MustCompile(`^Binary files (.+) and (.+) differ$`)
)

// ParseSet parses unified diff text into its file and hunk structure.
//
// Lines outside file sections and hunks (mail headers, commit message
// bodies, diffstats, signatures) are ignored. A hunk ends once the line
// counts in its header are consumed, or early at the next hunk header,
// diff --git line, ---/+++ pair or end of input. Body lines past a
// finished hunk are an error.
func ParseSet(text string) (*Set, error) {
	p := &parser{lines: splitLines(text)}
	for p.pos < len(p.lines) {
		if err := p.next(); err != nil {
			return nil, err
		}
	}
	if err := p.closeHunk(); err != nil {
		return nil, err
	}
	return &p.set, nil
}

type parser struct {
	lines []string
	pos   int
	set   Set

	// pendingGit is set while the current file was opened by a
	// diff --git line and has seen neither ---/+++ nor a hunk.
	pendingGit bool

	hunk      *Hunk
	hunkStart int
	oldLeft   int
	newLeft   int

	// markable is set right after a hunk completes, so a trailing
	// "\ No newline" marker can attach to it.
	markable bool
}

func (p *parser) next() error {
	line := p.lines[p.pos]
	if p.hunk != nil {
		handled, err := p.bodyLine(line)
		if err != nil || handled {
			return err
		}
		if err := p.closeHunk(); err != nil {
			return err
		}
	}
	return p.headerLine(line)
}

func (p *parser) bodyLine(line string) (bool, error) {
	if p.fileHeaderAt(p.pos) {
		return false, nil
	}
	if line == "" {
		if p.blankTail() || p.oldLeft == 0 || p.newLeft == 0 {
			return false, nil
		}
		return true, p.appendBody(Context, "")
	}

	switch line[0] {
	case ' ':
		return true, p.appendBody(Context, line[1:])
	case '-':
		return true, p.appendBody(Removed, line[1:])
	case '+':
		return true, p.appendBody(Added, line[1:])
	case '\\':
		return true, p.appendBody(NoNewline, line[1:])
	}

	if strings.HasPrefix(line, "@@") || strings.HasPrefix(line, "diff --git ") {
		return false, nil
	}
	return false, p.errorf("unexpected line in hunk body")
}

// blankTail reports whether the blank run starting at pos reaches end of
// input or a header line, in which case it separates sections rather than
// carrying empty context lines.
func (p *parser) blankTail() bool {
	for i := p.pos; i < len(p.lines); i++ {
		line := p.lines[i]
		if line == "" {
			continue
		}
		return strings.HasPrefix(line, "@@") || strings.HasPrefix(line, "diff --git ") || p.fileHeaderAt(i)
	}
	return true
}

// fileHeaderAt reports whether lines i and i+1 form a ---/+++ pair.
func (p *parser) fileHeaderAt(i int) bool {
	return i+1 < len(p.lines) &&
		strings.HasPrefix(p.lines[i], "--- ") &&
		strings.HasPrefix(p.lines[i+1], "+++ ")
}

// overflows reports whether line is a body line directly after a hunk whose
// counts are already consumed. The "-- " mail signature separator is not.
func (p *parser) overflows(line string) bool {
	if line == "" || line == "--" || line == "-- " || p.fileHeaderAt(p.pos) {
		return false
	}
	switch line[0] {
	case ' ', '+', '-':
		return true
	}
	return false
}

func (p *parser) appendBody(kind LineKind, text string) error {
	switch kind {
	case Context:
		if p.oldLeft == 0 || p.newLeft == 0 {
			return p.errorf("context line exceeds hunk range")
		}
		p.oldLeft--
		p.newLeft--
	case Removed:
		if p.oldLeft == 0 {
			return p.errorf("removed line exceeds hunk range")
		}
		p.oldLeft--
	case Added:
		if p.newLeft == 0 {
			return p.errorf("added line exceeds hunk range")
		}
		p.newLeft--
	}

	p.hunk.Lines = append(p.hunk.Lines, Line{Kind: kind, Text: text})
	p.pos++
	if p.oldLeft == 0 && p.newLeft == 0 {
		p.finishHunk()
	}
	return nil
}

func (p *parser) headerLine(line string) error {
	markable := p.markable
	p.markable = false

	switch {
	case markable && p.overflows(line):
		return p.errorf("line exceeds hunk range")
	case markable && strings.HasPrefix(line, "\\"):
		f := p.current()
		h := &f.Hunks[len(f.Hunks)-1]
		h.Lines = append(h.Lines, Line{Kind: NoNewline, Text: line[1:]})
	case strings.HasPrefix(line, "diff --git "):
		return p.gitHeader(line)
	case strings.HasPrefix(line, "--- "):
		return p.fileHeader(line)
	case strings.HasPrefix(line, "+++ "):
		return p.errorf("+++ file header without preceding ---")
	case strings.HasPrefix(line, "@@"):
		return p.hunkHeader(line)
	case p.pendingGit:
		p.extendedHeader(line)
	}
	p.pos++
	return nil
}

func (p *parser) gitHeader(line string) error {
	m := gitHeaderRe.FindStringSubmatch(line)
	if m == nil {
		m = bareGitHeaderRe.FindStringSubmatch(line)
	}
	if m == nil {
		return p.errorf("unparsable diff --git header")
	}
	p.set.Files = append(p.set.Files, File{
		OldName: m[1],
		NewName: m[2],
		Status:  StatusModified,
	})
	p.pendingGit = true
	p.pos++
	return nil
}

func (p *parser) extendedHeader(line string) {
	f := p.current()
	switch {
	case strings.HasPrefix(line, "new file mode"):
		f.Status = StatusAdded
	case strings.HasPrefix(line, "deleted file mode"):
		f.Status = StatusDeleted
	case line == "GIT binary patch":
		f.IsBinary = true
	default:
		if m := renameFromRe.FindStringSubmatch(line); m != nil {
			f.OldName = m[1]
			f.Status = StatusRenamed
		} else if m := renameToRe.FindStringSubmatch(line); m != nil {
			f.NewName = m[1]
			f.Status = StatusRenamed
		} else if m := binaryRe.FindStringSubmatch(line); m != nil {
			f.IsBinary = true
			if old := fileName(m[1]); old == DevNull {
				f.Status = StatusAdded
			} else if fileName(m[2]) == DevNull {
				f.Status = StatusDeleted
			}
		}
	}
}

// fileHeader opens a file section at a ---/+++ pair. A lone --- line is
// commit message text and is skipped.
func (p *parser) fileHeader(line string) error {
	if !p.fileHeaderAt(p.pos) {
		p.pos++
		return nil
	}
	oldName := fileName(line[4:])
	newName := fileName(p.lines[p.pos+1][4:])

	if !p.pendingGit {
		p.set.Files = append(p.set.Files, File{Status: StatusModified})
	}
	f := p.current()
	f.OldName = oldName
	f.NewName = newName
	switch {
	case oldName == DevNull:
		f.Status = StatusAdded
	case newName == DevNull:
		f.Status = StatusDeleted
	}

	p.pendingGit = false
	p.pos += 2
	return nil
}

func (p *parser) hunkHeader(line string) error {
	if len(p.set.Files) == 0 {
		return p.errorf("hunk header without preceding file header")
	}
	m := hunkHeaderRe.FindStringSubmatch(line)
	if m == nil {
		return p.errorf("unparsable hunk range")
	}

	var nums [4]int
	for i, s := range m[1:5] {
		if s == "" {
			nums[i] = 1
			continue
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return p.errorf("hunk range out of bounds")
		}
		nums[i] = n
	}

	p.hunk = &Hunk{
		OldStart: nums[0],
		OldLines: nums[1],
		NewStart: nums[2],
		NewLines: nums[3],
		Section:  strings.TrimPrefix(m[5], " "),
	}
	p.hunkStart = p.pos
	p.oldLeft, p.newLeft = nums[1], nums[3]
	p.pendingGit = false
	p.pos++

	if p.oldLeft == 0 && p.newLeft == 0 {
		p.finishHunk()
	}
	return nil
}

func (p *parser) finishHunk() {
	f := p.current()
	f.Hunks = append(f.Hunks, *p.hunk)
	p.hunk = nil
	p.markable = true
}

// closeHunk ends an in-progress hunk before its counts are consumed.
func (p *parser) closeHunk() error {
	if p.hunk == nil {
		return nil
	}
	if len(p.hunk.Lines) == 0 {
		return &PatchFormatError{
			Line:   p.hunkStart + 1,
			Text:   p.lines[p.hunkStart],
			Reason: "unterminated hunk",
		}
	}
	p.finishHunk()
	p.markable = false
	return nil
}

func (p *parser) current() *File {
	return &p.set.Files[len(p.set.Files)-1]
}

func (p *parser) errorf(reason string) error {
	return &PatchFormatError{
		Line:   p.pos + 1,
		Text:   p.lines[p.pos],
		Reason: reason,
	}
}

// fileName extracts the path from a ---/+++ header value, dropping any
// timestamp and the a/ or b/ prefix.
func fileName(s string) string {
	if i := strings.IndexByte(s, '\t'); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimSpace(s)
	if s == DevNull {
		return s
	}
	if strings.HasPrefix(s, "a/") || strings.HasPrefix(s, "b/") {
		return s[2:]
	}
	return s
}

func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	lines := strings.Split(text, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}
