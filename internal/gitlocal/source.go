// Package gitlocal reads patches straight from a local clone, for
// repositories that are not hosted on GitHub or when working offline.
package gitlocal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fyrsmithlabs/diffscribe/internal/ingest"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"go.uber.org/zap"
)

// DefaultHead is used when no head ref is configured.
const DefaultHead = "HEAD"

// ErrBaseNotAncestor is returned when base is not on head's first-parent
// history.
var ErrBaseNotAncestor = errors.New("base is not a first-parent ancestor of head")

// Source renders the commits between two refs of a repository as
// mail-style patches.
type Source struct {
	repo   *git.Repository
	base   string
	head   string
	logger *zap.Logger
}

var _ ingest.Source = (*Source)(nil)

// Open opens the repository containing path. Parent directories are
// searched for the .git directory.
func Open(path, base, head string, logger *zap.Logger) (*Source, error) {
	repo, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("opening repository %s: %w", path, err)
	}
	return New(repo, base, head, logger), nil
}

// New creates a Source over an already opened repository. An empty base
// walks the whole first-parent history of head.
func New(repo *git.Repository, base, head string, logger *zap.Logger) *Source {
	if logger == nil {
		logger = zap.NewNop()
	}
	if head == "" {
		head = DefaultHead
	}
	return &Source{repo: repo, base: base, head: head, logger: logger}
}

// Patches returns one patch per non-merge commit in base..head, oldest
// first.
func (s *Source) Patches(ctx context.Context) ([]ingest.Input, error) {
	commits, err := s.commits(ctx)
	if err != nil {
		return nil, err
	}

	inputs := make([]ingest.Input, 0, len(commits))
	skipped := 0
	for i := len(commits) - 1; i >= 0; i-- {
		c := commits[i]
		if c.NumParents() > 1 {
			skipped++
			continue
		}
		text, err := FormatPatch(ctx, c)
		if err != nil {
			return nil, err
		}
		sha := c.Hash.String()
		inputs = append(inputs, ingest.Input{
			ID:    "commit-" + sha,
			Title: subject(c.Message),
			Text:  text,
			Metadata: map[string]interface{}{
				"commit":   sha,
				"author":   c.Author.Name,
				"date":     c.Author.When.UTC().Format(time.RFC3339),
				"head_ref": s.head,
				"base_ref": s.base,
			},
		})
	}

	s.logger.Info("collected local patches",
		zap.String("base", s.base),
		zap.String("head", s.head),
		zap.Int("patches", len(inputs)),
		zap.Int("merges_skipped", skipped))
	return inputs, nil
}

// commits walks head's first parents until base, newest first.
func (s *Source) commits(ctx context.Context) ([]*object.Commit, error) {
	headHash, err := s.resolve(s.head)
	if err != nil {
		return nil, err
	}
	var stop plumbing.Hash
	if s.base != "" {
		baseHash, err := s.resolve(s.base)
		if err != nil {
			return nil, err
		}
		stop = baseHash
	}

	c, err := s.repo.CommitObject(headHash)
	if err != nil {
		return nil, fmt.Errorf("loading commit %s: %w", headHash, err)
	}

	var out []*object.Commit
	for c.Hash != stop {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out = append(out, c)
		if c.NumParents() == 0 {
			if s.base != "" {
				return nil, fmt.Errorf("%s..%s: %w", s.base, s.head, ErrBaseNotAncestor)
			}
			break
		}
		if c, err = c.Parent(0); err != nil {
			return nil, fmt.Errorf("loading parent of %s: %w", out[len(out)-1].Hash, err)
		}
	}
	return out, nil
}

func (s *Source) resolve(ref string) (plumbing.Hash, error) {
	h, err := s.repo.ResolveRevision(plumbing.Revision(ref))
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("resolving %q: %w", ref, err)
	}
	return *h, nil
}

// FormatPatch renders a commit the way git format-patch does: mail
// headers, the commit message, then the unified diff against its first
// parent. Root commits are diffed against the empty tree.
func FormatPatch(ctx context.Context, c *object.Commit) (string, error) {
	tree, err := c.Tree()
	if err != nil {
		return "", fmt.Errorf("tree of %s: %w", c.Hash, err)
	}
	parentTree := &object.Tree{}
	if c.NumParents() > 0 {
		parent, err := c.Parent(0)
		if err != nil {
			return "", fmt.Errorf("parent of %s: %w", c.Hash, err)
		}
		if parentTree, err = parent.Tree(); err != nil {
			return "", fmt.Errorf("tree of %s: %w", parent.Hash, err)
		}
	}

	changes, err := object.DiffTreeWithOptions(ctx, parentTree, tree, object.DefaultDiffTreeOptions)
	if err != nil {
		return "", fmt.Errorf("diffing %s: %w", c.Hash, err)
	}
	p, err := changes.PatchContext(ctx)
	if err != nil {
		return "", fmt.Errorf("patch for %s: %w", c.Hash, err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From %s Mon Sep 17 00:00:00 2001\n", c.Hash)
	fmt.Fprintf(&b, "From: %s <%s>\n", c.Author.Name, c.Author.Email)
	fmt.Fprintf(&b, "Date: %s\n", c.Author.When.Format(time.RFC1123Z))
	fmt.Fprintf(&b, "Subject: %s\n\n", subject(c.Message))
	if body := body(c.Message); body != "" {
		b.WriteString(body)
		b.WriteString("\n")
	}
	b.WriteString("---\n")
	b.WriteString(p.String())
	return b.String(), nil
}

func subject(msg string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(msg), "\n")
	return strings.TrimSpace(line)
}

func body(msg string) string {
	_, rest, _ := strings.Cut(strings.TrimSpace(msg), "\n")
	return strings.TrimSpace(rest)
}
