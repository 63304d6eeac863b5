package github

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/go-github/v57/github"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const perPage = 100

// ReleaseRange is the span of history covered by the latest release.
type ReleaseRange struct {
	// Head is the latest published release tag.
	Head string
	// Base is the previous published tag, or the latest release's target
	// commitish when there is only one release.
	Base string
}

func (r ReleaseRange) String() string {
	return r.Base + "..." + r.Head
}

// Commit is a commit in a comparison.
type Commit struct {
	SHA     string
	Message string
	Author  string
}

// PullRequest holds the fields used for indexing.
type PullRequest struct {
	Number         int       `json:"number"`
	Title          string    `json:"title"`
	Body           string    `json:"body,omitempty"`
	Author         string    `json:"author"`
	URL            string    `json:"url"`
	State          string    `json:"state"`
	MergeCommitSHA string    `json:"merge_commit_sha,omitempty"`
	MergedAt       time.Time `json:"merged_at"`
}

func newPullRequest(pr *github.PullRequest) PullRequest {
	return PullRequest{
		Number:         pr.GetNumber(),
		Title:          pr.GetTitle(),
		Body:           pr.GetBody(),
		Author:         pr.GetUser().GetLogin(),
		URL:            pr.GetHTMLURL(),
		State:          pr.GetState(),
		MergeCommitSHA: pr.GetMergeCommitSHA(),
		MergedAt:       pr.GetMergedAt().Time,
	}
}

// ReleaseRange finds the latest published release and the point to compare
// it against. Drafts and prereleases are ignored.
func (c *Client) ReleaseRange(ctx context.Context, owner, repo string) (ReleaseRange, error) {
	var published []*github.RepositoryRelease
	opts := &github.ListOptions{PerPage: perPage}

	for len(published) < 2 {
		var releases []*github.RepositoryRelease
		resp, err := c.call(ctx, "list_releases", func() (resp *github.Response, err error) {
			releases, resp, err = c.gh.Repositories.ListReleases(ctx, owner, repo, opts)
			return resp, err
		})
		if err != nil {
			return ReleaseRange{}, fmt.Errorf("listing releases of %s/%s: %w", owner, repo, err)
		}

		for _, r := range releases {
			if !r.GetDraft() && !r.GetPrerelease() {
				published = append(published, r)
			}
		}
		if resp == nil || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	switch len(published) {
	case 0:
		return ReleaseRange{}, fmt.Errorf("%s/%s: %w", owner, repo, ErrNoReleases)
	case 1:
		return ReleaseRange{Head: published[0].GetTagName(), Base: published[0].GetTargetCommitish()}, nil
	default:
		return ReleaseRange{Head: published[0].GetTagName(), Base: published[1].GetTagName()}, nil
	}
}

// CommitsBetween lists the commits reachable from head but not base.
func (c *Client) CommitsBetween(ctx context.Context, owner, repo, base, head string) ([]Commit, error) {
	var commits []Commit
	opts := &github.ListOptions{PerPage: perPage}

	for {
		var cmp *github.CommitsComparison
		resp, err := c.call(ctx, "compare_commits", func() (resp *github.Response, err error) {
			cmp, resp, err = c.gh.Repositories.CompareCommits(ctx, owner, repo, base, head, opts)
			return resp, err
		})
		if err != nil {
			return nil, fmt.Errorf("comparing %s...%s: %w", base, head, err)
		}

		for _, rc := range cmp.Commits {
			commits = append(commits, Commit{
				SHA:     rc.GetSHA(),
				Message: rc.GetCommit().GetMessage(),
				Author:  rc.GetAuthor().GetLogin(),
			})
		}
		if resp == nil || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	c.logger.Debug("compared refs",
		zap.String("base", base),
		zap.String("head", head),
		zap.Int("commits", len(commits)))
	return commits, nil
}

// PullRequestsForCommit lists the pull requests associated with a commit.
func (c *Client) PullRequestsForCommit(ctx context.Context, owner, repo, sha string) ([]PullRequest, error) {
	var prs []PullRequest
	opts := &github.ListOptions{PerPage: perPage}

	for {
		var page []*github.PullRequest
		resp, err := c.call(ctx, "list_pull_requests_with_commit", func() (resp *github.Response, err error) {
			page, resp, err = c.gh.PullRequests.ListPullRequestsWithCommit(ctx, owner, repo, sha, opts)
			return resp, err
		})
		if err != nil {
			return nil, fmt.Errorf("pull requests for %s: %w", sha, err)
		}

		for _, pr := range page {
			prs = append(prs, newPullRequest(pr))
		}
		if resp == nil || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return prs, nil
}

// PullRequestsForRelease returns the pull requests of every commit in the
// latest release, deduplicated and sorted by number.
func (c *Client) PullRequestsForRelease(ctx context.Context, owner, repo string, workers int) (ReleaseRange, []PullRequest, error) {
	rng, err := c.ReleaseRange(ctx, owner, repo)
	if err != nil {
		return ReleaseRange{}, nil, err
	}

	commits, err := c.CommitsBetween(ctx, owner, repo, rng.Base, rng.Head)
	if err != nil {
		return rng, nil, err
	}
	if len(commits) == 0 {
		c.logger.Info("no commits between release tags", zap.String("range", rng.String()))
		return rng, []PullRequest{}, nil
	}

	if workers <= 0 {
		workers = 1
	}

	var (
		mu       sync.Mutex
		byNumber = make(map[int]PullRequest)
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, commit := range commits {
		sha := commit.SHA
		g.Go(func() error {
			prs, err := c.PullRequestsForCommit(gctx, owner, repo, sha)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			for _, pr := range prs {
				byNumber[pr.Number] = pr
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return rng, nil, err
	}

	prs := make([]PullRequest, 0, len(byNumber))
	for _, pr := range byNumber {
		prs = append(prs, pr)
	}
	sort.Slice(prs, func(i, j int) bool { return prs[i].Number < prs[j].Number })

	c.logger.Info("collected release pull requests",
		zap.String("range", rng.String()),
		zap.Int("commits", len(commits)),
		zap.Int("pull_requests", len(prs)))
	return rng, prs, nil
}

// PullRequest fetches one pull request.
func (c *Client) PullRequest(ctx context.Context, owner, repo string, number int) (PullRequest, error) {
	var pr *github.PullRequest
	_, err := c.call(ctx, "get_pull_request", func() (resp *github.Response, err error) {
		pr, resp, err = c.gh.PullRequests.Get(ctx, owner, repo, number)
		return resp, err
	})
	if err != nil {
		return PullRequest{}, fmt.Errorf("pull request #%d: %w", number, err)
	}
	return newPullRequest(pr), nil
}

// PullRequestPatch fetches a pull request in the mail-style patch format,
// with one "Subject:" header per commit.
func (c *Client) PullRequestPatch(ctx context.Context, owner, repo string, number int) (string, error) {
	var text string
	_, err := c.call(ctx, "get_pull_request_patch", func() (resp *github.Response, err error) {
		text, resp, err = c.gh.PullRequests.GetRaw(ctx, owner, repo, number, github.RawOptions{Type: github.Patch})
		return resp, err
	})
	if err != nil {
		return "", fmt.Errorf("patch for pull request #%d: %w", number, err)
	}
	return text, nil
}
