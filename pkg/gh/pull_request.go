package gh

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/go-github/v58/github"
	"github.com/hashicorp/go-version"
)

type BasePullRequest struct {
	Owner                 string
	RepoName              string
	Branch                string
	PullRequestBaseBranch string
}

type NewPullRequest struct {
	BasePullRequest
	Title string
	Body  string
}

type GetPullRequest struct {
	BasePullRequest
	PackageName string
	Version     string
}

// OpenPullRequest opens a pull request on GitHub
func (o GitOptions) OpenPullRequest(ctx context.Context, pr *NewPullRequest) (*github.PullRequest, error) {
	newPR := &github.NewPullRequest{
		Title: github.String(pr.Title),
		Head:  github.String(pr.Branch),
		Base:  github.String(pr.PullRequestBaseBranch),
		Body:  github.String(pr.Body),
	}

	var githubPR *github.PullRequest
	err := o.handleRateLimit(func() (*github.Response, error) {
		createdPR, resp, err := o.GithubClient.PullRequests.Create(ctx, pr.Owner, pr.RepoName, newPR)
		githubPR = createdPR
		return resp, err
	})

	if err != nil {
		return nil, fmt.Errorf("failed opening pull request: %w", err)
	}

	return githubPR, nil
}

// ListPullRequests returns a list of pull requests for a given state using pagination
func (o GitOptions) ListPullRequests(ctx context.Context, owner, repo, state string) ([]*github.PullRequest, error) {
	openPullRequests := []*github.PullRequest{}

	err := o.handleRateLimitList(func(opt *github.ListOptions) (*github.Response, error) {
		opts := &github.PullRequestListOptions{
			State:       state,
			ListOptions: *opt,
		}
		prs, resp, err := o.GithubClient.PullRequests.List(ctx, owner, repo, opts)
		openPullRequests = append(openPullRequests, prs...)
		return resp, err
	})

	return openPullRequests, err
}

func (o GitOptions) ClosePullRequest(ctx context.Context, owner, repo string, number int) error {
	closed := "closed"
	pr := &github.PullRequest{
		State: &closed,
	}

	err := o.handleRateLimit(func() (*github.Response, error) {
		_, resp, err := o.GithubClient.PullRequests.Edit(ctx, owner, repo, number, pr)
		return resp, err
	})

	return err
}

// CheckExistingPullRequests looks for an open pull request for the same
// package and version, returning its URL when one exists. Open pull
// requests for an older version of the package are closed along the way,
// since the caller is about to supersede them.
func (o GitOptions) CheckExistingPullRequests(ctx context.Context, pr *GetPullRequest) (string, error) {
	openPullRequests, err := o.ListPullRequests(ctx, pr.Owner, pr.RepoName, "open")
	if err != nil {
		return "", fmt.Errorf("failed listing open pull requests: %w", err)
	}

	for _, openPr := range openPullRequests {
		title := openPr.GetTitle()

		if strings.Contains(title, fmt.Sprintf("%s/%s", pr.PackageName, pr.Version)) {
			return openPr.GetHTMLURL(), nil
		}

		if o.isPullRequestOldVersion(pr.PackageName, pr.Version, title) {
			o.Logger.Printf("closing pull request %s, superseded by %s/%s", openPr.GetHTMLURL(), pr.PackageName, pr.Version)
			if err := o.ClosePullRequest(ctx, pr.Owner, pr.RepoName, openPr.GetNumber()); err != nil {
				return "", fmt.Errorf("failed closing pull request %s: %w", openPr.GetHTMLURL(), err)
			}
		}
	}
	return "", nil
}

// isPullRequestOldVersion reports whether a pull request title of the form
// "package/version ..." names an older version of the same package.
func (o GitOptions) isPullRequestOldVersion(packageName, packageVersion, title string) bool {
	prefix := packageName + "/"
	if !strings.HasPrefix(title, prefix) {
		return false
	}

	existing, _, _ := strings.Cut(strings.TrimPrefix(title, prefix), " ")
	existingVersion, err := version.NewVersion(existing)
	if err != nil {
		return false
	}
	newVersion, err := version.NewVersion(packageVersion)
	if err != nil {
		return false
	}

	return existingVersion.LessThan(newVersion)
}
