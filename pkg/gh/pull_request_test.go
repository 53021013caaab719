package gh

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-github/v58/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testGitOptions(t *testing.T, handler http.Handler) GitOptions {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := github.NewClient(server.Client())
	var err error
	client.BaseURL, err = url.Parse(server.URL + "/")
	require.NoError(t, err)

	return GitOptions{
		GithubClient:                  client,
		MaxRetries:                    3,
		SecondsToSleepWhenRateLimited: 0,
		Logger:                        log.New(log.Writer(), "test: ", log.LstdFlags|log.Lmsgprefix),
	}
}

func TestOpenPullRequest(t *testing.T) {
	o := testGitOptions(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/repos/conda-tools/recipes/pulls", r.URL.Path)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		fmt.Fprintln(w, `{"number": 7, "html_url": "https://github.com/conda-tools/recipes/pull/7"}`)
	}))

	pr, err := o.OpenPullRequest(context.Background(), &NewPullRequest{
		BasePullRequest: BasePullRequest{
			Owner:                 "conda-tools",
			RepoName:              "recipes",
			Branch:                "condactl-123",
			PullRequestBaseBranch: "main",
		},
		Title: "pandas/2.2.1 package update",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://github.com/conda-tools/recipes/pull/7", pr.GetHTMLURL())
}

func TestOpenPullRequest_RetriesWhenRateLimited(t *testing.T) {
	var hits atomic.Int32
	o := testGitOptions(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if hits.Add(1) == 1 {
			w.Header().Set("X-RateLimit-Limit", "5000")
			w.Header().Set("X-RateLimit-Remaining", "0")
			w.Header().Set("X-RateLimit-Reset", fmt.Sprint(time.Now().Add(-10*time.Second).Unix()))
			w.WriteHeader(http.StatusForbidden)
			fmt.Fprintln(w, `{"message": "API rate limit exceeded"}`)
			return
		}
		w.WriteHeader(http.StatusCreated)
		fmt.Fprintln(w, `{"number": 8, "html_url": "https://github.com/conda-tools/recipes/pull/8"}`)
	}))

	pr, err := o.OpenPullRequest(context.Background(), &NewPullRequest{
		BasePullRequest: BasePullRequest{Owner: "conda-tools", RepoName: "recipes", Branch: "condactl-123", PullRequestBaseBranch: "main"},
		Title:           "numpy/2.1.0 package update",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://github.com/conda-tools/recipes/pull/8", pr.GetHTMLURL())
	assert.Equal(t, int32(2), hits.Load())
}

func TestCheckExistingPullRequests(t *testing.T) {
	var closed []string
	o := testGitOptions(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodGet:
			fmt.Fprintln(w, `[
				{"number": 2, "title": "numpy/2.1.0 package update", "html_url": "https://github.com/conda-tools/recipes/pull/2"},
				{"number": 3, "title": "pandas/2.2.0 package update", "html_url": "https://github.com/conda-tools/recipes/pull/3"}
			]`)
		case r.Method == http.MethodPatch:
			closed = append(closed, r.URL.Path)
			fmt.Fprintln(w, `{"number": 3, "state": "closed"}`)
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	}))

	// Same version already proposed: reuse the open pull request.
	existing, err := o.CheckExistingPullRequests(context.Background(), &GetPullRequest{
		BasePullRequest: BasePullRequest{Owner: "conda-tools", RepoName: "recipes"},
		PackageName:     "numpy",
		Version:         "2.1.0",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://github.com/conda-tools/recipes/pull/2", existing)
	assert.Empty(t, closed)

	// Newer version: the stale pandas pull request gets closed.
	existing, err = o.CheckExistingPullRequests(context.Background(), &GetPullRequest{
		BasePullRequest: BasePullRequest{Owner: "conda-tools", RepoName: "recipes"},
		PackageName:     "pandas",
		Version:         "2.2.1",
	})
	require.NoError(t, err)
	assert.Empty(t, existing)
	assert.Equal(t, []string{"/repos/conda-tools/recipes/pulls/3"}, closed)
}
