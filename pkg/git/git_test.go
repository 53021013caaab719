package git

import (
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gitHttp "github.com/go-git/go-git/v5/plumbing/transport/http"
)

func TestParseGitURL(t *testing.T) {
	tests := []struct {
		rawURL    string
		scheme    string
		org       string
		repoName  string
		errorText string
	}{
		{
			rawURL:   "https://github.com/conda-tools/recipes",
			scheme:   "https",
			org:      "conda-tools",
			repoName: "recipes",
		},
		{
			rawURL:   "https://github.com/conda-tools/recipes.git",
			scheme:   "https",
			org:      "conda-tools",
			repoName: "recipes",
		},
		{
			rawURL:   "git@github.com:conda-tools/recipes.git",
			scheme:   "git",
			org:      "conda-tools",
			repoName: "recipes",
		},
		{
			rawURL:   "https://example.com/",
			scheme:   "https",
			org:      "",
			repoName: "",
		},
		{
			rawURL:    "http://example.com/",
			errorText: "unsupported scheme: http",
		},
	}
	for _, test := range tests {
		t.Run(test.rawURL, func(t *testing.T) {
			got, err := ParseGitURL(test.rawURL)
			if test.errorText != "" {
				assert.Equal(t, test.errorText, err.Error())
				return
			}
			assert.NoError(t, err)

			assert.Equal(t, test.scheme, got.Scheme)
			assert.Equal(t, test.org, got.Organisation)
			assert.Equal(t, test.repoName, got.Name)
		})
	}
}

func TestGetGitAuth(t *testing.T) {
	tests := []struct {
		name          string
		gitURL        string
		envToken      string
		expectedError string
		expectedAuth  *gitHttp.BasicAuth
	}{
		{
			name:          "empty URL",
			gitURL:        "",
			expectedError: "failed to parse git URL \"\": ",
		},
		{
			name:          "malformed URL",
			gitURL:        "://invalid-url",
			expectedError: "failed to parse git URL \"://invalid-url\": ",
		},
		{
			name:         "non-GitHub host",
			gitURL:       "https://example.com/conda-tools/recipes.git",
			expectedAuth: nil,
		},
		{
			name:         "GitHub host with no token",
			gitURL:       "https://github.com/conda-tools/recipes.git",
			expectedAuth: &gitHttp.BasicAuth{},
		},
		{
			name:         "GitHub host with token",
			gitURL:       "https://github.com/conda-tools/recipes.git",
			envToken:     "test-token",
			expectedAuth: &gitHttp.BasicAuth{Username: "abc123", Password: "test-token"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("GITHUB_TOKEN", tt.envToken)

			// Token resolution falls back to gh's own credentials; keep the
			// test hermetic from any ambient gh login.
			t.Setenv("GH_TOKEN", "")
			t.Setenv("GH_CONFIG_DIR", t.TempDir())

			auth, err := GetGitAuth(tt.gitURL)
			if tt.expectedError != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.expectedError)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expectedAuth, auth)
		})
	}
}

func TestGetGitAuthorSignature(t *testing.T) {
	t.Setenv("GIT_AUTHOR_NAME", "Jane Tester")
	t.Setenv("GIT_AUTHOR_EMAIL", "jane@example.com")

	sig := GetGitAuthorSignature()
	assert.Equal(t, "Jane Tester", sig.Name)
	assert.Equal(t, "jane@example.com", sig.Email)
	assert.False(t, sig.When.IsZero())

	t.Setenv("GIT_AUTHOR_NAME", "")
	t.Setenv("GIT_AUTHOR_EMAIL", "")

	sig = GetGitAuthorSignature()
	assert.Equal(t, "condactl", sig.Name)
	assert.Equal(t, "bot@conda-tools.dev", sig.Email)
}

func TestGetRemoteURL(t *testing.T) {
	r, err := git.Init(memory.NewStorage(), memfs.New())
	require.NoError(t, err)

	_, err = r.CreateRemote(&config.RemoteConfig{
		Name: "origin",
		URLs: []string{"git@github.com:conda-tools/recipes.git"},
	})
	require.NoError(t, err)

	gitURL, err := GetRemoteURL(r)
	require.NoError(t, err)
	assert.Equal(t, "github.com", gitURL.Host)
	assert.Equal(t, "conda-tools", gitURL.Organisation)
	assert.Equal(t, "recipes", gitURL.Name)
}

func TestGetRemoteURL_NoOrigin(t *testing.T) {
	r, err := git.Init(memory.NewStorage(), memfs.New())
	require.NoError(t, err)

	_, err = GetRemoteURL(r)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to find git origin URL")
}
