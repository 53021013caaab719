// Package git holds the small amount of git plumbing the updater needs:
// remote URL parsing, basic auth from the environment and commit
// identity.
package git

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	ghauth "github.com/cli/go-gh/v2/pkg/auth"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"

	gitHttp "github.com/go-git/go-git/v5/plumbing/transport/http"

	"github.com/conda-tools/condactl/pkg/stringhelpers"
)

const (
	defaultAuthorName  = "condactl"
	defaultAuthorEmail = "bot@conda-tools.dev"
)

// GetGitAuth returns basic auth for the given remote when it points at
// github.com. The password is the token resolved the way the gh CLI
// resolves it: GITHUB_TOKEN and GH_TOKEN first, then gh's own stored
// credentials. Remotes on other hosts get no auth.
func GetGitAuth(gitURL string) (*gitHttp.BasicAuth, error) {
	parsed, err := ParseGitURL(gitURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse git URL %q: %w", gitURL, err)
	}

	if parsed.Host != "github.com" {
		return nil, nil
	}

	auth := &gitHttp.BasicAuth{}
	if token, _ := ghauth.TokenForHost(parsed.Host); token != "" {
		// the username can be anything except an empty string
		auth.Username = "abc123"
		auth.Password = token
	}
	return auth, nil
}

// GetGitAuthorSignature returns the identity commits and tags are authored
// with, from the standard git environment variables when set.
func GetGitAuthorSignature() *object.Signature {
	name := os.Getenv("GIT_AUTHOR_NAME")
	if name == "" {
		name = defaultAuthorName
	}
	email := os.Getenv("GIT_AUTHOR_EMAIL")
	if email == "" {
		email = defaultAuthorEmail
	}

	return &object.Signature{
		Name:  name,
		Email: email,
		When:  time.Now(),
	}
}

// SetGitSignOptions configures the repository at repoPath to sign commits,
// so that a follow-up git commit picks the settings up.
func SetGitSignOptions(repoPath string) error {
	r, err := git.PlainOpen(repoPath)
	if err != nil {
		return err
	}

	cfg, err := r.Config()
	if err != nil {
		return err
	}

	sig := GetGitAuthorSignature()
	cfg.User.Name = sig.Name
	cfg.User.Email = sig.Email
	cfg.Raw.Section("commit").SetOption("gpgsign", "true")

	return r.SetConfig(cfg)
}

type URL struct {
	Scheme       string
	Host         string
	Organisation string
	Name         string
}

func GetRemoteURL(repo *git.Repository) (*URL, error) {
	remote, err := repo.Remote("origin")
	if err != nil {
		return nil, fmt.Errorf("failed to find git origin URL: %w", err)
	}

	if len(remote.Config().URLs) == 0 {
		return nil, fmt.Errorf("no remote config URLs found for remote origin")
	}

	return ParseGitURL(remote.Config().URLs[0])
}

// ParseGitURL returns the owner and repository name parts of a git remote
// URL, handling both https and git@ forms.
func ParseGitURL(rawURL string) (*URL, error) {
	gitURL := &URL{}

	rawURL = strings.TrimSuffix(rawURL, ".git")

	// handle git@ kinds of URIs
	if strings.HasPrefix(rawURL, "git@") {
		t := strings.TrimPrefix(rawURL, "git@")
		t = strings.TrimPrefix(t, "/")
		t = strings.TrimSuffix(t, "/")

		arr := stringhelpers.RegexpSplit(t, ":|/")
		if len(arr) >= 3 {
			gitURL.Scheme = "git"
			gitURL.Host = arr[0]
			gitURL.Organisation = arr[1]
			gitURL.Name = arr[len(arr)-1]
			return gitURL, nil
		}
	}

	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse git url %s: %w", rawURL, err)
	}
	switch parsedURL.Scheme {
	case "https", "ssh":
	default:
		return nil, fmt.Errorf("unsupported scheme: %s", parsedURL.Scheme)
	}

	gitURL.Scheme = parsedURL.Scheme
	gitURL.Host = parsedURL.Host
	if parts := strings.Split(strings.TrimPrefix(parsedURL.Path, "/"), "/"); len(parts) >= 2 {
		gitURL.Organisation = parts[0]
		gitURL.Name = parts[1]
	}

	return gitURL, nil
}
