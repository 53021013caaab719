// Package update checks the package index for newer releases of the
// recipes in a git repository and proposes the resulting bumps as pull
// requests.
package update

import (
	"context"
	"fmt"
	"io/fs"
	"log"
	"maps"
	"os"
	"os/exec"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/cli/browser"
	ghauth "github.com/cli/go-gh/v2/pkg/auth"
	"github.com/fatih/color"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/google/go-github/v58/github"
	"github.com/google/uuid"
	"github.com/hako/durafmt"
	"github.com/hashicorp/go-version"
	"github.com/pkg/errors"
	"github.com/savioxavier/termlink"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/conda-tools/condactl/pkg/bump"
	rwos "github.com/conda-tools/condactl/pkg/configs/rwfs/os"
	"github.com/conda-tools/condactl/pkg/gh"
	wgit "github.com/conda-tools/condactl/pkg/git"
	http2 "github.com/conda-tools/condactl/pkg/http"
	"github.com/conda-tools/condactl/pkg/pypi"
	"github.com/conda-tools/condactl/pkg/recipe"
	"github.com/conda-tools/condactl/pkg/render"
)

type Options struct {
	PackageNames          []string
	Recipes               map[string]*render.Resolved
	PullRequestBaseBranch string
	PullRequestTitle      string
	RepoURI               string
	DefaultBranch         string
	Batch                 bool
	DryRun                bool
	UseGitSign            bool
	OpenLinks             bool
	PypiClient            *pypi.Client
	GitHubHTTPClient      *http2.RLHTTPClient
	Logger                *log.Logger
}

// NewVersionResults holds the latest upstream release of a package and the
// digest of its source distribution.
type NewVersionResults struct {
	Version string
	Digest  string
}

const (
	secondsToSleepWhenRateLimited = 30
	maxPullRequestRetries         = 10
	recipesDir                    = "recipes"

	prBody = "Automated recipe update. The version and source digest come from the package index, please review the rendered diff before merging."
)

// ghTokenSource resolves the GitHub token the way the gh CLI does:
// GITHUB_TOKEN and GH_TOKEN first, then gh's own stored credentials.
type ghTokenSource struct{}

func (ghTokenSource) Token() (*oauth2.Token, error) {
	if tok, _ := ghauth.TokenForHost("github.com"); tok != "" {
		return &oauth2.Token{AccessToken: tok}, nil
	}
	return nil, errors.New("could not find github token")
}

// New initialises options with rate limited clients for the package index
// and the GitHub API.
func New() Options {
	options := Options{
		PypiClient: pypi.New(),
		GitHubHTTPClient: &http2.RLHTTPClient{
			Client: oauth2.NewClient(context.Background(), ghTokenSource{}),

			// 1 request every (n) second(s) to avoid DOS'ing server. https://docs.github.com/en/rest/guides/best-practices-for-integrators?apiVersion=2022-11-28#dealing-with-secondary-rate-limits
			Ratelimiter: rate.NewLimiter(rate.Every(3*time.Second), 1),
		},
		Logger:                log.New(log.Writer(), "condactl update: ", log.LstdFlags|log.Lmsgprefix),
		DefaultBranch:         "main",
		PullRequestBaseBranch: "main",
		PullRequestTitle:      "%s/%s package update",
	}

	return options
}

func (o *Options) Update(ctx context.Context) error {
	start := time.Now()

	// keep a map of messages to print at the end of the update to help users diagnose non-fatal problems
	errorMessages := make(map[string]string)

	// clone the recipe git repo into a temp folder so we can work with it
	tempDir, err := os.MkdirTemp("", "condactl")
	if err != nil {
		return fmt.Errorf("failed to create temporary folder to clone recipes into: %w", err)
	}
	if o.DryRun {
		o.Logger.Printf("using working directory %s", tempDir)
	} else {
		defer os.RemoveAll(tempDir)
	}

	auth, err := wgit.GetGitAuth(o.RepoURI)
	if err != nil {
		return fmt.Errorf("failed to get git auth: %w", err)
	}

	cloneOpts := &git.CloneOptions{
		URL:      o.RepoURI,
		Progress: os.Stdout,
		Auth:     auth,
		Depth:    1,
	}

	repo, err := git.PlainCloneContext(ctx, tempDir, false, cloneOpts)
	if err != nil {
		return fmt.Errorf("failed to clone repository %s into %s: %w", o.RepoURI, tempDir, err)
	}

	newVersions, err := o.GetNewVersions(ctx, tempDir, o.PackageNames, errorMessages)
	if err != nil {
		return errors.Wrapf(err, "failed to get new package versions")
	}

	prs, err := o.updateRecipesGitRepository(ctx, repo, newVersions, tempDir, errorMessages)
	if err != nil {
		return fmt.Errorf("failed to update recipes in git repository: %w", err)
	}

	// certain errors should not halt the updates, print them at the end
	for k, message := range errorMessages {
		o.Logger.Printf("%s: %s", k, color.YellowString(message))
	}

	elapsed := durafmt.Parse(time.Since(start).Round(time.Second)).LimitFirstN(2)
	o.Logger.Printf("checked %d recipe(s), proposed %d update(s) in %s", len(o.Recipes), len(prs), elapsed)

	return nil
}

// GetNewVersions reads the recipes in the repository checkout at dir and
// returns the packages the index has a newer stable release for.
func (o *Options) GetNewVersions(ctx context.Context, dir string, packageNames []string, errorMessages map[string]string) (map[string]NewVersionResults, error) {
	var err error
	o.Recipes, err = readRecipes(dir, packageNames)
	if err != nil {
		return nil, fmt.Errorf("failed to read recipes: %w", err)
	}

	latestVersions := make(map[string]NewVersionResults)
	for _, name := range slices.Sorted(maps.Keys(o.Recipes)) {
		res := o.Recipes[name]

		if !updateEnabled(res.Recipe) {
			o.Logger.Printf("updates for %s are disabled, skipping", name)
			continue
		}

		current, err := version.NewVersion(res.Recipe.Version())
		if err != nil {
			errorMessages[name] = fmt.Sprintf("failed to parse current version %s: %s", res.Recipe.Version(), err.Error())
			continue
		}

		project, err := o.PypiClient.Project(ctx, name)
		if err != nil {
			errorMessages[name] = fmt.Sprintf("failed to query the package index: %s", err.Error())
			continue
		}

		latestVersion, err := project.LatestStableVersion()
		if err != nil {
			errorMessages[name] = fmt.Sprintf("failed to find a stable release: %s", err.Error())
			continue
		}

		latest, err := version.NewVersion(latestVersion)
		if err != nil {
			errorMessages[name] = fmt.Sprintf("failed to parse latest version %s: %s", latestVersion, err.Error())
			continue
		}

		if latest.LessThanOrEqual(current) {
			continue
		}

		// the index publishes the sdist digest alongside the release, no
		// need to download the archive to hash it
		release, err := o.PypiClient.Release(ctx, name, latestVersion)
		if err != nil {
			errorMessages[name] = fmt.Sprintf("failed to fetch release %s: %s", latestVersion, err.Error())
			continue
		}
		sdist, err := release.Sdist()
		if err != nil {
			errorMessages[name] = fmt.Sprintf("release %s has no source distribution: %s", latestVersion, err.Error())
			continue
		}

		latestVersions[name] = NewVersionResults{Version: latestVersion, Digest: sdist.Digests.SHA256}
	}

	return latestVersions, nil
}

// readRecipes resolves every recipe in the checkout, optionally filtered to
// the given package names.
func readRecipes(dir string, packageNames []string) (map[string]*render.Resolved, error) {
	recipes := make(map[string]*render.Resolved)

	fsys := os.DirFS(dir)
	entries, err := fs.ReadDir(fsys, recipesDir)
	if err != nil {
		return nil, fmt.Errorf("reading recipe directory in %s: %w", dir, err)
	}

	want := make(map[string]bool, len(packageNames))
	for _, name := range packageNames {
		want[name] = true
	}

	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		if len(want) > 0 && !want[entry.Name()] {
			continue
		}
		if _, err := fs.Stat(fsys, path.Join(recipesDir, entry.Name(), recipe.Filename)); err != nil {
			continue
		}

		res, err := render.Resolve(fsys, path.Join(recipesDir, entry.Name()))
		if err != nil {
			return nil, err
		}
		recipes[res.Recipe.Name()] = res
	}

	return recipes, nil
}

// updateEnabled reports whether the recipe takes automated updates.
// Recipes opt out with extra.update.enabled: false.
func updateEnabled(r *recipe.Recipe) bool {
	update, ok := r.Extra["update"].(map[string]any)
	if !ok {
		return true
	}
	enabled, ok := update["enabled"].(bool)
	return !ok || enabled
}

// updateRecipesGitRepository applies every bump to the cloned repository and
// creates a pull request per package, or a single pull request in batch mode.
func (o *Options) updateRecipesGitRepository(ctx context.Context, repo *git.Repository, newVersions map[string]NewVersionResults, tempDir string, errorMessages map[string]string) ([]string, error) {
	names := slices.Sorted(maps.Keys(newVersions))
	var prLinks []string

	if o.Batch {
		// one branch and one pull request for the whole batch
		ref, err := o.switchBranch(repo)
		if err != nil {
			return nil, fmt.Errorf("failed to switch to working git branch: %w", err)
		}

		updated := 0
		for _, name := range names {
			errorMessage, err := o.updateGitRecipe(ctx, repo, name, newVersions[name], tempDir)
			if err != nil {
				return nil, err
			}
			if errorMessage != "" {
				errorMessages[name] = errorMessage
				continue
			}
			updated++
		}

		if updated == 0 || o.DryRun {
			return nil, nil
		}

		pr, err := o.proposeChanges(ctx, repo, ref, "", "")
		if err != nil {
			return nil, err
		}
		if pr != "" {
			prLinks = append(prLinks, pr)
		}
		return prLinks, nil
	}

	for _, name := range names {
		// work on a fresh branch per package so each change gets its own pull request
		ref, err := o.switchBranch(repo)
		if err != nil {
			return nil, fmt.Errorf("failed to switch to working git branch: %w", err)
		}

		errorMessage, err := o.updateGitRecipe(ctx, repo, name, newVersions[name], tempDir)
		if err != nil {
			return nil, err
		}
		if errorMessage != "" {
			errorMessages[name] = errorMessage
			continue
		}

		if o.DryRun {
			o.Logger.Printf("dry run: would propose %s update to %s", name, newVersions[name].Version)
			continue
		}

		pr, err := o.proposeChanges(ctx, repo, ref, name, newVersions[name].Version)
		if err != nil {
			errorMessages[name] = fmt.Sprintf("failed to propose changes: %s", err.Error())
			continue
		}
		if pr != "" {
			prLinks = append(prLinks, pr)
		}
	}

	return prLinks, nil
}

func (o *Options) updateGitRecipe(ctx context.Context, repo *git.Repository, packageName string, newVersion NewVersionResults, tempDir string) (string, error) {
	res, ok := o.Recipes[packageName]
	if !ok {
		return "", fmt.Errorf("no recipe found for package %s", packageName)
	}

	modified, err := bump.Recipe(ctx, rwos.DirFS(tempDir), res.Dir, newVersion.Version, newVersion.Digest)
	if err != nil {
		// add this to the list of messages to print at the end of the update
		return fmt.Sprintf("failed to bump %s to version %s: %s", res.Dir, newVersion.Version, err.Error()), nil
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("failed to get git worktree: %w", err)
	}

	// paths are relative to the repository root, matching what bump returns
	for _, p := range modified {
		if _, err := worktree.Add(p); err != nil {
			return "", fmt.Errorf("failed to git add %s: %w", p, err)
		}
	}

	return "", nil
}

// switchBranch checks out the default branch and then a uniquely named
// working branch from it.
func (o *Options) switchBranch(repo *git.Repository) (plumbing.ReferenceName, error) {
	worktree, err := repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("failed to get git worktree: %w", err)
	}

	// make sure we are on the default branch to start with
	ref := plumbing.ReferenceName("refs/heads/" + o.DefaultBranch)
	err = worktree.Checkout(&git.CheckoutOptions{
		Create: false,
		Branch: ref,
	})
	if err != nil {
		return "", fmt.Errorf("failed to checkout ref %s: %w", ref, err)
	}

	ref = plumbing.ReferenceName(fmt.Sprintf("refs/heads/condactl-%v", uuid.New()))
	err = worktree.Checkout(&git.CheckoutOptions{
		Create: true,
		Branch: ref,
	})
	if err != nil {
		return "", fmt.Errorf("failed to checkout ref %s: %w", ref, err)
	}

	return ref, nil
}

// proposeChanges commits the staged recipe updates and creates a pull request.
func (o *Options) proposeChanges(ctx context.Context, repo *git.Repository, ref plumbing.ReferenceName, packageName, newVersion string) (string, error) {
	gitURL, err := wgit.GetRemoteURL(repo)
	if err != nil {
		return "", fmt.Errorf("failed to find git origin URL: %w", err)
	}

	basePullRequest := gh.BasePullRequest{
		RepoName:              gitURL.Name,
		Owner:                 gitURL.Organisation,
		Branch:                ref.String(),
		PullRequestBaseBranch: o.PullRequestBaseBranch,
	}

	gitOpts := gh.GitOptions{
		GithubClient:                  github.NewClient(o.GitHubHTTPClient.Client),
		MaxRetries:                    maxPullRequestRetries,
		SecondsToSleepWhenRateLimited: secondsToSleepWhenRateLimited,
		Logger:                        o.Logger,
	}

	// an existing open PR with the same version means there is nothing to
	// do, one for an older version gets closed and replaced
	if packageName != "" {
		getPr := &gh.GetPullRequest{
			BasePullRequest: basePullRequest,
			PackageName:     packageName,
			Version:         newVersion,
		}

		existingPR, err := gitOpts.CheckExistingPullRequests(ctx, getPr)
		if err != nil {
			return "", fmt.Errorf("failed to check for existing pull requests: %w", err)
		}
		if existingPR != "" {
			o.Logger.Printf("found matching open pull request for %s/%s %s", packageName, newVersion, existingPR)
			return "", nil
		}
	}

	if err := o.commitChanges(ctx, repo, packageName, newVersion); err != nil {
		return "", fmt.Errorf("failed to commit changes: %w", err)
	}

	// force the remote URL to be https, git@ based pushes need ssh keys and
	// we default to basic auth
	remoteURL := fmt.Sprintf("https://github.com/%s/%s.git", gitURL.Organisation, gitURL.Name)
	auth, err := wgit.GetGitAuth(remoteURL)
	if err != nil {
		return "", fmt.Errorf("failed to get git auth: %w", err)
	}

	pushOpts := &git.PushOptions{
		RemoteName: "origin",
		Auth:       auth,
	}
	if err := repo.PushContext(ctx, pushOpts); err != nil {
		if err.Error() == "authorization failed" {
			return "", errors.Wrapf(err, "failed to auth with git provider, does your personal access token have the repo scope? https://github.com/settings/tokens/new?scopes=repo")
		}
		return "", fmt.Errorf("failed to git push: %w", err)
	}

	// batch updates cover several versions, default to a simple title
	title := "Updating conda recipes"
	if newVersion != "" {
		title = fmt.Sprintf(o.PullRequestTitle, packageName, newVersion)
	}

	newPR := &gh.NewPullRequest{
		BasePullRequest: basePullRequest,
		Title:           title,
		Body:            prBody,
	}

	githubPR, err := gitOpts.OpenPullRequest(ctx, newPR)
	if err != nil {
		return "", fmt.Errorf("failed to create pull request: %w", err)
	}

	prLink := githubPR.GetHTMLURL()
	o.Logger.Println(color.GreenString(termlink.Link(title, prLink)))

	if o.OpenLinks {
		if err := browser.OpenURL(prLink); err != nil {
			o.Logger.Printf("failed to open %s in a browser: %s", prLink, err.Error())
		}
	}

	return prLink, nil
}

// commitChanges commits the staged changes, either through go-git or, when
// signing is requested, the git CLI.
func (o *Options) commitChanges(ctx context.Context, repo *git.Repository, packageName, latestVersion string) error {
	worktree, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to get git worktree: %w", err)
	}

	commitMessage := "Updating conda recipes"
	if latestVersion != "" {
		commitMessage = fmt.Sprintf("%s/%s package update", packageName, latestVersion)
	}

	commitOpts := &git.CommitOptions{}
	commitOpts.Author = wgit.GetGitAuthorSignature()

	if o.UseGitSign {
		if err := wgit.SetGitSignOptions(worktree.Filesystem.Root()); err != nil {
			return fmt.Errorf("failed to set git config: %w", err)
		}

		// maybe we change this when https://github.com/go-git/go-git/issues/400 is implemented
		cmd := exec.CommandContext(ctx, "git", "commit", "-sm", commitMessage)
		cmd.Dir = worktree.Filesystem.Root()
		rs, err := cmd.Output()
		if err != nil {
			return errors.Wrapf(err, "failed to git sign commit %s", rs)
		}
	} else {
		if _, err = worktree.Commit(commitMessage, commitOpts); err != nil {
			return fmt.Errorf("failed to git commit: %w", err)
		}
	}

	return nil
}
