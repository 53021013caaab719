package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/conda-tools/condactl/pkg/cli/components/breather"
	"github.com/conda-tools/condactl/pkg/cli/components/ctrlcwrapper"
	"github.com/conda-tools/condactl/pkg/cli/components/textinput"
	"github.com/conda-tools/condactl/pkg/cli/internal/wrapped"
	"github.com/conda-tools/condactl/pkg/cli/styles"
	"github.com/conda-tools/condactl/pkg/pypi"
	"github.com/conda-tools/condactl/pkg/python"
)

func cmdInit() *cobra.Command {
	p := &initParams{}
	cmd := &cobra.Command{
		Use:   "init [project]",
		Short: "Initialize a new recipe directory from a package index project",
		Long: `Initialize a new recipe directory from a package index project.

This command looks up the named project on PyPI and scaffolds a recipe
directory for it under "recipes/": a meta.yaml template, plus the
setup-meta.json document the template resolves against.

The scaffold is a starting point, not a finished recipe. Entry points and
test commands aren't available from the index, so review the generated
files before building.
`,
		Example: `
# Scaffold a recipe for the latest release
condactl init casq

# Scaffold a recipe for a specific release
condactl init casq --version 1.2.0

# Prompt for the project name
condactl init
`,
		SilenceErrors: true,
		Args:          cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			var name string
			if len(args) == 1 {
				name = args[0]
			}

			if name == "" {
				if p.noPrompt {
					return errors.New("no project name provided")
				}

				entered, cancelled, err := promptForProjectName()
				if err != nil {
					return err
				}
				if cancelled {
					return nil
				}
				name = entered
			}

			if name == "" {
				return errors.New("no project name provided")
			}

			client := pypi.New()
			project, err := fetchProject(ctx, client, name, p.version, p.noPrompt)
			if err != nil {
				return fmt.Errorf("looking up %s on the package index: %w", name, err)
			}
			if project == nil {
				// The user bailed out mid-fetch.
				return nil
			}

			recipeName := python.NormalizeName(project.Info.Name)
			recipeDir := filepath.Join(p.dir, "recipes", recipeName)
			metaPath := filepath.Join(recipeDir, "meta.yaml")

			if _, err := os.Stat(metaPath); err == nil {
				return fmt.Errorf("recipe for %q already exists at %s", recipeName, recipeDir)
			}

			sdist, err := project.Sdist()
			if err != nil {
				return err
			}

			if err := os.MkdirAll(recipeDir, 0o755); err != nil {
				return fmt.Errorf("creating %s: %w", recipeDir, err)
			}

			metadata := scaffoldMetadata(project.Info)
			metadataBytes, err := json.MarshalIndent(metadata, "", "  ")
			if err != nil {
				return fmt.Errorf("encoding setup metadata: %w", err)
			}
			metadataBytes = append(metadataBytes, '\n')
			if err := os.WriteFile(filepath.Join(recipeDir, "setup-meta.json"), metadataBytes, 0o644); err != nil {
				return fmt.Errorf("writing setup metadata: %w", err)
			}

			template := scaffoldTemplate(project.Info, sdist, recipeName)
			if err := os.WriteFile(metaPath, []byte(template), 0o644); err != nil {
				return fmt.Errorf("writing recipe template: %w", err)
			}

			fmt.Println()
			wrapped.Println(fmt.Sprintf(
				"Initialized %s at %s.",
				styles.Bold().Render(fmt.Sprintf("%s-%s", recipeName, project.Info.Version)),
				styles.Accented().Render(recipeDir),
			))
			fmt.Println()
			wrapped.Println(styles.Faint().Render(
				"Review the generated meta.yaml (license, entry points, test commands) before building.",
			))

			for _, key := range missingMetadataKeys(metadata) {
				wrapped.Println(styles.Faint().Render(fmt.Sprintf(
					"Heads up: setup-meta.json has no value for %s yet, and rendering will fail until it does.", key,
				)))
			}

			return nil
		},
	}

	cmd.Flags().StringVarP(&p.dir, "dir", "d", ".", "directory containing the recipe repository")
	cmd.Flags().StringVar(&p.version, "version", "", "release version to scaffold (defaults to the latest release)")
	addNoPromptFlag(&p.noPrompt, cmd)

	return cmd
}

type initParams struct {
	dir      string
	version  string
	noPrompt bool
}

// promptForProjectName asks the user which project to package. The second
// return is true when the user backed out with Ctrl+C.
func promptForProjectName() (string, bool, error) {
	model, err := tea.NewProgram(ctrlcwrapper.New(newNamePrompt())).Run()
	if err != nil {
		return "", false, fmt.Errorf("running name prompt: %w", err)
	}

	if m, ok := model.(ctrlcwrapper.Model[namePromptModel]); ok {
		if m.UserWantsToExit() {
			return "", true, nil
		}
		return m.Unwrap().Value(), false, nil
	}

	return "", false, fmt.Errorf("unexpected model type: %T", model)
}

type namePromptModel struct {
	input textinput.Model
}

func newNamePrompt() namePromptModel {
	input := textinput.New()
	input.Inner.Prompt = "Name of the project to package: "

	return namePromptModel{input: input}
}

func (m namePromptModel) Init() tea.Cmd {
	return m.input.Init()
}

func (m namePromptModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.Type == tea.KeyEnter {
			return m, tea.Quit
		}

	case ctrlcwrapper.AboutToExitMsg:
		return m, ctrlcwrapper.InnerIsReady
	}

	updated, cmd := m.input.Update(msg)
	if input, ok := updated.(textinput.Model); ok {
		m.input = input
	}

	return m, cmd
}

func (m namePromptModel) View() string {
	return m.input.View()
}

func (m namePromptModel) Value() string {
	return strings.TrimSpace(m.input.Inner.Value())
}

// fetchProject looks up the project on the index, animating while the
// request is in flight. A nil project with a nil error means the user
// cancelled. With noPrompt set the lookup runs without the UI.
func fetchProject(ctx context.Context, client *pypi.Client, name, version string, noPrompt bool) (*pypi.Project, error) {
	if noPrompt {
		if version == "" {
			return client.Project(ctx, name)
		}
		return client.Release(ctx, name, version)
	}

	model, err := tea.NewProgram(ctrlcwrapper.New(newFetchModel(ctx, client, name, version))).Run()
	if err != nil {
		return nil, fmt.Errorf("running fetch: %w", err)
	}

	if m, ok := model.(ctrlcwrapper.Model[fetchModel]); ok {
		if m.UserWantsToExit() {
			return nil, nil
		}

		inner := m.Unwrap()
		return inner.project, inner.err
	}

	return nil, fmt.Errorf("unexpected model type: %T", model)
}

type fetchResultMsg struct {
	project *pypi.Project
	err     error
}

type fetchModel struct {
	name     string
	breather breather.Model
	fetch    tea.Cmd

	project *pypi.Project
	err     error
}

func newFetchModel(ctx context.Context, client *pypi.Client, name, version string) fetchModel {
	fetch := func() tea.Msg {
		var (
			project *pypi.Project
			err     error
		)
		if version == "" {
			project, err = client.Project(ctx, name)
		} else {
			project, err = client.Release(ctx, name, version)
		}

		return fetchResultMsg{project: project, err: err}
	}

	return fetchModel{
		name:     name,
		breather: breather.New(">"),
		fetch:    fetch,
	}
}

func (m fetchModel) Init() tea.Cmd {
	return tea.Batch(m.breather.Init(), m.fetch)
}

func (m fetchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case fetchResultMsg:
		m.project = msg.project
		m.err = msg.err
		return m, tea.Quit

	case ctrlcwrapper.AboutToExitMsg:
		return m, ctrlcwrapper.InnerIsReady

	case breather.TickMsg:
		var cmd tea.Cmd
		m.breather, cmd = m.breather.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m fetchModel) View() string {
	if m.project != nil || m.err != nil {
		return ""
	}

	return fmt.Sprintf("%s Looking up %s on the package index...\n", m.breather.View(), styles.Bold().Render(m.name))
}

// setupMetadataDoc is the scaffolded setup-meta.json document. Field order
// follows the keys rendering requires.
type setupMetadataDoc struct {
	Version         string            `json:"version"`
	SetupRequires   []string          `json:"setup_requires"`
	InstallRequires []string          `json:"install_requires"`
	PythonRequires  string            `json:"python_requires"`
	URL             string            `json:"url"`
	Description     string            `json:"description"`
	ProjectURLs     map[string]string `json:"project_urls"`
}

func scaffoldMetadata(info pypi.Info) setupMetadataDoc {
	urls := map[string]string{}
	for k, v := range info.ProjectURLs {
		urls[k] = v
	}

	homepage := info.HomePage
	if homepage == "" {
		homepage = urls["Homepage"]
	}

	// Rendering needs project_urls.Code and project_urls.Documentation; map
	// the index's common label variants onto them.
	if _, ok := urls["Code"]; !ok {
		for _, alt := range []string{"Source", "Source Code", "Repository", "Homepage"} {
			if v, ok := urls[alt]; ok {
				urls["Code"] = v
				break
			}
		}
	}
	if _, ok := urls["Documentation"]; !ok {
		for _, alt := range []string{"Docs", "documentation"} {
			if v, ok := urls[alt]; ok {
				urls["Documentation"] = v
				break
			}
		}
	}

	return setupMetadataDoc{
		Version:         info.Version,
		SetupRequires:   []string{"setuptools", "wheel"},
		InstallRequires: runRequirements(info.RequiresDist),
		PythonRequires:  info.RequiresPython,
		URL:             homepage,
		Description:     info.Summary,
		ProjectURLs:     urls,
	}
}

// runRequirements maps the index's requires_dist entries onto recipe-style
// requirement specs, dropping optional dependency groups.
func runRequirements(requiresDist []string) []string {
	reqs := []string{}
	for _, rd := range requiresDist {
		spec, marker, hasMarker := strings.Cut(rd, ";")
		if hasMarker && strings.Contains(marker, "extra") {
			continue
		}

		// Older metadata wraps constraints in parens: "libsbml (>=5.19)".
		spec = strings.ReplaceAll(spec, "(", " ")
		spec = strings.ReplaceAll(spec, ")", "")
		spec = strings.Join(strings.Fields(spec), " ")
		if spec == "" {
			continue
		}

		reqs = append(reqs, spec)
	}

	return reqs
}

func missingMetadataKeys(doc setupMetadataDoc) []string {
	var missing []string
	if doc.PythonRequires == "" {
		missing = append(missing, "python_requires")
	}
	if doc.URL == "" {
		missing = append(missing, "url")
	}
	if doc.Description == "" {
		missing = append(missing, "description")
	}
	if doc.ProjectURLs["Documentation"] == "" {
		missing = append(missing, "project_urls.Documentation")
	}
	if doc.ProjectURLs["Code"] == "" {
		missing = append(missing, "project_urls.Code")
	}

	return missing
}

func scaffoldTemplate(info pypi.Info, sdist *pypi.ReleaseFile, recipeName string) string {
	license := info.License
	if license == "" || strings.Contains(license, "\n") {
		license = "FIXME"
	}

	moduleName := strings.ReplaceAll(recipeName, "-", "_")

	var b strings.Builder
	b.WriteString(fmt.Sprintf("{%% set name = %q %%}\n", info.Name))
	b.WriteString("{% set version = data.get('version') %}\n")
	b.WriteString("\n")
	b.WriteString("package:\n")
	b.WriteString("  name: {{ name|lower }}\n")
	b.WriteString("  version: {{ version }}\n")
	b.WriteString("\n")
	b.WriteString("source:\n")
	b.WriteString(fmt.Sprintf("  url: %s\n", sdistURLTemplate(recipeName, sdist.Filename, info.Version)))
	b.WriteString(fmt.Sprintf("  sha256: %s\n", sdist.Digests.SHA256))
	b.WriteString("\n")
	b.WriteString("build:\n")
	b.WriteString("  noarch: python\n")
	b.WriteString("  number: 0\n")
	b.WriteString("  script: python setup.py install --single-version-externally-managed --record=record.txt\n")
	b.WriteString("\n")
	b.WriteString(`requirements:
  host:
    - pip
    - python {{ data.get('python_requires') }}
{% for dep in data.get('setup_requires') %}
    - {{ dep }}
{% endfor %}
  run:
{% for dep in data.get('install_requires') %}
    - {{ dep }}
{% endfor %}
    - python {{ data.get('python_requires') }}
`)
	b.WriteString("\n")
	b.WriteString("test:\n")
	b.WriteString("  imports:\n")
	b.WriteString(fmt.Sprintf("    - %s\n", moduleName))
	b.WriteString("\n")
	b.WriteString("about:\n")
	b.WriteString("  home: {{ data.get('url') }}\n")
	b.WriteString("  summary: \"{{ data.get('description') }}\"\n")
	b.WriteString(fmt.Sprintf("  license: %s\n", license))
	b.WriteString("  doc_url: {{ data['project_urls']['Documentation'] }}\n")
	b.WriteString("  dev_url: {{ data['project_urls']['Code'] }}\n")

	return b.String()
}

// sdistURLTemplate builds the stable source URL for the project's sdist,
// with the version swapped for a template reference so bumps only touch
// the metadata.
func sdistURLTemplate(recipeName, filename, version string) string {
	generic := filename
	if version != "" {
		generic = strings.ReplaceAll(filename, version, "{{ version }}")
	}

	return fmt.Sprintf("https://pypi.io/packages/source/%s/%s/%s", recipeName[:1], recipeName, generic)
}
