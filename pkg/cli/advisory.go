package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/conda-tools/condactl/pkg/advisories"
)

const envVarNameForAdvisoriesDir = "CONDACTL_ADVISORIES_REPO_DIR"

func cmdAdvisory() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "advisory",
		Aliases:       []string{"adv"},
		SilenceErrors: true,
		Short:         "Commands for consuming and maintaining security advisory data",
	}

	cmd.AddCommand(
		cmdAdvisoryCreate(),
		cmdAdvisoryExport(),
		cmdAdvisoryList(),
	)

	return cmd
}

func resolveAdvisoriesDirInput(cliFlagValue string) string {
	if v := cliFlagValue; v != "" {
		return v
	}

	if v := os.Getenv(envVarNameForAdvisoriesDir); v != "" {
		return v
	}

	return ""
}

func resolveTimestamp(ts string) (advisories.Timestamp, error) {
	if ts == "now" {
		return advisories.Now(), nil
	}

	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return advisories.Timestamp{}, fmt.Errorf("unable to parse timestamp: %w", err)
	}

	return advisories.Timestamp(t), nil
}

// getMultiLineInput is a helper function to get multi-line input from the user
func getMultiLineInput(prompt string) (string, error) {
	fmt.Print(prompt)

	// Get terminal width
	width, _, err := term.GetSize(int(os.Stdin.Fd()))
	if err != nil {
		width = 80 // fallback width
	}

	reader := bufio.NewReader(os.Stdin)
	var input strings.Builder
	var currentLine strings.Builder
	promptWidth := len(prompt)
	maxWidth := width - promptWidth

	for {
		char, _, err := reader.ReadRune()
		if err != nil {
			break
		}

		if char == '\n' {
			break
		}

		currentLine.WriteRune(char)

		// If we reach the width limit, wrap to next line
		if currentLine.Len() >= maxWidth {
			input.WriteString(currentLine.String())
			input.WriteRune('\n')
			fmt.Printf("\n%s", strings.Repeat(" ", promptWidth))
			currentLine.Reset()
		} else {
			fmt.Printf("%c", char)
		}
	}

	// Add any remaining content
	if currentLine.Len() > 0 {
		input.WriteString(currentLine.String())
	}

	fmt.Println() // Final newline
	return strings.TrimSpace(input.String()), nil
}

type advisoryRequestParams struct {
	packageName, vuln, eventType, timestamp, fixedVersion, note string

	doNotPrompt bool
}

func (p *advisoryRequestParams) addFlags(cmd *cobra.Command) {
	addPackageFlag(&p.packageName, cmd)
	addVulnFlag(&p.vuln, cmd)
	addNoPromptFlag(&p.doNotPrompt, cmd)

	cmd.Flags().StringVarP(&p.eventType, "type", "t", "", fmt.Sprintf("type of event [%s]", strings.Join(advisories.EventTypes, ", ")))
	cmd.Flags().StringVar(&p.note, "note", "", "prose explanation to attach to the event data (can be used with any event type)")
	cmd.Flags().StringVar(&p.timestamp, "timestamp", "now", "timestamp of the event (RFC3339 format)")
	cmd.Flags().StringVar(&p.fixedVersion, "fixed-version", "", "package version where fix was applied (used only for 'fixed' event type)")
}

func (p *advisoryRequestParams) advisoryRequest() (advisories.Request, error) {
	timestamp, err := resolveTimestamp(p.timestamp)
	if err != nil {
		return advisories.Request{}, fmt.Errorf("unable to process timestamp: %w", err)
	}

	// Determinations need prose. Ask for it unless prompting is disabled.
	if p.note == "" && !p.doNotPrompt && eventTypeNeedsNote(p.eventType) {
		note, err := getMultiLineInput("Note: ")
		if err != nil {
			return advisories.Request{}, fmt.Errorf("failed to get note input: %w", err)
		}
		p.note = note
	}

	return advisories.Request{
		Package:         p.packageName,
		VulnerabilityID: p.vuln,
		Event: advisories.Event{
			Timestamp:    timestamp,
			Type:         p.eventType,
			Note:         p.note,
			FixedVersion: p.fixedVersion,
		},
	}, nil
}

func eventTypeNeedsNote(eventType string) bool {
	switch eventType {
	case advisories.EventTypeTruePositive, advisories.EventTypeFalsePositive, advisories.EventTypeFixNotPlanned:
		return true
	}

	return false
}

const (
	flagNamePackage           = "package"
	flagNameVuln              = "vuln"
	flagNameAdvisoriesRepoDir = "advisories-repo-dir"
	flagNameNoPrompt          = "no-prompt"
)

func addPackageFlag(val *string, cmd *cobra.Command) {
	cmd.Flags().StringVarP(val, flagNamePackage, "p", "", "package name")
}

func addVulnFlag(val *string, cmd *cobra.Command) {
	cmd.Flags().StringVarP(val, flagNameVuln, "V", "", "vulnerability ID for advisory")
}

func addAdvisoriesDirFlag(val *string, cmd *cobra.Command) {
	cmd.Flags().StringVarP(val, flagNameAdvisoriesRepoDir, "a", "", "directory containing the advisories repository")
}

func addNoPromptFlag(val *bool, cmd *cobra.Command) {
	cmd.Flags().BoolVar(val, flagNameNoPrompt, false, "do not prompt the user for input")
}
