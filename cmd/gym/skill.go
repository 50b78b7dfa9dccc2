// ABOUTME: Install Claude Code skill for gym
// ABOUTME: Embeds and installs the skill definition to ~/.claude/skills/

package main

import (
	"bufio"
	"embed"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

//go:embed skill/SKILL.md
var skillFS embed.FS

var skillSkipConfirm bool

// skillTools is the summary printed before installing.
var skillTools = []struct{ name, use string }{
	{"get_context", "active program, open session and today's day"},
	{"log_exercise", "\"3x8 bench at 80\", drop sets, per-set reps"},
	{"log_routine", "log today's planned day in one call"},
	{"manage_session", "start, end or validate a workout"},
	{"manage_program", "create programs and edit them as new versions"},
	{"get_stats", "PRs, PR history and volume per exercise"},
	{"manage_measurements", "weight, body fat, waist, resting HR"},
}

var installSkillCmd = &cobra.Command{
	Use:   "install-skill",
	Short: "Install Claude Code skill",
	Long: `Install the gym skill for Claude Code.

Writes ~/.claude/skills/gym/SKILL.md, which teaches Claude to turn
"did 3x8 bench at 80" into an mcp__gym__log_exercise call and to read
mcp__gym__get_context before asking what you trained.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		return installSkill(home, cmd.InOrStdin(), cmd.OutOrStdout(), skillSkipConfirm)
	},
}

func init() {
	installSkillCmd.Flags().BoolVarP(&skillSkipConfirm, "yes", "y", false, "Skip confirmation prompt")
	rootCmd.AddCommand(installSkillCmd)
}

// installSkill writes the embedded skill under home, asking on in first
// unless skipConfirm is set.
func installSkill(home string, in io.Reader, out io.Writer, skipConfirm bool) error {
	skillDir := filepath.Join(home, ".claude", "skills", "gym")
	skillPath := filepath.Join(skillDir, "SKILL.md")

	bold := color.New(color.Bold)
	bold.Fprintln(out, "gym skill for Claude Code")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "The skill tells Claude when to reach for the gym MCP tools:")
	fmt.Fprintln(out)
	for _, tool := range skillTools {
		fmt.Fprintf(out, "  %-22s %s\n", tool.name, tool.use)
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Destination:")
	fmt.Fprintf(out, "  %s\n", skillPath)
	fmt.Fprintln(out)

	if _, err := os.Stat(skillPath); err == nil {
		fmt.Fprintln(out, "Note: A skill file already exists and will be overwritten.")
		fmt.Fprintln(out)
	}

	if !skipConfirm {
		fmt.Fprint(out, "Install the gym skill? [y/N] ")
		reader := bufio.NewReader(in)
		response, err := reader.ReadString('\n')
		if err != nil && err != io.EOF {
			return fmt.Errorf("failed to read response: %w", err)
		}
		response = strings.TrimSpace(strings.ToLower(response))
		if response != "y" && response != "yes" {
			fmt.Fprintln(out, "Installation canceled.")
			return nil
		}
		fmt.Fprintln(out)
	}

	content, err := skillFS.ReadFile("skill/SKILL.md")
	if err != nil {
		return fmt.Errorf("failed to read embedded skill: %w", err)
	}

	if err := os.MkdirAll(skillDir, 0750); err != nil {
		return fmt.Errorf("failed to create skill directory: %w", err)
	}

	if err := os.WriteFile(skillPath, content, 0600); err != nil {
		return fmt.Errorf("failed to write skill file: %w", err)
	}

	color.New(color.FgGreen).Fprintln(out, "✓ Installed gym skill successfully!")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "The tools come from the MCP server. Register it once with:")
	fmt.Fprintln(out, "  claude mcp add gym -- gym mcp")
	return nil
}
