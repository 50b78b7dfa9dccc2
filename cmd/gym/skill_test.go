// ABOUTME: Tests for the install-skill command.
// ABOUTME: Validates skill installation, confirmation, and embedded content.

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// TestSkillInstallCreatesFile verifies that the skill file and its parent
// directories are created when they don't exist.
func TestSkillInstallCreatesFile(t *testing.T) {
	tmpHome := t.TempDir()

	var out bytes.Buffer
	if err := installSkill(tmpHome, strings.NewReader(""), &out, true); err != nil {
		t.Fatalf("installSkill failed: %v", err)
	}

	for _, dir := range []string{
		filepath.Join(tmpHome, ".claude"),
		filepath.Join(tmpHome, ".claude", "skills"),
		filepath.Join(tmpHome, ".claude", "skills", "gym"),
	} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Errorf("Directory %s was not created: %v", dir, err)
			continue
		}
		if !info.IsDir() {
			t.Errorf("%s is not a directory", dir)
		}
	}

	skillPath := filepath.Join(tmpHome, ".claude", "skills", "gym", "SKILL.md")
	info, err := os.Stat(skillPath)
	if err != nil {
		t.Fatalf("Skill file not created: %v", err)
	}
	if info.Mode()&0600 != 0600 {
		t.Errorf("Expected file to be rw for owner, got %v", info.Mode())
	}
	if !strings.Contains(out.String(), "Installed gym skill") {
		t.Errorf("Expected success message, got %q", out.String())
	}
	for _, tool := range skillTools {
		if !strings.Contains(out.String(), tool.name) {
			t.Errorf("Expected summary to list %s", tool.name)
		}
	}
	if !strings.Contains(out.String(), "claude mcp add gym -- gym mcp") {
		t.Error("Expected MCP registration hint")
	}
}

// TestSkillToolsDocumented keeps the install summary in step with SKILL.md.
func TestSkillToolsDocumented(t *testing.T) {
	content, err := skillFS.ReadFile("skill/SKILL.md")
	if err != nil {
		t.Fatalf("Failed to read embedded skill/SKILL.md: %v", err)
	}
	for _, tool := range skillTools {
		if !strings.Contains(string(content), "mcp__gym__"+tool.name) {
			t.Errorf("SKILL.md does not document %s", tool.name)
		}
	}
}

// TestSkillInstallOverwritesExistingFile verifies that an existing skill file
// is replaced and the user is told about it.
func TestSkillInstallOverwritesExistingFile(t *testing.T) {
	tmpHome := t.TempDir()
	skillDir := filepath.Join(tmpHome, ".claude", "skills", "gym")
	skillPath := filepath.Join(skillDir, "SKILL.md")

	if err := os.MkdirAll(skillDir, 0755); err != nil {
		t.Fatalf("Failed to create skill directory: %v", err)
	}
	oldContent := []byte("# Old Skill\nThis is stale content that should be replaced.")
	if err := os.WriteFile(skillPath, oldContent, 0644); err != nil {
		t.Fatalf("Failed to write old skill file: %v", err)
	}

	var out bytes.Buffer
	if err := installSkill(tmpHome, strings.NewReader(""), &out, true); err != nil {
		t.Fatalf("installSkill failed: %v", err)
	}

	newData, err := os.ReadFile(skillPath)
	if err != nil {
		t.Fatalf("Failed to read new skill file: %v", err)
	}
	if strings.Contains(string(newData), "stale content") {
		t.Error("Old content should have been replaced")
	}
	if !strings.Contains(string(newData), "name: gym") {
		t.Error("Expected new content to contain 'name: gym'")
	}
	if !strings.Contains(out.String(), "already exists") {
		t.Error("Expected overwrite notice")
	}
}

func TestSkillInstallConfirmation(t *testing.T) {
	tests := []struct {
		name      string
		answer    string
		installed bool
	}{
		{name: "yes", answer: "y\n", installed: true},
		{name: "full yes", answer: "YES\n", installed: true},
		{name: "no", answer: "n\n", installed: false},
		{name: "empty", answer: "\n", installed: false},
		{name: "eof", answer: "", installed: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpHome := t.TempDir()
			var out bytes.Buffer
			if err := installSkill(tmpHome, strings.NewReader(tt.answer), &out, false); err != nil {
				t.Fatalf("installSkill failed: %v", err)
			}

			_, err := os.Stat(filepath.Join(tmpHome, ".claude", "skills", "gym", "SKILL.md"))
			if tt.installed && err != nil {
				t.Errorf("Expected skill to be installed: %v", err)
			}
			if !tt.installed {
				if err == nil {
					t.Error("Expected skill not to be installed")
				}
				if !strings.Contains(out.String(), "Installation canceled.") {
					t.Errorf("Expected cancel message, got %q", out.String())
				}
			}
		})
	}
}

// TestSkillFSReadEmbeddedContent verifies the embedded SKILL.md has
// frontmatter and documents the MCP tools.
func TestSkillFSReadEmbeddedContent(t *testing.T) {
	content, err := skillFS.ReadFile("skill/SKILL.md")
	if err != nil {
		t.Fatalf("Failed to read embedded skill/SKILL.md: %v", err)
	}

	contentStr := string(content)
	if !strings.HasPrefix(contentStr, "---") {
		t.Error("Expected SKILL.md to start with YAML frontmatter (---)")
	}

	expectedMarkers := []string{
		"name: gym",
		"description:",
		"mcp__gym__get_context",
		"mcp__gym__log_exercise",
		"mcp__gym__log_routine",
		"mcp__gym__manage_program",
		"mcp__gym__get_stats",
		"mcp__gym__manage_measurements",
		"## When to use gym",
		"## Measurement types",
	}
	for _, marker := range expectedMarkers {
		if !strings.Contains(contentStr, marker) {
			t.Errorf("Expected SKILL.md to contain %q", marker)
		}
	}

	for _, mt := range []string{"weight", "body_fat", "waist", "resting_hr"} {
		if !strings.Contains(contentStr, mt) {
			t.Errorf("Expected embedded SKILL.md to document measurement type %q", mt)
		}
	}
}

// TestSkillSkipConfirmFlag verifies the flag exists and has correct defaults.
func TestSkillSkipConfirmFlag(t *testing.T) {
	flag := installSkillCmd.Flags().Lookup("yes")
	if flag == nil {
		t.Fatal("Expected --yes flag to be defined")
	}
	if flag.Shorthand != "y" {
		t.Errorf("Expected shorthand 'y', got %q", flag.Shorthand)
	}
	if flag.DefValue != "false" {
		t.Errorf("Expected default value 'false', got %q", flag.DefValue)
	}
}
