package deepagent

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeSkillFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write skill file: %v", err)
	}
}

func TestLoadSkillsIndexParsesFrontmatter(t *testing.T) {
	dir := t.TempDir()
	writeSkillFile(t, dir, "review.md", "---\nname: review\ndescription: Review a PR\n---\nBody text.")
	writeSkillFile(t, dir, "deploy.md", "---\nname: deploy\ndescription: Deploy a service\n---\nBody text.")

	skills, err := LoadSkillsIndex(dir)
	if err != nil {
		t.Fatalf("LoadSkillsIndex error: %v", err)
	}
	if len(skills) != 2 {
		t.Fatalf("expected 2 skills, got %d", len(skills))
	}
	if skills[0].Name != "deploy" || skills[1].Name != "review" {
		t.Errorf("expected sorted by name, got %+v", skills)
	}
}

func TestLoadSkillsIndexSkipsMalformed(t *testing.T) {
	dir := t.TempDir()
	writeSkillFile(t, dir, "good.md", "---\nname: good\ndescription: d\n---\nbody")
	writeSkillFile(t, dir, "bad.md", "no frontmatter here")
	writeSkillFile(t, dir, "ignored.txt", "not markdown")

	skills, err := LoadSkillsIndex(dir)
	if err != nil {
		t.Fatalf("LoadSkillsIndex error: %v", err)
	}
	if len(skills) != 1 || skills[0].Name != "good" {
		t.Errorf("expected only the well-formed skill, got %+v", skills)
	}
}

func TestLoadSkillsIndexDefaultsNameFromFilename(t *testing.T) {
	dir := t.TempDir()
	writeSkillFile(t, dir, "untitled.md", "---\ndescription: d\n---\nbody")

	skills, err := LoadSkillsIndex(dir)
	if err != nil {
		t.Fatalf("LoadSkillsIndex error: %v", err)
	}
	if len(skills) != 1 || skills[0].Name != "untitled" {
		t.Errorf("expected name defaulted to filename, got %+v", skills)
	}
}

func TestRenderSkillsSectionEmpty(t *testing.T) {
	if got := RenderSkillsSection(nil); got != "" {
		t.Errorf("RenderSkillsSection(nil) = %q, want empty", got)
	}
}

func TestRenderSkillsSectionFormatsEntries(t *testing.T) {
	section := RenderSkillsSection([]SkillMeta{{Name: "review", Description: "Review a PR", Path: "/skills/review.md"}})
	if section == "" {
		t.Fatal("expected non-empty section")
	}
	want := "- review: Review a PR (/skills/review.md)\n"
	if !strings.Contains(section, want) {
		t.Errorf("section = %q, want to contain %q", section, want)
	}
}

func TestWithSkillsAppendsToSystemPrompt(t *testing.T) {
	dir := t.TempDir()
	writeSkillFile(t, dir, "review.md", "---\nname: review\ndescription: Review a PR\n---\nbody")

	cfg := EngineConfig{SystemPrompt: "You are an agent."}
	WithSkills(dir)(&cfg)

	if cfg.SkillsDir != dir {
		t.Errorf("SkillsDir = %q, want %q", cfg.SkillsDir, dir)
	}
	if !strings.Contains(cfg.SystemPrompt, "review") {
		t.Errorf("expected system prompt to mention the skill, got %q", cfg.SystemPrompt)
	}
}

func TestWithSkillsNoSkillsLeavesPromptUnchanged(t *testing.T) {
	dir := t.TempDir()
	cfg := EngineConfig{SystemPrompt: "base prompt"}
	WithSkills(dir)(&cfg)
	if cfg.SystemPrompt != "base prompt" {
		t.Errorf("SystemPrompt = %q, want unchanged", cfg.SystemPrompt)
	}
}
