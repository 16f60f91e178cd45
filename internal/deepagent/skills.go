package deepagent

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// SkillMeta is one entry in a skills directory's index: name, one-line
// description, and path, injected into the system prompt per spec §9
// "Progressive disclosure of skills and memory" -- full content is read
// on demand via the filesystem tools, never inlined here.
type SkillMeta struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Path        string `yaml:"-"`
}

// skillFrontmatter is the subset of a skill file's YAML frontmatter the
// index cares about, grounded on the teacher's internal/skills loader
// (name/description header, full body left untouched).
type skillFrontmatter struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// LoadSkillsIndex scans dir for *.md files with a "---"-delimited YAML
// frontmatter header and returns one SkillMeta per file, sorted by name.
// A file missing a usable frontmatter block is skipped rather than
// failing the whole load, since an agent with N-1 well-formed skills is
// more useful than one with none.
func LoadSkillsIndex(dir string) ([]SkillMeta, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read skills dir: %w", err)
	}
	var out []SkillMeta
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		meta, ok := parseSkillFrontmatter(string(data))
		if !ok {
			continue
		}
		if meta.Name == "" {
			meta.Name = strings.TrimSuffix(entry.Name(), ".md")
		}
		out = append(out, SkillMeta{Name: meta.Name, Description: meta.Description, Path: path})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func parseSkillFrontmatter(content string) (skillFrontmatter, bool) {
	const delim = "---"
	if !strings.HasPrefix(content, delim) {
		return skillFrontmatter{}, false
	}
	rest := content[len(delim):]
	end := strings.Index(rest, delim)
	if end < 0 {
		return skillFrontmatter{}, false
	}
	var fm skillFrontmatter
	if err := yaml.Unmarshal([]byte(rest[:end]), &fm); err != nil {
		return skillFrontmatter{}, false
	}
	return fm, true
}

// RenderSkillsSection formats skills as the name/description/path index
// block the engine appends to the system prompt, bounding prompt size
// (spec §9: "carries only names, descriptions, and paths").
func RenderSkillsSection(skills []SkillMeta) string {
	if len(skills) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Available skills (read the file at Path for full instructions before using one):\n")
	for _, s := range skills {
		fmt.Fprintf(&b, "- %s: %s (%s)\n", s.Name, s.Description, s.Path)
	}
	return b.String()
}

// WithSkills loads dir's skills index and appends its rendered section to
// the engine's system prompt (spec §6 `skillsDir`).
func WithSkills(dir string) EngineOption {
	return func(c *EngineConfig) {
		skills, err := LoadSkillsIndex(dir)
		if err != nil || len(skills) == 0 {
			return
		}
		section := RenderSkillsSection(skills)
		if c.SystemPrompt == "" {
			c.SystemPrompt = section
		} else {
			c.SystemPrompt = c.SystemPrompt + "\n\n" + section
		}
		c.SkillsDir = dir
	}
}
