package conductor

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Skill is a user-authored markdown file activated by keyword match
// (spec.md GLOSSARY "Skill"). Description is the file's first non-empty
// line (its heading, conventionally); Instructions is everything after it.
type Skill struct {
	Name         string
	Description  string
	Instructions string
}

// LoadSkills reads every "*.md" file in dir as one Skill, named after its
// filename (without extension), in sorted filename order — the stable
// insertion order spec.md §4.7 step 2 requires for tie-breaking among
// matches. A missing dir is not an error: skills are optional.
func LoadSkills(dir string) ([]Skill, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("conductor: read skills dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	skills := make([]Skill, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("conductor: read skill %q: %w", name, err)
		}
		skills = append(skills, parseSkill(strings.TrimSuffix(name, ".md"), string(data)))
	}
	return skills, nil
}

func parseSkill(name, content string) Skill {
	lines := strings.SplitN(strings.TrimLeft(content, "\n"), "\n", 2)
	description := strings.TrimSpace(strings.TrimLeft(lines[0], "# "))
	instructions := content
	if len(lines) > 1 {
		instructions = strings.TrimSpace(lines[1])
	}
	return Skill{Name: name, Description: description, Instructions: instructions}
}

// MatchSkills activates at most 3 skills from skills whose name or
// description matches query, preserving skills' own (insertion) order
// among the matches (spec.md §4.7 step 2): a skill activates if the
// lowercased query contains the lowercased skill name, or contains any
// word of length > 4 from the skill's description.
func MatchSkills(skills []Skill, query string) []Skill {
	q := strings.ToLower(query)

	var matched []Skill
	for _, sk := range skills {
		if len(matched) >= 3 {
			break
		}
		if sk.Name != "" && strings.Contains(q, strings.ToLower(sk.Name)) {
			matched = append(matched, sk)
			continue
		}
		if descriptionWordMatches(q, sk.Description) {
			matched = append(matched, sk)
		}
	}
	return matched
}

func descriptionWordMatches(query, description string) bool {
	for _, word := range strings.FieldsFunc(description, func(r rune) bool {
		return !('a' <= r && r <= 'z' || 'A' <= r && r <= 'Z' || '0' <= r && r <= '9')
	}) {
		if len(word) > 4 && strings.Contains(query, strings.ToLower(word)) {
			return true
		}
	}
	return false
}
