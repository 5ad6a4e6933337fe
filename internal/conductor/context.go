package conductor

import (
	"fmt"
	"strings"

	"github.com/nlbuilder/agentd/internal/providers"
)

// EpisodicHit is one ranked result pulled from episodic memory, mirroring
// store.EpisodicHit without importing internal/store's persistence
// concerns into this package.
type EpisodicHit struct {
	TaskID  string
	Content string
}

// Assembler packs Project Memory, Episodic Memory, Skills, and session
// history into a token budget ahead of each Router call (spec.md §4.7,
// grounded on original_source/engine/src/conductor/context.rs almost
// exactly: section order, episodic truncation, and budget-drop priority
// match).
type Assembler struct {
	budget MemoryBudget
}

func NewAssembler(budget MemoryBudget) *Assembler {
	return &Assembler{budget: budget}
}

// Assemble builds the final message list to send to the Router: one
// system message (instructions + project context + active skills +
// episodic recall) followed by as much recent session history as the
// session budget allows, followed by the user's query. If the assembled
// total would exceed budget.TotalLimit, sections are dropped in priority
// order (lowest kept first): session, then episodic, then project, then
// skills, then instructions — per spec.md §4.7.
func (a *Assembler) Assemble(systemInstructions string, project *ProjectMemory, session []providers.Message, episodic []EpisodicHit, skills []Skill, query string) []providers.Message {
	instructions := systemInstructions
	projectSection := formatProjectSection(project)
	skillsSection := formatSkillsSection(skills)
	episodicSection := a.formatEpisodicSection(episodic)
	history := a.sessionHistory(session)

	queryTokens := approxTokens(query)

	for a.budget.TotalLimit > 0 && a.totalTokens(instructions, projectSection, skillsSection, episodicSection, history)+queryTokens > a.budget.TotalLimit {
		switch {
		case len(history) > 0:
			history = history[:len(history)-1]
		case episodicSection != "":
			episodicSection = ""
		case projectSection != "":
			projectSection = ""
		case skillsSection != "":
			skillsSection = ""
		case instructions != "":
			instructions = ""
		default:
			// nothing left to drop; the query itself stays.
		}
		if len(history) == 0 && episodicSection == "" && projectSection == "" && skillsSection == "" && instructions == "" {
			break
		}
	}

	var sysPrompt strings.Builder
	sysPrompt.WriteString(instructions)
	sysPrompt.WriteString(projectSection)
	sysPrompt.WriteString(skillsSection)
	sysPrompt.WriteString(episodicSection)

	messages := []providers.Message{{Role: "system", Content: sysPrompt.String()}}
	messages = append(messages, history...)
	messages = append(messages, providers.Message{Role: "user", Content: query})
	return messages
}

func (a *Assembler) totalTokens(instructions, project, skills, episodic string, history []providers.Message) int {
	total := approxTokens(instructions) + approxTokens(project) + approxTokens(skills) + approxTokens(episodic)
	for _, m := range history {
		total += approxTokens(m.Content)
	}
	return total
}

func formatProjectSection(project *ProjectMemory) string {
	if project == nil {
		return ""
	}
	return "\n\n--- Project Context ---\n" + project.FormatForPrompt()
}

// formatSkillsSection renders up to 3 already-matched skills (spec.md
// §4.7 step 1/2 — matching itself happens in MatchSkills before Assemble
// is called, since matching depends on the query, not the budget).
func formatSkillsSection(skills []Skill) string {
	if len(skills) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\n\n--- Active Skills ---\n")
	for _, sk := range skills {
		fmt.Fprintf(&b, "## %s\n%s\n", sk.Name, sk.Instructions)
	}
	return b.String()
}

// formatEpisodicSection renders up to 3 episodic hits, each truncated to
// episodic/3 tokens (spec.md §4.7 step 1).
func (a *Assembler) formatEpisodicSection(episodic []EpisodicHit) string {
	if len(episodic) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\n\n--- Relevant Past Tasks ---\n")
	count := 0
	for _, hit := range episodic {
		if count >= 3 {
			break
		}
		snippet := fmt.Sprintf("Task %s: %s\n", hit.TaskID, hit.Content)
		if a.budget.EpisodicTokens == 0 || approxTokens(snippet) < a.budget.EpisodicTokens/3 {
			b.WriteString(snippet)
			count++
		}
	}
	return b.String()
}

// sessionHistory takes session messages from newest to oldest while they
// fit the session budget, then restores chronological order — matches
// the original's truncation direction: drop the oldest history first,
// never the system prompt.
func (a *Assembler) sessionHistory(session []providers.Message) []providers.Message {
	var history []providers.Message
	accumulated := 0
	for i := len(session) - 1; i >= 0; i-- {
		tokens := approxTokens(session[i].Content)
		if a.budget.SessionTokens > 0 && accumulated+tokens >= a.budget.SessionTokens {
			break
		}
		history = append(history, session[i])
		accumulated += tokens
	}
	for i, j := 0, len(history)-1; i < j; i, j = i+1, j-1 {
		history[i], history[j] = history[j], history[i]
	}
	return history
}

func approxTokens(content string) int {
	return len(content) / 4
}
