package conductor

import (
	"strings"
	"testing"

	"github.com/nlbuilder/agentd/internal/providers"
)

func TestAssembler_SystemAndQueryAlwaysPresent(t *testing.T) {
	a := NewAssembler(MemoryBudget{SystemTokens: 1000, EpisodicTokens: 500, SessionTokens: 50})
	messages := a.Assemble("You are an AI.", nil, nil, nil, nil, "What is the answer?")

	if len(messages) < 2 {
		t.Fatalf("expected at least system + user messages, got %d", len(messages))
	}
	if messages[0].Role != "system" {
		t.Errorf("first message role = %q, want system", messages[0].Role)
	}
	last := messages[len(messages)-1]
	if last.Role != "user" || last.Content != "What is the answer?" {
		t.Errorf("last message = %+v, want user query", last)
	}
}

func TestAssembler_InjectsProjectContext(t *testing.T) {
	a := NewAssembler(MemoryBudget{SystemTokens: 1000, SessionTokens: 1000})
	pm := &ProjectMemory{WorkspacePath: "/ws", TopLevelFiles: []string{"go.mod"}, LikelyLanguages: []string{"Go"}}

	messages := a.Assemble("SystemPrompt", pm, nil, nil, nil, "query")
	if messages[0].Role != "system" {
		t.Fatal("expected system message first")
	}
	if !strings.Contains(messages[0].Content, "--- Project Context ---") || !strings.Contains(messages[0].Content, "Go") {
		t.Errorf("system message missing project context: %q", messages[0].Content)
	}
}

func TestAssembler_InjectsActiveSkills(t *testing.T) {
	a := NewAssembler(MemoryBudget{SystemTokens: 1000, SessionTokens: 1000})
	skills := []Skill{{Name: "git-commit", Description: "Help write git commit messages", Instructions: "Keep commit subjects under 50 chars."}}

	messages := a.Assemble("sys", nil, nil, nil, skills, "query")
	if !strings.Contains(messages[0].Content, "--- Active Skills ---") || !strings.Contains(messages[0].Content, "git-commit") {
		t.Errorf("system message missing active skills: %q", messages[0].Content)
	}
}

func TestAssembler_InjectsEpisodicHitsTruncated(t *testing.T) {
	a := NewAssembler(MemoryBudget{SystemTokens: 1000, SessionTokens: 1000, EpisodicTokens: 30})
	episodic := []EpisodicHit{
		{TaskID: "t1", Content: "short"},
		{TaskID: "t2", Content: strings.Repeat("x", 200)}, // too big for episodic/3 budget
	}

	messages := a.Assemble("sys", nil, nil, episodic, nil, "query")
	if !strings.Contains(messages[0].Content, "Task t1: short") {
		t.Errorf("expected short episodic hit to be included: %q", messages[0].Content)
	}
	if strings.Contains(messages[0].Content, "Task t2:") {
		t.Errorf("expected oversized episodic hit to be dropped: %q", messages[0].Content)
	}
}

func TestAssembler_TruncatesSessionHistoryToBudget(t *testing.T) {
	a := NewAssembler(MemoryBudget{SystemTokens: 1000, SessionTokens: 5}) // ~5 tokens = 20 chars

	session := []providers.Message{
		{Role: "user", Content: "an old message that is fairly long"},
		{Role: "assistant", Content: "a newer reply"},
	}
	messages := a.Assemble("sys", nil, session, nil, nil, "query")

	// system + (some subset of history, newest-biased) + user query
	if len(messages) > 1+len(session)+1 {
		t.Errorf("got %d messages, did not truncate", len(messages))
	}
	for _, m := range messages {
		if m.Content == "an old message that is fairly long" {
			t.Error("oldest session message should have been dropped under a tiny budget")
		}
	}
}

func TestAssembler_TotalBudgetDropsSessionBeforeInstructions(t *testing.T) {
	a := NewAssembler(MemoryBudget{SessionTokens: 10000, TotalLimit: 20})

	session := []providers.Message{
		{Role: "user", Content: strings.Repeat("a", 400)},
	}
	messages := a.Assemble("keep me", nil, session, nil, nil, "q")

	if messages[0].Content != "keep me" {
		t.Errorf("instructions should survive a tight total budget before session history, got %q", messages[0].Content)
	}
	for _, m := range messages {
		if m.Role == "user" && m.Content == strings.Repeat("a", 400) {
			t.Error("session history should have been dropped first under the total budget")
		}
	}
}

func TestAssembler_TotalBudgetDropsInstructionsLast(t *testing.T) {
	a := NewAssembler(MemoryBudget{EpisodicTokens: 3000, TotalLimit: 2})
	project := &ProjectMemory{WorkspacePath: "/ws"}
	episodic := []EpisodicHit{{TaskID: "t1", Content: "stuff"}}
	skills := []Skill{{Name: "s", Instructions: "do things"}}

	messages := a.Assemble("keep", project, nil, episodic, skills, "q")

	if messages[0].Content != "keep" {
		t.Errorf("expected instructions to be the last thing dropped, got %q", messages[0].Content)
	}
	if strings.Contains(messages[0].Content, "Project Context") || strings.Contains(messages[0].Content, "Active Skills") || strings.Contains(messages[0].Content, "Past Tasks") {
		t.Errorf("expected every lower-priority section dropped before instructions, got %q", messages[0].Content)
	}
}
