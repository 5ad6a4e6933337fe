package agent

import (
	"testing"

	"github.com/nlbuilder/agentd/internal/providers"
)

func TestWorkingMemory_EvictsOldestNonSystem(t *testing.T) {
	mem := NewWorkingMemory(10) // ~10 tokens = 40 chars budget

	mem.Append(providers.Message{Role: "system", Content: "you are an agent"})
	mem.Append(providers.Message{Role: "user", Content: "first message padding"})
	mem.Append(providers.Message{Role: "user", Content: "second message padding"})
	mem.Append(providers.Message{Role: "user", Content: "third message padding"})

	msgs := mem.Messages()
	if len(msgs) == 0 {
		t.Fatal("expected at least one message to survive eviction")
	}
	if msgs[0].Role != "system" {
		t.Errorf("system message should never be evicted first, got role %q", msgs[0].Role)
	}
	for _, m := range msgs[1:] {
		if m.Content == "first message padding" {
			t.Error("oldest non-system message should have been evicted")
		}
	}
}

func TestWorkingMemory_KeepsUnderBudgetWhenPossible(t *testing.T) {
	mem := NewWorkingMemory(1000)
	mem.Append(providers.Message{Role: "user", Content: "hello"})
	mem.Append(providers.Message{Role: "assistant", Content: "hi there"})

	if len(mem.Messages()) != 2 {
		t.Errorf("expected no eviction under budget, got %d messages", len(mem.Messages()))
	}
}

func TestWorkingMemory_NeverEvictsOnlySystemMessage(t *testing.T) {
	mem := NewWorkingMemory(1)
	mem.Append(providers.Message{Role: "system", Content: "a very long system prompt that exceeds the tiny budget by itself"})

	if len(mem.Messages()) != 1 {
		t.Errorf("system-only memory should not be evicted, got %d messages", len(mem.Messages()))
	}
}
