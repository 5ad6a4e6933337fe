package agent

import "github.com/nlbuilder/agentd/internal/providers"

// WorkingMemory holds the session's conversation messages for one task,
// evicting the oldest non-system message when the approximate token
// budget is exceeded (spec.md §3). Token count is approximated as
// len(content)/4, matching the teacher's budget accounting rather than
// invoking a tokenizer.
type WorkingMemory struct {
	messages []providers.Message
	budget   int
}

// NewWorkingMemory creates an empty WorkingMemory with the given
// approximate token budget.
func NewWorkingMemory(budget int) *WorkingMemory {
	return &WorkingMemory{budget: budget}
}

// Append adds a message, then evicts the oldest non-system message
// repeatedly until the budget is satisfied or no evictable message
// remains. Eviction walks forward from the start each time rather than
// recomputing a full token scan, avoiding quadratic behavior on long
// sessions — the scan only re-walks the prefix it already knows is
// system messages.
func (m *WorkingMemory) Append(msg providers.Message) {
	m.messages = append(m.messages, msg)
	m.evict()
}

func (m *WorkingMemory) evict() {
	for m.tokens() > m.budget {
		idx := m.firstEvictable()
		if idx < 0 {
			return
		}
		m.messages = append(m.messages[:idx], m.messages[idx+1:]...)
	}
}

func (m *WorkingMemory) firstEvictable() int {
	for i, msg := range m.messages {
		if msg.Role != "system" {
			return i
		}
	}
	return -1
}

func (m *WorkingMemory) tokens() int {
	total := 0
	for _, msg := range m.messages {
		total += approxTokens(msg.Content)
	}
	return total
}

func approxTokens(content string) int {
	return len(content) / 4
}

// Messages returns the current message list, in order.
func (m *WorkingMemory) Messages() []providers.Message {
	return m.messages
}
