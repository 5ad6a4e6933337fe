package tools

import "github.com/nlbuilder/agentd/internal/providers"

// Result is the unified return type from tool dispatch. ForLLM always flows
// back into session memory as the tool-role message content; IsError marks
// it as an "ERROR: ..." observation the model can self-correct from,
// per spec.md §7 (tool errors are not fatal to the task).
type Result struct {
	ForLLM  string `json:"for_llm"`
	IsError bool   `json:"is_error"`
	Err     error  `json:"-"`

	// Usage/Provider/Model are set by tools that make their own internal LLM
	// calls, so the Agent Core can record them on the step's usage totals.
	Usage    *providers.Usage `json:"-"`
	Provider string           `json:"-"`
	Model    string           `json:"-"`
}

func NewResult(forLLM string) *Result {
	return &Result{ForLLM: forLLM}
}

func ErrorResult(message string) *Result {
	return &Result{ForLLM: "ERROR: " + message, IsError: true}
}

func (r *Result) WithError(err error) *Result {
	r.Err = err
	return r
}
