package providers

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// wrappedToolCallPattern matches <tool_call>NAME({...})</tool_call>.
var wrappedToolCallPattern = regexp.MustCompile(`(?s)<tool_call>\s*([A-Za-z_][A-Za-z0-9_]*)\s*\((\{.*\})\)\s*</tool_call>`)

type rawToolCall struct {
	Function  string                 `json:"function"`
	Arguments map[string]interface{} `json:"arguments"`
}

// RecognizeResponse turns a provider's raw assistant text into a ToolCall or
// a FinalAnswer, per spec.md §4.4. It is shared by every provider so that
// tool-call recognition never depends on a specific vendor's native
// tool-calling feature.
func RecognizeResponse(text string) LLMResponse {
	trimmed := strings.TrimSpace(text)

	if tc, ok := tryParseJSONToolCall(trimmed); ok {
		return LLMResponse{ToolCall: tc, IsToolCall: true}
	}

	if m := wrappedToolCallPattern.FindStringSubmatch(trimmed); m != nil {
		name, argsJSON := m[1], m[2]
		var args map[string]interface{}
		if err := json.Unmarshal([]byte(argsJSON), &args); err == nil {
			return LLMResponse{
				ToolCall: &ToolCall{
					ID:            uuid.NewString(),
					Name:          name,
					Arguments:     args,
					ArgumentsJSON: argsJSON,
				},
				IsToolCall: true,
			}
		}
	}

	return LLMResponse{FinalAnswer: text}
}

func tryParseJSONToolCall(text string) (*ToolCall, bool) {
	if !strings.HasPrefix(text, "{") || !strings.HasSuffix(text, "}") {
		return nil, false
	}
	var raw rawToolCall
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, false
	}
	if raw.Function == "" {
		return nil, false
	}
	argsJSON, _ := json.Marshal(raw.Arguments)
	return &ToolCall{
		ID:            uuid.NewString(),
		Name:          raw.Function,
		Arguments:     raw.Arguments,
		ArgumentsJSON: string(argsJSON),
	}, true
}
