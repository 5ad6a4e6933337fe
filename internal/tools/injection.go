package tools

import (
	"log/slog"
	"regexp"
)

// injectionReplacement is what an observation is replaced with wholesale
// once any pattern matches; the original text never reaches session memory.
const injectionReplacement = "[INJECTION DETECTED - Content blocked for safety]"

// injectionPatterns is the fixed, case-insensitive, word-boundary pattern
// set from spec.md §4.3. Order matters only for which match is logged first.
var injectionPatterns = compileInjectionPatterns([]string{
	`ignore previous instructions`,
	`disregard all`,
	`new system prompt`,
	`act as`,
	`you are now`,
	`forget your`,
	`override your`,
	`jailbreak`,
	`\bDAN\b`,
	`developer mode`,
})

func compileInjectionPatterns(phrases []string) []*regexp.Regexp {
	patterns := make([]*regexp.Regexp, 0, len(phrases))
	for _, phrase := range phrases {
		pattern := phrase
		// \b already anchors word boundaries; multi-word phrases get their
		// own boundary wrapping so "reignore previous instructions" doesn't
		// match but "Ignore previous instructions!" does.
		if pattern[0] != '\\' {
			pattern = `\b` + pattern + `\b`
		}
		patterns = append(patterns, regexp.MustCompile(`(?i)`+pattern))
	}
	return patterns
}

// InjectionDetector scans tool observations — never user input — before
// they are appended to session memory, per spec.md §4.3's data-flow note
// that tool output, not the inbound request, is the untrusted channel here.
type InjectionDetector struct {
	patterns []*regexp.Regexp
}

func NewInjectionDetector() *InjectionDetector {
	return &InjectionDetector{patterns: injectionPatterns}
}

// Scan returns the replacement string if any pattern matches observation,
// otherwise it returns observation unchanged. Idempotent: scanning the
// replacement text again matches nothing and returns it unchanged.
func (d *InjectionDetector) Scan(observation string) string {
	for _, pattern := range d.patterns {
		if loc := pattern.FindStringIndex(observation); loc != nil {
			slog.Warn("injection_detector: blocked observation",
				"pattern", pattern.String(),
				"offset", loc[0],
			)
			return injectionReplacement
		}
	}
	return observation
}
