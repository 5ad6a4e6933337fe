package secrets

import "regexp"

const redacted = "[REDACTED]"

// secretPatterns match common API-key and token shapes so they can be
// stripped from logs and error messages before they leave the process.
// Grounded on original_source/engine/tests/secrets_integration_test.rs's
// scrub fixtures.
var secretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`sk-proj-[A-Za-z0-9]+`),
	regexp.MustCompile(`sk-ant-[A-Za-z0-9-]+`),
	regexp.MustCompile(`ghp_[A-Za-z0-9]+`),
	regexp.MustCompile(`AIza[A-Za-z0-9_-]+`),
	regexp.MustCompile(`\d{8,12}:[A-Za-z0-9_-]{30,}`),               // Telegram bot token
	regexp.MustCompile(`Bearer [A-Za-z0-9_-]+\.[A-Za-z0-9_-]+\.[A-Za-z0-9_-]*`), // JWT bearer header
}

// Scrub replaces every recognized secret-shaped substring in text with
// "[REDACTED]".
func Scrub(text string) string {
	for _, pattern := range secretPatterns {
		text = pattern.ReplaceAllString(text, redacted)
	}
	return text
}
