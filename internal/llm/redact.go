package llm

import (
	"regexp"
	"unicode/utf8"
)

// MaxLoggedError is the longest provider error text written to logs.
const MaxLoggedError = 500

var redactions = []struct {
	re   *regexp.Regexp
	repl string
}{
	{regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9\-._~+/]+=*`), "Bearer [REDACTED]"},
	{regexp.MustCompile(`sk-ant-[A-Za-z0-9\-_]{8,}`), "sk-ant-[REDACTED]"},
	{regexp.MustCompile(`sk-[A-Za-z0-9\-_]{8,}`), "sk-[REDACTED]"},
	{regexp.MustCompile(`AIza[0-9A-Za-z\-_]{20,}`), "AIza[REDACTED]"},
	{regexp.MustCompile(`(?i)\b(x-api-key|x-goog-api-key)(["']?\s*[:=]\s*["']?)[^\s"',}]+`), "${1}${2}[REDACTED]"},
	{regexp.MustCompile(`(?i)\b(key|api_key|apikey|access_token|token)=[^&\s"']+`), "${1}=[REDACTED]"},
}

// Redact removes credentials from provider error text and bounds its length.
func Redact(s string) string {
	for _, r := range redactions {
		s = r.re.ReplaceAllString(s, r.repl)
	}
	return truncate(s, MaxLoggedError)
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "...(truncated)"
}
