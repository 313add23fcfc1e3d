package policy

import "regexp"

var (
	bearerPattern = regexp.MustCompile(`(?i)\bbearer\s+[A-Za-z0-9._~+/\-]+=*`)
	jwtPattern    = regexp.MustCompile(`\beyJ[A-Za-z0-9_\-]+\.[A-Za-z0-9_\-]+\.[A-Za-z0-9_\-]+`)
	keyPattern    = regexp.MustCompile(`\b(?:sk|ek)[-_][A-Za-z0-9_\-]{8,}`)
	emailPattern  = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
)

// RedactSecrets masks credentials that upstream error bodies sometimes echo
// back: bearer headers, JWTs, provider API keys and ephemeral client secrets.
// Email addresses are masked too since account errors tend to include them.
func RedactSecrets(input string) (redacted string, changed bool) {
	out := input

	// Bearer first so the token after it is not reported twice.
	next := bearerPattern.ReplaceAllString(out, "Bearer [REDACTED]")
	changed = changed || next != out
	out = next

	next = jwtPattern.ReplaceAllString(out, "[REDACTED_JWT]")
	changed = changed || next != out
	out = next

	next = keyPattern.ReplaceAllString(out, "[REDACTED_KEY]")
	changed = changed || next != out
	out = next

	next = emailPattern.ReplaceAllString(out, "[REDACTED_EMAIL]")
	changed = changed || next != out
	out = next

	return out, changed
}

// Redact is RedactSecrets without the changed flag.
func Redact(input string) string {
	out, _ := RedactSecrets(input)
	return out
}
