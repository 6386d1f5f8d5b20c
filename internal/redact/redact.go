package redact

import "regexp"

// Placeholders contain no digits or address characters, so no pattern can
// match them again. That makes Redact idempotent by construction.
const (
	emailToken   = "[EMAIL]"
	phoneToken   = "[PHONE]"
	accountToken = "[ACCOUNT]"
	ssnToken     = "[SSN]"
	nameToken    = "[NAME]"
)

// Patterns are applied most-specific first: a card number must not be
// half-eaten as a phone number, and an SSN must not be eaten as either.
var (
	emailRe = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)

	ssnRe = regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)

	// Card numbers: four-digit groups, 13-16 digits total.
	cardRe = regexp.MustCompile(`\b(?:\d{4}[ -]?){3}\d{1,4}\b`)

	// Digits read out after an account-ish keyword. The keyword context is
	// kept, only the digits are replaced.
	keywordAccountRe = regexp.MustCompile(`(?i)\b((?:account|acct|member|reference)\s*(?:number|no\.?|#)?\s*(?:is\s+)?)\d{5,}\b`)

	// Bare digit runs too long to be phone numbers.
	longRunRe = regexp.MustCompile(`\b\d{11,}\b`)

	phoneRe = regexp.MustCompile(`(?:\+?\d{1,2}[ .\-]?)?(?:\(\d{3}\)|\d{3})[ .\-]?\d{3}[ .\-]?\d{4}\b`)

	// Honorific followed by a capitalized name. Bare names are left alone;
	// without the honorific there is no reliable signal.
	nameRe = regexp.MustCompile(`\b(?:Mr|Mrs|Ms|Dr|Miss)\.? [A-Z][a-z]+(?: [A-Z][a-z]+)?`)
)

// Redact replaces personally identifiable information in transcript text
// with fixed placeholders. It is pure and total: any input maps to exactly
// one output, and text matching no pattern passes through unchanged.
func Redact(text string) string {
	out := emailRe.ReplaceAllString(text, emailToken)
	out = ssnRe.ReplaceAllString(out, ssnToken)
	out = cardRe.ReplaceAllString(out, accountToken)
	out = keywordAccountRe.ReplaceAllString(out, "${1}"+accountToken)
	out = longRunRe.ReplaceAllString(out, accountToken)
	out = phoneRe.ReplaceAllString(out, phoneToken)
	out = nameRe.ReplaceAllString(out, nameToken)
	return out
}
