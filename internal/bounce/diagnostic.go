package bounce

import (
	"regexp"
	"strings"
	"unicode"
)

// NoDiagnostic is recorded when no pattern yields a usable diagnostic.
const NoDiagnostic = "No diagnostic information available"

const maxDiagnosticLength = 300

// diagnosticPatterns are tried in priority order: structured DSN fields
// first, provider-specific phrasings next, then a generic SMTP response
// line as the last resort.
var diagnosticPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?im)\b[245]\d{2}[ -]\d\.\d{1,3}\.\d{1,3}[ \t]+([^\r\n]{5,300})`),
	regexp.MustCompile(`(?im)^Diagnostic-Code:[ \t]*smtp;[ \t]*([^\r\n]+)`),
	regexp.MustCompile(`(?is)Status:[ \t]*5\.\d{1,3}\.\d{1,3}[ \t]*\(([^)]{5,300})\)`),
	regexp.MustCompile(`(?is)(address not found.{0,200}?because[^\r\n]{10,200})`),
	regexp.MustCompile(`(?i)(did not reach the following recipient[^\r\n]{0,200})`),
	regexp.MustCompile(`(?im)\b([245]\d{2}[ -][^\r\n]{10,300})`),
}

var (
	urlCleanRe    = regexp.MustCompile(`https?://\S+`)
	htmlTagRe     = regexp.MustCompile(`<[^>]*>`)
	htmlEntityRe  = regexp.MustCompile(`&[#a-zA-Z0-9]+;`)
	decorationRe  = regexp.MustCompile(`[*=_-]{3,}`)
	whitespaceRe  = regexp.MustCompile(`\s+`)
	bounceTermRe  = regexp.MustCompile(`(?i)deliver|bounce|fail|reject|error|invalid|exist|quota|full|unknown|temporar|permanent`)
	subjectTermRe = regexp.MustCompile(`(?i)recipient|mailbox|address|user|account`)
	smtpCodeRe    = regexp.MustCompile(`\b[245]\d{2}\b`)
)

// Disclaimer boilerplate that trails real diagnostics in forwarded or
// corporate bounce bodies; everything from the phrase onward is cut.
var disclaimerPhrases = []string{
	"this email and any attachments",
	"this e-mail and any attachments",
	"if you are not the intended recipient",
	"this message contains confidential",
	"to unsubscribe",
	"gdpr",
	"privacy policy",
}

// Marketing phrases that mark a match as list-mail noise rather than a
// delivery diagnostic.
var marketingPhrases = []string{
	"view this email in your browser",
	"update your preferences",
	"shop now",
	"free shipping",
	"special offer",
	"% off",
}

// ExtractDiagnostic pulls the most specific human-readable failure
// description out of a bounce body. Returns NoDiagnostic when no
// pattern produces a string that survives cleaning and validation.
func ExtractDiagnostic(body string) string {
	for _, re := range diagnosticPatterns {
		for _, m := range re.FindAllStringSubmatch(body, -1) {
			cleaned := cleanDiagnostic(m[1])
			if validDiagnostic(cleaned) {
				return truncateDiagnostic(cleaned)
			}
		}
	}

	return NoDiagnostic
}

// truncateDiagnostic caps the diagnostic at maxDiagnosticLength
// characters. The cut lands on a rune boundary so a non-ASCII
// diagnostic stays valid UTF-8 for the columns it is stored in.
func truncateDiagnostic(s string) string {
	if len(s) <= maxDiagnosticLength {
		return s
	}
	n := 0
	for i := range s {
		if n == maxDiagnosticLength {
			return strings.TrimSpace(s[:i])
		}
		n++
	}
	return s
}

func cleanDiagnostic(s string) string {
	s = urlCleanRe.ReplaceAllString(s, " ")
	s = htmlTagRe.ReplaceAllString(s, " ")
	s = htmlEntityRe.ReplaceAllString(s, " ")
	s = decorationRe.ReplaceAllString(s, " ")

	lower := strings.ToLower(s)
	for _, phrase := range disclaimerPhrases {
		if idx := strings.Index(lower, phrase); idx >= 0 {
			s = s[:idx]
			lower = lower[:idx]
		}
	}

	s = whitespaceRe.ReplaceAllString(s, " ")
	s = strings.Trim(s, " \t.,;:*=()[]<>\"'-")

	return s
}

func validDiagnostic(s string) bool {
	if len(s) < 10 {
		return false
	}

	hasLetter := false
	nonAlnum := 0
	for _, r := range s {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsDigit(r) || r == ' ':
		default:
			nonAlnum++
		}
	}
	if !hasLetter {
		return false
	}
	if float64(nonAlnum)/float64(len(s)) > 0.40 {
		return false
	}

	lower := strings.ToLower(s)
	for _, phrase := range marketingPhrases {
		if strings.Contains(lower, phrase) {
			return false
		}
	}

	return bounceTermRe.MatchString(s) ||
		subjectTermRe.MatchString(s) ||
		smtpCodeRe.MatchString(s)
}
