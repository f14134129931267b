// Package bounce extracts the failed recipient, SMTP status and
// diagnostic text from delivery failure reports: RFC 3464
// multipart/report DSNs as well as the non-standard formats Gmail,
// Outlook/Exchange and generic SMTP servers produce.
package bounce

import (
	"regexp"

	"github.com/mailsift/mailsift/internal/models"
)

// CodeUnknown is recorded when no SMTP status code can be found.
const CodeUnknown = "UNKNOWN"

// Result is the parsed outcome for one bounce-category message.
type Result struct {
	Recipient  string
	Code       string
	Diagnostic string
	Type       models.BounceType
}

// Parser parses bounce messages. SubjectRecipients controls the
// secondary recipient fallback from the subject line, which can
// false-positive on subjects that merely quote an address.
type Parser struct {
	subjectRecipients bool
}

// NewParser creates a bounce parser.
func NewParser(subjectRecipients bool) *Parser {
	return &Parser{subjectRecipients: subjectRecipients}
}

// Parse extracts the bounce details from a message already classified
// as a bounce. The second return value is false when no valid failed
// recipient could be found; such messages record no bounce at all.
func (p *Parser) Parse(msg *models.RawMessage) (*Result, bool) {
	recipient := ExtractRecipient(msg.Body, msg.Subject, p.subjectRecipients)
	if recipient == "" {
		return nil, false
	}

	code := ExtractCode(msg.Body)

	return &Result{
		Recipient:  recipient,
		Code:       code,
		Diagnostic: ExtractDiagnostic(msg.Body),
		Type:       ClassifyType(code, msg.Body),
	}, true
}

var codeRe = regexp.MustCompile(`\b[245]\d{2}\b`)

// ExtractCode returns the first 3-digit SMTP status code (2xx/4xx/5xx)
// in the body, or CodeUnknown.
func ExtractCode(body string) string {
	if m := codeRe.FindString(body); m != "" {
		return m
	}
	return CodeUnknown
}

var (
	hardBodyRe = regexp.MustCompile(`(?is)(?:user|mailbox).*not.*found|account.*disabled`)
	softBodyRe = regexp.MustCompile(`(?is)mailbox.*full|quota.*exceeded|temporarily`)
)

// ClassifyType maps an SMTP code to hard/soft, falling back to body
// heuristics when the code is unknown.
func ClassifyType(code string, body string) models.BounceType {
	switch code {
	case "550", "551", "552", "553", "554":
		return models.BounceHard
	case "450", "451", "452", "453":
		return models.BounceSoft
	}

	if code != CodeUnknown && len(code) == 3 {
		switch code[0] {
		case '5':
			return models.BounceHard
		case '4':
			return models.BounceSoft
		}
	}

	if hardBodyRe.MatchString(body) {
		return models.BounceHard
	}
	if softBodyRe.MatchString(body) {
		return models.BounceSoft
	}

	return models.BounceUnknown
}
