package bounce

import (
	"regexp"
	"strings"
)

// addrPattern is deliberately permissive; the real filtering happens in
// ValidAddress. Bounce bodies are full of address-shaped junk (message
// ids, MX hostnames, image filenames), so extraction and validation are
// separate steps.
const addrPattern = `[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`

// recipientPatterns are tried in priority order; the structured DSN
// fields and explicit failure phrasings outrank bare addresses.
var recipientPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?is)(?:failed|undelivered).{0,120}?(?:to|for|recipient)[:\s]+<?(` + addrPattern + `)>?`),
	regexp.MustCompile(`(?i)Final-Recipient:\s*rfc822;\s*(` + addrPattern + `)`),
	regexp.MustCompile(`(?i)Original-Recipient:\s*(?:rfc822;\s*)?(` + addrPattern + `)`),
	regexp.MustCompile(`<(` + addrPattern + `)>`),
	regexp.MustCompile(`(?i)\b(?:to|for|recipient|user):\s*(` + addrPattern + `)`),
	regexp.MustCompile(`\b(` + addrPattern + `)\b`),
}

var (
	addrShapeRe = regexp.MustCompile(`^[A-Za-z0-9._+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}$`)

	// Rejects locals that look like message ids or tracking tokens:
	// eight or more leading hex characters.
	hexLocalRe = regexp.MustCompile(`^[0-9a-fA-F]{8}`)

	uuidLocalRe = regexp.MustCompile(`(?i)^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

	mxHostRe = regexp.MustCompile(`(?i)@mx\.(google|yahoo|outlook)\.com$`)

	digitsOnlyRe = regexp.MustCompile(`^[0-9.]+$`)
)

var binaryExtensions = []string{
	".png", ".jpg", ".jpeg", ".gif", ".svg", ".mp4", ".pdf", ".doc", ".zip",
}

// Senders that are mail-system roles, never a failed end recipient.
var systemPrefixes = []string{
	"mailer-daemon@", "postmaster@", "noreply@", "no-reply@",
}

// ExtractRecipient scans the body (and optionally the subject) for the
// failed recipient address. Candidates are tried in pattern priority
// order and the first one that passes ValidAddress wins. Returns ""
// when nothing valid is found; such a message records no bounce.
func ExtractRecipient(body, subject string, includeSubject bool) string {
	sources := []string{body}
	if includeSubject {
		sources = append(sources, subject)
	}

	for _, re := range recipientPatterns {
		for _, text := range sources {
			for _, m := range re.FindAllStringSubmatch(text, -1) {
				addr := strings.ToLower(m[1])
				if ValidAddress(addr) {
					return addr
				}
			}
		}
	}

	return ""
}

// ValidAddress reports whether addr is plausibly a real user mailbox.
func ValidAddress(addr string) bool {
	if len(addr) < 5 || len(addr) > 254 {
		return false
	}

	if !addrShapeRe.MatchString(addr) {
		return false
	}

	if strings.Contains(addr, "..") || strings.Contains(addr, "http://") {
		return false
	}
	if strings.ContainsAny(addr, " \t<>\"'") {
		return false
	}

	at := strings.LastIndexByte(addr, '@')
	local, domain := addr[:at], addr[at+1:]

	if len(local) > 64 {
		return false
	}
	if hexLocalRe.MatchString(local) || uuidLocalRe.MatchString(local) {
		return false
	}

	if len(domain) < 3 || len(domain) > 253 {
		return false
	}

	// The portion below the TLD must not be purely numeric
	// (e.g. 123.45.com is IP-shaped junk, not a mail domain).
	if dot := strings.LastIndexByte(domain, '.'); dot > 0 {
		if digitsOnlyRe.MatchString(domain[:dot]) {
			return false
		}
	}

	for _, ext := range binaryExtensions {
		if strings.HasSuffix(addr, ext) {
			return false
		}
	}

	if mxHostRe.MatchString(addr) {
		return false
	}

	for _, prefix := range systemPrefixes {
		if strings.HasPrefix(addr, prefix) {
			return false
		}
	}

	return true
}
