package engine

import (
	"net/mail"
	"strings"
)

// addrSpec extracts the bare lowercased address from a possibly
// display-named form like `"Jane Doe" <jane@example.com>`.
func addrSpec(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	if parsed, err := mail.ParseAddress(s); err == nil {
		return strings.ToLower(parsed.Address)
	}

	// Tolerate malformed headers mail.ParseAddress rejects.
	if start := strings.IndexByte(s, '<'); start >= 0 {
		if end := strings.IndexByte(s[start:], '>'); end > 0 {
			return strings.ToLower(strings.TrimSpace(s[start+1 : start+end]))
		}
	}

	return strings.ToLower(s)
}

// splitFrom separates a From value into display name and lowercased
// address. When no display name is present, the local part of the
// address stands in for the name.
func splitFrom(s string) (name, addr string) {
	addr = addrSpec(s)

	if parsed, err := mail.ParseAddress(strings.TrimSpace(s)); err == nil && parsed.Name != "" {
		return parsed.Name, addr
	}

	if at := strings.IndexByte(addr, '@'); at > 0 {
		return addr[:at], addr
	}

	return addr, addr
}

// dedupAddresses lowercases, normalizes and de-duplicates the given
// address lists, preserving first-seen order.
func dedupAddresses(lists ...[]string) []string {
	seen := map[string]bool{}
	var result []string
	for _, list := range lists {
		for _, raw := range list {
			addr := addrSpec(raw)
			if addr == "" || seen[addr] {
				continue
			}
			seen[addr] = true
			result = append(result, addr)
		}
	}
	return result
}
