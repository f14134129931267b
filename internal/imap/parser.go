package imap

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	"github.com/jhillyerd/enmime"

	"github.com/mailsift/mailsift/internal/models"
)

// ParseMessage converts a fetched IMAP message into a RawMessage. The
// section must be the one used in the fetch so the raw source can be
// located in the message body map. host is used to synthesize a
// Message-ID when the message carries none.
func ParseMessage(imapMsg *imap.Message, section *imap.BodySectionName, host string) (*models.RawMessage, error) {
	if imapMsg == nil {
		return nil, fmt.Errorf("imap message is nil")
	}
	if imapMsg.Envelope == nil {
		return nil, fmt.Errorf("message has no envelope")
	}

	env := imapMsg.Envelope

	msg := &models.RawMessage{
		UID:        imapMsg.Uid,
		MessageID:  strings.TrimSpace(env.MessageId),
		Subject:    env.Subject,
		To:         formatAddressList(env.To),
		CC:         formatAddressList(env.Cc),
		BCC:        formatAddressList(env.Bcc),
		Headers:    map[string]string{},
		ReceivedAt: env.Date,
		InReplyTo:  strings.TrimSpace(env.InReplyTo),
	}

	if len(env.From) > 0 {
		msg.From = formatAddress(env.From[0])
	}

	// Some messages (drafts, broken senders) carry no Message-ID; the
	// (mailbox, message_id) uniqueness invariant needs one anyway.
	if msg.MessageID == "" {
		msg.MessageID = fmt.Sprintf("<%d@%s>", imapMsg.Uid, host)
	}

	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = time.Now()
	}

	if body := imapMsg.GetBody(section); body != nil {
		if err := parseBody(body, msg); err != nil {
			// Headers and envelope are still usable without a parsed body.
			return msg, nil
		}
	}

	return msg, nil
}

// parseBody parses the raw message source with enmime and fills in the
// body, headers, references and attachment fields.
func parseBody(bodyReader io.Reader, msg *models.RawMessage) error {
	raw, err := io.ReadAll(bodyReader)
	if err != nil {
		return fmt.Errorf("failed to read message source: %w", err)
	}
	msg.SizeBytes = int64(len(raw))

	envelope, err := enmime.ReadEnvelope(strings.NewReader(string(raw)))
	if err != nil {
		return fmt.Errorf("failed to parse message source: %w", err)
	}

	// Plain text preferred, HTML as fallback.
	if envelope.Text != "" {
		msg.Body = envelope.Text
	} else {
		msg.Body = envelope.HTML
	}

	for _, key := range envelope.GetHeaderKeys() {
		msg.Headers[key] = envelope.GetHeader(key)
	}

	if refs := envelope.GetHeader("References"); refs != "" {
		msg.References = ParseReferences(refs)
	}
	if msg.InReplyTo == "" {
		msg.InReplyTo = strings.TrimSpace(envelope.GetHeader("In-Reply-To"))
	}

	msg.HasAttachments = len(envelope.Attachments) > 0

	return nil
}

// ParseReferences splits a References header into an ordered list of
// message-ids. RFC 5322 is loose here, so the splitter is tolerant:
// angle-bracketed tokens are taken as-is and bare tokens containing an
// @ are accepted too. Duplicates are dropped, order preserved.
func ParseReferences(value string) []string {
	var refs []string
	seen := map[string]bool{}

	add := func(id string) {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			return
		}
		seen[id] = true
		refs = append(refs, id)
	}

	rest := value
	for {
		start := strings.IndexByte(rest, '<')
		if start < 0 {
			break
		}
		end := strings.IndexByte(rest[start:], '>')
		if end < 0 {
			break
		}
		add(rest[start : start+end+1])
		rest = rest[start+end+1:]
	}

	if len(refs) == 0 {
		for _, tok := range strings.FieldsFunc(value, func(r rune) bool {
			return r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == ','
		}) {
			if strings.Contains(tok, "@") {
				add(tok)
			}
		}
	}

	return refs
}

// formatAddress formats an IMAP address, keeping the display name when
// present ("Name <local@host>" form).
func formatAddress(address *imap.Address) string {
	if address == nil {
		return ""
	}

	if address.MailboxName == "" && address.HostName == "" {
		return ""
	}

	if address.PersonalName != "" {
		return fmt.Sprintf("%s <%s@%s>", address.PersonalName, address.MailboxName, address.HostName)
	}

	return fmt.Sprintf("%s@%s", address.MailboxName, address.HostName)
}

// formatAddressList formats a list of IMAP addresses.
func formatAddressList(addresses []*imap.Address) []string {
	result := make([]string, 0, len(addresses))
	for _, address := range addresses {
		formatted := formatAddress(address)
		if formatted != "" {
			result = append(result, formatted)
		}
	}
	return result
}
