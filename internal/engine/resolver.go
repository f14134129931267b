package engine

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mailsift/mailsift/internal/db"
	"github.com/mailsift/mailsift/internal/models"
)

// subjectMatchWindow bounds the normalized-subject fallback: a message
// only joins an existing thread by subject if that thread was active
// within the last seven days.
const subjectMatchWindow = 7 * 24 * time.Hour

// Subjects at or below this length ("hi", "hello") are too generic for
// subject-based matching and always start a new thread.
const minSubjectMatchLength = 5

var (
	replyPrefixRe = regexp.MustCompile(`^(?i:re|fwd|fw):\s*`)
	externalTagRe = regexp.MustCompile(`(?i)\[external\]`)
	subjectWsRe   = regexp.MustCompile(`\s+`)
)

// NormalizeSubject lowercases a subject, strips reply/forward prefixes
// (possibly stacked) and [external] tags, and collapses whitespace.
// Idempotent: normalizing a normalized subject is a no-op.
func NormalizeSubject(subject string) string {
	s := strings.ToLower(subject)
	s = externalTagRe.ReplaceAllString(s, " ")

	for {
		trimmed := strings.TrimSpace(s)
		stripped := replyPrefixRe.ReplaceAllString(trimmed, "")
		if stripped == trimmed {
			s = trimmed
			break
		}
		s = stripped
	}

	return strings.TrimSpace(subjectWsRe.ReplaceAllString(s, " "))
}

// Resolver assigns each message to a thread: by In-Reply-To first, then
// by the References chain, then by normalized subject within the
// activity window, and finally by creating a fresh thread.
type Resolver struct {
	store  Store
	logger zerolog.Logger
}

// NewResolver creates a thread resolver.
func NewResolver(store Store, logger zerolog.Logger) *Resolver {
	return &Resolver{
		store:  store,
		logger: logger.With().Str("component", "resolver").Logger(),
	}
}

// Resolve returns the thread ID for msg, creating a thread when no
// existing one matches. Resolving the same message again after its
// email row persisted yields the same thread via the header lookups.
func (r *Resolver) Resolve(ctx context.Context, mailbox *models.Mailbox, msg *models.RawMessage, now time.Time) (string, error) {
	if msg.InReplyTo != "" {
		parent, err := r.store.FindEmailByMessageID(ctx, mailbox.ID, msg.InReplyTo)
		if err != nil && !errors.Is(err, db.ErrEmailNotFound) {
			return "", err
		}
		if parent != nil && parent.ThreadID != "" {
			return parent.ThreadID, nil
		}
	}

	if len(msg.References) > 0 {
		ancestors, err := r.store.FindEmailsByMessageIDs(ctx, mailbox.ID, msg.References)
		if err != nil {
			return "", err
		}
		for _, ancestor := range ancestors {
			if ancestor.ThreadID != "" {
				return ancestor.ThreadID, nil
			}
		}
	}

	normalized := NormalizeSubject(msg.Subject)
	if len(normalized) > minSubjectMatchLength {
		thread, err := r.store.FindThreadByNormalizedSubject(ctx, mailbox.ID, normalized, now.Add(-subjectMatchWindow))
		if err != nil && !errors.Is(err, db.ErrThreadNotFound) {
			return "", err
		}
		if thread != nil {
			return thread.ID, nil
		}
	}

	subject := msg.Subject
	if subject == "" {
		subject = "(No Subject)"
	}

	thread := &models.Thread{
		ID:                uuid.NewString(),
		UserID:            mailbox.UserID,
		MailboxID:         mailbox.ID,
		Subject:           subject,
		NormalizedSubject: normalized,
		Participants:      dedupAddresses([]string{msg.From}, msg.To, msg.CC),
		MessageCount:      1,
		FirstMessageAt:    msg.ReceivedAt,
		LastMessageAt:     msg.ReceivedAt,
		IsUnread:          true,
	}

	if err := r.store.InsertThread(ctx, thread); err != nil {
		return "", err
	}

	r.logger.Debug().
		Str("mailbox_id", mailbox.ID).
		Str("thread_id", thread.ID).
		Str("normalized_subject", normalized).
		Msg("Created new thread")

	return thread.ID, nil
}
