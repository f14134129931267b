package engine

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mailsift/mailsift/internal/bounce"
	"github.com/mailsift/mailsift/internal/db"
	"github.com/mailsift/mailsift/internal/models"
)

const maxBodyPreviewLength = 300

var (
	previewTagRe = regexp.MustCompile(`<[^>]*>`)
	previewWsRe  = regexp.MustCompile(`\s+`)
)

// Persister writes emails, keeps thread aggregates consistent, and
// maintains the per-recipient bounce aggregates. All writes are
// idempotent on (mailbox_id, uid): a re-delivered message is detected
// and produces no side effects.
type Persister struct {
	store  Store
	logger zerolog.Logger
}

// NewPersister creates a persister.
func NewPersister(store Store, logger zerolog.Logger) *Persister {
	return &Persister{
		store:  store,
		logger: logger.With().Str("component", "persister").Logger(),
	}
}

// PersistEmail inserts the email row for msg and refreshes its thread's
// aggregates. Returns false when the message was already persisted
// (same UID, or same Message-ID after a folder move); nothing is
// written in that case.
func (p *Persister) PersistEmail(ctx context.Context, mailbox *models.Mailbox, msg *models.RawMessage, category models.Category, confidence float64, threadID string) (bool, error) {
	existing, err := p.store.FindEmail(ctx, mailbox.ID, msg.UID)
	if err != nil && !errors.Is(err, db.ErrEmailNotFound) {
		return false, err
	}
	if existing != nil {
		return false, nil
	}

	email := buildEmail(mailbox, msg, category, confidence, threadID)

	if err := p.store.InsertEmail(ctx, email); err != nil {
		if errors.Is(err, db.ErrDuplicateEmail) {
			p.logger.Debug().
				Str("mailbox_id", mailbox.ID).
				Uint32("uid", msg.UID).
				Str("message_id", msg.MessageID).
				Msg("Duplicate email, skipping")
			return false, nil
		}
		return false, err
	}

	if err := p.refreshThread(ctx, threadID); err != nil {
		return true, err
	}

	return true, nil
}

// refreshThread recomputes a thread's aggregate columns from its full
// member set. first_message_at is immutable and left alone.
func (p *Persister) refreshThread(ctx context.Context, threadID string) error {
	emails, err := p.store.ListEmailsInThread(ctx, threadID)
	if err != nil {
		return err
	}
	if len(emails) == 0 {
		return nil
	}

	var lastMessageAt time.Time
	isUnread := false
	var addressLists [][]string

	for _, e := range emails {
		if e.ReceivedAt.After(lastMessageAt) {
			lastMessageAt = e.ReceivedAt
		}
		if !e.IsRead {
			isUnread = true
		}
		addressLists = append(addressLists, []string{e.FromAddress}, e.ToAddresses, e.CCAddresses)
	}

	participants := dedupAddresses(addressLists...)

	return p.store.UpdateThreadStats(ctx, threadID, len(emails), lastMessageAt, participants, isUnread)
}

// PersistBounce upserts the per-recipient bounce aggregate and appends
// one bounce event. Callers only invoke this for newly persisted bounce
// emails, which keeps the event log at one entry per (mailbox, uid).
func (p *Persister) PersistBounce(ctx context.Context, mailbox *models.Mailbox, msg *models.RawMessage, res *bounce.Result, now time.Time) error {
	aggregate, err := p.store.FindBounce(ctx, mailbox.UserID, mailbox.ID, res.Recipient)
	if err != nil && !errors.Is(err, db.ErrBounceNotFound) {
		return err
	}

	if aggregate != nil {
		if err := p.store.IncrementBounceFailure(ctx, aggregate.ID, now); err != nil {
			return err
		}
	} else {
		aggregate = &models.Bounce{
			ID:            uuid.NewString(),
			UserID:        mailbox.UserID,
			MailboxID:     mailbox.ID,
			Email:         res.Recipient,
			BounceType:    res.Type,
			ErrorCode:     res.Code,
			Reason:        res.Diagnostic,
			FailureCount:  1,
			FirstFailedAt: now,
			LastFailedAt:  now,
		}
		if err := p.store.InsertBounce(ctx, aggregate); err != nil {
			return err
		}
	}

	event := &models.BounceEvent{
		ID:         uuid.NewString(),
		BounceID:   aggregate.ID,
		UserID:     mailbox.UserID,
		MessageUID: msg.UID,
		ErrorCode:  res.Code,
		Diagnostic: res.Diagnostic,
		OccurredAt: now,
	}

	if err := p.store.InsertBounceEvent(ctx, event); err != nil {
		return err
	}

	p.logger.Info().
		Str("mailbox_id", mailbox.ID).
		Str("recipient", res.Recipient).
		Str("bounce_type", string(res.Type)).
		Str("error_code", res.Code).
		Msg("Recorded bounce")

	return nil
}

// buildEmail maps a RawMessage onto the persisted Email record,
// normalizing addresses and deriving the body preview.
func buildEmail(mailbox *models.Mailbox, msg *models.RawMessage, category models.Category, confidence float64, threadID string) *models.Email {
	fromName, fromAddr := splitFrom(msg.From)

	return &models.Email{
		ID:                 uuid.NewString(),
		UserID:             mailbox.UserID,
		MailboxID:          mailbox.ID,
		UID:                msg.UID,
		MessageID:          msg.MessageID,
		Subject:            msg.Subject,
		FromAddress:        fromAddr,
		FromName:           fromName,
		ToAddresses:        dedupAddresses(msg.To),
		CCAddresses:        dedupAddresses(msg.CC),
		BCCAddresses:       dedupAddresses(msg.BCC),
		Category:           category,
		CategoryConfidence: confidence,
		ThreadID:           threadID,
		InReplyTo:          msg.InReplyTo,
		References:         msg.References,
		BodyPreview:        bodyPreview(msg.Body),
		HasAttachments:     msg.HasAttachments,
		ReceivedAt:         msg.ReceivedAt,
		SizeBytes:          msg.SizeBytes,
		Headers:            msg.Headers,
	}
}

// bodyPreview strips markup from the body, collapses whitespace and
// truncates to the stored preview length.
func bodyPreview(body string) string {
	s := previewTagRe.ReplaceAllString(body, " ")
	s = previewWsRe.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)
	return truncateRunes(s, maxBodyPreviewLength)
}

// truncateRunes cuts s to at most max characters. Cutting on a rune
// boundary keeps the result valid UTF-8 for the text columns it is
// stored in.
func truncateRunes(s string, max int) string {
	if len(s) <= max {
		return s
	}
	n := 0
	for i := range s {
		if n == max {
			return s[:i]
		}
		n++
	}
	return s
}
