package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/mailsift/mailsift/internal/bounce"
	"github.com/mailsift/mailsift/internal/classify"
	"github.com/mailsift/mailsift/internal/db"
	"github.com/mailsift/mailsift/internal/imap"
	"github.com/mailsift/mailsift/internal/models"
)

// debugBodySnippet bounds how much of an unparseable bounce body the
// debug log emits.
const debugBodySnippet = 500

// Fetcher retrieves new messages for a mailbox, UID-ascending, bounded
// by the configured batch size and recency window.
type Fetcher interface {
	Fetch(ctx context.Context, mailbox *models.Mailbox, password string, lastUID uint32) ([]*models.RawMessage, error)
}

// Decrypter recovers a mailbox's IMAP password from its stored form.
type Decrypter interface {
	Decrypt(ciphertext []byte) (string, error)
}

// Coordinator runs the full sync pipeline for one mailbox at a time:
// fetch, classify, thread, persist, bounce-track, checkpoint.
type Coordinator struct {
	store        Store
	fetcher      Fetcher
	decrypter    Decrypter
	resolver     *Resolver
	persister    *Persister
	bounceParser *bounce.Parser
	debugBounces bool
	logger       zerolog.Logger
}

// CoordinatorOptions carries the bounce-handling knobs.
type CoordinatorOptions struct {
	DebugBounces            bool
	BounceSubjectRecipients bool
}

// NewCoordinator wires a coordinator from its collaborators.
func NewCoordinator(store Store, fetcher Fetcher, decrypter Decrypter, opts CoordinatorOptions, logger zerolog.Logger) *Coordinator {
	return &Coordinator{
		store:        store,
		fetcher:      fetcher,
		decrypter:    decrypter,
		resolver:     NewResolver(store, logger),
		persister:    NewPersister(store, logger),
		bounceParser: bounce.NewParser(opts.BounceSubjectRecipients),
		debugBounces: opts.DebugBounces,
		logger:       logger.With().Str("component", "coordinator").Logger(),
	}
}

// Sync runs one sync pass for the given mailbox. Per-message failures
// are logged and skipped; the checkpoint only advances through the
// prefix of messages processed before the first failure, so skipped
// messages are retried on the next cycle.
func (c *Coordinator) Sync(ctx context.Context, mailboxID string) error {
	mailbox, err := c.store.GetMailbox(ctx, mailboxID)
	if err != nil {
		if errors.Is(err, db.ErrMailboxNotFound) {
			c.logger.Warn().Str("mailbox_id", mailboxID).Msg("Mailbox vanished, skipping")
			return nil
		}
		return err
	}

	if mailbox.Status != models.MailboxActive {
		c.logger.Debug().
			Str("mailbox_id", mailbox.ID).
			Str("status", string(mailbox.Status)).
			Msg("Mailbox not active, skipping")
		return nil
	}

	password, err := c.decrypter.Decrypt(mailbox.EncryptedPassword)
	if err != nil {
		return c.recordFatal(ctx, mailbox, fmt.Errorf("decrypting credentials: %w", err))
	}

	messages, err := c.fetcher.Fetch(ctx, mailbox, password, mailbox.LastSyncedUID)
	if err != nil {
		var authErr *imap.AuthError
		if errors.As(err, &authErr) {
			return c.recordFatal(ctx, mailbox, err)
		}
		return c.recordTransient(ctx, mailbox, err)
	}

	now := time.Now()

	if len(messages) == 0 {
		return c.store.UpdateMailbox(ctx, mailbox.ID, db.MailboxUpdate{
			LastSyncedAt:   &now,
			ClearLastError: true,
		})
	}

	maxUID := mailbox.LastSyncedUID
	processed := 0
	failed := false

	for _, msg := range messages {
		if err := ctx.Err(); err != nil {
			break
		}

		if err := c.processMessage(ctx, mailbox, msg, now); err != nil {
			c.logger.Error().
				Err(err).
				Str("mailbox_id", mailbox.ID).
				Uint32("uid", msg.UID).
				Msg("Failed to process message, skipping")
			failed = true
			continue
		}

		processed++
		if !failed && msg.UID > maxUID {
			maxUID = msg.UID
		}
	}

	status := models.MailboxActive
	update := db.MailboxUpdate{
		LastSyncedUID:  &maxUID,
		LastSyncedAt:   &now,
		Status:         &status,
		ClearLastError: true,
	}
	if err := c.store.UpdateMailbox(ctx, mailbox.ID, update); err != nil {
		return err
	}

	c.logger.Info().
		Str("mailbox_id", mailbox.ID).
		Int("fetched", len(messages)).
		Int("processed", processed).
		Uint32("checkpoint", maxUID).
		Msg("Sync pass complete")

	return nil
}

// processMessage runs classification, thread resolution, persistence
// and bounce tracking for one message. Already-persisted messages are
// detected before any thread work so re-delivery has no side effects.
func (c *Coordinator) processMessage(ctx context.Context, mailbox *models.Mailbox, msg *models.RawMessage, now time.Time) error {
	existing, err := c.store.FindEmail(ctx, mailbox.ID, msg.UID)
	if err != nil && !errors.Is(err, db.ErrEmailNotFound) {
		return err
	}
	if existing != nil {
		return nil
	}

	category, confidence := classify.Classify(msg)

	threadID, err := c.resolver.Resolve(ctx, mailbox, msg, now)
	if err != nil {
		return fmt.Errorf("resolving thread: %w", err)
	}

	persisted, err := c.persister.PersistEmail(ctx, mailbox, msg, category, confidence, threadID)
	if err != nil {
		return fmt.Errorf("persisting email: %w", err)
	}

	if category == models.CategoryBounce && persisted {
		res, ok := c.bounceParser.Parse(msg)
		if !ok {
			if c.debugBounces {
				body := truncateRunes(msg.Body, debugBodySnippet)
				c.logger.Debug().
					Str("mailbox_id", mailbox.ID).
					Uint32("uid", msg.UID).
					Str("subject", msg.Subject).
					Str("body_snippet", body).
					Msg("Bounce message yielded no valid recipient")
			}
			return nil
		}

		if err := c.persister.PersistBounce(ctx, mailbox, msg, res, now); err != nil {
			return fmt.Errorf("persisting bounce: %w", err)
		}
	}

	return nil
}

// recordFatal marks the mailbox errored so it is excluded from future
// cycles until an operator intervenes.
func (c *Coordinator) recordFatal(ctx context.Context, mailbox *models.Mailbox, cause error) error {
	c.logger.Error().
		Err(cause).
		Str("mailbox_id", mailbox.ID).
		Msg("Fatal sync error, disabling mailbox")

	status := models.MailboxError
	msg := cause.Error()
	if err := c.store.UpdateMailbox(ctx, mailbox.ID, db.MailboxUpdate{
		Status:    &status,
		LastError: &msg,
	}); err != nil {
		return err
	}
	return cause
}

// recordTransient notes the failure but leaves the mailbox active for
// the next cycle. The checkpoint is untouched.
func (c *Coordinator) recordTransient(ctx context.Context, mailbox *models.Mailbox, cause error) error {
	c.logger.Warn().
		Err(cause).
		Str("mailbox_id", mailbox.ID).
		Msg("Transient sync error, will retry next cycle")

	msg := cause.Error()
	if err := c.store.UpdateMailbox(ctx, mailbox.ID, db.MailboxUpdate{
		LastError: &msg,
	}); err != nil {
		return err
	}
	return cause
}
