package engine

import (
	"context"
	"time"

	"github.com/mailsift/mailsift/internal/db"
	"github.com/mailsift/mailsift/internal/models"
)

// Store is the persistence surface the engine consumes. Not-found
// lookups return the db sentinel errors; InsertEmail reports unique
// violations as db.ErrDuplicateEmail. The engine only assumes
// per-operation atomicity, never multi-row transactions.
type Store interface {
	GetMailbox(ctx context.Context, id string) (*models.Mailbox, error)
	ListActiveMailboxes(ctx context.Context) ([]*models.Mailbox, error)
	UpdateMailbox(ctx context.Context, id string, update db.MailboxUpdate) error

	FindEmail(ctx context.Context, mailboxID string, uid uint32) (*models.Email, error)
	FindEmailByMessageID(ctx context.Context, mailboxID, messageID string) (*models.Email, error)
	FindEmailsByMessageIDs(ctx context.Context, mailboxID string, ids []string) ([]*models.Email, error)
	InsertEmail(ctx context.Context, email *models.Email) error
	ListEmailsInThread(ctx context.Context, threadID string) ([]*models.Email, error)

	InsertThread(ctx context.Context, thread *models.Thread) error
	FindThreadByNormalizedSubject(ctx context.Context, mailboxID, normalized string, since time.Time) (*models.Thread, error)
	UpdateThreadStats(ctx context.Context, id string, messageCount int, lastMessageAt time.Time, participants []string, isUnread bool) error

	FindBounce(ctx context.Context, userID, mailboxID, email string) (*models.Bounce, error)
	InsertBounce(ctx context.Context, bounce *models.Bounce) error
	IncrementBounceFailure(ctx context.Context, bounceID string, at time.Time) error
	InsertBounceEvent(ctx context.Context, event *models.BounceEvent) error
}

// Ensure the pgx-backed store satisfies the engine's interface.
var _ Store = (*db.Store)(nil)
