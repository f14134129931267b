package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mailsift/mailsift/internal/models"
)

// Store bundles the package-level queries behind a single value so the
// sync engine can depend on an interface and be tested with a fake.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) GetMailbox(ctx context.Context, id string) (*models.Mailbox, error) {
	return GetMailbox(ctx, s.pool, id)
}

func (s *Store) ListActiveMailboxes(ctx context.Context) ([]*models.Mailbox, error) {
	return ListActiveMailboxes(ctx, s.pool)
}

func (s *Store) UpdateMailbox(ctx context.Context, id string, update MailboxUpdate) error {
	return UpdateMailbox(ctx, s.pool, id, update)
}

func (s *Store) FindEmail(ctx context.Context, mailboxID string, uid uint32) (*models.Email, error) {
	return FindEmail(ctx, s.pool, mailboxID, uid)
}

func (s *Store) FindEmailByMessageID(ctx context.Context, mailboxID, messageID string) (*models.Email, error) {
	return FindEmailByMessageID(ctx, s.pool, mailboxID, messageID)
}

func (s *Store) FindEmailsByMessageIDs(ctx context.Context, mailboxID string, ids []string) ([]*models.Email, error) {
	return FindEmailsByMessageIDs(ctx, s.pool, mailboxID, ids)
}

func (s *Store) InsertEmail(ctx context.Context, email *models.Email) error {
	return InsertEmail(ctx, s.pool, email)
}

func (s *Store) ListEmailsInThread(ctx context.Context, threadID string) ([]*models.Email, error) {
	return ListEmailsInThread(ctx, s.pool, threadID)
}

func (s *Store) InsertThread(ctx context.Context, thread *models.Thread) error {
	return InsertThread(ctx, s.pool, thread)
}

func (s *Store) FindThreadByNormalizedSubject(ctx context.Context, mailboxID, normalized string, since time.Time) (*models.Thread, error) {
	return FindThreadByNormalizedSubject(ctx, s.pool, mailboxID, normalized, since)
}

func (s *Store) UpdateThreadStats(ctx context.Context, id string, messageCount int, lastMessageAt time.Time, participants []string, isUnread bool) error {
	return UpdateThreadStats(ctx, s.pool, id, messageCount, lastMessageAt, participants, isUnread)
}

func (s *Store) FindBounce(ctx context.Context, userID, mailboxID, email string) (*models.Bounce, error) {
	return FindBounce(ctx, s.pool, userID, mailboxID, email)
}

func (s *Store) InsertBounce(ctx context.Context, bounce *models.Bounce) error {
	return InsertBounce(ctx, s.pool, bounce)
}

func (s *Store) IncrementBounceFailure(ctx context.Context, bounceID string, at time.Time) error {
	return IncrementBounceFailure(ctx, s.pool, bounceID, at)
}

func (s *Store) InsertBounceEvent(ctx context.Context, event *models.BounceEvent) error {
	return InsertBounceEvent(ctx, s.pool, event)
}
