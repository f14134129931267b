package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mailsift/mailsift/internal/models"
)

// ErrThreadNotFound is returned when a requested thread cannot be found.
var ErrThreadNotFound = errors.New("thread not found")

const threadColumns = `
	id,
	user_id,
	mailbox_id,
	subject,
	normalized_subject,
	participants,
	message_count,
	first_message_at,
	last_message_at,
	is_unread,
	is_archived
`

func scanThread(row pgx.Row) (*models.Thread, error) {
	var t models.Thread
	err := row.Scan(
		&t.ID,
		&t.UserID,
		&t.MailboxID,
		&t.Subject,
		&t.NormalizedSubject,
		&t.Participants,
		&t.MessageCount,
		&t.FirstMessageAt,
		&t.LastMessageAt,
		&t.IsUnread,
		&t.IsArchived,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrThreadNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan thread: %w", err)
	}
	return &t, nil
}

// InsertThread inserts a thread row.
func InsertThread(ctx context.Context, pool *pgxpool.Pool, thread *models.Thread) error {
	_, err := pool.Exec(ctx, `
		INSERT INTO threads (
			id, user_id, mailbox_id, subject, normalized_subject, participants,
			message_count, first_message_at, last_message_at, is_unread, is_archived
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		thread.ID,
		thread.UserID,
		thread.MailboxID,
		thread.Subject,
		thread.NormalizedSubject,
		thread.Participants,
		thread.MessageCount,
		thread.FirstMessageAt,
		thread.LastMessageAt,
		thread.IsUnread,
		thread.IsArchived,
	)

	if err != nil {
		return fmt.Errorf("failed to insert thread: %w", err)
	}
	return nil
}

// GetThread returns a thread by ID.
func GetThread(ctx context.Context, pool *pgxpool.Pool, id string) (*models.Thread, error) {
	row := pool.QueryRow(ctx, `
		SELECT `+threadColumns+`
		FROM threads
		WHERE id = $1
	`, id)

	return scanThread(row)
}

// FindThreadByNormalizedSubject returns the most recently active thread
// with the given normalized subject whose last message is not older than
// since. Used as the subject-matching fallback of the thread resolver.
func FindThreadByNormalizedSubject(ctx context.Context, pool *pgxpool.Pool, mailboxID, normalized string, since time.Time) (*models.Thread, error) {
	row := pool.QueryRow(ctx, `
		SELECT `+threadColumns+`
		FROM threads
		WHERE mailbox_id = $1 AND normalized_subject = $2 AND last_message_at >= $3
		ORDER BY last_message_at DESC
		LIMIT 1
	`, mailboxID, normalized, since)

	return scanThread(row)
}

// UpdateThreadStats rewrites the aggregate columns recomputed from the
// thread's member emails. first_message_at is deliberately not touched.
func UpdateThreadStats(ctx context.Context, pool *pgxpool.Pool, id string, messageCount int, lastMessageAt time.Time, participants []string, isUnread bool) error {
	tag, err := pool.Exec(ctx, `
		UPDATE threads SET
			message_count = $2,
			last_message_at = $3,
			participants = $4,
			is_unread = $5
		WHERE id = $1
	`, id, messageCount, lastMessageAt, participants, isUnread)

	if err != nil {
		return fmt.Errorf("failed to update thread: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrThreadNotFound
	}
	return nil
}
