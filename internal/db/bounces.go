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

// ErrBounceNotFound is returned when a requested bounce aggregate cannot be found.
var ErrBounceNotFound = errors.New("bounce not found")

const bounceColumns = `
	id,
	user_id,
	mailbox_id,
	email,
	bounce_type,
	error_code,
	reason,
	failure_count,
	first_failed_at,
	last_failed_at
`

func scanBounce(row pgx.Row) (*models.Bounce, error) {
	var b models.Bounce
	err := row.Scan(
		&b.ID,
		&b.UserID,
		&b.MailboxID,
		&b.Email,
		&b.BounceType,
		&b.ErrorCode,
		&b.Reason,
		&b.FailureCount,
		&b.FirstFailedAt,
		&b.LastFailedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrBounceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan bounce: %w", err)
	}
	return &b, nil
}

// FindBounce returns the bounce aggregate for a recipient, if any.
func FindBounce(ctx context.Context, pool *pgxpool.Pool, userID, mailboxID, email string) (*models.Bounce, error) {
	row := pool.QueryRow(ctx, `
		SELECT `+bounceColumns+`
		FROM bounces
		WHERE user_id = $1 AND mailbox_id = $2 AND email = $3
	`, userID, mailboxID, email)

	return scanBounce(row)
}

// InsertBounce inserts a new bounce aggregate.
func InsertBounce(ctx context.Context, pool *pgxpool.Pool, bounce *models.Bounce) error {
	_, err := pool.Exec(ctx, `
		INSERT INTO bounces (
			id, user_id, mailbox_id, email, bounce_type, error_code,
			reason, failure_count, first_failed_at, last_failed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		bounce.ID,
		bounce.UserID,
		bounce.MailboxID,
		bounce.Email,
		bounce.BounceType,
		bounce.ErrorCode,
		bounce.Reason,
		bounce.FailureCount,
		bounce.FirstFailedAt,
		bounce.LastFailedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to insert bounce: %w", err)
	}
	return nil
}

// IncrementBounceFailure bumps failure_count by one and moves
// last_failed_at forward in a single atomic statement.
func IncrementBounceFailure(ctx context.Context, pool *pgxpool.Pool, bounceID string, at time.Time) error {
	tag, err := pool.Exec(ctx, `
		UPDATE bounces SET
			failure_count = failure_count + 1,
			last_failed_at = $2
		WHERE id = $1
	`, bounceID, at)

	if err != nil {
		return fmt.Errorf("failed to increment bounce failure: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrBounceNotFound
	}
	return nil
}

// InsertBounceEvent appends one immutable bounce event row.
func InsertBounceEvent(ctx context.Context, pool *pgxpool.Pool, event *models.BounceEvent) error {
	_, err := pool.Exec(ctx, `
		INSERT INTO bounce_events (
			id, bounce_id, user_id, message_uid, error_code, diagnostic, occurred_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		event.ID,
		event.BounceID,
		event.UserID,
		event.MessageUID,
		event.ErrorCode,
		event.Diagnostic,
		event.OccurredAt,
	)

	if err != nil {
		return fmt.Errorf("failed to insert bounce event: %w", err)
	}
	return nil
}

// ListBounceEvents returns every event for a bounce aggregate, oldest first.
func ListBounceEvents(ctx context.Context, pool *pgxpool.Pool, bounceID string) ([]*models.BounceEvent, error) {
	rows, err := pool.Query(ctx, `
		SELECT id, bounce_id, user_id, message_uid, error_code, diagnostic, occurred_at
		FROM bounce_events
		WHERE bounce_id = $1
		ORDER BY occurred_at
	`, bounceID)

	if err != nil {
		return nil, fmt.Errorf("failed to list bounce events: %w", err)
	}
	defer rows.Close()

	var events []*models.BounceEvent
	for rows.Next() {
		var ev models.BounceEvent
		if err := rows.Scan(
			&ev.ID,
			&ev.BounceID,
			&ev.UserID,
			&ev.MessageUID,
			&ev.ErrorCode,
			&ev.Diagnostic,
			&ev.OccurredAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan bounce event: %w", err)
		}
		events = append(events, &ev)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bounce events: %w", err)
	}

	return events, nil
}
