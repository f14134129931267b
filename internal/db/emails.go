package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mailsift/mailsift/internal/models"
)

// ErrEmailNotFound is returned when a requested email cannot be found.
var ErrEmailNotFound = errors.New("email not found")

// ErrDuplicateEmail is returned when an insert hits one of the email
// unique constraints: (mailbox_id, uid) or (mailbox_id, message_id).
var ErrDuplicateEmail = errors.New("duplicate email")

const emailColumns = `
	id,
	user_id,
	mailbox_id,
	uid,
	message_id,
	subject,
	from_address,
	from_name,
	to_addresses,
	cc_addresses,
	bcc_addresses,
	category,
	category_confidence,
	thread_id,
	in_reply_to,
	email_references,
	body_preview,
	has_attachments,
	is_read,
	is_starred,
	is_archived,
	received_at,
	size_bytes,
	headers
`

func scanEmail(row pgx.Row) (*models.Email, error) {
	var e models.Email
	var headers []byte
	err := row.Scan(
		&e.ID,
		&e.UserID,
		&e.MailboxID,
		&e.UID,
		&e.MessageID,
		&e.Subject,
		&e.FromAddress,
		&e.FromName,
		&e.ToAddresses,
		&e.CCAddresses,
		&e.BCCAddresses,
		&e.Category,
		&e.CategoryConfidence,
		&e.ThreadID,
		&e.InReplyTo,
		&e.References,
		&e.BodyPreview,
		&e.HasAttachments,
		&e.IsRead,
		&e.IsStarred,
		&e.IsArchived,
		&e.ReceivedAt,
		&e.SizeBytes,
		&headers,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrEmailNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan email: %w", err)
	}

	if len(headers) > 0 {
		if err := json.Unmarshal(headers, &e.Headers); err != nil {
			return nil, fmt.Errorf("failed to decode headers: %w", err)
		}
	}

	return &e, nil
}

// InsertEmail inserts an email row. Unique violations on either email key
// are reported as ErrDuplicateEmail so the persister can treat them as a
// re-delivery.
func InsertEmail(ctx context.Context, pool *pgxpool.Pool, email *models.Email) error {
	headers, err := json.Marshal(email.Headers)
	if err != nil {
		return fmt.Errorf("failed to encode headers: %w", err)
	}

	_, err = pool.Exec(ctx, `
		INSERT INTO emails (
			id, user_id, mailbox_id, uid, message_id, subject,
			from_address, from_name, to_addresses, cc_addresses, bcc_addresses,
			category, category_confidence, thread_id, in_reply_to, email_references,
			body_preview, has_attachments, is_read, is_starred, is_archived,
			received_at, size_bytes, headers
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11,
			$12, $13, $14, $15, $16,
			$17, $18, $19, $20, $21,
			$22, $23, $24
		)
	`,
		email.ID,
		email.UserID,
		email.MailboxID,
		email.UID,
		email.MessageID,
		email.Subject,
		email.FromAddress,
		email.FromName,
		email.ToAddresses,
		email.CCAddresses,
		email.BCCAddresses,
		email.Category,
		email.CategoryConfidence,
		email.ThreadID,
		email.InReplyTo,
		email.References,
		email.BodyPreview,
		email.HasAttachments,
		email.IsRead,
		email.IsStarred,
		email.IsArchived,
		email.ReceivedAt,
		email.SizeBytes,
		headers,
	)

	if isUniqueViolation(err) {
		return ErrDuplicateEmail
	}
	if err != nil {
		return fmt.Errorf("failed to insert email: %w", err)
	}
	return nil
}

// FindEmail returns an email by its mailbox and IMAP UID.
func FindEmail(ctx context.Context, pool *pgxpool.Pool, mailboxID string, uid uint32) (*models.Email, error) {
	row := pool.QueryRow(ctx, `
		SELECT `+emailColumns+`
		FROM emails
		WHERE mailbox_id = $1 AND uid = $2
	`, mailboxID, uid)

	return scanEmail(row)
}

// FindEmailByMessageID returns an email by its Message-ID header value.
func FindEmailByMessageID(ctx context.Context, pool *pgxpool.Pool, mailboxID, messageID string) (*models.Email, error) {
	row := pool.QueryRow(ctx, `
		SELECT `+emailColumns+`
		FROM emails
		WHERE mailbox_id = $1 AND message_id = $2
	`, mailboxID, messageID)

	return scanEmail(row)
}

// FindEmailsByMessageIDs returns the emails whose message_id is in ids.
// Used by the thread resolver to chase a References chain in one query.
func FindEmailsByMessageIDs(ctx context.Context, pool *pgxpool.Pool, mailboxID string, ids []string) ([]*models.Email, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := pool.Query(ctx, `
		SELECT `+emailColumns+`
		FROM emails
		WHERE mailbox_id = $1 AND message_id = ANY($2)
	`, mailboxID, ids)

	if err != nil {
		return nil, fmt.Errorf("failed to find emails: %w", err)
	}
	defer rows.Close()

	var emails []*models.Email
	for rows.Next() {
		e, err := scanEmail(rows)
		if err != nil {
			return nil, err
		}
		emails = append(emails, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating emails: %w", err)
	}

	return emails, nil
}

// ListEmailsInThread returns all emails in a thread, oldest first.
func ListEmailsInThread(ctx context.Context, pool *pgxpool.Pool, threadID string) ([]*models.Email, error) {
	rows, err := pool.Query(ctx, `
		SELECT `+emailColumns+`
		FROM emails
		WHERE thread_id = $1
		ORDER BY received_at
	`, threadID)

	if err != nil {
		return nil, fmt.Errorf("failed to list thread emails: %w", err)
	}
	defer rows.Close()

	var emails []*models.Email
	for rows.Next() {
		e, err := scanEmail(rows)
		if err != nil {
			return nil, err
		}
		emails = append(emails, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating emails: %w", err)
	}

	return emails, nil
}

// isUniqueViolation reports whether err is a Postgres unique-constraint
// violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
