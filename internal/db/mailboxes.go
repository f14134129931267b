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

// ErrMailboxNotFound is returned when a requested mailbox cannot be found.
var ErrMailboxNotFound = errors.New("mailbox not found")

// MailboxUpdate is a partial update of the sync-owned mailbox columns.
// Nil fields are left untouched; ClearLastError sets last_error to NULL.
type MailboxUpdate struct {
	LastSyncedUID  *uint32
	LastSyncedAt   *time.Time
	Status         *models.MailboxStatus
	LastError      *string
	ClearLastError bool
}

const mailboxColumns = `
	id,
	user_id,
	imap_host,
	imap_port,
	imap_username,
	encrypted_password,
	status,
	last_synced_uid,
	last_synced_at,
	last_error
`

func scanMailbox(row pgx.Row) (*models.Mailbox, error) {
	var mb models.Mailbox
	err := row.Scan(
		&mb.ID,
		&mb.UserID,
		&mb.IMAPHost,
		&mb.IMAPPort,
		&mb.IMAPUsername,
		&mb.EncryptedPassword,
		&mb.Status,
		&mb.LastSyncedUID,
		&mb.LastSyncedAt,
		&mb.LastError,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrMailboxNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan mailbox: %w", err)
	}
	return &mb, nil
}

// GetMailbox returns a mailbox by ID.
func GetMailbox(ctx context.Context, pool *pgxpool.Pool, id string) (*models.Mailbox, error) {
	row := pool.QueryRow(ctx, `
		SELECT `+mailboxColumns+`
		FROM mailboxes
		WHERE id = $1
	`, id)

	return scanMailbox(row)
}

// ListActiveMailboxes returns every mailbox with status 'active'.
func ListActiveMailboxes(ctx context.Context, pool *pgxpool.Pool) ([]*models.Mailbox, error) {
	rows, err := pool.Query(ctx, `
		SELECT `+mailboxColumns+`
		FROM mailboxes
		WHERE status = $1
		ORDER BY id
	`, models.MailboxActive)

	if err != nil {
		return nil, fmt.Errorf("failed to list mailboxes: %w", err)
	}
	defer rows.Close()

	var mailboxes []*models.Mailbox
	for rows.Next() {
		mb, err := scanMailbox(rows)
		if err != nil {
			return nil, err
		}
		mailboxes = append(mailboxes, mb)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating mailboxes: %w", err)
	}

	return mailboxes, nil
}

// SaveMailbox inserts a mailbox row. Mailboxes are normally created by the
// external API; this exists for tooling and tests.
func SaveMailbox(ctx context.Context, pool *pgxpool.Pool, mb *models.Mailbox) error {
	_, err := pool.Exec(ctx, `
		INSERT INTO mailboxes (
			id, user_id, imap_host, imap_port, imap_username,
			encrypted_password, status, last_synced_uid, last_synced_at, last_error
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		mb.ID,
		mb.UserID,
		mb.IMAPHost,
		mb.IMAPPort,
		mb.IMAPUsername,
		mb.EncryptedPassword,
		mb.Status,
		mb.LastSyncedUID,
		mb.LastSyncedAt,
		mb.LastError,
	)

	if err != nil {
		return fmt.Errorf("failed to save mailbox: %w", err)
	}
	return nil
}

// UpdateMailbox applies a partial update to the sync-owned columns.
func UpdateMailbox(ctx context.Context, pool *pgxpool.Pool, id string, update MailboxUpdate) error {
	tag, err := pool.Exec(ctx, `
		UPDATE mailboxes SET
			last_synced_uid = COALESCE($2, last_synced_uid),
			last_synced_at = COALESCE($3, last_synced_at),
			status = COALESCE($4, status),
			last_error = CASE WHEN $6 THEN NULL ELSE COALESCE($5, last_error) END
		WHERE id = $1
	`,
		id,
		update.LastSyncedUID,
		update.LastSyncedAt,
		update.Status,
		update.LastError,
		update.ClearLastError,
	)

	if err != nil {
		return fmt.Errorf("failed to update mailbox: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrMailboxNotFound
	}
	return nil
}
