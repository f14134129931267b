package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/mailsift/mailsift/internal/models"
	"github.com/mailsift/mailsift/internal/testutil"
)

func newTestMailbox() *models.Mailbox {
	return &models.Mailbox{
		ID:                uuid.NewString(),
		UserID:            uuid.NewString(),
		IMAPHost:          "imap.example.com",
		IMAPPort:          993,
		IMAPUsername:      "jane@example.com",
		EncryptedPassword: []byte("encrypted-password"),
		Status:            models.MailboxActive,
	}
}

func TestSaveAndGetMailbox(t *testing.T) {
	pool := testutil.NewTestDB(t)
	defer pool.Close()

	ctx := context.Background()
	mb := newTestMailbox()

	if err := SaveMailbox(ctx, pool, mb); err != nil {
		t.Fatalf("SaveMailbox failed: %v", err)
	}

	retrieved, err := GetMailbox(ctx, pool, mb.ID)
	if err != nil {
		t.Fatalf("GetMailbox failed: %v", err)
	}

	if retrieved.IMAPHost != mb.IMAPHost {
		t.Errorf("Expected IMAPHost %s, got %s", mb.IMAPHost, retrieved.IMAPHost)
	}
	if retrieved.Status != models.MailboxActive {
		t.Errorf("Expected status active, got %s", retrieved.Status)
	}
	if retrieved.LastSyncedUID != 0 {
		t.Errorf("Expected LastSyncedUID 0, got %d", retrieved.LastSyncedUID)
	}
	if string(retrieved.EncryptedPassword) != "encrypted-password" {
		t.Error("Encrypted password did not round-trip")
	}
}

func TestGetMailboxNotFound(t *testing.T) {
	pool := testutil.NewTestDB(t)
	defer pool.Close()

	_, err := GetMailbox(context.Background(), pool, uuid.NewString())
	if !errors.Is(err, ErrMailboxNotFound) {
		t.Errorf("Expected ErrMailboxNotFound, got %v", err)
	}
}

func TestListActiveMailboxes(t *testing.T) {
	pool := testutil.NewTestDB(t)
	defer pool.Close()

	ctx := context.Background()

	active := newTestMailbox()
	if err := SaveMailbox(ctx, pool, active); err != nil {
		t.Fatalf("SaveMailbox failed: %v", err)
	}

	errored := newTestMailbox()
	errored.Status = models.MailboxError
	if err := SaveMailbox(ctx, pool, errored); err != nil {
		t.Fatalf("SaveMailbox failed: %v", err)
	}

	disabled := newTestMailbox()
	disabled.Status = models.MailboxDisabled
	if err := SaveMailbox(ctx, pool, disabled); err != nil {
		t.Fatalf("SaveMailbox failed: %v", err)
	}

	mailboxes, err := ListActiveMailboxes(ctx, pool)
	if err != nil {
		t.Fatalf("ListActiveMailboxes failed: %v", err)
	}

	if len(mailboxes) != 1 {
		t.Fatalf("Expected 1 active mailbox, got %d", len(mailboxes))
	}
	if mailboxes[0].ID != active.ID {
		t.Errorf("Expected mailbox %s, got %s", active.ID, mailboxes[0].ID)
	}
}

func TestUpdateMailbox(t *testing.T) {
	pool := testutil.NewTestDB(t)
	defer pool.Close()

	ctx := context.Background()
	mb := newTestMailbox()
	if err := SaveMailbox(ctx, pool, mb); err != nil {
		t.Fatalf("SaveMailbox failed: %v", err)
	}

	t.Run("partial update leaves other columns alone", func(t *testing.T) {
		uid := uint32(42)
		at := time.Now().UTC().Truncate(time.Microsecond)

		err := UpdateMailbox(ctx, pool, mb.ID, MailboxUpdate{
			LastSyncedUID: &uid,
			LastSyncedAt:  &at,
		})
		if err != nil {
			t.Fatalf("UpdateMailbox failed: %v", err)
		}

		retrieved, err := GetMailbox(ctx, pool, mb.ID)
		if err != nil {
			t.Fatalf("GetMailbox failed: %v", err)
		}
		if retrieved.LastSyncedUID != 42 {
			t.Errorf("Expected LastSyncedUID 42, got %d", retrieved.LastSyncedUID)
		}
		if retrieved.LastSyncedAt == nil || !retrieved.LastSyncedAt.Equal(at) {
			t.Errorf("Expected LastSyncedAt %v, got %v", at, retrieved.LastSyncedAt)
		}
		if retrieved.Status != models.MailboxActive {
			t.Errorf("Status changed unexpectedly to %s", retrieved.Status)
		}
	})

	t.Run("sets and clears last_error", func(t *testing.T) {
		status := models.MailboxError
		lastError := "LOGIN failed"

		err := UpdateMailbox(ctx, pool, mb.ID, MailboxUpdate{
			Status:    &status,
			LastError: &lastError,
		})
		if err != nil {
			t.Fatalf("UpdateMailbox failed: %v", err)
		}

		retrieved, _ := GetMailbox(ctx, pool, mb.ID)
		if retrieved.Status != models.MailboxError {
			t.Errorf("Expected status error, got %s", retrieved.Status)
		}
		if retrieved.LastError == nil || *retrieved.LastError != lastError {
			t.Errorf("Expected LastError %q, got %v", lastError, retrieved.LastError)
		}

		active := models.MailboxActive
		err = UpdateMailbox(ctx, pool, mb.ID, MailboxUpdate{
			Status:         &active,
			ClearLastError: true,
		})
		if err != nil {
			t.Fatalf("UpdateMailbox failed: %v", err)
		}

		retrieved, _ = GetMailbox(ctx, pool, mb.ID)
		if retrieved.LastError != nil {
			t.Errorf("Expected LastError cleared, got %v", *retrieved.LastError)
		}
	})

	t.Run("not found", func(t *testing.T) {
		err := UpdateMailbox(ctx, pool, uuid.NewString(), MailboxUpdate{ClearLastError: true})
		if !errors.Is(err, ErrMailboxNotFound) {
			t.Errorf("Expected ErrMailboxNotFound, got %v", err)
		}
	})
}
