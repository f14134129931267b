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

func TestInsertAndGetThread(t *testing.T) {
	pool := testutil.NewTestDB(t)
	defer pool.Close()

	ctx := context.Background()
	mb := newTestMailbox()
	if err := SaveMailbox(ctx, pool, mb); err != nil {
		t.Fatalf("SaveMailbox failed: %v", err)
	}

	now := time.Now().UTC().Truncate(time.Microsecond)
	thread := &models.Thread{
		ID:                uuid.NewString(),
		UserID:            mb.UserID,
		MailboxID:         mb.ID,
		Subject:           "Re: Project Kickoff",
		NormalizedSubject: "project kickoff",
		Participants:      []string{"alice@example.com", "bob@example.com"},
		MessageCount:      1,
		FirstMessageAt:    now,
		LastMessageAt:     now,
		IsUnread:          true,
	}

	if err := InsertThread(ctx, pool, thread); err != nil {
		t.Fatalf("InsertThread failed: %v", err)
	}

	retrieved, err := GetThread(ctx, pool, thread.ID)
	if err != nil {
		t.Fatalf("GetThread failed: %v", err)
	}
	if retrieved.NormalizedSubject != "project kickoff" {
		t.Errorf("Expected normalized subject 'project kickoff', got %q", retrieved.NormalizedSubject)
	}
	if len(retrieved.Participants) != 2 {
		t.Errorf("Expected 2 participants, got %d", len(retrieved.Participants))
	}
	if !retrieved.IsUnread {
		t.Error("Expected IsUnread true")
	}
}

func TestFindThreadByNormalizedSubject(t *testing.T) {
	pool := testutil.NewTestDB(t)
	defer pool.Close()

	ctx := context.Background()
	mb := newTestMailbox()
	if err := SaveMailbox(ctx, pool, mb); err != nil {
		t.Fatalf("SaveMailbox failed: %v", err)
	}

	now := time.Now().UTC().Truncate(time.Microsecond)

	older := &models.Thread{
		ID:                uuid.NewString(),
		UserID:            mb.UserID,
		MailboxID:         mb.ID,
		Subject:           "Project Kickoff",
		NormalizedSubject: "project kickoff",
		FirstMessageAt:    now.Add(-72 * time.Hour),
		LastMessageAt:     now.Add(-72 * time.Hour),
	}
	newer := &models.Thread{
		ID:                uuid.NewString(),
		UserID:            mb.UserID,
		MailboxID:         mb.ID,
		Subject:           "Re: Project Kickoff",
		NormalizedSubject: "project kickoff",
		FirstMessageAt:    now.Add(-24 * time.Hour),
		LastMessageAt:     now.Add(-24 * time.Hour),
	}
	for _, th := range []*models.Thread{older, newer} {
		if err := InsertThread(ctx, pool, th); err != nil {
			t.Fatalf("InsertThread failed: %v", err)
		}
	}

	t.Run("picks most recently active match", func(t *testing.T) {
		found, err := FindThreadByNormalizedSubject(ctx, pool, mb.ID, "project kickoff", now.Add(-7*24*time.Hour))
		if err != nil {
			t.Fatalf("FindThreadByNormalizedSubject failed: %v", err)
		}
		if found.ID != newer.ID {
			t.Errorf("Expected thread %s, got %s", newer.ID, found.ID)
		}
	})

	t.Run("window excludes stale threads", func(t *testing.T) {
		_, err := FindThreadByNormalizedSubject(ctx, pool, mb.ID, "project kickoff", now.Add(-time.Hour))
		if !errors.Is(err, ErrThreadNotFound) {
			t.Errorf("Expected ErrThreadNotFound, got %v", err)
		}
	})

	t.Run("no match", func(t *testing.T) {
		_, err := FindThreadByNormalizedSubject(ctx, pool, mb.ID, "something else", now.Add(-7*24*time.Hour))
		if !errors.Is(err, ErrThreadNotFound) {
			t.Errorf("Expected ErrThreadNotFound, got %v", err)
		}
	})
}

func TestUpdateThreadStats(t *testing.T) {
	pool := testutil.NewTestDB(t)
	defer pool.Close()

	ctx := context.Background()
	mb := newTestMailbox()
	if err := SaveMailbox(ctx, pool, mb); err != nil {
		t.Fatalf("SaveMailbox failed: %v", err)
	}

	now := time.Now().UTC().Truncate(time.Microsecond)
	thread := &models.Thread{
		ID:                uuid.NewString(),
		UserID:            mb.UserID,
		MailboxID:         mb.ID,
		Subject:           "Test",
		NormalizedSubject: "test",
		MessageCount:      1,
		FirstMessageAt:    now,
		LastMessageAt:     now,
	}
	if err := InsertThread(ctx, pool, thread); err != nil {
		t.Fatalf("InsertThread failed: %v", err)
	}

	later := now.Add(2 * time.Hour)
	participants := []string{"alice@example.com", "carol@example.com"}
	if err := UpdateThreadStats(ctx, pool, thread.ID, 3, later, participants, true); err != nil {
		t.Fatalf("UpdateThreadStats failed: %v", err)
	}

	retrieved, err := GetThread(ctx, pool, thread.ID)
	if err != nil {
		t.Fatalf("GetThread failed: %v", err)
	}
	if retrieved.MessageCount != 3 {
		t.Errorf("Expected MessageCount 3, got %d", retrieved.MessageCount)
	}
	if !retrieved.LastMessageAt.Equal(later) {
		t.Errorf("Expected LastMessageAt %v, got %v", later, retrieved.LastMessageAt)
	}
	if !retrieved.FirstMessageAt.Equal(now) {
		t.Errorf("FirstMessageAt changed unexpectedly: %v", retrieved.FirstMessageAt)
	}
	if len(retrieved.Participants) != 2 {
		t.Errorf("Expected 2 participants, got %d", len(retrieved.Participants))
	}

	if err := UpdateThreadStats(ctx, pool, uuid.NewString(), 1, now, nil, false); !errors.Is(err, ErrThreadNotFound) {
		t.Errorf("Expected ErrThreadNotFound, got %v", err)
	}
}
