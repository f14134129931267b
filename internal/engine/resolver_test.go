package engine

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailsift/mailsift/internal/models"
)

func TestNormalizeSubject(t *testing.T) {
	tests := []struct {
		name    string
		subject string
		want    string
	}{
		{"plain", "Quarterly report", "quarterly report"},
		{"reply prefix", "Re: Quarterly report", "quarterly report"},
		{"forward prefix", "Fwd: Quarterly report", "quarterly report"},
		{"fw prefix", "FW: Quarterly report", "quarterly report"},
		{"stacked prefixes", "Re: Fwd: Re: Quarterly report", "quarterly report"},
		{"external tag", "[EXTERNAL] Quarterly report", "quarterly report"},
		{"tag after prefix", "Re: [External] Quarterly report", "quarterly report"},
		{"whitespace collapse", "Quarterly   report\t2026", "quarterly report 2026"},
		{"empty", "", ""},
		{"only prefix", "Re:", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeSubject(tt.subject)
			assert.Equal(t, tt.want, got)

			// Normalization must be idempotent.
			assert.Equal(t, got, NormalizeSubject(got))
		})
	}
}

func testMailbox() *models.Mailbox {
	return &models.Mailbox{
		ID:     "mb-1",
		UserID: "user-1",
		Status: models.MailboxActive,
	}
}

func testResolver(store Store) *Resolver {
	return NewResolver(store, zerolog.Nop())
}

func TestResolveByInReplyTo(t *testing.T) {
	store := newFakeStore()
	ctx := context.Background()
	now := time.Now()

	store.emails = append(store.emails, &models.Email{
		ID:        "e-1",
		MailboxID: "mb-1",
		MessageID: "<root@example.com>",
		ThreadID:  "thread-1",
	})

	threadID, err := testResolver(store).Resolve(ctx, testMailbox(), &models.RawMessage{
		UID:       2,
		MessageID: "<reply@example.com>",
		Subject:   "Re: anything at all",
		InReplyTo: "<root@example.com>",
	}, now)

	require.NoError(t, err)
	assert.Equal(t, "thread-1", threadID)
	assert.Equal(t, 0, store.threadCount())
}

func TestResolveByReferences(t *testing.T) {
	store := newFakeStore()
	ctx := context.Background()
	now := time.Now()

	store.emails = append(store.emails, &models.Email{
		ID:        "e-1",
		MailboxID: "mb-1",
		MessageID: "<ancestor@example.com>",
		ThreadID:  "thread-1",
	})

	// In-Reply-To points at a message we never saw; the References
	// chain still finds the thread.
	threadID, err := testResolver(store).Resolve(ctx, testMailbox(), &models.RawMessage{
		UID:        3,
		MessageID:  "<leaf@example.com>",
		Subject:    "Re: deep thread",
		InReplyTo:  "<missing@example.com>",
		References: []string{"<ancestor@example.com>", "<missing@example.com>"},
	}, now)

	require.NoError(t, err)
	assert.Equal(t, "thread-1", threadID)
}

func TestResolveBySubjectWithinWindow(t *testing.T) {
	store := newFakeStore()
	ctx := context.Background()
	now := time.Now()

	store.threads["thread-1"] = &models.Thread{
		ID:                "thread-1",
		MailboxID:         "mb-1",
		NormalizedSubject: "project kickoff",
		LastMessageAt:     now.Add(-48 * time.Hour),
	}

	threadID, err := testResolver(store).Resolve(ctx, testMailbox(), &models.RawMessage{
		UID:       4,
		MessageID: "<m@example.com>",
		Subject:   "Re: Project Kickoff",
	}, now)

	require.NoError(t, err)
	assert.Equal(t, "thread-1", threadID)
}

func TestResolveSubjectOutsideWindowCreatesThread(t *testing.T) {
	store := newFakeStore()
	ctx := context.Background()
	now := time.Now()

	store.threads["thread-1"] = &models.Thread{
		ID:                "thread-1",
		MailboxID:         "mb-1",
		NormalizedSubject: "project kickoff",
		LastMessageAt:     now.Add(-8 * 24 * time.Hour),
	}

	threadID, err := testResolver(store).Resolve(ctx, testMailbox(), &models.RawMessage{
		UID:       5,
		MessageID: "<m@example.com>",
		Subject:   "Re: Project Kickoff",
	}, now)

	require.NoError(t, err)
	assert.NotEqual(t, "thread-1", threadID)
	assert.Equal(t, 2, store.threadCount())
}

func TestResolveShortSubjectNeverMatches(t *testing.T) {
	store := newFakeStore()
	ctx := context.Background()
	now := time.Now()

	store.threads["thread-1"] = &models.Thread{
		ID:                "thread-1",
		MailboxID:         "mb-1",
		NormalizedSubject: "hi",
		LastMessageAt:     now.Add(-time.Hour),
	}

	threadID, err := testResolver(store).Resolve(ctx, testMailbox(), &models.RawMessage{
		UID:       6,
		MessageID: "<m@example.com>",
		Subject:   "hi",
	}, now)

	require.NoError(t, err)
	assert.NotEqual(t, "thread-1", threadID)
}

func TestResolveCreatesThreadWithMetadata(t *testing.T) {
	store := newFakeStore()
	ctx := context.Background()
	now := time.Now()
	receivedAt := now.Add(-time.Minute)

	threadID, err := testResolver(store).Resolve(ctx, testMailbox(), &models.RawMessage{
		UID:        7,
		MessageID:  "<fresh@example.com>",
		Subject:    "Re: New discussion",
		From:       "Alice <alice@example.com>",
		To:         []string{"bob@example.com", "Alice <alice@example.com>"},
		CC:         []string{"carol@example.com"},
		ReceivedAt: receivedAt,
	}, now)

	require.NoError(t, err)
	th := store.threads[threadID]
	require.NotNil(t, th)
	assert.Equal(t, "Re: New discussion", th.Subject)
	assert.Equal(t, "new discussion", th.NormalizedSubject)
	assert.Equal(t, []string{"alice@example.com", "bob@example.com", "carol@example.com"}, th.Participants)
	assert.Equal(t, 1, th.MessageCount)
	assert.Equal(t, receivedAt, th.FirstMessageAt)
	assert.Equal(t, receivedAt, th.LastMessageAt)
	assert.True(t, th.IsUnread)
}

func TestResolveEmptySubjectPlaceholder(t *testing.T) {
	store := newFakeStore()
	ctx := context.Background()

	threadID, err := testResolver(store).Resolve(ctx, testMailbox(), &models.RawMessage{
		UID:        8,
		MessageID:  "<empty@example.com>",
		ReceivedAt: time.Now(),
	}, time.Now())

	require.NoError(t, err)
	assert.Equal(t, "(No Subject)", store.threads[threadID].Subject)
}
