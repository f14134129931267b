package engine

import (
	"context"
	"sync"
	"time"

	"github.com/mailsift/mailsift/internal/db"
	"github.com/mailsift/mailsift/internal/models"
)

// fakeStore is an in-memory Store for engine tests. It mirrors the
// database semantics the engine relies on: sentinel not-found errors,
// ErrDuplicateEmail on either unique email key, and atomic bounce
// increments.
type fakeStore struct {
	mu sync.Mutex

	mailboxes map[string]*models.Mailbox
	emails    []*models.Email
	threads   map[string]*models.Thread
	bounces   map[string]*models.Bounce
	events    []*models.BounceEvent

	failInsertEmail map[uint32]error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		mailboxes:       map[string]*models.Mailbox{},
		threads:         map[string]*models.Thread{},
		bounces:         map[string]*models.Bounce{},
		failInsertEmail: map[uint32]error{},
	}
}

var _ Store = (*fakeStore)(nil)

func (f *fakeStore) GetMailbox(_ context.Context, id string) (*models.Mailbox, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	mb, ok := f.mailboxes[id]
	if !ok {
		return nil, db.ErrMailboxNotFound
	}
	copied := *mb
	return &copied, nil
}

func (f *fakeStore) ListActiveMailboxes(_ context.Context) ([]*models.Mailbox, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []*models.Mailbox
	for _, mb := range f.mailboxes {
		if mb.Status == models.MailboxActive {
			copied := *mb
			result = append(result, &copied)
		}
	}
	return result, nil
}

func (f *fakeStore) UpdateMailbox(_ context.Context, id string, update db.MailboxUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	mb, ok := f.mailboxes[id]
	if !ok {
		return db.ErrMailboxNotFound
	}
	if update.LastSyncedUID != nil {
		mb.LastSyncedUID = *update.LastSyncedUID
	}
	if update.LastSyncedAt != nil {
		at := *update.LastSyncedAt
		mb.LastSyncedAt = &at
	}
	if update.Status != nil {
		mb.Status = *update.Status
	}
	if update.ClearLastError {
		mb.LastError = nil
	} else if update.LastError != nil {
		msg := *update.LastError
		mb.LastError = &msg
	}
	return nil
}

func (f *fakeStore) FindEmail(_ context.Context, mailboxID string, uid uint32) (*models.Email, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.emails {
		if e.MailboxID == mailboxID && e.UID == uid {
			copied := *e
			return &copied, nil
		}
	}
	return nil, db.ErrEmailNotFound
}

func (f *fakeStore) FindEmailByMessageID(_ context.Context, mailboxID, messageID string) (*models.Email, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.emails {
		if e.MailboxID == mailboxID && e.MessageID == messageID {
			copied := *e
			return &copied, nil
		}
	}
	return nil, db.ErrEmailNotFound
}

func (f *fakeStore) FindEmailsByMessageIDs(_ context.Context, mailboxID string, ids []string) ([]*models.Email, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	want := map[string]bool{}
	for _, id := range ids {
		want[id] = true
	}
	var result []*models.Email
	for _, e := range f.emails {
		if e.MailboxID == mailboxID && want[e.MessageID] {
			copied := *e
			result = append(result, &copied)
		}
	}
	return result, nil
}

func (f *fakeStore) InsertEmail(_ context.Context, email *models.Email) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failInsertEmail[email.UID]; ok {
		return err
	}
	for _, e := range f.emails {
		if e.MailboxID == email.MailboxID && (e.UID == email.UID || e.MessageID == email.MessageID) {
			return db.ErrDuplicateEmail
		}
	}
	copied := *email
	f.emails = append(f.emails, &copied)
	return nil
}

func (f *fakeStore) ListEmailsInThread(_ context.Context, threadID string) ([]*models.Email, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []*models.Email
	for _, e := range f.emails {
		if e.ThreadID == threadID {
			copied := *e
			result = append(result, &copied)
		}
	}
	return result, nil
}

func (f *fakeStore) InsertThread(_ context.Context, thread *models.Thread) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *thread
	f.threads[thread.ID] = &copied
	return nil
}

func (f *fakeStore) FindThreadByNormalizedSubject(_ context.Context, mailboxID, normalized string, since time.Time) (*models.Thread, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var best *models.Thread
	for _, th := range f.threads {
		if th.MailboxID != mailboxID || th.NormalizedSubject != normalized {
			continue
		}
		if th.LastMessageAt.Before(since) {
			continue
		}
		if best == nil || th.LastMessageAt.After(best.LastMessageAt) {
			best = th
		}
	}
	if best == nil {
		return nil, db.ErrThreadNotFound
	}
	copied := *best
	return &copied, nil
}

func (f *fakeStore) UpdateThreadStats(_ context.Context, id string, messageCount int, lastMessageAt time.Time, participants []string, isUnread bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	th, ok := f.threads[id]
	if !ok {
		return db.ErrThreadNotFound
	}
	th.MessageCount = messageCount
	th.LastMessageAt = lastMessageAt
	th.Participants = participants
	th.IsUnread = isUnread
	return nil
}

func (f *fakeStore) FindBounce(_ context.Context, userID, mailboxID, email string) (*models.Bounce, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, b := range f.bounces {
		if b.UserID == userID && b.MailboxID == mailboxID && b.Email == email {
			copied := *b
			return &copied, nil
		}
	}
	return nil, db.ErrBounceNotFound
}

func (f *fakeStore) InsertBounce(_ context.Context, bounce *models.Bounce) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *bounce
	f.bounces[bounce.ID] = &copied
	return nil
}

func (f *fakeStore) IncrementBounceFailure(_ context.Context, bounceID string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bounces[bounceID]
	if !ok {
		return db.ErrBounceNotFound
	}
	b.FailureCount++
	b.LastFailedAt = at
	return nil
}

func (f *fakeStore) InsertBounceEvent(_ context.Context, event *models.BounceEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *event
	f.events = append(f.events, &copied)
	return nil
}

func (f *fakeStore) addMailbox(mb *models.Mailbox) {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *mb
	f.mailboxes[mb.ID] = &copied
}

func (f *fakeStore) mailbox(id string) *models.Mailbox {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *f.mailboxes[id]
	return &copied
}

func (f *fakeStore) emailCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.emails)
}

func (f *fakeStore) threadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.threads)
}
