package models

import (
	"strings"
	"time"
)

// MailboxStatus is the sync health of a mailbox.
type MailboxStatus string

const (
	MailboxActive   MailboxStatus = "active"
	MailboxError    MailboxStatus = "error"
	MailboxDisabled MailboxStatus = "disabled"
)

// Category is the classification assigned to an ingested email.
type Category string

const (
	CategoryBounce        Category = "bounce"
	CategoryTransactional Category = "transactional"
	CategoryNotification  Category = "notification"
	CategoryNewsletter    Category = "newsletter"
	CategoryMarketing     Category = "marketing"
	CategoryHuman         Category = "human"
	CategoryUnknown       Category = "unknown"
)

// BounceType distinguishes permanent from transient delivery failures.
type BounceType string

const (
	BounceHard    BounceType = "hard"
	BounceSoft    BounceType = "soft"
	BounceUnknown BounceType = "unknown"
)

// Mailbox is a user-owned IMAP account the engine syncs.
// The engine reads the connection config and writes only the
// checkpoint, timestamps, status and last_error.
type Mailbox struct {
	ID                string
	UserID            string
	IMAPHost          string
	IMAPPort          int
	IMAPUsername      string
	EncryptedPassword []byte
	Status            MailboxStatus
	LastSyncedUID     uint32
	LastSyncedAt      *time.Time
	LastError         *string
}

// Email is one ingested message. (mailbox_id, uid) and
// (mailbox_id, message_id) are unique.
type Email struct {
	ID                 string
	UserID             string
	MailboxID          string
	UID                uint32
	MessageID          string
	Subject            string
	FromAddress        string
	FromName           string
	ToAddresses        []string
	CCAddresses        []string
	BCCAddresses       []string
	Category           Category
	CategoryConfidence float64
	ThreadID           string
	InReplyTo          string
	References         []string
	BodyPreview        string
	HasAttachments     bool
	IsRead             bool
	IsStarred          bool
	IsArchived         bool
	ReceivedAt         time.Time
	SizeBytes          int64
	Headers            map[string]string
}

// Thread is a conversation. Aggregate fields are recomputed from the
// member emails after every insert; FirstMessageAt never changes.
type Thread struct {
	ID                string
	UserID            string
	MailboxID         string
	Subject           string
	NormalizedSubject string
	Participants      []string
	MessageCount      int
	FirstMessageAt    time.Time
	LastMessageAt     time.Time
	IsUnread          bool
	IsArchived        bool
}

// Bounce is the per-(user, mailbox, recipient) delivery failure aggregate.
type Bounce struct {
	ID            string
	UserID        string
	MailboxID     string
	Email         string
	BounceType    BounceType
	ErrorCode     string
	Reason        string
	FailureCount  int
	FirstFailedAt time.Time
	LastFailedAt  time.Time
}

// BounceEvent is one append-only record per processed bounce message.
type BounceEvent struct {
	ID         string
	BounceID   string
	UserID     string
	MessageUID uint32
	ErrorCode  string
	Diagnostic string
	OccurredAt time.Time
}

// RawMessage is a fetched IMAP message normalized for the pipeline.
// Body holds the plain-text part when present, else the HTML part.
type RawMessage struct {
	UID            uint32
	MessageID      string
	Subject        string
	From           string
	To             []string
	CC             []string
	BCC            []string
	Body           string
	Headers        map[string]string
	ReceivedAt     time.Time
	InReplyTo      string
	References     []string
	HasAttachments bool
	SizeBytes      int64
}

// Header returns the named header value with case-insensitive lookup.
func (m *RawMessage) Header(name string) string {
	if v, ok := m.Headers[name]; ok {
		return v
	}
	for k, v := range m.Headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// HasHeader reports whether the named header is present, ignoring case.
func (m *RawMessage) HasHeader(name string) bool {
	if _, ok := m.Headers[name]; ok {
		return true
	}
	for k := range m.Headers {
		if strings.EqualFold(k, name) {
			return true
		}
	}
	return false
}
