package imap

import (
	"context"
	"sort"
	"time"

	"github.com/emersion/go-imap"
	"github.com/rs/zerolog"

	"github.com/mailsift/mailsift/internal/models"
)

// Options bounds a single fetch call: at most BatchSize messages, no
// message older than SinceDays, and the three connection timeouts.
type Options struct {
	BatchSize       int
	SinceDays       int
	UseTLS          bool
	ConnectTimeout  time.Duration
	GreetingTimeout time.Duration
	SocketTimeout   time.Duration
}

// Fetcher opens one authenticated connection per call, streams new
// messages from INBOX in UID-ascending order and parses each into a
// RawMessage. It performs no database I/O.
type Fetcher struct {
	logger zerolog.Logger
	opts   Options
}

// NewFetcher creates a Fetcher with the given options.
func NewFetcher(logger zerolog.Logger, opts Options) *Fetcher {
	return &Fetcher{
		logger: logger.With().Str("component", "fetcher").Logger(),
		opts:   opts,
	}
}

// SearchCriteria builds the UID search for an incremental sync: messages
// above the checkpoint, within the SINCE recency window. A first sync
// (lastUID == 0) uses SINCE alone, never a UID range starting at 0.
func SearchCriteria(lastUID uint32, sinceDays int, now time.Time) *imap.SearchCriteria {
	criteria := imap.NewSearchCriteria()
	criteria.Since = now.AddDate(0, 0, -sinceDays)

	if lastUID > 0 {
		set := new(imap.SeqSet)
		set.AddRange(lastUID+1, 0) // 0 means no upper bound
		criteria.Uid = set
	}

	return criteria
}

// Fetch returns up to BatchSize messages from INBOX with UID > lastUID,
// in UID-ascending order. Messages that fail to parse are logged and
// skipped; connection-level failures return TransientError and login
// failures return AuthError.
func (f *Fetcher) Fetch(ctx context.Context, mailbox *models.Mailbox, password string, lastUID uint32) ([]*models.RawMessage, error) {
	c, err := Connect(mailbox.IMAPHost, mailbox.IMAPPort, DialOptions{
		UseTLS:          f.opts.UseTLS,
		ConnectTimeout:  f.opts.ConnectTimeout,
		GreetingTimeout: f.opts.GreetingTimeout,
		SocketTimeout:   f.opts.SocketTimeout,
	})
	if err != nil {
		return nil, &TransientError{Err: err}
	}
	defer func() {
		_ = c.Logout()
	}()

	if err := Login(c, mailbox.IMAPUsername, password); err != nil {
		return nil, &AuthError{Err: err}
	}

	mbox, err := c.Select("INBOX", true)
	if err != nil {
		return nil, &TransientError{Err: err}
	}

	f.logger.Debug().
		Str("mailbox_id", mailbox.ID).
		Uint32("total_messages", mbox.Messages).
		Uint32("last_uid", lastUID).
		Msg("Selected INBOX")

	if err := ctx.Err(); err != nil {
		return nil, &TransientError{Err: err}
	}

	uids, err := c.UidSearch(SearchCriteria(lastUID, f.opts.SinceDays, time.Now()))
	if err != nil {
		return nil, &TransientError{Err: err}
	}

	if len(uids) == 0 {
		return nil, nil
	}

	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })

	if len(uids) > f.opts.BatchSize {
		f.logger.Info().
			Str("mailbox_id", mailbox.ID).
			Int("matched", len(uids)).
			Int("batch_size", f.opts.BatchSize).
			Msg("Batch bounded, remaining messages deferred to next cycle")
		uids = uids[:f.opts.BatchSize]
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uids...)

	// Peek keeps the engine from flipping \Seen on messages the user
	// has not opened.
	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{
		imap.FetchEnvelope,
		imap.FetchBodyStructure,
		imap.FetchUid,
		section.FetchItem(),
	}

	messages := make(chan *imap.Message, len(uids))
	done := make(chan error, 1)

	go func() {
		done <- c.UidFetch(seqSet, items, messages)
	}()

	var result []*models.RawMessage
	for msg := range messages {
		parsed, err := ParseMessage(msg, section, mailbox.IMAPHost)
		if err != nil {
			f.logger.Error().
				Err(err).
				Str("mailbox_id", mailbox.ID).
				Uint32("uid", msg.Uid).
				Msg("Failed to parse message, skipping")
			continue
		}
		result = append(result, parsed)
	}

	if err := <-done; err != nil {
		return nil, &TransientError{Err: err}
	}

	sort.Slice(result, func(i, j int) bool { return result[i].UID < result[j].UID })

	return result, nil
}
