// Package classify assigns each ingested message to one of a fixed set
// of categories. Classification is a pure function over the parsed
// message: same input, same output, no I/O.
package classify

import (
	"regexp"
	"strings"

	"github.com/mailsift/mailsift/internal/models"
)

// Confidence per category is fixed; rules are evaluated in priority
// order and the first match wins. BOUNCE dominates because the bounce
// branch of the pipeline depends on it; HUMAN comes last among the
// positive rules because its definition is mostly negative.
const (
	confidenceBounce        = 1.00
	confidenceTransactional = 0.90
	confidenceNotification  = 0.85
	confidenceNewsletter    = 0.75
	confidenceMarketing     = 0.80
	confidenceHuman         = 0.70
)

var (
	bounceFromSubstrings = []string{"mailer-daemon", "postmaster", "mail-daemon"}

	bounceSubjectRe = regexp.MustCompile(`(?i)undelivered|failure notice|returned mail|delivery status notification|mail delivery failed|undeliverable|bounce|permanent error|delivery failure`)

	transactionalFromRe = regexp.MustCompile(`(?i)\b(?:noreply|no-reply|notifications?|notify|support|security|billing|invoices?|receipts?|orders?|accounts?|team)@`)

	transactionalSubjectRe = regexp.MustCompile(`(?i)password reset|reset your password|(?:verify|confirm) your email|email verification|order confirmation|order #\d+|receipt|invoice|payment received|subscription|welcome to|account created|security alert|suspicious activity`)

	notificationFromRe = regexp.MustCompile(`(?i)\b(?:notifications?|alerts?|updates?|activity|digest)@`)

	notificationSubjectRe = regexp.MustCompile(`(?i)activity on|you have \d+ new|new (?:comment|reply|message|mention)|reminder:|upcoming|(?:daily|weekly|monthly) (?:summary|digest|report)|someone (?:liked|commented|shared)|\d+ new notification`)

	newsletterSubjectRe = regexp.MustCompile(`(?i)newsletter|weekly roundup|this week in|edition #\d+|volume \d+`)

	marketingSubjectRe = regexp.MustCompile(`(?i)\bsale\b|\d+% off|discount|limited time|exclusive offer|deal of the day|free shipping|(?:buy|shop) now|don'?t miss|last chance|special offer|promotion`)

	humanFromExclusions = []string{"noreply", "no-reply", "notifications", "alert", "updates", "newsletter", "marketing", "info", "support"}

	urlRe = regexp.MustCompile(`(?i)https?://`)
)

// Classify returns the category of a message and the confidence of that
// assignment.
func Classify(msg *models.RawMessage) (models.Category, float64) {
	from := strings.ToLower(msg.From)
	subject := msg.Subject

	if isBounce(from, subject) {
		return models.CategoryBounce, confidenceBounce
	}

	hasListUnsubscribe := msg.HasHeader("List-Unsubscribe")

	if !hasListUnsubscribe &&
		(transactionalFromRe.MatchString(from) || transactionalSubjectRe.MatchString(subject)) {
		return models.CategoryTransactional, confidenceTransactional
	}

	if notificationFromRe.MatchString(from) || notificationSubjectRe.MatchString(subject) {
		return models.CategoryNotification, confidenceNotification
	}

	// Newsletters are list mail with both list headers; plain
	// List-Unsubscribe mail falls through to MARKETING below.
	if (hasListUnsubscribe && msg.HasHeader("List-Post")) || newsletterSubjectRe.MatchString(subject) {
		return models.CategoryNewsletter, confidenceNewsletter
	}

	if hasListUnsubscribe ||
		(marketingSubjectRe.MatchString(subject) && countURLs(msg.Body) > 5) {
		return models.CategoryMarketing, confidenceMarketing
	}

	if isHuman(msg, from, hasListUnsubscribe) {
		return models.CategoryHuman, confidenceHuman
	}

	return models.CategoryUnknown, 0.0
}

func isBounce(from, subject string) bool {
	for _, s := range bounceFromSubstrings {
		if strings.Contains(from, s) {
			return true
		}
	}
	return bounceSubjectRe.MatchString(subject)
}

func isHuman(msg *models.RawMessage, from string, hasListUnsubscribe bool) bool {
	for _, s := range humanFromExclusions {
		if strings.Contains(from, s) {
			return false
		}
	}

	if hasListUnsubscribe || msg.HasHeader("List-Id") {
		return false
	}

	replyTo := strings.ToLower(msg.Header("Reply-To"))
	personalReplyTo := replyTo != "" &&
		!strings.Contains(replyTo, "noreply") &&
		!strings.Contains(replyTo, "no-reply")

	singleRecipient := len(msg.To)+len(msg.CC) == 1

	return personalReplyTo || singleRecipient
}

func countURLs(body string) int {
	return len(urlRe.FindAllStringIndex(body, -1))
}
