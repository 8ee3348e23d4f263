package internal

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// NotificationIDLength is the number of hex characters kept from the digest.
const NotificationIDLength = 16

// Notification is a device notification as delivered by the source, at
// least once.
type Notification struct {
	RawKey   string `json:"rawKey"`
	Source   string `json:"source"`
	Title    string `json:"title"`
	Body     string `json:"body"`
	PostedAt int64  `json:"postedAt"`
}

func (n Notification) ID() string {
	return NotificationID(n.RawKey, n.PostedAt)
}

func (n Notification) Fingerprint() string {
	return Fingerprint(n.RawKey, n.PostedAt)
}

// Text is what the reasoning service reads.
func (n Notification) Text() string {
	return strings.TrimSpace(n.Title + "\n" + n.Body)
}

func (n Notification) PostedTime() time.Time {
	return time.UnixMilli(n.PostedAt).UTC()
}

// NotificationID derives the stable dedup key of a notification.
func NotificationID(rawKey string, postedAt int64) string {
	return Fingerprint(rawKey, postedAt)[:NotificationIDLength]
}

// Fingerprint is the full digest behind NotificationID, kept to detect
// collisions of the truncated ID.
func Fingerprint(rawKey string, postedAt int64) string {
	sum := sha256.Sum256([]byte(rawKey + "|" + strconv.FormatInt(postedAt, 10)))
	return hex.EncodeToString(sum[:])
}

type NotificationOutcome string

func (o NotificationOutcome) String() string {
	return string(o)
}

var (
	OutcomeStored    NotificationOutcome = "stored"
	OutcomeIgnored   NotificationOutcome = "ignored"
	OutcomeNoEvent   NotificationOutcome = "no_event"
	OutcomeFailed    NotificationOutcome = "failed"
	OutcomeDuplicate NotificationOutcome = "duplicate"
)

// Terminal reports whether a re-delivered notification can be skipped.
func (o NotificationOutcome) Terminal() bool {
	return o != OutcomeFailed && o != ""
}

// NotificationRecord is an entry of the notification log.
type NotificationRecord struct {
	ID         string              `json:"id"`
	Source     string              `json:"source"`
	Title      string              `json:"title"`
	PostedAt   int64               `json:"postedAt"`
	ReceivedAt time.Time           `json:"receivedAt"`
	Outcome    NotificationOutcome `json:"outcome"`
	Error      string              `json:"error,omitempty"`
	Seq        int64               `json:"-"`
}
