package internal

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"
)

func TestNotificationIDIsDeterministic(t *testing.T) {
	n := Notification{RawKey: "com.app|key1", PostedAt: 1700000000000}

	first := n.ID()
	for i := 0; i < 10; i++ {
		if got := NotificationID("com.app|key1", 1700000000000); got != first {
			t.Fatalf("expected %s on call %d, got %s", first, i, got)
		}
	}
	if len(first) != NotificationIDLength {
		t.Fatalf("expected %d chars, got %q", NotificationIDLength, first)
	}

	sum := sha256.Sum256([]byte("com.app|key1|1700000000000"))
	if want := hex.EncodeToString(sum[:])[:16]; first != want {
		t.Fatalf("expected %s, got %s", want, first)
	}
}

func TestNotificationIDDependsOnPostedAt(t *testing.T) {
	a := NotificationID("com.app|key1", 1700000000000)
	b := NotificationID("com.app|key1", 1700000000001)
	if a == b {
		t.Fatalf("expected different ids for different postedAt, got %s twice", a)
	}
	if Fingerprint("com.app|key1", 1700000000000)[:16] != a {
		t.Fatalf("expected id to be a prefix of the fingerprint")
	}
}

func TestNotificationText(t *testing.T) {
	n := Notification{Title: "Dr. Smith", Body: "Your appointment is on March 10 at 9am"}
	if got := n.Text(); got != "Dr. Smith\nYour appointment is on March 10 at 9am" {
		t.Fatalf("unexpected text %q", got)
	}
	if got := (Notification{Body: "only body"}).Text(); got != "only body" {
		t.Fatalf("unexpected text %q", got)
	}
}
