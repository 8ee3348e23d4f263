package calendar

import (
	"context"
	"testing"

	"github.com/guilherme-santos/notifcal/internal"
)

type nopProvider struct{}

func (nopProvider) UpdateEvent(context.Context, *internal.Account, *internal.Event) error { return nil }
func (nopProvider) InsertEvent(context.Context, *internal.Account, *internal.Event) error { return nil }
func (nopProvider) DeleteEvent(context.Context, *internal.Account, string) error          { return nil }

func TestMux(t *testing.T) {
	mux := NewMux()
	mux.Register(internal.PlatformGoogle, nopProvider{})
	mux.Register(internal.PlatformCalDAV, nopProvider{})

	if _, err := mux.Get(internal.PlatformGoogle); err != nil {
		t.Fatalf("expected google provider, got %v", err)
	}
	if _, err := mux.Get("outlook"); err == nil {
		t.Fatalf("expected unknown platform to fail")
	}
	got := mux.Platforms()
	if len(got) != 2 || got[0] != "caldav" || got[1] != "google" {
		t.Fatalf("unexpected platforms %v", got)
	}
}
