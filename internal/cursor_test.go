package internal

import (
	"errors"
	"testing"
)

func TestCursorRoundTrip(t *testing.T) {
	seq, err := DecodeCursor(EncodeCursor(42))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if seq != 42 {
		t.Fatalf("expected 42, got %d", seq)
	}
	if seq, err := DecodeCursor(""); err != nil || seq != 0 {
		t.Fatalf("expected start of listing, got %d, %v", seq, err)
	}
}

func TestDecodeCursorRejectsGarbage(t *testing.T) {
	for _, c := range []string{"%%%", "bm9wZQ", EncodeCursor(-1)} {
		if _, err := DecodeCursor(c); !errors.Is(err, ErrInvalidCursor) {
			t.Fatalf("expected ErrInvalidCursor for %q, got %v", c, err)
		}
	}
}

func TestNewPage(t *testing.T) {
	seq := func(v int64) int64 { return v }

	page := NewPage([]int64{1, 2, 3}, 2, seq)
	if len(page.Items) != 2 || page.NextCursor == nil {
		t.Fatalf("expected 2 items and a cursor, got %+v", page)
	}
	if after, _ := DecodeCursor(*page.NextCursor); after != 2 {
		t.Fatalf("expected cursor after 2, got %d", after)
	}

	last := NewPage([]int64{3}, 2, seq)
	if last.NextCursor != nil {
		t.Fatalf("expected nil cursor at end of data")
	}
	if empty := NewPage[int64](nil, 2, seq); empty.Items == nil {
		t.Fatalf("expected empty slice, not nil")
	}
}

func TestClampLimit(t *testing.T) {
	if ClampLimit(0) != DefaultPageLimit || ClampLimit(1000) != MaxPageLimit || ClampLimit(7) != 7 {
		t.Fatalf("unexpected clamp results")
	}
}
