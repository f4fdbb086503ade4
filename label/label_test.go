package label_test

import (
	"testing"

	"github.com/PercyJax/brother-ql-rs/label"
	"github.com/PercyJax/brother-ql-rs/status"
)

func TestLookupContinuousTape(t *testing.T) {
	l, err := label.Lookup(62, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if l.DotsPrintable != 696 {
		t.Errorf("dots printable = %d, want 696", l.DotsPrintable)
	}
	if l.FeedMargin != 0 {
		t.Errorf("feed margin = %d, want 0 for continuous tape", l.FeedMargin)
	}
}

func TestLookupDieCut(t *testing.T) {
	l, err := label.Lookup(29, 90)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if l.DotsPrintable != 306 {
		t.Errorf("dots printable = %d, want 306", l.DotsPrintable)
	}
	if l.FeedMargin == 0 {
		t.Errorf("feed margin = 0, want nonzero for die-cut media")
	}
}

func TestLookupUnknownMedia(t *testing.T) {
	_, err := label.Lookup(99, 99)
	if err == nil {
		t.Fatal("expected error for unknown media")
	}
	if _, ok := err.(*label.ErrUnknownMedia); !ok {
		t.Errorf("error type = %T, want *label.ErrUnknownMedia", err)
	}
}

func TestOfResolvesFromStatusMedia(t *testing.T) {
	m := status.Media{Type: status.MediaContinuousTape, WidthMM: 62, LengthMM: 0}
	l, err := label.Of(m)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if l.DotsPrintable != 696 {
		t.Errorf("dots printable = %d, want 696", l.DotsPrintable)
	}
}
