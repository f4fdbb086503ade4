// Package job builds the wire bytes for the header command group that
// precedes a print's raster lines: print information, cut-each, mode,
// expanded mode, and margins.
package job

import (
	"fmt"

	"github.com/PercyJax/brother-ql-rs/label"
	"github.com/PercyJax/brother-ql-rs/status"
)

// Page marks whether the lines that follow start a new physical page or
// continue one already begun; it affects the print-information sub-command
// only.
type Page byte

const (
	PageStarting Page = iota
	PageOther
)

// Info is the immutable description of one print job, consumed by Build to
// produce the header bytes that precede the raster stream.
type Info struct {
	Media             status.Media
	NumLines          uint32
	Page              Page
	PrioritizeQuality bool
	CutEach           byte
	AutoCut           bool
	CutAtEnd          bool
	HighResolution    bool
}

// NewInfo returns an Info with the driver's usual defaults: cut after
// every label, automatic cutting, cut at end of job, standard resolution.
func NewInfo(media status.Media, numLines uint32) Info {
	return Info{
		Media:             media,
		NumLines:          numLines,
		Page:              PageOther,
		PrioritizeQuality: true,
		CutEach:           1,
		AutoCut:           true,
		CutAtEnd:          true,
	}
}

const (
	flagMediaType          = 0x02
	flagMediaWidth         = 0x04
	flagMediaLength        = 0x08
	flagPrioritizeQuality  = 0x40
	flagRecoveryAlwaysOn   = 0x80
)

// Build serializes j into the five sub-commands of the header command
// group, concatenated with no padding: print information (13 bytes),
// cut-each (4), mode (4), expanded mode (4), margins (5) — 30 bytes total.
func Build(j Info) ([]byte, error) {
	mediaTypeCode, err := mediaTypeCode(j.Media.Type)
	if err != nil {
		return nil, err
	}

	l, err := label.Of(j.Media)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, 13+4+4+4+5)

	// Print information.
	flags := byte(flagMediaType | flagMediaWidth | flagMediaLength | flagRecoveryAlwaysOn)
	if j.PrioritizeQuality {
		flags |= flagPrioritizeQuality
	}
	var page byte
	if j.Page == PageOther {
		page = 1
	}
	out = append(out, 0x1b, 0x69, 0x7a, flags, mediaTypeCode,
		j.Media.WidthMM, j.Media.LengthMM,
		byte(j.NumLines), byte(j.NumLines>>8), byte(j.NumLines>>16), byte(j.NumLines>>24),
		page, 0x00)

	// Cut-each.
	out = append(out, 0x1b, 0x69, 0x41, j.CutEach)

	// Mode.
	var modeByte byte
	if j.AutoCut {
		modeByte = 1 << 6
	}
	out = append(out, 0x1b, 0x69, 0x4d, modeByte)

	// Expanded mode.
	var expanded byte
	if j.CutAtEnd {
		expanded |= 1 << 3
	}
	if j.HighResolution {
		expanded |= 1 << 6
	}
	out = append(out, 0x1b, 0x69, 0x4b, expanded)

	// Margins.
	out = append(out, 0x1b, 0x69, 0x64, byte(l.FeedMargin), byte(l.FeedMargin>>8))

	return out, nil
}

func mediaTypeCode(t status.MediaType) (byte, error) {
	switch t {
	case status.MediaContinuousTape:
		return 0x0a, nil
	case status.MediaDieCutLabels:
		return 0x0b, nil
	default:
		return 0, fmt.Errorf("job: media type %v has no wire encoding (no media loaded)", t)
	}
}
