// Package nal implements the H.264 NAL unit reassembler (C1): it turns a
// sequence of RTP payloads carrying FU-A fragments or whole NAL units into
// an Annex-B byte stream (start code 00 00 00 01 followed by the NAL
// unit), and splits that stream back into complete NAL units.
package nal

import (
	"bytes"
	"fmt"
)

// NAL unit type values, named the way the teacher's pkg/rtp/h264.go names
// them.
const (
	NALUTypeUnspecified = 0
	NALUTypePFrame       = 1
	NALUTypeIFrame       = 5
	NALUTypeSEI          = 6
	NALUTypeSPS          = 7
	NALUTypePPS          = 8
	NALUTypeAUD          = 9
	NALUTypeFUA          = 28
)

var startCode = []byte{0x00, 0x00, 0x00, 0x01}

// ErrForbiddenZeroBit is returned when a NAL unit's forbidden_zero_bit is
// set, which never happens in a conformant bitstream.
var ErrForbiddenZeroBit = fmt.Errorf("nal: forbidden_zero_bit must be zero")

// ErrShortFUA is returned when an FU-A payload is too short to contain an
// FU header.
var ErrShortFUA = fmt.Errorf("nal: FU-A payload shorter than 2 bytes")

// ExtractPayloadFromNALUnit converts one RTP payload into an Annex-B
// stream fragment. For a whole NAL unit or the start of an FU-A
// fragmentation run, it returns the start code followed by the
// reconstructed NAL header and payload. For a continuation or end FU-A
// fragment, it returns the payload bytes alone, with no start code --
// the caller is expected to append these bytes directly after the
// previously emitted start-of-fragment bytes.
func ExtractPayloadFromNALUnit(unit []byte) ([]byte, error) {
	if len(unit) < 1 {
		return nil, fmt.Errorf("nal: empty unit")
	}

	firstByte := unit[0]
	if firstByte&0b1000_0000 != 0 {
		return nil, ErrForbiddenZeroBit
	}

	naluType := firstByte & 0b0001_1111

	if naluType != NALUTypeFUA {
		out := make([]byte, 0, len(startCode)+len(unit))
		out = append(out, startCode...)
		out = append(out, unit...)
		return out, nil
	}

	if len(unit) < 2 {
		return nil, ErrShortFUA
	}
	fuHeader := unit[1]
	offset := 2

	if fuHeader&0b1000_0000 != 0 {
		reconstructedHeader := (firstByte & 0b1110_0000) | (fuHeader & 0b0001_1111)
		out := make([]byte, 0, len(startCode)+1+len(unit)-offset)
		out = append(out, startCode...)
		out = append(out, reconstructedHeader)
		out = append(out, unit[offset:]...)
		return out, nil
	}

	out := make([]byte, len(unit)-offset)
	copy(out, unit[offset:])
	return out, nil
}

// IsKeyframeNALType reports whether naluType identifies an IDR slice.
func IsKeyframeNALType(naluType uint8) bool {
	return naluType == NALUTypeIFrame
}

// Reassembler accumulates ExtractPayloadFromNALUnit output into a
// continuous Annex-B byte stream and splits that stream back into
// complete NAL units at start-code boundaries, the way pyav's
// CodecContext.parse() does for the reference implementation.
type Reassembler struct {
	pending []byte
	hasUnit bool
}

// NewReassembler returns an empty Reassembler.
func NewReassembler() *Reassembler {
	return &Reassembler{}
}

// Feed appends one RTP payload's extracted Annex-B fragment and returns
// every complete NAL unit (without the start code) that fragment closed
// out. A NAL unit is "complete" once the next start code (or a forced
// Flush) is seen.
func (r *Reassembler) Feed(payload []byte, naluType uint8) (units [][]byte) {
	if bytes.HasPrefix(payload, startCode) {
		if r.hasUnit {
			units = append(units, r.pending)
		}
		r.pending = append([]byte(nil), payload[len(startCode):]...)
		r.hasUnit = true
		return units
	}

	if r.hasUnit {
		r.pending = append(r.pending, payload...)
	}
	return units
}

// Flush returns any buffered, not-yet-closed-out NAL unit and resets the
// reassembler, for use at stream teardown.
func (r *Reassembler) Flush() []byte {
	if !r.hasUnit {
		return nil
	}
	out := r.pending
	r.pending = nil
	r.hasUnit = false
	return out
}
