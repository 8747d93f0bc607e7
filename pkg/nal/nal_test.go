package nal_test

import (
	"testing"

	"github.com/ethan/neon-realtime/pkg/nal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractPayloadSingleNALU(t *testing.T) {
	unit := []byte{0x67, 0x01, 0x02, 0x03} // SPS (type 7)
	out, err := nal.ExtractPayloadFromNALUnit(unit)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0x00, 0x00, 0x01, 0x67, 0x01, 0x02, 0x03}, out)
}

func TestExtractPayloadForbiddenZeroBit(t *testing.T) {
	unit := []byte{0x80 | 0x05, 0x00}
	_, err := nal.ExtractPayloadFromNALUnit(unit)
	require.ErrorIs(t, err, nal.ErrForbiddenZeroBit)
}

func TestExtractPayloadFUAStart(t *testing.T) {
	fuIndicator := byte(0x60) // nal_ref_idc bits, type field below is FU-A
	fuIndicator |= nal.NALUTypeFUA
	fuHeader := byte(0x80 | nal.NALUTypeIFrame) // start bit set, type=IDR
	unit := []byte{fuIndicator, fuHeader, 0xAA, 0xBB}

	out, err := nal.ExtractPayloadFromNALUnit(unit)
	require.NoError(t, err)

	wantHeader := (fuIndicator & 0b1110_0000) | nal.NALUTypeIFrame
	assert.Equal(t, []byte{0x00, 0x00, 0x00, 0x01, wantHeader, 0xAA, 0xBB}, out)
}

func TestExtractPayloadFUAContinuation(t *testing.T) {
	fuIndicator := byte(0x60) | nal.NALUTypeFUA
	fuHeader := byte(nal.NALUTypeIFrame) // neither start nor end bit set
	unit := []byte{fuIndicator, fuHeader, 0xCC, 0xDD}

	out, err := nal.ExtractPayloadFromNALUnit(unit)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xCC, 0xDD}, out, "continuation fragments carry no start code")
}

func TestExtractPayloadFUATooShort(t *testing.T) {
	_, err := nal.ExtractPayloadFromNALUnit([]byte{nal.NALUTypeFUA})
	require.ErrorIs(t, err, nal.ErrShortFUA)
}

func TestReassemblerGroupsFragments(t *testing.T) {
	r := nal.NewReassembler()

	start, err := nal.ExtractPayloadFromNALUnit([]byte{0x60 | nal.NALUTypeFUA, 0x80 | nal.NALUTypeIFrame, 0x01})
	require.NoError(t, err)
	units := r.Feed(start, nal.NALUTypeFUA)
	assert.Empty(t, units)

	cont, err := nal.ExtractPayloadFromNALUnit([]byte{0x60 | nal.NALUTypeFUA, nal.NALUTypeIFrame, 0x02})
	require.NoError(t, err)
	units = r.Feed(cont, nal.NALUTypeFUA)
	assert.Empty(t, units)

	next, err := nal.ExtractPayloadFromNALUnit([]byte{0x68, 0x03}) // next whole NALU (PPS)
	require.NoError(t, err)
	units = r.Feed(next, nal.NALUTypePPS)
	require.Len(t, units, 1)

	flushed := r.Flush()
	require.NotEmpty(t, flushed)
	assert.Equal(t, byte(0x68), flushed[0])
}
