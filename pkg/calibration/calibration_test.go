package calibration_test

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/sigurn/crc16"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethan/neon-realtime/pkg/calibration"
)

func buildBlob(t *testing.T, sceneFx float64) []byte {
	t.Helper()
	payload := make([]byte, 0, 3*17*8)

	appendCamera := func(fx float64) {
		matrix := [9]float64{fx, 0, 320, 0, fx, 240, 0, 0, 1}
		for _, v := range matrix {
			b := make([]byte, 8)
			binary.LittleEndian.PutUint64(b, math.Float64bits(v))
			payload = append(payload, b...)
		}
		for i := 0; i < 8; i++ {
			b := make([]byte, 8)
			binary.LittleEndian.PutUint64(b, math.Float64bits(0.01*float64(i)))
			payload = append(payload, b...)
		}
	}

	appendCamera(sceneFx)
	appendCamera(1000)
	appendCamera(1000)

	table := crc16.MakeTable(crc16.CRC16_CCITT_FALSE)
	checksum := crc16.Checksum(payload, table)
	trailer := make([]byte, 2)
	binary.LittleEndian.PutUint16(trailer, checksum)

	return append(payload, trailer...)
}

func TestParseValidBlob(t *testing.T) {
	blob := buildBlob(t, 1234.5)
	cal, err := calibration.Parse(blob)
	require.NoError(t, err)
	assert.InDelta(t, 1234.5, cal.Scene.Matrix[0][0], 1e-9)
	assert.InDelta(t, 320.0, cal.Scene.Matrix[0][2], 1e-9)
}

func TestParseRejectsCorruptedChecksum(t *testing.T) {
	blob := buildBlob(t, 1234.5)
	blob[0] ^= 0xFF

	_, err := calibration.Parse(blob)
	require.ErrorIs(t, err, calibration.ErrChecksumMismatch)
}

func TestParseRejectsShortBlob(t *testing.T) {
	_, err := calibration.Parse(make([]byte, 10))
	require.ErrorIs(t, err, calibration.ErrShortBlob)
}
