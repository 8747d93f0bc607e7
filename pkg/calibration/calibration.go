// Package calibration parses the device's camera calibration blob
// (served from /../calibration.bin, fetched via pkg/control) into its
// per-camera intrinsic matrices and distortion coefficients, validating
// the trailing CRC16 checksum.
//
// spec.md treats the blob as opaque; this module implements the fixed
// record layout the original's example scripts access by field name
// (scene_camera_matrix, scene_distortion_coefficients, right_camera_matrix,
// right_distortion_coefficients, left_camera_matrix,
// left_distortion_coefficients), each field row-major float64.
package calibration

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/sigurn/crc16"
)

const (
	matrixFloats      = 9 // 3x3, row-major
	distortionFloats  = 8 // k1 k2 p1 p2 k3 k4 k5 k6
	camerasPerBlob    = 3 // scene, right, left
	floatsPerCamera   = matrixFloats + distortionFloats
	payloadBytes      = camerasPerBlob * floatsPerCamera * 8
	checksumBytes     = 2
	blobBytes         = payloadBytes + checksumBytes
)

// ErrShortBlob is returned when the input is smaller than the fixed
// calibration record.
var ErrShortBlob = fmt.Errorf("calibration: blob shorter than %d bytes", blobBytes)

// ErrChecksumMismatch is returned when the trailing CRC16 does not
// match the computed checksum of the payload.
var ErrChecksumMismatch = fmt.Errorf("calibration: CRC16 checksum mismatch")

// CameraCalibration holds one camera's pinhole intrinsics.
type CameraCalibration struct {
	Matrix      [3][3]float64
	Distortion  [8]float64
}

// Calibration is the fully decoded calibration blob.
type Calibration struct {
	Scene CameraCalibration
	Right CameraCalibration
	Left  CameraCalibration
}

var crcTable = crc16.MakeTable(crc16.CRC16_CCITT_FALSE)

// Parse decodes and validates a calibration.bin payload.
func Parse(raw []byte) (Calibration, error) {
	if len(raw) < blobBytes {
		return Calibration{}, ErrShortBlob
	}

	payload := raw[:payloadBytes]
	trailer := raw[payloadBytes:blobBytes]

	want := binary.LittleEndian.Uint16(trailer)
	got := crc16.Checksum(payload, crcTable)
	if got != want {
		return Calibration{}, ErrChecksumMismatch
	}

	var offset int
	readCamera := func() CameraCalibration {
		var cc CameraCalibration
		for r := 0; r < 3; r++ {
			for c := 0; c < 3; c++ {
				cc.Matrix[r][c] = readF64(payload[offset:])
				offset += 8
			}
		}
		for i := range cc.Distortion {
			cc.Distortion[i] = readF64(payload[offset:])
			offset += 8
		}
		return cc
	}

	return Calibration{
		Scene: readCamera(),
		Right: readCamera(),
		Left:  readCamera(),
	}, nil
}

func readF64(b []byte) float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(b))
}
