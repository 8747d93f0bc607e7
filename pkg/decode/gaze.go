package decode

import (
	"encoding/binary"
	"fmt"
	"math"
)

// GazeSample is the 2D gaze point, present in every gaze payload variant.
type GazeSample struct {
	Timestamp
	X, Y float32
	Worn bool

	// RightX/RightY are the right-eye gaze point, set only for the
	// 17-byte DualMonocularGazeSample variant (X/Y above is the left
	// eye in that case). HasDualMonocular reports whether they are
	// populated.
	HasDualMonocular bool
	RightX, RightY   float32

	// PupilDiameterLeft/Right are set when the payload includes full
	// eye-state geometry (65 or 89 byte variants); HasEyeState reports
	// whether they are populated.
	HasEyeState          bool
	PupilDiameterLeftMM  float32
	PupilDiameterRightMM float32

	// EyeballCenter/OpticalAxis are set for the 65 and 89 byte variants.
	HasEyeballGeometry bool
	EyeballCenterLeft  [3]float32
	OpticalAxisLeft    [3]float32
	EyeballCenterRight [3]float32
	OpticalAxisRight   [3]float32

	// Eyelid angles/aperture are set only for the 89 byte variant.
	HasEyelid              bool
	EyelidAngleTopLeft     float32
	EyelidAngleBottomLeft  float32
	EyelidApertureLeft     float32
	EyelidAngleTopRight    float32
	EyelidAngleBottomRight float32
	EyelidApertureRight    float32
}

// ErrUnknownGazeLength is returned when a gaze payload doesn't match any
// recognized fixed-length wire layout.
var ErrUnknownGazeLength = fmt.Errorf("decode: unrecognized gaze payload length")

func readF32(b []byte) float32 {
	return math.Float32frombits(binary.BigEndian.Uint32(b))
}

// GazeFromRaw decodes a raw gaze payload (network byte order). The wire
// format grows in four fixed-length tiers: a bare 2D point (9 bytes), a
// left/right pair of 2D points (17, DualMonocularGazeSample), a point
// plus full eye-state geometry (65), and a point plus eye-state plus
// eyelid data (89).
func GazeFromRaw(raw []byte, wallclockSeconds float64) (GazeSample, error) {
	if len(raw) < 9 {
		return GazeSample{}, ErrUnknownGazeLength
	}

	s := GazeSample{Timestamp: Timestamp{UnixSeconds: wallclockSeconds}}
	s.X = readF32(raw[0:4])
	s.Y = readF32(raw[4:8])
	s.Worn = raw[8] == 255

	switch len(raw) {
	case 9:
		return s, nil
	case 17:
		s.HasDualMonocular = true
		s.RightX = readF32(raw[9:13])
		s.RightY = readF32(raw[13:17])
		return s, nil
	case 65:
		s.HasEyeState = true
		s.PupilDiameterLeftMM = readF32(raw[9:13])
		s.PupilDiameterRightMM = readF32(raw[13:17])
		s.HasEyeballGeometry = true
		off := 17
		readVec3(raw, &off, &s.EyeballCenterLeft)
		readVec3(raw, &off, &s.OpticalAxisLeft)
		readVec3(raw, &off, &s.EyeballCenterRight)
		readVec3(raw, &off, &s.OpticalAxisRight)
		return s, nil
	case 89:
		s.HasEyeState = true
		s.PupilDiameterLeftMM = readF32(raw[9:13])
		s.PupilDiameterRightMM = readF32(raw[13:17])
		s.HasEyeballGeometry = true
		off := 17
		readVec3(raw, &off, &s.EyeballCenterLeft)
		readVec3(raw, &off, &s.OpticalAxisLeft)
		readVec3(raw, &off, &s.EyeballCenterRight)
		readVec3(raw, &off, &s.OpticalAxisRight)
		s.HasEyelid = true
		s.EyelidAngleTopLeft = readF32(raw[off:])
		off += 4
		s.EyelidAngleBottomLeft = readF32(raw[off:])
		off += 4
		s.EyelidApertureLeft = readF32(raw[off:])
		off += 4
		s.EyelidAngleTopRight = readF32(raw[off:])
		off += 4
		s.EyelidAngleBottomRight = readF32(raw[off:])
		off += 4
		s.EyelidApertureRight = readF32(raw[off:])
		return s, nil
	default:
		return GazeSample{}, ErrUnknownGazeLength
	}
}

func readVec3(raw []byte, off *int, dst *[3]float32) {
	dst[0] = readF32(raw[*off:])
	dst[1] = readF32(raw[*off+4:])
	dst[2] = readF32(raw[*off+8:])
	*off += 12
}
