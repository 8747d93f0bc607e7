package decode

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// IMUSample is the decoded imuproto.ImuPacket message: a timestamp plus
// accelerometer, gyroscope and rotation-vector readings.
type IMUSample struct {
	Timestamp
	TsNS int64

	AccelX, AccelY, AccelZ float32
	GyroX, GyroY, GyroZ    float32

	RotVecW, RotVecX, RotVecY, RotVecZ float32
}

// ErrMalformedIMUPacket is returned when the protobuf-encoded payload
// cannot be parsed as an imuproto.ImuPacket.
var ErrMalformedIMUPacket = fmt.Errorf("decode: malformed IMU packet")

// IMUFromRaw decodes a raw imuproto.ImuPacket payload using
// protowire directly rather than generated bindings, since this module
// ships no .proto-derived package. Field layout:
//
//	ImuPacket  { 1: tsNs uint64, 2: AccelData, 3: GyroData, 4: RotVecData }
//	AccelData  { 1: x float, 2: y float, 3: z float, 4: reserved int32 }
//	GyroData   { 1: x float, 2: y float, 3: z float, 4: reserved int32 }
//	RotVecData { 1: w float, 2: x float, 3: y float, 4: z float, 5: reserved float }
func IMUFromRaw(raw []byte, wallclockSeconds float64) (IMUSample, error) {
	s := IMUSample{Timestamp: Timestamp{UnixSeconds: wallclockSeconds}}

	b := raw
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return IMUSample{}, ErrMalformedIMUPacket
		}
		b = b[n:]

		switch num {
		case 1: // tsNs
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return IMUSample{}, ErrMalformedIMUPacket
			}
			s.TsNS = int64(v)
			b = b[n:]
		case 2: // accelData
			msg, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return IMUSample{}, ErrMalformedIMUPacket
			}
			x, y, z, err := decodeXYZReserved(msg)
			if err != nil {
				return IMUSample{}, err
			}
			s.AccelX, s.AccelY, s.AccelZ = x, y, z
			b = b[n:]
		case 3: // gyroData
			msg, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return IMUSample{}, ErrMalformedIMUPacket
			}
			x, y, z, err := decodeXYZReserved(msg)
			if err != nil {
				return IMUSample{}, err
			}
			s.GyroX, s.GyroY, s.GyroZ = x, y, z
			b = b[n:]
		case 4: // rotVecData
			msg, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return IMUSample{}, ErrMalformedIMUPacket
			}
			w, x, y, z, err := decodeRotVec(msg)
			if err != nil {
				return IMUSample{}, err
			}
			s.RotVecW, s.RotVecX, s.RotVecY, s.RotVecZ = w, x, y, z
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return IMUSample{}, ErrMalformedIMUPacket
			}
			b = b[n:]
		}
	}

	return s, nil
}

func decodeFloatField(b []byte) (float32, int, error) {
	v, n := protowire.ConsumeFixed32(b)
	if n < 0 {
		return 0, 0, ErrMalformedIMUPacket
	}
	return math.Float32frombits(v), n, nil
}

func decodeXYZReserved(msg []byte) (x, y, z float32, err error) {
	b := msg
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return 0, 0, 0, ErrMalformedIMUPacket
		}
		b = b[n:]
		switch num {
		case 1:
			v, n, ferr := decodeFloatField(b)
			if ferr != nil {
				return 0, 0, 0, ferr
			}
			x = v
			b = b[n:]
		case 2:
			v, n, ferr := decodeFloatField(b)
			if ferr != nil {
				return 0, 0, 0, ferr
			}
			y = v
			b = b[n:]
		case 3:
			v, n, ferr := decodeFloatField(b)
			if ferr != nil {
				return 0, 0, 0, ferr
			}
			z = v
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return 0, 0, 0, ErrMalformedIMUPacket
			}
			b = b[n:]
		}
	}
	return x, y, z, nil
}

func decodeRotVec(msg []byte) (w, x, y, z float32, err error) {
	b := msg
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return 0, 0, 0, 0, ErrMalformedIMUPacket
		}
		b = b[n:]
		switch num {
		case 1:
			v, n, ferr := decodeFloatField(b)
			if ferr != nil {
				return 0, 0, 0, 0, ferr
			}
			w = v
			b = b[n:]
		case 2:
			v, n, ferr := decodeFloatField(b)
			if ferr != nil {
				return 0, 0, 0, 0, ferr
			}
			x = v
			b = b[n:]
		case 3:
			v, n, ferr := decodeFloatField(b)
			if ferr != nil {
				return 0, 0, 0, 0, ferr
			}
			y = v
			b = b[n:]
		case 4:
			v, n, ferr := decodeFloatField(b)
			if ferr != nil {
				return 0, 0, 0, 0, ferr
			}
			z = v
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return 0, 0, 0, 0, ErrMalformedIMUPacket
			}
			b = b[n:]
		}
	}
	return w, x, y, z, nil
}
