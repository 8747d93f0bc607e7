package decode

import (
	"encoding/binary"
	"fmt"
)

// EyeEventType enumerates the event_type tag carried by every eye-event
// payload.
type EyeEventType int32

const (
	EyeEventSaccade       EyeEventType = 0
	EyeEventFixation      EyeEventType = 1
	EyeEventSaccadeOnset  EyeEventType = 2
	EyeEventFixationOnset EyeEventType = 3
	EyeEventBlink         EyeEventType = 4
	eyeEventKeepAlive     EyeEventType = 5
)

// ErrUnknownEyeEventType is returned for an event_type this client does
// not recognize (and which isn't the documented keep-alive type 5).
var ErrUnknownEyeEventType = fmt.Errorf("decode: unknown eye event type")

// ErrShortEyeEventPayload is returned when the payload is too short to
// contain even the event_type tag.
var ErrShortEyeEventPayload = fmt.Errorf("decode: eye event payload shorter than 4 bytes")

// BlinkEvent reports a detected blink.
type BlinkEvent struct {
	Timestamp
	EventType            EyeEventType
	StartTimeNS, EndTimeNS int64
}

// FixationEvent reports a completed fixation or saccade.
type FixationEvent struct {
	Timestamp
	EventType               EyeEventType
	StartTimeNS, EndTimeNS   int64
	StartGazeX, StartGazeY   float32
	EndGazeX, EndGazeY       float32
	MeanGazeX, MeanGazeY     float32
	AmplitudePixels          float32
	AmplitudeAngleDeg        float32
	MeanVelocity, MaxVelocity float32
}

// FixationOnsetEvent reports the start of a fixation or saccade, before
// its end time is known.
type FixationOnsetEvent struct {
	Timestamp
	EventType   EyeEventType
	StartTimeNS int64
}

// EyeEventFromRaw decodes one eye-event payload, dispatching on the
// leading event_type tag. A nil, nil return means the payload was the
// documented keep-alive (type 5) and should be silently ignored.
func EyeEventFromRaw(raw []byte, wallclockSeconds float64) (any, error) {
	if len(raw) < 4 {
		return nil, ErrShortEyeEventPayload
	}
	eventType := EyeEventType(int32(binary.BigEndian.Uint32(raw[0:4])))
	ts := Timestamp{UnixSeconds: wallclockSeconds}

	switch eventType {
	case EyeEventFixation, EyeEventSaccade:
		if len(raw) != 60 {
			return nil, fmt.Errorf("%w: fixation payload length %d", ErrUnknownEyeEventType, len(raw))
		}
		return FixationEvent{
			Timestamp:         ts,
			EventType:         eventType,
			StartTimeNS:       int64(binary.BigEndian.Uint64(raw[4:12])),
			EndTimeNS:         int64(binary.BigEndian.Uint64(raw[12:20])),
			StartGazeX:        readF32(raw[20:24]),
			StartGazeY:        readF32(raw[24:28]),
			EndGazeX:          readF32(raw[28:32]),
			EndGazeY:          readF32(raw[32:36]),
			MeanGazeX:         readF32(raw[36:40]),
			MeanGazeY:         readF32(raw[40:44]),
			AmplitudePixels:   readF32(raw[44:48]),
			AmplitudeAngleDeg: readF32(raw[48:52]),
			MeanVelocity:      readF32(raw[52:56]),
			MaxVelocity:       readF32(raw[56:60]),
		}, nil

	case EyeEventFixationOnset, EyeEventSaccadeOnset:
		if len(raw) != 12 {
			return nil, fmt.Errorf("%w: onset payload length %d", ErrUnknownEyeEventType, len(raw))
		}
		return FixationOnsetEvent{
			Timestamp:   ts,
			EventType:   eventType,
			StartTimeNS: int64(binary.BigEndian.Uint64(raw[4:12])),
		}, nil

	case EyeEventBlink:
		if len(raw) != 20 {
			return nil, fmt.Errorf("%w: blink payload length %d", ErrUnknownEyeEventType, len(raw))
		}
		return BlinkEvent{
			Timestamp:   ts,
			EventType:   eventType,
			StartTimeNS: int64(binary.BigEndian.Uint64(raw[4:12])),
			EndTimeNS:   int64(binary.BigEndian.Uint64(raw[12:20])),
		}, nil

	case eyeEventKeepAlive:
		return nil, nil

	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownEyeEventType, eventType)
	}
}
