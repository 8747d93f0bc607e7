// Package decode implements the per-sensor sample decoders (C3): gaze,
// IMU, eye events and video access units, each converting a raw RTSP
// payload plus its wallclock timestamp into a typed sample.
package decode

import "time"

// Timestamp is embedded in every sample type to provide the
// timestamp_unix_seconds / timestamp_unix_ns / datetime trio the
// reference implementation exposes on every streamed item.
type Timestamp struct {
	UnixSeconds float64
}

// TimestampUnixSeconds returns the timestamp in seconds since the Unix
// epoch, satisfying match.Timestamped.
func (t Timestamp) TimestampUnixSeconds() float64 {
	return t.UnixSeconds
}

// TimestampUnixNS returns the timestamp in nanoseconds since the Unix
// epoch.
func (t Timestamp) TimestampUnixNS() int64 {
	return int64(t.UnixSeconds * 1e9)
}

// Time returns the timestamp as a time.Time.
func (t Timestamp) Time() time.Time {
	return time.Unix(0, t.TimestampUnixNS())
}
