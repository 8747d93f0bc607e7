package decode_test

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/ethan/neon-realtime/pkg/decode"
	"github.com/pion/rtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

func f32Bytes(v float32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, math.Float32bits(v))
	return b
}

func TestGazeFromRawBasic(t *testing.T) {
	raw := append(append(f32Bytes(0.5), f32Bytes(0.75)...), 255)
	s, err := decode.GazeFromRaw(raw, 123.0)
	require.NoError(t, err)
	assert.Equal(t, float32(0.5), s.X)
	assert.Equal(t, float32(0.75), s.Y)
	assert.True(t, s.Worn)
	assert.False(t, s.HasEyeState)
	assert.Equal(t, 123.0, s.UnixSeconds)
}

func TestGazeFromRawUnknownLength(t *testing.T) {
	_, err := decode.GazeFromRaw(make([]byte, 10), 0)
	require.ErrorIs(t, err, decode.ErrUnknownGazeLength)
}

func TestGazeFromRawDualMonocular(t *testing.T) {
	raw := append(append(f32Bytes(0.1), f32Bytes(0.2)...), 0)
	raw = append(raw, f32Bytes(0.3)...)
	raw = append(raw, f32Bytes(0.4)...)
	require.Len(t, raw, 17)

	s, err := decode.GazeFromRaw(raw, 0)
	require.NoError(t, err)
	assert.False(t, s.Worn)
	assert.False(t, s.HasEyeState)
	assert.True(t, s.HasDualMonocular)
	assert.Equal(t, float32(0.1), s.X)
	assert.Equal(t, float32(0.2), s.Y)
	assert.Equal(t, float32(0.3), s.RightX)
	assert.Equal(t, float32(0.4), s.RightY)
}

func buildIMUPacket(tsNS uint64, ax, ay, az float32) []byte {
	var accel []byte
	accel = protowire.AppendTag(accel, 1, protowire.Fixed32Type)
	accel = protowire.AppendFixed32(accel, math.Float32bits(ax))
	accel = protowire.AppendTag(accel, 2, protowire.Fixed32Type)
	accel = protowire.AppendFixed32(accel, math.Float32bits(ay))
	accel = protowire.AppendTag(accel, 3, protowire.Fixed32Type)
	accel = protowire.AppendFixed32(accel, math.Float32bits(az))

	var out []byte
	out = protowire.AppendTag(out, 1, protowire.VarintType)
	out = protowire.AppendVarint(out, tsNS)
	out = protowire.AppendTag(out, 2, protowire.BytesType)
	out = protowire.AppendBytes(out, accel)
	return out
}

func TestIMUFromRaw(t *testing.T) {
	raw := buildIMUPacket(1_000_000_000, 1.5, -2.5, 9.8)
	s, err := decode.IMUFromRaw(raw, 42.0)
	require.NoError(t, err)
	assert.Equal(t, int64(1_000_000_000), s.TsNS)
	assert.InDelta(t, 1.5, s.AccelX, 1e-6)
	assert.InDelta(t, -2.5, s.AccelY, 1e-6)
	assert.InDelta(t, 9.8, s.AccelZ, 1e-6)
	assert.Equal(t, 42.0, s.UnixSeconds)
}

func TestEyeEventFromRawKeepAliveIsSkipped(t *testing.T) {
	raw := make([]byte, 4)
	binary.BigEndian.PutUint32(raw, 5)
	event, err := decode.EyeEventFromRaw(raw, 0)
	require.NoError(t, err)
	assert.Nil(t, event)
}

func TestEyeEventFromRawBlink(t *testing.T) {
	raw := make([]byte, 20)
	binary.BigEndian.PutUint32(raw[0:4], uint32(decode.EyeEventBlink))
	binary.BigEndian.PutUint64(raw[4:12], 100)
	binary.BigEndian.PutUint64(raw[12:20], 200)

	event, err := decode.EyeEventFromRaw(raw, 7.0)
	require.NoError(t, err)
	blink, ok := event.(decode.BlinkEvent)
	require.True(t, ok)
	assert.Equal(t, int64(100), blink.StartTimeNS)
	assert.Equal(t, int64(200), blink.EndTimeNS)
}

func TestEyeEventFromRawUnknownType(t *testing.T) {
	raw := make([]byte, 4)
	binary.BigEndian.PutUint32(raw, 99)
	_, err := decode.EyeEventFromRaw(raw, 0)
	require.ErrorIs(t, err, decode.ErrUnknownEyeEventType)
}

func TestVideoStreamDecoderSkipsFirstFrameThenPairsPreviousTimestamp(t *testing.T) {
	d := decode.NewVideoStreamDecoder(nil)

	pkt1 := &rtp.Packet{Header: rtp.Header{Marker: true}, Payload: []byte{0x67, 0x01}} // SPS, whole NALU
	frame, ok, err := d.Feed(pkt1, 1.0)
	require.NoError(t, err)
	assert.False(t, ok, "first access unit has no previous timestamp to pair with")
	assert.Equal(t, decode.VideoFrame{}, frame)

	pkt2 := &rtp.Packet{Header: rtp.Header{Marker: true}, Payload: []byte{0x65, 0x02}} // IDR slice
	frame2, ok2, err := d.Feed(pkt2, 2.0)
	require.NoError(t, err)
	require.True(t, ok2)
	assert.Equal(t, 1.0, frame2.UnixSeconds, "frame uses previous packet's wallclock timestamp")
	assert.True(t, frame2.Keyframe)
}
