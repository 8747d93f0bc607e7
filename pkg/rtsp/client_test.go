package rtsp_test

import (
	"testing"

	"github.com/ethan/neon-realtime/pkg/logger"
	"github.com/ethan/neon-realtime/pkg/rtsp"
	"github.com/pion/rtcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, clockRate uint32) *rtsp.Client {
	t.Helper()
	c := rtsp.NewClient("rtsp://127.0.0.1:8080/?gaze", logger.Default())
	err := c.ParseSDPForTest(sampleSDP(clockRate))
	require.NoError(t, err)
	return c
}

func sampleSDP(clockRate uint32) []byte {
	return []byte("v=0\r\n" +
		"o=- 0 0 IN IP4 127.0.0.1\r\n" +
		"s=-\r\n" +
		"t=0 0\r\n" +
		"m=video 0 RTP/AVP 96\r\n" +
		"a=rtpmap:96 H264/" + itoa(clockRate) + "\r\n" +
		"a=control:trackID=0\r\n")
}

func TestParseSDPSkipsLeadingAudioMedia(t *testing.T) {
	c := rtsp.NewClient("rtsp://127.0.0.1:8080/?gaze", logger.Default())
	body := []byte("v=0\r\n" +
		"o=- 0 0 IN IP4 127.0.0.1\r\n" +
		"s=-\r\n" +
		"t=0 0\r\n" +
		"m=audio 0 RTP/AVP 97\r\n" +
		"a=rtpmap:97 AAC/48000\r\n" +
		"m=application 0 RTP/AVP 98\r\n" +
		"a=rtpmap:98 gaze/192000\r\n" +
		"a=control:trackID=0\r\n")

	require.NoError(t, c.ParseSDPForTest(body))
}

func TestParseSDPWithoutVideoOrApplicationMediaFails(t *testing.T) {
	c := rtsp.NewClient("rtsp://127.0.0.1:8080/?gaze", logger.Default())
	body := []byte("v=0\r\n" +
		"o=- 0 0 IN IP4 127.0.0.1\r\n" +
		"s=-\r\n" +
		"t=0 0\r\n" +
		"m=audio 0 RTP/AVP 97\r\n" +
		"a=rtpmap:97 AAC/48000\r\n")

	err := c.ParseSDPForTest(body)
	require.ErrorIs(t, err, rtsp.ErrSDPDataNotAvailable)
}

func itoa(v uint32) string {
	if v == 0 {
		return "0"
	}
	digits := []byte{}
	for v > 0 {
		digits = append([]byte{byte('0' + v%10)}, digits...)
		v /= 10
	}
	return string(digits)
}

func TestAbsoluteTimestampUnavailableBeforeSR(t *testing.T) {
	c := newTestClient(t, 90000)
	_, err := c.AbsoluteTimestampSeconds(90000)
	require.ErrorIs(t, err, rtsp.ErrClockOffsetUnavailable)
}

func TestSenderReportEstablishesOffset(t *testing.T) {
	c := newTestClient(t, 90000)

	// NTP time for exactly 2208988800 + 100 seconds since 1900 epoch (100s
	// since Unix epoch), RTPTime 0 -> offset should be 100 seconds.
	sr := &rtcp.SenderReport{
		SSRC:    1,
		NTPTime: (uint64(2208988800+100) << 32),
		RTPTime: 0,
	}
	c.HandleSenderReportForTest(sr)

	offset, ok := c.WallclockOffsetSeconds()
	require.True(t, ok)
	assert.InDelta(t, 100.0, offset, 1e-9)

	ts, err := c.AbsoluteTimestampSeconds(90000) // 1 second of RTP ticks
	require.NoError(t, err)
	assert.InDelta(t, 101.0, ts, 1e-9)
}

func TestSenderReportAlwaysUsesMostRecent(t *testing.T) {
	c := newTestClient(t, 90000)

	c.HandleSenderReportForTest(&rtcp.SenderReport{NTPTime: uint64(2208988800+100) << 32, RTPTime: 0})
	c.HandleSenderReportForTest(&rtcp.SenderReport{NTPTime: uint64(2208988800+200) << 32, RTPTime: 0})

	offset, ok := c.WallclockOffsetSeconds()
	require.True(t, ok)
	assert.InDelta(t, 200.0, offset, 1e-9)
}
