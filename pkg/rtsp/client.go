// Package rtsp implements the RTSP/RTCP session and wallclock timekeeper
// (C2): it speaks RTSP over an interleaved TCP channel, depacketizes the
// RTP stream for one sensor's media track, and maintains the mapping from
// RTP timestamp to Unix wallclock time using RTCP Sender Reports.
package rtsp

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/pion/sdp/v3"

	"github.com/ethan/neon-realtime/pkg/logger"
)

// ErrClockOffsetUnavailable is returned when a wallclock timestamp is
// requested before the first RTCP Sender Report has been processed.
var ErrClockOffsetUnavailable = errors.New("rtsp: wallclock offset not yet available (no SR received)")

// ErrSDPDataNotAvailable is returned when a DESCRIBE response's SDP has
// no media of type "video" or "application" to use as the primary
// track.
var ErrSDPDataNotAvailable = errors.New("rtsp: SDP data not available")

// ntpUnixEpochOffset is the number of seconds between the NTP epoch
// (1900-01-01) and the Unix epoch (1970-01-01), per RFC 3550 section 4.
const ntpUnixEpochOffset = 2208988800

// Media describes the single track this client session carries, as
// parsed from the DESCRIBE response's SDP.
type Media struct {
	Type        string // "video", "audio", or "application" for data sensors
	Encoding    string
	ClockRate   uint32
	Control     string
	FmtpParams  map[string]string
}

// SpropParameterSets decodes the H.264 sprop-parameter-sets fmtp
// parameter (comma-separated base64 NAL units) if present.
func (m Media) SpropParameterSets() ([][]byte, error) {
	raw, ok := m.FmtpParams["sprop-parameter-sets"]
	if !ok {
		return nil, nil
	}
	var out [][]byte
	for _, part := range strings.Split(raw, ",") {
		decoded, err := base64.StdEncoding.DecodeString(part)
		if err != nil {
			return nil, fmt.Errorf("decode sprop-parameter-sets: %w", err)
		}
		out = append(out, decoded)
	}
	return out, nil
}

// Client is an RTSP client for a single sensor's stream URL.
type Client struct {
	url     string
	baseURL string
	log     *logger.Logger

	conn   net.Conn
	reader *bufio.Reader

	session string
	cseq    int
	writeMu sync.Mutex

	media Media

	offsetMu       sync.RWMutex
	clockOffsetSec float64
	haveOffset     bool

	OnRTPPacket func(packet *rtp.Packet)
}

// NewClient returns an RTSP client bound to one sensor stream URL.
func NewClient(rtspURL string, log *logger.Logger) *Client {
	return &Client{url: rtspURL, log: log}
}

// Media returns the parsed SDP media description for this session.
func (c *Client) Media() Media { return c.media }

// Connect dials the RTSP server and performs OPTIONS+DESCRIBE+SETUP.
func (c *Client) Connect(ctx context.Context) error {
	u, err := url.Parse(c.url)
	if err != nil {
		return fmt.Errorf("parse URL: %w", err)
	}

	port := u.Port()
	if port == "" {
		port = "554"
	}
	addr := net.JoinHostPort(u.Hostname(), port)

	dialer := &net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		_ = tcpConn.SetNoDelay(true)
	}

	c.conn = conn
	c.reader = bufio.NewReaderSize(conn, 65536)
	c.log.DebugRTSP("connected", "addr", addr)

	if err := c.options(); err != nil {
		return fmt.Errorf("OPTIONS: %w", err)
	}
	if err := c.describe(u); err != nil {
		return fmt.Errorf("DESCRIBE: %w", err)
	}
	if err := c.setup(); err != nil {
		return fmt.Errorf("SETUP: %w", err)
	}
	return nil
}

// Play issues PLAY; the response itself is consumed inside ReadPackets
// since the server begins sending interleaved RTP immediately after it.
func (c *Client) Play(ctx context.Context) error {
	playURL := c.baseURL
	if u, err := url.Parse(playURL); err == nil {
		if !strings.HasSuffix(u.Path, "/") {
			u.Path += "/"
		}
		playURL = u.String()
	}

	req := c.newRequest("PLAY", playURL)
	req.Header["Range"] = "npt=0.000-"
	return c.writeRequest(req)
}

// Close sends TEARDOWN and closes the connection.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	req := c.newRequest("TEARDOWN", c.url)
	_ = c.writeRequest(req)
	return c.conn.Close()
}

// WallclockOffsetSeconds returns the current RTP-clock-to-Unix-time
// offset, and whether one has been established yet.
func (c *Client) WallclockOffsetSeconds() (float64, bool) {
	c.offsetMu.RLock()
	defer c.offsetMu.RUnlock()
	return c.clockOffsetSec, c.haveOffset
}

// RelativeTimestampSeconds converts an RTP timestamp to seconds using
// the session's clock rate.
func (c *Client) RelativeTimestampSeconds(rtpTimestamp uint32) float64 {
	if c.media.ClockRate == 0 {
		return 0
	}
	return float64(rtpTimestamp) / float64(c.media.ClockRate)
}

// AbsoluteTimestampSeconds converts an RTP timestamp to Unix wallclock
// seconds using the most recently observed RTCP Sender Report. It
// returns ErrClockOffsetUnavailable if no SR has arrived yet, in which
// case the caller must drop the packet rather than emit a bogus time.
func (c *Client) AbsoluteTimestampSeconds(rtpTimestamp uint32) (float64, error) {
	offset, ok := c.WallclockOffsetSeconds()
	if !ok {
		return 0, ErrClockOffsetUnavailable
	}
	return c.RelativeTimestampSeconds(rtpTimestamp) + offset, nil
}

// handleSenderReport updates the cached clock offset from one RTCP SR,
// unconditionally replacing any previous value with the most recent
// report (Open Question: always trust the latest SR, no smoothing).
func (c *Client) handleSenderReport(sr *rtcp.SenderReport) {
	ntpSeconds := sr.NTPTime >> 32
	ntpFrac := sr.NTPTime & 0xffffffff
	unixSeconds := float64(ntpSeconds) - ntpUnixEpochOffset + float64(ntpFrac)/4294967296.0

	offset := unixSeconds - c.RelativeTimestampSeconds(sr.RTPTime)

	c.offsetMu.Lock()
	c.clockOffsetSec = offset
	c.haveOffset = true
	c.offsetMu.Unlock()

	c.log.DebugRTCP("sender report processed", "ssrc", sr.SSRC, "offset_sec", offset)
}

// ReadPackets runs the interleaved-frame read loop until ctx is done or
// the connection closes. RTP frames (channel 0) are unmarshalled and
// delivered via OnRTPPacket; RTCP frames (channel 1) are scanned for
// Sender Reports to update the wallclock offset.
func (c *Client) ReadPackets(ctx context.Context) error {
	playResponseSeen := false

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := c.conn.SetReadDeadline(time.Now().Add(10 * time.Second)); err != nil {
			return fmt.Errorf("set read deadline: %w", err)
		}

		head, err := c.reader.Peek(4)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			return fmt.Errorf("peek: %w", err)
		}

		if head[0] != '$' {
			if string(head) == "RTSP" {
				resp, err := c.readResponseNoDeadline()
				if err != nil {
					return fmt.Errorf("read response: %w", err)
				}
				if !playResponseSeen {
					playResponseSeen = true
					c.log.DebugRTSP("PLAY response received", "status", resp.StatusCode)
				}
				continue
			}
			// Resync: discard one byte and retry.
			if _, err := c.reader.ReadByte(); err != nil {
				return fmt.Errorf("resync: %w", err)
			}
			continue
		}

		channel := head[1]
		size := binary.BigEndian.Uint16(head[2:4])
		if _, err := c.reader.Discard(4); err != nil {
			return fmt.Errorf("discard header: %w", err)
		}

		payload := make([]byte, size)
		if _, err := io.ReadFull(c.reader, payload); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("read payload: %w", err)
		}

		if channel%2 == 0 {
			packet := &rtp.Packet{}
			if err := packet.Unmarshal(payload); err != nil {
				c.log.DebugRTSP("failed to unmarshal RTP packet", "error", err)
				continue
			}
			if c.OnRTPPacket != nil {
				c.OnRTPPacket(packet)
			}
		} else {
			packets, err := rtcp.Unmarshal(payload)
			if err != nil {
				c.log.DebugRTCP("failed to unmarshal RTCP packet", "error", err)
				continue
			}
			for _, pkt := range packets {
				if sr, ok := pkt.(*rtcp.SenderReport); ok {
					c.handleSenderReport(sr)
				}
			}
		}
	}
}

func (c *Client) options() error {
	req := c.newRequest("OPTIONS", c.url)
	_, err := c.do(req)
	return err
}

func (c *Client) describe(u *url.URL) error {
	req := c.newRequest("DESCRIBE", c.url)
	req.Header["Accept"] = "application/sdp"
	if u.User != nil {
		username := u.User.Username()
		password, _ := u.User.Password()
		auth := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
		req.Header["Authorization"] = "Basic " + auth
	}

	resp, err := c.do(req)
	if err != nil {
		return err
	}

	if base := resp.Header["Content-Base"]; base != "" {
		c.baseURL = strings.TrimSpace(base)
	} else {
		c.baseURL = c.url
	}

	return c.parseSDP(resp.Body)
}

// parseSDP uses pion/sdp/v3 to parse the session description and
// extracts the primary media track's clock rate, encoding name, fmtp
// parameters and control attribute. The primary media is the first
// one of type "video" or "application" (gaze/imu/eye-events streams
// are "application"; scene/eye video streams are "video").
func (c *Client) parseSDP(body []byte) error {
	var sess sdp.SessionDescription
	if err := sess.Unmarshal(body); err != nil {
		return fmt.Errorf("unmarshal SDP: %w", err)
	}

	var md *sdp.MediaDescription
	for _, candidate := range sess.MediaDescriptions {
		if candidate.MediaName.Media == "video" || candidate.MediaName.Media == "application" {
			md = candidate
			break
		}
	}
	if md == nil {
		return ErrSDPDataNotAvailable
	}

	media := Media{Type: md.MediaName.Media, FmtpParams: make(map[string]string)}

	for _, attr := range md.Attributes {
		switch attr.Key {
		case "control":
			media.Control = attr.Value
		case "rtpmap":
			// "<payload type> <encoding>/<clock rate>[/<channels>]"
			fields := strings.Fields(attr.Value)
			if len(fields) == 2 {
				encParts := strings.Split(fields[1], "/")
				media.Encoding = encParts[0]
				if len(encParts) > 1 {
					if rate, err := strconv.ParseUint(encParts[1], 10, 32); err == nil {
						media.ClockRate = uint32(rate)
					}
				}
			}
		case "fmtp":
			fields := strings.SplitN(attr.Value, " ", 2)
			if len(fields) == 2 {
				for _, kv := range strings.Split(fields[1], ";") {
					kv = strings.TrimSpace(kv)
					if idx := strings.IndexByte(kv, '='); idx > 0 {
						media.FmtpParams[kv[:idx]] = kv[idx+1:]
					}
				}
			}
		}
	}

	c.media = media
	c.log.DebugRTSP("parsed SDP", "type", media.Type, "encoding", media.Encoding, "clock_rate", media.ClockRate)
	return nil
}

func (c *Client) setup() error {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return err
	}
	control := c.media.Control
	if strings.HasPrefix(control, "rtsp://") || strings.HasPrefix(control, "rtsps://") {
		u, err = url.Parse(control)
		if err != nil {
			return err
		}
	} else if control != "" {
		u.Path = strings.TrimSuffix(u.Path, "/") + "/" + strings.TrimPrefix(control, "/")
	}

	req := c.newRequest("SETUP", u.String())
	req.Header["Transport"] = "RTP/AVP/TCP;unicast;interleaved=0-1"

	resp, err := c.do(req)
	if err != nil {
		return err
	}

	if session := resp.Header["Session"]; session != "" {
		if idx := strings.IndexByte(session, ';'); idx > 0 {
			c.session = session[:idx]
		} else {
			c.session = session
		}
	}
	return nil
}

func (c *Client) newRequest(method, reqURL string) *Request {
	c.cseq++
	return &Request{Method: method, URL: reqURL, Header: make(map[string]string), CSeq: c.cseq}
}

func (c *Client) do(req *Request) (*Response, error) {
	if err := c.writeRequest(req); err != nil {
		return nil, err
	}
	return c.readResponse()
}

func (c *Client) writeRequest(req *Request) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.session != "" {
		req.Header["Session"] = c.session
	}

	var buf strings.Builder
	fmt.Fprintf(&buf, "%s %s RTSP/1.0\r\n", req.Method, req.URL)
	fmt.Fprintf(&buf, "CSeq: %d\r\n", req.CSeq)
	buf.WriteString("User-Agent: neon-realtime/1.0\r\n")
	for k, v := range req.Header {
		fmt.Fprintf(&buf, "%s: %s\r\n", k, v)
	}
	buf.WriteString("\r\n")

	if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
		return err
	}
	_, err := c.conn.Write([]byte(buf.String()))
	return err
}

func (c *Client) readResponse() (*Response, error) {
	if err := c.conn.SetReadDeadline(time.Now().Add(15 * time.Second)); err != nil {
		return nil, err
	}
	return c.readResponseNoDeadline()
}

func (c *Client) readResponseNoDeadline() (*Response, error) {
	statusLine, err := c.reader.ReadString('\n')
	if err != nil {
		return nil, err
	}

	parts := strings.SplitN(strings.TrimSpace(statusLine), " ", 3)
	if len(parts) < 2 {
		return nil, fmt.Errorf("invalid status line: %s", statusLine)
	}
	statusCode, err := strconv.Atoi(parts[1])
	if err != nil {
		return nil, fmt.Errorf("invalid status code: %s", parts[1])
	}

	resp := &Response{StatusCode: statusCode, Header: make(map[string]string)}

	var contentLength int
	for {
		line, err := c.reader.ReadString('\n')
		if err != nil {
			return nil, err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			break
		}
		if idx := strings.IndexByte(line, ':'); idx > 0 {
			key := strings.TrimSpace(line[:idx])
			value := strings.TrimSpace(line[idx+1:])
			resp.Header[key] = value
			if key == "Content-Length" {
				contentLength, _ = strconv.Atoi(value)
			}
		}
	}

	if contentLength > 0 {
		body := make([]byte, contentLength)
		if _, err := io.ReadFull(c.reader, body); err != nil {
			return nil, err
		}
		resp.Body = body
	}

	if statusCode != 200 {
		return nil, fmt.Errorf("RTSP error: %d", statusCode)
	}
	return resp, nil
}

// Request is an RTSP request.
type Request struct {
	Method string
	URL    string
	Header map[string]string
	CSeq   int
}

// Response is an RTSP response.
type Response struct {
	StatusCode int
	Header     map[string]string
	Body       []byte
}
