package decode

import (
	"github.com/pion/rtp"

	"github.com/ethan/neon-realtime/pkg/nal"
)

// VideoFrame is one complete access unit of Annex-B H.264 NAL units.
//
// A frame's timestamp is deliberately the wallclock timestamp of the *previous* RTP packet
// boundary, not the packet that closed out this access unit -- matching
// the reference implementation's pyav-based decoder, which only updates
// its cached frame_timestamp after yielding decoded frames.
type VideoFrame struct {
	Timestamp
	NALUs    []byte
	Keyframe bool
}

// VideoStreamDecoder accumulates RTP payloads into access units using
// the RTP marker bit (set on the last packet of an access unit, per
// RFC 6184) as the boundary signal.
type VideoStreamDecoder struct {
	buf               []byte
	keyframe          bool
	havePrevTimestamp bool
	prevTimestampSec  float64
}

// NewVideoStreamDecoder returns a decoder optionally seeded with the
// SDP's sprop-parameter-sets (SPS/PPS), prepended as Annex-B NAL units
// ahead of the first frame's slice data.
func NewVideoStreamDecoder(spropParameterSets [][]byte) *VideoStreamDecoder {
	d := &VideoStreamDecoder{}
	for _, ps := range spropParameterSets {
		extracted, err := nal.ExtractPayloadFromNALUnit(ps)
		if err != nil {
			continue
		}
		d.buf = append(d.buf, extracted...)
	}
	return d
}

// Feed processes one RTP packet. It returns a non-nil frame once the
// packet closes out an access unit (RTP marker bit set), and ok=false
// if no frame is ready yet or the very first access unit had to be
// skipped because no previous-packet timestamp existed.
func (d *VideoStreamDecoder) Feed(packet *rtp.Packet, wallclockSeconds float64) (frame VideoFrame, ok bool, err error) {
	if len(packet.Payload) == 0 {
		return VideoFrame{}, false, nil
	}

	naluType := packet.Payload[0] & 0x1F
	extracted, extractErr := nal.ExtractPayloadFromNALUnit(packet.Payload)
	if extractErr != nil {
		return VideoFrame{}, false, extractErr
	}
	d.buf = append(d.buf, extracted...)
	if naluType == nal.NALUTypeIFrame {
		d.keyframe = true
	}

	if !packet.Marker {
		return VideoFrame{}, false, nil
	}

	ready := d.havePrevTimestamp
	if ready {
		frame = VideoFrame{
			Timestamp: Timestamp{UnixSeconds: d.prevTimestampSec},
			NALUs:     d.buf,
			Keyframe:  d.keyframe,
		}
	}

	d.buf = nil
	d.keyframe = false
	d.prevTimestampSec = wallclockSeconds
	d.havePrevTimestamp = true

	return frame, ready, nil
}
