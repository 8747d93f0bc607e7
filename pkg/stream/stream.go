// Package stream implements the per-sensor stream lifecycle manager
// (C6): it owns the RTSP connection for a single sensor, starts and
// stops it in response to sensor-status updates and an externally
// controlled "should be streaming" flag, and feeds decoded samples onto
// an output channel.
package stream

import (
	"context"
	"fmt"
	"sync"

	"github.com/pion/rtp"

	"github.com/ethan/neon-realtime/pkg/logger"
	"github.com/ethan/neon-realtime/pkg/metrics"
	"github.com/ethan/neon-realtime/pkg/models"
	rtspClient "github.com/ethan/neon-realtime/pkg/rtsp"
)

// Feeder converts RTP packets arriving on one sensor's stream into
// decoded samples. decode.VideoStreamDecoder already satisfies this
// interface; DecodeFunc adapts the single-packet-per-sample decoders
// (gaze, IMU, eye events) into one.
type Feeder[T any] interface {
	Feed(packet *rtp.Packet, wallclockSeconds float64) (item T, ok bool, err error)
}

// DecodeFunc decodes one RTP payload plus its wallclock timestamp into
// a sample, for sensors where a single RTP packet carries one complete
// sample (gaze, IMU, eye events).
type DecodeFunc[T any] func(raw []byte, wallclockSeconds float64) (T, error)

type simpleFeeder[T any] struct {
	decode DecodeFunc[T]
}

func (f simpleFeeder[T]) Feed(packet *rtp.Packet, wallclockSeconds float64) (T, bool, error) {
	item, err := f.decode(packet.Payload, wallclockSeconds)
	if err != nil {
		var zero T
		return zero, false, err
	}
	return item, true, nil
}

// NewSimpleFeeder adapts a DecodeFunc into a Feeder.
func NewSimpleFeeder[T any](decode DecodeFunc[T]) Feeder[T] {
	return simpleFeeder[T]{decode: decode}
}

// OptionalDecodeFunc decodes one RTP payload into zero or one samples,
// for sensors whose wire format includes keep-alive payloads that
// should be silently dropped rather than delivered (eye events).
type OptionalDecodeFunc[T any] func(raw []byte, wallclockSeconds float64) (T, bool, error)

type optionalFeeder[T any] struct {
	decode OptionalDecodeFunc[T]
}

func (f optionalFeeder[T]) Feed(packet *rtp.Packet, wallclockSeconds float64) (T, bool, error) {
	return f.decode(packet.Payload, wallclockSeconds)
}

// NewOptionalFeeder adapts an OptionalDecodeFunc into a Feeder.
func NewOptionalFeeder[T any](decode OptionalDecodeFunc[T]) Feeder[T] {
	return optionalFeeder[T]{decode: decode}
}

// Manager owns the RTSP lifecycle for one sensor and emits decoded
// samples of type T onto Output().
type Manager[T any] struct {
	name   models.SensorName
	feeder Feeder[T]
	log    *logger.Logger
	output chan T

	// Metrics is optional; a nil value disables instrumentation.
	Metrics *metrics.Metrics

	mu           sync.Mutex
	shouldStream bool
	recentSensor models.Sensor
	streamCancel context.CancelFunc
	streamDone   chan struct{}
}

// NewManager returns a Manager for the named sensor. outputCapacity
// sizes the buffered output channel; a full channel drops the oldest
// pending sample rather than blocking the RTP read loop.
func NewManager[T any](name models.SensorName, feeder Feeder[T], log *logger.Logger, outputCapacity int) *Manager[T] {
	if outputCapacity <= 0 {
		outputCapacity = 1
	}
	return &Manager[T]{
		name:   name,
		feeder: feeder,
		log:    log,
		output: make(chan T, outputCapacity),
	}
}

// Output returns the channel decoded samples are delivered on.
func (m *Manager[T]) Output() <-chan T {
	return m.output
}

// SetShouldStream toggles the manager's intended streaming state. If
// streaming becomes desired and a connected sensor is already known,
// the stream starts immediately; if streaming becomes undesired, any
// active stream is stopped.
func (m *Manager[T]) SetShouldStream(ctx context.Context, should bool) {
	m.mu.Lock()
	if m.shouldStream == should {
		m.mu.Unlock()
		return
	}
	m.shouldStream = should
	sensor := m.recentSensor
	m.mu.Unlock()

	if should {
		m.startIfIntended(ctx, sensor)
	} else {
		m.stopIfRunning()
	}
}

// HandleSensorUpdate stops any stream running against the previous
// sensor state and, if streaming is intended and the new sensor is
// connected, starts a fresh one against it.
func (m *Manager[T]) HandleSensorUpdate(ctx context.Context, sensor models.Sensor) {
	m.stopIfRunning()

	m.mu.Lock()
	m.recentSensor = sensor
	shouldStream := m.shouldStream
	m.mu.Unlock()

	if shouldStream {
		m.startIfIntended(ctx, sensor)
	}
}

// Stop unconditionally stops any active stream. Safe to call when
// nothing is running.
func (m *Manager[T]) Stop() {
	m.stopIfRunning()
}

// IsStreaming reports whether streaming is currently intended (not
// necessarily connected -- HandleSensorUpdate may still be waiting on a
// connected sensor).
func (m *Manager[T]) IsStreaming() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.shouldStream
}

func (m *Manager[T]) startIfIntended(ctx context.Context, sensor models.Sensor) {
	if !sensor.Connected || sensor.URL() == "" {
		return
	}

	streamCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	m.mu.Lock()
	m.streamCancel = cancel
	m.streamDone = done
	m.mu.Unlock()

	m.log.DebugStream("starting stream", "sensor", string(m.name), "url", sensor.URL())
	m.Metrics.IncStreamReconnects(string(m.name))
	go m.run(streamCtx, sensor, done)
}

func (m *Manager[T]) stopIfRunning() {
	m.mu.Lock()
	cancel := m.streamCancel
	done := m.streamDone
	m.streamCancel = nil
	m.streamDone = nil
	m.mu.Unlock()

	if cancel == nil {
		return
	}
	m.log.DebugStream("stopping stream", "sensor", string(m.name))
	cancel()
	<-done
}

func (m *Manager[T]) run(ctx context.Context, sensor models.Sensor, done chan struct{}) {
	defer close(done)

	client := rtspClient.NewClient(sensor.URL(), m.log)
	if err := client.Connect(ctx); err != nil {
		m.log.Warn("stream connect failed", "sensor", string(m.name), "error", err)
		return
	}
	defer client.Close()

	client.OnRTPPacket = func(packet *rtp.Packet) {
		wallclock, err := client.AbsoluteTimestampSeconds(packet.Timestamp)
		if err != nil {
			m.log.DebugStream("dropping packet before wallclock offset known", "sensor", string(m.name))
			return
		}

		item, ok, err := m.feeder.Feed(packet, wallclock)
		if err != nil {
			m.log.Warn("decode error", "sensor", string(m.name), "error", err)
			return
		}
		if !ok {
			return
		}

		select {
		case m.output <- item:
		default:
			select {
			case <-m.output:
			default:
			}
			select {
			case m.output <- item:
			default:
			}
		}
	}

	if err := client.Play(ctx); err != nil {
		m.log.Warn("stream play failed", "sensor", string(m.name), "error", err)
		return
	}

	if err := client.ReadPackets(ctx); err != nil && ctx.Err() == nil {
		m.log.Warn("stream read error", "sensor", string(m.name), "error", err)
	}
}

// ErrNotConnected is returned by callers that need an active sensor
// before a stream can start.
var ErrNotConnected = fmt.Errorf("stream: sensor not connected")
