// Package device implements the concurrent device orchestrator (C8): a
// synchronous receive_* API backed by a background goroutine that keeps
// device status current, manages per-sensor stream lifecycles, and
// performs cross-stream timestamp matching.
//
// This replaces the reference implementation's weakref-linked
// background thread with explicit handle passing: the background
// goroutine owns everything it touches directly rather than reaching
// back into the Device through a weak reference.
package device

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethan/neon-realtime/pkg/control"
	"github.com/ethan/neon-realtime/pkg/decode"
	"github.com/ethan/neon-realtime/pkg/logger"
	"github.com/ethan/neon-realtime/pkg/match"
	"github.com/ethan/neon-realtime/pkg/metrics"
	"github.com/ethan/neon-realtime/pkg/models"
	"github.com/ethan/neon-realtime/pkg/stream"
	"github.com/ethan/neon-realtime/pkg/timeecho"
	"github.com/ethan/neon-realtime/pkg/tracing"
)

// MatchedGazeScene pairs a scene (world) video frame with its closest
// gaze sample.
type MatchedGazeScene = match.MatchedGazeScene[decode.VideoFrame, decode.GazeSample]

// MatchedGazeEyesScene additionally pairs in the closest eye-camera
// frame.
type MatchedGazeEyesScene = match.MatchedGazeEyesScene[decode.VideoFrame, decode.GazeSample, decode.VideoFrame]

// mailbox holds at most one pending item, matching the reference
// implementation's collections.deque(maxlen=1) mailboxes: a fresh item
// always replaces whatever is waiting to be received.
type mailbox[T any] struct {
	ch chan T
}

func newMailbox[T any]() *mailbox[T] {
	return &mailbox[T]{ch: make(chan T, 1)}
}

func (m *mailbox[T]) Put(item T) {
	for {
		select {
		case m.ch <- item:
			return
		default:
		}
		select {
		case <-m.ch:
		default:
		}
	}
}

// Receive blocks until an item is available, ctx is canceled, or
// timeout elapses (a zero timeout waits indefinitely).
func (m *mailbox[T]) Receive(ctx context.Context, timeout time.Duration) (T, bool) {
	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}
	select {
	case item := <-m.ch:
		return item, true
	case <-timeoutCh:
		var zero T
		return zero, false
	case <-ctx.Done():
		var zero T
		return zero, false
	}
}

// Device is the synchronous façade over one Realtime API device: status
// tracking, recording/event/template/calibration control actions, and
// buffered receive_* accessors for each streamed sensor plus matched
// scene/gaze/eyes combinations.
type Device struct {
	Control *control.Client
	log     *logger.Logger
	metrics *metrics.Metrics

	status *models.Status

	gazeMgr      *stream.Manager[decode.GazeSample]
	worldMgr     *stream.Manager[decode.VideoFrame]
	eyesMgr      *stream.Manager[decode.VideoFrame]
	imuMgr       *stream.Manager[decode.IMUSample]
	eyeEventsMgr *stream.Manager[any]

	gazeCache    *match.Cache[decode.GazeSample]
	eyesCache    *match.Cache[decode.VideoFrame]
	sceneMatcher *match.SceneMatcher[decode.VideoFrame, decode.GazeSample, decode.VideoFrame]

	gazeBox        *mailbox[decode.GazeSample]
	worldBox       *mailbox[decode.VideoFrame]
	eyesBox        *mailbox[decode.VideoFrame]
	imuBox         *mailbox[decode.IMUSample]
	eyeEventsBox   *mailbox[any]
	matchedBox     *mailbox[MatchedGazeScene]
	matchedEyesBox *mailbox[MatchedGazeEyesScene]

	errorsMu sync.Mutex
	errors   []string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Config controls cache sizes and the initial streaming state.
type Config struct {
	GazeCacheCapacity       int
	EyesCacheCapacity       int
	StartStreamingByDefault bool

	// Metrics and Tracer are both optional; a nil value disables
	// instrumentation rather than requiring a registry/SDK.
	Metrics *metrics.Metrics
	Tracer  *tracing.Tracer
}

// DefaultConfig returns the reference implementation's defaults: a
// 3-4 second gaze/eyes matching window at typical sample rates, and
// streams not started until first requested.
func DefaultConfig() Config {
	return Config{GazeCacheCapacity: 200, EyesCacheCapacity: 200}
}

// Open connects to a device's control plane, fetches its initial
// status, and starts the background worker that keeps status current
// and hosts per-sensor stream managers.
func Open(ctx context.Context, address string, port int, log *logger.Logger, cfg Config) (*Device, error) {
	ctrl := control.NewClient(address, port, log)
	ctrl.Metrics = cfg.Metrics
	ctrl.Tracer = cfg.Tracer

	status, err := ctrl.GetStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("device: initial status fetch: %w", err)
	}

	deviceCtx, cancel := context.WithCancel(ctx)

	d := &Device{
		Control: ctrl,
		log:     log,
		metrics: cfg.Metrics,
		status:  status,

		gazeCache: match.NewCache[decode.GazeSample](cfg.GazeCacheCapacity),
		eyesCache: match.NewCache[decode.VideoFrame](cfg.EyesCacheCapacity),

		gazeBox:        newMailbox[decode.GazeSample](),
		worldBox:       newMailbox[decode.VideoFrame](),
		eyesBox:        newMailbox[decode.VideoFrame](),
		imuBox:         newMailbox[decode.IMUSample](),
		eyeEventsBox:   newMailbox[any](),
		matchedBox:     newMailbox[MatchedGazeScene](),
		matchedEyesBox: newMailbox[MatchedGazeEyesScene](),

		ctx:    deviceCtx,
		cancel: cancel,
	}
	d.sceneMatcher = match.NewSceneMatcher[decode.VideoFrame, decode.GazeSample, decode.VideoFrame](d.gazeCache, d.eyesCache)

	d.gazeMgr = stream.NewManager(models.SensorGaze, stream.NewSimpleFeeder(decode.GazeFromRaw), log, 4)
	d.worldMgr = stream.NewManager(models.SensorWorld, decode.NewVideoStreamDecoder(nil), log, 4)
	d.eyesMgr = stream.NewManager(models.SensorEyes, decode.NewVideoStreamDecoder(nil), log, 4)
	d.imuMgr = stream.NewManager(models.SensorImu, stream.NewSimpleFeeder(decode.IMUFromRaw), log, 4)
	d.eyeEventsMgr = stream.NewManager(models.SensorEyeEvents, stream.NewOptionalFeeder(func(raw []byte, ts float64) (any, bool, error) {
		item, err := decode.EyeEventFromRaw(raw, ts)
		if err != nil {
			return nil, false, err
		}
		return item, item != nil, nil
	}), log, 4)

	d.gazeMgr.Metrics = cfg.Metrics
	d.worldMgr.Metrics = cfg.Metrics
	d.eyesMgr.Metrics = cfg.Metrics
	d.imuMgr.Metrics = cfg.Metrics
	d.eyeEventsMgr.Metrics = cfg.Metrics

	d.wg.Add(1)
	go d.forwardGaze()
	d.wg.Add(1)
	go d.forwardWorld()
	d.wg.Add(1)
	go d.forwardEyes()
	d.wg.Add(1)
	go d.forwardIMU()
	d.wg.Add(1)
	go d.forwardEyeEvents()

	d.wg.Add(1)
	go d.runStatusNotifier()

	if cfg.StartStreamingByDefault {
		d.StreamingStart(models.SensorAny)
	}

	for _, sensor := range status.Sensors() {
		d.dispatchSensorUpdate(sensor)
	}

	return d, nil
}

func (d *Device) forwardGaze() {
	defer d.wg.Done()
	for {
		select {
		case <-d.ctx.Done():
			return
		case item, ok := <-d.gazeMgr.Output():
			if !ok {
				return
			}
			d.gazeBox.Put(item)
			d.gazeCache.Append(item)
			d.metrics.IncPacketsReceived(string(models.SensorGaze))
		}
	}
}

func (d *Device) forwardWorld() {
	defer d.wg.Done()
	for {
		select {
		case <-d.ctx.Done():
			return
		case item, ok := <-d.worldMgr.Output():
			if !ok {
				return
			}
			d.worldBox.Put(item)
			d.metrics.IncPacketsReceived(string(models.SensorWorld))

			gazeMatch, gazeEyesMatch, haveGazeEyes, ok := d.sceneMatcher.Match(item)
			if !ok {
				d.log.DebugMatch("no cached gaze datum available for matching")
				continue
			}
			d.matchedBox.Put(gazeMatch)
			d.metrics.IncMatchesProduced("gaze_scene")
			if haveGazeEyes {
				d.matchedEyesBox.Put(gazeEyesMatch)
				d.metrics.IncMatchesProduced("gaze_eyes_scene")
			}
		}
	}
}

func (d *Device) forwardEyes() {
	defer d.wg.Done()
	for {
		select {
		case <-d.ctx.Done():
			return
		case item, ok := <-d.eyesMgr.Output():
			if !ok {
				return
			}
			d.eyesBox.Put(item)
			d.eyesCache.Append(item)
			d.metrics.IncPacketsReceived(string(models.SensorEyes))
		}
	}
}

func (d *Device) forwardIMU() {
	defer d.wg.Done()
	for {
		select {
		case <-d.ctx.Done():
			return
		case item, ok := <-d.imuMgr.Output():
			if !ok {
				return
			}
			d.imuBox.Put(item)
			d.metrics.IncPacketsReceived(string(models.SensorImu))
		}
	}
}

func (d *Device) forwardEyeEvents() {
	defer d.wg.Done()
	for {
		select {
		case <-d.ctx.Done():
			return
		case item, ok := <-d.eyeEventsMgr.Output():
			if !ok {
				return
			}
			d.eyeEventsBox.Put(item)
		}
	}
}

func (d *Device) runStatusNotifier() {
	defer d.wg.Done()
	err := d.Control.StatusUpdateNotifier(d.ctx, func(c models.Component) {
		d.status.Update(c)
		d.dispatchSensorUpdate(c)
		d.recordErrorIfAny(c)
	})
	if err != nil && d.ctx.Err() == nil {
		d.log.Warn("status update notifier exited", "error", err)
	}
}

func (d *Device) dispatchSensorUpdate(c models.Component) {
	sensor, ok := c.(models.Sensor)
	if !ok || sensor.ConnType != models.ConnectionDirect {
		return
	}

	switch sensor.Name {
	case models.SensorGaze:
		d.gazeMgr.HandleSensorUpdate(d.ctx, sensor)
	case models.SensorWorld:
		d.worldMgr.HandleSensorUpdate(d.ctx, sensor)
	case models.SensorEyes:
		d.eyesMgr.HandleSensorUpdate(d.ctx, sensor)
	case models.SensorImu:
		d.imuMgr.HandleSensorUpdate(d.ctx, sensor)
	case models.SensorEyeEvents:
		d.eyeEventsMgr.HandleSensorUpdate(d.ctx, sensor)
	default:
		d.log.DebugStatus("unhandled direct sensor", "sensor", string(sensor.Name))
	}
}

func (d *Device) recordErrorIfAny(c models.Component) {
	switch v := c.(type) {
	case models.Recording:
		if v.Action == "ERROR" {
			d.appendError(v.Message)
		}
	case models.Sensor:
		if v.StreamError {
			d.appendError(fmt.Sprintf("stream error in sensor %s", v.Name))
		}
	}
}

func (d *Device) appendError(msg string) {
	d.errorsMu.Lock()
	defer d.errorsMu.Unlock()
	for _, existing := range d.errors {
		if existing == msg {
			return
		}
	}
	d.errors = append(d.errors, msg)
}

// GetErrors drains and returns any accumulated stream/recording errors.
func (d *Device) GetErrors() []string {
	d.errorsMu.Lock()
	defer d.errorsMu.Unlock()
	errs := d.errors
	d.errors = nil
	return errs
}

// Status returns the live, continuously-updated device status snapshot.
func (d *Device) Status() *models.Status { return d.status }

// startStreamIfNeeded lazily starts a stream the first time a
// receive_* call asks for it, matching the reference implementation's
// start_stream_if_needed.
func (d *Device) startStreamIfNeeded(name models.SensorName) {
	switch name {
	case models.SensorGaze:
		if !d.gazeMgr.IsStreaming() {
			d.gazeMgr.SetShouldStream(d.ctx, true)
		}
	case models.SensorWorld:
		if !d.worldMgr.IsStreaming() {
			d.worldMgr.SetShouldStream(d.ctx, true)
		}
	case models.SensorEyes:
		if !d.eyesMgr.IsStreaming() {
			d.eyesMgr.SetShouldStream(d.ctx, true)
		}
	case models.SensorImu:
		if !d.imuMgr.IsStreaming() {
			d.imuMgr.SetShouldStream(d.ctx, true)
		}
	case models.SensorEyeEvents:
		if !d.eyeEventsMgr.IsStreaming() {
			d.eyeEventsMgr.SetShouldStream(d.ctx, true)
		}
	}
}

// ReceiveSceneVideoFrame waits for the next scene (world) camera frame.
func (d *Device) ReceiveSceneVideoFrame(timeout time.Duration) (decode.VideoFrame, bool) {
	d.startStreamIfNeeded(models.SensorWorld)
	return d.worldBox.Receive(d.ctx, timeout)
}

// ReceiveGazeDatum waits for the next gaze sample.
func (d *Device) ReceiveGazeDatum(timeout time.Duration) (decode.GazeSample, bool) {
	d.startStreamIfNeeded(models.SensorGaze)
	return d.gazeBox.Receive(d.ctx, timeout)
}

// ReceiveEyesVideoFrame waits for the next eye-camera frame.
func (d *Device) ReceiveEyesVideoFrame(timeout time.Duration) (decode.VideoFrame, bool) {
	d.startStreamIfNeeded(models.SensorEyes)
	return d.eyesBox.Receive(d.ctx, timeout)
}

// ReceiveIMUDatum waits for the next IMU sample.
func (d *Device) ReceiveIMUDatum(timeout time.Duration) (decode.IMUSample, bool) {
	d.startStreamIfNeeded(models.SensorImu)
	return d.imuBox.Receive(d.ctx, timeout)
}

// ReceiveEyeEvent waits for the next eye event (a decode.FixationEvent,
// decode.BlinkEvent or decode.FixationOnsetEvent).
func (d *Device) ReceiveEyeEvent(timeout time.Duration) (any, bool) {
	d.startStreamIfNeeded(models.SensorEyeEvents)
	return d.eyeEventsBox.Receive(d.ctx, timeout)
}

// ReceiveMatchedSceneVideoFrameAndGaze waits for the next scene frame
// matched with its closest gaze sample.
func (d *Device) ReceiveMatchedSceneVideoFrameAndGaze(timeout time.Duration) (MatchedGazeScene, bool) {
	d.startStreamIfNeeded(models.SensorGaze)
	d.startStreamIfNeeded(models.SensorWorld)
	return d.matchedBox.Receive(d.ctx, timeout)
}

// ReceiveMatchedSceneAndEyesVideoFramesAndGaze waits for the next scene
// frame matched with its closest gaze sample and eye-camera frame.
func (d *Device) ReceiveMatchedSceneAndEyesVideoFramesAndGaze(timeout time.Duration) (MatchedGazeEyesScene, bool) {
	d.startStreamIfNeeded(models.SensorGaze)
	d.startStreamIfNeeded(models.SensorEyes)
	d.startStreamIfNeeded(models.SensorWorld)
	return d.matchedEyesBox.Receive(d.ctx, timeout)
}

// StreamingStart starts streaming the named sensor, or every sensor if
// name is models.SensorAny.
func (d *Device) StreamingStart(name models.SensorName) {
	d.forEachManagedSensor(name, func(setStream func(context.Context, bool)) {
		setStream(d.ctx, true)
	})
}

// StreamingStop stops streaming the named sensor, or every sensor if
// name is models.SensorAny.
func (d *Device) StreamingStop(name models.SensorName) {
	d.forEachManagedSensor(name, func(setStream func(context.Context, bool)) {
		setStream(d.ctx, false)
	})
}

func (d *Device) forEachManagedSensor(name models.SensorName, apply func(setStream func(context.Context, bool))) {
	managers := map[models.SensorName]func(context.Context, bool){
		models.SensorGaze:      d.gazeMgr.SetShouldStream,
		models.SensorWorld:     d.worldMgr.SetShouldStream,
		models.SensorEyes:      d.eyesMgr.SetShouldStream,
		models.SensorImu:       d.imuMgr.SetShouldStream,
		models.SensorEyeEvents: d.eyeEventsMgr.SetShouldStream,
	}

	if name == models.SensorAny {
		for _, setStream := range managers {
			apply(setStream)
		}
		return
	}
	if setStream, ok := managers[name]; ok {
		apply(setStream)
	}
}

// IsCurrentlyStreaming reports whether streaming is switched on for any
// sensor (see stream.Manager.IsStreaming); it does not check that an
// RTSP session is actually connected.
func (d *Device) IsCurrentlyStreaming() bool {
	return d.gazeMgr.IsStreaming() || d.worldMgr.IsStreaming() || d.eyesMgr.IsStreaming() ||
		d.imuMgr.IsStreaming() || d.eyeEventsMgr.IsStreaming()
}

// EstimateTimeOffset runs the Time Echo protocol against the device's
// phone, returning nil if the phone app predates Time Echo support.
func (d *Device) EstimateTimeOffset(numberOfMeasurements int, sleepBetweenMeasurements time.Duration) (*timeecho.Estimates, error) {
	phone := d.status.Phone()
	if !phone.HasTimeEcho {
		d.log.Warn("device does not support the Time Echo protocol; update the companion app")
		return nil, nil
	}
	ctx, end := d.Control.Tracer.StartTimeEchoSpan(d.ctx, numberOfMeasurements)
	estimator := timeecho.NewEstimator(phone.IP, phone.TimeEchoPort, d.log)
	estimates, err := estimator.Estimate(ctx, numberOfMeasurements, sleepBetweenMeasurements, timeecho.TimeNowMS)
	end(err)
	if err == nil {
		d.metrics.SetTimeOffsetMillis(estimates.TimeOffsetMS.Mean)
	}
	return estimates, err
}

// Close stops all streams, the status notifier, and waits for the
// background worker to exit.
func (d *Device) Close() {
	if d.IsCurrentlyStreaming() {
		d.StreamingStop(models.SensorAny)
	}
	d.cancel()
	d.wg.Wait()
}
