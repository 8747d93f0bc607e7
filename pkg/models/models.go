// Package models implements the closed status/control data model (C5):
// Phone, Hardware, Sensor, Recording, NetworkDevice and Event, merged into
// a Status snapshot kept current by control-plane updates.
//
// The on-device API describes each update as a {"model": "...", "data":
// {...}} tuple. Rather than dispatch on the model string with reflection,
// every known model decodes into one variant of a closed Component sum
// type (DESIGN NOTES: replace dynamic dispatch-by-string-model-name with
// a closed sum type).
package models

import (
	"fmt"
	"sort"
	"sync"

	"github.com/tidwall/gjson"
)

// Component is the closed sum type of everything a status update can carry.
type Component interface {
	isComponent()
}

// Phone describes the companion phone hosting the Realtime API server.
type Phone struct {
	BatteryLevel  int
	BatteryState  string
	DeviceID      string
	DeviceName    string
	IP            string
	Memory        int64
	MemoryState   string
	TimeEchoPort  int
	HasTimeEcho   bool
}

func (Phone) isComponent() {}

// Hardware describes the glasses hardware, defaulting every field to
// "unknown" like the reference implementation when the device omits them.
type Hardware struct {
	Version          string
	GlassesSerial    string
	WorldCameraSerial string
	ModuleSerial     string
}

func (Hardware) isComponent() {}

// DefaultHardware returns the zero-value-equivalent Hardware reported
// before any hardware status update has arrived.
func DefaultHardware() Hardware {
	return Hardware{
		Version:           "unknown",
		GlassesSerial:     "unknown",
		WorldCameraSerial: "unknown",
		ModuleSerial:      "unknown",
	}
}

// SensorName enumerates the sensors a device can stream. Unlike the
// original SensorName.ANY=None sentinel, Go expresses "match any" with a
// zero value reserved for that purpose: SensorAny.
type SensorName string

const (
	SensorAny       SensorName = ""
	SensorGaze      SensorName = "gaze"
	SensorWorld     SensorName = "world"
	SensorImu       SensorName = "imu"
	SensorEyes      SensorName = "eyes"
	SensorEyeEvents SensorName = "eye_events"
)

// ConnectionType enumerates how a sensor stream is reached.
type ConnectionType string

const (
	ConnectionAny       ConnectionType = ""
	ConnectionWebsocket ConnectionType = "WEBSOCKET"
	ConnectionDirect    ConnectionType = "DIRECT"
)

// Sensor describes one stream endpoint. Identity for merge purposes is
// the (Name, ConnType) pair, per the data model invariant that no two
// Sensor entries share both fields.
type Sensor struct {
	Name        SensorName
	ConnType    ConnectionType
	Connected   bool
	IP          string
	Params      string
	Port        int
	Protocol    string
	StreamError bool
}

func (Sensor) isComponent() {}

// URL returns the stream endpoint, or "" if the sensor is not connected.
func (s Sensor) URL() string {
	if !s.Connected {
		return ""
	}
	protocol := s.Protocol
	if protocol == "" {
		protocol = "rtsp"
	}
	return fmt.Sprintf("%s://%s:%d/?%s", protocol, s.IP, s.Port, s.Params)
}

// disconnected returns the synthetic placeholder Sensor used when no
// sensor with the requested (name, connType) exists yet.
func disconnected(name SensorName, connType ConnectionType) Sensor {
	return Sensor{Name: name, ConnType: connType, Connected: false}
}

// Recording describes the device's recording state machine.
type Recording struct {
	Action          string
	ID              string
	Message         string
	RecDurationNS   int64
}

func (Recording) isComponent() {}

// RecDurationSeconds converts RecDurationNS to seconds.
func (r Recording) RecDurationSeconds() float64 {
	return float64(r.RecDurationNS) / 1e9
}

// NetworkDevice describes a network peer reported by the device.
type NetworkDevice struct {
	IP         string
	DeviceID   string
	DeviceName string
	Connected  bool
}

func (NetworkDevice) isComponent() {}

// Event is a client- or device-originated timestamped marker.
type Event struct {
	Name         string
	RecordingID  string
	TimestampNS  int64
}

func (Event) isComponent() {}

// ErrUnknownComponent is returned when a status update names a model the
// client does not recognize.
type ErrUnknownComponent struct {
	Model string
}

func (e *ErrUnknownComponent) Error() string {
	return fmt.Sprintf("models: unknown component model %q", e.Model)
}

// ParseComponent decodes one {"model": ..., "data": ...} tuple.
func ParseComponent(raw []byte) (Component, error) {
	result := gjson.ParseBytes(raw)
	model := result.Get("model").String()
	data := result.Get("data")

	switch model {
	case "Phone":
		return Phone{
			BatteryLevel: int(data.Get("battery_level").Int()),
			BatteryState: data.Get("battery_state").String(),
			DeviceID:     data.Get("device_id").String(),
			DeviceName:   data.Get("device_name").String(),
			IP:           data.Get("ip").String(),
			Memory:       data.Get("memory").Int(),
			MemoryState:  data.Get("memory_state").String(),
			TimeEchoPort: int(data.Get("time_echo_port").Int()),
			HasTimeEcho:  data.Get("time_echo_port").Exists(),
		}, nil
	case "Hardware":
		hw := DefaultHardware()
		if v := data.Get("version"); v.Exists() {
			hw.Version = v.String()
		}
		if v := data.Get("glasses_serial"); v.Exists() {
			hw.GlassesSerial = v.String()
		}
		if v := data.Get("world_camera_serial"); v.Exists() {
			hw.WorldCameraSerial = v.String()
		}
		if v := data.Get("module_serial"); v.Exists() {
			hw.ModuleSerial = v.String()
		}
		return hw, nil
	case "Sensor":
		protocol := data.Get("protocol").String()
		if protocol == "" {
			protocol = "rtsp"
		}
		return Sensor{
			Name:        SensorName(data.Get("sensor").String()),
			ConnType:    ConnectionType(data.Get("conn_type").String()),
			Connected:   data.Get("connected").Bool(),
			IP:          data.Get("ip").String(),
			Params:      data.Get("params").String(),
			Port:        int(data.Get("port").Int()),
			Protocol:    protocol,
			StreamError: data.Get("stream_error").Bool(),
		}, nil
	case "Recording":
		return Recording{
			Action:        data.Get("action").String(),
			ID:            data.Get("id").String(),
			Message:       data.Get("message").String(),
			RecDurationNS: data.Get("rec_duration_ns").Int(),
		}, nil
	case "Event":
		return Event{
			Name:        data.Get("name").String(),
			RecordingID: data.Get("recording_id").String(),
			TimestampNS: data.Get("timestamp").Int(),
		}, nil
	case "NetworkDevice":
		return NetworkDevice{
			IP:         data.Get("ip").String(),
			DeviceID:   data.Get("device_id").String(),
			DeviceName: data.Get("device_name").String(),
			Connected:  data.Get("connected").Bool(),
		}, nil
	default:
		return nil, &ErrUnknownComponent{Model: model}
	}
}

// Status is the merged, current snapshot of device state.
type Status struct {
	mu        sync.RWMutex
	phone     Phone
	hardware  Hardware
	sensors   []Sensor
	recording *Recording
}

// NewStatus returns a Status with Hardware defaulted to "unknown" fields.
func NewStatus() *Status {
	return &Status{hardware: DefaultHardware()}
}

// FromComponents builds a Status from an initial GET /status result,
// applying the same sort and default rules as Update.
func FromComponents(components []Component) *Status {
	s := NewStatus()
	for _, c := range components {
		s.apply(c)
	}
	return s
}

// Update merges one component into the snapshot in place; it returns
// nothing, so Status.Update can be passed directly as a notifier callback.
func (s *Status) Update(c Component) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apply(c)
}

func (s *Status) apply(c Component) {
	switch v := c.(type) {
	case Phone:
		s.phone = v
	case Hardware:
		s.hardware = v
	case Recording:
		rec := v
		s.recording = &rec
	case NetworkDevice:
		// NetworkDevice entries are reported but not retained in the
		// merged snapshot; callers needing the live list should consume
		// status updates directly.
	case Sensor:
		s.updateSensor(v)
	}
}

// updateSensor merges a sensor update by (Name, ConnType) identity,
// appending a new entry when no existing sensor matches (spec's explicit
// append-if-absent rule).
func (s *Status) updateSensor(sensor Sensor) {
	for i, existing := range s.sensors {
		if existing.Name == sensor.Name && existing.ConnType == sensor.ConnType {
			s.sensors[i] = sensor
			s.sortSensors()
			return
		}
	}
	s.sensors = append(s.sensors, sensor)
	s.sortSensors()
}

// sortSensors orders sensors (connected desc, conn_type asc, sensor_name
// asc), matching the reference implementation's Status.from_dict sort key.
func (s *Status) sortSensors() {
	sort.SliceStable(s.sensors, func(i, j int) bool {
		a, b := s.sensors[i], s.sensors[j]
		if a.Connected != b.Connected {
			return a.Connected
		}
		if a.ConnType != b.ConnType {
			return a.ConnType < b.ConnType
		}
		return a.Name < b.Name
	})
}

// Phone returns the current phone snapshot.
func (s *Status) Phone() Phone {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phone
}

// Hardware returns the current hardware snapshot.
func (s *Status) Hardware() Hardware {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hardware
}

// Recording returns the current recording state, or nil if none has been
// reported yet.
func (s *Status) Recording() *Recording {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.recording == nil {
		return nil
	}
	rec := *s.recording
	return &rec
}

// Sensors returns a copy of the current sensor list, in sorted order.
func (s *Status) Sensors() []Sensor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Sensor, len(s.sensors))
	copy(out, s.sensors)
	return out
}

// MatchingSensors returns every sensor matching name and connType, where
// SensorAny/ConnectionAny match anything.
func (s *Status) MatchingSensors(name SensorName, connType ConnectionType) []Sensor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Sensor
	for _, sensor := range s.sensors {
		if name != SensorAny && sensor.Name != name {
			continue
		}
		if connType != ConnectionAny && sensor.ConnType != connType {
			continue
		}
		out = append(out, sensor)
	}
	return out
}

func (s *Status) directSensor(name SensorName) Sensor {
	matches := s.MatchingSensors(name, ConnectionDirect)
	if len(matches) == 0 {
		return disconnected(name, ConnectionDirect)
	}
	return matches[0]
}

// DirectWorldSensor returns the direct-connection world camera sensor, or
// a disconnected placeholder if none is reported.
func (s *Status) DirectWorldSensor() Sensor { return s.directSensor(SensorWorld) }

// DirectGazeSensor returns the direct-connection gaze sensor.
func (s *Status) DirectGazeSensor() Sensor { return s.directSensor(SensorGaze) }

// DirectImuSensor returns the direct-connection IMU sensor.
func (s *Status) DirectImuSensor() Sensor { return s.directSensor(SensorImu) }

// DirectEyesSensor returns the direct-connection eye-camera sensor.
func (s *Status) DirectEyesSensor() Sensor { return s.directSensor(SensorEyes) }

// DirectEyeEventsSensor returns the direct-connection eye-events sensor.
func (s *Status) DirectEyeEventsSensor() Sensor { return s.directSensor(SensorEyeEvents) }
