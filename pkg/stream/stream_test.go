package stream_test

import (
	"context"
	"testing"
	"time"

	"github.com/ethan/neon-realtime/pkg/logger"
	"github.com/ethan/neon-realtime/pkg/models"
	"github.com/ethan/neon-realtime/pkg/stream"
	"github.com/stretchr/testify/require"
)

type fakeSample struct{ v int }

func newTestManager(t *testing.T) *stream.Manager[fakeSample] {
	t.Helper()
	log, err := logger.New(logger.NewConfig())
	require.NoError(t, err)
	feeder := stream.NewSimpleFeeder(func(raw []byte, ts float64) (fakeSample, error) {
		return fakeSample{v: len(raw)}, nil
	})
	return stream.NewManager(models.SensorGaze, feeder, log, 4)
}

func TestManagerDoesNotStartWithoutConnectedSensor(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	m.HandleSensorUpdate(ctx, models.Sensor{Name: models.SensorGaze, Connected: false})
	m.SetShouldStream(ctx, true)

	select {
	case <-m.Output():
		t.Fatal("no stream should have started against a disconnected sensor")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestManagerSetShouldStreamIsIdempotent(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	m.SetShouldStream(ctx, false)
	m.SetShouldStream(ctx, false)
	m.Stop()
}

func TestManagerStopWithoutStartIsSafe(t *testing.T) {
	m := newTestManager(t)
	m.Stop()
	m.Stop()
}

func TestManagerHandleSensorUpdateWithoutAddressEmitsNothing(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	m.SetShouldStream(ctx, true)

	m.HandleSensorUpdate(ctx, models.Sensor{Name: models.SensorGaze, Connected: true})

	select {
	case <-m.Output():
		t.Fatal("sensor has no connection details, nothing can be received")
	case <-time.After(50 * time.Millisecond):
	}
}
