package control_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"

	"github.com/ethan/neon-realtime/pkg/control"
	"github.com/ethan/neon-realtime/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, srv *httptest.Server) *control.Client {
	t.Helper()
	log, err := logger.New(logger.NewConfig())
	require.NoError(t, err)

	parsed, err := url.Parse(srv.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(parsed.Port())
	require.NoError(t, err)
	return control.NewClient(parsed.Hostname(), port, log)
}

func TestGetStatusParsesComponents(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/status", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"result": []map[string]any{
				{"model": "Phone", "data": map[string]any{"device_id": "abc", "battery_level": 80}},
			},
		})
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	status, err := c.GetStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc", status.Phone().DeviceID)
}

func TestRecordingStartReturnsID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/recording:start", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"result": map[string]any{"id": "rec-123"},
		})
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	id, err := c.RecordingStart(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "rec-123", id)
}

func TestNonOKStatusBecomesDeviceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(map[string]any{"message": "recording already running"})
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	err := c.RecordingStopAndSave(context.Background())
	require.Error(t, err)
	var deviceErr *control.DeviceError
	require.ErrorAs(t, err, &deviceErr)
	assert.Equal(t, http.StatusConflict, deviceErr.Status)
	assert.Equal(t, "recording already running", deviceErr.Message)
}

func TestSendEventDecodesResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/event", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"result": map[string]any{"name": "trigger", "recording_id": "rec-1", "timestamp": 42},
		})
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	event, err := c.SendEvent(context.Background(), "trigger", nil)
	require.NoError(t, err)
	assert.Equal(t, "trigger", event.Name)
	assert.Equal(t, "rec-1", event.RecordingID)
	assert.Equal(t, int64(42), event.TimestampNS)
}
