package timeecho_test

import (
	"context"
	"encoding/binary"
	"io"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/ethan/neon-realtime/pkg/logger"
	"github.com/ethan/neon-realtime/pkg/timeecho"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeServer echoes the client's 8-byte timestamp back alongside its own
// serverMS, exactly like the device's time-echo port.
func fakeServer(t *testing.T, serverMS int64) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				for {
					req := make([]byte, 8)
					if _, err := io.ReadFull(c, req); err != nil {
						return
					}
					resp := make([]byte, 16)
					copy(resp[0:8], req)
					binary.BigEndian.PutUint64(resp[8:16], uint64(serverMS))
					if _, err := c.Write(resp); err != nil {
						return
					}
				}
			}(conn)
		}
	}()

	t.Cleanup(func() { ln.Close() })
	return ln.Addr().String()
}

func TestEstimatorEstimateComputesOffset(t *testing.T) {
	addr := fakeServer(t, 1000)
	host, portStr, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	log, err := logger.New(logger.NewConfig())
	require.NoError(t, err)

	clock := int64(2000)
	timeFn := func() int64 {
		v := clock
		clock++
		return v
	}

	est := timeecho.NewEstimator(host, port, log)
	result, err := est.Estimate(context.Background(), 5, 0, timeFn)
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Greater(t, result.RoundtripDurationMS.Mean, -1.0)
	// The fake clock advances 1 ms per read: after the warm-up (2000/2001)
	// the five midpoints are 2003, 2005, ..., 2011, so the offsets against
	// the server's 1000 are 1003..1011 with mean 1007.
	assert.InDelta(t, 1007.0, result.TimeOffsetMS.Mean, 2.0)
}

func TestEstimatorEstimateFailsOnUnreachableHost(t *testing.T) {
	log, err := logger.New(logger.NewConfig())
	require.NoError(t, err)

	est := timeecho.NewEstimator("127.0.0.1", 1, log)
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	_, err = est.Estimate(ctx, 3, 0, timeecho.TimeNowMS)
	assert.Error(t, err)
}
