// Package timeecho implements the TCP time-echo clock offset estimator
// (C4): a short round-trip protocol used to estimate the offset between
// the client's clock and the device's clock, independent of the RTCP
// wallclock mapping used for sensor streams.
package timeecho

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"net"
	"sort"
	"time"

	"github.com/ethan/neon-realtime/pkg/logger"
)

// TimeFunc returns the current time in milliseconds since the Unix
// epoch. Tests substitute a deterministic implementation.
type TimeFunc func() int64

// TimeNowMS is the default TimeFunc.
func TimeNowMS() int64 { return time.Now().UnixNano() / int64(time.Millisecond) }

// Measurement is one round trip's raw result.
type Measurement struct {
	RoundtripDurationMS int64
	TimeOffsetMS        int64
}

// Estimate summarizes a set of measurements with mean/stddev/median,
// matching the reference implementation's statistics.Estimate wrapper.
type Estimate struct {
	Mean   float64
	Stddev float64
	Median float64
}

func newEstimate(values []int64) Estimate {
	n := len(values)
	sum := 0.0
	for _, v := range values {
		sum += float64(v)
	}
	mean := sum / float64(n)

	variance := 0.0
	for _, v := range values {
		d := float64(v) - mean
		variance += d * d
	}
	var stddev float64
	if n > 1 {
		stddev = math.Sqrt(variance / float64(n-1))
	}

	sorted := append([]int64(nil), values...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	var median float64
	if n%2 == 1 {
		median = float64(sorted[n/2])
	} else {
		median = (float64(sorted[n/2-1]) + float64(sorted[n/2])) / 2
	}

	return Estimate{Mean: mean, Stddev: stddev, Median: median}
}

// Estimates bundles the roundtrip and offset estimates from one
// Estimator.Estimate call.
type Estimates struct {
	RoundtripDurationMS Estimate
	TimeOffsetMS        Estimate
}

// ErrTooFewMeasurements is returned when fewer than two measurements
// succeeded, leaving no usable sample for statistics.
var ErrTooFewMeasurements = fmt.Errorf("timeecho: too few successful measurements")

// Estimator connects to one device's time-echo TCP port.
type Estimator struct {
	Address string
	Port    int
	log     *logger.Logger
}

// NewEstimator returns an Estimator for address:port.
func NewEstimator(address string, port int, log *logger.Logger) *Estimator {
	return &Estimator{Address: address, Port: port, log: log}
}

// Estimate opens one TCP connection, discards a warm-up measurement,
// then collects numberOfMeasurements round trips, returning an error if
// the connection fails or too few measurements succeed to summarize.
func (e *Estimator) Estimate(ctx context.Context, numberOfMeasurements int, sleepBetween time.Duration, timeFn TimeFunc) (*Estimates, error) {
	if timeFn == nil {
		timeFn = TimeNowMS
	}

	addr := net.JoinHostPort(e.Address, fmt.Sprintf("%d", e.Port))
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	defer conn.Close()

	// Warm-up round trip, discarded.
	if _, err := requestTimeEcho(conn, timeFn); err != nil {
		e.log.DebugTimeEcho("warm-up measurement failed", "error", err)
	}

	var roundtrips, offsets []int64
	for i := 0; i < numberOfMeasurements; i++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		m, err := requestTimeEcho(conn, timeFn)
		if err != nil {
			e.log.DebugTimeEcho("measurement failed, skipping", "error", err)
			continue
		}
		roundtrips = append(roundtrips, m.RoundtripDurationMS)
		offsets = append(offsets, m.TimeOffsetMS)

		if sleepBetween > 0 && i < numberOfMeasurements-1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(sleepBetween):
			}
		}
	}

	if len(roundtrips) < 2 {
		return nil, ErrTooFewMeasurements
	}

	return &Estimates{
		RoundtripDurationMS: newEstimate(roundtrips),
		TimeOffsetMS:        newEstimate(offsets),
	}, nil
}

// requestTimeEcho performs one round trip: send an 8-byte big-endian
// millisecond timestamp, read back a 16-byte (echo, server_time) reply.
func requestTimeEcho(conn net.Conn, timeFn TimeFunc) (Measurement, error) {
	beforeMS := timeFn()

	req := make([]byte, 8)
	binary.BigEndian.PutUint64(req, uint64(beforeMS))
	if _, err := conn.Write(req); err != nil {
		return Measurement{}, fmt.Errorf("write request: %w", err)
	}

	resp := make([]byte, 16)
	if _, err := io.ReadFull(conn, resp); err != nil {
		return Measurement{}, fmt.Errorf("read response: %w", err)
	}
	afterMS := timeFn()

	validationMS := int64(binary.BigEndian.Uint64(resp[0:8]))
	serverMS := int64(binary.BigEndian.Uint64(resp[8:16]))

	if validationMS != beforeMS {
		return Measurement{}, fmt.Errorf("echoed timestamp mismatch: sent %d, got %d", beforeMS, validationMS)
	}

	serverTSInClientTimeMS := (beforeMS + afterMS + 1) / 2 // round-to-nearest
	offsetMS := serverTSInClientTimeMS - serverMS

	return Measurement{
		RoundtripDurationMS: afterMS - beforeMS,
		TimeOffsetMS:        offsetMS,
	}, nil
}
