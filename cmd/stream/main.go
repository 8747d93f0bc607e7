// Command stream drives pkg/device.Device and prints matched
// scene+gaze(+eyes) tuples to stdout, mirroring the teacher's
// cmd/relay in structure (flag parsing, signal-driven shutdown) but
// consuming the Realtime API client instead of relaying RTP to
// Cloudflare.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethan/neon-realtime/pkg/device"
	"github.com/ethan/neon-realtime/pkg/discovery"
	"github.com/ethan/neon-realtime/pkg/logger"
)

func main() {
	fs := flag.NewFlagSet("stream", flag.ExitOnError)
	logFlags := logger.RegisterFlags(fs)
	address := fs.String("address", "", "device address (skips discovery if set)")
	port := fs.Int("port", 8080, "device control-plane port")
	searchDuration := fs.Duration("search", 10*time.Second, "mDNS search duration when -address is unset")
	withEyes := fs.Bool("with-eyes", false, "also wait for matched eye-camera frames")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Streams matched scene+gaze(+eyes) tuples from a Neon device to stdout.\n\n")
		fs.PrintDefaults()
		logger.PrintUsageExamples()
	}
	if err := fs.Parse(os.Args[1:]); err != nil {
		os.Exit(2)
	}

	logCfg, err := logFlags.ToConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	log, err := logger.New(logCfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer log.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	targetAddress, targetPort := *address, *port
	if targetAddress == "" {
		log.Info("no -address given, searching for a device via mDNS", "duration", *searchDuration)
		devices, err := discovery.DiscoverDevices(ctx, *searchDuration, log)
		if err != nil {
			log.Error("discovery failed", "error", err)
			os.Exit(1)
		}
		if len(devices) == 0 {
			log.Error("no devices found", "duration", *searchDuration)
			os.Exit(1)
		}
		targetAddress, targetPort = devices[0].Address, devices[0].Port
	}

	cfg := device.DefaultConfig()
	cfg.StartStreamingByDefault = true
	dev, err := device.Open(ctx, targetAddress, targetPort, log, cfg)
	if err != nil {
		log.Error("failed to open device", "error", err)
		os.Exit(1)
	}
	defer dev.Close()

	log.Info("streaming started", "address", targetAddress, "port", targetPort, "with_eyes", *withEyes)

	for {
		if ctx.Err() != nil {
			return
		}

		if *withEyes {
			matched, ok := dev.ReceiveMatchedSceneAndEyesVideoFramesAndGaze(time.Second)
			if !ok {
				continue
			}
			fmt.Printf("scene=%.3f gaze=(%.3f,%.3f) eyes=%.3f\n",
				matched.Scene.TimestampUnixSeconds(), matched.Gaze.X, matched.Gaze.Y, matched.Eyes.TimestampUnixSeconds())
		} else {
			matched, ok := dev.ReceiveMatchedSceneVideoFrameAndGaze(time.Second)
			if !ok {
				continue
			}
			fmt.Printf("scene=%.3f gaze=(%.3f,%.3f)\n",
				matched.Scene.TimestampUnixSeconds(), matched.Gaze.X, matched.Gaze.Y)
		}

		reportErrors(dev, log)
	}
}

func reportErrors(dev *device.Device, log *logger.Logger) {
	for _, msg := range dev.GetErrors() {
		log.Warn("device reported error", "message", msg)
	}
}
