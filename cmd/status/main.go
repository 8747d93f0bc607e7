// Command status connects to one Neon device and prints a
// live-refreshing status table, mirroring the teacher's cmd/diagnose
// in purpose (a small flag-driven inspection tool over the client
// library) but driving pkg/device instead of the RTSP/Cloudflare relay
// path.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/ethan/neon-realtime/pkg/device"
	"github.com/ethan/neon-realtime/pkg/discovery"
	"github.com/ethan/neon-realtime/pkg/logger"
	"github.com/ethan/neon-realtime/pkg/models"
)

func main() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	logFlags := logger.RegisterFlags(fs)
	address := fs.String("address", "", "device address (skips discovery if set)")
	port := fs.Int("port", 8080, "device control-plane port")
	searchDuration := fs.Duration("search", 10*time.Second, "mDNS search duration when -address is unset")
	refresh := fs.Duration("refresh", 2*time.Second, "table refresh interval")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Prints a live-refreshing status table for one Neon device.\n\n")
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

	targetAddress, targetPort, err := resolveTarget(ctx, *address, *port, *searchDuration, log)
	if err != nil {
		log.Error("failed to resolve a device", "error", err)
		os.Exit(1)
	}

	dev, err := device.Open(ctx, targetAddress, targetPort, log, device.DefaultConfig())
	if err != nil {
		log.Error("failed to open device", "error", err)
		os.Exit(1)
	}
	defer dev.Close()

	ticker := time.NewTicker(*refresh)
	defer ticker.Stop()

	for {
		printStatus(dev.Status())

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func resolveTarget(ctx context.Context, address string, port int, searchDuration time.Duration, log *logger.Logger) (string, int, error) {
	if address != "" {
		return address, port, nil
	}

	log.Info("no -address given, searching for a device via mDNS", "duration", searchDuration)
	devices, err := discovery.DiscoverDevices(ctx, searchDuration, log)
	if err != nil {
		return "", 0, err
	}
	if len(devices) == 0 {
		return "", 0, fmt.Errorf("no devices found in %s", searchDuration)
	}
	return devices[0].Address, devices[0].Port, nil
}

func printStatus(status *models.Status) {
	fmt.Print("\033[H\033[2J")

	phone := status.Phone()
	hardware := status.Hardware()
	recording := status.Recording()

	fmt.Printf("Phone: %s (%s) battery=%d%% (%s)\n", phone.DeviceName, phone.IP, phone.BatteryLevel, phone.BatteryState)
	fmt.Printf("Hardware: module=%s glasses=%s world-camera=%s version=%s\n",
		hardware.ModuleSerial, hardware.GlassesSerial, hardware.WorldCameraSerial, hardware.Version)
	if recording != nil {
		fmt.Printf("Recording: action=%s id=%s duration=%.1fs\n", recording.Action, recording.ID, recording.RecDurationSeconds())
	} else {
		fmt.Println("Recording: none")
	}
	fmt.Println()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Sensor", "Connection", "Connected", "URL", "Error"})
	for _, sensor := range status.Sensors() {
		table.Append([]string{
			string(sensor.Name),
			string(sensor.ConnType),
			fmt.Sprintf("%t", sensor.Connected),
			sensor.URL(),
			fmt.Sprintf("%t", sensor.StreamError),
		})
	}
	table.Render()
}
