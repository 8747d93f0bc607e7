// Command debugserver runs a tiny local HTTP introspection server over
// a running Device: /status, /metrics, and /errors, mirroring the
// teacher's pkg/api/server.go in purpose but fronted by chi (grounded
// on the corpus's internal/api/router.go) instead of a bare
// http.ServeMux.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ethan/neon-realtime/pkg/device"
	"github.com/ethan/neon-realtime/pkg/discovery"
	"github.com/ethan/neon-realtime/pkg/logger"
	"github.com/ethan/neon-realtime/pkg/metrics"
	"github.com/ethan/neon-realtime/pkg/models"
)

func main() {
	fs := flag.NewFlagSet("debugserver", flag.ExitOnError)
	logFlags := logger.RegisterFlags(fs)
	address := fs.String("address", "", "device address (skips discovery if set)")
	port := fs.Int("port", 8080, "device control-plane port")
	searchDuration := fs.Duration("search", 10*time.Second, "mDNS search duration when -address is unset")
	listenAddr := fs.String("listen", ":9090", "debug server listen address")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Runs a local HTTP introspection server over a running Device.\n\n")
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
		devices, err := discovery.DiscoverDevices(ctx, *searchDuration, log)
		if err != nil || len(devices) == 0 {
			log.Error("no device found", "error", err)
			os.Exit(1)
		}
		targetAddress, targetPort = devices[0].Address, devices[0].Port
	}

	registry := prometheus.NewRegistry()
	reg := metrics.New(registry)

	cfg := device.DefaultConfig()
	cfg.Metrics = reg
	dev, err := device.Open(ctx, targetAddress, targetPort, log, cfg)
	if err != nil {
		log.Error("failed to open device", "error", err)
		os.Exit(1)
	}
	defer dev.Close()

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET"},
	}))

	router.Get("/status", statusHandler(dev))
	router.Get("/errors", errorsHandler(dev))
	router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	server := &http.Server{Addr: *listenAddr, Handler: router}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	log.Info("debug server listening", "address", *listenAddr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("debug server exited", "error", err)
		os.Exit(1)
	}
}

type sensorView struct {
	Name        string `json:"name"`
	ConnType    string `json:"conn_type"`
	Connected   bool   `json:"connected"`
	URL         string `json:"url"`
	StreamError bool   `json:"stream_error"`
}

type statusView struct {
	Phone     models.Phone `json:"phone"`
	Hardware  models.Hardware `json:"hardware"`
	Sensors   []sensorView `json:"sensors"`
	Streaming bool         `json:"streaming"`
}

func statusHandler(dev *device.Device) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := dev.Status()
		view := statusView{
			Phone:     status.Phone(),
			Hardware:  status.Hardware(),
			Streaming: dev.IsCurrentlyStreaming(),
		}
		for _, sensor := range status.Sensors() {
			view.Sensors = append(view.Sensors, sensorView{
				Name:        string(sensor.Name),
				ConnType:    string(sensor.ConnType),
				Connected:   sensor.Connected,
				URL:         sensor.URL(),
				StreamError: sensor.StreamError,
			})
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(view)
	}
}

func errorsHandler(dev *device.Device) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(dev.GetErrors())
	}
}
