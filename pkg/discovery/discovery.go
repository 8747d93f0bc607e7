// Package discovery finds Neon devices serving the Realtime API on the
// local network via mDNS/Bonjour, mirroring the original's
// discovery.py/simple/discovery.py Network type.
package discovery

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"

	"github.com/ethan/neon-realtime/pkg/logger"
)

// serviceType is the mDNS service type every Neon companion device
// advertises its control-plane HTTP server under.
const serviceType = "_http._tcp"

// servicePrefix is the first colon-separated field of a valid
// device's advertised instance name.
const servicePrefix = "PI monitor"

// DeviceInfo describes one discovered device.
type DeviceInfo struct {
	Name      string
	DNSName   string
	Address   string
	Port      int
	Addresses []string
}

// isValidServiceName reports whether name identifies a Realtime API
// device, not some other _http._tcp advertiser on the network.
func isValidServiceName(name string) bool {
	prefix, _, _ := strings.Cut(name, ":")
	return prefix == servicePrefix
}

// Network keeps a live, mutex-guarded set of discovered devices,
// updated from a background mDNS browse.
type Network struct {
	log *logger.Logger

	mu      sync.Mutex
	devices map[string]DeviceInfo

	newDevices chan DeviceInfo

	cancel context.CancelFunc
	done   chan struct{}
}

// NewNetwork starts browsing for devices in the background. Call
// Close to stop browsing and release resources.
func NewNetwork(ctx context.Context, log *logger.Logger) (*Network, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, err
	}

	browseCtx, cancel := context.WithCancel(ctx)

	n := &Network{
		log:        log,
		devices:    make(map[string]DeviceInfo),
		newDevices: make(chan DeviceInfo, 16),
		cancel:     cancel,
		done:       make(chan struct{}),
	}

	entries := make(chan *zeroconf.ServiceEntry, 16)
	go n.consume(entries)

	if err := resolver.Browse(browseCtx, serviceType, "local.", entries); err != nil {
		cancel()
		return nil, err
	}

	return n, nil
}

func (n *Network) consume(entries chan *zeroconf.ServiceEntry) {
	defer close(n.done)
	for entry := range entries {
		if !isValidServiceName(entry.Instance) {
			continue
		}
		if len(entry.AddrIPv4) == 0 {
			continue
		}

		addresses := make([]string, len(entry.AddrIPv4))
		for i, ip := range entry.AddrIPv4 {
			addresses[i] = ip.String()
		}

		device := DeviceInfo{
			Name:      entry.Instance,
			DNSName:   entry.HostName,
			Address:   addresses[0],
			Port:      entry.Port,
			Addresses: addresses,
		}

		n.mu.Lock()
		n.devices[device.Name] = device
		n.mu.Unlock()

		if n.log != nil {
			n.log.Debug("discovered device", "name", device.Name, "address", device.Address, "port", device.Port)
		}

		select {
		case n.newDevices <- device:
		default:
		}
	}
}

// Devices returns a snapshot of every device discovered so far.
func (n *Network) Devices() []DeviceInfo {
	n.mu.Lock()
	defer n.mu.Unlock()

	out := make([]DeviceInfo, 0, len(n.devices))
	for _, d := range n.devices {
		out = append(out, d)
	}
	return out
}

// WaitForNewDevice blocks until a new device is discovered, the
// timeout elapses, or ctx is cancelled. A zero timeout waits
// indefinitely (bounded only by ctx).
func (n *Network) WaitForNewDevice(ctx context.Context, timeout time.Duration) (DeviceInfo, bool) {
	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case d := <-n.newDevices:
		return d, true
	case <-timeoutCh:
		return DeviceInfo{}, false
	case <-ctx.Done():
		return DeviceInfo{}, false
	}
}

// Close stops browsing and releases resources.
func (n *Network) Close() {
	n.cancel()
	<-n.done
}

// DiscoverDevices runs a one-shot search for searchDuration and
// returns every device found, mirroring the original's
// discover_devices(search_duration_seconds) convenience function.
func DiscoverDevices(ctx context.Context, searchDuration time.Duration, log *logger.Logger) ([]DeviceInfo, error) {
	network, err := NewNetwork(ctx, log)
	if err != nil {
		return nil, err
	}
	defer network.Close()

	timer := time.NewTimer(searchDuration)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
	}

	return network.Devices(), nil
}
