package device

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/polarhr/internal/bluez"
)

const (
	// DiscoveryPollInterval is the cadence of device lookups during a scan.
	DiscoveryPollInterval = 2 * time.Second
	// StartupScanWindow bounds the scan at process start.
	StartupScanWindow = 90 * time.Second
	// ReacquireScanWindow bounds the scan triggered by maintenance.
	ReacquireScanWindow = 15 * time.Second
)

// Discoverer runs bounded adapter scans until a preferred device shows up.
type Discoverer struct {
	client  Client
	adapter bluez.ObjectPath
	clock   Clock
	logger  *logrus.Logger
	poll    time.Duration
}

// NewDiscoverer creates a discoverer scanning on adapter.
func NewDiscoverer(client Client, adapter bluez.ObjectPath, clock Clock, logger *logrus.Logger) *Discoverer {
	return &Discoverer{
		client:  client,
		adapter: adapter,
		clock:   clock,
		logger:  logger,
		poll:    DiscoveryPollInterval,
	}
}

// Discover returns a device the daemon already knows, or starts discovery and
// polls every two seconds until one of names appears or window elapses.
// A failure to start discovery wraps ErrStartDiscovery; the caller decides
// whether that is fatal. Discovery is always stopped before returning.
func (d *Discoverer) Discover(ctx context.Context, names []string, window time.Duration) (found FoundDevice, ok bool, err error) {
	found, ok, err = FindDevice(d.client, names)
	if err != nil || ok {
		return found, ok, err
	}

	d.logger.WithFields(logrus.Fields{
		"adapter": d.adapter,
		"window":  window,
	}).Info("Starting discovery")

	if err := d.client.Call(d.adapter, bluez.InterfaceAdapter, "StartDiscovery"); err != nil {
		return FoundDevice{}, false, fmt.Errorf("%w: %w", ErrStartDiscovery, err)
	}
	defer d.stop()

	deadline := d.clock.Now().Add(window)
	for iteration := 1; d.clock.Now().Before(deadline); iteration++ {
		if err := d.clock.Sleep(ctx, d.poll); err != nil {
			return FoundDevice{}, false, err
		}
		found, ok, err = FindDevice(d.client, names)
		if err != nil || ok {
			return found, ok, err
		}
		d.logger.WithField("iteration", iteration).Debug("Scan iteration, device not yet found")
	}
	return FoundDevice{}, false, nil
}

func (d *Discoverer) stop() {
	if err := d.client.Call(d.adapter, bluez.InterfaceAdapter, "StopDiscovery"); err != nil {
		d.logger.WithError(err).Debug("StopDiscovery failed")
	}
}
