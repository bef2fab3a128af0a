package monitor

import (
	"errors"
	"fmt"
	"time"

	mapset "github.com/deckarep/golang-set"
	"github.com/sirupsen/logrus"
	"github.com/srg/polarhr/internal/bluez"
	"github.com/srg/polarhr/internal/device"
	"github.com/srg/polarhr/internal/gatt"
)

// Appender writes one line to the side-channel file named by suffix.
type Appender interface {
	Append(suffix, line string) error
}

// Side-channel file suffixes.
const (
	SuffixDeviceInfo = "device_info"
	SuffixBattery    = "battery"
)

// Extras manages the H10 side channels: a one-shot device information
// capture, a notifier on every other characteristic of the device, and a
// periodic battery read for straps that never notify it.
type Extras struct {
	client     device.Client
	watcher    device.Watcher
	dispatcher *Dispatcher
	out        Appender
	clock      device.Clock
	logger     *logrus.Logger
	interval   time.Duration

	installed   mapset.Set
	watches     []*bluez.Watch
	lastBattery time.Time
	polled      bool
}

func NewExtras(bus Bus, dispatcher *Dispatcher, out Appender, clock device.Clock, logger *logrus.Logger, opts Options) *Extras {
	return &Extras{
		client:     bus,
		watcher:    bus,
		dispatcher: dispatcher,
		out:        out,
		clock:      clock,
		logger:     logger,
		interval:   opts.BatteryPollInterval,
		installed:  mapset.NewThreadUnsafeSet(),
	}
}

// Installed returns the number of generic notifiers in place.
func (e *Extras) Installed() int {
	return e.installed.Cardinality()
}

// CaptureDeviceInfo reads the device information characteristics once and
// appends key=value lines. Fields that are missing or unreadable are skipped.
func (e *Extras) CaptureDeviceInfo(dev bluez.ObjectPath) error {
	dir, err := e.client.ManagedObjects()
	if err != nil {
		return err
	}
	for _, field := range gatt.DeviceInfoFields {
		path, ok := device.SelectCharacteristic(dir, dev, field.UUID)
		if !ok {
			continue
		}
		raw, err := e.client.ReadValue(path)
		if err != nil {
			e.logger.WithError(err).WithField("field", field.Key).Debug("Device info read failed")
			continue
		}
		value, err := gatt.ParseCharacteristicValue(field.UUID, raw)
		if err != nil {
			e.logger.WithError(err).WithField("field", field.Key).Debug("Device info value unparsable")
			continue
		}
		line := fmt.Sprintf("%d,%s=%v", e.clock.Now().UnixMilli(), field.Key, value)
		if err := e.out.Append(SuffixDeviceInfo, line); err != nil {
			e.logger.WithError(err).Warn("Cannot write device info")
			return nil
		}
		e.logger.WithField(field.Key, value).Debug("Device info")
	}
	return nil
}

// Install adds a notifier to every characteristic under dev other than
// skip. Paths already handled are left alone, so calling it again only
// picks up characteristics that appeared since.
func (e *Extras) Install(dev, skip bluez.ObjectPath) error {
	dir, err := e.client.ManagedObjects()
	if err != nil {
		return err
	}
	e.install(dir, dev, skip)
	return nil
}

func (e *Extras) install(dir bluez.Directory, dev, skip bluez.ObjectPath) {
	for _, entry := range device.Characteristics(dir, dev) {
		if entry.Path == skip || e.installed.Contains(entry.Path.String()) {
			continue
		}
		uuid := *entry.UUID
		suffix, label := uuid.Short(), "char"
		if uuid.Equal(gatt.BatteryLevel) {
			suffix, label = SuffixBattery, "battery"
		}

		// read-only characteristics reject StartNotify; the match is harmless
		if err := e.client.Call(entry.Path, bluez.InterfaceGattCharacteristic, "StartNotify"); err != nil {
			e.logger.WithError(err).WithField("path", entry.Path).Debug("StartNotify failed (non-notify characteristic?)")
		}
		w, err := e.watcher.Watch(entry.Path)
		if err != nil {
			e.logger.WithError(err).WithField("path", entry.Path).Warn("Failed to install generic notifier")
			continue
		}

		e.installed.Add(entry.Path.String())
		e.watches = append(e.watches, w)
		e.dispatcher.Register(entry.Path, e.handler(uuid, suffix))
		e.logger.WithFields(logrus.Fields{
			"label": label,
			"path":  entry.Path,
			"uuid":  uuid,
		}).Info("Installed generic notifier")
	}
}

func (e *Extras) handler(uuid bluez.UUID, suffix string) Handler {
	return func(pc bluez.PropertiesChanged) error {
		value := gatt.FormatValue(uuid, pc.Value)
		line := fmt.Sprintf("%d,%s", e.clock.Now().UnixMilli(), value)
		if err := e.out.Append(suffix, line); err != nil {
			e.logger.WithError(err).WithField("suffix", suffix).Warn("Cannot write side channel")
			return nil
		}
		e.logger.WithFields(logrus.Fields{
			"uuid":  uuid,
			"value": value,
		}).Debug("Generic notification")
		return nil
	}
}

// Maintain runs on every completed maintenance tick: it installs notifiers
// for new characteristics and reads the battery when the poll is due.
func (e *Extras) Maintain(dev, skip bluez.ObjectPath) error {
	dir, err := e.client.ManagedObjects()
	if err != nil {
		return err
	}
	e.install(dir, dev, skip)
	e.pollBattery(dir, dev)
	return nil
}

func (e *Extras) pollBattery(dir bluez.Directory, dev bluez.ObjectPath) {
	now := e.clock.Now()
	if e.polled && now.Sub(e.lastBattery) < e.interval {
		return
	}
	e.polled = true
	e.lastBattery = now

	path, ok := device.SelectCharacteristic(dir, dev, gatt.BatteryLevel)
	if !ok {
		return
	}
	raw, err := e.client.ReadValue(path)
	if err != nil {
		e.logger.WithError(err).Debug("Battery poll failed")
		return
	}
	if len(raw) == 0 {
		return
	}
	if err := e.out.Append(SuffixBattery, fmt.Sprintf("%d,%d", now.UnixMilli(), raw[0])); err != nil {
		e.logger.WithError(err).Warn("Cannot write battery level")
		return
	}
	e.logger.WithField("percent", raw[0]).Debug("Battery poll")
}

// Close removes every generic notifier match.
func (e *Extras) Close() error {
	var errs []error
	for _, w := range e.watches {
		e.dispatcher.Unregister(w.Path)
		errs = append(errs, e.watcher.Unwatch(w))
	}
	e.watches = nil
	e.installed.Clear()
	return errors.Join(errs...)
}
