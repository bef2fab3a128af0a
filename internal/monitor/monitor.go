package monitor

import (
	"context"
	"errors"
	"fmt"

	"github.com/godbus/dbus/v5"
	"github.com/sirupsen/logrus"
	"github.com/srg/polarhr/internal/bluez"
	"github.com/srg/polarhr/internal/device"
	"github.com/srg/polarhr/internal/hrm"
	"github.com/srg/polarhr/internal/status"
)

// Bus is everything the monitor needs from the system bus.
type Bus interface {
	device.Client
	device.Watcher
	Signals() <-chan *dbus.Signal
}

// Sink receives decoded samples in receipt order.
type Sink interface {
	Emit(s hrm.Sample) error
}

// Notifier reports service state to a supervisor.
type Notifier interface {
	Ready(status string) error
	Watchdog() error
	Status(status string) error
}

// ConnectionObserver is told whether the strap is streaming, on every phase
// change.
type ConnectionObserver interface {
	SetConnected(connected bool) error
}

// StatusPublisher receives a snapshot after every state change.
type StatusPublisher interface {
	Publish(s status.Snapshot)
}

// Startup failures. Each ends the run with a non-zero exit.
var (
	ErrConnectFailed = errors.New("failed to connect to device")
	ErrSubscribe     = errors.New("failed to subscribe to heart rate notifications")
)

// Monitor owns the bus session state: the acquisition state, the retry
// counters and the dispatch table. It is driven from a single goroutine.
type Monitor struct {
	bus    Bus
	sink   Sink
	clock  device.Clock
	logger *logrus.Logger
	opts   Options

	discoverer *device.Discoverer
	connector  *device.Connector
	subscriber *device.Subscriber
	dispatcher *Dispatcher

	state AcquisitionState
	maint MaintenanceState

	notifier  Notifier
	publisher StatusPublisher
	observers []ConnectionObserver
	extras    *Extras
	openExtra AppenderFactory

	samples    uint64
	lastSample *hrm.Sample
	lastPhase  Phase
}

// New creates a monitor. Call Acquire, then Run.
func New(bus Bus, sink Sink, clock device.Clock, logger *logrus.Logger, opts Options) *Monitor {
	if logger == nil {
		logger = logrus.New()
	}
	if clock == nil {
		clock = device.SystemClock{}
	}
	return &Monitor{
		bus:        bus,
		sink:       sink,
		clock:      clock,
		logger:     logger,
		opts:       opts,
		discoverer: device.NewDiscoverer(bus, opts.Adapter, clock, logger),
		connector:  device.NewConnector(bus, clock, logger).WithTimeout(opts.ConnectTimeout),
		subscriber: device.NewSubscriber(bus, bus, logger),
		dispatcher: NewDispatcher(logger),
		lastPhase:  -1,
	}
}

// WithNotifier reports readiness, watchdog pings and phase to n.
func (m *Monitor) WithNotifier(n Notifier) *Monitor {
	m.notifier = n
	return m
}

// WithConnectionObserver adds o to the observers of phase changes.
func (m *Monitor) WithConnectionObserver(o ConnectionObserver) *Monitor {
	m.observers = append(m.observers, o)
	return m
}

// WithStatus publishes snapshots to p.
func (m *Monitor) WithStatus(p StatusPublisher) *Monitor {
	m.publisher = p
	return m
}

// AppenderFactory opens the side-channel writer for a model prefix.
type AppenderFactory func(prefix string) Appender

// WithExtras sets how the H10 side channels are written. Extras only run
// when enabled in Options and the acquired device is an H10.
func (m *Monitor) WithExtras(open AppenderFactory) *Monitor {
	m.openExtra = open
	return m
}

// State returns a copy of the acquisition state.
func (m *Monitor) State() AcquisitionState {
	return m.state
}

// Maintenance returns a copy of the retry counters.
func (m *Monitor) Maintenance() MaintenanceState {
	return m.maint
}

// Dispatcher exposes the dispatch table.
func (m *Monitor) Dispatcher() *Dispatcher {
	return m.dispatcher
}

// Close removes every installed signal match.
func (m *Monitor) Close() error {
	var errs []error
	if m.extras != nil {
		errs = append(errs, m.extras.Close())
	}
	if path := m.subscriber.Path(); path != "" {
		m.dispatcher.Unregister(path)
	}
	errs = append(errs, m.subscriber.Unsubscribe())
	return errors.Join(errs...)
}

// Acquire runs the startup sequence: find the device (scanning up to the
// startup window), connect, find the measurement characteristic, start
// notifications and install the signal match. Any failure is terminal.
func (m *Monitor) Acquire(ctx context.Context) (device.FoundDevice, error) {
	found, ok, err := m.discoverer.Discover(ctx, m.opts.Names, m.opts.StartupScanWindow)
	if err != nil {
		return device.FoundDevice{}, err
	}
	if !ok {
		return device.FoundDevice{}, &device.NotFoundError{Resource: "device", Keys: m.opts.Names}
	}
	m.logger.WithFields(logrus.Fields{
		"name": found.Name,
		"path": found.Path,
	}).Info("Found device")
	m.state.DevicePath = found.Path
	m.state.DeviceName = found.Name

	if err := m.connector.Connect(ctx, found.Path); err != nil {
		if ctx.Err() != nil {
			return found, ctx.Err()
		}
		return found, fmt.Errorf("%w: %w", ErrConnectFailed, err)
	}
	m.state.LastKnownConnected = true
	m.logger.WithField("path", found.Path).Info("Connected")

	charPath, err := m.awaitCharacteristic(ctx, found.Path)
	if err != nil {
		return found, err
	}
	m.logger.WithField("path", charPath).Info("Heart rate characteristic found")

	if err := m.subscriber.StartNotify(charPath); err != nil {
		return found, fmt.Errorf("%w: %w", ErrSubscribe, err)
	}
	if err := m.subscriber.Subscribe(charPath); err != nil {
		return found, fmt.Errorf("%w: %w", ErrSubscribe, err)
	}
	m.state.CharacteristicPath = charPath
	m.state.Notifying = true
	m.dispatcher.Register(charPath, m.handleMeasurement)

	if prefix := found.ModelPrefix(); m.opts.Extras && m.openExtra != nil && prefix == "polarh10" {
		m.extras = NewExtras(m.bus, m.dispatcher, m.openExtra(prefix), m.clock, m.logger, m.opts)
		if err := m.extras.CaptureDeviceInfo(found.Path); err != nil {
			return found, err
		}
		if err := m.extras.Install(found.Path, charPath); err != nil {
			return found, err
		}
	}

	if m.notifier != nil {
		if err := m.notifier.Ready(PhaseSubscribed.String()); err != nil {
			m.logger.WithError(err).Debug("Readiness notification failed")
		}
	}
	m.publish()
	return found, nil
}

// awaitCharacteristic polls for the measurement characteristic, which BlueZ
// may only expose some time after the connection completes.
func (m *Monitor) awaitCharacteristic(ctx context.Context, dev bluez.ObjectPath) (bluez.ObjectPath, error) {
	deadline := m.clock.Now().Add(m.opts.CharacteristicWindow)
	for {
		path, ok, err := device.FindCharacteristic(m.bus, dev, m.opts.Characteristic)
		if err != nil {
			return "", err
		}
		if ok {
			return path, nil
		}
		if !m.clock.Now().Before(deadline) {
			return "", &device.NotFoundError{
				Resource: "characteristic",
				Keys:     []string{m.opts.Characteristic.String()},
			}
		}
		m.logger.Debug("Heart rate characteristic not resolved yet")
		if err := m.clock.Sleep(ctx, m.opts.CharacteristicPoll); err != nil {
			return "", err
		}
	}
}

func (m *Monitor) handleMeasurement(pc bluez.PropertiesChanged) error {
	meas := hrm.Decode(pc.Value)
	sample := hrm.NewSample(m.clock.Now().UnixMilli(), meas)

	if m.logger.IsLevelEnabled(logrus.DebugLevel) {
		fields := logrus.Fields{
			"bytes": len(pc.Value),
			"flags": fmt.Sprintf("0x%02x", meas.Flags),
			"rr":    meas.RR,
		}
		if meas.HasBPM {
			fields["bpm"] = meas.BPM
		}
		if meas.EnergyExpended != nil {
			fields["energy_kj"] = *meas.EnergyExpended
		}
		m.logger.WithFields(fields).Debug("Notification")
	}

	m.samples++
	m.lastSample = &sample
	if err := m.sink.Emit(sample); err != nil {
		return fmt.Errorf("failed to emit sample: %w", err)
	}
	m.publish()
	return nil
}

// publish pushes a snapshot and, on a phase change, the systemd status and
// the connection state.
func (m *Monitor) publish() {
	phase := m.state.Phase()
	if phase != m.lastPhase {
		m.lastPhase = phase
		m.logger.WithField("phase", phase).Debug("Phase changed")
		if m.notifier != nil {
			if err := m.notifier.Status(phase.String()); err != nil {
				m.logger.WithError(err).Debug("Status notification failed")
			}
		}
		for _, o := range m.observers {
			if err := o.SetConnected(phase == PhaseSubscribed); err != nil {
				m.logger.WithError(err).Warn("Connection observer failed")
			}
		}
	}
	if m.publisher == nil {
		return
	}
	snap := status.Snapshot{
		Phase:              phase.String(),
		DeviceName:         m.state.DeviceName,
		DevicePath:         m.state.DevicePath.String(),
		CharacteristicPath: m.state.CharacteristicPath.String(),
		Connected:          m.state.LastKnownConnected,
		Notifying:          m.state.Notifying,
		ConnectFailures:    m.maint.Connect.Failures,
		NextConnectAttempt: m.maint.Connect.NextAttempt,
		NextReacquire:      m.maint.NextReacquire,
		Samples:            m.samples,
		UpdatedAt:          m.clock.Now(),
	}
	if m.lastSample != nil {
		s := *m.lastSample
		snap.LastSample = &s
	}
	if m.extras != nil {
		snap.ExtraNotifiers = m.extras.Installed()
	}
	m.publisher.Publish(snap)
}
