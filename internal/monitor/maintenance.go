package monitor

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/polarhr/internal/bluez"
	"github.com/srg/polarhr/internal/device"
)

// Tick runs one maintenance pass. The steps are ordered and each runs at
// most once; a step that cannot complete ends the pass so later steps never
// act on a precondition that does not hold:
//
//  1. device object missing: reacquire by scanning (rate limited)
//  2. device disconnected: connect (subject to backoff)
//  3. characteristic missing: re-resolve and move the signal match
//  4. not notifying: StartNotify
//
// Only directory failures and context cancellation are returned; every other
// problem is logged and retried on a later tick.
func (m *Monitor) Tick(ctx context.Context) error {
	defer m.publish()
	now := m.clock.Now()
	m.logger.Debug("Maintenance tick")

	present, err := device.HasInterface(m.bus, m.state.DevicePath, bluez.InterfaceDevice)
	if err != nil {
		return err
	}
	if !present {
		if ok, err := m.reacquire(ctx, now); !ok || err != nil {
			return err
		}
	}

	if ok, err := m.ensureConnected(ctx, now); !ok || err != nil {
		return err
	}

	if ok, err := m.ensureCharacteristic(); !ok || err != nil {
		return err
	}

	m.ensureNotifying()

	if m.extras != nil {
		return m.extras.Maintain(m.state.DevicePath, m.state.CharacteristicPath)
	}
	return nil
}

func (m *Monitor) reacquire(ctx context.Context, now time.Time) (bool, error) {
	if now.Before(m.maint.NextReacquire) {
		m.logger.WithField("next_attempt", m.maint.NextReacquire).Debug("Reacquire rate limited")
		return false, nil
	}
	m.logger.WithField("path", m.state.DevicePath).Warn("Device missing, attempting reacquire")
	m.state.LastKnownConnected = false
	m.state.Notifying = false

	found, ok, err := m.discoverer.Discover(ctx, m.opts.Names, m.opts.ReacquireScanWindow)
	if err != nil {
		if device.IsFatal(err) {
			return false, err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return false, ctxErr
		}
		m.logger.WithError(err).Warn("Reacquire scan failed")
	}
	if !ok {
		m.maint.NextReacquire = m.clock.Now().Add(m.opts.ReacquireInterval)
		m.logger.WithField("retry_at", m.maint.NextReacquire).Warn("Device still not present")
		return false, nil
	}

	m.logger.WithFields(logrus.Fields{
		"name": found.Name,
		"path": found.Path,
	}).Info("Reacquired device")
	if m.state.CharacteristicPath != "" && !m.state.CharacteristicPath.IsDescendantOf(found.Path) {
		m.state.CharacteristicPath = ""
	}
	m.state.DevicePath = found.Path
	m.state.DeviceName = found.Name
	m.maint.NextReacquire = m.clock.Now()
	m.maint.Connect.Reset()
	return true, nil
}

func (m *Monitor) ensureConnected(ctx context.Context, now time.Time) (bool, error) {
	path := m.state.DevicePath
	if m.connector.Connected(path) {
		m.state.LastKnownConnected = true
		return true, nil
	}
	m.state.LastKnownConnected = false
	m.state.Notifying = false

	if !m.maint.Connect.Ready(now) {
		m.logger.WithField("next_attempt", m.maint.Connect.NextAttempt).Debug("Connect backing off")
		return false, nil
	}

	m.logger.WithField("path", path).Info("Connecting (maintenance)")
	err := m.connector.Connect(ctx, path)
	switch {
	case err == nil:
		m.maint.Connect.RecordSuccess(m.clock.Now())
		m.state.LastKnownConnected = true
		m.logger.WithField("path", path).Info("Connected (maintenance)")
		return true, nil
	case ctx.Err() != nil:
		return false, ctx.Err()
	case errors.Is(err, device.ErrConnectTimeout):
		m.maint.Connect.RecordTimeout(m.clock.Now())
		m.logger.WithFields(logrus.Fields{
			"path":     path,
			"failures": m.maint.Connect.Failures,
		}).Warn("Connect timeout in maintenance")
	default:
		delay := m.maint.Connect.RecordError(now, err)
		m.logger.WithFields(logrus.Fields{
			"path":     path,
			"kind":     bluez.Classify(err),
			"failures": m.maint.Connect.Failures,
			"retry_in": delay,
		}).WithError(err).Warn("Connect failed in maintenance")
	}
	return false, nil
}

func (m *Monitor) ensureCharacteristic() (bool, error) {
	present, err := device.HasInterface(m.bus, m.state.CharacteristicPath, bluez.InterfaceGattCharacteristic)
	if err != nil {
		return false, err
	}
	if present && m.subscriber.Path() == m.state.CharacteristicPath {
		return true, nil
	}

	path, ok, err := device.FindCharacteristic(m.bus, m.state.DevicePath, m.opts.Characteristic)
	if err != nil {
		return false, err
	}
	if !ok {
		m.logger.WithField("device", m.state.DevicePath).Warn("Heart rate characteristic not present yet")
		return false, nil
	}
	if path == m.subscriber.Path() {
		m.state.CharacteristicPath = path
		return true, nil
	}

	old := m.subscriber.Path()
	m.logger.WithFields(logrus.Fields{
		"old": old,
		"new": path,
	}).Info("Heart rate characteristic path changed")
	if old != "" {
		m.dispatcher.Unregister(old)
	}
	m.state.CharacteristicPath = ""
	m.state.Notifying = false
	if err := m.subscriber.Subscribe(path); err != nil {
		m.logger.WithError(err).Warn("Failed to install signal match")
		return false, nil
	}
	m.state.CharacteristicPath = path
	m.dispatcher.Register(path, m.handleMeasurement)
	return true, nil
}

func (m *Monitor) ensureNotifying() {
	path := m.state.CharacteristicPath
	notifying, err := m.subscriber.Notifying(path)
	if err == nil && notifying {
		m.state.Notifying = true
		return
	}
	if err != nil {
		m.logger.WithError(err).Debug("Notifying property unreadable")
	}

	m.logger.WithField("path", path).Info("Not notifying, calling StartNotify")
	if err := m.subscriber.StartNotify(path); err != nil {
		m.state.Notifying = false
		m.logger.WithError(err).Warn("StartNotify failed in maintenance")
		return
	}
	m.state.Notifying = true
	m.logger.WithField("path", path).Info("StartNotify ok (maintenance)")
}
