package monitor

import (
	"context"

	"github.com/godbus/dbus/v5"
)

// Run is the event loop. Each iteration dispatches every pending signal
// without blocking, runs one maintenance Tick, then waits for the next
// signal or the idle timeout. It returns nil once ctx is cancelled and an
// error only for failures that make the session unusable.
func (m *Monitor) Run(ctx context.Context) error {
	signals := m.bus.Signals()
	m.logger.Info("Listening for notifications (Ctrl+C to quit)")

	for {
		if ctx.Err() != nil {
			return nil
		}
		if err := m.drain(signals); err != nil {
			return err
		}

		if err := m.Tick(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if m.notifier != nil {
			if err := m.notifier.Watchdog(); err != nil {
				m.logger.WithError(err).Debug("Watchdog notification failed")
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case sig, ok := <-signals:
			if !ok {
				return nil
			}
			if err := m.dispatcher.Dispatch(sig); err != nil {
				return err
			}
		case <-m.clock.After(m.opts.IdleWait):
		}
	}
}

// drain dispatches queued signals until none are immediately available.
func (m *Monitor) drain(signals <-chan *dbus.Signal) error {
	for {
		select {
		case sig, ok := <-signals:
			if !ok {
				return nil
			}
			if err := m.dispatcher.Dispatch(sig); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}
