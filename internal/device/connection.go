package device

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/polarhr/internal/bluez"
)

const (
	ConnectPollInterval = 500 * time.Millisecond
	ConnectTimeout      = 20 * time.Second

	inProgressRetry    = 3 * time.Second
	slowFailureFloor   = 5 * time.Second
	pollTimeoutBackoff = 5 * time.Second
	maxBackoff         = 30 * time.Second
	maxBackoffExponent = 5
)

// Connector connects a device and waits for BlueZ to report it connected.
// It holds no retry state; see ConnectBackoff.
type Connector struct {
	client  Client
	clock   Clock
	logger  *logrus.Logger
	poll    time.Duration
	timeout time.Duration
}

// NewConnector creates a connector with the default 500ms/20s polling.
func NewConnector(client Client, clock Clock, logger *logrus.Logger) *Connector {
	return &Connector{
		client:  client,
		clock:   clock,
		logger:  logger,
		poll:    ConnectPollInterval,
		timeout: ConnectTimeout,
	}
}

// WithTimeout overrides how long Connect polls for the connected state.
// Non-positive values keep the default.
func (c *Connector) WithTimeout(d time.Duration) *Connector {
	if d > 0 {
		c.timeout = d
	}
	return c
}

// Connected reads Device1.Connected. A failed read counts as disconnected.
func (c *Connector) Connected(path bluez.ObjectPath) bool {
	ok, err := c.client.GetBool(path, bluez.InterfaceDevice, "Connected")
	if err != nil {
		c.logger.WithError(err).WithField("path", path).Debug("Connected property unreadable")
		return false
	}
	return ok
}

// Connect is a no-op for a connected device. Otherwise it calls Connect and
// polls Connected until true or the deadline passes (ErrConnectTimeout).
// An AlreadyConnected reply is treated like a successful call.
func (c *Connector) Connect(ctx context.Context, path bluez.ObjectPath) error {
	if c.Connected(path) {
		return nil
	}

	c.logger.WithField("path", path).Info("Connecting")
	if err := c.client.Call(path, bluez.InterfaceDevice, "Connect"); err != nil {
		if bluez.Classify(err) != bluez.KindAlreadyConnected {
			return err
		}
		c.logger.WithField("path", path).Debug("Device reports already connected")
	}

	deadline := c.clock.Now().Add(c.timeout)
	for c.clock.Now().Before(deadline) {
		if c.Connected(path) {
			return nil
		}
		if err := c.clock.Sleep(ctx, c.poll); err != nil {
			return err
		}
	}
	if c.Connected(path) {
		return nil
	}
	return ErrConnectTimeout
}

// ConnectBackoff is the retry state maintenance keeps across ticks.
type ConnectBackoff struct {
	Failures    int
	NextAttempt time.Time
}

// Ready reports whether a connect attempt is allowed at now.
func (b *ConnectBackoff) Ready(now time.Time) bool {
	return !now.Before(b.NextAttempt)
}

// Backoff is the delay after the given number of consecutive failures:
// 2^failures seconds capped at 30s, at least 5s for timeouts and generic
// BlueZ failures.
func Backoff(failures int, kind bluez.ErrorKind) time.Duration {
	exp := min(failures, maxBackoffExponent)
	d := min(time.Duration(1<<exp)*time.Second, maxBackoff)
	if kind == bluez.KindTimeout || kind == bluez.KindFailed {
		d = max(d, slowFailureFloor)
	}
	return d
}

// RecordError updates the counters after a failed Connect call started at
// started. InProgress only delays; every other error counts as a failure.
// It returns the delay applied.
func (b *ConnectBackoff) RecordError(started time.Time, err error) time.Duration {
	kind := bluez.Classify(err)
	if kind == bluez.KindInProgress {
		b.NextAttempt = started.Add(inProgressRetry)
		return inProgressRetry
	}
	b.Failures++
	d := Backoff(b.Failures, kind)
	b.NextAttempt = started.Add(d)
	return d
}

// RecordTimeout counts a connect that never reported Connected.
func (b *ConnectBackoff) RecordTimeout(now time.Time) {
	b.Failures++
	b.NextAttempt = now.Add(pollTimeoutBackoff)
}

// RecordSuccess clears the counters.
func (b *ConnectBackoff) RecordSuccess(now time.Time) {
	b.Failures = 0
	b.NextAttempt = now
}

// Reset clears the counters and any pending delay, used after
// reacquisition so the new device is tried on the same tick.
func (b *ConnectBackoff) Reset() {
	b.Failures = 0
	b.NextAttempt = time.Time{}
}
