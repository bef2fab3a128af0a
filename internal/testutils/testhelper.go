package testutils

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

type TestHelper struct {
	T      *testing.T
	Logger *logrus.Logger
	Clock  *FakeClock
	BlueZ  *FakeBlueZ
}

// NewTestHelper creates a test helper with a debug logger, a fake clock and an empty fake daemon.
func NewTestHelper(t *testing.T) *TestHelper {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel) // enable debug logs to track execution flow
	return &TestHelper{
		T:      t,
		Logger: logger,
		Clock:  NewFakeClock(time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)),
		BlueZ:  NewFakeBlueZ(),
	}
}

// CapturedLogger returns a logger writing into the returned buffer.
func CapturedLogger() (*logrus.Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	logger := logrus.New()
	logger.SetOutput(buf)
	logger.SetLevel(logrus.DebugLevel)
	logger.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true, DisableColors: true})
	return logger, buf
}

// FakeClock is a manually advanced clock. Sleep and After advance it
// instead of blocking.
type FakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration

	// OnSleep runs after every Sleep with the new time, outside the lock.
	OnSleep func(now time.Time)
}

func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FakeClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

func (c *FakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.sleeps = append(c.sleeps, d)
	now := c.now
	hook := c.OnSleep
	c.mu.Unlock()

	if hook != nil {
		hook(now)
	}
	return nil
}

func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	ch <- c.Advance(d)
	return ch
}

// Sleeps returns every duration passed to Sleep.
func (c *FakeClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}
