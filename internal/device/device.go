package device

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/srg/polarhr/internal/bluez"
)

// Client is the slice of the BlueZ bus the controllers need.
type Client interface {
	ManagedObjects() (bluez.Directory, error)
	Call(path bluez.ObjectPath, iface bluez.Interface, method string) error
	GetBool(path bluez.ObjectPath, iface bluez.Interface, prop string) (bool, error)
	ReadValue(path bluez.ObjectPath) ([]byte, error)
}

// Watcher installs and removes PropertiesChanged matches.
type Watcher interface {
	Watch(path bluez.ObjectPath) (*bluez.Watch, error)
	Unwatch(w *bluez.Watch) error
}

// Clock abstracts time so polling loops run instantly under test.
type Clock interface {
	Now() time.Time
	// Sleep blocks for d or until ctx is done, returning ctx.Err() in the latter case.
	Sleep(ctx context.Context, d time.Duration) error
	After(d time.Duration) <-chan time.Time
}

// SystemClock is the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

func (SystemClock) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (SystemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// NotFoundError represents a BlueZ object that could not be located
type NotFoundError struct {
	Resource string   // "device", "characteristic"
	Keys     []string // names for devices, UUID for characteristics
}

func (e *NotFoundError) Error() string {
	switch len(e.Keys) {
	case 0:
		return fmt.Sprintf("%s not found", e.Resource)
	case 1:
		return fmt.Sprintf("%s %q not found", e.Resource, e.Keys[0])
	default:
		return fmt.Sprintf("%s not found (tried %s)", e.Resource, strings.Join(e.Keys, ", "))
	}
}

// Is matches any NotFoundError for the same resource kind.
func (e *NotFoundError) Is(target error) bool {
	t, ok := target.(*NotFoundError)
	if !ok {
		return false
	}
	return t.Resource == "" || t.Resource == e.Resource
}

// Sentinels for errors.Is checks.
var (
	ErrDeviceNotFound         = &NotFoundError{Resource: "device"}
	ErrCharacteristicNotFound = &NotFoundError{Resource: "characteristic"}
	ErrStartDiscovery         = errors.New("failed to start discovery")
	ErrConnectTimeout         = errors.New("connect timed out")
)

// IsFatal reports whether err means the daemon itself is unusable.
func IsFatal(err error) bool {
	return errors.Is(err, bluez.ErrDirectory)
}
