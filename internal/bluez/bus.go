package bluez

import (
	"fmt"

	"github.com/godbus/dbus/v5"
	"github.com/sirupsen/logrus"
)

// signalBuffer is the capacity of the channel between the sequential
// signal handler and the event loop. The handler queues without bound
// behind it, so a full channel delays delivery but never drops.
const signalBuffer = 64

// Bus is a session on the system bus scoped to the BlueZ service.
// It is not safe for concurrent use; the event loop owns it.
type Bus struct {
	conn    *dbus.Conn
	signals chan *dbus.Signal
	logger  *logrus.Logger
}

// Watch is an installed PropertiesChanged match for one object path.
type Watch struct {
	Path    ObjectPath
	options []dbus.MatchOption
}

// Open connects to the system bus. Signals are delivered in the order the
// daemon sent them.
func Open(logger *logrus.Logger) (*Bus, error) {
	conn, err := dbus.ConnectSystemBus(dbus.WithSignalHandler(dbus.NewSequentialSignalHandler()))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to system bus: %w", err)
	}
	return newBus(conn, logger), nil
}

func newBus(conn *dbus.Conn, logger *logrus.Logger) *Bus {
	if logger == nil {
		logger = logrus.New()
	}
	b := &Bus{
		conn:    conn,
		signals: make(chan *dbus.Signal, signalBuffer),
		logger:  logger,
	}
	conn.Signal(b.signals)
	return b
}

// Close removes the signal channel and closes the connection.
func (b *Bus) Close() error {
	b.conn.RemoveSignal(b.signals)
	return b.conn.Close()
}

// Signals returns the channel all matched signals arrive on.
func (b *Bus) Signals() <-chan *dbus.Signal {
	return b.signals
}

func (b *Bus) object(path ObjectPath) dbus.BusObject {
	return b.conn.Object(Service, path.dbus())
}

// ManagedObjects runs GetManagedObjects on the service root and flattens the reply.
// Any error wraps ErrDirectory.
func (b *Bus) ManagedObjects() (Directory, error) {
	call := b.object("/").Call(InterfaceObjectManager.Member("GetManagedObjects"), 0)
	if call.Err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDirectory, call.Err)
	}
	dir, err := DecodeManagedObjects(call.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDirectory, err)
	}
	b.logger.WithField("entries", len(dir)).Debug("Managed objects queried")
	return dir, nil
}

// Call invokes a no-argument method on path.
func (b *Bus) Call(path ObjectPath, iface Interface, method string) error {
	b.logger.WithFields(logrus.Fields{
		"path":   path,
		"method": iface.Member(method),
	}).Debug("Calling method")

	call := b.object(path).Call(iface.Member(method), 0)
	if call.Err != nil {
		return &CallError{Path: path, Interface: iface, Method: method, Err: call.Err}
	}
	return nil
}

// GetBool reads a boolean property through org.freedesktop.DBus.Properties.Get.
func (b *Bus) GetBool(path ObjectPath, iface Interface, prop string) (bool, error) {
	var v dbus.Variant
	err := b.object(path).Call(InterfaceProperties.Member("Get"), 0, string(iface), prop).Store(&v)
	if err != nil {
		return false, &CallError{Path: path, Interface: InterfaceProperties, Method: "Get", Err: err}
	}
	value, ok := v.Value().(bool)
	if !ok {
		return false, fmt.Errorf("%w: %s.%s is %s", ErrPropertyType, iface, prop, v.Signature())
	}
	return value, nil
}

// ReadValue reads a characteristic value with empty options.
func (b *Bus) ReadValue(path ObjectPath) ([]byte, error) {
	var data []byte
	err := b.object(path).
		Call(InterfaceGattCharacteristic.Member("ReadValue"), 0, map[string]dbus.Variant{}).
		Store(&data)
	if err != nil {
		return nil, &CallError{Path: path, Interface: InterfaceGattCharacteristic, Method: "ReadValue", Err: err}
	}
	return data, nil
}

// Watch installs a PropertiesChanged match for exactly path.
func (b *Bus) Watch(path ObjectPath) (*Watch, error) {
	opts := []dbus.MatchOption{
		dbus.WithMatchSender(Service),
		dbus.WithMatchObjectPath(path.dbus()),
		dbus.WithMatchInterface(string(InterfaceProperties)),
		dbus.WithMatchMember("PropertiesChanged"),
	}
	if err := b.conn.AddMatchSignal(opts...); err != nil {
		return nil, fmt.Errorf("failed to add signal match for %s: %w", path, err)
	}
	b.logger.WithField("path", path).Debug("Installed PropertiesChanged match")
	return &Watch{Path: path, options: opts}, nil
}

// Unwatch removes a match installed by Watch.
func (b *Bus) Unwatch(w *Watch) error {
	if w == nil {
		return nil
	}
	if err := b.conn.RemoveMatchSignal(w.options...); err != nil {
		return fmt.Errorf("failed to remove signal match for %s: %w", w.Path, err)
	}
	b.logger.WithField("path", w.Path).Debug("Removed PropertiesChanged match")
	return nil
}
