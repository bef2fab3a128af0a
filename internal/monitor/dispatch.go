package monitor

import (
	"github.com/cornelk/hashmap"
	"github.com/godbus/dbus/v5"
	"github.com/sirupsen/logrus"
	"github.com/srg/polarhr/internal/bluez"
)

// Handler consumes a characteristic Value change.
type Handler func(pc bluez.PropertiesChanged) error

// Dispatcher routes PropertiesChanged signals to the handler registered
// for the signal's object path.
type Dispatcher struct {
	handlers *hashmap.Map[string, Handler]
	logger   *logrus.Logger
}

func NewDispatcher(logger *logrus.Logger) *Dispatcher {
	return &Dispatcher{
		handlers: hashmap.New[string, Handler](),
		logger:   logger,
	}
}

// Register installs h for path, replacing any previous handler.
func (d *Dispatcher) Register(path bluez.ObjectPath, h Handler) {
	d.handlers.Set(path.String(), h)
}

// Unregister removes the handler for path.
func (d *Dispatcher) Unregister(path bluez.ObjectPath) {
	d.handlers.Del(path.String())
}

// Len returns the number of registered paths.
func (d *Dispatcher) Len() int {
	return d.handlers.Len()
}

// Paths returns the registered paths in no particular order.
func (d *Dispatcher) Paths() []bluez.ObjectPath {
	paths := make([]bluez.ObjectPath, 0, d.handlers.Len())
	d.handlers.Range(func(key string, _ Handler) bool {
		paths = append(paths, bluez.ObjectPath(key))
		return true
	})
	return paths
}

// Dispatch hands sig to its handler. Signals that are not characteristic
// Value changes, or that arrive for an unregistered path, are ignored.
func (d *Dispatcher) Dispatch(sig *dbus.Signal) error {
	pc, ok := bluez.ParsePropertiesChanged(sig)
	if !ok {
		return nil
	}
	if pc.Interface != bluez.InterfaceGattCharacteristic || !pc.HasValue {
		return nil
	}
	h, ok := d.handlers.Get(pc.Path.String())
	if !ok {
		d.logger.WithField("path", pc.Path).Debug("Value change for unregistered path")
		return nil
	}
	return h(pc)
}
