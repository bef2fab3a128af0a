package testutils

import (
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/srg/polarhr/internal/bluez"
)

// Call names recorded by FakeBlueZ.
const (
	CallGetManagedObjects = "GetManagedObjects"
	CallStartDiscovery    = "StartDiscovery"
	CallStopDiscovery     = "StopDiscovery"
	CallConnect           = "Connect"
	CallStartNotify       = "StartNotify"
	CallGetConnected      = "Get Connected"
	CallGetNotifying      = "Get Notifying"
	CallReadValue         = "ReadValue"
	CallWatch             = "Watch"
	CallUnwatch           = "Unwatch"
)

// RecordedCall is one interaction with the fake daemon.
type RecordedCall struct {
	Name string
	Path bluez.ObjectPath
}

func (c RecordedCall) String() string {
	return fmt.Sprintf("%s %s", c.Name, c.Path)
}

type fakeObjects = map[dbus.ObjectPath]map[string]map[string]dbus.Variant

// FakeBlueZ is an in-memory BlueZ daemon. It keeps a managed object tree,
// reacts to Connect/StartNotify like the daemon would, and records every
// call in order so tests can assert on the sequence.
type FakeBlueZ struct {
	mu       sync.Mutex
	objects  fakeObjects
	calls    []RecordedCall
	failNext map[string][]error
	watches  map[bluez.ObjectPath]int
	values   map[bluez.ObjectPath][]byte
	signals  chan *dbus.Signal

	// ConnectCompletes controls whether Connect flips Connected to true.
	ConnectCompletes bool
	// OnStartDiscovery runs when StartDiscovery succeeds, outside the lock.
	OnStartDiscovery func(f *FakeBlueZ)
	// DirectoryErr, when set, fails every GetManagedObjects call.
	DirectoryErr error
}

func NewFakeBlueZ() *FakeBlueZ {
	return &FakeBlueZ{
		objects:          fakeObjects{},
		failNext:         map[string][]error{},
		watches:          map[bluez.ObjectPath]int{},
		values:           map[bluez.ObjectPath][]byte{},
		signals:          make(chan *dbus.Signal, 256),
		ConnectCompletes: true,
	}
}

// DBusError builds a D-Bus error reply with the given name.
func DBusError(name string) error {
	return dbus.Error{Name: name, Body: []interface{}{name}}
}

func (f *FakeBlueZ) setProp(path bluez.ObjectPath, iface bluez.Interface, prop string, value interface{}) {
	ifaces, ok := f.objects[dbus.ObjectPath(path)]
	if !ok {
		ifaces = map[string]map[string]dbus.Variant{}
		f.objects[dbus.ObjectPath(path)] = ifaces
	}
	props, ok := ifaces[string(iface)]
	if !ok {
		props = map[string]dbus.Variant{}
		ifaces[string(iface)] = props
	}
	props[prop] = dbus.MakeVariant(value)
}

// AddAdapter registers an Adapter1 object.
func (f *FakeBlueZ) AddAdapter(path bluez.ObjectPath) *FakeBlueZ {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setProp(path, bluez.InterfaceAdapter, "Powered", true)
	return f
}

// AddDevice registers a Device1 object with a Name.
func (f *FakeBlueZ) AddDevice(path bluez.ObjectPath, name string, connected bool) *FakeBlueZ {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setProp(path, bluez.InterfaceDevice, "Name", name)
	f.setProp(path, bluez.InterfaceDevice, "Connected", connected)
	return f
}

// AddCharacteristic registers a GattCharacteristic1 object.
func (f *FakeBlueZ) AddCharacteristic(path bluez.ObjectPath, uuid string, notifying bool) *FakeBlueZ {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setProp(path, bluez.InterfaceGattCharacteristic, "UUID", uuid)
	f.setProp(path, bluez.InterfaceGattCharacteristic, "Notifying", notifying)
	return f
}

// SetValue sets what ReadValue returns for path.
func (f *FakeBlueZ) SetValue(path bluez.ObjectPath, value []byte) *FakeBlueZ {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[path] = value
	return f
}

// Remove drops path and every object below it.
func (f *FakeBlueZ) Remove(path bluez.ObjectPath) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for p := range f.objects {
		if bluez.ObjectPath(p) == path || bluez.ObjectPath(p).IsDescendantOf(path) {
			delete(f.objects, p)
		}
	}
}

// SetConnected changes Device1.Connected.
func (f *FakeBlueZ) SetConnected(path bluez.ObjectPath, connected bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setProp(path, bluez.InterfaceDevice, "Connected", connected)
}

// SetNotifying changes GattCharacteristic1.Notifying.
func (f *FakeBlueZ) SetNotifying(path bluez.ObjectPath, notifying bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setProp(path, bluez.InterfaceGattCharacteristic, "Notifying", notifying)
}

// FailNext queues err for the next call with the given name.
func (f *FakeBlueZ) FailNext(call string, err error) *FakeBlueZ {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failNext[call] = append(f.failNext[call], err)
	return f
}

// Notify injects a Value change signal for path. Like the real bus, it
// only delivers when a match for path is installed.
func (f *FakeBlueZ) Notify(path bluez.ObjectPath, value []byte) bool {
	f.mu.Lock()
	watched := f.watches[path] > 0
	f.mu.Unlock()
	if !watched {
		return false
	}
	f.signals <- bluez.NewValueSignal(path, value)
	return true
}

// Calls returns the recorded call sequence.
func (f *FakeBlueZ) Calls() []RecordedCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]RecordedCall(nil), f.calls...)
}

// CallNames returns the recorded call names, skipping directory queries
// and property reads.
func (f *FakeBlueZ) CallNames() []string {
	var out []string
	for _, c := range f.Calls() {
		switch c.Name {
		case CallGetManagedObjects, CallGetConnected, CallGetNotifying:
			continue
		}
		out = append(out, c.Name)
	}
	return out
}

// CountCalls counts calls with the given name.
func (f *FakeBlueZ) CountCalls(name string) int {
	n := 0
	for _, c := range f.Calls() {
		if c.Name == name {
			n++
		}
	}
	return n
}

// ResetCalls clears the recorded sequence.
func (f *FakeBlueZ) ResetCalls() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

// ActiveWatches returns the paths with an installed match.
func (f *FakeBlueZ) ActiveWatches() []bluez.ObjectPath {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []bluez.ObjectPath
	for p, n := range f.watches {
		if n > 0 {
			out = append(out, p)
		}
	}
	return out
}

// record appends a call and pops a queued failure. Must hold mu.
func (f *FakeBlueZ) record(name string, path bluez.ObjectPath) error {
	f.calls = append(f.calls, RecordedCall{Name: name, Path: path})
	queue := f.failNext[name]
	if len(queue) == 0 {
		return nil
	}
	f.failNext[name] = queue[1:]
	return queue[0]
}

func (f *FakeBlueZ) hasInterface(path bluez.ObjectPath, iface bluez.Interface) bool {
	ifaces, ok := f.objects[dbus.ObjectPath(path)]
	if !ok {
		return false
	}
	_, ok = ifaces[string(iface)]
	return ok
}

func (f *FakeBlueZ) ManagedObjects() (bluez.Directory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(CallGetManagedObjects, "/"); err != nil {
		return nil, fmt.Errorf("%w: %w", bluez.ErrDirectory, err)
	}
	if f.DirectoryErr != nil {
		return nil, f.DirectoryErr
	}

	// deep copy so later mutations do not leak into a returned snapshot
	snapshot := fakeObjects{}
	for p, ifaces := range f.objects {
		ic := map[string]map[string]dbus.Variant{}
		for i, props := range ifaces {
			pc := map[string]dbus.Variant{}
			for k, v := range props {
				pc[k] = v
			}
			ic[i] = pc
		}
		snapshot[p] = ic
	}
	return bluez.DecodeManagedObjects([]interface{}{snapshot})
}

func (f *FakeBlueZ) Call(path bluez.ObjectPath, iface bluez.Interface, method string) error {
	f.mu.Lock()
	err := f.record(method, path)
	if err == nil && !f.hasInterface(path, iface) {
		err = DBusError(bluez.ErrNameUnknownObject)
	}
	if err != nil {
		f.mu.Unlock()
		return &bluez.CallError{Path: path, Interface: iface, Method: method, Err: err}
	}

	var hook func(*FakeBlueZ)
	switch method {
	case CallConnect:
		if f.ConnectCompletes {
			f.setProp(path, bluez.InterfaceDevice, "Connected", true)
		}
	case CallStartNotify:
		f.setProp(path, bluez.InterfaceGattCharacteristic, "Notifying", true)
	case CallStartDiscovery:
		hook = f.OnStartDiscovery
	}
	f.mu.Unlock()

	if hook != nil {
		hook(f)
	}
	return nil
}

func (f *FakeBlueZ) GetBool(path bluez.ObjectPath, iface bluez.Interface, prop string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("Get "+prop, path); err != nil {
		return false, err
	}
	ifaces, ok := f.objects[dbus.ObjectPath(path)]
	if !ok {
		return false, DBusError(bluez.ErrNameUnknownObject)
	}
	v, ok := ifaces[string(iface)][prop]
	if !ok {
		return false, DBusError("org.freedesktop.DBus.Error.InvalidArgs")
	}
	b, ok := v.Value().(bool)
	if !ok {
		return false, bluez.ErrPropertyType
	}
	return b, nil
}

func (f *FakeBlueZ) ReadValue(path bluez.ObjectPath) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(CallReadValue, path); err != nil {
		return nil, err
	}
	v, ok := f.values[path]
	if !ok {
		return nil, DBusError("org.bluez.Error.NotPermitted")
	}
	return append([]byte(nil), v...), nil
}

func (f *FakeBlueZ) Watch(path bluez.ObjectPath) (*bluez.Watch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(CallWatch, path); err != nil {
		return nil, err
	}
	f.watches[path]++
	return &bluez.Watch{Path: path}, nil
}

func (f *FakeBlueZ) Unwatch(w *bluez.Watch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(CallUnwatch, w.Path); err != nil {
		return err
	}
	if f.watches[w.Path] > 0 {
		f.watches[w.Path]--
	}
	return nil
}

func (f *FakeBlueZ) Signals() <-chan *dbus.Signal {
	return f.signals
}
