package device

import (
	"strings"

	"github.com/srg/polarhr/internal/bluez"
)

// FoundDevice is a device object whose Name matched the preference list.
type FoundDevice struct {
	Path bluez.ObjectPath
	Name string
}

// ModelPrefix names the output files of a strap: "polarh10" for H10 straps,
// "polarh9" otherwise.
func (d FoundDevice) ModelPrefix() string {
	if strings.Contains(d.Name, "H10") {
		return "polarh10"
	}
	return "polarh9"
}

// SelectDevice picks the Device1 entry whose Name equals the earliest
// possible entry of names. Directory order only breaks ties between two
// devices with the same name.
func SelectDevice(dir bluez.Directory, names []string) (FoundDevice, bool) {
	best := len(names)
	var found FoundDevice
	for _, e := range dir {
		if e.Interface != bluez.InterfaceDevice || e.Name == nil {
			continue
		}
		for i := 0; i < best; i++ {
			if *e.Name == names[i] {
				best = i
				found = FoundDevice{Path: e.Path, Name: names[i]}
				break
			}
		}
		if best == 0 {
			break
		}
	}
	return found, best < len(names)
}

// FindDevice queries the daemon and applies SelectDevice.
// Not found is (zero, false, nil); errors come only from the directory query.
func FindDevice(c Client, names []string) (FoundDevice, bool, error) {
	dir, err := c.ManagedObjects()
	if err != nil {
		return FoundDevice{}, false, err
	}
	found, ok := SelectDevice(dir, names)
	return found, ok, nil
}

// SelectCharacteristic returns the first GattCharacteristic1 under dev whose
// UUID matches case-insensitively.
func SelectCharacteristic(dir bluez.Directory, dev bluez.ObjectPath, uuid bluez.UUID) (bluez.ObjectPath, bool) {
	for _, e := range Characteristics(dir, dev) {
		if e.UUID.Equal(uuid) {
			return e.Path, true
		}
	}
	return "", false
}

// Characteristics lists GattCharacteristic1 entries with a UUID under dev.
func Characteristics(dir bluez.Directory, dev bluez.ObjectPath) []bluez.Entry {
	var out []bluez.Entry
	for _, e := range dir {
		if e.Interface != bluez.InterfaceGattCharacteristic || e.UUID == nil {
			continue
		}
		if !e.Path.IsDescendantOf(dev) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// FindCharacteristic queries the daemon and applies SelectCharacteristic.
func FindCharacteristic(c Client, dev bluez.ObjectPath, uuid bluez.UUID) (bluez.ObjectPath, bool, error) {
	dir, err := c.ManagedObjects()
	if err != nil {
		return "", false, err
	}
	path, ok := SelectCharacteristic(dir, dev, uuid)
	return path, ok, nil
}

// HasInterface reports whether the daemon still exposes iface at path.
func HasInterface(c Client, path bluez.ObjectPath, iface bluez.Interface) (bool, error) {
	if path == "" {
		return false, nil
	}
	dir, err := c.ManagedObjects()
	if err != nil {
		return false, err
	}
	return dir.HasInterface(path, iface), nil
}
