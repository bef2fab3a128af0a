package bluez

import (
	"strings"

	"github.com/godbus/dbus/v5"
)

// Service is the well-known bus name of the BlueZ daemon.
const Service = "org.bluez"

// DefaultAdapter is the object path of the first local controller.
const DefaultAdapter ObjectPath = "/org/bluez/hci0"

// Interface names used by this client.
const (
	InterfaceAdapter            Interface = "org.bluez.Adapter1"
	InterfaceDevice             Interface = "org.bluez.Device1"
	InterfaceGattCharacteristic Interface = "org.bluez.GattCharacteristic1"
	InterfaceProperties         Interface = "org.freedesktop.DBus.Properties"
	InterfaceObjectManager      Interface = "org.freedesktop.DBus.ObjectManager"
)

// ObjectPath is a BlueZ object path such as /org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF.
type ObjectPath string

func (p ObjectPath) String() string { return string(p) }

// IsDescendantOf reports whether p lives strictly below parent in the object tree.
// /org/bluez/hci0/dev_A1 is not a descendant of /org/bluez/hci0/dev_A.
func (p ObjectPath) IsDescendantOf(parent ObjectPath) bool {
	if parent == "" {
		return false
	}
	return strings.HasPrefix(string(p), string(parent)+"/")
}

func (p ObjectPath) dbus() dbus.ObjectPath { return dbus.ObjectPath(p) }

// Interface is a D-Bus interface name. Comparison is exact.
type Interface string

func (i Interface) String() string { return string(i) }

// Member returns the fully qualified name of a method or signal on the interface.
func (i Interface) Member(name string) string {
	return string(i) + "." + name
}

// UUID is a lowercased 128-bit GATT UUID in canonical dashed form.
type UUID string

// NewUUID lowercases s. BlueZ reports UUIDs in lowercase but callers may not.
func NewUUID(s string) UUID {
	return UUID(strings.ToLower(s))
}

func (u UUID) String() string { return string(u) }

// Equal compares two UUIDs ignoring case.
func (u UUID) Equal(other UUID) bool {
	return strings.EqualFold(string(u), string(other))
}

// Short returns the first eight characters, the part that carries the
// 16-bit assigned number for SIG-based UUIDs.
func (u UUID) Short() string {
	if len(u) > 8 {
		return string(u[:8])
	}
	return string(u)
}
