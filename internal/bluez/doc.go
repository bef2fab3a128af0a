// Package bluez talks to the BlueZ Bluetooth daemon over the system D-Bus.
//
// It covers the small protocol surface a GATT notification client needs:
//   - a single bus session with FIFO signal delivery
//   - the ObjectManager directory query, flattened into Entry values
//   - no-argument method calls on adapter, device and characteristic objects
//   - boolean property reads through org.freedesktop.DBus.Properties
//   - PropertiesChanged signal matches scoped to one object path
//
// Higher layers never see raw D-Bus values; they work with Directory,
// ObjectPath, Interface and UUID.
package bluez
