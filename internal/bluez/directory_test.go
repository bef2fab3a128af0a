package bluez

import (
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func variantProps(kv ...interface{}) map[string]dbus.Variant {
	props := make(map[string]dbus.Variant)
	for i := 0; i+1 < len(kv); i += 2 {
		props[kv[i].(string)] = dbus.MakeVariant(kv[i+1])
	}
	return props
}

func TestDecodeManagedObjects(t *testing.T) {
	reply := managedObjects{
		"/org/bluez/hci0/dev_B": {
			"org.bluez.Device1": variantProps("Name", "Polar H9 EA190E24", "RSSI", int16(-60)),
		},
		"/org/bluez/hci0": {
			"org.bluez.Adapter1":               variantProps("Powered", true),
			"org.freedesktop.DBus.Introspectable": {},
		},
		"/org/bluez/hci0/dev_B/service000c/char000d": {
			"org.bluez.GattCharacteristic1": variantProps(
				"UUID", "00002A37-0000-1000-8000-00805F9B34FB",
				"Value", []byte{0x10, 70},
				"Flags", []string{"notify"},
			),
		},
	}

	dir, err := DecodeManagedObjects([]interface{}{reply})
	require.NoError(t, err)
	require.Len(t, dir, 4)

	// sorted by path, then interface
	assert.Equal(t, ObjectPath("/org/bluez/hci0"), dir[0].Path)
	assert.Equal(t, InterfaceAdapter, dir[0].Interface)
	assert.Equal(t, Interface("org.freedesktop.DBus.Introspectable"), dir[1].Interface)
	assert.Equal(t, ObjectPath("/org/bluez/hci0/dev_B"), dir[2].Path)
	assert.Equal(t, ObjectPath("/org/bluez/hci0/dev_B/service000c/char000d"), dir[3].Path)

	require.NotNil(t, dir[2].Name)
	assert.Equal(t, "Polar H9 EA190E24", *dir[2].Name)
	assert.Nil(t, dir[2].UUID)

	require.NotNil(t, dir[3].UUID)
	assert.Equal(t, UUID("00002a37-0000-1000-8000-00805f9b34fb"), *dir[3].UUID, "UUID must be lowercased")
	assert.Nil(t, dir[3].Name)

	assert.Nil(t, dir[0].Name)
	assert.Nil(t, dir[0].UUID)
}

func TestDecodeManagedObjectsIgnoresNonStringProperties(t *testing.T) {
	reply := managedObjects{
		"/org/bluez/hci0/dev_A": {
			"org.bluez.Device1": variantProps("Name", uint32(7), "UUID", []byte{1, 2}),
		},
	}

	dir, err := DecodeManagedObjects([]interface{}{reply})
	require.NoError(t, err)
	require.Len(t, dir, 1)
	assert.Nil(t, dir[0].Name)
	assert.Nil(t, dir[0].UUID)
}

func TestDecodeManagedObjectsEmpty(t *testing.T) {
	dir, err := DecodeManagedObjects([]interface{}{managedObjects{}})
	require.NoError(t, err)
	assert.Empty(t, dir)
}

func TestDecodeManagedObjectsMalformed(t *testing.T) {
	tests := []struct {
		name string
		body []interface{}
	}{
		{"empty body", nil},
		{"two values", []interface{}{managedObjects{}, "extra"}},
		{"wrong top-level type", []interface{}{map[string]string{"a": "b"}}},
		{"string", []interface{}{"not a dict"}},
		{"invalid path", []interface{}{managedObjects{"relative/path": {}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir, err := DecodeManagedObjects(tt.body)
			assert.ErrorIs(t, err, ErrMalformedReply)
			assert.Nil(t, dir)
		})
	}
}

func TestDirectoryQueries(t *testing.T) {
	name := "Polar H10 8A8F192B"
	dir := Directory{
		{Path: "/org/bluez/hci0", Interface: InterfaceAdapter},
		{Path: "/org/bluez/hci0/dev_A", Interface: InterfaceDevice, Name: &name},
		{Path: "/org/bluez/hci0/dev_B", Interface: InterfaceDevice},
	}

	assert.True(t, dir.HasInterface("/org/bluez/hci0/dev_A", InterfaceDevice))
	assert.False(t, dir.HasInterface("/org/bluez/hci0/dev_A", InterfaceAdapter))
	assert.False(t, dir.HasInterface("/org/bluez/hci0/dev_C", InterfaceDevice))

	devices := dir.WithInterface(InterfaceDevice)
	require.Len(t, devices, 2)
	assert.Equal(t, ObjectPath("/org/bluez/hci0/dev_A"), devices[0].Path)
	assert.Equal(t, ObjectPath("/org/bluez/hci0/dev_B"), devices[1].Path)
}
