package bluez

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestObjectPathIsDescendantOf(t *testing.T) {
	tests := []struct {
		path, parent ObjectPath
		want         bool
	}{
		{"/org/bluez/hci0/dev_A/service000c/char000d", "/org/bluez/hci0/dev_A", true},
		{"/org/bluez/hci0/dev_A/service000c", "/org/bluez/hci0/dev_A", true},
		{"/org/bluez/hci0/dev_A", "/org/bluez/hci0/dev_A", false},
		{"/org/bluez/hci0/dev_AB/service000c", "/org/bluez/hci0/dev_A", false},
		{"/org/bluez/hci0/dev_A", "", false},
		{"/org/bluez/hci1/dev_A/char", "/org/bluez/hci0/dev_A", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.path)+" under "+string(tt.parent), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.path.IsDescendantOf(tt.parent))
		})
	}
}

func TestUUID(t *testing.T) {
	u := NewUUID("00002A37-0000-1000-8000-00805F9B34FB")
	assert.Equal(t, UUID("00002a37-0000-1000-8000-00805f9b34fb"), u)
	assert.True(t, u.Equal("00002a37-0000-1000-8000-00805F9B34FB"))
	assert.False(t, u.Equal("00002a38-0000-1000-8000-00805f9b34fb"))
	assert.Equal(t, "00002a37", u.Short())
	assert.Equal(t, "2a37", UUID("2a37").Short())
}

func TestInterfaceMember(t *testing.T) {
	assert.Equal(t, "org.bluez.Device1.Connect", InterfaceDevice.Member("Connect"))
	assert.Equal(t, "org.freedesktop.DBus.Properties.PropertiesChanged", propertiesChangedSignal)
}
