package device

import (
	"errors"
	"testing"

	"github.com/srg/polarhr/internal/bluez"
	"github.com/srg/polarhr/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	nameH10 = "Polar H10 8A8F192B"
	nameH9  = "Polar H9 EA190E24"
	hrUUID  = "00002a37-0000-1000-8000-00805f9b34fb"
)

var preferredNames = []string{nameH10, nameH9}

func TestSelectDevicePriority(t *testing.T) {
	tests := []struct {
		name     string
		dir      bluez.Directory
		wantPath bluez.ObjectPath
		wantName string
		wantOK   bool
	}{
		{
			name: "only H9 present",
			dir: testutils.NewDirectoryBuilder().
				WithAdapter("/org/bluez/hci0").
				WithDevice("/org/bluez/hci0/dev_H9", nameH9).
				Build(),
			wantPath: "/org/bluez/hci0/dev_H9",
			wantName: nameH9,
			wantOK:   true,
		},
		{
			name: "H9 listed first, H10 still wins",
			dir: testutils.NewDirectoryBuilder().
				WithDevice("/org/bluez/hci0/dev_H9", nameH9).
				WithDevice("/org/bluez/hci0/dev_H10", nameH10).
				Build(),
			wantPath: "/org/bluez/hci0/dev_H10",
			wantName: nameH10,
			wantOK:   true,
		},
		{
			name: "H10 listed first",
			dir: testutils.NewDirectoryBuilder().
				WithDevice("/org/bluez/hci0/dev_H10", nameH10).
				WithDevice("/org/bluez/hci0/dev_H9", nameH9).
				Build(),
			wantPath: "/org/bluez/hci0/dev_H10",
			wantName: nameH10,
			wantOK:   true,
		},
		{
			name: "name match is case sensitive",
			dir: testutils.NewDirectoryBuilder().
				WithDevice("/org/bluez/hci0/dev_X", "polar h10 8a8f192b").
				Build(),
		},
		{
			name: "unrelated devices",
			dir: testutils.NewDirectoryBuilder().
				WithDevice("/org/bluez/hci0/dev_X", "Headphones").
				WithCharacteristic("/org/bluez/hci0/dev_X/service0001/char0002", hrUUID).
				Build(),
		},
		{
			name: "empty directory",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			found, ok := SelectDevice(tt.dir, preferredNames)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantPath, found.Path)
			assert.Equal(t, tt.wantName, found.Name)
		})
	}
}

func TestSelectDeviceIgnoresNamedNonDevices(t *testing.T) {
	name := nameH10
	dir := bluez.Directory{
		{Path: "/org/bluez/hci0", Interface: bluez.InterfaceAdapter, Name: &name},
	}
	_, ok := SelectDevice(dir, preferredNames)
	assert.False(t, ok)
}

func TestModelPrefix(t *testing.T) {
	assert.Equal(t, "polarh10", FoundDevice{Name: nameH10}.ModelPrefix())
	assert.Equal(t, "polarh9", FoundDevice{Name: nameH9}.ModelPrefix())
	assert.Equal(t, "polarh9", FoundDevice{Name: "Something"}.ModelPrefix())
}

func TestSelectCharacteristic(t *testing.T) {
	dir := testutils.NewDirectoryBuilder().
		WithDevice("/org/bluez/hci0/dev_AB", nameH9).
		WithCharacteristic("/org/bluez/hci0/dev_AB/service000c/char000d", hrUUID).
		WithDevice("/org/bluez/hci0/dev_A", nameH10).
		WithCharacteristic("/org/bluez/hci0/dev_A/service0010/char0011", "00002a19-0000-1000-8000-00805f9b34fb").
		WithCharacteristic("/org/bluez/hci0/dev_A/service000c/char000d", "00002A37-0000-1000-8000-00805F9B34FB").
		Build()

	path, ok := SelectCharacteristic(dir, "/org/bluez/hci0/dev_A", bluez.NewUUID(hrUUID))
	require.True(t, ok)
	assert.Equal(t, bluez.ObjectPath("/org/bluez/hci0/dev_A/service000c/char000d"), path)

	path, ok = SelectCharacteristic(dir, "/org/bluez/hci0/dev_A", "00002A37-0000-1000-8000-00805F9B34FB")
	require.True(t, ok, "lookup UUID case must not matter")
	assert.Equal(t, bluez.ObjectPath("/org/bluez/hci0/dev_A/service000c/char000d"), path)

	_, ok = SelectCharacteristic(dir, "/org/bluez/hci0/dev_A", "00002a38-0000-1000-8000-00805f9b34fb")
	assert.False(t, ok)

	_, ok = SelectCharacteristic(dir, "", bluez.NewUUID(hrUUID))
	assert.False(t, ok)

	chars := Characteristics(dir, "/org/bluez/hci0/dev_A")
	assert.Len(t, chars, 2)
}

func TestFindDevicePropagatesDirectoryErrors(t *testing.T) {
	client := &testutils.MockClient{}
	queryErr := errors.Join(bluez.ErrDirectory, errors.New("name has no owner"))
	client.On("ManagedObjects").Return(nil, queryErr)

	_, ok, err := FindDevice(client, preferredNames)
	assert.False(t, ok)
	assert.True(t, IsFatal(err))

	_, ok, err = FindCharacteristic(client, "/org/bluez/hci0/dev_A", hrUUID)
	assert.False(t, ok)
	assert.ErrorIs(t, err, bluez.ErrDirectory)

	client.AssertNumberOfCalls(t, "ManagedObjects", 2)
}

func TestHasInterface(t *testing.T) {
	fake := testutils.NewFakeBlueZ().
		AddDevice("/org/bluez/hci0/dev_A", nameH10, false)

	ok, err := HasInterface(fake, "/org/bluez/hci0/dev_A", bluez.InterfaceDevice)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = HasInterface(fake, "/org/bluez/hci0/dev_A", bluez.InterfaceGattCharacteristic)
	require.NoError(t, err)
	assert.False(t, ok)

	calls := fake.CountCalls(testutils.CallGetManagedObjects)
	ok, err = HasInterface(fake, "", bluez.InterfaceDevice)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, calls, fake.CountCalls(testutils.CallGetManagedObjects), "empty path needs no query")
}
