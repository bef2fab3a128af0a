package testutils

import (
	"github.com/srg/polarhr/internal/bluez"
	"github.com/stretchr/testify/mock"
)

// MockClient is a testify mock of device.Client for tests that care about
// exact arguments rather than daemon state.
type MockClient struct {
	mock.Mock
}

func (m *MockClient) ManagedObjects() (bluez.Directory, error) {
	args := m.Called()
	dir, _ := args.Get(0).(bluez.Directory)
	return dir, args.Error(1)
}

func (m *MockClient) Call(path bluez.ObjectPath, iface bluez.Interface, method string) error {
	args := m.Called(path, iface, method)
	return args.Error(0)
}

func (m *MockClient) GetBool(path bluez.ObjectPath, iface bluez.Interface, prop string) (bool, error) {
	args := m.Called(path, iface, prop)
	return args.Bool(0), args.Error(1)
}

func (m *MockClient) ReadValue(path bluez.ObjectPath) ([]byte, error) {
	args := m.Called(path)
	data, _ := args.Get(0).([]byte)
	return data, args.Error(1)
}

// DirectoryBuilder assembles a bluez.Directory fixture in the exact order
// entries are added, for tests that need a specific raw listing order.
type DirectoryBuilder struct {
	entries bluez.Directory
}

func NewDirectoryBuilder() *DirectoryBuilder {
	return &DirectoryBuilder{}
}

func (b *DirectoryBuilder) WithAdapter(path bluez.ObjectPath) *DirectoryBuilder {
	b.entries = append(b.entries, bluez.Entry{Path: path, Interface: bluez.InterfaceAdapter})
	return b
}

func (b *DirectoryBuilder) WithDevice(path bluez.ObjectPath, name string) *DirectoryBuilder {
	n := name
	b.entries = append(b.entries, bluez.Entry{Path: path, Interface: bluez.InterfaceDevice, Name: &n})
	return b
}

func (b *DirectoryBuilder) WithCharacteristic(path bluez.ObjectPath, uuid string) *DirectoryBuilder {
	u := bluez.NewUUID(uuid)
	b.entries = append(b.entries, bluez.Entry{Path: path, Interface: bluez.InterfaceGattCharacteristic, UUID: &u})
	return b
}

func (b *DirectoryBuilder) Build() bluez.Directory {
	return append(bluez.Directory(nil), b.entries...)
}
