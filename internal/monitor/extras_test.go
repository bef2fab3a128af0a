package monitor

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/srg/polarhr/internal/bluez"
	"github.com/srg/polarhr/internal/gatt"
	"github.com/srg/polarhr/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	modelPath   bluez.ObjectPath = "/org/bluez/hci0/dev_A0_9E_1A_8A_8F_19/service0010/char0011"
	batteryPath bluez.ObjectPath = "/org/bluez/hci0/dev_A0_9E_1A_8A_8F_19/service0020/char0021"
	vendorPath  bluez.ObjectPath = "/org/bluez/hci0/dev_A0_9E_1A_8A_8F_19/service0030/char0031"

	vendorUUID = "6217ff4c-c8ec-b1fb-1380-3ad986708e2d"
)

// memoryAppender keeps side-channel lines per suffix.
type memoryAppender struct {
	mu     sync.Mutex
	prefix string
	lines  map[string][]string
}

func newMemoryAppender() *memoryAppender {
	return &memoryAppender{lines: map[string][]string{}}
}

func (a *memoryAppender) Open(prefix string) Appender {
	a.prefix = prefix
	return a
}

func (a *memoryAppender) Append(suffix, line string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lines[suffix] = append(a.lines[suffix], line)
	return nil
}

func (a *memoryAppender) Lines(suffix string) []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.lines[suffix]...)
}

func (s *MonitorSuite) addH10Extras() {
	s.fake.AddDevice(devicePath, nameH10, true)
	s.fake.AddCharacteristic(charPath, string(gatt.HeartRateMeasurement), false)
	s.fake.AddCharacteristic(modelPath, string(gatt.ModelNumber), false)
	s.fake.AddCharacteristic(batteryPath, string(gatt.BatteryLevel), false)
	s.fake.AddCharacteristic(vendorPath, vendorUUID, false)
	s.fake.SetValue(modelPath, []byte("H10\x00"))
	s.fake.SetValue(batteryPath, []byte{80})
}

func (s *MonitorSuite) TestExtrasInstalledForH10() {
	s.opts.Extras = true
	s.addH10Extras()
	out := newMemoryAppender()
	m := s.newMonitor().WithExtras(out.Open)

	_, err := m.Acquire(s.ctx)
	s.Require().NoError(err)

	ts := "1735732800000"
	s.Equal("polarh10", out.prefix)
	s.Equal([]string{ts + ",model_number=H10"}, out.Lines(SuffixDeviceInfo))
	s.ElementsMatch([]bluez.ObjectPath{charPath, modelPath, batteryPath, vendorPath}, m.Dispatcher().Paths())
	s.ElementsMatch([]bluez.ObjectPath{charPath, modelPath, batteryPath, vendorPath}, s.fake.ActiveWatches())
	s.Equal(3, m.extras.Installed())

	s.Require().NoError(m.Dispatcher().Dispatch(bluez.NewValueSignal(batteryPath, []byte{85})))
	s.Require().NoError(m.Dispatcher().Dispatch(bluez.NewValueSignal(vendorPath, []byte{0x01, 0x02})))
	s.Equal([]string{ts + ",85"}, out.Lines(SuffixBattery))
	s.Equal([]string{ts + ",0102"}, out.Lines("6217ff4c"))
	s.Empty(s.sink.Samples(), "side channels never reach the sample sink")
}

func (s *MonitorSuite) TestExtrasSkippedForH9() {
	s.opts.Extras = true
	s.addStrap(nameH9, true)
	s.fake.AddCharacteristic(batteryPath, string(gatt.BatteryLevel), false)
	out := newMemoryAppender()
	m := s.newMonitor().WithExtras(out.Open)

	_, err := m.Acquire(s.ctx)
	s.Require().NoError(err)

	s.Equal(1, m.Dispatcher().Len())
	s.Empty(out.Lines(SuffixDeviceInfo))
}

func (s *MonitorSuite) TestExtrasDisabled() {
	s.addH10Extras()
	out := newMemoryAppender()
	m := s.newMonitor().WithExtras(out.Open)

	_, err := m.Acquire(s.ctx)
	s.Require().NoError(err)

	s.Equal(1, m.Dispatcher().Len())
	s.Require().NoError(m.Tick(s.ctx))
	s.Empty(out.Lines(SuffixBattery))
}

func (s *MonitorSuite) TestExtrasBatteryPoll() {
	s.opts.Extras = true
	s.addH10Extras()
	out := newMemoryAppender()
	m := s.newMonitor().WithExtras(out.Open)
	_, err := m.Acquire(s.ctx)
	s.Require().NoError(err)
	start := s.clock.Now()

	s.Require().NoError(m.Tick(s.ctx))
	s.Require().NoError(m.Tick(s.ctx))
	s.Equal([]string{"1735732800000,80"}, out.Lines(SuffixBattery), "first tick polls, second is inside the interval")

	s.fake.SetValue(batteryPath, []byte{79})
	s.clock.Advance(time.Minute)
	s.Require().NoError(m.Tick(s.ctx))
	s.Equal([]string{
		"1735732800000,80",
		"1735732860000,79",
	}, out.Lines(SuffixBattery))
	s.Equal(start.Add(time.Minute), s.clock.Now())
}

func (s *MonitorSuite) TestExtrasPickUpNewCharacteristics() {
	s.opts.Extras = true
	s.addH10Extras()
	out := newMemoryAppender()
	m := s.newMonitor().WithExtras(out.Open)
	_, err := m.Acquire(s.ctx)
	s.Require().NoError(err)
	s.fake.ResetCalls()

	late := devicePath + "/service0040/char0041"
	s.fake.AddCharacteristic(late, "fb005c81-02e7-f387-1cad-8acd2d8df0c8", false)
	s.Require().NoError(m.Tick(s.ctx))
	s.Require().NoError(m.Tick(s.ctx))

	s.Equal(1, s.fake.CountCalls(testutils.CallWatch), "only the new characteristic is watched, once")
	s.Equal(4, m.extras.Installed())
}

func (s *MonitorSuite) TestExtrasCloseRemovesEveryMatch() {
	s.opts.Extras = true
	s.addH10Extras()
	m := s.newMonitor().WithExtras(newMemoryAppender().Open)
	_, err := m.Acquire(s.ctx)
	s.Require().NoError(err)

	s.NoError(m.Close())

	s.Empty(s.fake.ActiveWatches())
	s.Zero(m.Dispatcher().Len())
}

func TestDispatcher(t *testing.T) {
	logger, _ := testutils.CapturedLogger()
	d := NewDispatcher(logger)

	var got []string
	d.Register(charPath, func(pc bluez.PropertiesChanged) error {
		got = append(got, string(pc.Value))
		return nil
	})
	failing := errors.New("handler failed")
	d.Register(batteryPath, func(bluez.PropertiesChanged) error { return failing })

	require.NoError(t, d.Dispatch(bluez.NewValueSignal(charPath, []byte("a"))))
	require.NoError(t, d.Dispatch(bluez.NewValueSignal(vendorPath, []byte("ignored"))))
	assert.ErrorIs(t, d.Dispatch(bluez.NewValueSignal(batteryPath, []byte{1})), failing)

	other := &dbus.Signal{
		Path: dbus.ObjectPath(charPath),
		Name: "org.freedesktop.DBus.Properties.PropertiesChanged",
		Body: []interface{}{string(bluez.InterfaceDevice), map[string]dbus.Variant{"Connected": dbus.MakeVariant(false)}, []string{}},
	}
	require.NoError(t, d.Dispatch(other))
	require.NoError(t, d.Dispatch(&dbus.Signal{Name: "org.freedesktop.DBus.NameOwnerChanged"}))

	assert.Equal(t, []string{"a"}, got)
	assert.Equal(t, 2, d.Len())

	d.Unregister(batteryPath)
	assert.Equal(t, []bluez.ObjectPath{charPath}, d.Paths())
}

func TestPhase(t *testing.T) {
	tests := []struct {
		name  string
		state AcquisitionState
		want  Phase
	}{
		{"empty", AcquisitionState{}, PhaseNoDevice},
		{"disconnected", AcquisitionState{DevicePath: devicePath}, PhaseDisconnected},
		{"no characteristic", AcquisitionState{DevicePath: devicePath, LastKnownConnected: true}, PhaseCharacteristicMissing},
		{"connected", AcquisitionState{DevicePath: devicePath, LastKnownConnected: true, CharacteristicPath: charPath}, PhaseConnected},
		{"subscribed", AcquisitionState{DevicePath: devicePath, LastKnownConnected: true, CharacteristicPath: charPath, Notifying: true}, PhaseSubscribed},
		{"notifying flag alone", AcquisitionState{Notifying: true}, PhaseNoDevice},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.state.Phase())
		})
	}
	assert.Equal(t, "characteristic_missing", PhaseCharacteristicMissing.String())
	assert.Equal(t, "unknown", Phase(-1).String())
}
