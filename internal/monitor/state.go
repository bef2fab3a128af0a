package monitor

import (
	"time"

	"github.com/srg/polarhr/internal/bluez"
	"github.com/srg/polarhr/internal/device"
	"github.com/srg/polarhr/internal/gatt"
)

// Phase is the acquisition state derived from AcquisitionState, used for
// logs, systemd status and the status endpoint.
type Phase int

const (
	PhaseNoDevice Phase = iota
	PhaseDisconnected
	PhaseConnected
	PhaseCharacteristicMissing
	PhaseSubscribed
)

func (p Phase) String() string {
	switch p {
	case PhaseNoDevice:
		return "no_device"
	case PhaseDisconnected:
		return "disconnected"
	case PhaseConnected:
		return "connected"
	case PhaseCharacteristicMissing:
		return "characteristic_missing"
	case PhaseSubscribed:
		return "subscribed"
	default:
		return "unknown"
	}
}

// AcquisitionState is what the monitor knows about the strap.
// Both paths may be empty.
type AcquisitionState struct {
	DevicePath         bluez.ObjectPath
	DeviceName         string
	CharacteristicPath bluez.ObjectPath
	LastKnownConnected bool
	Notifying          bool
}

// Phase derives the current phase.
func (s AcquisitionState) Phase() Phase {
	switch {
	case s.DevicePath == "":
		return PhaseNoDevice
	case !s.LastKnownConnected:
		return PhaseDisconnected
	case s.CharacteristicPath == "":
		return PhaseCharacteristicMissing
	case !s.Notifying:
		return PhaseConnected
	default:
		return PhaseSubscribed
	}
}

// MaintenanceState holds the retry counters that persist across ticks.
type MaintenanceState struct {
	NextReacquire time.Time
	Connect       device.ConnectBackoff
}

// Options configures acquisition and maintenance.
type Options struct {
	Adapter        bluez.ObjectPath
	Names          []string
	Characteristic bluez.UUID

	StartupScanWindow    time.Duration
	ReacquireScanWindow  time.Duration
	ReacquireInterval    time.Duration
	ConnectTimeout       time.Duration
	CharacteristicWindow time.Duration
	CharacteristicPoll   time.Duration
	IdleWait             time.Duration

	// Extras enables the H10 side channels (device info, generic notifiers, battery poll).
	Extras              bool
	BatteryPollInterval time.Duration
}

// Default device names in preference order.
var DefaultNames = []string{"Polar H10 8A8F192B", "Polar H9 EA190E24"}

// DefaultOptions returns the stock timings.
func DefaultOptions() Options {
	return Options{
		Adapter:              bluez.DefaultAdapter,
		Names:                DefaultNames,
		Characteristic:       gatt.HeartRateMeasurement,
		StartupScanWindow:    device.StartupScanWindow,
		ReacquireScanWindow:  device.ReacquireScanWindow,
		ReacquireInterval:    10 * time.Second,
		ConnectTimeout:       device.ConnectTimeout,
		CharacteristicWindow: 10 * time.Second,
		CharacteristicPoll:   500 * time.Millisecond,
		IdleWait:             500 * time.Millisecond,
		Extras:               true,
		BatteryPollInterval:  60 * time.Second,
	}
}
