package main

import (
	"errors"
	"fmt"

	"github.com/srg/polarhr/internal/bluez"
	"github.com/srg/polarhr/internal/device"
	"github.com/srg/polarhr/internal/monitor"
	"github.com/srg/polarhr/internal/sink"
)

// Command-level errors
var (
	// ErrOutputNotOpen means a sample arrived before the output stream was
	// opened. The stream needs the model of the acquired strap.
	ErrOutputNotOpen = errors.New("sample output is not open yet")
)

// FormatUserError appends a hint to failures the user can act on.
func FormatUserError(err error) string {
	var hint string
	switch {
	case errors.Is(err, device.ErrDeviceNotFound):
		hint = "the strap only advertises while worn; check it is on and Bluetooth is enabled"
	case errors.Is(err, device.ErrCharacteristicNotFound):
		hint = "the device does not expose a heart rate measurement characteristic"
	case errors.Is(err, device.ErrStartDiscovery):
		hint = "check the adapter exists and is powered (bluetoothctl power on)"
	case errors.Is(err, monitor.ErrConnectFailed):
		hint = "move closer or remove the stale pairing (bluetoothctl remove <address>)"
	case errors.Is(err, monitor.ErrSubscribe):
		hint = "another client may hold the notification; disconnect it and retry"
	case errors.Is(err, bluez.ErrDirectory), errors.Is(err, bluez.ErrMalformedReply):
		hint = "is bluetoothd running?"
	case errors.Is(err, sink.ErrOutputLocked):
		hint = "another polarhr instance is writing to it"
	case errors.Is(err, sink.ErrUnknownFormat):
		hint = "use --format csv or --format jsonl"
	default:
		return err.Error()
	}
	return fmt.Sprintf("%s (%s)", err, hint)
}
