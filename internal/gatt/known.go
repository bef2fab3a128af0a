// Package gatt holds the Bluetooth SIG characteristics a heart-rate strap
// exposes and parsers for their values.
package gatt

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/srg/polarhr/internal/bluez"
)

// Well-known characteristic UUIDs in the form BlueZ reports them.
const (
	HeartRateMeasurement bluez.UUID = "00002a37-0000-1000-8000-00805f9b34fb"
	BodySensorLocation   bluez.UUID = "00002a38-0000-1000-8000-00805f9b34fb"
	BatteryLevel         bluez.UUID = "00002a19-0000-1000-8000-00805f9b34fb"
	ManufacturerName     bluez.UUID = "00002a29-0000-1000-8000-00805f9b34fb"
	ModelNumber          bluez.UUID = "00002a24-0000-1000-8000-00805f9b34fb"
	HardwareRevision     bluez.UUID = "00002a27-0000-1000-8000-00805f9b34fb"
	FirmwareRevision     bluez.UUID = "00002a26-0000-1000-8000-00805f9b34fb"
	SoftwareRevision     bluez.UUID = "00002a28-0000-1000-8000-00805f9b34fb"
)

// CharacteristicParser is a function that parses a characteristic value
type CharacteristicParser func([]byte) (interface{}, error)

// InfoField is one line of the one-shot device information capture.
type InfoField struct {
	UUID bluez.UUID
	Key  string
}

// DeviceInfoFields lists the readable fields captured once per run, in output order.
var DeviceInfoFields = []InfoField{
	{BodySensorLocation, "body_sensor_location"},
	{ManufacturerName, "manufacturer_name"},
	{ModelNumber, "model_number"},
	{HardwareRevision, "hardware_rev"},
	{FirmwareRevision, "firmware_rev"},
	{SoftwareRevision, "software_rev"},
}

var bodySensorLocations = []string{"Other", "Chest", "Wrist", "Finger", "Hand", "Ear Lobe", "Foot"}

// BodySensorLocationName returns the SIG name for a 0x2A38 location code.
func BodySensorLocationName(code uint8) string {
	if int(code) < len(bodySensorLocations) {
		return bodySensorLocations[code]
	}
	return "Reserved"
}

// parseUint8 returns the first byte as an int (battery percent, sensor location code)
func parseUint8(value []byte) (interface{}, error) {
	if len(value) < 1 {
		return nil, fmt.Errorf("value must be at least 1 byte, got %d", len(value))
	}
	return int(value[0]), nil
}

// parseUTF8 returns the value as a string, trimming trailing NULs some firmwares send
func parseUTF8(value []byte) (interface{}, error) {
	return strings.TrimRight(string(value), "\x00"), nil
}

// characteristicParsers maps normalized characteristic UUIDs to their parser functions
var characteristicParsers = map[string]CharacteristicParser{
	NormalizeUUID(string(BatteryLevel)):       parseUint8,
	NormalizeUUID(string(BodySensorLocation)): parseUint8,
	NormalizeUUID(string(ManufacturerName)):   parseUTF8,
	NormalizeUUID(string(ModelNumber)):        parseUTF8,
	NormalizeUUID(string(HardwareRevision)):   parseUTF8,
	NormalizeUUID(string(FirmwareRevision)):   parseUTF8,
	NormalizeUUID(string(SoftwareRevision)):   parseUTF8,
}

// IsParsableCharacteristic returns true if the characteristic UUID supports value parsing
func IsParsableCharacteristic(u bluez.UUID) bool {
	_, exists := characteristicParsers[NormalizeUUID(string(u))]
	return exists
}

// ParseCharacteristicValue parses a value for a well-known characteristic.
// Returns (nil, nil) for characteristics without a parser.
func ParseCharacteristicValue(u bluez.UUID, value []byte) (interface{}, error) {
	parser, exists := characteristicParsers[NormalizeUUID(string(u))]
	if !exists {
		return nil, nil
	}
	return parser(value)
}

// FormatValue renders a characteristic value for the per-characteristic
// output files: battery as a plain percentage, everything else as hex.
func FormatValue(u bluez.UUID, value []byte) string {
	if u.Equal(BatteryLevel) && len(value) > 0 {
		return fmt.Sprintf("%d", value[0])
	}
	return hex.EncodeToString(value)
}
