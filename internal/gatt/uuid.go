package gatt

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/srg/polarhr/internal/bluez"
)

// sigBaseSuffix is the tail of the Bluetooth SIG base UUID
// 0000xxxx-0000-1000-8000-00805f9b34fb.
const sigBaseSuffix = "-0000-1000-8000-00805f9b34fb"

// NormalizeUUID converts a UUID string to its short internal form: lowercase,
// no dashes, no 0x prefix. SIG-based 128-bit UUIDs shrink to their 16-bit
// assigned number ("00002a37-0000-1000-8000-00805f9b34fb" -> "2a37").
func NormalizeUUID(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "0x")
	if strings.HasPrefix(s, "0000") && strings.HasSuffix(s, sigBaseSuffix) && len(s) == 36 {
		return s[4:8]
	}
	return strings.ReplaceAll(s, "-", "")
}

// ExpandUUID validates s and returns the canonical 128-bit form BlueZ reports.
// Accepts 16-bit ("2a37", "0x2A37"), 32-bit and full 128-bit notations.
func ExpandUUID(s string) (bluez.UUID, error) {
	short := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "0x")
	switch len(short) {
	case 4:
		short = "0000" + short + sigBaseSuffix
	case 8:
		short = short + sigBaseSuffix
	}
	parsed, err := uuid.Parse(short)
	if err != nil {
		return "", fmt.Errorf("invalid UUID %q: %w", s, err)
	}
	return bluez.NewUUID(parsed.String()), nil
}
