// Package hrm decodes the Bluetooth SIG Heart Rate Measurement (0x2A37) value.
package hrm

import (
	"encoding/binary"
)

// Flag bits of the first payload byte.
const (
	flagHR16           = 0x01
	flagContactStatus  = 0x06
	flagEnergyExpended = 0x08
	flagRRPresent      = 0x10
)

// ContactStatus is the sensor contact feature reported in flag bits 1-2.
type ContactStatus uint8

const (
	ContactUnsupported ContactStatus = iota
	_
	ContactNotDetected
	ContactDetected
)

func (c ContactStatus) String() string {
	switch c {
	case ContactNotDetected:
		return "not_detected"
	case ContactDetected:
		return "detected"
	default:
		return "unsupported"
	}
}

// Measurement is a decoded notification. BPM is meaningful only when
// HasBPM is set; RR is never nil.
type Measurement struct {
	Flags          byte
	BPM            int
	HasBPM         bool
	EnergyExpended *uint16
	RR             []int
	Contact        ContactStatus
}

// Decode parses payload. Fields without enough bytes are left out; an
// empty payload yields no BPM and no RR intervals.
func Decode(payload []byte) Measurement {
	m := Measurement{RR: []int{}}
	if len(payload) == 0 {
		return m
	}

	m.Flags = payload[0]
	m.Contact = ContactStatus((m.Flags & flagContactStatus) >> 1)
	rest := payload[1:]

	if m.Flags&flagHR16 != 0 {
		if len(rest) >= 2 {
			m.BPM = int(binary.LittleEndian.Uint16(rest))
			m.HasBPM = true
			rest = rest[2:]
		}
	} else if len(rest) >= 1 {
		m.BPM = int(rest[0])
		m.HasBPM = true
		rest = rest[1:]
	}

	if m.Flags&flagEnergyExpended != 0 && len(rest) >= 2 {
		ee := binary.LittleEndian.Uint16(rest)
		m.EnergyExpended = &ee
		rest = rest[2:]
	}

	if m.Flags&flagRRPresent != 0 {
		for len(rest) >= 2 {
			m.RR = append(m.RR, RRMillis(binary.LittleEndian.Uint16(rest)))
			rest = rest[2:]
		}
	}
	return m
}

// RRMillis converts an RR interval in 1/1024 s ticks to milliseconds,
// rounding to nearest.
func RRMillis(raw uint16) int {
	return int((uint64(raw)*1000 + 512) / 1024)
}
