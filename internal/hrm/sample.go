package hrm

import (
	"strconv"
	"strings"
)

// Sample is one decoded notification stamped with its receipt time.
type Sample struct {
	TimestampMs int64
	BPM         int
	HasBPM      bool
	RR          []int
}

// NewSample stamps m with the receipt time.
func NewSample(timestampMs int64, m Measurement) Sample {
	rr := m.RR
	if rr == nil {
		rr = []int{}
	}
	return Sample{
		TimestampMs: timestampMs,
		BPM:         m.BPM,
		HasBPM:      m.HasBPM,
		RR:          rr,
	}
}

// CSV renders the sample as ts[,bpm][,rr...].
func (s Sample) CSV() string {
	var b strings.Builder
	b.WriteString(strconv.FormatInt(s.TimestampMs, 10))
	if s.HasBPM {
		b.WriteByte(',')
		b.WriteString(strconv.Itoa(s.BPM))
	}
	for _, rr := range s.RR {
		b.WriteByte(',')
		b.WriteString(strconv.Itoa(rr))
	}
	return b.String()
}
