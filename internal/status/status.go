// Package status serves the monitor's state over HTTP.
package status

import (
	"sync"
	"time"

	"github.com/srg/polarhr/internal/hrm"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Snapshot is the monitor state at one point in time.
type Snapshot struct {
	Phase              string
	DeviceName         string
	DevicePath         string
	CharacteristicPath string
	Connected          bool
	Notifying          bool
	ConnectFailures    int
	NextConnectAttempt time.Time
	NextReacquire      time.Time
	Samples            uint64
	LastSample         *hrm.Sample
	ExtraNotifiers     int
	UpdatedAt          time.Time
}

// Document renders the snapshot as an ordered JSON object so the status
// output keeps a stable, human-friendly key order.
func (s Snapshot) Document() *orderedmap.OrderedMap[string, any] {
	doc := orderedmap.New[string, any]()
	doc.Set("phase", s.Phase)

	dev := orderedmap.New[string, any]()
	dev.Set("name", s.DeviceName)
	dev.Set("path", s.DevicePath)
	dev.Set("connected", s.Connected)
	doc.Set("device", dev)

	char := orderedmap.New[string, any]()
	char.Set("path", s.CharacteristicPath)
	char.Set("notifying", s.Notifying)
	doc.Set("characteristic", char)

	retry := orderedmap.New[string, any]()
	retry.Set("connect_failures", s.ConnectFailures)
	retry.Set("next_connect_attempt", formatTime(s.NextConnectAttempt))
	retry.Set("next_reacquire", formatTime(s.NextReacquire))
	doc.Set("maintenance", retry)

	doc.Set("samples", s.Samples)
	doc.Set("extra_notifiers", s.ExtraNotifiers)
	if s.LastSample != nil {
		doc.Set("last_sample", SampleDocument(*s.LastSample))
	} else {
		doc.Set("last_sample", nil)
	}
	doc.Set("updated_at", formatTime(s.UpdatedAt))
	return doc
}

// SampleDocument renders a sample as {"ts", "bpm", "rr"}; bpm is null when absent.
func SampleDocument(s hrm.Sample) *orderedmap.OrderedMap[string, any] {
	doc := orderedmap.New[string, any]()
	doc.Set("ts", s.TimestampMs)
	if s.HasBPM {
		doc.Set("bpm", s.BPM)
	} else {
		doc.Set("bpm", nil)
	}
	rr := s.RR
	if rr == nil {
		rr = []int{}
	}
	doc.Set("rr", rr)
	return doc
}

func formatTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// Store holds the latest snapshot. Publish is called from the event loop
// and Load from HTTP handlers.
type Store struct {
	mu   sync.RWMutex
	snap Snapshot
	set  bool
}

func NewStore() *Store {
	return &Store{snap: Snapshot{Phase: "starting"}}
}

func (s *Store) Publish(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = snap
	s.set = true
}

// Load returns the latest snapshot and whether anything was published yet.
func (s *Store) Load() (Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap, s.set
}
