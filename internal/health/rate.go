package health

import "fmt"

// RateEpisode tracks one heart rate threshold episode: a warning on onset
// and a summary with duration and extreme bpm on recovery.
type RateEpisode struct {
	inRange  func(bpm int) bool
	better   func(a, b int) bool
	onset    func(bpm int) string
	recovery func(durationS float64, extreme int) string

	active  bool
	startMs int64
	extreme int
}

// NewBradycardia warns while 0 < bpm < 60.
func NewBradycardia() *RateEpisode {
	return &RateEpisode{
		inRange: func(bpm int) bool { return bpm > 0 && bpm < 60 },
		better:  func(a, b int) bool { return a < b },
		onset: func(bpm int) string {
			return fmt.Sprintf("Bradycardia: bpm < 60 (%d)", bpm)
		},
		recovery: func(d float64, lowest int) string {
			return fmt.Sprintf("Bradycardia recovered duration=%.1fs lowest_bpm=%d", d, lowest)
		},
	}
}

// NewTachycardia warns while bpm > 100.
func NewTachycardia() *RateEpisode {
	return &RateEpisode{
		inRange: func(bpm int) bool { return bpm > 100 },
		better:  func(a, b int) bool { return a > b },
		onset: func(bpm int) string {
			return fmt.Sprintf("Tachycardia: bpm > 100 (%d)", bpm)
		},
		recovery: func(d float64, highest int) string {
			return fmt.Sprintf("Recovered from tachycardia duration=%.1fs highest_bpm=%d", d, highest)
		},
	}
}

// Active reports whether an episode is in progress.
func (e *RateEpisode) Active() bool {
	return e.active
}

// Observe feeds one bpm reading taken at tsMs and returns the warnings it triggers.
func (e *RateEpisode) Observe(bpm int, tsMs int64) []string {
	now := e.inRange(bpm)
	var msgs []string
	switch {
	case now && !e.active:
		e.startMs = tsMs
		e.extreme = bpm
		msgs = append(msgs, e.onset(bpm))
	case now && e.active:
		if e.better(bpm, e.extreme) {
			e.extreme = bpm
		}
	case !now && e.active:
		d := float64(elapsed(e.startMs, tsMs)) / 1000
		msgs = append(msgs, e.recovery(d, e.extreme))
	}
	e.active = now
	return msgs
}
