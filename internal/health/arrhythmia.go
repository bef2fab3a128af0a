package health

import (
	"fmt"
)

// RR screening limits.
const (
	MinRRMillis = 250
	MaxRRMillis = 2500
	AFWindow    = 128
	MaxRawRR    = 512

	episodeReportMs = 1000
)

// AF screening thresholds.
const (
	afRMSSDRatio = 0.1
	afTPRLow     = 0.54
	afTPRHigh    = 0.77
	afEntropy    = 0.7
)

// Arrhythmia screens RR intervals for out-of-range beats, ectopic-like
// short-long patterns and, over a 128-interval window, an irregularity
// profile consistent with atrial fibrillation.
type Arrhythmia struct {
	raw []int

	pauseActive bool
	pauseStart  int64
	pauseMin    int
	pauseMax    int

	ectopicActive bool
	ectopicStart  int64
	ectopicCount  int

	afActive bool
	afStart  int64
}

func NewArrhythmia() *Arrhythmia {
	return &Arrhythmia{raw: make([]int, 0, MaxRawRR)}
}

// PossibleAF reports whether an AF screening episode is in progress.
func (a *Arrhythmia) PossibleAF() bool {
	return a.afActive
}

// Window returns the number of in-range intervals retained.
func (a *Arrhythmia) Window() int {
	return len(a.raw)
}

// Observe feeds the intervals of one sample received at tsMs.
func (a *Arrhythmia) Observe(rr []int, tsMs int64) []string {
	var msgs []string
	for _, v := range rr {
		if v < MinRRMillis || v > MaxRRMillis {
			msgs = append(msgs, a.outOfRange(v, tsMs))
			continue
		}
		if a.pauseActive {
			if d := elapsed(a.pauseStart, tsMs); d > episodeReportMs {
				msgs = append(msgs, fmt.Sprintf("Arrhythmia recovered: pause/artifact duration=%s min_rr=%d max_rr=%d",
					FormatDuration(d), a.pauseMin, a.pauseMax))
			}
			a.pauseActive = false
		}

		a.push(v)
		msgs = append(msgs, a.checkEctopic(tsMs)...)
	}
	return append(msgs, a.screenAF(tsMs)...)
}

func (a *Arrhythmia) push(v int) {
	if len(a.raw) == MaxRawRR {
		copy(a.raw, a.raw[1:])
		a.raw = a.raw[:MaxRawRR-1]
	}
	a.raw = append(a.raw, v)
}

func (a *Arrhythmia) outOfRange(v int, tsMs int64) string {
	if !a.pauseActive {
		a.pauseActive = true
		a.pauseStart = tsMs
		a.pauseMin, a.pauseMax = v, v
	} else {
		a.pauseMin = min(a.pauseMin, v)
		a.pauseMax = max(a.pauseMax, v)
	}

	hr := 0.0
	if v > 0 {
		hr = 60000 / float64(v)
	}
	if v > MaxRRMillis {
		return fmt.Sprintf("Arrhythmia: pause/dropout candidate rr_ms=%d hr_bpm=%.1f", v, hr)
	}
	return fmt.Sprintf("Arrhythmia: artifact candidate rr_ms=%d hr_bpm=%.1f", v, hr)
}

func (a *Arrhythmia) checkEctopic(tsMs int64) []string {
	n := len(a.raw)
	if n < 4 {
		return nil
	}
	w, x, y, z := a.raw[n-4], a.raw[n-3], a.raw[n-2], a.raw[n-1]
	if isShortLong(float64(w), float64(x), float64(y), float64(z)) {
		if !a.ectopicActive {
			a.ectopicActive = true
			a.ectopicStart = tsMs
			a.ectopicCount = 0
		}
		a.ectopicCount++
		return []string{fmt.Sprintf("Arrhythmia: ectopic-like short-long pattern rr_ms=[%d,%d,%d,%d]", w, x, y, z)}
	}
	if !a.ectopicActive {
		return nil
	}
	a.ectopicActive = false
	if d := elapsed(a.ectopicStart, tsMs); d > episodeReportMs {
		return []string{fmt.Sprintf("Arrhythmia recovered: ectopic duration=%s count=%d", FormatDuration(d), a.ectopicCount)}
	}
	return nil
}

func (a *Arrhythmia) screenAF(tsMs int64) []string {
	if len(a.raw) < AFWindow {
		return a.endAF(tsMs)
	}
	cleaned := CleanRR(a.raw)
	if len(cleaned) < AFWindow {
		return a.endAF(tsMs)
	}

	seg := cleaned[len(cleaned)-AFWindow:]
	r := RMSSDRatio(seg)
	t := TurningPointRatio(seg)
	e := ShannonEntropy16(seg)
	possible := r > afRMSSDRatio && t > afTPRLow && t < afTPRHigh && e > afEntropy

	switch {
	case possible && !a.afActive:
		a.afActive = true
		a.afStart = tsMs
		return []string{fmt.Sprintf("Arrhythmia: possible AF (RR-only screening) rmssd_ratio=%.3f tpr=%.3f se=%.3f", r, t, e)}
	case !possible && a.afActive:
		return a.endAF(tsMs)
	}
	return nil
}

func (a *Arrhythmia) endAF(tsMs int64) []string {
	if !a.afActive {
		return nil
	}
	a.afActive = false
	if d := elapsed(a.afStart, tsMs); d > episodeReportMs {
		return []string{fmt.Sprintf("Arrhythmia recovered: possible AF duration=%s", FormatDuration(d))}
	}
	return nil
}
