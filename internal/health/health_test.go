package health

import (
	"bytes"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/srg/polarhr/internal/hrm"
	"github.com/srg/polarhr/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const baseTs int64 = 1700000000000 // 2023-11-14 22:13:20 UTC

func newTestWarner() (*Warner, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	return NewWarner(buf).WithLocation(time.UTC), buf
}

func TestWarnerFormat(t *testing.T) {
	w, buf := newTestWarner()

	w.Warn(baseTs, "", "Bradycardia: bpm < 60 (55)")
	w.Warn(baseTs+1500, "ts=42", "hello")

	testutils.NewTextAsserter(t).Assert(buf.String(), `[2023-11-14 22:13:20] [warn] Bradycardia: bpm < 60 (55)
[2023-11-14 22:13:21] [warn] [ts=42] hello
`)
	assert.Equal(t, 2, w.Count())
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		ms   int64
		want string
	}{
		{-5, "0s"},
		{999, "0s"},
		{2000, "2s"},
		{59999, "59s"},
		{60000, "1m0s"},
		{125500, "2m5s"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatDuration(tt.ms), "ms=%d", tt.ms)
	}
}

func TestBradycardiaEpisode(t *testing.T) {
	b := NewBradycardia()

	assert.Equal(t, []string{"Bradycardia: bpm < 60 (55)"}, b.Observe(55, 0))
	assert.Empty(t, b.Observe(52, 1000))
	assert.Empty(t, b.Observe(58, 2000))
	assert.True(t, b.Active())
	assert.Equal(t, []string{"Bradycardia recovered duration=3.5s lowest_bpm=52"}, b.Observe(65, 3500))
	assert.False(t, b.Active())

	assert.Empty(t, b.Observe(0, 4000), "zero bpm is not bradycardia")
}

func TestTachycardiaEpisode(t *testing.T) {
	tc := NewTachycardia()

	assert.Empty(t, tc.Observe(100, 0), "threshold is exclusive")
	assert.Equal(t, []string{"Tachycardia: bpm > 100 (120)"}, tc.Observe(120, 1000))
	assert.Empty(t, tc.Observe(131, 2000))
	assert.Empty(t, tc.Observe(110, 3000))
	assert.Equal(t, []string{"Recovered from tachycardia duration=10.0s highest_bpm=131"}, tc.Observe(90, 11000))
}

func TestRateEpisodeClockSkew(t *testing.T) {
	b := NewBradycardia()
	b.Observe(50, 5000)
	assert.Equal(t, []string{"Bradycardia recovered duration=0.0s lowest_bpm=50"}, b.Observe(70, 1000))
}

func TestArrhythmiaPauseAndArtifact(t *testing.T) {
	a := NewArrhythmia()

	assert.Equal(t, []string{"Arrhythmia: artifact candidate rr_ms=200 hr_bpm=300.0"}, a.Observe([]int{200}, 0))
	assert.Equal(t, []string{"Arrhythmia: pause/dropout candidate rr_ms=3000 hr_bpm=20.0"}, a.Observe([]int{3000}, 500))
	assert.Zero(t, a.Window(), "out-of-range intervals are not retained")

	assert.Equal(t,
		[]string{"Arrhythmia recovered: pause/artifact duration=2s min_rr=200 max_rr=3000"},
		a.Observe([]int{800}, 2000))
	assert.Equal(t, 1, a.Window())
}

func TestArrhythmiaShortPauseNotReported(t *testing.T) {
	a := NewArrhythmia()
	a.Observe([]int{2600}, 0)
	assert.Empty(t, a.Observe([]int{800}, 1000), "episodes up to one second recover silently")
}

func TestArrhythmiaEctopic(t *testing.T) {
	a := NewArrhythmia()

	msgs := a.Observe([]int{1000, 700, 1000, 850}, 0)
	assert.Equal(t, []string{"Arrhythmia: ectopic-like short-long pattern rr_ms=[1000,700,1000,850]"}, msgs)

	msgs = a.Observe([]int{850}, 3000)
	assert.Equal(t, []string{"Arrhythmia recovered: ectopic duration=3s count=1"}, msgs)
}

// irregularRR builds intervals rising low, mid, high in every triplet with
// values spread across each band: about two turning points in three, high
// variability, and no short-long pairs.
func irregularRR(n int) []int {
	out := make([]int, 0, n)
	for i := 0; len(out) < n; i++ {
		out = append(out, 450+(i*37)%200, 700+(i*61)%200, 950+(i*43)%200)
	}
	return out[:n]
}

func countContaining(msgs []string, part string) int {
	n := 0
	for _, m := range msgs {
		if strings.Contains(m, part) {
			n++
		}
	}
	return n
}

func TestArrhythmiaPossibleAF(t *testing.T) {
	a := NewArrhythmia()
	var msgs []string
	ts := int64(0)
	for _, rr := range irregularRR(AFWindow + 20) {
		msgs = append(msgs, a.Observe([]int{rr}, ts)...)
		ts += 1000
	}
	require.True(t, a.PossibleAF())
	assert.Equal(t, 1, countContaining(msgs, "Arrhythmia: possible AF (RR-only screening) rmssd_ratio="))
	assert.Zero(t, countContaining(msgs, "ectopic"))

	msgs = nil
	for i := 0; i < AFWindow; i++ {
		msgs = append(msgs, a.Observe([]int{800}, ts)...)
		ts += 1000
	}
	assert.False(t, a.PossibleAF())
	assert.Equal(t, 1, countContaining(msgs, "Arrhythmia recovered: possible AF duration="))
}

func TestArrhythmiaRegularRhythmStaysQuiet(t *testing.T) {
	a := NewArrhythmia()
	rr := make([]int, MaxRawRR+50)
	for i := range rr {
		rr[i] = 800 + (i%2)*10
	}
	assert.Empty(t, a.Observe(rr, 0))
	assert.Equal(t, MaxRawRR, a.Window(), "history is capped")
}

func TestMetrics(t *testing.T) {
	assert.InDelta(t, 0.12, RMSSDRatio([]float64{800, 900, 800}), 1e-9)
	assert.True(t, math.IsNaN(RMSSDRatio([]float64{800})))

	assert.Equal(t, 1.0, TurningPointRatio([]float64{1, 3, 2, 4, 3}))
	assert.Equal(t, 0.0, TurningPointRatio([]float64{1, 2, 3, 4}))
	assert.True(t, math.IsNaN(TurningPointRatio([]float64{1, 2})))

	uniform := make([]float64, 48)
	for i := range uniform {
		uniform[i] = float64(i)
	}
	assert.InDelta(t, 1.0, ShannonEntropy16(uniform), 1e-9)

	flat := make([]float64, 40)
	for i := range flat {
		flat[i] = 800
	}
	assert.Equal(t, 0.0, ShannonEntropy16(flat))
	assert.True(t, math.IsNaN(ShannonEntropy16(uniform[:31])))
}

func TestCleanRR(t *testing.T) {
	assert.Equal(t, []float64{1000, 700, 1000, 850}, CleanRR([]int{1000, 700, 1000, 850}), "too short to clean")

	got := CleanRR([]int{1000, 700, 1000, 850, 860, 870})
	assert.Equal(t, []float64{1000, 850, 860, 870}, got)

	regular := CleanRR([]int{800, 810, 800, 810, 800})
	assert.Len(t, regular, 5)
}

func TestScreenerLiveSample(t *testing.T) {
	w, buf := newTestWarner()
	s := NewScreener(w)

	require.NoError(t, s.Emit(hrm.Sample{TimestampMs: baseTs, RR: []int{}}))
	assert.Empty(t, buf.String(), "no bpm and no RR means nothing to screen")

	require.NoError(t, s.Emit(hrm.Sample{TimestampMs: baseTs, BPM: 45, HasBPM: true, RR: []int{200}}))
	testutils.NewTextAsserter(t).Assert(buf.String(), `[2023-11-14 22:13:20] [warn] Bradycardia: bpm < 60 (45)
[2023-11-14 22:13:20] [warn] Arrhythmia: artifact candidate rr_ms=200 hr_bpm=300.0
`)
}

func TestParseLogLine(t *testing.T) {
	tests := []struct {
		line string
		want []int64
		ok   bool
	}{
		{"1700000000000,62", []int64{1700000000000, 62}, true},
		{"1700000000000,62,968,977", []int64{1700000000000, 62, 968, 977}, true},
		{"1700000000000,62\r", []int64{1700000000000, 62}, true},
		{"1700000000000", nil, false},
		{"", nil, false},
		{"1,,2", nil, false},
		{"1, 2", nil, false},
		{"-1,2", nil, false},
		{"ts,bpm", nil, false},
		{"1,2,", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, ok := ParseLogLine(tt.line)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReplay(t *testing.T) {
	w, buf := newTestWarner()
	s := NewScreener(w)

	log := strings.Join([]string{
		"1700000000000,55",
		"garbage",
		"1700000001000,50,1200",
		"1700000002000,70",
		"1700000003000",
	}, "\n")

	stats, err := s.Replay(strings.NewReader(log))
	require.NoError(t, err)
	assert.Equal(t, ReplayStats{Lines: 5, Samples: 3, Skipped: 2, Warnings: 2}, stats)

	testutils.NewTextAsserter(t).Assert(buf.String(), `[2023-11-14 22:13:20] [warn] [ts=1700000000000] Bradycardia: bpm < 60 (55)
[2023-11-14 22:13:22] [warn] [ts=1700000002000] Bradycardia recovered duration=2.0s lowest_bpm=50
`)
}
