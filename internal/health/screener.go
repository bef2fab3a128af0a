package health

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/srg/polarhr/internal/hrm"
)

// Screener runs every check over a sample stream and prints what they find.
type Screener struct {
	brady  *RateEpisode
	tachy  *RateEpisode
	rhythm *Arrhythmia
	warner *Warner
}

func NewScreener(w *Warner) *Screener {
	return &Screener{
		brady:  NewBradycardia(),
		tachy:  NewTachycardia(),
		rhythm: NewArrhythmia(),
		warner: w,
	}
}

// Emit screens a live sample. Rate checks need a bpm; rhythm checks need
// at least one RR interval. It never fails.
func (s *Screener) Emit(sample hrm.Sample) error {
	var msgs []string
	if sample.HasBPM {
		msgs = append(msgs, s.rates(sample.BPM, sample.TimestampMs)...)
	}
	if len(sample.RR) > 0 {
		msgs = append(msgs, s.rhythm.Observe(sample.RR, sample.TimestampMs)...)
	}
	s.report(sample.TimestampMs, "", msgs)
	return nil
}

func (s *Screener) rates(bpm int, tsMs int64) []string {
	msgs := s.brady.Observe(bpm, tsMs)
	return append(msgs, s.tachy.Observe(bpm, tsMs)...)
}

func (s *Screener) report(tsMs int64, prefix string, msgs []string) {
	for _, m := range msgs {
		s.warner.Warn(tsMs, prefix, m)
	}
}

// ReplayStats summarises an analyze-log run.
type ReplayStats struct {
	Lines    int
	Samples  int
	Skipped  int
	Warnings int
}

// ParseLogLine parses a CSV sample line: digits and commas only, at least
// two fields (timestamp and bpm), RR intervals after that.
func ParseLogLine(line string) ([]int64, bool) {
	line = strings.TrimRight(line, "\r")
	if line == "" {
		return nil, false
	}
	parts := strings.Split(line, ",")
	if len(parts) < 2 {
		return nil, false
	}
	fields := make([]int64, 0, len(parts))
	for _, p := range parts {
		if p == "" || strings.TrimLeft(p, "0123456789") != "" {
			return nil, false
		}
		v, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, false
		}
		fields = append(fields, v)
	}
	return fields, true
}

// Replay feeds a recorded CSV log through the screener. The second field is
// always read as bpm; lines that do not parse are skipped. Warnings are
// stamped with the log's own timestamps and prefixed with ts=<ms>.
func (s *Screener) Replay(r io.Reader) (ReplayStats, error) {
	var stats ReplayStats
	before := s.warner.Count()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		stats.Lines++
		fields, ok := ParseLogLine(scanner.Text())
		if !ok {
			stats.Skipped++
			continue
		}
		stats.Samples++

		ts := fields[0]
		msgs := s.rates(int(fields[1]), ts)
		if len(fields) > 2 {
			rr := make([]int, 0, len(fields)-2)
			for _, v := range fields[2:] {
				rr = append(rr, int(v))
			}
			msgs = append(msgs, s.rhythm.Observe(rr, ts)...)
		}
		s.report(ts, "ts="+strconv.FormatInt(ts, 10), msgs)
	}
	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("failed to read log: %w", err)
	}
	stats.Warnings = s.warner.Count() - before
	return stats, nil
}
