// Package sink writes decoded samples: the main sample stream (CSV or JSON
// lines), the per-characteristic side-channel files, and an OSC relay.
package sink

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/srg/polarhr/internal/hrm"
)

// Emitter consumes samples in receipt order.
type Emitter interface {
	Emit(s hrm.Sample) error
}

// Format selects the sample stream encoding.
type Format string

const (
	FormatCSV   Format = "csv"
	FormatJSONL Format = "jsonl"
)

var ErrUnknownFormat = errors.New("unknown output format")

// ParseFormat accepts "csv" and "jsonl" in any case.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatCSV:
		return FormatCSV, nil
	case FormatJSONL:
		return FormatJSONL, nil
	default:
		return "", fmt.Errorf("%w: %q (want csv or jsonl)", ErrUnknownFormat, s)
	}
}

type jsonSample struct {
	TS  int64 `json:"ts"`
	BPM *int  `json:"bpm,omitempty"`
	RR  []int `json:"rr"`
}

// Line renders one sample without the trailing newline.
func (f Format) Line(s hrm.Sample) (string, error) {
	if f != FormatJSONL {
		return s.CSV(), nil
	}
	js := jsonSample{TS: s.TimestampMs, RR: s.RR}
	if js.RR == nil {
		js.RR = []int{}
	}
	if s.HasBPM {
		bpm := s.BPM
		js.BPM = &bpm
	}
	data, err := json.Marshal(js)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Writer writes one line per sample to w.
type Writer struct {
	mu     sync.Mutex
	w      io.Writer
	format Format
}

func NewWriter(w io.Writer, format Format) *Writer {
	return &Writer{w: w, format: format}
}

func (w *Writer) Emit(s hrm.Sample) error {
	line, err := w.format.Line(s)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	_, err = io.WriteString(w.w, line+"\n")
	return err
}

// Fanout sends every sample to a primary emitter and any number of
// secondary ones. Only primary failures are returned; secondary failures
// are logged so a broken relay never stops the sample stream.
type Fanout struct {
	primary   Emitter
	secondary []Emitter
	logger    *logrus.Logger
}

func NewFanout(primary Emitter, logger *logrus.Logger, secondary ...Emitter) *Fanout {
	return &Fanout{primary: primary, secondary: secondary, logger: logger}
}

// Add appends a secondary emitter.
func (f *Fanout) Add(e Emitter) {
	f.secondary = append(f.secondary, e)
}

func (f *Fanout) Emit(s hrm.Sample) error {
	if err := f.primary.Emit(s); err != nil {
		return err
	}
	for _, e := range f.secondary {
		if err := e.Emit(s); err != nil {
			f.logger.WithError(err).WithField("sink", fmt.Sprintf("%T", e)).Warn("Secondary sink failed")
		}
	}
	return nil
}
