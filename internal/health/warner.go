// Package health screens the sample stream for rate and rhythm anomalies
// and prints warnings. It is a screening aid, not a diagnosis.
package health

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fatih/color"
	"golang.org/x/term"
)

const warnTimeLayout = "2006-01-02 15:04:05"

// Warner prints warning lines as
//
//	[YYYY-MM-DD HH:MM:SS] <BEL>[warn] [prefix] message
//
// The bell and colour are only used when out is a terminal.
type Warner struct {
	mu       sync.Mutex
	out      io.Writer
	terminal bool
	loc      *time.Location
	tag      *color.Color
	count    int
}

// NewWarner writes to out, detecting whether it is a terminal.
func NewWarner(out io.Writer) *Warner {
	w := &Warner{out: out, loc: time.Local, tag: color.New(color.FgYellow, color.Bold)}
	if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		w.terminal = true
		w.tag.EnableColor()
	} else {
		w.tag.DisableColor()
	}
	return w
}

// WithLocation sets the zone used to render timestamps.
func (w *Warner) WithLocation(loc *time.Location) *Warner {
	w.loc = loc
	return w
}

// Warn prints msg stamped with tsMs (Unix milliseconds).
func (w *Warner) Warn(tsMs int64, prefix, msg string) {
	ts := time.UnixMilli(tsMs).In(w.loc).Format(warnTimeLayout)
	bell := ""
	if w.terminal {
		bell = "\a"
	}
	if prefix != "" {
		prefix = "[" + prefix + "] "
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.count++
	fmt.Fprintf(w.out, "[%s] %s%s %s%s\n", ts, bell, w.tag.Sprint("[warn]"), prefix, msg)
}

// Count returns the number of warnings printed.
func (w *Warner) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

// FormatDuration renders a span as "XmYs", or "Ys" under a minute.
// Negative spans render as "0s".
func FormatDuration(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	total := ms / 1000
	if mins := total / 60; mins > 0 {
		return fmt.Sprintf("%dm%ds", mins, total%60)
	}
	return fmt.Sprintf("%ds", total)
}

func elapsed(startMs, nowMs int64) int64 {
	if nowMs < startMs {
		return 0
	}
	return nowMs - startMs
}
