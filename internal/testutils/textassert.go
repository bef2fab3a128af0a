package testutils

import (
	"fmt"
	"regexp"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/hexops/gotextdiff"
	"github.com/hexops/gotextdiff/myers"
	"github.com/mcuadros/go-defaults"
)

// TestingT is the part of testing.T the asserters report through.
type TestingT interface {
	Errorf(format string, args ...interface{})
}

// ClockPlaceholder replaces wall-clock stamps when MaskClock is set.
const ClockPlaceholder = "[<clock>]"

var (
	ansiEscape = regexp.MustCompile(`\x1b\[[0-9;]*m`)
	clockStamp = regexp.MustCompile(`\[\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}\]`)
)

// TextAssertOptions controls how sample streams and warning output are
// normalized before comparison.
type TextAssertOptions struct {
	IgnoreLeadingWhitespace  bool `default:"false"`
	IgnoreTrailingWhitespace bool `default:"false"`
	IgnoreEmptyLines         bool `default:"false"`
	TrimSpace                bool `default:"false"`
	// StripANSI drops colour escapes and the terminal bell.
	StripANSI bool `default:"true"`
	// MaskClock replaces "[YYYY-MM-DD HH:MM:SS]" stamps, which depend on
	// the local zone, with ClockPlaceholder on both sides.
	MaskClock    bool `default:"false"`
	EnableColors bool `default:"false"`
}

// TextOption is a functional option for configuring TextAsserter
type TextOption func(*TextAssertOptions)

// TextAsserter compares line-oriented output and reports a unified diff.
type TextAsserter struct {
	t       TestingT
	options TextAssertOptions
}

func NewTextAsserter(t *testing.T) *TextAsserter {
	return NewTextAsserterWithInterface(t)
}

// NewTextAsserterWithInterface creates an asserter reporting through t.
func NewTextAsserterWithInterface(t TestingT) *TextAsserter {
	opts := TextAssertOptions{}
	defaults.SetDefaults(&opts)
	return &TextAsserter{t: t, options: opts}
}

func (ta *TextAsserter) WithOptions(opts ...TextOption) *TextAsserter {
	for _, opt := range opts {
		opt(&ta.options)
	}
	return ta
}

// GetOptions returns a copy of the current options (for testing)
func (ta *TextAsserter) GetOptions() TextAssertOptions {
	return ta.options
}

func (ta *TextAsserter) Assert(actual, expected string) {
	if diff := ta.diff(actual, expected); diff != "" {
		ta.t.Errorf("Text assertion failed:\n%s", diff)
	}
}

func (ta *TextAsserter) diff(actual, expected string) string {
	normalizedActual := ta.normalize(actual)
	normalizedExpected := ta.normalize(expected)
	if normalizedActual == normalizedExpected {
		return ""
	}

	edits := myers.ComputeEdits("", normalizedExpected, normalizedActual)
	unified := fmt.Sprint(gotextdiff.ToUnified("expected", "actual", normalizedExpected, edits))
	if ta.options.EnableColors {
		unified = colorize(unified)
	}
	return "unified diff:\n" + unified
}

// colorize paints hunk headers and changed lines, making whitespace visible
// on the changed ones.
func colorize(diff string) string {
	paint := func(attr color.Attribute, s string) string {
		c := color.New(attr)
		c.EnableColor()
		return c.Sprint(s)
	}
	visible := strings.NewReplacer(" ", "·", "\t", "→")

	lines := strings.Split(diff, "\n")
	for i, line := range lines {
		switch {
		case strings.HasPrefix(line, "---"), strings.HasPrefix(line, "+++"):
			lines[i] = paint(color.FgYellow, line)
		case strings.HasPrefix(line, "@@"):
			lines[i] = paint(color.FgCyan, line)
		case strings.HasPrefix(line, "-"):
			lines[i] = paint(color.FgRed, visible.Replace(line))
		case strings.HasPrefix(line, "+"):
			lines[i] = paint(color.FgGreen, visible.Replace(line))
		}
	}
	return strings.Join(lines, "\n")
}

func (ta *TextAsserter) normalize(text string) string {
	if ta.options.StripANSI {
		text = strings.ReplaceAll(ansiEscape.ReplaceAllString(text, ""), "\a", "")
	}
	if ta.options.MaskClock {
		text = clockStamp.ReplaceAllString(text, ClockPlaceholder)
	}
	if ta.options.TrimSpace {
		text = strings.TrimSpace(text)
	}

	var result []string
	for _, line := range strings.Split(text, "\n") {
		if ta.options.IgnoreEmptyLines && strings.TrimSpace(line) == "" {
			continue
		}
		if ta.options.IgnoreLeadingWhitespace {
			line = strings.TrimLeft(line, " \t")
		}
		if ta.options.IgnoreTrailingWhitespace {
			line = strings.TrimRight(line, " \t")
		}
		result = append(result, line)
	}
	return strings.Join(result, "\n")
}

// WithIgnoreLeadingWhitespace sets whether to ignore leading whitespace on each line
func WithIgnoreLeadingWhitespace(ignore bool) TextOption {
	return func(opts *TextAssertOptions) { opts.IgnoreLeadingWhitespace = ignore }
}

// WithIgnoreTrailingWhitespace sets whether to ignore trailing whitespace on each line
func WithIgnoreTrailingWhitespace(ignore bool) TextOption {
	return func(opts *TextAssertOptions) { opts.IgnoreTrailingWhitespace = ignore }
}

func WithIgnoreEmptyLines(ignore bool) TextOption {
	return func(opts *TextAssertOptions) { opts.IgnoreEmptyLines = ignore }
}

func WithTrimSpace(trim bool) TextOption {
	return func(opts *TextAssertOptions) { opts.TrimSpace = trim }
}

func WithStripANSI(strip bool) TextOption {
	return func(opts *TextAssertOptions) { opts.StripANSI = strip }
}

// WithMaskClock masks local wall-clock stamps in warning lines.
func WithMaskClock(mask bool) TextOption {
	return func(opts *TextAssertOptions) { opts.MaskClock = mask }
}

func WithEnableColors(enable bool) TextOption {
	return func(opts *TextAssertOptions) { opts.EnableColors = enable }
}
