package testutils

import (
	"encoding/json"
	"fmt"

	"github.com/mcuadros/go-defaults"
	"github.com/yudai/gojsondiff"
	"github.com/yudai/gojsondiff/formatter"
)

// PresencePlaceholder in an expected document matches any actual value,
// for fields such as timestamps that only need to exist.
const PresencePlaceholder = "<<PRESENCE>>"

func MustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(data)
}

type JSONAssertOptions struct {
	IgnoreExtraKeys          bool     `default:"true"`
	AllowPresencePlaceholder bool     `default:"true"`
	IgnoredFields            []string `default:""`
}

// JSONOption configures a JSONAsserter.
type JSONOption func(*JSONAssertOptions)

// JSONAsserter compares JSON documents structurally and reports a
// readable diff on mismatch.
type JSONAsserter struct {
	t       TestingT
	options JSONAssertOptions
}

func NewJSONAsserter(t TestingT) *JSONAsserter {
	opts := JSONAssertOptions{}
	defaults.SetDefaults(&opts)
	return &JSONAsserter{t: t, options: opts}
}

func (ja *JSONAsserter) WithOptions(opts ...JSONOption) *JSONAsserter {
	for _, opt := range opts {
		opt(&ja.options)
	}
	return ja
}

func (ja *JSONAsserter) GetOptions() JSONAssertOptions {
	return ja.options
}

// Assert compares actualJSON against expectedJSON.
func (ja *JSONAsserter) Assert(actualJSON, expectedJSON string) {
	if diff := ja.diff(actualJSON, expectedJSON); diff != "" {
		ja.t.Errorf("JSON assertion failed:\n%s", diff)
	}
}

// AssertValue marshals v and compares it against expectedJSON.
func (ja *JSONAsserter) AssertValue(v any, expectedJSON string) {
	ja.Assert(MustJSON(v), expectedJSON)
}

func (ja *JSONAsserter) diff(actualJSON, expectedJSON string) string {
	var expected, actual interface{}
	if err := json.Unmarshal([]byte(expectedJSON), &expected); err != nil {
		return fmt.Sprintf("invalid expected JSON: %v", err)
	}
	if err := json.Unmarshal([]byte(actualJSON), &actual); err != nil {
		return fmt.Sprintf("invalid actual JSON: %v", err)
	}

	// gojsondiff only compares objects at the root
	if _, ok := expected.([]interface{}); ok {
		expected = map[string]interface{}{"array": expected}
		actual = map[string]interface{}{"array": actual}
	}

	walkPairs(expected, actual, func(exp, act map[string]interface{}) {
		for _, field := range ja.options.IgnoredFields {
			delete(exp, field)
			delete(act, field)
		}
		if ja.options.AllowPresencePlaceholder {
			for k, v := range exp {
				if s, ok := v.(string); ok && s == PresencePlaceholder {
					if av, present := act[k]; present {
						exp[k] = av
					}
				}
			}
		}
		if ja.options.IgnoreExtraKeys {
			for k := range act {
				if _, ok := exp[k]; !ok {
					delete(act, k)
				}
			}
		}
	})

	expectedBytes, _ := json.Marshal(expected)
	actualBytes, _ := json.Marshal(actual)
	d, err := gojsondiff.New().Compare(expectedBytes, actualBytes)
	if err != nil {
		return fmt.Sprintf("JSON comparison failed: %v", err)
	}
	if !d.Modified() {
		return ""
	}
	f := formatter.NewAsciiFormatter(expected, formatter.AsciiFormatterConfig{ShowArrayIndex: true})
	out, _ := f.Format(d)
	return out
}

// walkPairs calls fn for every pair of objects found at the same position
// in both documents, parents before children.
func walkPairs(expected, actual interface{}, fn func(exp, act map[string]interface{})) {
	switch exp := expected.(type) {
	case map[string]interface{}:
		act, ok := actual.(map[string]interface{})
		if !ok {
			return
		}
		fn(exp, act)
		for k, v := range exp {
			walkPairs(v, act[k], fn)
		}
	case []interface{}:
		act, ok := actual.([]interface{})
		if !ok {
			return
		}
		for i := range exp {
			if i < len(act) {
				walkPairs(exp[i], act[i], fn)
			}
		}
	}
}

func WithIgnoreExtraKeys(ignore bool) JSONOption {
	return func(opts *JSONAssertOptions) {
		opts.IgnoreExtraKeys = ignore
	}
}

func WithAllowPresencePlaceholder(allow bool) JSONOption {
	return func(opts *JSONAssertOptions) {
		opts.AllowPresencePlaceholder = allow
	}
}

func WithIgnoredFields(fields ...string) JSONOption {
	return func(opts *JSONAssertOptions) {
		opts.IgnoredFields = fields
	}
}
