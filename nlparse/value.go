package nlparse

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ValueKind identifies which member of the Value union is populated.
type ValueKind int

const (
	KindString ValueKind = iota
	KindNumber
	KindBool
	KindTemplate
)

func (k ValueKind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindTemplate:
		return "template"
	default:
		return "unknown"
	}
}

// Value is a step parameter value: a string, a number, a boolean or a
// templated reference resolved by the executor (e.g. {{user.email}}).
type Value struct {
	kind ValueKind
	str  string
	num  float64
	b    bool
}

var templateRe = regexp.MustCompile(`^\{\{\s*([^{}]+?)\s*\}\}$`)

// String returns a literal string value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Number returns a numeric value.
func Number(n float64) Value { return Value{kind: KindNumber, num: n} }

// Int returns a numeric value holding an integer.
func Int(n int64) Value { return Value{kind: KindNumber, num: float64(n)} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Template returns a reference to a runtime value, e.g. Template("user.email").
func Template(path string) Value { return Value{kind: KindTemplate, str: strings.TrimSpace(path)} }

// Kind reports which union member is set.
func (v Value) Kind() ValueKind { return v.kind }

// Str returns the literal string, if v is a string.
func (v Value) Str() (string, bool) { return v.str, v.kind == KindString }

// Num returns the number, if v is numeric.
func (v Value) Num() (float64, bool) { return v.num, v.kind == KindNumber }

// Int64 returns the number as an integer when v is numeric and integral.
func (v Value) Int64() (int64, bool) {
	if v.kind != KindNumber || v.num != float64(int64(v.num)) {
		return 0, false
	}
	return int64(v.num), true
}

// Boolean returns the boolean, if v is a bool.
func (v Value) Boolean() (bool, bool) { return v.b, v.kind == KindBool }

// TemplatePath returns the reference path, if v is a template.
func (v Value) TemplatePath() (string, bool) { return v.str, v.kind == KindTemplate }

// Text renders v for display.
func (v Value) Text() string {
	switch v.kind {
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindTemplate:
		return "{{" + v.str + "}}"
	default:
		return v.str
	}
}

// MarshalJSON encodes v as a plain JSON literal. Templates become "{{path}}".
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNumber:
		return json.Marshal(v.num)
	case KindBool:
		return json.Marshal(v.b)
	case KindTemplate:
		return json.Marshal("{{" + v.str + "}}")
	default:
		return json.Marshal(v.str)
	}
}

// UnmarshalJSON decodes a JSON literal. Strings shaped like "{{path}}" become
// templates. Objects and arrays are kept as their compact JSON text so that
// loosely shaped model output still decodes.
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("empty parameter value")
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if m := templateRe.FindStringSubmatch(s); m != nil {
			*v = Template(m[1])
			return nil
		}
		*v = String(s)
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		*v = Bool(b)
	case '{', '[':
		var buf bytes.Buffer
		if err := json.Compact(&buf, data); err != nil {
			return err
		}
		*v = String(buf.String())
	case 'n':
		return fmt.Errorf("null parameter value")
	default:
		var n float64
		if err := json.Unmarshal(data, &n); err != nil {
			return err
		}
		*v = Number(n)
	}
	return nil
}

// Parameters holds the operation inputs of a step.
type Parameters map[string]Value

// UnmarshalJSON drops null entries instead of failing the whole step.
func (p *Parameters) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(Parameters, len(raw))
	for k, r := range raw {
		if string(bytes.TrimSpace(r)) == "null" {
			continue
		}
		var v Value
		if err := json.Unmarshal(r, &v); err != nil {
			return fmt.Errorf("parameter %q: %w", k, err)
		}
		out[k] = v
	}
	*p = out
	return nil
}

// Text returns the display form of the named parameter, or "".
func (p Parameters) Text(key string) string {
	v, ok := p[key]
	if !ok {
		return ""
	}
	return v.Text()
}
