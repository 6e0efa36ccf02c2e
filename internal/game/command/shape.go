package command

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Kind is the conversion applied to one packet field.
type Kind int

const (
	// KindInt is a base-10 signed integer token.
	KindInt Kind = iota
	// KindEnum is an integer token restricted to a declared value set.
	KindEnum
	// KindString is a single raw token.
	KindString
	// KindText is the rest of the line with its inner spacing preserved.
	// It must be the last field of a shape.
	KindText
)

// Field declares one positional packet field.
type Field struct {
	Name     string
	Kind     Kind
	Optional bool
	Values   []int64
}

// Int declares an integer field.
func Int(name string) Field { return Field{Name: name, Kind: KindInt} }

// Enum declares an integer field that must equal one of values.
func Enum(name string, values ...int64) Field {
	return Field{Name: name, Kind: KindEnum, Values: values}
}

// String declares a single-token field.
func String(name string) Field { return Field{Name: name, Kind: KindString} }

// Text declares the trailing free-text field.
func Text(name string) Field { return Field{Name: name, Kind: KindText} }

// Opt returns a copy of f that may be absent. Only trailing fields may be optional.
func (f Field) Opt() Field {
	f.Optional = true
	return f
}

// Shape is the ordered field list a packet body is parsed against.
type Shape []Field

// Validate checks that Text fields are last and optional fields are trailing.
func (sh Shape) Validate() error {
	optional := false
	for i, f := range sh {
		if f.Name == "" {
			return fmt.Errorf("field %d has no name", i)
		}
		if f.Kind == KindText && i != len(sh)-1 {
			return fmt.Errorf("text field %q must be last", f.Name)
		}
		if f.Kind == KindEnum && len(f.Values) == 0 {
			return fmt.Errorf("enum field %q declares no values", f.Name)
		}
		if optional && !f.Optional {
			return fmt.Errorf("required field %q follows an optional field", f.Name)
		}
		optional = optional || f.Optional
	}
	return nil
}

// ErrMalformed is wrapped by every ParseError.
var ErrMalformed = errors.New("malformed packet")

// ParseError reports the first field that failed to parse.
type ParseError struct {
	Field  string
	Token  string
	Reason string
}

func (e *ParseError) Error() string {
	if e.Token == "" {
		return fmt.Sprintf("field %q: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("field %q: %s (got %q)", e.Field, e.Reason, e.Token)
}

// Unwrap lets errors.Is match ErrMalformed.
func (e *ParseError) Unwrap() error { return ErrMalformed }

// Value is one converted field.
type Value struct {
	Present bool
	Int     int64
	Str     string
}

// Args is the validated, converted body of one packet.
type Args struct {
	values []Value
}

// Len returns the number of declared fields.
func (a Args) Len() int { return len(a.values) }

// Present reports whether field i was supplied.
func (a Args) Present(i int) bool { return i < len(a.values) && a.values[i].Present }

// Int returns integer field i, or 0 when absent.
func (a Args) Int(i int) int64 {
	if i >= len(a.values) {
		return 0
	}
	return a.values[i].Int
}

// Str returns string or text field i, or "" when absent.
func (a Args) Str(i int) string {
	if i >= len(a.values) {
		return ""
	}
	return a.values[i].Str
}

// Parse converts body against the shape. Conversion stops at the first bad
// field; too few required tokens and leftover tokens are both errors.
//
// Postcondition: Returns Args with one Value per field, or a *ParseError.
func (sh Shape) Parse(body string) (Args, error) {
	values := make([]Value, len(sh))
	pos := 0
	for i, f := range sh {
		pos = skipSpace(body, pos)
		if pos >= len(body) {
			if f.Optional {
				continue
			}
			return Args{}, &ParseError{Field: f.Name, Reason: "missing"}
		}

		if f.Kind == KindText {
			values[i] = Value{Present: true, Str: strings.TrimRight(body[pos:], " \t")}
			pos = len(body)
			continue
		}

		end := pos
		for end < len(body) && !isSpace(body[end]) {
			end++
		}
		tok := body[pos:end]
		pos = end

		v, err := convert(f, tok)
		if err != nil {
			return Args{}, err
		}
		values[i] = v
	}

	if pos = skipSpace(body, pos); pos < len(body) {
		return Args{}, &ParseError{Field: "(end)", Token: body[pos:], Reason: "unexpected trailing tokens"}
	}
	return Args{values: values}, nil
}

func convert(f Field, tok string) (Value, error) {
	switch f.Kind {
	case KindString:
		return Value{Present: true, Str: tok}, nil
	case KindInt, KindEnum:
		n, err := strconv.ParseInt(tok, 10, 64)
		if err != nil {
			return Value{}, &ParseError{Field: f.Name, Token: tok, Reason: "not an integer"}
		}
		if f.Kind == KindEnum && !contains(f.Values, n) {
			return Value{}, &ParseError{Field: f.Name, Token: tok, Reason: "not an allowed value"}
		}
		return Value{Present: true, Int: n, Str: tok}, nil
	}
	return Value{}, &ParseError{Field: f.Name, Token: tok, Reason: "unknown field kind"}
}

func contains(vals []int64, n int64) bool {
	for _, v := range vals {
		if v == n {
			return true
		}
	}
	return false
}

func isSpace(b byte) bool { return b == ' ' || b == '\t' }

func skipSpace(s string, pos int) int {
	for pos < len(s) && isSpace(s[pos]) {
		pos++
	}
	return pos
}
