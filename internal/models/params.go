package models

import (
	"fmt"
	"strconv"
	"strings"
)

// ParamKind is the scalar type a classifier parameter is declared with.
type ParamKind string

const (
	ParamString ParamKind = "string"
	ParamInt    ParamKind = "int"
	ParamFloat  ParamKind = "float"
	ParamBool   ParamKind = "bool"
)

// ParamValue is a typed classifier parameter. Exactly one of the value fields is meaningful,
// selected by Kind.
type ParamValue struct {
	Kind  ParamKind
	Str   string
	Int   int
	Float float64
	Bool  bool
}

// StringParam, IntParam, FloatParam and BoolParam build typed values.
func StringParam(v string) ParamValue { return ParamValue{Kind: ParamString, Str: v} }
func IntParam(v int) ParamValue       { return ParamValue{Kind: ParamInt, Int: v} }
func FloatParam(v float64) ParamValue { return ParamValue{Kind: ParamFloat, Float: v} }
func BoolParam(v bool) ParamValue     { return ParamValue{Kind: ParamBool, Bool: v} }

// ParseParamValue converts raw text into a value of the requested kind.
func ParseParamValue(kind ParamKind, raw string) (ParamValue, error) {
	raw = strings.TrimSpace(raw)
	switch kind {
	case ParamString:
		return StringParam(raw), nil
	case ParamInt:
		v, err := strconv.Atoi(raw)
		if err != nil {
			return ParamValue{}, fmt.Errorf("%q is not an integer", raw)
		}
		return IntParam(v), nil
	case ParamFloat:
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return ParamValue{}, fmt.Errorf("%q is not a float", raw)
		}
		return FloatParam(v), nil
	case ParamBool:
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return ParamValue{}, fmt.Errorf("%q is not a boolean", raw)
		}
		return BoolParam(v), nil
	default:
		return ParamValue{}, fmt.Errorf("unsupported parameter kind %q", kind)
	}
}

func (v ParamValue) String() string {
	switch v.Kind {
	case ParamString:
		return v.Str
	case ParamInt:
		return strconv.Itoa(v.Int)
	case ParamFloat:
		return strconv.FormatFloat(v.Float, 'g', -1, 64)
	case ParamBool:
		return strconv.FormatBool(v.Bool)
	default:
		return ""
	}
}

// Params is the typed parameter record handed to the trainer. Only supplied parameters are present.
type Params map[string]ParamValue

// Int returns the integer parameter name, if supplied.
func (p Params) Int(name string) (int, bool) {
	v, ok := p[name]
	if !ok || v.Kind != ParamInt {
		return 0, false
	}
	return v.Int, true
}

// Float returns the float parameter name, if supplied.
func (p Params) Float(name string) (float64, bool) {
	v, ok := p[name]
	if !ok || v.Kind != ParamFloat {
		return 0, false
	}
	return v.Float, true
}

// String returns the string parameter name, if supplied.
func (p Params) String(name string) (string, bool) {
	v, ok := p[name]
	if !ok || v.Kind != ParamString {
		return "", false
	}
	return v.Str, true
}

// Bool returns the boolean parameter name, if supplied.
func (p Params) Bool(name string) (bool, bool) {
	v, ok := p[name]
	if !ok || v.Kind != ParamBool {
		return false, false
	}
	return v.Bool, true
}
