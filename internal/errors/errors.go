package errors

import (
	"errors"
	"fmt"
	"strings"
)

type (
	// String is a constant error. Use F to format it with values (including
	// %w wrapped errors) and KV to attach key/value context.
	String string

	// Struct is a formatted String, it still reports errors.Is against
	// the String it came from.
	Struct struct {
		e    String
		rr   error
		wrap []error
		kv   []interface{}
	}
)

func (e String) Error() string { return string(e) }

func (e String) F(v ...interface{}) Struct {
	var kv []interface{}
	for i, val := range v {
		if value, ok := val.(Struct); ok && len(value.kv) > 0 {
			kv = append(kv, value.kv...)
			value.kv = nil
			v[i] = value
		}
	}

	err := fmt.Errorf(string(e), v...)

	var wrap []error
	switch x := err.(type) {
	case interface{ Unwrap() []error }:
		wrap = x.Unwrap()
	case interface{ Unwrap() error }:
		wrap = []error{x.Unwrap()}
	}

	return Struct{e: e, rr: err, kv: kv, wrap: wrap}
}

func (e String) KV(kv ...interface{}) Struct {
	return Struct{e: e, rr: e, kv: kv}
}

func (e Struct) Error() string { return e.rr.Error() + fmtKV(e.kv) }

func (e Struct) KV(kv ...interface{}) Struct {
	return Struct{e: e.e, rr: e.rr, wrap: e.wrap, kv: append(append([]interface{}{}, e.kv...), kv...)}
}

// Message is the error text without the key/value suffix.
func (e Struct) Message() string { return e.rr.Error() }

func (e Struct) Unwrap() []error { return e.wrap }

func (e Struct) Is(target error) bool {
	switch t := target.(type) {
	case String:
		return e.e == t
	case Struct:
		return e.e == t.e
	}
	return false
}

func fmtKV(kvPairs []interface{}) string {
	if len(kvPairs) == 0 {
		return ""
	}

	pairs := make([]string, 0, (len(kvPairs)+1)/2)
	for n := 0; n < len(kvPairs); n += 2 {
		key, val := kvPairs[n], interface{}("")
		if n+1 < len(kvPairs) {
			val = kvPairs[n+1]
		}
		pairs = append(pairs, fmt.Sprint(key, `":"`, val))
	}

	return fmt.Sprintf("\t"+`{"%s"}`, strings.Join(pairs, `","`))
}

// Is and As are here so callers importing this package as errors keep the
// standard helpers close at hand.
func Is(err, target error) bool     { return errors.Is(err, target) }
func As(err error, target any) bool { return errors.As(err, target) }
