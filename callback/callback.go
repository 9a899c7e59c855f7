// Package callback has the function types accepted as event handlers and as
// acknowledgement callbacks.
package callback

import (
	"errors"
	"fmt"
	"reflect"
)

// EventCallback handles the arguments of an incoming event. When the peer
// asked for an acknowledgement the last argument is an Ack.
type EventCallback interface {
	Callback(...interface{}) error
}

// AckCallback handlers answer the acknowledgement with their return values,
// they never receive an Ack argument.
type AckCallback interface {
	CallbackAck(...interface{}) []interface{}
}

// Ack sends the acknowledgement of an incoming event. Only the first call
// is sent.
type Ack func(...interface{})

type ErrorWrap func() error

func (fn ErrorWrap) Callback(...interface{}) error { return fn() }

type FuncAny func(...interface{}) error

func (fn FuncAny) Callback(v ...interface{}) error { return fn(v...) }

// FuncString is called with the first argument when it is a string, and
// with "undefined" otherwise.
type FuncString func(string)

func (fn FuncString) Callback(v ...interface{}) error {
	if len(v) == 0 {
		fn("undefined")
		return nil
	}
	if val, ok := v[0].(string); ok {
		fn(val)
	} else {
		fn("undefined")
	}
	return nil
}

// FuncReply returns the acknowledgement of the event.
type FuncReply func(...interface{}) []interface{}

func (fn FuncReply) Callback(v ...interface{}) error            { fn(v...); return nil }
func (fn FuncReply) CallbackAck(v ...interface{}) []interface{} { return fn(v...) }

// FuncAck receives the acknowledgement of an emitted event, or the error
// that ended the wait for it.
type FuncAck func(err error, args ...interface{})

// Wrap makes any func an EventCallback. The arguments are converted to the
// parameter types of Func, so a JSON number can be received as an int.
// Func may return nothing or a single error.
type Wrap struct {
	Func interface{}
}

func (w Wrap) Callback(data ...interface{}) (err error) {
	defer func() {
		if r := recover(); r != nil {
			switch e := r.(type) {
			case string:
				err = errors.New(e)
			case error:
				err = e
			default:
				err = ErrUnknownPanic
			}
		}
	}()

	f := reflect.ValueOf(w.Func)
	if f.Kind() != reflect.Func {
		return ErrNotAFunc.F(w.Func)
	}

	ft := f.Type()
	switch {
	case ft.NumOut() > 1:
		return ErrUnexpectedOutParams.F(ft.NumOut())
	case ft.NumOut() == 1 && ft.Out(0) != reflect.TypeOf((*error)(nil)).Elem():
		return ErrUnexpectedOutParams.F(ft.NumOut())
	}

	in, err := params(ft, data)
	if err != nil {
		return err
	}

	var out []reflect.Value
	if ft.IsVariadic() {
		out = f.CallSlice(in)
	} else {
		out = f.Call(in)
	}
	if len(out) == 1 && !out[0].IsNil() {
		return out[0].Interface().(error)
	}
	return nil
}

func params(ft reflect.Type, data []interface{}) ([]reflect.Value, error) {
	n := ft.NumIn()
	if ft.IsVariadic() {
		if len(data) < n-1 {
			return nil, ErrUnexpectedDataInParams.F(n-1, len(data))
		}
	} else if len(data) != n {
		return nil, ErrUnexpectedDataInParams.F(n, len(data))
	}

	in := make([]reflect.Value, 0, n)
	for i := 0; i < n; i++ {
		if ft.IsVariadic() && i == n-1 {
			rest := reflect.MakeSlice(ft.In(i), 0, len(data)-i)
			for j := i; j < len(data); j++ {
				v, err := param(j, ft.In(i).Elem(), data[j])
				if err != nil {
					return nil, err
				}
				rest = reflect.Append(rest, v)
			}
			in = append(in, rest)
			break
		}

		v, err := param(i, ft.In(i), data[i])
		if err != nil {
			return nil, err
		}
		in = append(in, v)
	}
	return in, nil
}

func param(i int, t reflect.Type, datum interface{}) (reflect.Value, error) {
	if datum == nil {
		return reflect.Zero(t), nil
	}

	v := reflect.ValueOf(datum)
	switch {
	case v.Type().AssignableTo(t):
		return v, nil
	case isNumber(v.Kind()) && isNumber(t.Kind()):
		return v.Convert(t), nil
	}
	return reflect.Value{}, ErrUnexpectedParamType.F(i, datum, t)
}

func isNumber(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

func (w Wrap) String() string { return fmt.Sprintf("Wrap(%T)", w.Func) }
