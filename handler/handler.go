// Package handler provides implementations of the wsrpc.Assigner interface,
// support for adapting functions to the wsrpc.Handler interface, and the
// callback registries consumed by durable peers.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"

	wsrpc "github.com/igoforth/ws-rpc"
	"github.com/igoforth/ws-rpc/code"
)

// A Func adapts a function having the correct signature to a wsrpc.Handler.
type Func func(context.Context, any) (any, error)

// Handle implements the wsrpc.Handler interface by calling m.
func (m Func) Handle(ctx context.Context, params any) (any, error) {
	return m(ctx, params)
}

// A Map is a trivial implementation of the wsrpc.Assigner interface that
// looks up method names in a map of static wsrpc.Handler values.
type Map map[string]wsrpc.Handler

// Assign implements the wsrpc.Assigner interface.
func (m Map) Assign(method string) wsrpc.Handler { return m[method] }

// Names reports the assigned method names in sorted order.
func (m Map) Names() []string {
	var names []string
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New adapts a function to a wsrpc.Handler. The concrete value of fn must be
// a function with one of the following type signature schemes:
//
//	func(context.Context) error
//	func(context.Context) (Y, error)
//	func(context.Context, X) error
//	func(context.Context, X) (Y, error)
//	func(context.Context, any) (any, error)
//
// for JSON-marshalable types X and Y. New will panic if the type of fn does
// not have one of these forms. Decoded parameter values are converted to X
// through a JSON round-trip, so X sees the same shapes a validator would.
func New(fn any) Func {
	m, err := newHandler(fn)
	if err != nil {
		panic(err)
	}
	return m
}

var (
	ctxType = reflect.TypeOf((*context.Context)(nil)).Elem() // type context.Context
	errType = reflect.TypeOf((*error)(nil)).Elem()           // type error
	anyType = reflect.TypeOf((*any)(nil)).Elem()             // type any
)

func newHandler(fn any) (Func, error) {
	if fn == nil {
		return nil, errors.New("nil method")
	}

	// Special case: If fn has the exact signature of the Handle method, don't
	// do any (additional) reflection at all.
	if f, ok := fn.(func(context.Context, any) (any, error)); ok {
		return Func(f), nil
	}

	info, err := checkFunctionType(fn)
	if err != nil {
		return nil, err
	}

	// Construct a function to convert the decoded params into the argument
	// the user's callback expects.
	var newinput func(params any) ([]reflect.Value, error)

	if info.Argument == nil {
		// Case 1: The function does not want any parameters.
		newinput = func(any) ([]reflect.Value, error) { return nil, nil }

	} else if info.Argument == anyType {
		// Case 2: The function wants the decoded value as-is.
		newinput = func(params any) ([]reflect.Value, error) {
			v := reflect.New(anyType).Elem()
			if params != nil {
				v.Set(reflect.ValueOf(params))
			}
			return []reflect.Value{v}, nil
		}

	} else {
		// Case 3: The function wants a concrete argument type; rebuild it
		// from the decoded value.
		argType := info.Argument
		newinput = func(params any) ([]reflect.Value, error) {
			in := reflect.New(argType)
			if err := convert(params, in.Interface()); err != nil {
				return nil, wsrpc.Errorf(code.InvalidParams, "invalid parameters: %v", err)
			}
			return []reflect.Value{in.Elem()}, nil
		}
	}

	// Construct a function to decode the result values.
	var decodeOut func([]reflect.Value) (any, error)

	if info.Result == nil {
		// The function returns only an error, the result is always nil.
		decodeOut = func(vals []reflect.Value) (any, error) {
			oerr := vals[0].Interface()
			if oerr != nil {
				return nil, oerr.(error)
			}
			return nil, nil
		}
	} else {
		// The function returns both a value and an error.
		decodeOut = func(vals []reflect.Value) (any, error) {
			out, oerr := vals[0].Interface(), vals[1].Interface()
			if oerr != nil {
				return nil, oerr.(error)
			}
			return out, nil
		}
	}

	call := reflect.ValueOf(fn).Call
	return Func(func(ctx context.Context, params any) (any, error) {
		rest, ierr := newinput(params)
		if ierr != nil {
			return nil, ierr
		}
		args := append([]reflect.Value{reflect.ValueOf(ctx)}, rest...)
		return decodeOut(call(args))
	}), nil
}

// funcInfo captures type signature information from a valid handler function.
type funcInfo struct {
	Type     reflect.Type // the complete function type
	Argument reflect.Type // the non-context argument type, or nil
	Result   reflect.Type // the non-error result type, or nil
}

func checkFunctionType(fn any) (*funcInfo, error) {
	info := &funcInfo{Type: reflect.TypeOf(fn)}
	if info.Type.Kind() != reflect.Func {
		return nil, errors.New("not a function")
	}
	if np := info.Type.NumIn(); np == 0 || np > 2 {
		return nil, errors.New("wrong number of parameters")
	} else if np == 2 {
		info.Argument = info.Type.In(1)
	}
	no := info.Type.NumOut()
	if no < 1 || no > 2 {
		return nil, errors.New("wrong number of results")
	} else if info.Type.In(0) != ctxType {
		return nil, errors.New("first parameter is not context.Context")
	} else if info.Type.Out(no-1) != errType {
		return nil, errors.New("last result is not of type error")
	}
	if no == 2 {
		info.Result = info.Type.Out(0)
	}
	return info, nil
}

// convert rebuilds a decoded value into the concrete type at out through a
// JSON round-trip.
func convert(in, out any) error {
	data, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

// A Registry is a static implementation of the wsrpc.CallbackRegistry
// interface: a mapping from persisted callback names to continuation
// functions.
type Registry map[string]wsrpc.CallbackFunc

// Callback implements the wsrpc.CallbackRegistry interface.
func (r Registry) Callback(name string) (wsrpc.CallbackFunc, bool) {
	fn, ok := r[name]
	return fn, ok
}

// Names reports the registered callback names in sorted order.
func (r Registry) Names() []string {
	var names []string
	for name := range r {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RegistryFromHost builds a Registry from the exported methods of host that
// have the signature
//
//	func(payload any, ctx wsrpc.CallbackContext)
//
// keyed by method name. This preserves the persisted string-name contract:
// a durable call recorded with callback "OnDone" completes by invoking
// host.OnDone. Methods with other signatures are skipped. It is an error
// for host to expose no usable callbacks.
func RegistryFromHost(host any) (Registry, error) {
	if host == nil {
		return nil, errors.New("nil host")
	}
	hv := reflect.ValueOf(host)
	ht := hv.Type()

	reg := make(Registry)
	for i := 0; i < ht.NumMethod(); i++ {
		m := ht.Method(i)
		fn, ok := hv.Method(i).Interface().(func(any, wsrpc.CallbackContext))
		if !ok {
			continue
		}
		reg[m.Name] = fn
	}
	if len(reg) == 0 {
		return nil, fmt.Errorf("host %T exposes no callback methods", host)
	}
	return reg, nil
}
