// (c) Copyright Spanlight Inc. 2022

package spanlight

import (
	"fmt"
	"net/http"
	"reflect"
)

// RegisterFunc is the shape of an application's middleware registration entry
// point. The argument list is heterogeneous: path prefixes (string),
// Middleware values, plain handler functions of any supported shape, and
// sequences of either. A registration that cannot be satisfied returns an
// error instead of taking effect.
type RegisterFunc func(args ...interface{}) error

// Registrar is implemented by host applications that allow their middleware
// registration entry point to be replaced. The middleware integration uses it
// to install the registration interceptor during setup.
type Registrar interface {
	// RegisterFunc returns the current registration entry point.
	RegisterFunc() RegisterFunc
	// SetRegisterFunc replaces the registration entry point.
	SetRegisterFunc(fn RegisterFunc)
}

// InstrumentRegister decorates a registration entry point: the returned
// function replaces every callable argument, including callables found inside
// sequence arguments, with its span-recording form per Wrap() and forwards
// the transformed argument list to orig in original order. Non-callable
// arguments pass through untouched. If any callable has an unsupported shape
// the registration fails with that error and orig is never called.
func InstrumentRegister(orig RegisterFunc) RegisterFunc {
	return func(args ...interface{}) error {
		instrumented := make([]interface{}, len(args))
		for i, arg := range args {
			wrapped, err := wrapArgument(arg)
			if err != nil {
				return err
			}

			instrumented[i] = wrapped
		}

		return orig(instrumented...)
	}
}

func wrapArgument(arg interface{}) (interface{}, error) {
	switch v := arg.(type) {
	case []Middleware:
		wrapped := make([]Middleware, len(v))
		for i, m := range v {
			wm, err := Wrap(m)
			if err != nil {
				return nil, err
			}

			wrapped[i] = wm
		}

		return wrapped, nil
	case []interface{}:
		wrapped := make([]interface{}, len(v))
		for i, el := range v {
			wrappedEl, err := wrapValue(el)
			if err != nil {
				return nil, err
			}

			wrapped[i] = wrappedEl
		}

		return wrapped, nil
	default:
		return wrapValue(arg)
	}
}

// wrapValue wraps a single callable argument, passing non-callable values
// through untouched. A func value that matches none of the supported handler
// shapes is a configuration error.
func wrapValue(arg interface{}) (interface{}, error) {
	if m, ok := asMiddleware(arg); ok {
		return Wrap(m)
	}

	if v := reflect.ValueOf(arg); v.Kind() == reflect.Func {
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedHandler, arg)
	}

	return arg, nil
}

// asMiddleware converts a callable of any supported shape into a tagged
// Middleware value
func asMiddleware(arg interface{}) (Middleware, bool) {
	switch fn := arg.(type) {
	case Middleware:
		return fn, true
	case TerminalHandlerFunc:
		return Terminal(fn), true
	case func(http.ResponseWriter, *http.Request):
		return Terminal(fn), true
	case http.HandlerFunc:
		return Terminal(TerminalHandlerFunc(fn)), true
	case HandlerFunc:
		return Handler(fn), true
	case func(http.ResponseWriter, *http.Request, NextFunc):
		return Handler(fn), true
	case ErrorHandlerFunc:
		return ErrorHandler(fn), true
	case func(error, http.ResponseWriter, *http.Request, NextFunc):
		return ErrorHandler(fn), true
	}

	return Middleware{}, false
}
