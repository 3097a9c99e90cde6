// (c) Copyright Spanlight Inc. 2022

package spanlight

import (
	"errors"
	"net/http"
	"reflect"
	"runtime"
	"sync"

	ot "github.com/opentracing/opentracing-go"
)

// ErrUnsupportedHandler is returned when a callable does not match any of the
// supported middleware handler shapes.
var ErrUnsupportedHandler = errors.New("unsupported middleware handler shape")

// NextFunc is the continuation a middleware invokes to hand control over to
// the next middleware in the chain. A non-nil error value passed as the first
// argument switches the chain into error dispatch.
type NextFunc func(args ...interface{})

// TerminalHandlerFunc is a middleware that ends the request on its own and
// never hands control over to a continuation.
type TerminalHandlerFunc func(w http.ResponseWriter, req *http.Request)

// HandlerFunc is a request-processing middleware that passes control to the
// next middleware in the chain via the provided continuation.
type HandlerFunc func(w http.ResponseWriter, req *http.Request, next NextFunc)

// ErrorHandlerFunc is a middleware invoked only while an error is pending in
// the chain.
type ErrorHandlerFunc func(err error, w http.ResponseWriter, req *http.Request, next NextFunc)

// HandlerKind identifies the shape of the callable carried by a Middleware.
type HandlerKind uint8

const (
	KindUnknown HandlerKind = iota
	KindTerminal
	KindHandler
	KindErrorHandler
)

// String returns the human-readable label for this handler kind
func (k HandlerKind) String() string {
	switch k {
	case KindTerminal:
		return "terminal"
	case KindHandler:
		return "handler"
	case KindErrorHandler:
		return "error handler"
	default:
		return "unknown"
	}
}

// Middleware is a middleware callable tagged with its handler shape. The tag
// is fixed at construction time and selects how the callable is dispatched
// and how its execution span is bracketed. The zero value carries no callable
// and is rejected by Wrap().
type Middleware struct {
	name string
	kind HandlerKind

	terminal TerminalHandlerFunc
	handler  HandlerFunc
	errorFn  ErrorHandlerFunc
}

// Terminal returns a Middleware carrying a terminal handler. The middleware
// name is derived from the function's runtime name.
func Terminal(fn TerminalHandlerFunc) Middleware {
	return NamedTerminal(funcName(fn), fn)
}

// NamedTerminal is Terminal with an explicit middleware name.
func NamedTerminal(name string, fn TerminalHandlerFunc) Middleware {
	return Middleware{name: name, kind: KindTerminal, terminal: fn}
}

// Handler returns a Middleware carrying a request-processing handler. The
// middleware name is derived from the function's runtime name.
func Handler(fn HandlerFunc) Middleware {
	return NamedHandler(funcName(fn), fn)
}

// NamedHandler is Handler with an explicit middleware name.
func NamedHandler(name string, fn HandlerFunc) Middleware {
	return Middleware{name: name, kind: KindHandler, handler: fn}
}

// ErrorHandler returns a Middleware carrying an error handler. The middleware
// name is derived from the function's runtime name.
func ErrorHandler(fn ErrorHandlerFunc) Middleware {
	return NamedErrorHandler(funcName(fn), fn)
}

// NamedErrorHandler is ErrorHandler with an explicit middleware name.
func NamedErrorHandler(name string, fn ErrorHandlerFunc) Middleware {
	return Middleware{name: name, kind: KindErrorHandler, errorFn: fn}
}

// Name returns the middleware name used as the description of its execution spans.
func (m Middleware) Name() string { return m.name }

// Kind returns the handler shape tag assigned at construction.
func (m Middleware) Kind() HandlerKind { return m.kind }

// Call invokes the middleware callable. The err value is passed on to error
// handlers only, terminal handlers and request-processing handlers ignore it.
// Calling an uninitialized Middleware returns ErrUnsupportedHandler.
func (m Middleware) Call(err error, w http.ResponseWriter, req *http.Request, next NextFunc) error {
	switch m.kind {
	case KindTerminal:
		m.terminal(w, req)
	case KindHandler:
		m.handler(w, req, next)
	case KindErrorHandler:
		m.errorFn(err, w, req, next)
	default:
		return ErrUnsupportedHandler
	}

	return nil
}

// Wrap returns a replacement for m that records each invocation as a child
// span of the request transaction found in the request context. The
// replacement is behaviorally transparent: it forwards all arguments
// unchanged and propagates whatever the original callable does, including
// panics. If no transaction is present at invocation time no span is created
// and the original callable is invoked directly.
//
// The span lifetime depends on the handler shape: for terminal handlers it is
// finished by the response finish event, for the other shapes it is finished
// the moment the middleware invokes its continuation. Wrapping an
// uninitialized Middleware fails with ErrUnsupportedHandler.
func Wrap(m Middleware) (Middleware, error) {
	switch m.kind {
	case KindTerminal:
		return Middleware{name: m.name, kind: m.kind, terminal: wrapTerminal(m.name, m.terminal)}, nil
	case KindHandler:
		return Middleware{name: m.name, kind: m.kind, handler: wrapHandler(m.name, m.handler)}, nil
	case KindErrorHandler:
		return Middleware{name: m.name, kind: m.kind, errorFn: wrapErrorHandler(m.name, m.errorFn)}, nil
	default:
		return Middleware{}, ErrUnsupportedHandler
	}
}

// MustWrap is Wrap, panicking on error. Intended for static middleware sets
// known to be well-formed.
func MustWrap(m Middleware) Middleware {
	wrapped, err := Wrap(m)
	if err != nil {
		panic(err)
	}

	return wrapped
}

func wrapTerminal(name string, original TerminalHandlerFunc) TerminalHandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		tx, ok := TransactionFromContext(req.Context())
		if !ok {
			original(w, req)
			return
		}

		sp := startMiddlewareSpan(tx, name)

		notifier, ok := w.(FinishNotifier)
		if !ok {
			// no completion event to subscribe to, close the span once the
			// handler returns
			defer sp.Finish()
			original(w, req)
			return
		}

		notifier.OnFinish(finishOnce(sp))
		original(w, req)
	}
}

func wrapHandler(name string, original HandlerFunc) HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request, next NextFunc) {
		tx, ok := TransactionFromContext(req.Context())
		if !ok {
			original(w, req, next)
			return
		}

		sp := startMiddlewareSpan(tx, name)
		original(w, req, finishingNext(sp, next))
	}
}

func wrapErrorHandler(name string, original ErrorHandlerFunc) ErrorHandlerFunc {
	return func(err error, w http.ResponseWriter, req *http.Request, next NextFunc) {
		tx, ok := TransactionFromContext(req.Context())
		if !ok {
			original(err, w, req, next)
			return
		}

		sp := startMiddlewareSpan(tx, name)
		original(err, w, req, finishingNext(sp, next))
	}
}

// finishingNext substitutes the middleware continuation: it closes the span
// before forwarding the call, with all its arguments, to the real
// continuation. The span is closed at most once even if the middleware
// invokes its continuation repeatedly.
func finishingNext(sp ot.Span, next NextFunc) NextFunc {
	finish := finishOnce(sp)

	return func(args ...interface{}) {
		finish()
		next(args...)
	}
}

func finishOnce(sp ot.Span) func() {
	var once sync.Once

	return func() {
		once.Do(sp.Finish)
	}
}

func startMiddlewareSpan(tx ot.Span, name string) ot.Span {
	return tx.Tracer().StartSpan(
		OpMiddleware,
		ot.ChildOf(tx.Context()),
		ot.Tags{tagMiddlewareName: name},
	)
}

func funcName(fn interface{}) string {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func || v.IsNil() {
		return "anonymous"
	}

	if f := runtime.FuncForPC(v.Pointer()); f != nil {
		return f.Name()
	}

	return "anonymous"
}
