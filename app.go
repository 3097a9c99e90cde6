// (c) Copyright Spanlight Inc. 2023

package spanlight

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
)

type route struct {
	// prefix scopes the middleware to requests whose path starts with it, an
	// empty prefix matches every request
	prefix string
	m      Middleware
}

// App is a minimal middleware-chain application. Middleware is registered
// through the variadic Use entry point and executed in registration order:
// request-processing handlers advance the chain through their continuation,
// terminal handlers end it, and a continuation invoked with a non-nil error
// skips forward to the next error handler. App implements Registrar, so its
// registration entry point can be instrumented by the middleware Integration.
type App struct {
	mu       sync.RWMutex
	register RegisterFunc
	routes   []route
}

// NewApp returns an App with its native registration entry point installed
func NewApp() *App {
	app := &App{}
	app.register = app.addRoutes

	return app
}

// Use registers middleware through the application's current registration
// entry point. Arguments may be path prefixes (string), Middleware values,
// plain handler functions of any supported shape, or sequences of either. A
// path prefix applies to the middleware that follows it within the same call.
func (app *App) Use(args ...interface{}) error {
	app.mu.RLock()
	reg := app.register
	app.mu.RUnlock()

	return reg(args...)
}

// RegisterFunc implements Registrar
func (app *App) RegisterFunc() RegisterFunc {
	app.mu.RLock()
	defer app.mu.RUnlock()

	return app.register
}

// SetRegisterFunc implements Registrar
func (app *App) SetRegisterFunc(fn RegisterFunc) {
	app.mu.Lock()
	defer app.mu.Unlock()

	app.register = fn
}

// addRoutes is the application's native registration entry point
func (app *App) addRoutes(args ...interface{}) error {
	app.mu.Lock()
	defer app.mu.Unlock()

	prefix := ""
	var add func(arg interface{}) error
	add = func(arg interface{}) error {
		switch v := arg.(type) {
		case string:
			prefix = v
		case Middleware:
			if v.Kind() == KindUnknown {
				return ErrUnsupportedHandler
			}

			app.routes = append(app.routes, route{prefix: prefix, m: v})
		case []Middleware:
			for _, m := range v {
				if err := add(m); err != nil {
					return err
				}
			}
		case []interface{}:
			for _, el := range v {
				if err := add(el); err != nil {
					return err
				}
			}
		default:
			m, ok := asMiddleware(arg)
			if !ok {
				return fmt.Errorf("unsupported registration argument of type %T", arg)
			}

			app.routes = append(app.routes, route{prefix: prefix, m: m})
		}

		return nil
	}

	for _, arg := range args {
		if err := add(arg); err != nil {
			return err
		}
	}

	return nil
}

// ServeHTTP runs the middleware chain for the request. The response finish
// event fires exactly once after the chain unwinds. Requests that no
// middleware responds to get a 404, errors that no error handler consumes get
// a 500.
func (app *App) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	res := NewResponse(w)
	defer res.Finish()

	app.mu.RLock()
	routes := make([]route, len(app.routes))
	copy(routes, app.routes)
	app.mu.RUnlock()

	var run func(i int, err error)
	run = func(i int, err error) {
		for ; i < len(routes); i++ {
			rt := routes[i]
			if rt.prefix != "" && !strings.HasPrefix(req.URL.Path, rt.prefix) {
				continue
			}

			idx := i
			next := NextFunc(func(args ...interface{}) {
				run(idx+1, argError(args))
			})

			if err != nil {
				if rt.m.Kind() != KindErrorHandler {
					continue
				}

				rt.m.Call(err, res, req, next)
				return
			}

			switch rt.m.Kind() {
			case KindTerminal, KindHandler:
				rt.m.Call(nil, res, req, next)
				return
			default:
				// error handlers are skipped while no error is pending
			}
		}

		if err != nil {
			http.Error(res, err.Error(), http.StatusInternalServerError)
		}
	}

	run(0, nil)

	if res.Status() == 0 {
		http.NotFound(res, req)
	}
}

// argError interprets the leading continuation argument as the chain error,
// the way express-style hosts do with next(err)
func argError(args []interface{}) error {
	if len(args) == 0 || args[0] == nil {
		return nil
	}

	if err, ok := args[0].(error); ok {
		return err
	}

	return fmt.Errorf("%v", args[0])
}
