// (c) Copyright Spanlight Inc. 2023

// Package lightmux provides middleware tracing for github.com/gorilla/mux routers.
package lightmux

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	ot "github.com/opentracing/opentracing-go"
	spanlight "github.com/spanlight/go-sensor"
)

// AddMiddleware instruments the mux.Router instance: every matched request is
// served inside a transaction span carrying the route's path template.
func AddMiddleware(tracer ot.Tracer, router *mux.Router) {
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			pathTemplate, err := mux.CurrentRoute(req).GetPathTemplate()
			if err != nil {
				spanlight.Logger().Debug("can not get path template from the route: ", err.Error())
				pathTemplate = ""
			}

			spanlight.TracingHandlerFunc(tracer, pathTemplate, func(writer http.ResponseWriter, request *http.Request) {
				next.ServeHTTP(writer, request)
			})(w, req)
		})
	})
}

// Use attaches middleware to the router so that each execution is recorded as
// a child span of the request transaction. Error handlers are rejected: a mux
// chain has no error dispatch to route them through.
func Use(router *mux.Router, mws ...spanlight.Middleware) error {
	for _, m := range mws {
		switch m.Kind() {
		case spanlight.KindTerminal, spanlight.KindHandler:
		default:
			return fmt.Errorf("%w: %s middleware %q cannot be attached to a mux router",
				spanlight.ErrUnsupportedHandler, m.Kind(), m.Name())
		}

		wrapped, err := spanlight.Wrap(m)
		if err != nil {
			return err
		}

		router.Use(middlewareFunc(wrapped))
	}

	return nil
}

func middlewareFunc(m spanlight.Middleware) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			res := spanlight.NewResponse(w)

			// terminal middleware ends the chain, it never invokes the continuation
			m.Call(nil, res, req, func(args ...interface{}) {
				next.ServeHTTP(res, req)
			})
		})
	}
}
