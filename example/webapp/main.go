// (c) Copyright Spanlight Inc. 2023

// This example starts an HTTP server built around the middleware-chain App.
// The middleware integration intercepts app.Use, so every registered
// middleware is recorded as a child span of the request transaction.
package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/google/uuid"
	ot "github.com/opentracing/opentracing-go"
	spanlight "github.com/spanlight/go-sensor"
)

func requestID(w http.ResponseWriter, req *http.Request, next spanlight.NextFunc) {
	w.Header().Set("X-Request-Id", uuid.New().String())
	next()
}

func greet(w http.ResponseWriter, req *http.Request, next spanlight.NextFunc) {
	name := req.URL.Query().Get("name")
	if name == "" {
		next(fmt.Errorf("missing the name query parameter"))
		return
	}

	fmt.Fprintf(w, "Hello, %s!\n", name)
}

func badRequest(err error, w http.ResponseWriter, req *http.Request, next spanlight.NextFunc) {
	http.Error(w, err.Error(), http.StatusBadRequest)
}

func main() {
	app := spanlight.NewApp()

	integration := spanlight.NewIntegration(spanlight.Options{App: app})
	integration.SetupOnce()

	err := app.Use(
		spanlight.NamedHandler("request-id", requestID),
		"/greet", spanlight.NamedHandler("greet", greet),
		spanlight.NamedErrorHandler("bad-request", badRequest),
	)
	if err != nil {
		log.Fatalln(err)
	}

	handler := spanlight.TracingHandlerFunc(ot.GlobalTracer(), "", app.ServeHTTP)

	log.Println("listening on :8080")
	log.Fatalln(http.ListenAndServe(":8080", handler))
}
