// (c) Copyright Spanlight Inc. 2022

package spanlight_test

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/opentracing/opentracing-go/mocktracer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	spanlight "github.com/spanlight/go-sensor"
)

func TestWrap_UnsupportedShape(t *testing.T) {
	_, err := spanlight.Wrap(spanlight.Middleware{})
	assert.ErrorIs(t, err, spanlight.ErrUnsupportedHandler)

	assert.Panics(t, func() {
		spanlight.MustWrap(spanlight.Middleware{})
	})
}

func TestWrapHandler_NoTransaction(t *testing.T) {
	tracer := mocktracer.New()

	m := spanlight.NamedHandler("auth", func(w http.ResponseWriter, req *http.Request, next spanlight.NextFunc) {
		w.Header().Set("X-Seen", "true")
		next("one", 2)
	})
	wrapped := spanlight.MustWrap(m)

	var forwarded [][]interface{}
	next := spanlight.NextFunc(func(args ...interface{}) {
		forwarded = append(forwarded, args)
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	require.NoError(t, wrapped.Call(nil, rec, req, next))

	assert.Equal(t, "true", rec.Header().Get("X-Seen"))
	assert.Equal(t, [][]interface{}{{"one", 2}}, forwarded)
	assert.Empty(t, tracer.FinishedSpans())
}

func TestWrapHandler_SpanLifecycle(t *testing.T) {
	tracer := mocktracer.New()
	tx := tracer.StartSpan("http.server")

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(spanlight.ContextWithTransaction(req.Context(), tx))

	m := spanlight.NamedHandler("auth", func(w http.ResponseWriter, req *http.Request, next spanlight.NextFunc) {
		// the middleware span is open but not finished while the body runs
		assert.Empty(t, tracer.FinishedSpans())
		next("route", 42)
		next()
	})
	wrapped := spanlight.MustWrap(m)

	var forwarded [][]interface{}
	next := spanlight.NextFunc(func(args ...interface{}) {
		// the span is closed before the continuation gets control
		assert.Len(t, tracer.FinishedSpans(), 1)
		forwarded = append(forwarded, args)
	})

	require.NoError(t, wrapped.Call(nil, httptest.NewRecorder(), req, next))

	// the continuation forwards every invocation, the span closes exactly once
	assert.Equal(t, [][]interface{}{{"route", 42}, nil}, forwarded)

	spans := tracer.FinishedSpans()
	require.Len(t, spans, 1)

	span := spans[0]
	assert.Equal(t, "middleware", span.OperationName)
	assert.Equal(t, "auth", span.Tag("middleware.name"))
	assert.Equal(t, tx.Context().(mocktracer.MockSpanContext).SpanID, span.ParentID)
}

func TestWrapTerminal_FinishEvent(t *testing.T) {
	tracer := mocktracer.New()
	tx := tracer.StartSpan("http.server")

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(spanlight.ContextWithTransaction(req.Context(), tx))

	res := spanlight.NewResponse(httptest.NewRecorder())

	wrapped := spanlight.MustWrap(spanlight.NamedTerminal("static", func(w http.ResponseWriter, req *http.Request) {
		fmt.Fprint(w, "done")
	}))

	require.NoError(t, wrapped.Call(nil, res, req, nil))

	// the span stays open until the response finish event fires
	assert.Empty(t, tracer.FinishedSpans())

	res.Finish()
	res.Finish()

	spans := tracer.FinishedSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "middleware", spans[0].OperationName)
	assert.Equal(t, "static", spans[0].Tag("middleware.name"))
}

func TestWrapTerminal_NoFinishNotifier(t *testing.T) {
	tracer := mocktracer.New()
	tx := tracer.StartSpan("http.server")

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(spanlight.ContextWithTransaction(req.Context(), tx))

	wrapped := spanlight.MustWrap(spanlight.NamedTerminal("static", func(w http.ResponseWriter, req *http.Request) {}))

	require.NoError(t, wrapped.Call(nil, httptest.NewRecorder(), req, nil))

	// no completion event to wait for, the span closes on return
	assert.Len(t, tracer.FinishedSpans(), 1)
}

func TestWrapErrorHandler(t *testing.T) {
	tracer := mocktracer.New()
	tx := tracer.StartSpan("http.server")

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(spanlight.ContextWithTransaction(req.Context(), tx))

	chainErr := fmt.Errorf("boom")

	var seen error
	wrapped := spanlight.MustWrap(spanlight.NamedErrorHandler("recover", func(err error, w http.ResponseWriter, req *http.Request, next spanlight.NextFunc) {
		seen = err
		next(err)
	}))

	var forwarded [][]interface{}
	next := spanlight.NextFunc(func(args ...interface{}) {
		forwarded = append(forwarded, args)
	})

	require.NoError(t, wrapped.Call(chainErr, httptest.NewRecorder(), req, next))

	assert.Equal(t, chainErr, seen)
	assert.Equal(t, [][]interface{}{{chainErr}}, forwarded)

	spans := tracer.FinishedSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "recover", spans[0].Tag("middleware.name"))
}

type visitCounter struct {
	visits int
}

func (c *visitCounter) handle(w http.ResponseWriter, req *http.Request, next spanlight.NextFunc) {
	c.visits++
	next()
}

func TestWrapHandler_MethodReceiver(t *testing.T) {
	c := &visitCounter{}
	wrapped := spanlight.MustWrap(spanlight.NamedHandler("counter", c.handle))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	next := spanlight.NextFunc(func(args ...interface{}) {})

	require.NoError(t, wrapped.Call(nil, httptest.NewRecorder(), req, next))
	require.NoError(t, wrapped.Call(nil, httptest.NewRecorder(), req, next))

	assert.Equal(t, 2, c.visits)
}

func TestWrap_PreservesShape(t *testing.T) {
	examples := map[string]struct {
		m    spanlight.Middleware
		kind spanlight.HandlerKind
	}{
		"terminal":      {spanlight.NamedTerminal("t", func(w http.ResponseWriter, req *http.Request) {}), spanlight.KindTerminal},
		"handler":       {spanlight.NamedHandler("h", func(w http.ResponseWriter, req *http.Request, next spanlight.NextFunc) {}), spanlight.KindHandler},
		"error handler": {spanlight.NamedErrorHandler("e", func(err error, w http.ResponseWriter, req *http.Request, next spanlight.NextFunc) {}), spanlight.KindErrorHandler},
	}

	for name, example := range examples {
		t.Run(name, func(t *testing.T) {
			wrapped, err := spanlight.Wrap(example.m)
			require.NoError(t, err)

			assert.Equal(t, example.kind, wrapped.Kind())
			assert.Equal(t, example.m.Name(), wrapped.Name())
		})
	}
}
