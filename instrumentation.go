package spanlight

import (
	"net/http"

	ot "github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	otlog "github.com/opentracing/opentracing-go/log"
)

// TracingHandlerFunc is an HTTP middleware that starts the transaction span
// for each request and ensures trace context propagation via OpenTracing
// headers. The transaction is stored in the request context, where the
// wrapped middleware down the chain picks it up, and is finished when the
// handler returns. The response finish event fires right before the
// transaction is finished, closing any terminal middleware spans still open.
//
// The pathTemplate parameter, when provided, is added to the transaction as
// the template string used to match the route.
func TracingHandlerFunc(tracer ot.Tracer, pathTemplate string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		opts := []ot.StartSpanOption{
			ext.SpanKindRPCServer,
			ot.Tags{
				string(ext.PeerHostname): req.Host,
				string(ext.HTTPUrl):      req.URL.Path,
				string(ext.HTTPMethod):   req.Method,
			},
		}

		wireContext, err := tracer.Extract(ot.HTTPHeaders, ot.HTTPHeadersCarrier(req.Header))
		switch err {
		case nil:
			opts = append(opts, ext.RPCServerOption(wireContext))
		case ot.ErrSpanContextNotFound:
			Logger().Debug("no span context provided with ", req.Method, " ", req.URL.Path)
		case ot.ErrUnsupportedFormat:
			Logger().Info("unsupported span context format provided with ", req.Method, " ", req.URL.Path)
		default:
			Logger().Warn("failed to extract span context from the request: ", err)
		}

		if pathTemplate != "" && req.URL.Path != pathTemplate {
			opts = append(opts, ot.Tag{Key: tagPathTemplate, Value: pathTemplate})
		}

		span := tracer.StartSpan(OpHTTPServer, opts...)
		res := NewResponse(w)

		defer func() {
			// capture any kind of panic / error
			if err := recover(); err != nil {
				if e, ok := err.(error); ok {
					span.SetTag(tagHTTPError, e.Error())
					span.LogFields(otlog.Error(e))
				} else {
					span.SetTag(tagHTTPError, err)
					span.LogFields(otlog.Object("error", err))
				}

				span.SetTag(string(ext.HTTPStatusCode), http.StatusInternalServerError)

				res.Finish()
				span.Finish()

				// re-throw the panic
				panic(err)
			}

			if res.Status() > 0 {
				span.SetTag(string(ext.HTTPStatusCode), res.Status())
			}

			res.Finish()
			span.Finish()
		}()

		tracer.Inject(span.Context(), ot.HTTPHeaders, ot.HTTPHeadersCarrier(res.Header()))

		handler(res, req.WithContext(ContextWithTransaction(req.Context(), span)))
	}
}
