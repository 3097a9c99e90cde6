// (c) Copyright Spanlight Inc. 2022

package spanlight

const (
	// OpMiddleware is the operation name assigned to middleware execution spans.
	OpMiddleware = "middleware"
	// OpHTTPServer is the operation name assigned to HTTP entry spans.
	OpHTTPServer = "http.server"

	tagMiddlewareName = "middleware.name"
	tagPathTemplate   = "http.path_tpl"
	tagHTTPError      = "http.error"
)
