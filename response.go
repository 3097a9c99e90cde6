// (c) Copyright Spanlight Inc. 2022

package spanlight

import (
	"bufio"
	"net"
	"net/http"
	"sync"
)

// FinishNotifier is implemented by response writers that can report request
// completion to interested listeners.
type FinishNotifier interface {
	// OnFinish registers a listener to be called once the request has been
	// served. Listeners registered after completion are called immediately.
	OnFinish(fn func())
}

// Response is a wrapper over http.ResponseWriter to spy the returned status
// code and to notify listeners once the request has been served. The finish
// event fires at most once, no matter how many times the host signals
// completion.
type Response struct {
	http.ResponseWriter

	mu        sync.Mutex
	status    int
	finished  bool
	listeners []func()
}

// NewResponse wraps w. If w is already a *Response, it is returned as is.
func NewResponse(w http.ResponseWriter) *Response {
	if res, ok := w.(*Response); ok {
		return res
	}

	return &Response{ResponseWriter: w}
}

func (res *Response) WriteHeader(status int) {
	res.setStatus(status)
	res.ResponseWriter.WriteHeader(status)
}

func (res *Response) Write(b []byte) (int, error) {
	res.mu.Lock()
	if res.status == 0 {
		res.status = http.StatusOK
	}
	res.mu.Unlock()

	return res.ResponseWriter.Write(b)
}

// Status returns the status code sent to the client, or 0 if the header has
// not been written yet.
func (res *Response) Status() int {
	res.mu.Lock()
	defer res.mu.Unlock()

	return res.status
}

// OnFinish implements FinishNotifier.
func (res *Response) OnFinish(fn func()) {
	res.mu.Lock()
	if res.finished {
		res.mu.Unlock()
		fn()
		return
	}

	res.listeners = append(res.listeners, fn)
	res.mu.Unlock()
}

// Finish fires the finish event, notifying the registered listeners in
// registration order. Repeated calls are no-ops.
func (res *Response) Finish() {
	res.mu.Lock()
	if res.finished {
		res.mu.Unlock()
		return
	}

	res.finished = true
	listeners := res.listeners
	res.listeners = nil
	res.mu.Unlock()

	for _, fn := range listeners {
		fn()
	}
}

// Flush forwards the flush request to the underlying writer, if supported.
func (res *Response) Flush() {
	if f, ok := res.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack forwards to the underlying writer's http.Hijacker implementation, if any.
func (res *Response) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hj, ok := res.ResponseWriter.(http.Hijacker); ok {
		return hj.Hijack()
	}

	return nil, nil, http.ErrNotSupported
}

func (res *Response) setStatus(status int) {
	res.mu.Lock()
	defer res.mu.Unlock()

	res.status = status
}
