package backend

import (
	"fmt"
	"net/http"
)

// TransportError reports that a request never produced an HTTP response:
// the backend was unreachable, the connection broke, or the context ended.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("backend: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ServerError reports a response the client cannot treat as success: a
// non-2xx status, an undecodable body, or an explicit error status in the body.
type ServerError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *ServerError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("backend: %s: status %d: %s", e.Op, e.StatusCode, msg)
}
