package kubo

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// HTTPError is a non-2xx response from the daemon.
type HTTPError struct {
	Command    string
	StatusCode int
	// Message and Code come from the daemon's JSON error body, when it sent one.
	Message string
	Code    int
	Body    []byte
}

func (e *HTTPError) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := e.Message
	if msg == "" {
		msg = string(e.Body)
	}
	return fmt.Sprintf("ipfs %s: status %d: %s", e.Command, e.StatusCode, msg)
}

// NotFound reports whether the daemon answered 404, which it does for
// unknown commands rather than unknown objects.
func (e *HTTPError) NotFound() bool {
	return e != nil && e.StatusCode == http.StatusNotFound
}

func newHTTPError(command string, status int, body []byte) *HTTPError {
	e := &HTTPError{Command: command, StatusCode: status, Body: body}
	var kerr struct {
		Message string `json:"Message"`
		Code    int    `json:"Code"`
	}
	if json.Unmarshal(body, &kerr) == nil {
		e.Message = kerr.Message
		e.Code = kerr.Code
	}
	return e
}

// StreamError is reported by the daemon in the X-Stream-Error trailer when a
// streamed response fails after the status line was sent.
type StreamError struct {
	Command string
	Message string
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("ipfs %s: stream error: %s", e.Command, e.Message)
}
