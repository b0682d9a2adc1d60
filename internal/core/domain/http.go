package domain

import "net/http"

// HTTPRequest is the transport-neutral outbound request.
type HTTPRequest struct {
	Method          string
	URL             string
	Header          http.Header
	Body            []byte
	ProtocolVersion string // "1.0" or "1.1"; empty means "1.1"
}

// HTTPResponse is the transport-neutral response. Body is fully read.
type HTTPResponse struct {
	StatusCode   int
	ReasonPhrase string
	Header       http.Header
	Body         []byte
}
