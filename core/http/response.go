package http

import (
	"io"
	"strconv"
)

// Status lines written by the server. 201 keeps its historical "OK" reason
// phrase; clients rely on the exact bytes.
const (
	StatusLineOK                  = "HTTP/1.1 200 OK"
	StatusLineCreated             = "HTTP/1.1 201 OK"
	StatusLineBadRequest          = "HTTP/1.1 400 Bad Request"
	StatusLineNotFound            = "HTTP/1.1 404 Not Found"
	StatusLineInternalServerError = "HTTP/1.1 500 Internal Server Error"
)

// HTTP header constants
const (
	HeaderContentType   = "Content-Type"
	HeaderContentLength = "Content-Length"
	HeaderUserAgent     = "User-Agent"

	ContentTypeText        = "text/plain"
	ContentTypeOctetStream = "application/octet-stream"
)

var crlf = []byte("\r\n")

// Header is a single response header line
type Header struct {
	Name  string
	Value string
}

// Response is a status line, ordered headers and an optional body
type Response struct {
	StatusLine string
	Headers    []Header
	Body       []byte
}

// Build serializes a response. Headers are written in order and the body
// verbatim; Content-Length is never added here.
func Build(statusLine string, headers []Header, body []byte) []byte {
	size := len(statusLine) + 2 + 2 + len(body)
	for _, h := range headers {
		size += len(h.Name) + 2 + len(h.Value) + 2
	}

	buf := make([]byte, 0, size)
	buf = append(buf, statusLine...)
	buf = append(buf, crlf...)
	for _, h := range headers {
		buf = append(buf, h.Name...)
		buf = append(buf, ": "...)
		buf = append(buf, h.Value...)
		buf = append(buf, crlf...)
	}
	buf = append(buf, crlf...)
	buf = append(buf, body...)

	return buf
}

// Bytes returns the wire form of the response
func (r *Response) Bytes() []byte {
	return Build(r.StatusLine, r.Headers, r.Body)
}

// WriteTo writes the wire form of the response to w
func (r *Response) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(r.Bytes())
	return int64(n), err
}

// Status returns the numeric status code from the status line, or 0
func (r *Response) Status() int {
	// "HTTP/1.1 " is 9 bytes; the code is the next 3.
	if len(r.StatusLine) < 12 {
		return 0
	}
	code, err := strconv.Atoi(r.StatusLine[9:12])
	if err != nil {
		return 0
	}
	return code
}

// Header returns the first header value with the given name
func (r *Response) Header(name string) (string, bool) {
	for _, h := range r.Headers {
		if h.Name == name {
			return h.Value, true
		}
	}
	return "", false
}

func empty(statusLine string) *Response {
	return &Response{StatusLine: statusLine}
}

// OK is a 200 with no headers and no body
func OK() *Response { return empty(StatusLineOK) }

// Created is a 201 with no headers and no body
func Created() *Response { return empty(StatusLineCreated) }

// NotFound is a 404 with no headers and no body
func NotFound() *Response { return empty(StatusLineNotFound) }

// BadRequest is a 400 with no headers and no body
func BadRequest() *Response { return empty(StatusLineBadRequest) }

// InternalServerError is a 500 with no headers and no body
func InternalServerError() *Response { return empty(StatusLineInternalServerError) }

// Text is a 200 text/plain response
func Text(body string) *Response {
	return withBody(ContentTypeText, []byte(body))
}

// OctetStream is a 200 application/octet-stream response
func OctetStream(data []byte) *Response {
	return withBody(ContentTypeOctetStream, data)
}

func withBody(contentType string, body []byte) *Response {
	return &Response{
		StatusLine: StatusLineOK,
		Headers: []Header{
			{Name: HeaderContentType, Value: contentType},
			{Name: HeaderContentLength, Value: strconv.Itoa(len(body))},
		},
		Body: body,
	}
}
