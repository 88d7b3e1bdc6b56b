package http

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuild(t *testing.T) {
	got := Build(StatusLineOK, []Header{
		{Name: "Content-Type", Value: "text/plain"},
		{Name: "Content-Length", Value: "3"},
	}, []byte("abc"))

	assert.Equal(t, "HTTP/1.1 200 OK\r\nContent-Type: text/plain\r\nContent-Length: 3\r\n\r\nabc", string(got))
}

func TestBuild_NoHeadersNoBody(t *testing.T) {
	assert.Equal(t, "HTTP/1.1 404 Not Found\r\n\r\n", string(Build(StatusLineNotFound, nil, nil)))
}

func TestBuild_DoesNotComputeContentLength(t *testing.T) {
	got := Build(StatusLineOK, nil, []byte("body"))
	assert.Equal(t, "HTTP/1.1 200 OK\r\n\r\nbody", string(got))
}

func TestEmptyResponses(t *testing.T) {
	tests := []struct {
		resp *Response
		want string
		code int
	}{
		{OK(), "HTTP/1.1 200 OK\r\n\r\n", 200},
		{Created(), "HTTP/1.1 201 OK\r\n\r\n", 201},
		{BadRequest(), "HTTP/1.1 400 Bad Request\r\n\r\n", 400},
		{NotFound(), "HTTP/1.1 404 Not Found\r\n\r\n", 404},
		{InternalServerError(), "HTTP/1.1 500 Internal Server Error\r\n\r\n", 500},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, string(tt.resp.Bytes()))
		assert.Equal(t, tt.code, tt.resp.Status())
	}
}

func TestText(t *testing.T) {
	resp := Text("héllo")

	cl, ok := resp.Header(HeaderContentLength)
	require.True(t, ok)
	assert.Equal(t, "6", cl, "content length counts bytes, not runes")
	assert.Equal(t, "HTTP/1.1 200 OK\r\nContent-Type: text/plain\r\nContent-Length: 6\r\n\r\nhéllo", string(resp.Bytes()))
}

func TestOctetStream(t *testing.T) {
	resp := OctetStream([]byte{0, 1, 2})

	ct, _ := resp.Header(HeaderContentType)
	cl, _ := resp.Header(HeaderContentLength)
	assert.Equal(t, ContentTypeOctetStream, ct)
	assert.Equal(t, "3", cl)
	assert.Equal(t, []byte{0, 1, 2}, resp.Body)
}

func TestResponse_WriteTo(t *testing.T) {
	var buf bytes.Buffer

	n, err := Text("abc").WriteTo(&buf)
	require.NoError(t, err)
	assert.Equal(t, int64(buf.Len()), n)
	assert.Equal(t, "HTTP/1.1 200 OK\r\nContent-Type: text/plain\r\nContent-Length: 3\r\n\r\nabc", buf.String())
}
