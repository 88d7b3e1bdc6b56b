package http

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	// MaxHeaderLines bounds the header section, request line included
	MaxHeaderLines = 100
	// MaxHeaderBytes bounds the header section in bytes, terminators included
	MaxHeaderBytes = 16 << 10
)

var (
	ErrMissingRequestLine   = errors.New("http: missing request line")
	ErrMalformedRequestLine = errors.New("http: malformed request line")
	ErrMalformedHeader      = errors.New("http: malformed header")
	ErrHeaderTooLarge       = errors.New("http: header section too large")
)

// Parse builds a Request from the lines of a header section. The lines must
// already be split on their terminators, and the trailing blank line and any
// body must be excluded.
//
// Method and path are taken as-is; nothing is validated or decoded.
func Parse(lines []string) (*Request, error) {
	if len(lines) == 0 {
		return nil, ErrMissingRequestLine
	}

	fields := strings.Fields(lines[0])
	if len(fields) < 2 {
		return nil, fmt.Errorf("%w: %q", ErrMalformedRequestLine, lines[0])
	}

	req := &Request{
		Method:  fields[0],
		Path:    fields[1],
		Headers: make(map[string]string, len(lines)-1),
		folded:  make(map[string]string, len(lines)-1),
	}
	if len(fields) > 2 {
		req.Proto = fields[2]
	}

	for _, line := range lines[1:] {
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrMalformedHeader, line)
		}
		req.SetHeader(name, strings.TrimSpace(value))
	}

	return req, nil
}

// ReadHeaderLines reads lines up to the blank line that ends the header
// section, leaving br positioned at the first body byte. Lines may end in
// CRLF or a bare LF. It returns io.EOF when the peer closed without sending
// anything, and ErrHeaderTooLarge once the section passes MaxHeaderLines
// lines or MaxHeaderBytes bytes.
func ReadHeaderLines(br *bufio.Reader) ([]string, error) {
	var (
		lines []string
		used  int
	)
	for {
		line, n, err := readLine(br, MaxHeaderBytes-used)
		used += n
		if err != nil {
			if errors.Is(err, ErrHeaderTooLarge) {
				return lines, err
			}
			if errors.Is(err, io.EOF) && len(lines) == 0 && n == 0 {
				return nil, io.EOF
			}
			return lines, fmt.Errorf("http: reading header section: %w", err)
		}
		if line == "" {
			return lines, nil
		}
		if len(lines) == MaxHeaderLines {
			return lines, ErrHeaderTooLarge
		}
		lines = append(lines, line)
	}
}

// readLine reads one line and strips its terminator. n counts the bytes
// consumed. More than limit bytes without a newline is ErrHeaderTooLarge.
func readLine(br *bufio.Reader, limit int) (string, int, error) {
	var (
		buf []byte
		n   int
	)
	for {
		chunk, err := br.ReadSlice('\n')
		n += len(chunk)
		if n > limit {
			return "", n, ErrHeaderTooLarge
		}
		buf = append(buf, chunk...)

		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if err != nil {
			return "", n, err
		}
		break
	}

	buf = bytes.TrimSuffix(buf, []byte("\n"))
	buf = bytes.TrimSuffix(buf, []byte("\r"))
	return string(buf), n, nil
}
