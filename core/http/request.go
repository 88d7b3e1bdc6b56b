package http

import "strings"

// Request is a parsed request line plus header section. It is built once per
// connection and read-only afterwards.
type Request struct {
	Method string
	Path   string
	Proto  string

	// Headers holds names as received; a repeated name keeps its last value.
	Headers map[string]string

	// folded indexes Headers by lower-cased name, last occurrence winning
	// across spellings.
	folded map[string]string
}

// SetHeader records a header, overwriting any earlier value for the same name
func (r *Request) SetHeader(name, value string) {
	if r.Headers == nil {
		r.Headers = make(map[string]string)
	}
	if r.folded == nil {
		r.folded = make(map[string]string)
	}

	r.Headers[name] = value
	r.folded[strings.ToLower(name)] = value
}

// Header looks a header up by exact name first, then case-insensitively
func (r *Request) Header(name string) (string, bool) {
	if v, ok := r.Headers[name]; ok {
		return v, true
	}
	v, ok := r.folded[strings.ToLower(name)]
	return v, ok
}
