package router

import (
	"io"
	"strings"

	"github.com/searchktools/scratch-server/core/files"
	"github.com/searchktools/scratch-server/core/http"
)

// HandlerFunc produces the response for a matched request. body is the
// connection positioned just after the header section.
type HandlerFunc func(req *http.Request, fsys files.FS, body io.Reader) *http.Response

// Route is one entry of a Table
type Route struct {
	// Name labels the route in logs and metrics
	Name string
	// Method restricts the route to one method; empty matches any
	Method string
	// Prefix the path must start with, or equal when Exact is set
	Prefix string
	Exact  bool
	// Header, when set, must be present on the request
	Header  string
	Handler HandlerFunc
}

// Matches reports whether the route applies to req
func (r *Route) Matches(req *http.Request) bool {
	if r.Method != "" && r.Method != req.Method {
		return false
	}
	if r.Exact {
		if req.Path != r.Prefix {
			return false
		}
	} else if !strings.HasPrefix(req.Path, r.Prefix) {
		return false
	}
	if r.Header != "" {
		if _, ok := req.Header(r.Header); !ok {
			return false
		}
	}
	return true
}

// NotFoundRoute answers requests no route matched
var NotFoundRoute = Route{
	Name: "not_found",
	Handler: func(*http.Request, files.FS, io.Reader) *http.Response {
		return http.NotFound()
	},
}

// Table is an ordered route list; the first matching route wins
type Table struct {
	routes []Route
}

// NewTable creates an empty table
func NewTable() *Table {
	return &Table{}
}

// Add appends a route. Routes added earlier take priority.
func (t *Table) Add(route Route) *Table {
	if route.Prefix == "" || route.Prefix[0] != '/' {
		panic("router: prefix must begin with '/'")
	}
	if route.Handler == nil {
		panic("router: nil handler for " + route.Name)
	}
	t.routes = append(t.routes, route)
	return t
}

// Find returns the first route matching req, or NotFoundRoute
func (t *Table) Find(req *http.Request) Route {
	for i := range t.routes {
		if t.routes[i].Matches(req) {
			return t.routes[i]
		}
	}
	return NotFoundRoute
}

// Dispatch runs the matching route. It never fails; every failure is mapped
// to a status.
func (t *Table) Dispatch(req *http.Request, fsys files.FS, body io.Reader) *http.Response {
	route := t.Find(req)
	return route.Handler(req, fsys, body)
}

// Routes returns a copy of the table's routes in priority order
func (t *Table) Routes() []Route {
	return append([]Route(nil), t.routes...)
}
