package router

import (
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/searchktools/scratch-server/core/files"
	"github.com/searchktools/scratch-server/core/http"
	"github.com/searchktools/scratch-server/core/pools"
)

// echoPrefixLen is len("/echo/"); the echoed text starts after it.
const echoPrefixLen = 6

// Default returns the server's route table. Handlers log to logger, or to
// slog.Default() when it is nil.
func Default(logger *slog.Logger) *Table {
	if logger == nil {
		logger = slog.Default()
	}
	return NewTable().
		Add(Route{Name: "root", Prefix: "/", Exact: true, Handler: Root}).
		Add(Route{Name: "user_agent", Prefix: "/user-agent", Header: http.HeaderUserAgent, Handler: UserAgent}).
		Add(Route{Name: "echo", Prefix: "/echo", Handler: Echo}).
		Add(Route{Name: "files_get", Method: "GET", Prefix: "/files/", Handler: GetFile}).
		Add(Route{Name: "files_post", Method: "POST", Prefix: "/files/", Handler: PostFile(logger, pools.DefaultBodyPool())})
}

var defaultTable = Default(nil)

// Dispatch routes req through the default table
func Dispatch(req *http.Request, fsys files.FS, body io.Reader) *http.Response {
	return defaultTable.Dispatch(req, fsys, body)
}

// FileName returns the last '/'-delimited segment of path
func FileName(path string) string {
	return path[strings.LastIndexByte(path, '/')+1:]
}

// Root answers the ping on "/"
func Root(*http.Request, files.FS, io.Reader) *http.Response {
	return http.OK()
}

// UserAgent echoes the User-Agent header
func UserAgent(req *http.Request, _ files.FS, _ io.Reader) *http.Response {
	ua, _ := req.Header(http.HeaderUserAgent)
	return http.Text(ua)
}

// Echo returns everything after "/echo/"
func Echo(req *http.Request, _ files.FS, _ io.Reader) *http.Response {
	if len(req.Path) <= echoPrefixLen {
		return http.Text("")
	}
	return http.Text(req.Path[echoPrefixLen:])
}

// GetFile serves a file from the base directory
func GetFile(req *http.Request, fsys files.FS, _ io.Reader) *http.Response {
	data, err := fsys.ReadFile(FileName(req.Path))
	if err != nil {
		return http.NotFound()
	}
	return http.OctetStream(data)
}

// PostFile returns the handler that stores exactly Content-Length body bytes
// under the base directory. Lengths above bodies.Max() are refused before
// any body byte is read.
func PostFile(logger *slog.Logger, bodies *pools.BodyPool) HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(req *http.Request, fsys files.FS, body io.Reader) *http.Response {
		raw, ok := req.Header(http.HeaderContentLength)
		if !ok {
			return http.BadRequest()
		}
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return http.BadRequest()
		}

		buf, err := bodies.Get(n)
		if err != nil {
			logger.Debug("refusing request body", "path", req.Path, "content_length", raw, "error", err)
			return http.BadRequest()
		}
		defer bodies.Put(buf)

		if _, err := io.ReadFull(body, buf); err != nil {
			logger.Debug("short request body", "path", req.Path, "want", n, "error", err)
			return http.BadRequest()
		}

		name := FileName(req.Path)
		if err := fsys.WriteFile(name, buf); err != nil {
			logger.Error("writing file failed", "file", name, "error", err)
			return http.InternalServerError()
		}

		return http.Created()
	}
}
