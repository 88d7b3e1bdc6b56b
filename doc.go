/*
Package scratchserver is a small HTTP/1.1 server built directly on TCP.

It accepts connections on 127.0.0.1:4221, serves exactly one request per
connection and closes it. Connections are handed to a fixed pool of worker
goroutines through an unbounded queue, so at most N requests are handled at
once no matter how many clients connect.

Routes

  - GET /               200 with an empty body
  - GET /echo/{text}    200 text/plain echoing {text}
  - GET /user-agent     200 text/plain echoing the User-Agent header
  - GET /files/{name}   200 application/octet-stream with the file, or 404
  - POST /files/{name}  201 after writing exactly Content-Length body bytes

Anything else is a 404. Malformed requests and POSTs without a usable
Content-Length get a 400.

Quick Start

    scratch-server --directory /tmp/files
    curl -v http://127.0.0.1:4221/echo/hello

Modules

  - app: Process lifecycle, signals and graceful shutdown
  - config: Flag and environment configuration
  - core: Acceptor and per-connection handling
  - core/http: Request parser and response builder
  - core/router: Ordered route table and the built-in routes
  - core/files: Filesystem access under the base directory
  - core/pools: Worker pool and body buffer pool
  - core/observability: Request monitor, OpenTelemetry setup and logging
*/
package scratchserver
