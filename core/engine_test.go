package core

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/nettest"
)

func startEngine(t *testing.T, workers int) (*Engine, string, string) {
	t.Helper()

	dir := t.TempDir()
	e, err := NewEngine(EngineConfig{BaseDir: dir, Workers: workers})
	require.NoError(t, err)

	ln, err := nettest.NewLocalListener("tcp")
	require.NoError(t, err)

	served := make(chan error, 1)
	go func() { served <- e.Serve(ln) }()

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		assert.NoError(t, e.Shutdown(ctx))
		assert.NoError(t, <-served)
	})

	return e, ln.Addr().String(), dir
}

// roundTrip sends raw on a fresh connection and returns everything the server
// writes before closing it
func roundTrip(t *testing.T, addr, raw string) string {
	t.Helper()

	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))

	_, err = io.WriteString(conn, raw)
	require.NoError(t, err)

	resp, err := io.ReadAll(conn)
	require.NoError(t, err)
	return string(resp)
}

func TestEngine_Root(t *testing.T) {
	_, addr, _ := startEngine(t, 2)

	assert.Equal(t, "HTTP/1.1 200 OK\r\n\r\n", roundTrip(t, addr, "GET / HTTP/1.1\r\nHost: localhost:4221\r\n\r\n"))
}

func TestEngine_Echo(t *testing.T) {
	_, addr, _ := startEngine(t, 2)

	got := roundTrip(t, addr, "GET /echo/abc HTTP/1.1\r\nHost: x\r\n\r\n")
	assert.Equal(t, "HTTP/1.1 200 OK\r\nContent-Type: text/plain\r\nContent-Length: 3\r\n\r\nabc", got)
}

func TestEngine_UserAgent(t *testing.T) {
	_, addr, _ := startEngine(t, 2)

	got := roundTrip(t, addr, "GET /user-agent HTTP/1.1\r\nHost: x\r\nUser-Agent: foo/1.0\r\n\r\n")
	assert.Equal(t, "HTTP/1.1 200 OK\r\nContent-Type: text/plain\r\nContent-Length: 7\r\n\r\nfoo/1.0", got)
}

func TestEngine_NotFound(t *testing.T) {
	_, addr, _ := startEngine(t, 2)

	assert.Equal(t, "HTTP/1.1 404 Not Found\r\n\r\n", roundTrip(t, addr, "GET /nowhere HTTP/1.1\r\n\r\n"))
	assert.Equal(t, "HTTP/1.1 404 Not Found\r\n\r\n", roundTrip(t, addr, "GET /files/missing.txt HTTP/1.1\r\n\r\n"))
}

func TestEngine_PostThenGetFile(t *testing.T) {
	_, addr, dir := startEngine(t, 2)

	got := roundTrip(t, addr, "POST /files/new.txt HTTP/1.1\r\nContent-Length: 5\r\nContent-Type: application/octet-stream\r\n\r\nhello")
	assert.Equal(t, "HTTP/1.1 201 OK\r\n\r\n", got)

	onDisk, err := os.ReadFile(filepath.Join(dir, "new.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(onDisk))

	got = roundTrip(t, addr, "GET /files/new.txt HTTP/1.1\r\n\r\n")
	assert.Equal(t, "HTTP/1.1 200 OK\r\nContent-Type: application/octet-stream\r\nContent-Length: 5\r\n\r\nhello", got)
}

func TestEngine_PostWithoutContentLength(t *testing.T) {
	_, addr, dir := startEngine(t, 2)

	got := roundTrip(t, addr, "POST /files/x.txt HTTP/1.1\r\nHost: x\r\n\r\n")
	assert.Equal(t, "HTTP/1.1 400 Bad Request\r\n\r\n", got)

	_, err := os.Stat(filepath.Join(dir, "x.txt"))
	assert.True(t, os.IsNotExist(err))
}

func TestEngine_PostOversizedContentLength(t *testing.T) {
	e, addr, dir := startEngine(t, 1)

	for _, length := range []string{"9223372036854775807", "1099511627776", "8388609"} {
		got := roundTrip(t, addr, "POST /files/big HTTP/1.1\r\nContent-Length: "+length+"\r\n\r\n")
		assert.Equal(t, "HTTP/1.1 400 Bad Request\r\n\r\n", got, length)
	}

	_, err := os.Stat(filepath.Join(dir, "big"))
	assert.True(t, os.IsNotExist(err))
	assert.Zero(t, e.PoolStats().TasksPanicked)

	// the single worker is still serving
	assert.Equal(t, "HTTP/1.1 200 OK\r\n\r\n", roundTrip(t, addr, "GET / HTTP/1.1\r\n\r\n"))
}

func TestEngine_MalformedRequests(t *testing.T) {
	_, addr, _ := startEngine(t, 2)

	for _, raw := range []string{
		"GARBAGE\r\n\r\n",
		"GET / HTTP/1.1\r\nBadHeader\r\n\r\n",
		"\r\n",
	} {
		assert.Equal(t, "HTTP/1.1 400 Bad Request\r\n\r\n", roundTrip(t, addr, raw), "%q", raw)
	}
}

func TestEngine_SilentClose(t *testing.T) {
	e, addr, _ := startEngine(t, 1)

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	// The worker must still be alive for the next client.
	assert.Equal(t, "HTTP/1.1 200 OK\r\n\r\n", roundTrip(t, addr, "GET / HTTP/1.1\r\n\r\n"))

	require.Eventually(t, func() bool {
		return e.PoolStats().TasksCompleted == 2
	}, 5*time.Second, 10*time.Millisecond)
}

func TestEngine_ConcurrentClients(t *testing.T) {
	e, addr, _ := startEngine(t, 3)

	const clients = 40
	var wg sync.WaitGroup
	for i := 0; i < clients; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			want := fmt.Sprintf("client-%d", i)
			got := roundTrip(t, addr, "GET /echo/"+want+" HTTP/1.1\r\n\r\n")
			assert.True(t, strings.HasSuffix(got, "\r\n\r\n"+want), got)
		}(i)
	}
	wg.Wait()

	require.Eventually(t, func() bool {
		snap, ok := e.Monitor().Route("echo")
		return ok && snap.Count == clients
	}, 5*time.Second, 10*time.Millisecond)

	stats := e.PoolStats()
	assert.Equal(t, 3, stats.NumWorkers)
	assert.Equal(t, uint64(clients), stats.TasksSubmitted)
}

func TestEngine_MonitorLabelsRoutes(t *testing.T) {
	e, addr, _ := startEngine(t, 1)

	roundTrip(t, addr, "GET / HTTP/1.1\r\n\r\n")
	roundTrip(t, addr, "GET /missing HTTP/1.1\r\n\r\n")
	roundTrip(t, addr, "nonsense\r\n\r\n")

	require.Eventually(t, func() bool {
		requests, _ := e.Monitor().Totals()
		return requests == 3
	}, 5*time.Second, 10*time.Millisecond)

	for _, name := range []string{"root", "not_found", routeBadRequest} {
		snap, ok := e.Monitor().Route(name)
		require.True(t, ok, name)
		assert.Equal(t, uint64(1), snap.Count, name)
	}
	_, errs := e.Monitor().Totals()
	assert.Equal(t, uint64(2), errs)
}

func TestEngine_ShutdownStopsServing(t *testing.T) {
	e, err := NewEngine(EngineConfig{BaseDir: t.TempDir(), Workers: 1})
	require.NoError(t, err)

	ln, err := nettest.NewLocalListener("tcp")
	require.NoError(t, err)

	served := make(chan error, 1)
	go func() { served <- e.Serve(ln) }()

	assert.Equal(t, "HTTP/1.1 200 OK\r\n\r\n", roundTrip(t, ln.Addr().String(), "GET / HTTP/1.1\r\n\r\n"))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, e.Shutdown(ctx))

	select {
	case err := <-served:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after Shutdown")
	}

	_, err = net.DialTimeout("tcp", ln.Addr().String(), time.Second)
	assert.Error(t, err)

	ln2, err := nettest.NewLocalListener("tcp")
	require.NoError(t, err)
	assert.ErrorIs(t, e.Serve(ln2), ErrServerClosed)
}

func TestEngine_Listen(t *testing.T) {
	e, err := NewEngine(EngineConfig{Addr: "127.0.0.1:0", Workers: 1})
	require.NoError(t, err)
	defer e.Shutdown(context.Background())

	ln, err := e.Listen(context.Background())
	require.NoError(t, err)
	defer ln.Close()

	assert.Equal(t, "127.0.0.1", ln.Addr().(*net.TCPAddr).IP.String())
}

func TestNewEngine_Defaults(t *testing.T) {
	e, err := NewEngine(EngineConfig{Workers: 1})
	require.NoError(t, err)
	defer e.Shutdown(context.Background())

	assert.Equal(t, DefaultAddr, e.Addr())
}

func TestNewEngine_RejectsZeroWorkers(t *testing.T) {
	_, err := NewEngine(EngineConfig{Workers: 0})
	assert.ErrorIs(t, err, ErrInvalidWorkers)
}
