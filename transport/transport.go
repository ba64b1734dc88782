// Package transport implements the two unidirectional Unix-domain-socket
// endpoints that together form a session's transport pair: the command
// stream (manager→runner) and the response stream (runner→manager).
//
// The manager is always the listener (server) end of both sockets; the
// runner is always the dialer (client) end. Endpoint paths are derived from
// a random token, unique per spawn, so concurrent sessions never collide.
package transport

import (
	"fmt"
	"net"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// MinBufferSize is the minimum socket buffer size required on each endpoint
// to absorb bursts of event frames without blocking the hosted service.
const MinBufferSize = 4 * 1024 * 1024

// Pair is the pair of socket paths that identify one manager/runner session.
type Pair struct {
	CommandPath  string
	ResponsePath string
}

// NewPair generates a fresh, collision-resistant pair of endpoint paths
// under dir (the OS temp directory if dir is empty).
func NewPair(dir string) (Pair, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	token := uuid.NewString()[:8]
	return Pair{
		CommandPath:  filepath.Join(dir, fmt.Sprintf("bridgerpc-cmd-%s.sock", token)),
		ResponsePath: filepath.Join(dir, fmt.Sprintf("bridgerpc-resp-%s.sock", token)),
	}, nil
}

// Listen creates a listening Unix socket at path, removing any stale socket
// file left behind by a prior crashed session at the same path.
func Listen(path string) (net.Listener, error) {
	_ = os.Remove(path)
	return net.Listen("unix", path)
}

// Dial connects to a listening Unix socket as the client end.
func Dial(path string) (*net.UnixConn, error) {
	conn, err := net.Dial("unix", path)
	if err != nil {
		return nil, err
	}
	uc := conn.(*net.UnixConn)
	setBuffers(uc)
	return uc, nil
}

// AsUnixConn raises an accepted connection's buffers to MinBufferSize and
// returns it as a *net.UnixConn.
func AsUnixConn(c net.Conn) (*net.UnixConn, error) {
	uc, ok := c.(*net.UnixConn)
	if !ok {
		return nil, fmt.Errorf("transport: expected a unix socket connection, got %T", c)
	}
	setBuffers(uc)
	return uc, nil
}

func setBuffers(c *net.UnixConn) {
	// Best-effort: some platforms cap these below MinBufferSize. A failure
	// here is not fatal — it only narrows the burst the OS buffer absorbs
	// before a writer blocks.
	_ = c.SetReadBuffer(MinBufferSize)
	_ = c.SetWriteBuffer(MinBufferSize)
}
