package ipc

import (
	"fmt"
	"net"
	"os"
	"path/filepath"

	"github.com/vmihailenco/msgpack/v5"
)

// Conn wraps one end of a connected channel, framing each [Response] as a
// single msgpack value. msgpack's encoding is self-delimiting on the wire,
// so no additional length prefix is needed. The initial [Command] travels
// on the child's command line instead (see [EncodeCommand]), not over Conn.
type Conn struct {
	nc  net.Conn
	enc *msgpack.Encoder
	dec *msgpack.Decoder
}

func newConn(nc net.Conn) (c *Conn) {
	return &Conn{nc: nc, enc: msgpack.NewEncoder(nc), dec: msgpack.NewDecoder(nc)}
}

// Close closes the underlying connection.
func (c *Conn) Close() (err error) {
	return c.nc.Close()
}

// SendResponse writes resp to the peer.
func (c *Conn) SendResponse(resp Response) (err error) {
	if err = c.enc.Encode(resp); err != nil {
		return fmt.Errorf("ipc: sending response: %w", err)
	}

	return nil
}

// RecvResponse reads the next [Response] from the peer.
func (c *Conn) RecvResponse() (resp Response, err error) {
	if err = c.dec.Decode(&resp); err != nil {
		return resp, fmt.Errorf("ipc: receiving response: %w", err)
	}

	return resp, nil
}

// Server is a one-shot local channel endpoint: it accepts exactly one
// connection and then stops listening, mirroring the parent side of the
// original named-pipe/one-shot-socket primitive.
type Server struct {
	l    net.Listener
	Name string
}

// NewServer creates a one-shot server bound to a fresh Unix-domain socket
// under dir, returning its name for the child to connect to.
func NewServer(dir string) (s *Server, err error) {
	name := filepath.Join(dir, fmt.Sprintf("ipmap-%d.sock", os.Getpid()))

	_ = os.Remove(name)

	l, err := net.Listen("unix", name)
	if err != nil {
		return nil, fmt.Errorf("ipc: listening on %s: %w", name, err)
	}

	return &Server{l: l, Name: name}, nil
}

// Accept blocks for the one connection this server will ever receive, then
// closes the listener (and removes the socket file) regardless of outcome.
func (s *Server) Accept() (c *Conn, err error) {
	defer func() {
		_ = s.l.Close()
		_ = os.Remove(s.Name)
	}()

	nc, err := s.l.Accept()
	if err != nil {
		return nil, fmt.Errorf("ipc: accepting connection: %w", err)
	}

	return newConn(nc), nil
}

// Dial connects to a [Server] by name, as the child does on startup.
func Dial(name string) (c *Conn, err error) {
	nc, err := net.Dial("unix", name)
	if err != nil {
		return nil, fmt.Errorf("ipc: dialing %s: %w", name, err)
	}

	return newConn(nc), nil
}
