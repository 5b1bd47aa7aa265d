package childproc

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	agderrors "github.com/AdguardTeam/golibs/errors"
	"github.com/ipmap/core/internal/ipc"
)

// connectionTimeout bounds how long the parent waits for the child to
// connect and send its initial Connected response before giving up and
// killing it.
const connectionTimeout = 200 * time.Millisecond

// ErrChildTimeout is returned by [Spawn] when the child doesn't connect
// within [connectionTimeout].
const ErrChildTimeout agderrors.Error = "childproc: child did not connect in time"

// ErrEstablishConnection is returned by [Spawn] when the child's first
// message is not Connected.
const ErrEstablishConnection agderrors.Error = "childproc: unexpected first response from child"

// Session is a running child process with its IPC channel established.
type Session struct {
	Conn *ipc.Conn

	cmd *exec.Cmd
}

// Spawn starts the binary at path with command encoded on its command line
// alongside the fresh one-shot channel's handle, waiting up to
// connectionTimeout for the child to connect and report Connected. On any
// failure the child is killed before returning.
func Spawn(ctx context.Context, socketDir, path string, command ipc.Command) (s *Session, err error) {
	server, err := ipc.NewServer(socketDir)
	if err != nil {
		return nil, fmt.Errorf("childproc: creating channel: %w", err)
	}

	encodedCmd, err := ipc.EncodeCommand(command)
	if err != nil {
		return nil, fmt.Errorf("childproc: encoding command: %w", err)
	}

	proc := exec.CommandContext(ctx, path, encodedCmd, server.Name)

	if err = proc.Start(); err != nil {
		return nil, fmt.Errorf("childproc: starting %s: %w", path, err)
	}

	type acceptResult struct {
		conn *ipc.Conn
		err  error
	}

	acceptCh := make(chan acceptResult, 1)
	go func() {
		conn, aerr := server.Accept()
		acceptCh <- acceptResult{conn, aerr}
	}()

	select {
	case res := <-acceptCh:
		if res.err != nil {
			_ = proc.Process.Kill()

			return nil, fmt.Errorf("childproc: accepting connection: %w", res.err)
		}

		first, rerr := res.conn.RecvResponse()
		if rerr != nil || first.Kind != ipc.ResponseConnected {
			_ = res.conn.Close()
			_ = proc.Process.Kill()

			if rerr != nil {
				return nil, fmt.Errorf("%w: %w", ErrEstablishConnection, rerr)
			}

			return nil, ErrEstablishConnection
		}

		return &Session{Conn: res.conn, cmd: proc}, nil

	case <-time.After(connectionTimeout):
		_ = proc.Process.Kill()

		return nil, ErrChildTimeout
	}
}

// Stop kills the child and waits for it to exit, reclaiming its resources
// deterministically instead of leaving it to the OS.
func (s *Session) Stop() (err error) {
	_ = s.Conn.Close()
	_ = s.cmd.Process.Kill()
	_ = s.cmd.Wait()

	return nil
}
