package childproc

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/ipmap/core/internal/ipc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpawnTimesOutWhenNothingConnects(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := Spawn(ctx, t.TempDir(), "/bin/sleep", ipc.Command{Kind: ipc.CommandStatus})
	// "/bin/sleep" rejects the encoded command and socket path Spawn passes
	// it and never dials the socket, so Spawn must time out rather than hang
	// waiting for a connection that never arrives.
	assert.ErrorIs(t, err, ErrChildTimeout)
}

func TestSpawnFailsWhenBinaryMissing(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := Spawn(ctx, t.TempDir(), "/no/such/binary", ipc.Command{Kind: ipc.CommandStatus})
	assert.Error(t, err)
}

func TestStopSucceedsAgainstAnAlreadyExitedProcess(t *testing.T) {
	server, err := ipc.NewServer(t.TempDir())
	require.NoError(t, err)

	acceptErrCh := make(chan error, 1)
	go func() {
		_, aerr := server.Accept()
		acceptErrCh <- aerr
	}()

	conn, err := ipc.Dial(server.Name)
	require.NoError(t, err)
	require.NoError(t, <-acceptErrCh)

	cmd := exec.Command("/bin/sleep", "0.05")
	require.NoError(t, cmd.Start())

	time.Sleep(100 * time.Millisecond)

	s := &Session{Conn: conn, cmd: cmd}
	assert.NoError(t, s.Stop())
}
