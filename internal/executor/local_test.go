package executor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/petrijr/flume/pkg/api"
)

func newExecContext(t *testing.T, script string) *api.ExecContext {
	t.Helper()
	return &api.ExecContext{
		InvocationID: uuid.NewString(),
		Process:      "test",
		WorkDir:      filepath.Join(t.TempDir(), "work"),
		Script:       script,
	}
}

func runTask(t *testing.T, l *Local, ec *api.ExecContext) *api.TaskResult {
	t.Helper()
	ctx := context.Background()

	h, err := l.Submit(ctx, ec)
	require.NoError(t, err)

	res, err := l.Await(ctx, h)
	require.NoError(t, err)
	return res
}

func TestLocal_RunScript(t *testing.T) {
	l := NewLocal(2)
	defer l.Close()

	res := runTask(t, l, newExecContext(t, `echo hello world`))
	require.Equal(t, 0, res.ExitStatus)
	require.Equal(t, "hello world\n", res.Stdout)
}

func TestLocal_ExitStatusAndStderr(t *testing.T) {
	l := NewLocal(1)
	defer l.Close()

	res := runTask(t, l, newExecContext(t, "echo oops >&2\nexit 3"))
	require.Equal(t, 3, res.ExitStatus)
	require.Equal(t, "oops\n", res.Stderr)
}

func TestLocal_EnvAndStdin(t *testing.T) {
	l := NewLocal(1)
	defer l.Close()

	ec := newExecContext(t, `printf '%s:' "$SAMPLE"; cat`)
	ec.Env = map[string]string{"SAMPLE": "s1"}
	ec.Stdin = "from-stdin"

	res := runTask(t, l, ec)
	require.Equal(t, 0, res.ExitStatus)
	require.Equal(t, "s1:from-stdin", res.Stdout)
}

func TestLocal_StagesFiles(t *testing.T) {
	l := NewLocal(1)
	defer l.Close()

	src := filepath.Join(t.TempDir(), "orig.txt")
	require.NoError(t, os.WriteFile(src, []byte("payload"), 0o644))

	ec := newExecContext(t, `cat staged.txt`)
	ec.Files = []api.StagedFile{{Source: src, Name: "staged.txt"}}

	res := runTask(t, l, ec)
	require.Equal(t, 0, res.ExitStatus)
	require.Equal(t, "payload", res.Stdout)
}

func TestLocal_Cancel(t *testing.T) {
	l := NewLocal(1)
	defer l.Close()

	ec := newExecContext(t, `sleep 30`)
	h, err := l.Submit(context.Background(), ec)
	require.NoError(t, err)

	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = l.Cancel(h)
	}()

	awaitCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	res, err := l.Await(awaitCtx, h)
	require.NoError(t, err)
	// A killed task reports a non-zero status.
	require.NotEqual(t, 0, res.ExitStatus)
}

func TestLocal_RejectsNativeBodies(t *testing.T) {
	l := NewLocal(1)
	defer l.Close()

	ec := newExecContext(t, "")
	ec.Native = func(ctx context.Context, scope *api.TaskScope) error { return nil }

	_, err := l.Submit(context.Background(), ec)
	require.Error(t, err)
}

func TestLocal_BoundedConcurrency(t *testing.T) {
	l := NewLocal(4)
	defer l.Close()

	handles := make([]api.TaskHandle, 0, 8)
	for i := 0; i < 8; i++ {
		h, err := l.Submit(context.Background(), newExecContext(t, `echo ok`))
		require.NoError(t, err)
		handles = append(handles, h)
	}

	for _, h := range handles {
		res, err := l.Await(context.Background(), h)
		require.NoError(t, err)
		require.Equal(t, 0, res.ExitStatus)
	}
}
