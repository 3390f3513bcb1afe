// Package executor provides the default local execution backend and the
// work-dir staging shared with in-process task bodies. Remote backends
// (grid schedulers, cloud runners) implement the same api.Executor contract
// elsewhere.
package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/petrijr/flume/pkg/api"
)

const scriptFileName = ".command.sh"

// maxStreamBytes caps the stdout/stderr captured per task.
const maxStreamBytes = 1 << 20

// Local runs shell-script tasks as subprocesses with a bounded worker pool.
// Submissions queue up when all workers are busy.
type Local struct {
	queue chan *submission

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

var _ api.Executor = (*Local)(nil)

type submission struct {
	ec *api.ExecContext

	// taskCtx is cancelled by Cancel or by the submitting context; the
	// subprocess runs under it.
	taskCtx context.Context
	cancel  context.CancelFunc

	done   chan struct{}
	result *api.TaskResult
	err    error
}

type handle struct {
	sub *submission
}

func (h *handle) InvocationID() string {
	return h.sub.ec.InvocationID
}

// NewLocal creates a Local executor with the given worker concurrency and
// starts its workers. Callers must Close it when done.
func NewLocal(concurrency int) *Local {
	if concurrency <= 0 {
		concurrency = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	l := &Local{
		queue:   make(chan *submission, 1024),
		cancel:  cancel,
		running: true,
	}

	l.wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func() {
			defer l.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case sub := <-l.queue:
					l.runOne(ctx, sub)
				}
			}
		}()
	}
	return l
}

// Close stops the worker pool and waits for in-flight tasks to finish or be
// killed. It is idempotent.
func (l *Local) Close() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	l.running = false
	cancel := l.cancel
	l.mu.Unlock()

	cancel()
	l.wg.Wait()
}

// Submit stages the task's input files into its work dir, writes the script
// file, and queues the task for a worker.
func (l *Local) Submit(ctx context.Context, ec *api.ExecContext) (api.TaskHandle, error) {
	if ec.Native != nil {
		return nil, errors.New("executor: native bodies run in-process, not via an executor")
	}
	if err := Stage(ec); err != nil {
		return nil, err
	}

	script := filepath.Join(ec.WorkDir, scriptFileName)
	if err := os.WriteFile(script, []byte(ec.Script+"\n"), 0o755); err != nil {
		return nil, fmt.Errorf("executor: write script: %w", err)
	}

	taskCtx, cancel := context.WithCancel(context.Background())
	sub := &submission{
		ec:      ec,
		taskCtx: taskCtx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	// Tie the task's lifetime to the submitting context too.
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-sub.done:
		}
	}()

	select {
	case l.queue <- sub:
		return &handle{sub: sub}, nil
	case <-ctx.Done():
		cancel()
		return nil, ctx.Err()
	}
}

// Await blocks until the task finishes or ctx is cancelled.
func (l *Local) Await(ctx context.Context, h api.TaskHandle) (*api.TaskResult, error) {
	hd, ok := h.(*handle)
	if !ok {
		return nil, fmt.Errorf("executor: foreign task handle %T", h)
	}
	select {
	case <-hd.sub.done:
		return hd.sub.result, hd.sub.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Cancel terminates an in-flight task. Queued tasks start with an already
// cancelled context and exit immediately. Cancel is idempotent.
func (l *Local) Cancel(h api.TaskHandle) error {
	hd, ok := h.(*handle)
	if !ok {
		return fmt.Errorf("executor: foreign task handle %T", h)
	}
	hd.sub.cancel()
	return nil
}

func (l *Local) runOne(poolCtx context.Context, sub *submission) {
	defer close(sub.done)
	defer sub.cancel()

	// The subprocess dies when either the pool shuts down or the task is
	// cancelled individually.
	runCtx, cancel := context.WithCancel(sub.taskCtx)
	defer cancel()
	stop := context.AfterFunc(poolCtx, cancel)
	defer stop()

	sub.result, sub.err = l.execute(runCtx, sub.ec)
}

func (l *Local) execute(ctx context.Context, ec *api.ExecContext) (*api.TaskResult, error) {
	cmd := exec.CommandContext(ctx, "/bin/sh", "-ue", scriptFileName)
	cmd.Dir = ec.WorkDir

	env := os.Environ()
	for k, v := range ec.Env {
		env = append(env, k+"="+v)
	}
	cmd.Env = env

	if ec.Stdin != "" {
		cmd.Stdin = strings.NewReader(ec.Stdin)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &cappedWriter{w: &stdout}
	cmd.Stderr = &cappedWriter{w: &stderr}

	err := cmd.Run()
	res := &api.TaskResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		res.ExitStatus = 0
	case errors.As(err, &exitErr):
		res.ExitStatus = exitErr.ExitCode()
	default:
		return nil, fmt.Errorf("executor: spawn task %s: %w", ec.InvocationID, err)
	}
	return res, nil
}

// cappedWriter discards everything past maxStreamBytes.
type cappedWriter struct {
	w *bytes.Buffer
}

func (c *cappedWriter) Write(p []byte) (int, error) {
	if c.w.Len() >= maxStreamBytes {
		return len(p), nil
	}
	if room := maxStreamBytes - c.w.Len(); len(p) > room {
		c.w.Write(p[:room])
		return len(p), nil
	}
	return c.w.Write(p)
}

// Stage creates the work dir and links or copies every staged file into it
// under its resolved name.
func Stage(ec *api.ExecContext) error {
	if err := os.MkdirAll(ec.WorkDir, 0o755); err != nil {
		return fmt.Errorf("executor: create work dir: %w", err)
	}
	for _, f := range ec.Files {
		dst := filepath.Join(ec.WorkDir, f.Name)
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return fmt.Errorf("executor: stage %s: %w", f.Name, err)
		}
		abs, err := filepath.Abs(f.Source)
		if err != nil {
			return fmt.Errorf("executor: stage %s: %w", f.Name, err)
		}
		_ = os.Remove(dst)
		if err := os.Symlink(abs, dst); err != nil {
			// Symlinks may be unavailable; fall back to a copy.
			if err := copyFile(abs, dst); err != nil {
				return fmt.Errorf("executor: stage %s: %w", f.Name, err)
			}
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}
