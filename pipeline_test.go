package flume

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

func testPipeline(t *testing.T, opts ...Option) *Pipeline {
	t.Helper()
	base := []Option{
		WithWorkRoot(t.TempDir()),
		WithStdout(io.Discard),
	}
	return NewPipeline(append(base, opts...)...)
}

func runPipeline(t *testing.T, p *Pipeline) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := p.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
}

func collectStrings(t *testing.T, ch *Channel) []string {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	items, err := ch.Collect(ctx)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	out := make([]string, len(items))
	for i, v := range items {
		out[i] = fmt.Sprint(v)
	}
	return out
}

func TestPipelineZipsInputChannels(t *testing.T) {
	p := testPipeline(t)
	p.Source("greeting", "hello", "hi", "hey")
	p.Source("name", "ada", "grace", "edsger")

	NewProc("greet").
		Val("greeting", nil).
		Val("name", nil).
		OutStdout("out", nil).
		Script("echo ${greeting} ${name}").
		MustRegister(p)

	runPipeline(t, p)

	got := collectStrings(t, p.Channel("out"))
	sort.Strings(got)
	want := []string{"hello ada\n", "hey edsger\n", "hi grace\n"}
	if len(got) != 3 || got[0] != want[0] || got[1] != want[1] || got[2] != want[2] {
		t.Fatalf("out = %q, want %q", got, want)
	}
}

func TestPipelineRepeaterCrossProduct(t *testing.T) {
	p := testPipeline(t)
	p.Source("shape", "circle", "square")
	p.Source("color", "red", "blue")

	NewProc("paint").
		Val("shape", nil).
		Each("color", nil).
		OutStdout("out", nil).
		Script("echo ${shape}-${color}").
		MustRegister(p)

	runPipeline(t, p)

	got := collectStrings(t, p.Channel("out"))
	sort.Strings(got)
	want := []string{"circle-blue\n", "circle-red\n", "square-blue\n", "square-red\n"}
	if len(got) != 4 {
		t.Fatalf("out = %q, want 4 combinations", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("out = %q, want %q", got, want)
		}
	}
}

func TestPipelineChainsProcesses(t *testing.T) {
	p := testPipeline(t)
	p.Source("word", "flood", "delta")

	NewProc("upper").
		Val("word", nil).
		OutVal("loud", nil).
		Native(func(ctx context.Context, scope *TaskScope) error {
			scope.SetVar("loud", strings.ToUpper(scope.Lookup("word")))
			return nil
		}).
		Cache(CacheOff).
		MustRegister(p)

	NewProc("shout").
		Val("loud", nil).
		OutStdout("out", nil).
		Script("echo ${loud}!").
		Cache(CacheOff).
		MustRegister(p)

	runPipeline(t, p)

	got := collectStrings(t, p.Channel("out"))
	sort.Strings(got)
	if len(got) != 2 || got[0] != "DELTA!\n" || got[1] != "FLOOD!\n" {
		t.Fatalf("out = %q", got)
	}
}

func TestPipelineStagesAndPublishesFiles(t *testing.T) {
	src := filepath.Join(t.TempDir(), "reads.fq")
	if err := os.WriteFile(src, []byte("acgt\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	p := testPipeline(t)
	p.Source("sample", "s1")
	p.Source("reads", src)

	NewProc("upcase").
		Val("sample", nil).
		FileIn("reads", "${sample}.fq", nil).
		OutFile("shouted", "*.up", nil).
		Script("tr a-z A-Z < ${reads} > ${sample}.up").
		Cache(CacheOff).
		MustRegister(p)

	runPipeline(t, p)

	got := collectStrings(t, p.Channel("shouted"))
	if len(got) != 1 {
		t.Fatalf("shouted = %q, want one path", got)
	}
	if filepath.Base(got[0]) != "s1.up" {
		t.Fatalf("published file = %q, want s1.up", got[0])
	}
	data, err := os.ReadFile(got[0])
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "ACGT\n" {
		t.Fatalf("content = %q", data)
	}
}

func TestPipelineEnvAndStdin(t *testing.T) {
	p := testPipeline(t)
	p.Source("line", "from stdin")
	p.Source("MODE", "loud")

	NewProc("combine").
		Stdin(p.Channel("line")).
		Env("MODE", nil).
		OutStdout("out", nil).
		Script("cat -; printenv MODE").
		Cache(CacheOff).
		MustRegister(p)

	runPipeline(t, p)

	got := collectStrings(t, p.Channel("out"))
	if len(got) != 1 || got[0] != "from stdinloud\n" {
		t.Fatalf("out = %q", got)
	}
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []Notification
}

func (n *recordingNotifier) SendNotification(ctx context.Context, note Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, note)
	return nil
}

func (n *recordingNotifier) last(t *testing.T) Notification {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.sent) == 0 {
		t.Fatal("no notification sent")
	}
	return n.sent[len(n.sent)-1]
}

func TestPipelineFailureClosesChannelsAndNotifies(t *testing.T) {
	notifier := &recordingNotifier{}
	p := testPipeline(t, WithNotifier(notifier))
	p.Source("x", 1)

	NewProc("crash").
		Val("x", nil).
		OutStdout("never", nil).
		Script("exit 3").
		Cache(CacheOff).
		MustRegister(p)

	NewProc("downstream").
		Val("never", nil).
		OutStdout("final", nil).
		Script("echo ${never}").
		Cache(CacheOff).
		MustRegister(p)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	err := p.Run(ctx)

	execErr, ok := IsExecError(err)
	if !ok {
		t.Fatalf("err = %v, want ExecError", err)
	}
	if execErr.Process != "crash" || execErr.ExitStatus != 3 {
		t.Fatalf("unexpected ExecError: %+v", execErr)
	}

	// Every registry channel is closed on abort; collecting must not hang.
	if got := collectStrings(t, p.Channel("final")); len(got) != 0 {
		t.Fatalf("final = %q, want empty", got)
	}

	note := notifier.last(t)
	if note.Subject != "pipeline failed" {
		t.Fatalf("subject = %q", note.Subject)
	}
	if !strings.Contains(note.Body, "crash") || !strings.Contains(note.Body, "exit status 3") {
		t.Fatalf("body = %q", note.Body)
	}
}

func TestPipelineProfileOverridesDirectives(t *testing.T) {
	profile, err := ParseProfile([]byte(`
processes:
  crash:
    errorStrategy: ignore
`))
	if err != nil {
		t.Fatalf("parse profile: %v", err)
	}

	p := testPipeline(t, WithProfile(profile))
	p.Source("x", 1, 2)

	NewProc("crash").
		Val("x", nil).
		OutStdout("out", nil).
		Script("exit 1").
		Cache(CacheOff).
		MustRegister(p)

	runPipeline(t, p)

	if got := collectStrings(t, p.Channel("out")); len(got) != 0 {
		t.Fatalf("out = %q, want no survivors", got)
	}
}

func TestPipelineSQLiteCacheAcrossRuns(t *testing.T) {
	dir := t.TempDir()
	db, err := sql.Open("sqlite", filepath.Join(dir, "cache.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	store, err := NewSQLiteCacheStore(db)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}

	counter := filepath.Join(dir, "runs")

	run := func() []string {
		p := testPipeline(t, WithCacheStore(store))
		p.Source("x", "payload")
		NewProc("count").
			Val("x", nil).
			OutStdout("out", nil).
			Script(fmt.Sprintf("echo ran >> %s; echo ${x}", counter)).
			MustRegister(p)
		runPipeline(t, p)
		return collectStrings(t, p.Channel("out"))
	}

	first := run()
	second := run()

	if len(first) != 1 || first[0] != "payload\n" {
		t.Fatalf("first = %q", first)
	}
	if len(second) != 1 || second[0] != first[0] {
		t.Fatalf("second = %q, want cached %q", second, first)
	}

	data, err := os.ReadFile(counter)
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.Count(string(data), "ran"); got != 1 {
		t.Fatalf("script executed %d times, want 1", got)
	}
}

func TestPipelineRegisterRejectsDuplicates(t *testing.T) {
	p := testPipeline(t)
	def := NewProc("dup").Val("x", nil).Script("true").Definition()

	if err := p.Register(def); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := p.Register(def); err == nil {
		t.Fatal("duplicate register accepted")
	}
}

func TestPipelineRunWithoutProcessesFails(t *testing.T) {
	p := testPipeline(t)
	if err := p.Run(context.Background()); err == nil {
		t.Fatal("empty pipeline ran")
	}
}

func TestPipelineMetricsObserver(t *testing.T) {
	metrics := &BasicMetrics{}
	p := testPipeline(t, WithObserver(metrics))
	p.Source("x", "a", "b", "c")

	NewProc("work").
		Val("x", nil).
		OutStdout("out", nil).
		Script("echo ${x}").
		Cache(CacheOff).
		MustRegister(p)

	runPipeline(t, p)

	snap := metrics.Snapshot()
	if snap.TasksStarted != 3 || snap.TasksCompleted != 3 || snap.TasksFailed != 0 {
		t.Fatalf("snapshot = %+v", snap)
	}
}
