package cli

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/cdfmlr/sham"
)

const donateWorkload = `
name: donate-one
locks: [L]
main:
  - acquire: L
  - run: 3
  - log: main releasing
  - release: L
threads:
  - name: B
    priority: 40
    steps:
      - sleep: 1
      - acquire: L
      - log: B got L
      - release: L
`

// execute 在进程内跑一次命令，返回标准输出
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func writeWorkload(t *testing.T, src string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "workload.yaml")
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatalf("write workload: %v", err)
	}
	return path
}

func TestRunCommand(t *testing.T) {
	out, err := execute(t, "run", writeWorkload(t, donateWorkload))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	for _, want := range []string{
		"Workload:  donate-one (priority)",
		"Finished:  B",
		"main releasing",
		"B got L",
		"Timer: 3 ticks",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRunMLFQSOption(t *testing.T) {
	out, err := execute(t, "run", "-o", "mlfqs", writeWorkload(t, donateWorkload))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out, "(mlfqs)") || !strings.Contains(out, "Load avg:") {
		t.Errorf("output does not show mlfqs:\n%s", out)
	}
}

func TestRunUnknownOption(t *testing.T) {
	_, err := execute(t, "run", "-o", "turbo", writeWorkload(t, donateWorkload))
	if err == nil || !strings.Contains(err.Error(), "turbo") {
		t.Errorf("run -o turbo = %v", err)
	}
}

func TestRunBadLogLevel(t *testing.T) {
	_, err := execute(t, "--log-level", "loud", "run", writeWorkload(t, donateWorkload))
	if err == nil {
		t.Error("expected an error for --log-level loud")
	}
}

func TestRunInvalidWorkload(t *testing.T) {
	_, err := execute(t, "run", writeWorkload(t, "threads: []"))
	if err == nil || !strings.Contains(err.Error(), "at least one thread") {
		t.Errorf("run = %v", err)
	}
}

func TestRunMaxTicks(t *testing.T) {
	path := writeWorkload(t, `
threads:
  - name: spin
    steps: [{run: 100}]
`)
	_, err := execute(t, "run", "--max-ticks", "10", path)
	if !errors.Is(err, sham.ErrTickLimit) {
		t.Errorf("run = %v, want ErrTickLimit", err)
	}
}

var runIDPattern = regexp.MustCompile(`Trace saved as (run_[0-9a-f-]+)`)

func TestTraceRoundTrip(t *testing.T) {
	db := filepath.Join(t.TempDir(), "trace.db")

	out, err := execute(t, "run", "--trace-db", db, writeWorkload(t, donateWorkload))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	m := runIDPattern.FindStringSubmatch(out)
	if m == nil {
		t.Fatalf("no run id in output:\n%s", out)
	}
	id := m[1]

	out, err = execute(t, "trace", db)
	if err != nil {
		t.Fatalf("trace: %v", err)
	}
	if !strings.Contains(out, id) || !strings.Contains(out, "donate-one") {
		t.Errorf("trace list missing the run:\n%s", out)
	}

	out, err = execute(t, "trace", db, id, "--kind", "donate")
	if err != nil {
		t.Fatalf("trace %s: %v", id, err)
	}
	if !strings.Contains(out, "donate") || !strings.Contains(out, "main") {
		t.Errorf("trace events missing the donation:\n%s", out)
	}
	if strings.Contains(out, "schedule") {
		t.Errorf("--kind donate shows other events:\n%s", out)
	}
}

func TestTraceSavesFailedRun(t *testing.T) {
	db := filepath.Join(t.TempDir(), "trace.db")
	path := writeWorkload(t, `
name: stuck
semaphores: {never: 0}
threads:
  - name: waiter
    steps: [{down: never}]
`)
	out, err := execute(t, "run", "--trace-db", db, path)
	if !errors.Is(err, sham.ErrDeadlock) {
		t.Fatalf("run = %v, want ErrDeadlock", err)
	}
	m := runIDPattern.FindStringSubmatch(out)
	if m == nil {
		t.Fatalf("no run id in output:\n%s", out)
	}

	out, err = execute(t, "trace", db, m[1])
	if err != nil {
		t.Fatalf("trace: %v", err)
	}
	if !strings.Contains(out, "Error:") || !strings.Contains(out, "deadlock") {
		t.Errorf("trace does not show the error:\n%s", out)
	}
}

func TestTraceEmptyAndMissing(t *testing.T) {
	db := filepath.Join(t.TempDir(), "trace.db")
	out, err := execute(t, "trace", db)
	if err != nil {
		t.Fatalf("trace: %v", err)
	}
	if !strings.Contains(out, "No runs found.") {
		t.Errorf("output = %q", out)
	}
	if _, err := execute(t, "trace", db, "run_nope"); err == nil {
		t.Error("trace of a missing run should fail")
	}
}
