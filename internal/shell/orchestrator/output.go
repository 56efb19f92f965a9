package orchestrator

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/artpar/stagehand/internal/core/deployment"
)

// outputTailSize is how much of a component's output is kept for diagnostics.
const outputTailSize = 16 * 1024

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	limit     int
	buf       []byte
	truncated bool
}

func newTailBuffer(limit int) *tailBuffer {
	return &tailBuffer{limit: limit}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	n := len(p)
	if n >= t.limit {
		if n > t.limit || len(t.buf) > 0 {
			t.truncated = true
		}
		t.buf = append(t.buf[:0], p[n-t.limit:]...)
		return n, nil
	}
	if over := len(t.buf) + n - t.limit; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
		t.truncated = true
	}
	t.buf = append(t.buf, p...)
	return n, nil
}

func (t *tailBuffer) String() string {
	if t.truncated {
		return "...\n" + string(t.buf)
	}
	return string(t.buf)
}

// writeDiagnostics prints the failure, its full cause chain and the tail of
// the failing component's output.
func writeDiagnostics(w io.Writer, report *Report) {
	if report.Err == nil {
		return
	}

	fmt.Fprintf(w, "Deployment %s (run %s): %v\n", report.State, report.RunID, report.Err)
	depth := 0
	for err := errors.Unwrap(report.Err); err != nil; err = errors.Unwrap(err) {
		depth++
		fmt.Fprintf(w, "%scaused by %T: %v\n", strings.Repeat("  ", depth), err, err)
	}

	var execErr *deployment.ExecutionError
	if !errors.As(report.Err, &execErr) || execErr.Output == "" {
		return
	}
	fmt.Fprintf(w, "--- output of %s ---\n", execErr.Component)
	fmt.Fprint(w, execErr.Output)
	if !strings.HasSuffix(execErr.Output, "\n") {
		fmt.Fprintln(w)
	}
	fmt.Fprintln(w, "--- end of output ---")
}
