package notify

import (
	"fmt"
	"io"
	"os"
	"os/user"
	"strings"
	"sync"
)

// RunLog collects every line printed during one notify invocation. The
// client's stdout is consumed by CI logs, so progress lines go straight to
// the writer; the accumulated copy is flushed into the failure notification
// when a ref's cycle fails fatally.
type RunLog struct {
	mu    sync.Mutex
	out   io.Writer
	debug bool
	lines []string
}

// NewRunLog creates a run log writing to out. Debug lines are recorded
// either way but only printed when debug is enabled.
func NewRunLog(out io.Writer, debug bool) *RunLog {
	r := &RunLog{out: out, debug: debug}

	username := "unknown"
	if u, err := user.Current(); err == nil {
		username = u.Username
	}
	cwd, _ := os.Getwd()

	r.record("User: "+username, false)
	r.record("Path: "+cwd, false)
	r.record("Args: "+strings.Join(os.Args[1:], " "), false)
	r.record("", false)

	return r
}

func (r *RunLog) record(line string, print bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lines = append(r.lines, line)
	if print {
		fmt.Fprintln(r.out, line)
	}
}

func (r *RunLog) emit(prefix string, print bool, format string, args ...interface{}) {
	message := fmt.Sprintf(format, args...)
	for _, line := range strings.Split(message, "\n") {
		r.record(prefix+line, print)
	}
}

// Progress prints an informational line.
func (r *RunLog) Progress(format string, args ...interface{}) {
	r.emit("[reftrack] ", true, format, args...)
}

// Debug records a diagnostic line, printed only when debug is enabled.
func (r *RunLog) Debug(format string, args ...interface{}) {
	r.emit("[reftrack:debug] ", r.debug, format, args...)
}

// Error prints an error line.
func (r *RunLog) Error(format string, args ...interface{}) {
	r.emit("[reftrack:error] ", true, format, args...)
}

// Hook prints the server-side hook output fenced by separator lines, the
// way it would have appeared on a direct push.
func (r *RunLog) Hook(output string) {
	fence := strings.Repeat("-", 60)
	r.Progress("%s", fence)
	r.Progress("%s", output)
	r.Progress("%s", fence)
}

// Dump returns everything recorded so far, one line per entry. This is the
// body of the out-of-band failure notification.
func (r *RunLog) Dump() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return strings.Join(r.lines, "\n")
}
