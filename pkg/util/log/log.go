// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package log implements the leveled, context-tagged logger used by the
// benchmark. Entries are written in the crdb-v1 layout:
//
//	I261018 12:00:00.123456 tpcc/terminal.go:123  [T3,w7] message
//
// where the tags between brackets come from the logtags attached to the
// context passed to the logging call.
package log

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/redact"
)

// Severity identifies the importance of a log entry.
type Severity int32

// The severities understood by the logger, in increasing order.
const (
	Severity_INFO Severity = iota
	Severity_WARNING
	Severity_ERROR
	Severity_FATAL
)

var severityChar = [...]byte{'I', 'W', 'E', 'F'}

// String implements fmt.Stringer.
func (s Severity) String() string {
	switch s {
	case Severity_INFO:
		return "INFO"
	case Severity_WARNING:
		return "WARNING"
	case Severity_ERROR:
		return "ERROR"
	case Severity_FATAL:
		return "FATAL"
	}
	return fmt.Sprintf("Severity(%d)", int32(s))
}

// OrigStderr points to the original stderr stream.
var OrigStderr = os.Stderr

// loggerT is the process-wide logger.
type loggerT struct {
	verbosity  atomic.Int32
	redactable atomic.Bool

	mu struct {
		sync.Mutex
		out          io.Writer
		colors       *colorProfile
		exitOverride struct {
			f         func(int)
			hideStack bool
		}
	}
}

var logging = func() *loggerT {
	l := &loggerT{}
	l.mu.out = OrigStderr
	l.mu.colors = stderrColorProfile
	return l
}()

// SetOutput redirects all subsequent log entries to w. Colors are disabled
// unless w is the original stderr stream.
func SetOutput(w io.Writer) {
	logging.mu.Lock()
	defer logging.mu.Unlock()
	logging.mu.out = w
	if f, ok := w.(*os.File); ok && f == OrigStderr {
		logging.mu.colors = stderrColorProfile
	} else {
		logging.mu.colors = nil
	}
}

// SetVerbosity sets the threshold for V-gated messages.
func SetVerbosity(level int32) {
	logging.verbosity.Store(level)
}

// SetRedactable controls whether redaction markers are kept in the output.
func SetRedactable(on bool) {
	logging.redactable.Store(on)
}

// V returns true if the configured verbosity is at least level.
func V(level int32) bool {
	return logging.verbosity.Load() >= level
}

// Infof logs to the INFO severity.
func Infof(ctx context.Context, format string, args ...interface{}) {
	logDepth(ctx, 1, Severity_INFO, format, args)
}

// Warningf logs to the WARNING severity.
func Warningf(ctx context.Context, format string, args ...interface{}) {
	logDepth(ctx, 1, Severity_WARNING, format, args)
}

// Errorf logs to the ERROR severity.
func Errorf(ctx context.Context, format string, args ...interface{}) {
	logDepth(ctx, 1, Severity_ERROR, format, args)
}

// Fatalf logs to the FATAL severity and then exits the process, or calls
// the function installed via SetExitFunc.
func Fatalf(ctx context.Context, format string, args ...interface{}) {
	logDepth(ctx, 1, Severity_FATAL, format, args)
}

// VEventf logs to the INFO severity if the verbosity is at least level.
func VEventf(ctx context.Context, level int32, format string, args ...interface{}) {
	if V(level) {
		logDepth(ctx, 1, Severity_INFO, format, args)
	}
}

func logDepth(
	ctx context.Context, depth int, sev Severity, format string, args []interface{},
) {
	msg := redact.Sprintf(format, args...)
	file, line := caller(depth + 1)

	var buf bytes.Buffer
	logging.mu.Lock()
	defer logging.mu.Unlock()
	formatEntry(&buf, logging.mu.colors, sev, time.Now(), file, line)
	formatTags(ctx, true /* brackets */, &buf)
	if logging.redactable.Load() {
		buf.WriteString(string(msg))
	} else {
		buf.WriteString(msg.StripMarkers())
	}
	if n := buf.Len(); n == 0 || buf.Bytes()[n-1] != '\n' {
		buf.WriteByte('\n')
	}
	_, _ = logging.mu.out.Write(buf.Bytes())

	if sev == Severity_FATAL {
		logging.exitLocked(1)
	}
}

// formatEntry writes the severity, timestamp and location prefix.
func formatEntry(
	buf *bytes.Buffer, cp *colorProfile, sev Severity, now time.Time, file string, line int,
) {
	if cp != nil {
		buf.Write(cp.prefixFor(sev))
	}
	buf.WriteByte(severityChar[sev])
	if cp != nil {
		buf.Write(colorReset)
		buf.Write(cp.timePrefix)
	}
	buf.WriteString(now.UTC().Format("060102 15:04:05.000000"))
	if cp != nil {
		buf.Write(colorReset)
	}
	fmt.Fprintf(buf, " %s:%d  ", file, line)
}

// caller returns the file (with its parent directory) and line of the frame
// depth levels above the caller of caller.
func caller(depth int) (string, int) {
	_, file, line, ok := runtime.Caller(depth + 1)
	if !ok {
		return "???", 1
	}
	dir, base := filepath.Split(file)
	return filepath.Join(filepath.Base(dir), base), line
}
