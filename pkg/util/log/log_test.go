// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package log

import (
	"bytes"
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/cockroachdb/logtags"
	"github.com/cockroachdb/redact"
	"github.com/stretchr/testify/require"
)

func captureOutput(t *testing.T) *bytes.Buffer {
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() { SetOutput(OrigStderr) })
	return &buf
}

func TestEntryLayout(t *testing.T) {
	buf := captureOutput(t)
	ctx := logtags.AddTag(context.Background(), "T", 3)
	ctx = logtags.AddTag(ctx, "w", 7)

	Infof(ctx, "hello %d", 42)
	Warningf(context.Background(), "careful")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)
	require.Regexp(t,
		regexp.MustCompile(`^I\d{6} \d{2}:\d{2}:\d{2}\.\d{6} log/log_test\.go:\d+  \[T3,w7\] hello 42$`),
		string(lines[0]))
	require.Regexp(t,
		regexp.MustCompile(`^W\d{6} \d{2}:\d{2}:\d{2}\.\d{6} log/log_test\.go:\d+  careful$`),
		string(lines[1]))
}

func TestRedactableOutput(t *testing.T) {
	buf := captureOutput(t)
	defer SetRedactable(false)

	Infof(context.Background(), "customer %s", "SMITH")
	require.Contains(t, buf.String(), "customer SMITH")
	require.NotContains(t, buf.String(), "‹")

	buf.Reset()
	SetRedactable(true)
	Infof(context.Background(), "customer %s safe %s", "SMITH", redact.Safe("ok"))
	require.Contains(t, buf.String(), "customer ‹SMITH› safe ok")
}

func TestVerbosity(t *testing.T) {
	buf := captureOutput(t)
	defer SetVerbosity(0)

	VEventf(context.Background(), 2, "hidden")
	require.Empty(t, buf.String())

	SetVerbosity(2)
	require.True(t, V(1))
	VEventf(context.Background(), 2, "shown")
	require.Contains(t, buf.String(), "shown")
}

func TestFatalCallsExitFunc(t *testing.T) {
	buf := captureOutput(t)
	var code int
	SetExitFunc(true /* hideStack */, func(c int) { code = c })
	defer ResetExitFunc()

	Fatalf(context.Background(), "boom")
	require.Equal(t, 1, code)
	require.Contains(t, buf.String(), "boom")
}

func TestEveryN(t *testing.T) {
	start := time.Now()
	e := Every(time.Minute)
	require.True(t, e.shouldLog(start))
	require.False(t, e.shouldLog(start.Add(time.Second)))
	require.True(t, e.shouldLog(start.Add(time.Minute)))

	var zero EveryN
	require.True(t, zero.shouldLog(start))
	require.True(t, zero.shouldLog(start))
}

func TestFormatWithContextTags(t *testing.T) {
	ctx := logtags.AddTag(context.Background(), "tpcc", nil)
	require.Equal(t, "[tpcc] x=1", FormatWithContextTags(ctx, "x=%d", 1))
	require.Equal(t, "x=1", FormatWithContextTags(context.Background(), "x=%d", 1))
}
