// Copyright 2015 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package log

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/cockroachdb/logtags"
)

// FormatWithContextTags formats the string and prepends the context
// tags.
//
// Redaction markers are *not* inserted. The resulting
// string is generally unsafe for reporting.
func FormatWithContextTags(ctx context.Context, format string, args ...interface{}) string {
	var buf strings.Builder
	formatTags(ctx, true /* brackets */, &buf)
	fmt.Fprintf(&buf, format, args...)
	return buf.String()
}

// formatTags writes the logtags of ctx, if any, followed by a space.
func formatTags(ctx context.Context, brackets bool, buf io.StringWriter) {
	tags := logtags.FromContext(ctx)
	if tags == nil {
		return
	}
	if brackets {
		_, _ = buf.WriteString("[")
	}
	_, _ = buf.WriteString(tags.String())
	if brackets {
		_, _ = buf.WriteString("]")
	}
	_, _ = buf.WriteString(" ")
}
