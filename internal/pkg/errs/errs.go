package errs

import (
	"fmt"
	"strings"

	cr "github.com/cockroachdb/errors"
)

// Wrap annotates err with msg and a stack trace. Returns nil for a nil err.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return cr.Wrap(err, msg)
}

// Wrapf is Wrap with formatting.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return cr.Wrapf(err, format, args...)
}

// New creates an error carrying a stack trace.
func New(msg string) error {
	return cr.New(msg)
}

// StackLines renders the verbose form of err (message chain plus stack) as lines,
// truncated to maxLines when maxLines > 0.
func StackLines(err error, maxLines int) []string {
	if err == nil {
		return nil
	}
	s := fmt.Sprintf("%+v", err)
	lines := strings.Split(s, "\n")
	if maxLines > 0 && len(lines) > maxLines {
		lines = lines[:maxLines]
	}
	return lines
}
