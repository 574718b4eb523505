package output

import (
	"fmt"
	"io"
	"os"
)

// Print outputs any result in the specified format to stdout.
// This is a convenience function for CLI commands.
func Print(result any, format string) error {
	return Fprint(os.Stdout, result, format)
}

// Fprint outputs any result in the specified format to w.
func Fprint(w io.Writer, result any, format string) error {
	out, err := FormatSingle(format, result)
	if err != nil {
		return fmt.Errorf("failed to format output: %w", err)
	}

	if _, err := w.Write(out); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
