package cli

import (
	"fmt"
	"io"

	"github.com/fatih/color"
)

var (
	warningColor = color.New(color.Bold, color.FgYellow)
	successColor = color.New(color.Bold, color.FgGreen)
)

// warningf prints a message prefixed with a bold yellow "Warning: ".
func warningf(w io.Writer, format string, a ...interface{}) {
	//nolint:errcheck
	warningColor.Fprint(w, "Warning: ")
	//nolint:errcheck
	fmt.Fprintf(w, format+"\n", a...)
}

// successf prints a message in bold green.
func successf(w io.Writer, format string, a ...interface{}) {
	//nolint:errcheck
	successColor.Fprintf(w, format+"\n", a...)
}
