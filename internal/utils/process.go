package utils

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"os/exec"
)

// SafeCommand wraps a standard exec.Cmd with a buffer to catch Stderr
// so crash output of a detector process or ffmpeg survives the child.
type SafeCommand struct {
	*exec.Cmd
	Stderr *bytes.Buffer
}

// NewSafeCommand initializes a command and attaches a buffer to its Stderr pipe
// It prepares the command for execution but does not start it.
func NewSafeCommand(name string, args ...string) *SafeCommand {
	cmd := exec.Command(name, args...)
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr
	return &SafeCommand{Cmd: cmd, Stderr: stderr}
}

const rule = "---------------------------------------------------------"

// ShowError prints a boxed error report to stderr, followed by whatever the
// child process wrote to its stderr when s is given.
func ShowError(context string, err error, s *SafeCommand) {
	writeError(os.Stderr, context, err, s)
}

func writeError(w io.Writer, context string, err error, s *SafeCommand) {
	fmt.Fprintf(w, "\n%s\n🚨 GAZE ERROR: %s\n", rule, context)
	if err != nil {
		fmt.Fprintf(w, "DETAILS: %v\n", err)
	}
	if s != nil && s.Stderr.Len() > 0 {
		fmt.Fprintf(w, "\nCHILD PROCESS LOGS (%s):\n%s\n", s.Path, s.Stderr.String())
	}
	fmt.Fprintln(w, rule)
}

// Die is the unified exit strategy for gaze.
func Die(context string, err error, s *SafeCommand) {
	ShowError(context, err, s)
	os.Exit(1)
}
