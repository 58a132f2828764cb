// Package execshell runs the git executable on behalf of the merge pipeline.
//
// ShellExecutor wraps a CommandRunner (OSCommandRunner in production), turns
// non-zero exit codes into CommandFailedError values that keep the exit status
// available for retry classification, and reports each invocation to a
// CommandEventObserver that renders readable log lines.
package execshell
