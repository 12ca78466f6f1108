package processmonitor

import "strings"

// CleanCommandLine strips the leading copy of the executable path that instrumentation layers
// prepend to the command line, either bare or wrapped in double quotes, together with the
// single space separating it from the arguments.
//
// A command line that does not start with the path, including one shorter than the path, is
// left unchanged. The comparison ignores case. It must be applied exactly once per record.
func CleanCommandLine(record *ProcessRecord) {
	if record == nil || record.CommandLine == nil || record.ExecutablePath == nil {
		return
	}
	cmd, path := *record.CommandLine, *record.ExecutablePath
	if path == "" {
		return
	}

	n := prefixLen(cmd, path)
	if n == 0 {
		return
	}
	if n < len(cmd) && cmd[n] == ' ' {
		n++
	}
	cleaned := cmd[n:]
	record.CommandLine = &cleaned
}

// prefixLen returns the byte length of the redundant path prefix of cmd, or 0 when absent.
func prefixLen(cmd, path string) int {
	if quoted := `"` + path + `"`; len(cmd) >= len(quoted) && strings.EqualFold(cmd[:len(quoted)], quoted) {
		return len(quoted)
	}
	if len(cmd) >= len(path) && strings.EqualFold(cmd[:len(path)], path) {
		return len(path)
	}
	return 0
}
