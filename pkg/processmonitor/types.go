package processmonitor

// ProcessRecord is one observed process creation at the instant of creation.
//
// ProcessID is only meaningful within an unbroken monitoring session: the OS reuses
// identifiers after a process exits. ParentProcessID may refer to a process that has
// since exited or whose identifier has been reused.
type ProcessRecord struct {
	ProcessID       uint32  `json:"processId"`
	ParentProcessID uint32  `json:"parentProcessId"`
	Name            string  `json:"name"`
	ExecutablePath  *string `json:"executablePath,omitempty"`
	CommandLine     *string `json:"commandLine,omitempty"`
}

// GetExecutablePath returns the path or an empty string when it is unknown.
func (r ProcessRecord) GetExecutablePath() string {
	if r.ExecutablePath == nil {
		return ""
	}
	return *r.ExecutablePath
}

// GetCommandLine returns the command line or an empty string when it is unknown.
func (r ProcessRecord) GetCommandLine() string {
	if r.CommandLine == nil {
		return ""
	}
	return *r.CommandLine
}
