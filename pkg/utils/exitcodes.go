package utils

const (
	// standard exit codes
	ExitCodeSuccess = iota
	ExitCodeError   = 1

	// custom exit codes
	ExitCodeUnsupportedPlatform = 100
	ExitCodeConnectionFailed    = 101
	ExitCodeInvalidConfig       = 102
)
