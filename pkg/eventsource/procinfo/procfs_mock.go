package procinfo

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ProcessMock describes one process to lay out under a fake procfs root.
type ProcessMock struct {
	PID       int
	PPID      int
	Comm      string
	Exe       string
	Args      []string
	StartTime uint64
}

// WriteProcessMock creates root/<pid>/{stat,cmdline,exe} the way the kernel exposes them.
func WriteProcessMock(root string, p ProcessMock) error {
	dir := filepath.Join(root, strconv.Itoa(p.PID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	// 52 fields, starttime is the 22nd
	fields := make([]string, 0, 50)
	fields = append(fields, "S", strconv.Itoa(p.PPID))
	for i := 0; i < 17; i++ {
		fields = append(fields, "0")
	}
	fields = append(fields, strconv.FormatUint(p.StartTime, 10))
	for len(fields) < 50 {
		fields = append(fields, "0")
	}
	stat := fmt.Sprintf("%d (%s) %s\n", p.PID, p.Comm, strings.Join(fields, " "))
	if err := os.WriteFile(filepath.Join(dir, "stat"), []byte(stat), 0o644); err != nil {
		return err
	}

	var cmdline string
	if len(p.Args) > 0 {
		cmdline = strings.Join(p.Args, "\x00") + "\x00"
	}
	if err := os.WriteFile(filepath.Join(dir, "cmdline"), []byte(cmdline), 0o644); err != nil {
		return err
	}

	if p.Exe != "" {
		exe := filepath.Join(dir, "exe")
		_ = os.Remove(exe)
		if err := os.Symlink(p.Exe, exe); err != nil {
			return err
		}
	}
	return nil
}

// RemoveProcessMock makes pid disappear from the fake procfs root.
func RemoveProcessMock(root string, pid int) error {
	return os.RemoveAll(filepath.Join(root, strconv.Itoa(pid)))
}
