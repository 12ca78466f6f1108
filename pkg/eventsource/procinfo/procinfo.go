// Package procinfo reads process attributes from a procfs mount and shapes them as creation
// event payloads.
package procinfo

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/kubescape/process-monitor/pkg/eventsource"
	"github.com/prometheus/procfs"
)

const DefaultMountPoint = procfs.DefaultMountPoint

// the kernel appends this to the exe link of a process whose binary was unlinked or replaced
const deletedSuffix = " (deleted)"

// Info is a snapshot of one process taken from /proc.
type Info struct {
	PID            uint32
	PPID           uint32
	Name           string
	ExecutablePath *string
	CommandLine    *string
	// StartTime is in clock ticks after boot. Together with PID it identifies a process
	// across PID reuse.
	StartTime uint64
}

type Reader struct {
	fs procfs.FS
}

func NewReader(mountPoint string) (*Reader, error) {
	fs, err := procfs.NewFS(mountPoint)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize procfs: %w", err)
	}
	return &Reader{fs: fs}, nil
}

// PIDs lists the processes currently present.
func (r *Reader) PIDs() ([]int, error) {
	procs, err := r.fs.AllProcs()
	if err != nil {
		return nil, err
	}
	pids := make([]int, 0, len(procs))
	for _, p := range procs {
		pids = append(pids, p.PID)
	}
	return pids, nil
}

// StartTime returns only the start time of pid, which is enough to tell whether it changed.
func (r *Reader) StartTime(pid int) (uint64, error) {
	proc, err := r.fs.Proc(pid)
	if err != nil {
		return 0, err
	}
	stat, err := proc.Stat()
	if err != nil {
		return 0, err
	}
	return stat.Starttime, nil
}

// Lookup reads pid. The executable path and command line are nil when they cannot be read,
// as for kernel threads or processes owned by other users.
func (r *Reader) Lookup(pid int) (Info, error) {
	proc, err := r.fs.Proc(pid)
	if err != nil {
		return Info{}, err
	}
	stat, err := proc.Stat()
	if err != nil {
		return Info{}, fmt.Errorf("stat of pid %d: %w", pid, err)
	}

	info := Info{
		PID:       uint32(pid),
		PPID:      uint32(stat.PPID),
		Name:      stat.Comm,
		StartTime: stat.Starttime,
	}
	if exe, err := proc.Executable(); err == nil && exe != "" {
		exe = strings.TrimSuffix(exe, deletedSuffix)
		info.ExecutablePath = &exe
		info.Name = filepath.Base(exe)
	}
	if args, err := proc.CmdLine(); err == nil && len(args) > 0 {
		cmdline := joinArgs(args)
		info.CommandLine = &cmdline
	}
	if info.Name == "" {
		return Info{}, fmt.Errorf("pid %d has no name", pid)
	}
	return info, nil
}

// joinArgs renders argv as one line, quoting arguments that contain spaces.
func joinArgs(args []string) string {
	quoted := make([]string, len(args))
	for i, a := range args {
		if strings.ContainsAny(a, " \t") {
			a = `"` + a + `"`
		}
		quoted[i] = a
	}
	return strings.Join(quoted, " ")
}

// RawEvent wraps the snapshot in a process creation event.
func (i Info) RawEvent() *eventsource.RawEvent {
	return eventsource.NewCreationEvent(
		eventsource.NewProcessInstance(i.PID, i.PPID, i.Name, i.ExecutablePath, i.CommandLine),
	)
}
