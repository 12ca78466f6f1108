package netlink

import (
	"encoding/binary"
	"fmt"
)

// Kernel proc connector ABI, include/uapi/linux/cn_proc.h and connector.h.
const (
	cnIdxProc = 0x1
	cnValProc = 0x1

	procCnMcastListen = 1
	procCnMcastIgnore = 2

	procEventNone = 0x00000000
	procEventFork = 0x00000001
	procEventExec = 0x00000002

	cnMsgLen        = 20 // idx, val, seq, ack (u32) + len, flags (u16)
	procEventHdrLen = 16 // what, cpu (u32) + timestamp_ns (u64)
)

type procEvent struct {
	what uint32
	// fork: the parent process. exec: unused.
	parentTgid uint32
	// fork: the child. exec: the process that called exec.
	pid  uint32
	tgid uint32
}

// isProcessFork excludes thread creation, which the kernel reports as a fork too.
func (e procEvent) isProcessFork() bool {
	return e.what == procEventFork && e.pid == e.tgid
}

// encodeMcastOp builds the cn_msg payload that (un)registers the socket as a listener.
func encodeMcastOp(op uint32) []byte {
	b := make([]byte, cnMsgLen+4)
	binary.NativeEndian.PutUint32(b[0:], cnIdxProc)
	binary.NativeEndian.PutUint32(b[4:], cnValProc)
	binary.NativeEndian.PutUint16(b[16:], 4)
	binary.NativeEndian.PutUint32(b[cnMsgLen:], op)
	return b
}

// parseProcEvent decodes the cn_msg wrapped proc_event of one netlink message. Events other
// than fork and exec are returned with only what set.
func parseProcEvent(data []byte) (procEvent, error) {
	if len(data) < cnMsgLen+procEventHdrLen {
		return procEvent{}, fmt.Errorf("proc connector message too short: %d bytes", len(data))
	}
	idx := binary.NativeEndian.Uint32(data[0:])
	val := binary.NativeEndian.Uint32(data[4:])
	if idx != cnIdxProc || val != cnValProc {
		return procEvent{}, fmt.Errorf("unexpected connector id %d:%d", idx, val)
	}

	ev := data[cnMsgLen:]
	e := procEvent{what: binary.NativeEndian.Uint32(ev[0:])}
	body := ev[procEventHdrLen:]
	switch e.what {
	case procEventFork:
		if len(body) < 16 {
			return procEvent{}, fmt.Errorf("fork event too short: %d bytes", len(body))
		}
		e.parentTgid = binary.NativeEndian.Uint32(body[4:])
		e.pid = binary.NativeEndian.Uint32(body[8:])
		e.tgid = binary.NativeEndian.Uint32(body[12:])
	case procEventExec:
		if len(body) < 8 {
			return procEvent{}, fmt.Errorf("exec event too short: %d bytes", len(body))
		}
		e.pid = binary.NativeEndian.Uint32(body[0:])
		e.tgid = binary.NativeEndian.Uint32(body[4:])
	}
	return e, nil
}
