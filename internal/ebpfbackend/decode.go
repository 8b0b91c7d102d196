package ebpfbackend

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/tracexec-go/tracexec/internal/abi"
	"github.com/tracexec-go/tracexec/internal/event"
)

// recordType mirrors enum event_type in bpf/tracexec.bpf.c.
type recordType uint8

const (
	recExec recordType = iota
	recStringChunk
	recFdSnapshot
	recPathSegment
	recPathHeader
	recFork
	recExit
)

// wireHeader mirrors struct tracexec_header.
type wireHeader struct {
	EID   uint64
	SubID uint32
	Pid   uint32
	Flags uint32
	Type  uint8
	_     [3]byte // struct padding to the next 8-byte boundary
}

const chunkMax = 256
const segmentMax = 256

// The wire*Tail types are the fields of their corresponding bpf/
// tracexec.bpf.c struct that follow the common tracexec_header, already
// consumed separately by decodeRecord.
type wireExecTail struct {
	Ppid    uint32
	Uid     uint32
	Gid     uint32
	Argc    uint32
	Envc    uint32
	Errno   int32
	Success uint8
	Variant uint8
	_       [2]byte
}

type wireStringChunkTail struct {
	Field uint8
	_     [3]byte
	Index uint32
	Data  [chunkMax]byte
}

type wireFdSnapshotTail struct {
	Fd      int32
	MntID   uint32
	Ino     uint64
	Flags   uint32
	CloExec uint8
	Fstype  [16]byte
	_       [3]byte
}

type wirePathHeaderTail struct {
	PathKind     uint8
	_            [3]byte
	FdNumber     int32
	SegmentCount uint32
}

type wirePathSegmentTail struct {
	PathKind uint8
	_        [3]byte
	Index    uint32
	Segment  [segmentMax]byte
}

type wireForkTail struct {
	ParentTgid uint32
}

type wireExitTail struct {
	Code         int32
	Sig          int32
	IsRootTracee uint8
	_            [3]byte
}

// decodeRecord parses one ringbuf sample into an event.Event. taskOf
// resolves the kernel-reported tgid into the session's TaskID (pid-reuse
// aware); onFork additionally links a new child to its parent in the
// process table. Both are supplied by the backend since only it owns the
// process table.
func decodeRecord(raw []byte, taskOf func(pid int) event.TaskID, onFork func(childPid, parentPid int) event.TaskID) (event.Event, error) {
	r := bytes.NewReader(raw)
	var hdr wireHeader
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return event.Event{}, fmt.Errorf("ebpfbackend: decode record header: %w", err)
	}

	switch recordType(hdr.Type) {
	case recExec:
		var w wireExecTail
		if err := binary.Read(r, binary.LittleEndian, &w); err != nil {
			return event.Event{}, fmt.Errorf("ebpfbackend: decode exec record: %w", err)
		}
		id := taskOf(int(hdr.Pid))
		h := wireHeaderToHeader(hdr, event.KindExecAttempt)
		h.Pid = id
		ev := event.Event{
			Header: h,
			Exec: &event.ExecEvent{
				EventID: event.ID(hdr.EID),
				Task:    id,
				Outcome: event.Outcome{
					Success: w.Success != 0,
					Errno:   int(-w.Errno),
				},
			},
		}
		if w.Variant == 1 {
			ev.Exec.Attempt.Variant = abi.Execveat
		}
		return ev, nil

	case recStringChunk:
		var w wireStringChunkTail
		if err := binary.Read(r, binary.LittleEndian, &w); err != nil {
			return event.Event{}, fmt.Errorf("ebpfbackend: decode string chunk: %w", err)
		}
		return event.Event{
			Header: wireHeaderToHeader(hdr, event.KindStringChunk),
			StringChunk: &event.StringChunkPayload{
				Field: event.Field(w.Field),
				Index: int(w.Index),
				Data:  cString(w.Data[:]),
			},
		}, nil

	case recFdSnapshot:
		var w wireFdSnapshotTail
		if err := binary.Read(r, binary.LittleEndian, &w); err != nil {
			return event.Event{}, fmt.Errorf("ebpfbackend: decode fd snapshot: %w", err)
		}
		return event.Event{
			Header: wireHeaderToHeader(hdr, event.KindFdSnapshot),
			FdSnapshot: &event.FdSnapshotPayload{
				Fd: event.FdInfo{
					FdNumber: int(w.Fd),
					MountID:  int(w.MntID),
					Inode:    w.Ino,
					Flags:    w.Flags,
					CloExec:  w.CloExec != 0,
					FsType:   cString(w.Fstype[:]),
				},
			},
		}, nil

	case recPathHeader:
		var w wirePathHeaderTail
		if err := binary.Read(r, binary.LittleEndian, &w); err != nil {
			return event.Event{}, fmt.Errorf("ebpfbackend: decode path header: %w", err)
		}
		return event.Event{
			Header: wireHeaderToHeader(hdr, event.KindPathHeader),
			PathHeader: &event.PathHeaderPayload{
				PathKind:     event.PathKind(w.PathKind),
				FdNumber:     int(w.FdNumber),
				SegmentCount: int(w.SegmentCount),
			},
		}, nil

	case recPathSegment:
		var w wirePathSegmentTail
		if err := binary.Read(r, binary.LittleEndian, &w); err != nil {
			return event.Event{}, fmt.Errorf("ebpfbackend: decode path segment: %w", err)
		}
		return event.Event{
			Header: wireHeaderToHeader(hdr, event.KindPathSegment),
			PathSegment: &event.PathSegmentPayload{
				PathKind: event.PathKind(w.PathKind),
				Index:    int(w.Index),
				Name:     cString(w.Segment[:]),
			},
		}, nil

	case recFork:
		var w wireForkTail
		if err := binary.Read(r, binary.LittleEndian, &w); err != nil {
			return event.Event{}, fmt.Errorf("ebpfbackend: decode fork record: %w", err)
		}
		child := onFork(int(hdr.Pid), int(w.ParentTgid))
		fh := wireHeaderToHeader(hdr, event.KindFork)
		fh.Pid = child
		return event.Event{
			Header: fh,
			Fork:   &event.ForkPayload{Child: child},
		}, nil

	case recExit:
		var w wireExitTail
		if err := binary.Read(r, binary.LittleEndian, &w); err != nil {
			return event.Event{}, fmt.Errorf("ebpfbackend: decode exit record: %w", err)
		}
		eh := wireHeaderToHeader(hdr, event.KindExit)
		eh.Pid = taskOf(int(hdr.Pid))
		return event.Event{
			Header: eh,
			Exit: &event.ExitPayload{
				ExitCode:     int(w.Code),
				Signal:       int(w.Sig),
				IsRootTracee: w.IsRootTracee != 0,
			},
		}, nil

	default:
		return event.Event{}, fmt.Errorf("ebpfbackend: unknown record type %d", hdr.Type)
	}
}

func wireHeaderToHeader(w wireHeader, kind event.Kind) event.Header {
	return event.Header{
		EventID: event.ID(w.EID),
		SubID:   w.SubID,
		Type:    kind,
	}
}

func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}
