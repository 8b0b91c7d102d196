package event

import "github.com/tracexec-go/tracexec/internal/abi"

// TaskID is the pair (os_pid, generation) that uniquely identifies a
// traced task across pid reuse (spec.md §3).
type TaskID struct {
	OsPid      int
	Generation uint64
}

// Flags records partial-probe failures and other non-fatal anomalies on an
// event, per spec.md §7. Multiple flags may be set on the same event.
type Flags uint32

const (
	// PossibleTruncation is set when a captured string (filename, argv
	// entry, envp entry) hit the backend's per-string cap.
	PossibleTruncation Flags = 1 << iota
	// TooManyItems is set when argv or envp hit ARGC_MAX and further
	// entries were dropped.
	TooManyItems
	// PtrReadFailure is set when a user-space pointer could not be read
	// (e.g. page fault, process gone).
	PtrReadFailure
	// FdProbeFailure is set when one or more fd table entries could not be
	// resolved to a path.
	FdProbeFailure
	// LoopBoundHit is set when an in-kernel bounded loop (argv/envp/fd
	// bitmap/path walk) hit its verifier-mandated iteration cap before
	// finishing.
	LoopBoundHit
	// RingbufOverflow is set on the next successfully delivered event after
	// the eBPF ring buffer was momentarily full and a record was dropped.
	RingbufOverflow
	// UserspaceDropMarker is set by the assembler on the next complete
	// event after it detects a gap in fragment sub_ids.
	UserspaceDropMarker
	// PidReuse marks an event for a task whose os_pid proctree.Resolve
	// gave a new generation after an earlier one — see DESIGN.md Open
	// Question 2. Neither backend sets it on the events it emits; they
	// discard Resolve's reused result.
	PidReuse
)

func (f Flags) Has(bit Flags) bool { return f&bit != 0 }

// names lists flags in a stable order for JSON/text rendering.
var names = []struct {
	bit  Flags
	name string
}{
	{PossibleTruncation, "POSSIBLE_TRUNCATION"},
	{TooManyItems, "TOO_MANY_ITEMS"},
	{PtrReadFailure, "PTR_READ_FAILURE"},
	{FdProbeFailure, "FD_PROBE_FAILURE"},
	{LoopBoundHit, "LOOP_BOUND_HIT"},
	{RingbufOverflow, "RINGBUF_OVERFLOW"},
	{UserspaceDropMarker, "USERSPACE_DROP_MARKER"},
	{PidReuse, "PID_REUSE"},
}

// Names returns the set flag names, in the fixed order above.
func (f Flags) Names() []string {
	var out []string
	for _, n := range names {
		if f.Has(n.bit) {
			out = append(out, n.name)
		}
	}
	return out
}

// FdInfo is a point-in-time snapshot of one open file descriptor.
type FdInfo struct {
	FdNumber     int
	Path         PathRef
	Flags        uint32
	CloExec      bool
	MountID      int
	Inode        uint64
	FilePosition int64
	FsType       string
}

// PathRef is logically an absolute path. The eBPF backend assembles it
// bottom-up from a segment chain across mount boundaries; the ptrace
// backend resolves it directly via /proc.
type PathRef struct {
	Absolute string
}

// Outcome is the result of an exec attempt.
type Outcome struct {
	Success bool
	Errno   int    // valid only if !Success
	Symbol  string // e.g. "ENOENT", valid only if !Success
}

// ExecAttempt is captured at the entry of an exec-family syscall and
// combined with its Outcome at exit time to form an ExecEvent.
type ExecAttempt struct {
	Variant           abi.Variant
	BitMode           abi.BitMode
	RequestedFilename string
	// Argv[0] is recorded as given to the syscall; it is intentionally
	// distinct from RequestedFilename (spec.md §3 invariant).
	Argv       []string
	Envp       []EnvVar
	Cwd        PathRef
	FdSnapshot []FdInfo
	DirFd      *int32 // non-nil for execveat
	ExecFlags  uint32 // execveat flags, e.g. AT_SYMLINK_NOFOLLOW
	ParentEvent *ID
	// Comm is the kernel-maintained task name, refreshed on a successful
	// exec (spec.md glossary); empty when the attempt failed before the
	// kernel updated it.
	Comm string
}

// EnvVar is one KEY=VALUE entry of an environment vector, decoded as the
// two halves spec.md §3 specifies.
type EnvVar struct {
	Key, Value string
}

// Header is common to every Event variant.
type Header struct {
	Pid     TaskID
	EventID ID
	Flags   Flags
	Type    Kind
	// SubID distinguishes fragments belonging to the same parent event
	// (eBPF backend only); zero for whole events.
	SubID uint32
}

// Kind tags which variant an Event carries.
type Kind int

const (
	KindExecAttempt Kind = iota
	KindFork
	KindExit
	// Fragment kinds, eBPF backend only; reassembled by the assembler.
	KindStringChunk
	KindFdSnapshot
	KindPathSegment
	KindPathHeader
)

// Event is a tagged-variant record. Exactly one of the payload fields is
// meaningful, selected by Header.Type.
type Event struct {
	Header

	Exec *ExecEvent
	Fork *ForkPayload
	Exit *ExitPayload

	StringChunk *StringChunkPayload
	FdSnapshot  *FdSnapshotPayload
	PathSegment *PathSegmentPayload
	PathHeader  *PathHeaderPayload
}

// ExecEvent is the unit of output: a fully assembled exec attempt plus its
// outcome (spec.md §3).
type ExecEvent struct {
	EventID ID
	Task    TaskID
	Attempt ExecAttempt
	Outcome Outcome
	Flags   Flags
}

// ForkPayload carries the child's identity for a Fork event.
type ForkPayload struct {
	Child TaskID
}

// ExitPayload carries the terminal status for an Exit event.
type ExitPayload struct {
	ExitCode    int
	Signal      int
	IsRootTracee bool
}

// StringChunkPayload is one fragment of an argv/envp string or filename,
// delivered by the eBPF backend and reassembled by the assembler.
type StringChunkPayload struct {
	Field Field
	Index int // argv/envp index, or 0 for filename
	Data  string
}

// Field identifies which ExecAttempt field a fragment belongs to.
type Field int

const (
	FieldFilename Field = iota
	FieldArgv
	FieldEnvp
)

// FdSnapshotPayload is one fd entry fragment.
type FdSnapshotPayload struct {
	Fd FdInfo
}

// PathSegmentPayload is one path component, ordered leaf-to-root within
// its PathHeader.
type PathSegmentPayload struct {
	PathKind PathKind
	Index    int
	Name     string
}

// PathKind distinguishes which PathRef-valued field a segment chain
// belongs to.
type PathKind int

const (
	PathKindCwd PathKind = iota
	PathKindFd
)

// PathHeaderPayload opens a path segment chain and carries its segment
// count.
type PathHeaderPayload struct {
	PathKind     PathKind
	FdNumber     int // valid when PathKind == PathKindFd
	SegmentCount int
}
