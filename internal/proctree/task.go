// Package proctree maintains the process-state table (spec.md §4.4): the
// map from tracee id to task state, tracking exec progress, parent
// linkage, fd table deltas and pid-reuse discipline. It is owned
// exclusively by the tracer thread (spec.md §5) — callers outside that
// thread must only observe it through the emitted event stream.
package proctree

import "github.com/tracexec-go/tracexec/internal/event"

// Status is a task's lifecycle state.
type Status int

const (
	Initialized Status = iota
	Running
	BreakpointStopped
	Detached
	Exited
)

func (s Status) String() string {
	switch s {
	case Initialized:
		return "initialized"
	case Running:
		return "running"
	case BreakpointStopped:
		return "breakpoint-stopped"
	case Detached:
		return "detached"
	case Exited:
		return "exited"
	default:
		return "unknown"
	}
}

// Stage is where a task is within an exec-family syscall.
type Stage int

const (
	StageNone Stage = iota
	StageEnter
	StageExit
)

// Task is the state tracexec keeps for one live (or recently live) traced
// process.
type Task struct {
	ID     event.TaskID
	Parent *event.TaskID
	Status Status

	// PresumedFinalTgid is used for post-exec identity; exec preserves pid
	// so this normally just mirrors ID.OsPid, but is tracked separately to
	// make that invariant checkable.
	PresumedFinalTgid int

	PendingSyscallStage Stage
	// LastExecAttempt is carried from Enter to Exit; never mutated by any
	// other code path while a stage is pending (spec.md §4.4 invariant).
	LastExecAttempt *event.ExecAttempt

	// FdTable is maintained directly only by the ptrace backend; the eBPF
	// backend snapshots the whole table at each exec entry instead of
	// tracking deltas here.
	FdTable map[int]event.FdInfo

	EnvFingerprint uint64

	// ExecBacktrace is the ordered chain of successful-exec event ids that
	// led to the task's current program image.
	ExecBacktrace []event.ID
}

func newTask(id event.TaskID, parent *event.TaskID) *Task {
	return &Task{
		ID:                id,
		Parent:            parent,
		Status:            Initialized,
		PresumedFinalTgid: id.OsPid,
		FdTable:           make(map[int]event.FdInfo),
	}
}
