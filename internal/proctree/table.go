package proctree

import (
	"fmt"
	"sync"

	"github.com/tracexec-go/tracexec/internal/event"
)

// Table is the process-state table: a map from tracee id to task state.
// The zero value is not usable; use NewTable.
type Table struct {
	mu sync.Mutex

	// live maps an os_pid to its currently-live task.
	live map[int]*Task
	// all retains every task ever observed, including Exited ones, as long
	// as the session still holds events referencing them.
	all map[event.TaskID]*Task
	// generations tracks the highest generation allocated for each os_pid,
	// so Resolve never reuses a generation number.
	generations map[int]uint64
}

// NewTable creates an empty process-state table.
func NewTable() *Table {
	return &Table{
		live:        make(map[int]*Task),
		all:         make(map[event.TaskID]*Task),
		generations: make(map[int]uint64),
	}
}

// Resolve returns the live TaskID for osPid. If osPid has never been seen,
// or was last seen Exited (a cold miss caused by pid reuse across an
// unobserved window, per spec.md §4.4/§9), it allocates a new generation.
// reused reports the latter case, so the caller can set the PidReuse flag
// on the next event it emits for this task — no retroactive correction of
// earlier events is attempted (DESIGN.md Open Question 2).
func (t *Table) Resolve(osPid int) (id event.TaskID, reused bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if task, ok := t.live[osPid]; ok && task.Status != Exited {
		return task.ID, false
	}

	prev := t.generations[osPid]
	gen := prev + 1
	t.generations[osPid] = gen
	id = event.TaskID{OsPid: osPid, Generation: gen}
	task := newTask(id, nil)
	t.live[osPid] = task
	t.all[id] = task
	return id, prev > 0
}

// OnFork inserts a new task for childPid with parent as its parent and
// Running status. If inheritFdTable is true (ptrace backend only — the
// eBPF backend snapshots fds fresh at each exec entry instead), the
// parent's fd table is copied into the child.
func (t *Table) OnFork(parent event.TaskID, childPid int, inheritFdTable bool) event.TaskID {
	t.mu.Lock()
	defer t.mu.Unlock()

	gen := t.generations[childPid] + 1
	t.generations[childPid] = gen
	childID := event.TaskID{OsPid: childPid, Generation: gen}

	parentCopy := parent
	child := newTask(childID, &parentCopy)
	child.Status = Running

	if inheritFdTable {
		if pt, ok := t.all[parent]; ok {
			for fd, info := range pt.FdTable {
				child.FdTable[fd] = info
			}
		}
	}

	t.live[childPid] = child
	t.all[childID] = child
	return childID
}

// OnExecEnter records attempt as the in-flight exec attempt for id,
// transitioning it from Running to the Enter stage. Per spec.md §8, exec
// enters and exits must strictly alternate; a second enter without an
// intervening exit is rejected.
func (t *Table) OnExecEnter(id event.TaskID, attempt event.ExecAttempt) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	task, ok := t.all[id]
	if !ok {
		return fmt.Errorf("proctree: unknown task %+v", id)
	}
	if task.PendingSyscallStage == StageEnter {
		return fmt.Errorf("proctree: task %+v already has a pending exec-enter", id)
	}
	task.LastExecAttempt = &attempt
	task.PendingSyscallStage = StageEnter
	if task.Status == Initialized {
		task.Status = Running
	}
	return nil
}

// OnExecExit combines the stored attempt with outcome into an ExecEvent.
// On success it clears close-on-exec fd table entries, appends the new
// event id to the task's exec backtrace, and the task's identity and
// parent linkage are unchanged (exec preserves pid, spec.md §4.4
// invariant). eventID is allocated by the caller (the owning backend),
// since only it knows the session-wide monotone counter.
func (t *Table) OnExecExit(id event.TaskID, eventID event.ID, outcome event.Outcome) (*event.ExecEvent, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	task, ok := t.all[id]
	if !ok {
		return nil, fmt.Errorf("proctree: unknown task %+v", id)
	}
	if task.PendingSyscallStage != StageEnter {
		return nil, fmt.Errorf("proctree: task %+v has no pending exec-enter", id)
	}
	attempt := task.LastExecAttempt
	if attempt == nil {
		return nil, fmt.Errorf("proctree: task %+v missing stored exec attempt", id)
	}

	ev := &event.ExecEvent{
		EventID: eventID,
		Task:    id,
		Attempt: *attempt,
		Outcome: outcome,
	}

	task.PendingSyscallStage = StageNone
	task.Status = Running

	if outcome.Success {
		for fd, info := range task.FdTable {
			if info.CloExec {
				delete(task.FdTable, fd)
			}
		}
		task.ExecBacktrace = append(task.ExecBacktrace, eventID)
	}

	return ev, nil
}

// OnSignalExit marks id Exited and returns the exit payload. The task's
// metadata is retained (in `all`) for as long as the session still holds
// events referencing it; see DESIGN.md for teardown discussion.
func (t *Table) OnSignalExit(id event.TaskID, exitCode, signal int) *event.ExitPayload {
	t.mu.Lock()
	defer t.mu.Unlock()

	if task, ok := t.all[id]; ok {
		task.Status = Exited
		if live, ok := t.live[id.OsPid]; ok && live.ID == id {
			delete(t.live, id.OsPid)
		}
	}
	return &event.ExitPayload{ExitCode: exitCode, Signal: signal}
}

// SetStatus explicitly transitions id's lifecycle state, for callers
// outside the normal fork/exec/exit path — the breakpoint engine parking a
// task at BreakpointStopped, or un-parking it back to Running or Detached.
func (t *Table) SetStatus(id event.TaskID, status Status) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if task, ok := t.all[id]; ok {
		task.Status = status
	}
}

// Task returns the current state for id, or nil if unknown. Intended for
// read-only diagnostics from the tracer thread only.
func (t *Table) Task(id event.TaskID) *Task {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.all[id]
}

// BacktraceLen reports the number of successful exec events attributed to
// id since its creation — used to check the spec.md §8 invariant that this
// equals the backtrace length at exit.
func (t *Table) BacktraceLen(id event.TaskID) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if task, ok := t.all[id]; ok {
		return len(task.ExecBacktrace)
	}
	return 0
}
