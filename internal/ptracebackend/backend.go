// Package ptracebackend implements the ptrace-based exec tracing backend
// (spec.md §4.5): it spawns or attaches to a root tracee, follows its
// whole process tree via PTRACE_O_TRACEFORK/VFORK/CLONE, and emits one
// event.Event per fork, successful/failed exec, and exit — optionally
// accelerated by the seccomp-BPF filter in the sibling internal/seccomp
// package so that only exec-family syscalls reach a ptrace-stop.
package ptracebackend

import (
	"fmt"
	"runtime"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/tracexec-go/tracexec/internal/abi"
	"github.com/tracexec-go/tracexec/internal/breakpoint"
	"github.com/tracexec-go/tracexec/internal/errno"
	"github.com/tracexec-go/tracexec/internal/event"
	"github.com/tracexec-go/tracexec/internal/forkexec"
	"github.com/tracexec-go/tracexec/internal/proctree"
	"github.com/tracexec-go/tracexec/internal/seccomp"
	"github.com/tracexec-go/tracexec/internal/strcache"
)

// waitPollInterval bounds how long loop sleeps between WNOHANG polls when
// no tracee has a pending state change, so that a queued breakpoint
// request (detach/resume) never waits longer than this to run.
const waitPollInterval = 2 * time.Millisecond

// Limits bounds the per-attempt argv/envp item counts the backend will
// capture, per spec.md §8's ARGC_MAX boundary behavior. The per-string
// length cap is not part of Limits; it is the maxStringLen constant in
// memory.go.
type Limits struct {
	MaxItems int
	// PollInterval overrides waitPollInterval (--polling-interval, in
	// microseconds, converted by the caller). Zero keeps the default;
	// negative makes loop block in Wait4 with no WNOHANG, trading away
	// prompt breakpoint-request servicing for no polling overhead at all,
	// per spec.md §6's "negative = block".
	PollInterval time.Duration
}

// DefaultLimits matches the values the spec calls out as conventional.
var DefaultLimits = Limits{MaxItems: 8192}

// Backend is one tracing session's ptrace state. The zero value is not
// usable; use Start.
type Backend struct {
	table  *proctree.Table
	strs   *strcache.Cache
	ids    event.Allocator
	limits Limits

	seccompFilter  seccomp.Filter
	seccompEnabled bool

	events chan event.Event
	errs   chan error
	done   chan struct{}

	rootPid int
	rootID  event.TaskID

	tracees map[int]*tracee

	breakpoints *breakpoint.Set
	hits        *breakpoint.Manager
	// requests carries consumer-driven actions (breakpoint.Detacher calls)
	// onto the locked tracer thread; ptrace requires every call for a given
	// tracee to originate from the thread that is its registered tracer.
	requests chan func(*Backend)
}

// tracee is per-pid bookkeeping the loop needs between stops.
type tracee struct {
	id event.TaskID
	// pendingEnter holds the in-flight exec attempt between its
	// syscall-enter (or seccomp trap) stop and its resolving stop
	// (PTRACE_EVENT_EXEC on success, syscall-exit-stop on failure).
	pendingEnter *event.ExecAttempt
	pendingFlags event.Flags
	// inSyscall toggles on each plain syscall-stop when the accelerator
	// is not active, since PTRACE_O_TRACESYSGOOD delivers a stop at both
	// syscall-enter and syscall-exit with no other way to tell them apart.
	inSyscall bool
	optsSet   bool
}

// Start spawns spec.Args as the root tracee and begins tracing it. The
// returned Backend's Events channel is closed once the root tracee and
// every descendant it spawned has exited.
func Start(spec forkexec.Spec, seccompMode seccomp.Mode, limits Limits) (*Backend, error) {
	spec.Ptrace = true
	userRequested := spec.User != ""

	enabled, reason := seccomp.Decide(seccompMode, userRequested)
	b := newBackend(limits)
	b.seccompEnabled = enabled
	if !enabled && reason != "" {
		b.errs <- fmt.Errorf("ptracebackend: seccomp acceleration disabled: %s", reason)
	}
	if enabled {
		filter, err := seccomp.Build()
		if err != nil {
			return nil, fmt.Errorf("ptracebackend: build seccomp filter: %w", err)
		}
		b.seccompFilter = filter
	}

	// ptrace ties tracer-ship to the exact OS thread that forked the
	// tracee (ptrace_check_attach requires child->real_parent == current);
	// os/exec's own fork happens on whatever thread the calling goroutine
	// is scheduled on at that instant, which the Go scheduler is free to
	// move off of the moment this call returns. So the fork and the whole
	// wait/ptrace loop below must execute on one goroutine locked to one
	// OS thread for the lifetime of the session, exactly as the teacher's
	// Tracer.Trace does with runtime.LockOSThread — spawning is therefore
	// folded into the traced goroutine itself instead of happening here.
	spawned := make(chan error, 1)
	go b.spawnAndRun(spec, spawned)
	if err := <-spawned; err != nil {
		return nil, err
	}
	return b, nil
}

// spawnAndRun locks the calling goroutine to its OS thread, forks the
// root tracee on that thread, and then runs the wait4 loop on the same
// thread for as long as any tracee remains. result receives nil once the
// root tracee exists and is ready to be waited on, or the spawn error.
func (b *Backend) spawnAndRun(spec forkexec.Spec, result chan<- error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(b.events)
	defer close(b.done)

	proc, err := forkexec.Start(spec)
	if err != nil {
		result <- err
		return
	}
	b.rootPid = proc.Pid
	b.rootID, _ = b.table.Resolve(proc.Pid)
	b.tracees[proc.Pid] = &tracee{id: b.rootID}
	result <- nil

	b.loop()
}

func newBackend(limits Limits) *Backend {
	if limits.MaxItems == 0 {
		limits.MaxItems = DefaultLimits.MaxItems
	}
	b := &Backend{
		table:       proctree.NewTable(),
		strs:        strcache.New(),
		limits:      limits,
		events:      make(chan event.Event, 256),
		errs:        make(chan error, 16),
		done:        make(chan struct{}),
		tracees:     make(map[int]*tracee),
		breakpoints: breakpoint.NewSet(),
		requests:    make(chan func(*Backend), 16),
	}
	b.hits = breakpoint.NewManager(b)
	return b
}

// Breakpoints returns the backend's breakpoint registry, for a consumer
// that wants to add or remove breakpoints (e.g. from config or the TUI).
func (b *Backend) Breakpoints() *breakpoint.Set { return b.breakpoints }

// Hits returns the backend's breakpoint hit manager, for a consumer that
// wants to list pending hits and act on them (Detach/Resume/DetachAndRun).
func (b *Backend) Hits() *breakpoint.Manager { return b.hits }

// Events returns the channel of assembled events. It is closed when the
// session ends.
func (b *Backend) Events() <-chan event.Event { return b.events }

// Errors returns the channel of non-fatal backend errors (e.g. a
// transient ptrace read failure on one tracee).
func (b *Backend) Errors() <-chan error { return b.errs }

// Stop forcibly kills the root tracee's entire process group. The caller
// should still drain Events until it closes.
func (b *Backend) Stop() error {
	return unix.Kill(-b.rootPid, unix.SIGKILL)
}

// RootPid returns the root tracee's pid, for a caller that wants to apply
// its own exit discipline (wait/terminate/kill) rather than Stop's
// unconditional SIGKILL.
func (b *Backend) RootPid() int { return b.rootPid }

func (b *Backend) emit(ev event.Event) {
	select {
	case b.events <- ev:
	case <-b.done:
	}
}

func (b *Backend) emitErr(err error) {
	select {
	case b.errs <- err:
	default:
	}
}

// loop is the top-level wait4 loop, adapted from the teacher's
// ptracer/tracer_track_linux.go trace()/handle() pair and generalized
// from "one sandboxed child" to "an arbitrary tree of tracees" and from
// "resource accounting" to "exec event emission". It must run on the same
// locked OS thread that forked the root tracee; see spawnAndRun.
//
// It polls with WNOHANG rather than blocking in wait4, the way the
// teacher's own collectZombie does, so that a queued breakpoint request
// (see requests) gets a turn even while every tracee is quiescent.
func (b *Backend) loop() {
	blocking := b.limits.PollInterval < 0
	period := waitPollInterval
	if b.limits.PollInterval > 0 {
		period = b.limits.PollInterval
	}

	for len(b.tracees) > 0 {
		b.drainRequests()
		flag := unix.WALL
		if !blocking {
			flag |= unix.WNOHANG
		}
		var ws unix.WaitStatus
		pid, err := unix.Wait4(-1, &ws, flag, nil)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			b.emitErr(fmt.Errorf("ptracebackend: wait4: %w", err))
			return
		}
		if pid == 0 {
			select {
			case fn := <-b.requests:
				fn(b)
			case <-time.After(period):
			}
			continue
		}
		b.handle(pid, ws)
	}
}

// drainRequests runs every queued consumer request without blocking.
func (b *Backend) drainRequests() {
	for {
		select {
		case fn := <-b.requests:
			fn(b)
		default:
			return
		}
	}
}

// doRequest hands fn to the tracer thread via requests and blocks for its
// result, for use by DetachStopped/ResumeStopped which must not touch a
// tracee's ptrace state from the calling goroutine directly.
func (b *Backend) doRequest(fn func(*Backend) error) error {
	result := make(chan error, 1)
	req := func(bb *Backend) { result <- fn(bb) }
	select {
	case b.requests <- req:
	case <-b.done:
		return fmt.Errorf("ptracebackend: backend closed")
	}
	select {
	case err := <-result:
		return err
	case <-b.done:
		return fmt.Errorf("ptracebackend: backend closed")
	}
}

// DetachStopped implements breakpoint.Detacher: it detaches pid
// (PTRACE_DETACH), delivering sig as part of the detach. unix.PtraceDetach
// does not expose the signal argument PTRACE_DETACH takes, so this goes
// through the raw syscall directly, as ptrace(2) documents it.
func (b *Backend) DetachStopped(pid int, sig syscall.Signal) error {
	return b.doRequest(func(bb *Backend) error {
		_, _, serrno := unix.Syscall6(unix.SYS_PTRACE, unix.PTRACE_DETACH, uintptr(pid), 0, uintptr(sig), 0, 0)
		if serrno != 0 {
			return fmt.Errorf("ptracebackend: detach %d: %w", pid, serrno)
		}
		if t, ok := bb.tracees[pid]; ok {
			bb.table.SetStatus(t.id, proctree.Detached)
		}
		delete(bb.tracees, pid)
		return nil
	})
}

// ResumeStopped implements breakpoint.Detacher: it lets pid continue past
// the syscall stop it hit a breakpoint at, still under trace.
func (b *Backend) ResumeStopped(pid int, stop breakpoint.Stop) error {
	return b.doRequest(func(bb *Backend) error {
		t, ok := bb.tracees[pid]
		if !ok {
			return fmt.Errorf("ptracebackend: resume %d: not tracked", pid)
		}
		bb.table.SetStatus(t.id, proctree.Running)
		if stop == breakpoint.SysEnter {
			bb.resumeToSyscallExit(pid, t)
		} else {
			bb.resume(pid, t, 0)
		}
		return nil
	})
}

// checkBreakpoint consults the breakpoint set for a match at stop against
// the in-flight attempt; if one fires it records the hit and parks the
// task (BreakpointStopped), and the caller must not auto-resume it.
func (b *Backend) checkBreakpoint(pid int, t *tracee, stop breakpoint.Stop, argv []string, filename string, filenameOK bool) bool {
	bp, ok := b.breakpoints.Match(stop, argv, filename, filenameOK)
	if !ok {
		return false
	}
	b.hits.Add(bp.ID, pid, stop)
	b.table.SetStatus(t.id, proctree.BreakpointStopped)
	return true
}

func (b *Backend) handle(pid int, ws unix.WaitStatus) {
	t, known := b.tracees[pid]

	switch {
	case ws.Exited():
		b.onExit(pid, t, ws.ExitStatus(), 0, known)
		return

	case ws.Signaled():
		b.onExit(pid, t, -1, int(ws.Signal()), known)
		return

	case ws.Stopped():
		if !known {
			t = &tracee{}
			t.id, _ = b.table.Resolve(pid)
			b.tracees[pid] = t
		}
		if !t.optsSet {
			if err := setOptions(pid, traceOptions(b.seccompEnabled)); err != nil {
				b.emitErr(fmt.Errorf("ptracebackend: set options on %d: %w", pid, err))
			}
			t.optsSet = true
		}
		b.handleStop(pid, t, ws)
	}
}

func (b *Backend) onExit(pid int, t *tracee, exitCode, signal int, known bool) {
	delete(b.tracees, pid)
	var id event.TaskID
	if known {
		id = t.id
	} else {
		id, _ = b.table.Resolve(pid)
	}
	payload := b.table.OnSignalExit(id, exitCode, signal)
	payload.IsRootTracee = pid == b.rootPid
	b.emit(event.Event{
		Header: event.Header{Pid: id, EventID: b.ids.Next(), Type: event.KindExit},
		Exit:   payload,
	})
}

func (b *Backend) handleStop(pid int, t *tracee, ws unix.WaitStatus) {
	sig := ws.StopSignal()

	// PTRACE_O_TRACESYSGOOD ORs 0x80 into the delivered SIGTRAP for a
	// plain syscall-enter/exit stop, which is how it is told apart from
	// every other SIGTRAP-based stop below (see ptrace(2), "Syscall-stops").
	if sig&0x80 != 0 && sig&^0x80 == unix.SIGTRAP {
		if !b.onSyscallStop(pid, t) {
			b.resume(pid, t, 0)
		}
		return
	}

	if sig != unix.SIGTRAP {
		// A genuine signal-delivery-stop or group-stop: pass it through
		// untouched so the tracee's own signal handling is unaffected.
		b.resume(pid, t, int(sig))
		return
	}

	switch ws.TrapCause() {
	case unix.PTRACE_EVENT_SECCOMP:
		if !b.onSeccompTrap(pid, t) {
			b.resumeToSyscallExit(pid, t)
		}
		return

	case unix.PTRACE_EVENT_EXEC:
		if !b.onExecSucceeded(pid, t) {
			b.resume(pid, t, 0)
		}
		return

	case unix.PTRACE_EVENT_FORK, unix.PTRACE_EVENT_VFORK, unix.PTRACE_EVENT_CLONE:
		b.onClone(pid, t)
		b.resume(pid, t, 0)
		return

	case unix.PTRACE_EVENT_EXIT:
		// The tracee is about to report its real exit via wait4; nothing
		// to capture here that OnSignalExit won't see momentarily.
		b.resume(pid, t, 0)
		return

	default:
		// A bare SIGTRAP with no ptrace-event code: the initial
		// PTRACE_TRACEME stop before PTRACE_O_TRACEEXEC takes effect, or
		// a tracee-raised SIGTRAP. Nothing to capture; just continue it.
		b.resume(pid, t, 0)
	}
}

// resume continues pid with PTRACE_SYSCALL when the accelerator is off
// (so the next syscall boundary is still observed) or PTRACE_CONT when it
// is on (exec-family syscalls are already trapped by the filter).
func (b *Backend) resume(pid int, t *tracee, sig int) {
	var err error
	if b.seccompEnabled {
		err = unix.PtraceCont(pid, sig)
	} else {
		err = unix.PtraceSyscall(pid, sig)
	}
	if err != nil {
		b.emitErr(fmt.Errorf("ptracebackend: resume %d: %w", pid, err))
	}
}

// resumeToSyscallExit always single-steps to the syscall-exit-stop
// regardless of acceleration mode, since a seccomp trap only fires at
// syscall-enter and the failure path needs the return register.
func (b *Backend) resumeToSyscallExit(pid int, t *tracee) {
	if err := unix.PtraceSyscall(pid, 0); err != nil {
		b.emitErr(fmt.Errorf("ptracebackend: resume %d to syscall-exit: %w", pid, err))
	}
}

func (b *Backend) onClone(pid int, t *tracee) {
	msg, err := unix.PtraceGetEventMsg(pid)
	if err != nil {
		b.emitErr(fmt.Errorf("ptracebackend: get clone event msg for %d: %w", pid, err))
		return
	}
	childPid := int(msg)
	childID := b.table.OnFork(t.id, childPid, true)
	b.tracees[childPid] = &tracee{id: childID}
	b.emit(event.Event{
		Header: event.Header{Pid: t.id, EventID: b.ids.Next(), Type: event.KindFork},
		Fork:   &event.ForkPayload{Child: childID},
	})
}

// onSeccompTrap fires once per exec-family syscall when the accelerator
// is active: the tracee is stopped at syscall-enter with the filter
// arguments still live in its registers. It reports whether a breakpoint
// parked the tracee, in which case the caller must not resume it.
func (b *Backend) onSeccompTrap(pid int, t *tracee) bool {
	return b.captureExecEnter(pid, t)
}

// onSyscallStop handles a plain (non-accelerated) syscall-stop, which
// arrives twice per syscall (enter, then exit) with no tag distinguishing
// them beyond the toggle this backend keeps per pid. It reports whether a
// breakpoint parked the tracee, in which case the caller must not resume
// it.
func (b *Backend) onSyscallStop(pid int, t *tracee) bool {
	t.inSyscall = !t.inSyscall
	entering := t.inSyscall

	ctx, err := getContext(pid)
	if err != nil {
		b.emitErr(fmt.Errorf("ptracebackend: get regs for %d: %w", pid, err))
		return false
	}
	regs := ctx.regsView()

	if entering {
		if _, ok := abi.IsExecSyscall(currentArch(), regs.BitMode(), regs.SyscallNo()); !ok {
			return false
		}
		return b.captureExecEnter(pid, t)
	}

	if t.pendingEnter == nil {
		// Exit-stop of some unrelated syscall, or of an exec that already
		// resolved via PTRACE_EVENT_EXEC — nothing pending to close out.
		return false
	}
	return b.captureExecFailureExit(pid, t, regs)
}

// captureExecEnter reports whether a sysenter breakpoint matched and
// parked the tracee.
func (b *Backend) captureExecEnter(pid int, t *tracee) bool {
	ctx, err := getContext(pid)
	if err != nil {
		b.emitErr(fmt.Errorf("ptracebackend: get regs for %d: %w", pid, err))
		return false
	}
	regs := ctx.regsView()
	attempt, flags := b.readExecAttempt(pid, regs)
	if err := b.table.OnExecEnter(t.id, attempt); err != nil {
		b.emitErr(fmt.Errorf("ptracebackend: %w", err))
		return false
	}
	t.pendingEnter = &attempt
	t.pendingFlags = flags
	return b.checkBreakpoint(pid, t, breakpoint.SysEnter, attempt.Argv, attempt.RequestedFilename, flags&event.PtrReadFailure == 0)
}

// onExecSucceeded reports whether a sysexit breakpoint matched and parked
// the tracee.
func (b *Backend) onExecSucceeded(pid int, t *tracee) bool {
	if t.pendingEnter == nil {
		return false
	}
	filenameOK := t.pendingFlags&event.PtrReadFailure == 0
	argv, filename := t.pendingEnter.Argv, t.pendingEnter.RequestedFilename
	ev, err := b.table.OnExecExit(t.id, b.ids.Next(), event.Outcome{Success: true})
	t.pendingEnter = nil
	if err != nil {
		b.emitErr(fmt.Errorf("ptracebackend: %w", err))
		return false
	}
	ev.Flags = t.pendingFlags
	t.pendingFlags = 0
	if comm, cerr := commOf(pid); cerr == nil {
		ev.Attempt.Comm = comm
	}
	b.emit(event.Event{
		Header: event.Header{Pid: t.id, EventID: ev.EventID, Flags: ev.Flags, Type: event.KindExecAttempt},
		Exec:   ev,
	})
	return b.checkBreakpoint(pid, t, breakpoint.SysExit, argv, filename, filenameOK)
}

// captureExecFailureExit reports whether a sysexit breakpoint matched and
// parked the tracee.
func (b *Backend) captureExecFailureExit(pid int, t *tracee, regs abi.Regs) bool {
	ret := regs.ReturnValue()
	outcome := event.Outcome{Success: false, Errno: int(-ret), Symbol: errno.Symbol(int(-ret))}
	filenameOK := t.pendingFlags&event.PtrReadFailure == 0
	argv, filename := t.pendingEnter.Argv, t.pendingEnter.RequestedFilename
	ev, err := b.table.OnExecExit(t.id, b.ids.Next(), outcome)
	t.pendingEnter = nil
	if err != nil {
		b.emitErr(fmt.Errorf("ptracebackend: %w", err))
		return false
	}
	ev.Flags = t.pendingFlags
	t.pendingFlags = 0
	b.emit(event.Event{
		Header: event.Header{Pid: t.id, EventID: ev.EventID, Flags: ev.Flags, Type: event.KindExecAttempt},
		Exec:   ev,
	})
	return b.checkBreakpoint(pid, t, breakpoint.SysExit, argv, filename, filenameOK)
}
