// Package ebpfbackend implements the accelerated exec tracing backend
// (spec.md §4.7): a CO-RE eBPF program traces exec/fork/exit tracepoints
// system-wide and streams
// fragmented records over a ring buffer, which this package reassembles
// (via internal/assembler) into the same event.Event shape the ptrace
// backend produces.
package ebpfbackend

import (
	"fmt"
	"log"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/cilium/ebpf/link"
	"github.com/cilium/ebpf/ringbuf"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/xerrors"

	"github.com/tracexec-go/tracexec/internal/assembler"
	"github.com/tracexec-go/tracexec/internal/event"
	"github.com/tracexec-go/tracexec/internal/forkexec"
	"github.com/tracexec-go/tracexec/internal/proctree"
)

// Config selects what the accelerated backend traces.
type Config struct {
	// ObjectPath is where the compiled tracexec.bpf.o lives; empty uses
	// DefaultObjectPath.
	ObjectPath string
	// FollowForks attaches the sched_process_fork tracepoint so fork
	// events are reported. Tracing is system-wide whether or not it is
	// set: Start never fills in tracexec_config, so the probe's closure
	// check (tgid_closure map) stays disabled.
	FollowForks bool
}

// Backend is one accelerated tracing session. The zero value is not
// usable; use Start.
type Backend struct {
	table *proctree.Table
	asm   *assembler.Assembler

	objs *bpfObjects
	rb   *ringbuf.Reader
	tps  []link.Link

	events chan event.Event
	errs   chan error
	done   chan struct{}

	rootPid int

	closeOnce sync.Once
	closed    atomic.Bool
}

var errBackendClosed = xerrors.New("ebpfbackend: backend is closed")

// Start loads the eBPF program, spawns spec.Args as the root tracee
// (stopped until attach completes, matching the teacher's spawn-then-
// SIGCONT sequencing in original_source/src/bpf/tracer.rs), attaches the
// tracepoints, and begins streaming events.
func Start(spec forkexec.Spec, cfg Config) (*Backend, error) {
	path := cfg.ObjectPath
	if path == "" {
		path = DefaultObjectPath
	}

	objs, err := loadObjects(path)
	if err != nil {
		return nil, xerrors.Errorf("ebpfbackend: load objects: %w", err)
	}

	b := &Backend{
		table:  proctree.NewTable(),
		asm:    assembler.New(),
		objs:   objs,
		events: make(chan event.Event, 256),
		errs:   make(chan error, 16),
		done:   make(chan struct{}),
	}

	ok := false
	defer func() {
		if !ok {
			_ = b.Close()
		}
	}()

	spec.Ptrace = false
	spec.StopBeforeExec = true
	proc, err := forkexec.Start(spec)
	if err != nil {
		return nil, xerrors.Errorf("ebpfbackend: spawn root tracee: %w", err)
	}
	b.rootPid = proc.Pid
	b.table.Resolve(proc.Pid)

	if err := forkexec.WaitStopped(proc.Pid); err != nil {
		return nil, xerrors.Errorf("ebpfbackend: %w", err)
	}

	tp, err := link.Tracepoint("syscalls", "sys_enter_execve", b.objs.ExecveProg, nil)
	if err != nil {
		return nil, xerrors.Errorf("ebpfbackend: attach execve tracepoint: %w", err)
	}
	b.tps = append(b.tps, tp)

	// The exit-side probes are what let exec_event carry a real
	// success/errno_value: handle_execve/handle_execveat only stage the
	// attempt's fragments, the matching sys_exit probe is what observes
	// whether the syscall actually succeeded.
	execExitTp, err := link.Tracepoint("syscalls", "sys_exit_execve", b.objs.ExecveExitProg, nil)
	if err != nil {
		return nil, xerrors.Errorf("ebpfbackend: attach execve exit tracepoint: %w", err)
	}
	b.tps = append(b.tps, execExitTp)

	execveatTp, err := link.Tracepoint("syscalls", "sys_enter_execveat", b.objs.ExecveatProg, nil)
	if err != nil {
		return nil, xerrors.Errorf("ebpfbackend: attach execveat tracepoint: %w", err)
	}
	b.tps = append(b.tps, execveatTp)

	execveatExitTp, err := link.Tracepoint("syscalls", "sys_exit_execveat", b.objs.ExecveatExitProg, nil)
	if err != nil {
		return nil, xerrors.Errorf("ebpfbackend: attach execveat exit tracepoint: %w", err)
	}
	b.tps = append(b.tps, execveatExitTp)

	if cfg.FollowForks {
		forkTp, err := link.Tracepoint("sched", "sched_process_fork", b.objs.ForkProg, nil)
		if err != nil {
			return nil, xerrors.Errorf("ebpfbackend: attach fork tracepoint: %w", err)
		}
		b.tps = append(b.tps, forkTp)
	}

	exitTp, err := link.Tracepoint("sched", "sched_process_exit", b.objs.ExitProg, nil)
	if err != nil {
		return nil, xerrors.Errorf("ebpfbackend: attach exit tracepoint: %w", err)
	}
	b.tps = append(b.tps, exitTp)

	rb, err := ringbuf.NewReader(b.objs.EventsMap)
	if err != nil {
		return nil, xerrors.Errorf("ebpfbackend: open ringbuf reader: %w", err)
	}
	b.rb = rb

	if err := forkexec.Resume(proc.Pid); err != nil {
		return nil, xerrors.Errorf("ebpfbackend: resume root tracee: %w", err)
	}

	stack := debug.Stack()
	runtime.SetFinalizer(b, func(b *Backend) {
		err := b.Close()
		if xerrors.Is(err, errBackendClosed) {
			return
		}
		log.Printf("ebpfbackend: backend was finalized but never closed, created at: %s", stack)
		if err != nil {
			log.Printf("ebpfbackend: closing finalized backend failed: %v", err)
		}
	})

	go b.run()
	ok = true
	return b, nil
}

// Events returns the channel of fully assembled exec/fork/exit events.
func (b *Backend) Events() <-chan event.Event { return b.events }

// Errors returns the channel of non-fatal decode/ringbuf errors.
func (b *Backend) Errors() <-chan error { return b.errs }

// RootPid returns the spawned root tracee's pid, for a caller that wants
// to apply its own exit discipline (wait/terminate/kill).
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

// run drains the ring buffer until it is closed (by Close), decoding each
// record and feeding it to the assembler; fully reassembled events are
// forwarded on Events. done is closed exclusively by Close, never here,
// so it is safe for Close to run concurrently with (or before) this loop
// ever executes.
func (b *Backend) run() {
	defer close(b.events)

	for {
		record, err := b.rb.Read()
		if err != nil {
			if !xerrors.Is(err, ringbuf.ErrClosed) {
				b.emitErr(fmt.Errorf("ebpfbackend: read ringbuf: %w", err))
			}
			return
		}

		ev, err := decodeRecord(record.RawSample, b.taskFor, b.onFork)
		if err != nil {
			b.emitErr(err)
			continue
		}

		if ev.Header.Type == event.KindExit {
			payload := b.table.OnSignalExit(ev.Header.Pid, ev.Exit.ExitCode, ev.Exit.Signal)
			payload.IsRootTracee = ev.Header.Pid.OsPid == b.rootPid
			ev.Exit = payload
		}

		if complete, ok := b.asm.Feed(ev); ok {
			out := event.Event{
				Header: event.Header{Pid: complete.Task, EventID: complete.EventID, Flags: complete.Flags, Type: event.KindExecAttempt},
				Exec:   complete,
			}
			b.emit(out)
			continue
		}

		switch ev.Header.Type {
		case event.KindFork, event.KindExit:
			b.emit(ev)
		}
	}
}

func (b *Backend) taskFor(pid int) event.TaskID {
	id, _ := b.table.Resolve(pid)
	return id
}

// onFork resolves parentPid's current TaskID (falling back to Resolve if
// this is the first record ever seen for it, e.g. the root tracee's own
// unobserved ancestry) and links childPid to it in the process table.
// Fds are not inherited here: the eBPF backend snapshots a tracee's fd
// table fresh at each exec entry rather than tracking it incrementally.
func (b *Backend) onFork(childPid, parentPid int) event.TaskID {
	parent, _ := b.table.Resolve(parentPid)
	return b.table.OnFork(parent, childPid, false)
}

// Close tears down the ringbuf reader, tracepoint links and loaded
// objects, in reverse order of acquisition. Safe to call more than once.
func (b *Backend) Close() error {
	if b.closed.Load() {
		return errBackendClosed
	}

	var merr error
	b.closeOnce.Do(func() {
		b.closed.Store(true)
		runtime.SetFinalizer(b, nil)
		close(b.done)

		if b.rb != nil {
			if err := b.rb.Close(); err != nil {
				merr = multierror.Append(merr, xerrors.Errorf("close ringbuf reader: %w", err))
			}
		}
		for i := len(b.tps) - 1; i >= 0; i-- {
			if err := b.tps[i].Close(); err != nil {
				merr = multierror.Append(merr, xerrors.Errorf("close tracepoint link: %w", err))
			}
		}
		if b.objs != nil {
			if err := b.objs.Close(); err != nil {
				merr = multierror.Append(merr, xerrors.Errorf("close bpf objects: %w", err))
			}
		}
	})
	if merr == nil {
		return nil
	}
	return merr
}
