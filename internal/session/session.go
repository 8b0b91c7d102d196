// Package session implements the session dispatcher (spec.md §4.9): it
// wraps an already-started tracing backend (ptracebackend or
// ebpfbackend), applies filter configuration and a retained-event cap,
// and enforces exit discipline on shutdown. Grounded on
// coder-exectrace/enterprise/exectrace.go's event loop — a buffered
// events channel, an errors channel and a done signal multiplexed in one
// select — generalized from "log every event" to "filter, cap, and fan
// out".
package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"syscall"

	"golang.org/x/xerrors"

	"github.com/tracexec-go/tracexec/internal/event"
)

// BackendKind selects which tracing backend a session runs atop.
type BackendKind int

const (
	BackendPtrace BackendKind = iota
	BackendEBPF
)

// ParseBackendKind parses the --ebpf-style CLI/profile backend selector.
func ParseBackendKind(s string) (BackendKind, error) {
	switch s {
	case "", "ptrace":
		return BackendPtrace, nil
	case "ebpf":
		return BackendEBPF, nil
	default:
		return 0, fmt.Errorf("session: unknown backend %q", s)
	}
}

// ExitDiscipline governs what happens to the root tracee when the
// consumer closes a Session (spec.md §4.9's exit_handling).
type ExitDiscipline int

const (
	// Wait leaves the root tracee to run to its own completion.
	Wait ExitDiscipline = iota
	// Terminate sends TerminateSignal to the root tracee's process group.
	Terminate
	// Kill sends KillSignal to the root tracee's process group.
	Kill
)

// Severity buckets an ExecEvent for --filter/severity CLI flags and for
// TUI/log rendering (spec.md §7).
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
)

// SeverityOf derives an ExecEvent's severity: a failed exec is an error,
// a successful one that still carries a partial-capture flag is a
// warning, anything else is informational.
func SeverityOf(ev *event.ExecEvent) Severity {
	if !ev.Outcome.Success {
		return SeverityError
	}
	if ev.Flags != 0 {
		return SeverityWarning
	}
	return SeverityInfo
}

// Filter narrows which events Session.Events publishes. The zero value
// passes only informational exec attempts (its MaxSeverity is
// SeverityInfo); use DefaultFilter to pass every severity.
type Filter struct {
	MinSeverity, MaxSeverity Severity
	// Kinds, if non-nil, restricts publication to the listed kinds
	// (--filter-include); Exclude then removes listed kinds
	// (--filter-exclude). Both apply regardless of MaxSeverity.
	Kinds   map[event.Kind]bool
	Exclude map[event.Kind]bool
	// SuccessfulOnly drops failed exec attempts entirely (--successful-only).
	SuccessfulOnly bool
}

// DefaultFilter passes every severity and every kind.
func DefaultFilter() Filter {
	return Filter{MinSeverity: SeverityInfo, MaxSeverity: SeverityError}
}

func (f Filter) allows(ev event.Event) bool {
	if f.Kinds != nil && !f.Kinds[ev.Header.Type] {
		return false
	}
	if f.Exclude != nil && f.Exclude[ev.Header.Type] {
		return false
	}
	if ev.Header.Type != event.KindExecAttempt || ev.Exec == nil {
		return true
	}
	sev := SeverityOf(ev.Exec)
	if sev < f.MinSeverity || sev > f.MaxSeverity {
		return false
	}
	if f.SuccessfulOnly && !ev.Exec.Outcome.Success {
		return false
	}
	return true
}

// DefaultMaxEvents matches spec.md §4.9's default retention cap.
const DefaultMaxEvents = 1_000_000

// Backend is the surface a tracing backend (ptracebackend.Backend or
// ebpfbackend.Backend) must expose to be wrapped in a Session.
type Backend interface {
	Events() <-chan event.Event
	Errors() <-chan error
	RootPid() int
}

// Closer is implemented by backends that hold resources needing explicit
// teardown beyond the root tracee's own exit (ebpfbackend's loaded
// programs and ring buffer reader). ptracebackend has nothing to close:
// its loop ends on its own once every tracee has exited.
type Closer interface {
	Close() error
}

// Config configures a Session atop an already-started Backend.
type Config struct {
	Filter         Filter
	MaxEvents      int // 0 = unlimited, per spec.md's max_events
	ExitDiscipline ExitDiscipline

	// TerminateSignal/KillSignal default to SIGTERM/SIGKILL.
	TerminateSignal, KillSignal syscall.Signal
}

// DefaultConfig matches the spec's conventional defaults: unrestricted
// filter, a 1,000,000-event retention cap, and Wait on close.
func DefaultConfig() Config {
	return Config{
		Filter:         DefaultFilter(),
		MaxEvents:      DefaultMaxEvents,
		ExitDiscipline: Wait,
	}
}

// CrashReport is the single terminal record a Session publishes in place
// of further events once its backend fails fatally (spec.md §7 point 4:
// TracerCrashed).
type CrashReport struct {
	Reason error
}

// Session multiplexes a Backend's Events/Errors into a filtered, capped
// stream, retains a bounded scrollback for pull-based consumers (the
// TUI), and enforces exit discipline on Close.
type Session struct {
	backend Backend
	cfg     Config

	out      chan event.Event
	warnings chan error
	crash    chan CrashReport
	done     chan struct{}

	mu   sync.Mutex
	ring []event.Event

	closing atomic.Bool
	closeMu sync.Mutex
	closed  bool
}

// New starts multiplexing backend's channels in a background goroutine
// and returns immediately; the caller drains Events (and, optionally,
// Warnings/Crashed) until Events closes.
func New(ctx context.Context, backend Backend, cfg Config) *Session {
	if cfg.TerminateSignal == 0 {
		cfg.TerminateSignal = syscall.SIGTERM
	}
	if cfg.KillSignal == 0 {
		cfg.KillSignal = syscall.SIGKILL
	}
	s := &Session{
		backend:  backend,
		cfg:      cfg,
		out:      make(chan event.Event, 256),
		warnings: make(chan error, 16),
		crash:    make(chan CrashReport, 1),
		done:     make(chan struct{}),
	}
	go s.run(ctx)
	return s
}

// Events returns the published, filtered event stream. Closed once the
// backend's own Events channel closes (normally or via a crash) or Close
// is called.
func (s *Session) Events() <-chan event.Event { return s.out }

// Warnings returns non-fatal backend errors (a single failed probe read,
// a transient ptrace failure on one tracee) as they occur.
func (s *Session) Warnings() <-chan error { return s.warnings }

// Crashed fires at most once, carrying the reason a fatal backend error
// ended the session before Close was ever called.
func (s *Session) Crashed() <-chan CrashReport { return s.crash }

// Retained returns a snapshot of the capped scrollback buffer, oldest
// first, for a pull-based consumer (the TUI repainting its event pane;
// collect asking for everything seen once the root tracee has exited).
func (s *Session) Retained() []event.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]event.Event, len(s.ring))
	copy(out, s.ring)
	return out
}

func (s *Session) run(ctx context.Context) {
	defer close(s.out)

	events := s.backend.Events()
	errs := s.backend.Errors()
	var lastErr error

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			lastErr = err
			select {
			case s.warnings <- err:
			default:
			}
		case ev, ok := <-events:
			if !ok {
				if lastErr != nil && !s.closing.Load() {
					select {
					case s.crash <- CrashReport{Reason: lastErr}:
					default:
					}
				}
				return
			}
			s.publish(ev)
		}
	}
}

func (s *Session) publish(ev event.Event) {
	if !s.cfg.Filter.allows(ev) {
		return
	}

	s.mu.Lock()
	s.ring = append(s.ring, ev)
	if s.cfg.MaxEvents != 0 {
		if over := len(s.ring) - s.cfg.MaxEvents; over > 0 {
			s.ring = append(s.ring[:0], s.ring[over:]...)
		}
	}
	s.mu.Unlock()

	select {
	case s.out <- ev:
	case <-s.done:
	}
}

// Close applies the session's exit discipline to the root tracee and
// tears down the backend's own resources (if it is a Closer). Safe to
// call more than once; later calls are no-ops.
func (s *Session) Close() error {
	s.closeMu.Lock()
	if s.closed {
		s.closeMu.Unlock()
		return nil
	}
	s.closed = true
	s.closeMu.Unlock()

	s.closing.Store(true)
	close(s.done)

	var err error
	switch s.cfg.ExitDiscipline {
	case Wait:
		// Nothing to signal; the caller's own drain of Events until it
		// closes is what "wait" means here.
	case Terminate:
		err = signalGroup(s.backend.RootPid(), s.cfg.TerminateSignal)
	case Kill:
		err = signalGroup(s.backend.RootPid(), s.cfg.KillSignal)
	}

	if closer, ok := s.backend.(Closer); ok {
		if cerr := closer.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

func signalGroup(pid int, sig syscall.Signal) error {
	if pid <= 0 {
		return nil
	}
	if err := syscall.Kill(-pid, sig); err != nil {
		return xerrors.Errorf("session: signal process group %d: %w", pid, err)
	}
	return nil
}
