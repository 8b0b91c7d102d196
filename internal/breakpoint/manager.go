package breakpoint

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"syscall"

	shellquote "github.com/kballard/go-shellquote"
)

// Detacher is the ptrace-level capability a backend exposes so the
// breakpoint engine can act on a stopped tracee without depending on the
// backend package directly (avoiding an import cycle). ptracebackend.Backend
// implements it.
type Detacher interface {
	// DetachStopped detaches from pid (PTRACE_DETACH), delivering sig to
	// it as part of the detach (0 lets it continue running free;
	// syscall.SIGSTOP leaves it paused for e.g. an external debugger to
	// attach).
	DetachStopped(pid int, sig syscall.Signal) error
	// ResumeStopped lets pid continue past the ptrace-stop it hit a
	// breakpoint at, still under trace.
	ResumeStopped(pid int, stop Stop) error
}

// Hit is one breakpoint activation awaiting a consumer decision.
type Hit struct {
	HitID        int
	BreakpointID int
	Pid          int
	Stop         Stop
}

// Manager tracks pending hits and carries out the consumer-driven
// actions (resume, detach, detach-and-run) against a Detacher. Grounded
// on original_source/src/tui/hit_manager.rs's HitManagerState, stripped
// of its ratatui rendering: add_hit/detach/resume/
// detach_pause_and_launch_external map to Add/Detach/Resume/DetachAndRun.
type Manager struct {
	detacher Detacher

	mu      sync.Mutex
	nextHit int
	hits    map[int]Hit
}

func NewManager(d Detacher) *Manager {
	return &Manager{detacher: d, hits: make(map[int]Hit)}
}

// Add records a fresh hit of breakpoint bid in pid at stop, and returns
// its hit ID for later Detach/Resume/DetachAndRun calls.
func (m *Manager) Add(bid, pid int, stop Stop) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextHit
	m.nextHit++
	m.hits[id] = Hit{HitID: id, BreakpointID: bid, Pid: pid, Stop: stop}
	return id
}

// Hits returns a snapshot of all pending hits.
func (m *Manager) Hits() []Hit {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Hit, 0, len(m.hits))
	for _, h := range m.hits {
		out = append(out, h)
	}
	return out
}

func (m *Manager) pop(hitID int) (Hit, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.hits[hitID]
	if ok {
		delete(m.hits, hitID)
	}
	return h, ok
}

// Detach lets the tracee run free, untraced, with no additional signal.
func (m *Manager) Detach(hitID int) error {
	hit, ok := m.pop(hitID)
	if !ok {
		return nil
	}
	return m.detacher.DetachStopped(hit.Pid, 0)
}

// Resume lets the tracee continue past the matched stop, still traced.
func (m *Manager) Resume(hitID int) error {
	hit, ok := m.pop(hitID)
	if !ok {
		return nil
	}
	return m.detacher.ResumeStopped(hit.Pid, hit.Stop)
}

// DetachAndRun detaches the tracee leaving it stopped (SIGSTOP), then
// spawns cmdTemplate with every "{{PID}}" placeholder substituted for the
// tracee's pid — e.g. "gdb -p {{PID}}" to attach an external debugger to
// the paused process. The spawned command's own stdio is left attached
// to the session's, like a directly-run external tool would be.
func (m *Manager) DetachAndRun(hitID int, cmdTemplate string) (*exec.Cmd, error) {
	hit, ok := m.pop(hitID)
	if !ok {
		return nil, nil
	}
	if err := m.detacher.DetachStopped(hit.Pid, syscall.SIGSTOP); err != nil {
		return nil, fmt.Errorf("breakpoint: detach hit %d (pid %d): %w", hitID, hit.Pid, err)
	}

	cmdline := strings.ReplaceAll(cmdTemplate, "{{PID}}", strconv.Itoa(hit.Pid))
	args, err := shellquote.Split(cmdline)
	if err != nil {
		return nil, fmt.Errorf("breakpoint: parse external command %q: %w", cmdTemplate, err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("breakpoint: empty external command")
	}

	cmd := exec.Command(args[0], args[1:]...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("breakpoint: start external command %q: %w", cmdline, err)
	}
	return cmd, nil
}
