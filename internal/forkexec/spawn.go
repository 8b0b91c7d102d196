// Package forkexec spawns the root tracee: it applies the requested
// working directory, user/group identity and stdio plumbing, and (for the
// ptrace backend) arranges for the child to call PTRACE_TRACEME and stop
// before its own execve, exactly as the teacher's pkg/forkexec.Runner did
// for a sandboxed child — trimmed here to the fields a tracer (not a
// sandbox) needs; see DESIGN.md for what was dropped.
package forkexec

import (
	"fmt"
	"os"
	"os/exec"
	"os/user"
	"strconv"
	"syscall"
)

// Spec configures how to launch the root tracee.
type Spec struct {
	// Args is the command line: Args[0] is the program to run, which is
	// resolved against PATH unless it is already a path.
	Args []string
	// Env is the child's environment vector; if nil, the tracer's own
	// environment is inherited (matches a plain shell invocation).
	Env []string
	// WorkDir is the child's cwd; empty means inherit the tracer's cwd.
	WorkDir string
	// User, if non-empty, names the user (by name or numeric uid) the
	// child's credential is switched to before its own execve.
	User string
	// Stdin/Stdout/Stderr are the child's standard fds; nil means inherit
	// the tracer's.
	Stdin, Stdout, Stderr *os.File
	// Ptrace requests PTRACE_TRACEME in the child before execve. The
	// child's first stop is the SIGTRAP that follows that execve, so the
	// first exec itself is never seen by the tracer as a syscall stop.
	Ptrace bool
	// StopBeforeExec runs the child through a /bin/sh wrapper that stops
	// itself with SIGSTOP before it execs the real program, giving an eBPF-based caller (which has no
	// ptrace-style pre-exec hook to rely on) a window to attach its
	// tracepoints before SIGCONT lets the child proceed to the program it
	// was actually asked to run. Mutually exclusive with Ptrace.
	StopBeforeExec bool
}

// Process wraps the spawned child so the ptrace backend can wait on it
// without depending on exec.Cmd directly.
type Process struct {
	Cmd *exec.Cmd
	Pid int
}

// Start spawns the tracee per spec and returns once the child process
// exists (for Ptrace specs, it is stopped on its own SIGTRAP from
// PTRACE_TRACEME + the implicit exec-stop, ready for the tracer to apply
// ptrace options and resume it).
func Start(spec Spec) (*Process, error) {
	if len(spec.Args) == 0 {
		return nil, fmt.Errorf("forkexec: empty argument vector")
	}

	var cmd *exec.Cmd
	if spec.StopBeforeExec {
		// os/exec has no pre-exec hook (unlike a raw fork, there is no
		// point between clone and execve to run Go code in the child), so
		// the self-stop original_source/src/bpf/tracer.rs performs in its
		// spawn callback is done here by a tiny shell wrapper instead: it
		// signals its own STOP, then (once resumed) execs the real
		// program by positional parameter, so PATH resolution and argv[0]
		// behave exactly as a direct invocation would.
		wrapped := append([]string{"-c", stopThenExecScript}, spec.Args...)
		cmd = exec.Command("/bin/sh", wrapped...)
	} else {
		// Resolve through PATH like a shell would, but never fail the call
		// over it: a lookup miss is exactly the exec-enoent case the tracer
		// exists to observe, so the literal argument is handed to the kernel
		// unchanged and left to fail its own execve.
		path := spec.Args[0]
		if resolved, err := exec.LookPath(spec.Args[0]); err == nil {
			path = resolved
		}
		cmd = exec.Command(path, spec.Args[1:]...)
		cmd.Args = spec.Args
	}
	cmd.Env = spec.Env
	cmd.Dir = spec.WorkDir
	cmd.Stdin = orStdio(spec.Stdin, os.Stdin)
	cmd.Stdout = orStdio(spec.Stdout, os.Stdout)
	cmd.Stderr = orStdio(spec.Stderr, os.Stderr)

	attr := &syscall.SysProcAttr{Ptrace: spec.Ptrace}
	if spec.Ptrace {
		// The tracer must LockOSThread and ptrace-wait on the very first
		// stop. The child calls PTRACE_TRACEME and then execve; that
		// execve delivers the SIGTRAP the tracer sees first, after the
		// requested program has been loaded.
		attr.Ptrace = true
	}
	if spec.User != "" {
		cred, err := credentialFor(spec.User)
		if err != nil {
			return nil, err
		}
		attr.Credential = cred
	}
	cmd.SysProcAttr = attr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("forkexec: start %q: %w", spec.Args[0], err)
	}

	return &Process{Cmd: cmd, Pid: cmd.Process.Pid}, nil
}

// stopThenExecScript is run by /bin/sh -c when Spec.StopBeforeExec is set.
// $0 and the remaining positional parameters are the caller's original
// Args; "$0" is exec'd by name so the shell performs the same PATH lookup
// a direct invocation would.
const stopThenExecScript = `kill -STOP $$; exec "$0" "$@"`

// WaitStopped blocks until pid has stopped itself (the stopThenExecScript
// SIGSTOP, or any other group-stop), without reaping it. Callers use this
// to know it is safe to attach tracing before sending SIGCONT.
func WaitStopped(pid int) error {
	var ws syscall.WaitStatus
	for {
		_, err := syscall.Wait4(pid, &ws, syscall.WUNTRACED, nil)
		if err == syscall.EINTR {
			continue
		}
		if err != nil {
			return fmt.Errorf("forkexec: wait4 %d: %w", pid, err)
		}
		if ws.Stopped() {
			return nil
		}
		if ws.Exited() || ws.Signaled() {
			return fmt.Errorf("forkexec: tracee %d exited before tracing attached", pid)
		}
	}
}

// Resume sends SIGCONT to pid, letting a StopBeforeExec tracee proceed to
// its real execve once the caller has finished attaching.
func Resume(pid int) error {
	return syscall.Kill(pid, syscall.SIGCONT)
}

func orStdio(preferred, fallback *os.File) *os.File {
	if preferred != nil {
		return preferred
	}
	return fallback
}

// credentialFor resolves a user name or numeric uid into a syscall
// credential with that user's uid and primary gid; supplementary groups
// are cleared, not set to that user's groups.
// This is also the point at which the seccomp accelerator's auto-downgrade
// decision is made (spec.md §4.6): switching user defeats no-new-privs
// unless the program being exec'd is not setuid, so callers that request a
// non-empty User should treat the accelerator as incompatible.
func credentialFor(name string) (*syscall.Credential, error) {
	u, err := user.Lookup(name)
	if err != nil {
		if _, numErr := strconv.Atoi(name); numErr == nil {
			u, err = user.LookupId(name)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("forkexec: lookup user %q: %w", name, err)
	}

	uid, err := strconv.ParseUint(u.Uid, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("forkexec: parse uid %q: %w", u.Uid, err)
	}
	gid, err := strconv.ParseUint(u.Gid, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("forkexec: parse gid %q: %w", u.Gid, err)
	}

	return &syscall.Credential{Uid: uint32(uid), Gid: uint32(gid)}, nil
}
