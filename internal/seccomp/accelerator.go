package seccomp

import (
	"fmt"
	"syscall"

	libseccomp "github.com/elastic/go-seccomp-bpf"
	"github.com/elastic/go-seccomp-bpf/arch"
	"golang.org/x/net/bpf"
)

// Build compiles the accelerator filter: trap execve and execveat to the
// tracer, allow every other syscall. Only the host architecture's native
// syscall numbers are trapped; 32-bit compat numbers are not. Installed with no-new-privs set, this
// collapses the ptrace backend's per-syscall-stop overhead to just the two
// syscalls it actually cares about.
func Build() (Filter, error) {
	info, err := arch.GetInfo("")
	if err != nil {
		return nil, fmt.Errorf("seccomp: resolve architecture info: %w", err)
	}

	// info.SyscallNumbers maps syscall number -> name for this
	// architecture (the same field the teacher's
	// pkg/seccomp/libseccomp/syscall_name_linux.go indexes by number); we
	// need the reverse direction to ask the policy builder for "execve"
	// and "execveat" by name.
	known := make(map[string]bool, len(info.SyscallNumbers))
	for _, name := range info.SyscallNumbers {
		known[name] = true
	}

	trapNames := []string{"execve", "execveat"}
	var trap []string
	for _, name := range trapNames {
		if known[name] {
			trap = append(trap, name)
		}
	}
	if len(trap) == 0 {
		return nil, fmt.Errorf("seccomp: architecture %v defines neither execve nor execveat", info.ID)
	}

	policy := libseccomp.Policy{
		DefaultAction: libseccomp.ActionAllow,
		Syscalls: []libseccomp.SyscallGroup{
			{
				Action: libseccomp.ActionTrace,
				Names:  trap,
			},
		},
	}

	program, err := policy.Assemble()
	if err != nil {
		return nil, fmt.Errorf("seccomp: assemble policy: %w", err)
	}
	return export(program)
}

// export lowers a compiled BPF program into the kernel SockFilter form.
func export(program []bpf.Instruction) (Filter, error) {
	raw, err := bpf.Assemble(program)
	if err != nil {
		return nil, fmt.Errorf("seccomp: assemble BPF instructions: %w", err)
	}
	filter := make(Filter, 0, len(raw))
	for _, instr := range raw {
		filter = append(filter, syscall.SockFilter{
			Code: instr.Op,
			Jt:   instr.Jt,
			Jf:   instr.Jf,
			K:    instr.K,
		})
	}
	return filter, nil
}

// Mode is the CLI/config-level --seccomp-bpf selection (spec.md §6).
type Mode int

const (
	ModeAuto Mode = iota
	ModeOn
	ModeOff
)

func ParseMode(s string) (Mode, error) {
	switch s {
	case "auto", "":
		return ModeAuto, nil
	case "on":
		return ModeOn, nil
	case "off":
		return ModeOff, nil
	default:
		return 0, fmt.Errorf("seccomp: invalid --seccomp-bpf mode %q", s)
	}
}

// Decide resolves a Mode plus the incompatibilities spec.md §4.6 and §7
// call out (a non-empty --user target requires no-new-privs to stay off)
// into whether the accelerator should actually be installed, and if not,
// why — ptracebackend.Start reports that reason on its Errors channel,
// which the session dispatcher forwards on Warnings, rather than failing
// silently.
func Decide(mode Mode, userRequested bool) (enabled bool, reason string) {
	switch mode {
	case ModeOff:
		return false, "disabled by --seccomp-bpf=off"
	case ModeOn:
		if userRequested {
			return false, "--user requires no-new-privs disabled"
		}
		return true, ""
	default: // ModeAuto
		if userRequested {
			return false, "--user requires no-new-privs disabled"
		}
		return true, ""
	}
}
