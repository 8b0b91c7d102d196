//go:build linux

package ptracebackend

import (
	"github.com/tracexec-go/tracexec/internal/abi"
	"github.com/tracexec-go/tracexec/internal/event"
)

// readExecAttempt captures an ExecAttempt from a tracee stopped at the
// entry of execve or execveat, reading its syscall arguments out of the
// tracee's own address space. Any partial-read failure sets the
// corresponding Flags bit rather than aborting the whole capture, per
// spec.md §7's "best-effort, flag the gap" error model.
func (b *Backend) readExecAttempt(pid int, regs abi.Regs) (event.ExecAttempt, event.Flags) {
	var flags event.Flags

	variant, ok := abi.IsExecSyscall(currentArch(), regs.BitMode(), regs.SyscallNo())
	if !ok {
		variant = abi.Execve
	}

	var filenameAddr uintptr
	var argvAddr, envpAddr uintptr
	var dirfd *int32
	var execFlags uint32

	if variant == abi.Execveat {
		fd := int32(regs.Arg(0))
		dirfd = &fd
		filenameAddr = uintptr(regs.Arg(1))
		argvAddr = uintptr(regs.Arg(2))
		envpAddr = uintptr(regs.Arg(3))
		execFlags = uint32(regs.Arg(4))
	} else {
		filenameAddr = uintptr(regs.Arg(0))
		argvAddr = uintptr(regs.Arg(1))
		envpAddr = uintptr(regs.Arg(2))
	}

	filename, truncated, err := readCString(pid, filenameAddr)
	if err != nil {
		flags |= event.PtrReadFailure
	} else if truncated {
		flags |= event.PossibleTruncation
	}

	argv, argvFlags := b.readStringVector(pid, argvAddr)
	flags |= argvFlags

	envpRaw, envpFlags := b.readStringVector(pid, envpAddr)
	flags |= envpFlags
	envp := make([]event.EnvVar, 0, len(envpRaw))
	for _, kv := range envpRaw {
		envp = append(envp, splitEnv(kv))
	}

	cwd, err := cwdOf(pid)
	if err != nil {
		flags |= event.PtrReadFailure
	}
	// cwd and the requested filename repeat heavily across a session (a
	// build's many execs typically share one working directory and a
	// handful of interpreters); routing them through the shared cache
	// keeps their backing storage deduplicated. argv and envp strings are
	// not interned.
	cwd = b.strs.InternString(cwd).String()
	filename = b.strs.InternString(filename).String()

	fds, fdsOK := snapshotFds(pid)
	if !fdsOK {
		flags |= event.FdProbeFailure
	}
	fdList := make([]event.FdInfo, 0, len(fds))
	for _, info := range fds {
		fdList = append(fdList, info)
	}

	attempt := event.ExecAttempt{
		Variant:           variant,
		BitMode:           regs.BitMode(),
		RequestedFilename: filename,
		Argv:              argv,
		Envp:              envp,
		Cwd:               event.PathRef{Absolute: cwd},
		FdSnapshot:        fdList,
		DirFd:             dirfd,
		ExecFlags:         execFlags,
	}
	return attempt, flags
}

// readStringVector reads a NUL-terminated argv/envp-style array of
// C-string pointers, honoring the backend's configured item cap.
func (b *Backend) readStringVector(pid int, addr uintptr) ([]string, event.Flags) {
	var flags event.Flags
	if addr == 0 {
		return nil, flags
	}

	ptrs, tooMany, err := readPointerArray(pid, addr, b.limits.MaxItems)
	if err != nil {
		flags |= event.PtrReadFailure
		return nil, flags
	}
	if tooMany {
		flags |= event.TooManyItems
	}

	out := make([]string, 0, len(ptrs))
	for _, p := range ptrs {
		s, truncated, err := readCString(pid, p)
		if err != nil {
			flags |= event.PtrReadFailure
			continue
		}
		if truncated {
			flags |= event.PossibleTruncation
		}
		out = append(out, s)
	}
	return out, flags
}

// splitEnv decodes a raw "KEY=VALUE" envp entry into its two halves, per
// spec.md §3. Entries with no '=' are recorded with an empty value and
// the whole string as the key, matching what getenv sees for a malformed
// entry.
func splitEnv(raw string) event.EnvVar {
	for i := 0; i < len(raw); i++ {
		if raw[i] == '=' {
			return event.EnvVar{Key: raw[:i], Value: raw[i+1:]}
		}
	}
	return event.EnvVar{Key: raw}
}
