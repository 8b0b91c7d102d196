//go:build linux

package ptracebackend

import (
	"encoding/binary"
	"os"
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"
)

// useVMReadv tracks whether process_vm_readv is known to work on this
// kernel; it starts true and is flipped to false process-wide the first
// time a call returns ENOSYS, exactly as the teacher's
// ptracer/context_linux.go UseVMReadv does — vmRead is far cheaper than
// PTRACE_PEEKDATA (one syscall per read instead of one per word) but not
// universally available.
var useVMReadv = true

var pageSize = os.Getpagesize()

const maxStringLen = unix.PathMax

// readCString reads a NUL-terminated string at addr in pid's address
// space, preferring process_vm_readv and falling back to PTRACE_PEEKDATA.
// The returned bool reports whether the string was truncated at
// maxStringLen without finding a NUL (POSSIBLE_TRUNCATION territory).
func readCString(pid int, addr uintptr) (string, bool, error) {
	buf := make([]byte, maxStringLen)

	if useVMReadv {
		if err := vmReadStr(pid, addr, buf); err == nil {
			return cstr(buf)
		} else if errno, ok := err.(syscall.Errno); ok && errno == syscall.ENOSYS {
			useVMReadv = false
		} else {
			return "", false, err
		}
	}

	if err := ptraceReadStr(pid, addr, buf); err != nil {
		return "", false, err
	}
	return cstr(buf)
}

func cstr(buf []byte) (string, bool, error) {
	for i, b := range buf {
		if b == 0 {
			return string(buf[:i]), false, nil
		}
	}
	return string(buf), true, nil
}

// ptraceReadStr reads via PTRACE_PEEKDATA, word at a time, which is what
// syscall.PtracePeekData already does internally.
func ptraceReadStr(pid int, addr uintptr, buf []byte) error {
	_, err := syscall.PtracePeekData(pid, addr, buf)
	return err
}

// vmReadStr reads via process_vm_readv, one page-aligned chunk at a time,
// stopping as soon as a NUL byte is seen in the chunk just read — mirrors
// ptracer/context_helper_linux.go's vmReadStr.
func vmReadStr(pid int, addr uintptr, buf []byte) error {
	total := 0
	next := pageSize - int(addr%uintptr(pageSize))
	if next == 0 {
		next = pageSize
	}

	for len(buf) > 0 {
		if rest := len(buf); rest < next {
			next = rest
		}

		n, err := vmRead(pid, addr+uintptr(total), buf[:next])
		if err != nil {
			return err
		}
		if n == 0 {
			break
		}
		if containsNUL(buf[:n]) {
			break
		}

		total += n
		buf = buf[n:]
		next = pageSize
	}
	return nil
}

func containsNUL(b []byte) bool {
	for _, c := range b {
		if c == 0 {
			return true
		}
	}
	return false
}

func vmRead(pid int, addr uintptr, buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	local := []unix.Iovec{iovec(&buf[0], len(buf))}
	remote := []unix.Iovec{iovec((*byte)(unsafe.Pointer(addr)), len(buf))}

	n, _, errno := syscall.Syscall6(unix.SYS_PROCESS_VM_READV, uintptr(pid),
		uintptr(unsafe.Pointer(&local[0])), uintptr(len(local)),
		uintptr(unsafe.Pointer(&remote[0])), uintptr(len(remote)), 0)
	if errno != 0 {
		return int(n), errno
	}
	return int(n), nil
}

func iovec(base *byte, l int) unix.Iovec {
	return unix.Iovec{Base: base, Len: uint64(l)}
}

// readPointerArray reads a NUL-terminated array of pointers at addr (e.g.
// argv, envp) and returns the addresses, stopping at maxItems to respect
// ARGC_MAX (spec.md §8 boundary behavior) — reading maxItems entries sets
// tooMany, even when the array's NULL terminator follows right after them.
func readPointerArray(pid int, addr uintptr, maxItems int) (ptrs []uintptr, tooMany bool, err error) {
	const wordSize = 8
	buf := make([]byte, wordSize)
	for i := 0; ; i++ {
		if i >= maxItems {
			tooMany = true
			break
		}
		if err = vmReadOrPeek(pid, addr+uintptr(i*wordSize), buf); err != nil {
			return nil, false, err
		}
		ptr := uintptr(binary.LittleEndian.Uint64(buf))
		if ptr == 0 {
			break
		}
		ptrs = append(ptrs, ptr)
	}
	return ptrs, tooMany, nil
}

func vmReadOrPeek(pid int, addr uintptr, buf []byte) error {
	if useVMReadv {
		if _, err := vmRead(pid, addr, buf); err == nil {
			return nil
		}
	}
	_, err := syscall.PtracePeekData(pid, addr, buf)
	return err
}
