// Package errno resolves a raw syscall return code into the errno symbol
// consumers expect in collect's JSON output ({"errno": N, "symbol": "ENOENT"}).
package errno

import "golang.org/x/sys/unix"

// Outcome is the result of an exec attempt: either success, or a failed
// syscall carrying the errno it returned.
type Outcome struct {
	Ok    bool
	Errno int
}

// Symbol returns the conventional C symbol name for errno (e.g. "ENOENT"),
// or "" if unrecognized.
func Symbol(errnoValue int) string {
	if sym, ok := symbols[unix.Errno(errnoValue)]; ok {
		return sym
	}
	return ""
}

// symbols covers the errno values an exec attempt can realistically
// return; it is not an exhaustive errno table.
var symbols = map[unix.Errno]string{
	unix.EPERM:        "EPERM",
	unix.ENOENT:       "ENOENT",
	unix.ESRCH:        "ESRCH",
	unix.EINTR:        "EINTR",
	unix.EIO:          "EIO",
	unix.E2BIG:        "E2BIG",
	unix.ENOEXEC:      "ENOEXEC",
	unix.EBADF:        "EBADF",
	unix.EAGAIN:       "EAGAIN",
	unix.ENOMEM:       "ENOMEM",
	unix.EACCES:       "EACCES",
	unix.EFAULT:       "EFAULT",
	unix.EBUSY:        "EBUSY",
	unix.EEXIST:       "EEXIST",
	unix.EXDEV:        "EXDEV",
	unix.ENODEV:       "ENODEV",
	unix.ENOTDIR:      "ENOTDIR",
	unix.EISDIR:       "EISDIR",
	unix.EINVAL:       "EINVAL",
	unix.ENFILE:       "ENFILE",
	unix.EMFILE:       "EMFILE",
	unix.ETXTBSY:      "ETXTBSY",
	unix.EFBIG:        "EFBIG",
	unix.ENOSPC:       "ENOSPC",
	unix.EROFS:        "EROFS",
	unix.ENAMETOOLONG: "ENAMETOOLONG",
	unix.ELOOP:        "ELOOP",
	unix.ELIBBAD:      "ELIBBAD",
}
