//go:build linux

package ptracebackend

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/tracexec-go/tracexec/internal/event"
)

// snapshotFds walks /proc/<pid>/fd to build an FdInfo table, reading
// /proc/<pid>/fdinfo/<n> for the cloexec flag. Each entry carries only
// FdNumber, Path and CloExec; Flags, MountID, Inode, Pos and FsType are
// left zero. It never fails the caller: a transient ENOENT on a single fd
// (the tracee closed it mid-snapshot) is skipped without marking the
// snapshot partial, and any other read failure is reported via ok=false
// so the caller can set event.FdProbeFailure.
func snapshotFds(pid int) (map[int]event.FdInfo, bool) {
	dir := fmt.Sprintf("/proc/%d/fd", pid)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, false
	}

	out := make(map[int]event.FdInfo, len(entries))
	ok := true
	for _, ent := range entries {
		fdNum, err := strconv.Atoi(ent.Name())
		if err != nil {
			continue
		}
		link, err := os.Readlink(filepath.Join(dir, ent.Name()))
		if err != nil {
			if !os.IsNotExist(err) {
				ok = false
			}
			continue
		}
		cloexec, err := readCloexec(pid, fdNum)
		if err != nil {
			ok = false
		}
		out[fdNum] = event.FdInfo{
			FdNumber: fdNum,
			Path:     event.PathRef{Absolute: link},
			CloExec:  cloexec,
		}
	}
	return out, ok
}

func readCloexec(pid, fd int) (bool, error) {
	path := fmt.Sprintf("/proc/%d/fdinfo/%d", pid, fd)
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "flags:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			continue
		}
		flags, err := strconv.ParseInt(fields[1], 8, 64)
		if err != nil {
			return false, err
		}
		const oCloexec = 0o2000000
		return flags&oCloexec != 0, nil
	}
	return false, scanner.Err()
}

// cwdOf reads /proc/<pid>/cwd, mirroring the teacher's getProcCwd helper
// in runner/ptrace/handle_linux.go.
func cwdOf(pid int) (string, error) {
	return os.Readlink(fmt.Sprintf("/proc/%d/cwd", pid))
}

// commOf reads /proc/<pid>/comm, the kernel-maintained task name that exec
// refreshes on success (spec.md glossary entry for "Comm").
func commOf(pid int) (string, error) {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/comm", pid))
	if err != nil {
		return "", err
	}
	return strings.TrimSuffix(string(data), "\n"), nil
}
