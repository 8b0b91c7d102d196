//go:build linux

package ptracebackend

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/require"
)

func spawnSleeper(t *testing.T) (int, func()) {
	t.Helper()
	cmd := exec.Command("sleep", "10")
	require.NoError(t, cmd.Start())
	return cmd.Process.Pid, func() {
		cmd.Process.Kill()
		cmd.Wait()
	}
}

func readableAddr(t *testing.T, pid int) uintptr {
	t.Helper()
	maps, err := os.ReadFile(fmt.Sprintf("/proc/%d/maps", pid))
	require.NoError(t, err)

	for _, line := range bytes.Split(maps, []byte{'\n'}) {
		if bytes.Contains(line, []byte("r-x")) {
			var start uint64
			fmt.Sscanf(string(line), "%x-", &start)
			return uintptr(start)
		}
	}
	t.Fatal("no readable mapping found")
	return 0
}

func TestVmReadReturnsData(t *testing.T) {
	pid, cleanup := spawnSleeper(t)
	defer cleanup()

	addr := readableAddr(t, pid)
	buf := make([]byte, 16)
	n, err := vmRead(pid, addr, buf)
	require.NoError(t, err)
	require.NotZero(t, n)
}

func TestVmReadStrStopsAtPageBoundary(t *testing.T) {
	pid, cleanup := spawnSleeper(t)
	defer cleanup()

	addr := readableAddr(t, pid)
	buf := make([]byte, pageSize+64)
	require.NoError(t, vmReadStr(pid, addr, buf))
}

func TestContainsNUL(t *testing.T) {
	require.True(t, containsNUL([]byte{1, 2, 0, 3}))
	require.False(t, containsNUL([]byte{1, 2, 3}))
	require.False(t, containsNUL(nil))
}
