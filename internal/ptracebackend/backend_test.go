//go:build linux

package ptracebackend

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tracexec-go/tracexec/internal/event"
	"github.com/tracexec-go/tracexec/internal/forkexec"
	"github.com/tracexec-go/tracexec/internal/seccomp"
)

func TestStartTracesSuccessfulExec(t *testing.T) {
	spec := forkexec.Spec{Args: []string{"/bin/true"}}
	b, err := Start(spec, seccomp.ModeOff, Limits{MaxItems: 64})
	require.NoError(t, err)

	var saw event.Event
	found := false
	timeout := time.After(5 * time.Second)
loop:
	for {
		select {
		case ev, ok := <-b.Events():
			if !ok {
				break loop
			}
			if ev.Type == event.KindExecAttempt {
				saw = ev
				found = true
			}
		case <-timeout:
			t.Fatal("timed out waiting for exec event")
		}
	}

	require.True(t, found, "expected at least one exec event")
	require.NotNil(t, saw.Exec)
	require.True(t, saw.Exec.Outcome.Success)
}

// TestStartTracesFailedExec spawns a shell whose own initial exec succeeds
// (observed directly by os/exec's normal startup, not the tracer) and
// which then attempts a second, nested exec of a nonexistent binary. That
// second attempt is the one the tracer is positioned to observe: it is a
// genuine in-tracee execve() call, not mediated by cmd.Start()'s own
// cloexec-pipe error reporting the way the root tracee's very first exec
// is.
func TestStartTracesFailedExec(t *testing.T) {
	spec := forkexec.Spec{Args: []string{"/bin/sh", "-c", "exec /nonexistent/definitely-not-a-binary"}}
	b, err := Start(spec, seccomp.ModeOff, Limits{MaxItems: 64})
	require.NoError(t, err)

	found := false
	timeout := time.After(5 * time.Second)
loop:
	for {
		select {
		case ev, ok := <-b.Events():
			if !ok {
				break loop
			}
			if ev.Type == event.KindExecAttempt && !ev.Exec.Outcome.Success {
				found = true
			}
		case <-timeout:
			t.Fatal("timed out waiting for failed exec event")
		}
	}

	require.True(t, found, "expected a failed exec event")
}
