package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tracexec-go/tracexec/internal/event"
)

type fakeBackend struct {
	events chan event.Event
	errs   chan error
	pid    int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		events: make(chan event.Event, 16),
		errs:   make(chan error, 16),
	}
}

func (f *fakeBackend) Events() <-chan event.Event { return f.events }
func (f *fakeBackend) Errors() <-chan error       { return f.errs }
func (f *fakeBackend) RootPid() int               { return f.pid }

func execEvent(id event.ID, success bool) event.Event {
	return event.Event{
		Header: event.Header{EventID: id, Type: event.KindExecAttempt},
		Exec: &event.ExecEvent{
			EventID: id,
			Outcome: event.Outcome{Success: success},
		},
	}
}

func drain(t *testing.T, s *Session, n int) []event.Event {
	t.Helper()
	var out []event.Event
	for i := 0; i < n; i++ {
		select {
		case ev, ok := <-s.Events():
			require.True(t, ok)
			out = append(out, ev)
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for event %d/%d", i+1, n)
		}
	}
	return out
}

func TestSessionPublishesAllEventsByDefault(t *testing.T) {
	backend := newFakeBackend()
	s := New(context.Background(), backend, DefaultConfig())

	backend.events <- execEvent(1, true)
	backend.events <- execEvent(2, false)

	got := drain(t, s, 2)
	require.Equal(t, event.ID(1), got[0].Exec.EventID)
	require.Equal(t, event.ID(2), got[1].Exec.EventID)

	require.NoError(t, s.Close())
}

func TestSessionFilterSuccessfulOnly(t *testing.T) {
	backend := newFakeBackend()
	cfg := DefaultConfig()
	cfg.Filter.SuccessfulOnly = true
	s := New(context.Background(), backend, cfg)

	backend.events <- execEvent(1, false)
	backend.events <- execEvent(2, true)
	close(backend.events)

	got := drain(t, s, 1)
	require.Equal(t, event.ID(2), got[0].Exec.EventID)

	_, ok := <-s.Events()
	require.False(t, ok)
	require.NoError(t, s.Close())
}

func TestSessionFilterByKind(t *testing.T) {
	backend := newFakeBackend()
	cfg := DefaultConfig()
	cfg.Filter.Kinds = map[event.Kind]bool{event.KindExit: true}
	s := New(context.Background(), backend, cfg)

	backend.events <- execEvent(1, true)
	backend.events <- event.Event{Header: event.Header{Type: event.KindExit}, Exit: &event.ExitPayload{}}

	got := drain(t, s, 1)
	require.Equal(t, event.KindExit, got[0].Header.Type)
	require.NoError(t, s.Close())
}

func TestSessionRetainedRingEviction(t *testing.T) {
	backend := newFakeBackend()
	cfg := DefaultConfig()
	cfg.MaxEvents = 2
	s := New(context.Background(), backend, cfg)

	backend.events <- execEvent(1, true)
	backend.events <- execEvent(2, true)
	backend.events <- execEvent(3, true)
	drain(t, s, 3)

	// Give publish's ring update a moment to land (it runs in s.run,
	// concurrently with drain).
	require.Eventually(t, func() bool {
		return len(s.Retained()) == 2
	}, time.Second, time.Millisecond)

	retained := s.Retained()
	require.Equal(t, event.ID(2), retained[0].Exec.EventID)
	require.Equal(t, event.ID(3), retained[1].Exec.EventID)
	require.NoError(t, s.Close())
}

func TestSessionCrashReportOnUnexpectedClose(t *testing.T) {
	backend := newFakeBackend()
	s := New(context.Background(), backend, DefaultConfig())

	backend.errs <- errors.New("ring buffer read failed")
	close(backend.events)

	_, ok := <-s.Events()
	require.False(t, ok)

	select {
	case report := <-s.Crashed():
		require.EqualError(t, report.Reason, "ring buffer read failed")
	case <-time.After(time.Second):
		t.Fatal("expected a crash report")
	}
	require.NoError(t, s.Close())
}

func TestSessionCloseDoesNotReportCrash(t *testing.T) {
	backend := newFakeBackend()
	s := New(context.Background(), backend, DefaultConfig())

	require.NoError(t, s.Close())
	require.NoError(t, s.Close()) // idempotent

	select {
	case <-s.Crashed():
		t.Fatal("Close should not produce a crash report")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSessionCloseWaitDisciplineSendsNoSignal(t *testing.T) {
	backend := newFakeBackend()
	backend.pid = 0 // no real process to signal
	cfg := DefaultConfig()
	cfg.ExitDiscipline = Wait
	s := New(context.Background(), backend, cfg)

	require.NoError(t, s.Close())
}

func TestParseBackendKind(t *testing.T) {
	kind, err := ParseBackendKind("ebpf")
	require.NoError(t, err)
	require.Equal(t, BackendEBPF, kind)

	kind, err = ParseBackendKind("")
	require.NoError(t, err)
	require.Equal(t, BackendPtrace, kind)

	_, err = ParseBackendKind("nonsense")
	require.Error(t, err)
}
