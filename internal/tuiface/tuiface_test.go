package tuiface

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/tracexec-go/tracexec/internal/event"
)

func TestParseLayout(t *testing.T) {
	for in, want := range map[string]Layout{"": LayoutHorizontal, "horizontal": LayoutHorizontal, "vertical": LayoutVertical} {
		got, err := ParseLayout(in)
		if err != nil || got != want {
			t.Fatalf("ParseLayout(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseLayout("diagonal"); err == nil {
		t.Fatal("expected an error for an unknown layout")
	}
}

func TestParseActivePane(t *testing.T) {
	for in, want := range map[string]ActivePane{"": PaneTerminal, "terminal": PaneTerminal, "events": PaneEvents} {
		got, err := ParseActivePane(in)
		if err != nil || got != want {
			t.Fatalf("ParseActivePane(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseActivePane("bogus"); err == nil {
		t.Fatal("expected an error for an unknown pane")
	}
}

type fakeSource struct {
	events chan event.Event
}

func (f *fakeSource) Events() <-chan event.Event  { return f.events }
func (f *fakeSource) Retained() []event.Event     { return nil }

func TestRendererDrawsEventsUntilClosed(t *testing.T) {
	src := &fakeSource{events: make(chan event.Event, 1)}
	var buf bytes.Buffer
	r := NewRenderer(src, nil, Config{FrameRate: 1000}, &buf)

	src.events <- event.Event{
		Header: event.Header{Pid: event.TaskID{OsPid: 42}, Type: event.KindExecAttempt},
		Exec: &event.ExecEvent{
			Attempt: event.ExecAttempt{RequestedFilename: "/bin/true"},
			Outcome: event.Outcome{Success: true},
		},
	}
	close(src.events)

	if err := r.Run(make(chan struct{})); err != nil {
		t.Fatal(err)
	}
	if got := buf.String(); !strings.Contains(got, "/bin/true") || !strings.Contains(got, "42") {
		t.Fatalf("rendered output = %q", got)
	}
}

func TestRendererStopsOnSignal(t *testing.T) {
	src := &fakeSource{events: make(chan event.Event)}
	var buf bytes.Buffer
	r := NewRenderer(src, nil, Config{FrameRate: 1000}, &buf)

	stop := make(chan struct{})
	done := make(chan error, 1)
	go func() { done <- r.Run(stop) }()
	close(stop)

	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after stop was signaled")
	}
}
