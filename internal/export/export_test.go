package export

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/tracexec-go/tracexec/internal/event"
)

func sampleEvent() *event.ExecEvent {
	return &event.ExecEvent{
		EventID: 7,
		Task:    event.TaskID{OsPid: 1234, Generation: 2},
		Attempt: event.ExecAttempt{
			RequestedFilename: "/bin/ls",
			Argv:              []string{"ls", "-la"},
			Envp:              []event.EnvVar{{Key: "PATH", Value: "/bin"}},
			Cwd:               event.PathRef{Absolute: "/root"},
		},
		Outcome: event.Outcome{Success: true},
	}
}

func TestFromExecEventSuccess(t *testing.T) {
	ts := time.Unix(1000, 0).UTC()
	out := FromExecEvent(sampleEvent(), ts)

	if out.EventID != 7 || out.Task.Pid != 1234 || out.Task.Generation != 2 {
		t.Fatalf("unexpected header fields: %+v", out)
	}
	if !out.Outcome.OK {
		t.Fatal("expected OK outcome")
	}
	if len(out.Envp) != 1 || out.Envp[0] != "PATH=/bin" {
		t.Fatalf("Envp = %v", out.Envp)
	}
}

func TestFromExecEventFailure(t *testing.T) {
	ev := sampleEvent()
	ev.Outcome = event.Outcome{Success: false, Errno: 2, Symbol: "ENOENT"}
	out := FromExecEvent(ev, time.Now())

	if out.Outcome.OK {
		t.Fatal("expected a non-ok outcome")
	}
	if out.Outcome.Symbol != "ENOENT" || out.Outcome.Errno != 2 {
		t.Fatalf("unexpected outcome: %+v", out.Outcome)
	}
}

func TestWriterJSONLMode(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, false, false)
	if err := w.WriteMetadata(Metadata{Tool: "tracexec", Backend: "ptrace"}); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteEvent(FromExecEvent(sampleEvent(), time.Now())); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	lines := bytes.Split(bytes.TrimRight(buf.Bytes(), "\n"), []byte("\n"))
	if len(lines) != 2 {
		t.Fatalf("expected 2 JSONL lines, got %d", len(lines))
	}
	var meta Metadata
	if err := json.Unmarshal(lines[0], &meta); err != nil {
		t.Fatal(err)
	}
	if meta.Tool != "tracexec" {
		t.Fatalf("metadata line = %+v", meta)
	}
	var ev Event
	if err := json.Unmarshal(lines[1], &ev); err != nil {
		t.Fatal(err)
	}
	if ev.EventID != 7 {
		t.Fatalf("event line = %+v", ev)
	}
}

func TestWriterSingleJSONMode(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, false, true)
	if err := w.WriteMetadata(Metadata{Tool: "tracexec"}); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteEvent(FromExecEvent(sampleEvent(), time.Now())); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	var doc struct {
		Metadata Metadata `json:"metadata"`
		Events   []Event  `json:"events"`
	}
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatal(err)
	}
	if doc.Metadata.Tool != "tracexec" {
		t.Fatalf("metadata = %+v", doc.Metadata)
	}
	if len(doc.Events) != 1 || doc.Events[0].EventID != 7 {
		t.Fatalf("events = %+v", doc.Events)
	}
}
