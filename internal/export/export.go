// Package export serializes ExecEvents for the collect command (spec.md
// §6.4): JSONL (metadata line, then one event object per line) or a
// single JSON object {metadata, events}. Grounded directly on spec.md's
// structured-output-format section; the teacher never serializes to
// JSON, so there is no teacher analogue to generalize from here.
package export

import (
	"encoding/json"
	"io"
	"time"

	"github.com/tracexec-go/tracexec/internal/event"
)

// Metadata is the header object every export mode emits once.
type Metadata struct {
	Tool        string            `json:"tool"`
	Version     string            `json:"version"`
	Backend     string            `json:"backend"`
	StartedAt   time.Time         `json:"started_at"`
	BaselineEnv map[string]string `json:"baseline_env,omitempty"`
}

// Task mirrors spec.md §6's task{pid, tgid, generation} object. tgid
// mirrors pid here since exec preserves the thread group id; it is
// spelled out separately because the wire format names both.
type Task struct {
	Pid        int    `json:"pid"`
	Tgid       int    `json:"tgid"`
	Generation uint64 `json:"generation"`
}

// Fd mirrors one entry of spec.md §6's fds[] array.
type Fd struct {
	Fd       int    `json:"fd"`
	Path     string `json:"path"`
	Flags    uint32 `json:"flags"`
	CloExec  bool   `json:"cloexec"`
	MountID  int    `json:"mount_id"`
	Inode    uint64 `json:"inode"`
	Position int64  `json:"position"`
	FsType   string `json:"fstype"`
}

// Outcome is {"ok": true} on success, or {"errno": N, "symbol": "ENOENT"}
// on failure, matching spec.md §6's outcome ∈ {"ok" | {errno, symbol}}.
type Outcome struct {
	OK     bool   `json:"ok,omitempty"`
	Errno  int    `json:"errno,omitempty"`
	Symbol string `json:"symbol,omitempty"`
}

// Event is the wire shape of one collected ExecEvent.
type Event struct {
	EventID       event.ID  `json:"event_id"`
	Timestamp     time.Time `json:"timestamp"`
	Task          Task      `json:"task"`
	ParentEventID *event.ID `json:"parent_event_id,omitempty"`
	Variant       string    `json:"variant"`
	Comm          string    `json:"comm,omitempty"`
	Cwd           string    `json:"cwd"`
	Filename      string    `json:"filename"`
	Argv          []string  `json:"argv"`
	Envp          []string  `json:"envp"`
	Fds           []Fd      `json:"fds,omitempty"`
	Outcome       Outcome   `json:"outcome"`
	Flags         []string  `json:"flags,omitempty"`
}

// FromExecEvent converts an assembled event.ExecEvent into the wire
// Event, applying ts as its timestamp (the caller supplies it since this
// package never calls time.Now itself, keeping serialization pure and
// independently testable).
func FromExecEvent(ev *event.ExecEvent, ts time.Time) Event {
	envp := make([]string, len(ev.Attempt.Envp))
	for i, kv := range ev.Attempt.Envp {
		envp[i] = kv.Key + "=" + kv.Value
	}
	fds := make([]Fd, len(ev.Attempt.FdSnapshot))
	for i, fd := range ev.Attempt.FdSnapshot {
		fds[i] = Fd{
			Fd:       fd.FdNumber,
			Path:     fd.Path.Absolute,
			Flags:    fd.Flags,
			CloExec:  fd.CloExec,
			MountID:  fd.MountID,
			Inode:    fd.Inode,
			Position: fd.FilePosition,
			FsType:   fd.FsType,
		}
	}
	outcome := Outcome{OK: ev.Outcome.Success}
	if !ev.Outcome.Success {
		outcome.Errno = ev.Outcome.Errno
		outcome.Symbol = ev.Outcome.Symbol
	}
	return Event{
		EventID:       ev.EventID,
		Timestamp:     ts,
		Task:          Task{Pid: ev.Task.OsPid, Tgid: ev.Task.OsPid, Generation: ev.Task.Generation},
		ParentEventID: ev.Attempt.ParentEvent,
		Variant:       ev.Attempt.Variant.String(),
		Comm:          ev.Attempt.Comm,
		Cwd:           ev.Attempt.Cwd.Absolute,
		Filename:      ev.Attempt.RequestedFilename,
		Argv:          ev.Attempt.Argv,
		Envp:          envp,
		Fds:           fds,
		Outcome:       outcome,
		Flags:         ev.Flags.Names(),
	}
}

// Writer serializes a Metadata header followed by a stream of Events, in
// either JSONL (one JSON value per line) or single-JSON-object mode.
type Writer struct {
	enc    *json.Encoder
	pretty bool
	single bool
	w      io.Writer
	events []Event // buffered only in single-JSON mode
	meta   Metadata
}

// NewWriter returns a Writer for dst. pretty indents the output in either
// mode (each JSONL line, or the single object); single selects the
// {metadata, events} object form over line-delimited JSON.
func NewWriter(dst io.Writer, pretty, single bool) *Writer {
	return &Writer{w: dst, pretty: pretty, single: single}
}

// WriteMetadata emits (JSONL mode) or stores (single mode) the header.
func (w *Writer) WriteMetadata(m Metadata) error {
	w.meta = m
	if w.single {
		return nil
	}
	return w.writeLine(m)
}

// WriteEvent emits (JSONL mode) or buffers (single mode) one event.
func (w *Writer) WriteEvent(e Event) error {
	if w.single {
		w.events = append(w.events, e)
		return nil
	}
	return w.writeLine(e)
}

// Close flushes the buffered {metadata, events} object in single mode; a
// no-op in JSONL mode, since every line was already written.
func (w *Writer) Close() error {
	if !w.single {
		return nil
	}
	doc := struct {
		Metadata Metadata `json:"metadata"`
		Events   []Event  `json:"events"`
	}{Metadata: w.meta, Events: w.events}
	enc := json.NewEncoder(w.w)
	if w.pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(doc)
}

func (w *Writer) writeLine(v any) error {
	if w.pretty {
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return err
		}
		_, err = w.w.Write(append(data, '\n'))
		return err
	}
	if w.enc == nil {
		w.enc = json.NewEncoder(w.w)
	}
	return w.enc.Encode(v)
}
