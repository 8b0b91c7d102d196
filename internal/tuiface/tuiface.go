// Package tuiface defines the surface an interactive terminal UI
// consumes from a session (spec.md §6 TUI flag surface), plus a minimal
// frame-paced renderer so `tracexec tui` is runnable without a full
// ratatui-equivalent widget tree — the complete TUI is an out-of-scope
// external collaborator (spec.md §1); this package only gives it
// somewhere to plug in.
package tuiface

import (
	"bufio"
	"fmt"
	"io"
	"time"

	"github.com/tracexec-go/tracexec/internal/breakpoint"
	"github.com/tracexec-go/tracexec/internal/event"
)

// Layout selects how the terminal pane and the event list divide the
// screen (--layout).
type Layout int

const (
	LayoutHorizontal Layout = iota
	LayoutVertical
)

// ParseLayout parses the --layout flag's value.
func ParseLayout(s string) (Layout, error) {
	switch s {
	case "", "horizontal":
		return LayoutHorizontal, nil
	case "vertical":
		return LayoutVertical, nil
	default:
		return 0, fmt.Errorf("tuiface: unknown layout %q", s)
	}
}

// ActivePane selects which pane receives keyboard focus (-A/--active-pane).
type ActivePane int

const (
	PaneTerminal ActivePane = iota
	PaneEvents
)

// ParseActivePane parses the -A/--active-pane flag's value.
func ParseActivePane(s string) (ActivePane, error) {
	switch s {
	case "", "terminal":
		return PaneTerminal, nil
	case "events":
		return PaneEvents, nil
	default:
		return 0, fmt.Errorf("tuiface: unknown active pane %q", s)
	}
}

// Source is the subset of Session a renderer pulls from: a live event
// stream plus the accumulated scrollback, decoupled from
// internal/session so this package never imports it back.
type Source interface {
	Events() <-chan event.Event
	Retained() []event.Event
}

// Config paces and shapes a Renderer's output.
type Config struct {
	Layout     Layout
	ActivePane ActivePane
	FrameRate  float64 // frames/sec; <= 0 means DefaultFrameRate
}

// DefaultFrameRate matches the spec's conventional TUI repaint cadence.
const DefaultFrameRate = 60.0

// Renderer paints a Source's events at a paced interval and surfaces
// breakpoint hits for a Hit Manager-style consumer to act on. A full TUI
// replaces this with a ratatui-equivalent widget tree; this
// implementation renders a scrolling plain-text event log instead.
type Renderer struct {
	src    Source
	hits   *breakpoint.Manager
	out    *bufio.Writer
	period time.Duration
}

// NewRenderer builds a Renderer writing to w, pacing repaints at cfg's
// frame rate. hits may be nil if the session has no breakpoint engine
// attached (e.g. the eBPF backend, which has no parking mechanism).
func NewRenderer(src Source, hits *breakpoint.Manager, cfg Config, w io.Writer) *Renderer {
	rate := cfg.FrameRate
	if rate <= 0 {
		rate = DefaultFrameRate
	}
	return &Renderer{
		src:    src,
		hits:   hits,
		out:    bufio.NewWriter(w),
		period: time.Duration(float64(time.Second) / rate),
	}
}

// Run draws one line per exec event as it arrives and, on each tick of the
// configured frame rate, one line per pending breakpoint hit. Output is
// flushed on every tick and when Run returns, which happens once stop is
// closed or the Source's Events channel closes.
func (r *Renderer) Run(stop <-chan struct{}) error {
	ticker := time.NewTicker(r.period)
	defer ticker.Stop()
	defer r.out.Flush()

	events := r.src.Events()
	for {
		select {
		case <-stop:
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			r.drawEvent(ev)
		case <-ticker.C:
			r.drawHits()
			if err := r.out.Flush(); err != nil {
				return err
			}
		}
	}
}

func (r *Renderer) drawEvent(ev event.Event) {
	if ev.Header.Type != event.KindExecAttempt || ev.Exec == nil {
		return
	}
	status := "ok"
	if !ev.Exec.Outcome.Success {
		status = ev.Exec.Outcome.Symbol
	}
	fmt.Fprintf(r.out, "[%d] %s -> %s\n", ev.Header.Pid.OsPid, ev.Exec.Attempt.RequestedFilename, status)
}

func (r *Renderer) drawHits() {
	if r.hits == nil {
		return
	}
	for _, h := range r.hits.Hits() {
		fmt.Fprintf(r.out, "breakpoint hit #%d: pid %d at %s\n", h.HitID, h.Pid, h.Stop)
	}
}
