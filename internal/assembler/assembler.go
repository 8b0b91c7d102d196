// Package assembler reassembles the fragmented records the eBPF backend
// emits (spec.md §4.7/§8) into whole event.Event values. The eBPF program
// cannot build one ringbuf sample per exec attempt — argv/envp/fd/path
// data is unbounded and the verifier requires bounded loops — so it
// instead emits a header record plus a stream of StringChunk/FdSnapshot/
// PathSegment/PathHeader fragments sharing the header's EventID, each
// carrying a SubID the assembler uses to detect gaps.
package assembler

import (
	"sync"

	"github.com/tracexec-go/tracexec/internal/event"
)

// Assembler collects fragments keyed by EventID and emits a completed
// ExecEvent once its terminating header arrives. The zero value is not
// usable; use New.
type Assembler struct {
	mu      sync.Mutex
	pending map[event.ID]*partial

	// nextSubID tracks, per EventID, how many fragments have been folded
	// in so far, so a jump in SubID can be detected and flagged rather
	// than silently producing a reordered or truncated result.
	nextSubID map[event.ID]uint32
}

// partial accumulates fragments for one in-flight ExecEvent.
type partial struct {
	argv     []string
	envp     []string
	fds      []event.FdInfo
	paths    map[pathKey]*pathBuilder
	// open tracks, per PathKind, which pathKey the next PathSegment record
	// belongs to: the kernel walks one path's dentry chain to completion
	// (header then all its segments) before starting the next, so a
	// PathSegment always extends whichever chain of its PathKind was most
	// recently opened by a PathHeader.
	open     map[event.PathKind]pathKey
	flags    event.Flags
	filename string
	sawGap   bool
}

// pathKey distinguishes which path chain a PathHeader/PathSegment belongs
// to. PathKindCwd always has fdNumber 0 (there is only one cwd); a
// PathKindFd chain is further keyed by its fd number, since a single exec
// attempt's fd snapshot can carry more than one resolved path and they
// would otherwise overwrite each other in the same map slot.
type pathKey struct {
	kind     event.PathKind
	fdNumber int
}

type pathBuilder struct {
	segments map[int]string // index -> name, leaf-to-root
	fdNumber int
	total    int
}

// New creates an empty Assembler.
func New() *Assembler {
	return &Assembler{
		pending:   make(map[event.ID]*partial),
		nextSubID: make(map[event.ID]uint32),
	}
}

func (a *Assembler) get(id event.ID) *partial {
	p, ok := a.pending[id]
	if !ok {
		p = &partial{
			paths: make(map[pathKey]*pathBuilder),
			open:  make(map[event.PathKind]pathKey),
		}
		a.pending[id] = p
	}
	return p
}

// checkGap records a fragment's declared SubID against the running
// expectation for its EventID, setting UserspaceDropMarker on the partial
// the first time a gap is observed — mirrors the original tool's
// "insert placeholders for dropped events" handling in its ringbuf
// callback, generalized from "string index" to "any fragment kind".
func (a *Assembler) checkGap(id event.ID, subID uint32, p *partial) {
	want := a.nextSubID[id]
	if subID != want {
		p.sawGap = true
	}
	if subID >= want {
		a.nextSubID[id] = subID + 1
	}
}

// Feed ingests one fragment or header event. It returns a completed
// ExecEvent (and ok=true) the moment a PathHeader/StringChunk/FdSnapshot
// set is closed out by the whole-event header arriving; until then it
// returns ok=false and retains the fragment internally.
func (a *Assembler) Feed(ev event.Event) (*event.ExecEvent, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch ev.Header.Type {
	case event.KindStringChunk:
		p := a.get(ev.Header.EventID)
		a.checkGap(ev.Header.EventID, ev.Header.SubID, p)
		chunk := ev.StringChunk
		switch chunk.Field {
		case event.FieldFilename:
			p.filename = chunk.Data
		case event.FieldArgv:
			p.argv = appendAt(p.argv, chunk.Index, chunk.Data)
		case event.FieldEnvp:
			p.envp = appendAt(p.envp, chunk.Index, chunk.Data)
		}
		return nil, false

	case event.KindFdSnapshot:
		p := a.get(ev.Header.EventID)
		a.checkGap(ev.Header.EventID, ev.Header.SubID, p)
		p.fds = append(p.fds, ev.FdSnapshot.Fd)
		return nil, false

	case event.KindPathSegment:
		p := a.get(ev.Header.EventID)
		a.checkGap(ev.Header.EventID, ev.Header.SubID, p)
		seg := ev.PathSegment
		key, ok := p.open[seg.PathKind]
		if !ok {
			// A segment arrived before its header (or the header was
			// dropped); fall back to fd 0 so cwd still assembles, and let
			// the missing-header case simply leave an fd path unresolved.
			key = pathKey{kind: seg.PathKind}
		}
		pb := p.paths[key]
		if pb == nil {
			pb = &pathBuilder{segments: make(map[int]string)}
			p.paths[key] = pb
		}
		pb.segments[seg.Index] = seg.Name
		return nil, false

	case event.KindPathHeader:
		p := a.get(ev.Header.EventID)
		a.checkGap(ev.Header.EventID, ev.Header.SubID, p)
		hdr := ev.PathHeader
		key := pathKey{kind: hdr.PathKind, fdNumber: hdr.FdNumber}
		p.open[hdr.PathKind] = key
		pb := p.paths[key]
		if pb == nil {
			pb = &pathBuilder{segments: make(map[int]string)}
			p.paths[key] = pb
		}
		pb.total = hdr.SegmentCount
		pb.fdNumber = hdr.FdNumber
		return nil, false

	case event.KindExecAttempt:
		// The terminating record: ev.Exec already carries Outcome and the
		// task/id identity; everything else (argv/envp/fds/paths) has
		// been accumulating under the same EventID.
		p, ok := a.pending[ev.Header.EventID]
		delete(a.pending, ev.Header.EventID)
		delete(a.nextSubID, ev.Header.EventID)
		if !ok {
			// No fragments preceded the header: either a degenerate
			// zero-argument/zero-env exec, or every fragment for this
			// event was lost. Either way there's nothing to fold in.
			return ev.Exec, true
		}

		result := *ev.Exec
		if p.filename != "" {
			result.Attempt.RequestedFilename = p.filename
		}
		result.Attempt.Argv = p.argv
		result.Attempt.Envp = envVars(p.envp)
		result.Attempt.FdSnapshot = append([]event.FdInfo(nil), p.fds...)
		if cwd, ok := resolvePath(p.paths[pathKey{kind: event.PathKindCwd}]); ok {
			result.Attempt.Cwd = event.PathRef{Absolute: cwd}
		}
		for key, pb := range p.paths {
			if key.kind != event.PathKindFd {
				continue
			}
			path, ok := resolvePath(pb)
			if !ok {
				continue
			}
			for i := range result.Attempt.FdSnapshot {
				if result.Attempt.FdSnapshot[i].FdNumber == key.fdNumber {
					result.Attempt.FdSnapshot[i].Path = event.PathRef{Absolute: path}
					break
				}
			}
		}
		result.Flags |= p.flags
		if p.sawGap {
			result.Flags |= event.UserspaceDropMarker
		}
		return &result, true

	default:
		return nil, false
	}
}

func appendAt(s []string, index int, value string) []string {
	for len(s) <= index {
		s = append(s, "")
	}
	s[index] = value
	return s
}

func envVars(raw []string) []event.EnvVar {
	out := make([]event.EnvVar, 0, len(raw))
	for _, kv := range raw {
		for i := 0; i < len(kv); i++ {
			if kv[i] == '=' {
				out = append(out, event.EnvVar{Key: kv[:i], Value: kv[i+1:]})
				goto next
			}
		}
		out = append(out, event.EnvVar{Key: kv})
	next:
	}
	return out
}

// resolvePath assembles a PathBuilder's segments, ordered leaf-to-root per
// PathSegmentPayload's documented ordering, into a single absolute path
// string. ok is false if no header ever arrived for this path kind.
func resolvePath(pb *pathBuilder) (string, bool) {
	if pb == nil || pb.total == 0 {
		return "", false
	}
	parts := make([]string, pb.total)
	for i := 0; i < pb.total; i++ {
		parts[pb.total-1-i] = pb.segments[i]
	}
	out := "/"
	for _, part := range parts {
		if part == "" {
			continue
		}
		if len(out) > 1 {
			out += "/"
		}
		out += part
	}
	return out, true
}
