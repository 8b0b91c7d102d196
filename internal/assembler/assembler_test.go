package assembler

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tracexec-go/tracexec/internal/event"
)

func header(id event.ID, sub uint32, kind event.Kind) event.Header {
	return event.Header{EventID: id, SubID: sub, Type: kind}
}

func TestFeedFragmentsThenHeader(t *testing.T) {
	a := New()

	const eid event.ID = 1

	_, ok := a.Feed(event.Event{
		Header:      header(eid, 0, event.KindStringChunk),
		StringChunk: &event.StringChunkPayload{Field: event.FieldFilename, Data: "/bin/true"},
	})
	require.False(t, ok)

	_, ok = a.Feed(event.Event{
		Header:      header(eid, 1, event.KindStringChunk),
		StringChunk: &event.StringChunkPayload{Field: event.FieldArgv, Index: 0, Data: "true"},
	})
	require.False(t, ok)

	_, ok = a.Feed(event.Event{
		Header:      header(eid, 2, event.KindStringChunk),
		StringChunk: &event.StringChunkPayload{Field: event.FieldArgv, Index: 1, Data: "--version"},
	})
	require.False(t, ok)

	ev, ok := a.Feed(event.Event{
		Header: header(eid, 3, event.KindExecAttempt),
		Exec: &event.ExecEvent{
			EventID: eid,
			Outcome: event.Outcome{Success: true},
		},
	})
	require.True(t, ok)
	require.NotNil(t, ev)
	require.Equal(t, "/bin/true", ev.Attempt.RequestedFilename)
	require.Equal(t, []string{"true", "--version"}, ev.Attempt.Argv)
	require.False(t, ev.Flags.Has(event.UserspaceDropMarker))
}

func TestFeedDetectsSubIDGap(t *testing.T) {
	a := New()
	const eid event.ID = 7

	_, ok := a.Feed(event.Event{
		Header:      header(eid, 0, event.KindStringChunk),
		StringChunk: &event.StringChunkPayload{Field: event.FieldArgv, Index: 0, Data: "ls"},
	})
	require.False(t, ok)

	// sub_id 1 never arrives; sub_id 2 comes in, a detectable gap.
	_, ok = a.Feed(event.Event{
		Header:      header(eid, 2, event.KindStringChunk),
		StringChunk: &event.StringChunkPayload{Field: event.FieldArgv, Index: 1, Data: "-l"},
	})
	require.False(t, ok)

	ev, ok := a.Feed(event.Event{
		Header: header(eid, 3, event.KindExecAttempt),
		Exec:   &event.ExecEvent{EventID: eid, Outcome: event.Outcome{Success: true}},
	})
	require.True(t, ok)
	require.True(t, ev.Flags.Has(event.UserspaceDropMarker))
}

func TestFeedHeaderWithNoFragments(t *testing.T) {
	a := New()
	ev, ok := a.Feed(event.Event{
		Header: header(42, 0, event.KindExecAttempt),
		Exec:   &event.ExecEvent{EventID: 42, Outcome: event.Outcome{Success: true}},
	})
	require.True(t, ok)
	require.Equal(t, event.ID(42), ev.EventID)
}

func TestFeedResolvesPathSegments(t *testing.T) {
	a := New()
	const eid event.ID = 3

	// Segments are delivered leaf-to-root; this path has a single segment,
	// index 0, "tmp".
	_, ok := a.Feed(event.Event{
		Header:      header(eid, 0, event.KindPathSegment),
		PathSegment: &event.PathSegmentPayload{PathKind: event.PathKindCwd, Index: 0, Name: "tmp"},
	})
	require.False(t, ok)

	_, ok = a.Feed(event.Event{
		Header:     header(eid, 1, event.KindPathHeader),
		PathHeader: &event.PathHeaderPayload{PathKind: event.PathKindCwd, SegmentCount: 1},
	})
	require.False(t, ok)

	ev, ok := a.Feed(event.Event{
		Header: header(eid, 2, event.KindExecAttempt),
		Exec:   &event.ExecEvent{EventID: eid, Outcome: event.Outcome{Success: true}},
	})
	require.True(t, ok)
	require.Equal(t, "/tmp", ev.Attempt.Cwd.Absolute)
}

func TestFeedResolvesMultipleFdPaths(t *testing.T) {
	a := New()
	const eid event.ID = 9

	_, ok := a.Feed(event.Event{
		Header:      header(eid, 0, event.KindFdSnapshot),
		FdSnapshot:  &event.FdSnapshotPayload{Fd: event.FdInfo{FdNumber: 0}},
	})
	require.False(t, ok)
	_, ok = a.Feed(event.Event{
		Header:      header(eid, 1, event.KindFdSnapshot),
		FdSnapshot:  &event.FdSnapshotPayload{Fd: event.FdInfo{FdNumber: 7}},
	})
	require.False(t, ok)

	// fd 0's path chain is walked and sent to completion before fd 7's
	// begins, mirroring the kernel's one-fd-at-a-time walk.
	_, ok = a.Feed(event.Event{
		Header:     header(eid, 2, event.KindPathHeader),
		PathHeader: &event.PathHeaderPayload{PathKind: event.PathKindFd, FdNumber: 0, SegmentCount: 3},
	})
	require.False(t, ok)
	_, ok = a.Feed(event.Event{
		Header:      header(eid, 3, event.KindPathSegment),
		PathSegment: &event.PathSegmentPayload{PathKind: event.PathKindFd, Index: 0, Name: "null"},
	})
	require.False(t, ok)
	_, ok = a.Feed(event.Event{
		Header:      header(eid, 4, event.KindPathSegment),
		PathSegment: &event.PathSegmentPayload{PathKind: event.PathKindFd, Index: 1, Name: "dev"},
	})
	require.False(t, ok)
	_, ok = a.Feed(event.Event{
		Header:      header(eid, 5, event.KindPathSegment),
		PathSegment: &event.PathSegmentPayload{PathKind: event.PathKindFd, Index: 2, Name: ""},
	})
	require.False(t, ok)

	_, ok = a.Feed(event.Event{
		Header:     header(eid, 6, event.KindPathHeader),
		PathHeader: &event.PathHeaderPayload{PathKind: event.PathKindFd, FdNumber: 7, SegmentCount: 2},
	})
	require.False(t, ok)
	_, ok = a.Feed(event.Event{
		Header:      header(eid, 7, event.KindPathSegment),
		PathSegment: &event.PathSegmentPayload{PathKind: event.PathKindFd, Index: 0, Name: "out.log"},
	})
	require.False(t, ok)
	_, ok = a.Feed(event.Event{
		Header:      header(eid, 8, event.KindPathSegment),
		PathSegment: &event.PathSegmentPayload{PathKind: event.PathKindFd, Index: 1, Name: "tmp"},
	})
	require.False(t, ok)

	ev, ok := a.Feed(event.Event{
		Header: header(eid, 9, event.KindExecAttempt),
		Exec:   &event.ExecEvent{EventID: eid, Outcome: event.Outcome{Success: true}},
	})
	require.True(t, ok)
	require.Len(t, ev.Attempt.FdSnapshot, 2)

	byFd := map[int]string{}
	for _, fd := range ev.Attempt.FdSnapshot {
		byFd[fd.FdNumber] = fd.Path.Absolute
	}
	require.Equal(t, "/dev/null", byFd[0])
	require.Equal(t, "/tmp/out.log", byFd[7])
}

func TestFeedKeepsConcurrentEventsSeparate(t *testing.T) {
	a := New()

	_, ok := a.Feed(event.Event{
		Header:      header(1, 0, event.KindStringChunk),
		StringChunk: &event.StringChunkPayload{Field: event.FieldArgv, Index: 0, Data: "a"},
	})
	require.False(t, ok)

	_, ok = a.Feed(event.Event{
		Header:      header(2, 0, event.KindStringChunk),
		StringChunk: &event.StringChunkPayload{Field: event.FieldArgv, Index: 0, Data: "b"},
	})
	require.False(t, ok)

	ev1, ok := a.Feed(event.Event{
		Header: header(1, 1, event.KindExecAttempt),
		Exec:   &event.ExecEvent{EventID: 1, Outcome: event.Outcome{Success: true}},
	})
	require.True(t, ok)
	require.Equal(t, []string{"a"}, ev1.Attempt.Argv)

	ev2, ok := a.Feed(event.Event{
		Header: header(2, 1, event.KindExecAttempt),
		Exec:   &event.ExecEvent{EventID: 2, Outcome: event.Outcome{Success: true}},
	})
	require.True(t, ok)
	require.Equal(t, []string{"b"}, ev2.Attempt.Argv)
}
