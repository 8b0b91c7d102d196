package main

import (
	"testing"

	"github.com/tracexec-go/tracexec/internal/breakpoint"
	"github.com/tracexec-go/tracexec/internal/config"
	"github.com/tracexec-go/tracexec/internal/event"
)

func TestKindByName(t *testing.T) {
	cases := []struct {
		name string
		want event.Kind
		ok   bool
	}{
		{"exec", event.KindExecAttempt, true},
		{"Fork", event.KindFork, true},
		{" exit ", event.KindExit, true},
		{"bogus", 0, false},
	}
	for _, c := range cases {
		got, ok := kindByName(c.name)
		if ok != c.ok || (ok && got != c.want) {
			t.Errorf("kindByName(%q) = (%v, %v), want (%v, %v)", c.name, got, ok, c.want, c.ok)
		}
	}
}

func TestSessionFilterNoFilter(t *testing.T) {
	f := &modifierFlags{}
	filter, err := f.sessionFilter()
	if err != nil {
		t.Fatalf("sessionFilter: %v", err)
	}
	if filter.Kinds != nil || filter.Exclude != nil {
		t.Fatalf("expected no kind restriction by default, got Kinds=%v Exclude=%v", filter.Kinds, filter.Exclude)
	}
}

func TestSessionFilterInclude(t *testing.T) {
	f := &modifierFlags{filterCSV: "exec,fork", successfulOnly: true}
	filter, err := f.sessionFilter()
	if err != nil {
		t.Fatalf("sessionFilter: %v", err)
	}
	if !filter.SuccessfulOnly {
		t.Fatal("expected SuccessfulOnly to carry through")
	}
	if filter.Exclude != nil {
		t.Fatal("expected Exclude unset in include mode")
	}
	if !filter.Kinds[event.KindExecAttempt] || !filter.Kinds[event.KindFork] {
		t.Fatalf("expected exec and fork included, got %v", filter.Kinds)
	}
	if filter.Kinds[event.KindExit] {
		t.Fatal("did not expect exit in the include set")
	}
}

func TestSessionFilterExclude(t *testing.T) {
	f := &modifierFlags{filterCSV: "exit", filterExclude: true}
	filter, err := f.sessionFilter()
	if err != nil {
		t.Fatalf("sessionFilter: %v", err)
	}
	if filter.Kinds != nil {
		t.Fatal("expected Kinds unset in exclude mode")
	}
	if !filter.Exclude[event.KindExit] {
		t.Fatalf("expected exit excluded, got %v", filter.Exclude)
	}
}

func TestSessionFilterUnknownKind(t *testing.T) {
	f := &modifierFlags{filterCSV: "exec,nonsense"}
	if _, err := f.sessionFilter(); err == nil {
		t.Fatal("expected an error for an unknown --filter kind")
	}
}

func TestMergeModifierNilConfigIsNoop(t *testing.T) {
	f := &modifierFlags{successfulOnly: true}
	mergeModifier(f, nil)
	if !f.successfulOnly {
		t.Fatal("mergeModifier(nil) must not touch existing flag values")
	}
}

func TestMergeModifierOverridesFromProfile(t *testing.T) {
	f := &modifierFlags{successfulOnly: false, pollingIntervalUs: 0}
	mode := config.SeccompMode("on")
	micro := 500
	cfg := &config.ModifierConfig{
		SeccompBPF:           &mode,
		SuccessfulOnly:       boolPtr(true),
		PollingIntervalMicro: &micro,
	}
	mergeModifier(f, cfg)
	if f.seccompBPF != "on" {
		t.Errorf("seccompBPF = %q, want on", f.seccompBPF)
	}
	if !f.successfulOnly {
		t.Error("successfulOnly should have been set from the profile")
	}
	if f.pollingIntervalUs != 500 {
		t.Errorf("pollingIntervalUs = %d, want 500", f.pollingIntervalUs)
	}
}

func boolPtr(b bool) *bool { return &b }

func TestApplyBreakpointsParsesEachSpec(t *testing.T) {
	set := breakpoint.NewSet()
	err := applyBreakpoints(set, []string{"sysenter:exact-filename:/bin/true"})
	if err != nil {
		t.Fatalf("applyBreakpoints: %v", err)
	}
	if len(set.List()) != 1 {
		t.Fatalf("expected one breakpoint registered, got %d", len(set.List()))
	}
}

func TestApplyBreakpointsRejectsMalformedSpec(t *testing.T) {
	set := breakpoint.NewSet()
	if err := applyBreakpoints(set, []string{"not-a-valid-spec"}); err == nil {
		t.Fatal("expected an error for a malformed --add-breakpoint spec")
	}
}
