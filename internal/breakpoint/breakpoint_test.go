package breakpoint

import "testing"

func TestStopToggle(t *testing.T) {
	s := SysEnter
	s = s.Toggle()
	if s != SysExit {
		t.Fatalf("toggle: got %v, want sysexit", s)
	}
	s = s.Toggle()
	if s != SysEnter {
		t.Fatalf("toggle: got %v, want sysenter", s)
	}
}

func TestParseStop(t *testing.T) {
	if s, err := ParseStop("sysenter"); err != nil || s != SysEnter {
		t.Fatalf("ParseStop(sysenter) = %v, %v", s, err)
	}
	if s, err := ParseStop("sysexit"); err != nil || s != SysExit {
		t.Fatalf("ParseStop(sysexit) = %v, %v", s, err)
	}
	if _, err := ParseStop("bogus"); err == nil {
		t.Fatal("ParseStop(bogus): want error")
	}
}

func TestParsePatternArgvRegex(t *testing.T) {
	p, err := ParsePattern("argv-regex:^ls\\b")
	if err != nil {
		t.Fatal(err)
	}
	if p.Kind != ArgvRegex {
		t.Fatalf("Kind = %v, want ArgvRegex", p.Kind)
	}
	if !p.Matches([]string{"ls", "-la"}, "/usr/bin/ls", true) {
		t.Fatal("expected match against argv")
	}
	if p.Matches([]string{"echo", "ls"}, "/usr/bin/echo", true) {
		t.Fatal("unexpected match: pattern is anchored to the start")
	}
}

func TestParsePatternInvalidRegex(t *testing.T) {
	if _, err := ParsePattern("argv-regex:("); err == nil {
		t.Fatal("expected compile error for unbalanced paren")
	}
}

func TestParsePatternMissingKind(t *testing.T) {
	if _, err := ParsePattern("just-a-string"); err == nil {
		t.Fatal("expected error: no pattern kind separator")
	}
}

func TestParsePatternUnknownKind(t *testing.T) {
	if _, err := ParsePattern("bogus-kind:x"); err == nil {
		t.Fatal("expected error: unknown pattern kind")
	}
}

func TestPatternInFilename(t *testing.T) {
	p, err := ParsePattern("in-filename:/bin/")
	if err != nil {
		t.Fatal(err)
	}
	if !p.Matches(nil, "/usr/bin/ls", true) {
		t.Fatal("expected substring match")
	}
	if p.Matches(nil, "/usr/local/ls", true) {
		t.Fatal("unexpected match")
	}
	if p.Matches(nil, "/usr/bin/ls", false) {
		t.Fatal("filenameOK=false must never match")
	}
}

func TestPatternExactFilename(t *testing.T) {
	p, err := ParsePattern("exact-filename:/usr/bin/ls")
	if err != nil {
		t.Fatal(err)
	}
	if !p.Matches(nil, "/usr/bin/ls", true) {
		t.Fatal("expected exact match")
	}
	if p.Matches(nil, "/usr/bin/ls2", true) {
		t.Fatal("unexpected match on longer filename")
	}
}

func TestPatternEditableRoundTrip(t *testing.T) {
	for _, s := range []string{"argv-regex:^ls\\b", "in-filename:/bin/", "exact-filename:/usr/bin/ls"} {
		p, err := ParsePattern(s)
		if err != nil {
			t.Fatal(err)
		}
		if got := p.Editable(); got != s {
			t.Fatalf("Editable() = %q, want %q", got, s)
		}
	}
}

func TestParseFlag(t *testing.T) {
	bp, err := ParseFlag("sysexit:exact-filename:/usr/bin/ls")
	if err != nil {
		t.Fatal(err)
	}
	if bp.Stop != SysExit {
		t.Fatalf("Stop = %v, want sysexit", bp.Stop)
	}
	if bp.Type != Permanent || !bp.Activated {
		t.Fatal("ParseFlag must produce an activated, permanent breakpoint")
	}
	if bp.Pattern.Kind != ExactFilename || bp.Pattern.Raw != "/usr/bin/ls" {
		t.Fatalf("unexpected pattern: %+v", bp.Pattern)
	}
}

func TestParseFlagMissingStop(t *testing.T) {
	if _, err := ParseFlag("exact-filename:/usr/bin/ls"); err == nil {
		t.Fatal("expected error: no syscall stop separator")
	}
}
