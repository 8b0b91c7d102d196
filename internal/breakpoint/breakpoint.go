// Package breakpoint implements the breakpoint engine (spec.md §4.10):
// pattern matching on exec attempts at a chosen syscall stop, and the
// consumer-driven resume/detach/detach-and-run actions taken once a
// breakpoint fires. Grounded on
// original_source/crates/tracexec-core/src/breakpoint.rs (pattern/stop
// types and CLI-flag parsing) and
// original_source/src/tui/hit_manager.rs (the hit bookkeeping and
// detach/resume/detach-and-run actions), stripped of the latter's TUI
// rendering since the full TUI is an out-of-scope external collaborator.
package breakpoint

import (
	"fmt"
	"regexp"
	"strings"
)

// Stop identifies which syscall-stop phase a breakpoint fires at.
type Stop int

const (
	SysEnter Stop = iota
	SysExit
)

func ParseStop(s string) (Stop, error) {
	switch s {
	case "sysenter":
		return SysEnter, nil
	case "sysexit":
		return SysExit, nil
	default:
		return 0, fmt.Errorf("breakpoint: invalid syscall stop %q, want \"sysenter\" or \"sysexit\"", s)
	}
}

func (s Stop) String() string {
	if s == SysExit {
		return "sysexit"
	}
	return "sysenter"
}

// Toggle flips sysenter<->sysexit, used when a consumer edits an existing
// breakpoint's stop in place.
func (s Stop) Toggle() Stop {
	if s == SysEnter {
		return SysExit
	}
	return SysEnter
}

// PatternKind selects how Pattern.Matches interprets Raw.
type PatternKind int

const (
	ArgvRegex PatternKind = iota
	InFilename
	ExactFilename
)

// Pattern matches an in-flight exec attempt.
type Pattern struct {
	Kind PatternKind
	Raw  string

	re *regexp.Regexp // only set when Kind == ArgvRegex
}

// ParsePattern parses the "<kind>:<pattern>" form used both by the CLI
// flag and by the pattern's own editable round-trip (Pattern.Editable).
func ParsePattern(editable string) (Pattern, error) {
	kind, rest, ok := strings.Cut(editable, ":")
	if !ok {
		return Pattern{}, fmt.Errorf(`breakpoint: no pattern type found, want "argv-regex:", "in-filename:" or "exact-filename:"`)
	}
	switch kind {
	case "argv-regex":
		re, err := regexp.Compile(rest)
		if err != nil {
			return Pattern{}, fmt.Errorf("breakpoint: compile argv-regex %q: %w", rest, err)
		}
		return Pattern{Kind: ArgvRegex, Raw: rest, re: re}, nil
	case "in-filename":
		return Pattern{Kind: InFilename, Raw: rest}, nil
	case "exact-filename":
		return Pattern{Kind: ExactFilename, Raw: rest}, nil
	default:
		return Pattern{}, fmt.Errorf("breakpoint: invalid pattern type %q, want \"argv-regex\", \"in-filename\" or \"exact-filename\"", kind)
	}
}

// Editable renders the pattern back to its "<kind>:<pattern>" form.
func (p Pattern) Editable() string {
	switch p.Kind {
	case ArgvRegex:
		return "argv-regex:" + p.Raw
	case InFilename:
		return "in-filename:" + p.Raw
	default:
		return "exact-filename:" + p.Raw
	}
}

// Matches reports whether the pattern fires for the given exec attempt.
// filenameOK is false while the filename could not be resolved (a failed
// probe read); InFilename/ExactFilename never match in that case, mirroring
// the original's OutputMsg::Err short-circuit.
func (p Pattern) Matches(argv []string, filename string, filenameOK bool) bool {
	switch p.Kind {
	case ArgvRegex:
		if argv == nil {
			return false
		}
		return p.re.MatchString(strings.Join(argv, " "))
	case InFilename:
		return filenameOK && strings.Contains(filename, p.Raw)
	case ExactFilename:
		return filenameOK && filename == p.Raw
	default:
		return false
	}
}

// Type controls whether a breakpoint stays armed after firing.
type Type int

const (
	Permanent Type = iota
	Once
)

// BreakPoint is one configured trap.
type BreakPoint struct {
	ID        int
	Stop      Stop
	Pattern   Pattern
	Type      Type
	Activated bool
}

// ParseFlag parses the -b/--add-breakpoint CLI flag's
// "<sysenter|sysexit>:<pattern-type>:<pattern>" syntax into a freshly
// activated, permanent BreakPoint (ID is assigned by Set.Add).
func ParseFlag(spec string) (BreakPoint, error) {
	stopStr, rest, ok := strings.Cut(spec, ":")
	if !ok {
		return BreakPoint{}, fmt.Errorf(`breakpoint: no syscall stop found, breakpoint must start with "sysenter:" or "sysexit:"`)
	}
	stop, err := ParseStop(stopStr)
	if err != nil {
		return BreakPoint{}, err
	}
	pattern, err := ParsePattern(rest)
	if err != nil {
		return BreakPoint{}, err
	}
	return BreakPoint{Stop: stop, Pattern: pattern, Type: Permanent, Activated: true}, nil
}
