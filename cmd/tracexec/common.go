package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tracexec-go/tracexec/internal/breakpoint"
	"github.com/tracexec-go/tracexec/internal/config"
	"github.com/tracexec-go/tracexec/internal/ebpfbackend"
	"github.com/tracexec-go/tracexec/internal/event"
	"github.com/tracexec-go/tracexec/internal/forkexec"
	"github.com/tracexec-go/tracexec/internal/ptracebackend"
	"github.com/tracexec-go/tracexec/internal/seccomp"
	"github.com/tracexec-go/tracexec/internal/session"
)

// modifierFlags is the flag set common to log/tui/collect (and their
// ebpf-prefixed counterparts), mirroring spec.md §6's "Common to
// log/tui/collect" option group.
type modifierFlags struct {
	seccompBPF         string
	successfulOnly     bool
	resolveProcSelfExe bool
	pollingIntervalUs  int
	maxEvents          uint64
	filterCSV          string
	filterInclude      bool
	filterExclude      bool
	showAllEvents      bool
	follow             bool
	hideCloexecFds     bool
	breakpointFlags    []string
	defaultExternalCmd string
}

func registerModifierFlags(cmd *cobra.Command, f *modifierFlags) {
	cmd.Flags().StringVar(&f.seccompBPF, "seccomp-bpf", "auto", "Seccomp acceleration: auto, on, off")
	cmd.Flags().BoolVar(&f.successfulOnly, "successful-only", false, "Only show successful exec attempts")
	cmd.Flags().BoolVar(&f.resolveProcSelfExe, "resolve-proc-self-exe", true, "Resolve the requested filename via /proc/self/exe semantics")
	cmd.Flags().IntVar(&f.pollingIntervalUs, "polling-interval", 0, "Microseconds between wait polls; negative blocks")
	cmd.Flags().Uint64Var(&f.maxEvents, "max-events", session.DefaultMaxEvents, "Maximum retained events (0 = unlimited)")
	cmd.Flags().StringVar(&f.filterCSV, "filter", "", "Comma-separated event kinds to restrict to (exec,fork,exit)")
	cmd.Flags().BoolVar(&f.filterInclude, "filter-include", true, "--filter names kinds to include")
	cmd.Flags().BoolVar(&f.filterExclude, "filter-exclude", false, "--filter names kinds to exclude")
	cmd.Flags().BoolVar(&f.showAllEvents, "show-all-events", false, "Show fork/exit events alongside exec attempts")
	cmd.Flags().BoolVar(&f.follow, "follow", true, "Keep running until the root tracee's whole tree exits")
	cmd.Flags().BoolVar(&f.hideCloexecFds, "hide-cloexec-fds", false, "Hide close-on-exec fds from fd snapshots")
	cmd.Flags().StringArrayVarP(&f.breakpointFlags, "add-breakpoint", "b", nil, "Breakpoint spec: <sysenter|sysexit>:<argv-regex|in-filename|exact-filename>:<pattern>")
	cmd.Flags().StringVarP(&f.defaultExternalCmd, "default-external-command", "D", "", "External command template for detach-and-run ({{PID}} substituted)")
}

func mergeModifier(f *modifierFlags, cfg *config.ModifierConfig) {
	if cfg == nil {
		return
	}
	if cfg.SeccompBPF != nil {
		f.seccompBPF = string(*cfg.SeccompBPF)
	}
	f.successfulOnly = config.BoolOr(cfg.SuccessfulOnly, f.successfulOnly)
	f.resolveProcSelfExe = config.BoolOr(cfg.ResolveProcSelfExe, f.resolveProcSelfExe)
	if cfg.PollingIntervalMicro != nil {
		f.pollingIntervalUs = *cfg.PollingIntervalMicro
	}
	f.hideCloexecFds = config.BoolOr(cfg.HideCloexecFds, f.hideCloexecFds)
}

func kindByName(name string) (event.Kind, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "exec":
		return event.KindExecAttempt, true
	case "fork":
		return event.KindFork, true
	case "exit":
		return event.KindExit, true
	default:
		return 0, false
	}
}

func (f *modifierFlags) sessionFilter() (session.Filter, error) {
	filter := session.DefaultFilter()
	filter.SuccessfulOnly = f.successfulOnly
	if f.filterCSV == "" {
		return filter, nil
	}
	kinds := make(map[event.Kind]bool)
	for _, name := range strings.Split(f.filterCSV, ",") {
		k, ok := kindByName(name)
		if !ok {
			return filter, fmt.Errorf("unknown --filter kind %q", name)
		}
		kinds[k] = true
	}
	if f.filterExclude {
		filter.Exclude = kinds
	} else {
		filter.Kinds = kinds
	}
	return filter, nil
}

func (f *modifierFlags) sessionConfig() (session.Config, error) {
	filter, err := f.sessionFilter()
	if err != nil {
		return session.Config{}, err
	}
	cfg := session.DefaultConfig()
	cfg.Filter = filter
	cfg.MaxEvents = int(f.maxEvents)
	return cfg, nil
}

func (f *modifierFlags) seccompMode() (seccomp.Mode, error) {
	return seccomp.ParseMode(f.seccompBPF)
}

func (f *modifierFlags) limits() ptracebackend.Limits {
	l := ptracebackend.DefaultLimits
	l.PollInterval = time.Duration(f.pollingIntervalUs) * time.Microsecond
	return l
}

// applyBreakpoints parses --add-breakpoint specs into set, returning an
// error naming the first malformed spec.
func applyBreakpoints(set *breakpoint.Set, specs []string) error {
	for _, spec := range specs {
		bp, err := breakpoint.ParseFlag(spec)
		if err != nil {
			return fmt.Errorf("--add-breakpoint %q: %w", spec, err)
		}
		set.Add(bp)
	}
	return nil
}

func buildSpec(args []string) forkexec.Spec {
	return forkexec.Spec{
		Args:    args,
		WorkDir: global.cwd,
		User:    global.user,
		Stdin:   os.Stdin,
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
	}
}

// startPtrace spawns args under the ptrace backend per f, wiring any
// --add-breakpoint specs into the fresh backend's breakpoint set.
func startPtrace(args []string, f *modifierFlags) (*ptracebackend.Backend, error) {
	mode, err := f.seccompMode()
	if err != nil {
		return nil, err
	}
	b, err := ptracebackend.Start(buildSpec(args), mode, f.limits())
	if err != nil {
		return nil, err
	}
	if err := applyBreakpoints(b.Breakpoints(), f.breakpointFlags); err != nil {
		return nil, err
	}
	return b, nil
}

// startEBPF spawns args under the accelerated backend, passing followForks
// through as ebpfbackend.Config.FollowForks.
// --add-breakpoint is not honored here: the eBPF backend has no
// ptrace-stop to park a matched tracee at (spec.md §4.8's engine is
// defined against the ptrace backend's group-stop semantics).
func startEBPF(args []string, followForks bool) (*ebpfbackend.Backend, error) {
	return ebpfbackend.Start(buildSpec(args), ebpfbackend.Config{FollowForks: followForks})
}
