package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tracexec-go/tracexec/internal/event"
	"github.com/tracexec-go/tracexec/internal/export"
	"github.com/tracexec-go/tracexec/internal/session"
)

type collectFlags struct {
	modifierFlags
	pretty bool
	format string
	output string
}

func collectCmd() *cobra.Command {
	f := &collectFlags{}
	cmd := &cobra.Command{
		Use:   "collect -- <command> [args...]",
		Short: "Trace a command and write its exec attempts as structured JSON.",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCollect(cmd, args, f, false)
		},
	}
	registerModifierFlags(cmd, &f.modifierFlags)
	cmd.Flags().BoolVar(&f.pretty, "pretty", false, "Pretty-print JSON output")
	cmd.Flags().StringVar(&f.format, "format", "jsonl", "Output format: jsonl, or json for a single object")
	cmd.Flags().StringVarP(&f.output, "output", "o", "-", "Output path, or - for stdout")
	return cmd
}

func runCollect(cmd *cobra.Command, args []string, f *collectFlags, ebpf bool) error {
	prof, err := loadProfile()
	if err != nil {
		return err
	}
	mergeModifier(&f.modifierFlags, prof.Modifier)

	var backend session.Backend
	if ebpf {
		backend, err = startEBPF(args, true)
	} else {
		backend, err = startPtrace(args, &f.modifierFlags)
	}
	if err != nil {
		return fmt.Errorf("collect: %w", err)
	}

	sessCfg, err := f.sessionConfig()
	if err != nil {
		return err
	}
	sess := session.New(cmd.Context(), backend, sessCfg)
	defer sess.Close()

	out, closeOut, err := openOutput(f.output)
	if err != nil {
		return err
	}
	defer closeOut()

	backendName := "ptrace"
	if ebpf {
		backendName = "ebpf"
	}
	w := export.NewWriter(out, f.pretty, f.format == "json")
	if err := w.WriteMetadata(export.Metadata{
		Tool:      "tracexec",
		Version:   version,
		Backend:   backendName,
		StartedAt: time.Now(),
	}); err != nil {
		return err
	}

	for {
		select {
		case <-cmd.Context().Done():
			return w.Close()
		case crash, ok := <-sess.Crashed():
			if ok {
				w.Close()
				return fmt.Errorf("collect: tracer crashed: %w", crash.Reason)
			}
		case ev, ok := <-sess.Events():
			if !ok {
				return w.Close()
			}
			if ev.Header.Type != event.KindExecAttempt || ev.Exec == nil {
				continue
			}
			if err := w.WriteEvent(export.FromExecEvent(ev.Exec, time.Now())); err != nil {
				return err
			}
		}
	}
}
