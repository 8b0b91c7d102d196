package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tracexec-go/tracexec/internal/session"
	"github.com/tracexec-go/tracexec/internal/tuiface"
)

// ebpfCmd groups the accelerated-backend variants of log/tui/collect
// (spec.md §6's `ebpf (log|tui|collect)`). The --add-breakpoint flag is
// registered here but never applied: the eBPF backend has no ptrace-stop
// to park a matched tracee at.
func ebpfCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ebpf",
		Short: "Run log/tui/collect atop the accelerated eBPF backend.",
	}
	cmd.AddCommand(ebpfLogCmd(), ebpfTUICmd(), ebpfCollectCmd())
	return cmd
}

func ebpfLogCmd() *cobra.Command {
	f := &logFlags{}
	cmd := &cobra.Command{
		Use:   "log -- <command> [args...]",
		Short: "Trace a command under eBPF and print one line per exec attempt.",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEBPFLog(cmd, args, f)
		},
	}
	registerModifierFlags(cmd, &f.modifierFlags)
	cmd.Flags().BoolVar(&f.showArgv, "show-argv", true, "Show argv")
	cmd.Flags().BoolVar(&f.showCwd, "show-cwd", false, "Show the working directory")
	cmd.Flags().BoolVar(&f.timestamp, "timestamp", false, "Prefix each line with a timestamp")
	cmd.Flags().StringVarP(&f.output, "output", "o", "-", "Output path, or - for stdout")
	return cmd
}

func runEBPFLog(cmd *cobra.Command, args []string, f *logFlags) error {
	prof, err := loadProfile()
	if err != nil {
		return err
	}
	mergeModifier(&f.modifierFlags, prof.Modifier)

	b, err := startEBPF(args, true)
	if err != nil {
		return fmt.Errorf("ebpf log: %w", err)
	}

	sessCfg, err := f.sessionConfig()
	if err != nil {
		return err
	}
	sess := session.New(cmd.Context(), b, sessCfg)
	defer sess.Close()

	out, closeOut, err := openOutput(f.output)
	if err != nil {
		return err
	}
	defer closeOut()

	return drainLog(cmd.Context(), sess, f, out)
}

func ebpfTUICmd() *cobra.Command {
	f := &tuiFlags{}
	cmd := &cobra.Command{
		Use:   "tui -- <command> [args...]",
		Short: "Trace a command under eBPF with the interactive event-list UI.",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEBPFTUI(cmd, args, f)
		},
	}
	registerModifierFlags(cmd, &f.modifierFlags)
	cmd.Flags().StringVar(&f.layout, "layout", "horizontal", "Pane layout: horizontal or vertical")
	cmd.Flags().StringVarP(&f.activePane, "active-pane", "A", "terminal", "Initially focused pane: terminal or events")
	cmd.Flags().Float64VarP(&f.frameRate, "frame-rate", "F", tuiface.DefaultFrameRate, "Repaint rate in frames/sec")
	return cmd
}

func runEBPFTUI(cmd *cobra.Command, args []string, f *tuiFlags) error {
	prof, err := loadProfile()
	if err != nil {
		return err
	}
	mergeModifier(&f.modifierFlags, prof.Modifier)

	layout, err := tuiface.ParseLayout(f.layout)
	if err != nil {
		return err
	}
	pane, err := tuiface.ParseActivePane(f.activePane)
	if err != nil {
		return err
	}

	b, err := startEBPF(args, true)
	if err != nil {
		return fmt.Errorf("ebpf tui: %w", err)
	}

	sessCfg, err := f.sessionConfig()
	if err != nil {
		return err
	}
	sess := session.New(cmd.Context(), b, sessCfg)
	defer sess.Close()

	renderer := tuiface.NewRenderer(sess, nil, tuiface.Config{
		Layout:     layout,
		ActivePane: pane,
		FrameRate:  f.frameRate,
	}, os.Stdout)

	stop := make(chan struct{})
	go func() {
		<-cmd.Context().Done()
		close(stop)
	}()
	return renderer.Run(stop)
}

func ebpfCollectCmd() *cobra.Command {
	f := &collectFlags{}
	cmd := &cobra.Command{
		Use:   "collect -- <command> [args...]",
		Short: "Trace a command under eBPF and write its exec attempts as structured JSON.",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCollect(cmd, args, f, true)
		},
	}
	registerModifierFlags(cmd, &f.modifierFlags)
	cmd.Flags().BoolVar(&f.pretty, "pretty", false, "Pretty-print JSON output")
	cmd.Flags().StringVar(&f.format, "format", "jsonl", "Output format: jsonl, or json for a single object")
	cmd.Flags().StringVarP(&f.output, "output", "o", "-", "Output path, or - for stdout")
	return cmd
}
