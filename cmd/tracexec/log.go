package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tracexec-go/tracexec/internal/event"
	"github.com/tracexec-go/tracexec/internal/session"
)

// logFlags is the display-toggle subset of spec.md §6's `log`-specific
// options; the shared capture/filter flags live in modifierFlags.
type logFlags struct {
	modifierFlags
	showCmdline     bool
	showInterpreter bool
	showCwd         bool
	showArgv        bool
	timestamp       bool
	diffEnv         bool
	diffFd          bool
	output          string
}

func logCmd() *cobra.Command {
	f := &logFlags{}
	cmd := &cobra.Command{
		Use:   "log -- <command> [args...]",
		Short: "Trace a command and print one line per exec attempt.",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLog(cmd, args, f)
		},
	}
	registerModifierFlags(cmd, &f.modifierFlags)
	cmd.Flags().BoolVar(&f.showCmdline, "show-cmdline", true, "Show the reconstructed command line")
	cmd.Flags().BoolVar(&f.showInterpreter, "show-interpreter", false, "Show the resolved interpreter for scripts")
	cmd.Flags().BoolVar(&f.showCwd, "show-cwd", false, "Show the working directory")
	cmd.Flags().BoolVar(&f.showArgv, "show-argv", true, "Show argv")
	cmd.Flags().BoolVar(&f.timestamp, "timestamp", false, "Prefix each line with a timestamp")
	cmd.Flags().BoolVar(&f.diffEnv, "diff-env", false, "Show only envp entries that differ from the baseline")
	cmd.Flags().BoolVar(&f.diffFd, "diff-fd", false, "Show only fds that differ from the baseline")
	cmd.Flags().StringVarP(&f.output, "output", "o", "-", "Output path, or - for stdout")
	return cmd
}

func runLog(cmd *cobra.Command, args []string, f *logFlags) error {
	prof, err := loadProfile()
	if err != nil {
		return err
	}
	mergeModifier(&f.modifierFlags, prof.Modifier)

	b, err := startPtrace(args, &f.modifierFlags)
	if err != nil {
		return fmt.Errorf("log: %w", err)
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

func openOutput(path string) (io.Writer, func(), error) {
	if path == "" || path == "-" {
		return os.Stdout, func() {}, nil
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("log: open output %s: %w", path, err)
	}
	return file, func() { file.Close() }, nil
}

func drainLog(ctx context.Context, sess *session.Session, f *logFlags, out io.Writer) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case crash, ok := <-sess.Crashed():
			if ok {
				return fmt.Errorf("log: tracer crashed: %w", crash.Reason)
			}
		case ev, ok := <-sess.Events():
			if !ok {
				return nil
			}
			writeLogLine(out, ev, f)
		}
	}
}

func writeLogLine(out io.Writer, ev event.Event, f *logFlags) {
	switch ev.Header.Type {
	case event.KindExecAttempt:
		writeExecLine(out, ev, f)
	case event.KindFork:
		if f.showAllEvents {
			fmt.Fprintf(out, "[%d] fork -> %d\n", ev.Header.Pid.OsPid, ev.Fork.Child.OsPid)
		}
	case event.KindExit:
		if f.showAllEvents {
			fmt.Fprintf(out, "[%d] exit: code=%d signal=%d\n", ev.Header.Pid.OsPid, ev.Exit.ExitCode, ev.Exit.Signal)
		}
	}
}

func writeExecLine(out io.Writer, ev event.Event, f *logFlags) {
	exec := ev.Exec
	if exec == nil {
		return
	}
	status := "ok"
	if !exec.Outcome.Success {
		status = exec.Outcome.Symbol
	}
	var line string
	if f.showArgv {
		line = fmt.Sprintf("%q", exec.Attempt.Argv)
	} else {
		line = exec.Attempt.RequestedFilename
	}
	if f.showCwd {
		line = fmt.Sprintf("%s (cwd=%s)", line, exec.Attempt.Cwd.Absolute)
	}
	prefix := fmt.Sprintf("[%d] ", ev.Header.Pid.OsPid)
	if f.timestamp {
		prefix = time.Now().Format(time.RFC3339) + " " + prefix
	}
	fmt.Fprintf(out, "%s%s -> %s\n", prefix, line, status)
}
