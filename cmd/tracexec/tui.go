package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tracexec-go/tracexec/internal/config"
	"github.com/tracexec-go/tracexec/internal/session"
	"github.com/tracexec-go/tracexec/internal/tuiface"
)

type tuiFlags struct {
	modifierFlags
	tty                string
	layout             string
	activePane         string
	frameRate          float64
	terminateOnExit    bool
	killOnExit         bool
}

func tuiCmd() *cobra.Command {
	f := &tuiFlags{}
	cmd := &cobra.Command{
		Use:   "tui -- <command> [args...]",
		Short: "Trace a command with an interactive event-list terminal UI.",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI(cmd, args, f)
		},
	}
	registerModifierFlags(cmd, &f.modifierFlags)
	cmd.Flags().StringVar(&f.tty, "tty", "", "Pseudo-terminal device to attach the tracee's stdio to")
	cmd.Flags().StringVar(&f.layout, "layout", "horizontal", "Pane layout: horizontal or vertical")
	cmd.Flags().StringVarP(&f.activePane, "active-pane", "A", "terminal", "Initially focused pane: terminal or events")
	cmd.Flags().Float64VarP(&f.frameRate, "frame-rate", "F", tuiface.DefaultFrameRate, "Repaint rate in frames/sec")
	cmd.Flags().BoolVar(&f.terminateOnExit, "terminate-on-exit", false, "SIGTERM the root tracee's process group on quit")
	cmd.Flags().BoolVar(&f.killOnExit, "kill-on-exit", false, "SIGKILL the root tracee's process group on quit")
	return cmd
}

func runTUI(cmd *cobra.Command, args []string, f *tuiFlags) error {
	prof, err := loadProfile()
	if err != nil {
		return err
	}
	mergeModifier(&f.modifierFlags, prof.Modifier)
	if prof.TUI != nil {
		f.frameRate = config.Float64Or(prof.TUI.FrameRate, f.frameRate)
	}

	layout, err := tuiface.ParseLayout(f.layout)
	if err != nil {
		return err
	}
	pane, err := tuiface.ParseActivePane(f.activePane)
	if err != nil {
		return err
	}

	b, err := startPtrace(args, &f.modifierFlags)
	if err != nil {
		return fmt.Errorf("tui: %w", err)
	}

	sessCfg, err := f.sessionConfig()
	if err != nil {
		return err
	}
	sessCfg.ExitDiscipline = exitDiscipline(f.terminateOnExit, f.killOnExit)
	sess := session.New(cmd.Context(), b, sessCfg)
	defer sess.Close()

	renderer := tuiface.NewRenderer(sess, b.Hits(), tuiface.Config{
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

func exitDiscipline(terminate, kill bool) session.ExitDiscipline {
	switch {
	case kill:
		return session.Kill
	case terminate:
		return session.Terminate
	default:
		return session.Wait
	}
}
