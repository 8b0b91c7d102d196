// Command tracexec traces exec-family syscalls across a process tree and
// streams the captured attempts to a log, an interactive TUI, or a JSON
// export (spec.md §6). Grounded on
// coder-exectrace/cmd/exectrace/main.go's cobra root-command shape.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tracexec-go/tracexec/internal/config"
)

// globalFlags mirrors spec.md §6's globally recognized options.
type globalFlags struct {
	color     string
	cwd       string
	user      string
	profile   string
	noProfile bool
}

var global globalFlags

// version is stamped at build time via -ldflags; "dev" otherwise.
var version = "dev"

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "tracexec",
		Short:         "Trace exec-family syscalls across a process tree.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&global.color, "color", "auto", "Color output: auto, always, never")
	cmd.PersistentFlags().StringVarP(&global.cwd, "cwd", "C", "", "Working directory for the traced command")
	cmd.PersistentFlags().StringVarP(&global.user, "user", "u", "", "User to run the traced command as")
	cmd.PersistentFlags().StringVar(&global.profile, "profile", "", "Path to a config.toml profile")
	cmd.PersistentFlags().BoolVar(&global.noProfile, "no-profile", false, "Ignore any config.toml profile")

	cmd.AddCommand(logCmd(), tuiCmd(), collectCmd(), ebpfCmd(), completionsCmd())
	return cmd
}

func loadProfile() (config.Config, error) {
	if global.noProfile {
		return config.Config{}, nil
	}
	return config.Load(global.profile)
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "tracexec:", err)
		os.Exit(1)
	}
}
