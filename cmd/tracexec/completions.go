package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func completionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "generate-completions <shell>",
		Short:     "Print a shell completion script to stdout.",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"bash", "zsh", "fish", "powershell"},
		RunE: func(cmd *cobra.Command, args []string) error {
			root := cmd.Root()
			switch args[0] {
			case "bash":
				return root.GenBashCompletion(os.Stdout)
			case "zsh":
				return root.GenZshCompletion(os.Stdout)
			case "fish":
				return root.GenFishCompletion(os.Stdout, true)
			case "powershell":
				return root.GenPowerShellCompletionWithDesc(os.Stdout)
			default:
				return fmt.Errorf("generate-completions: unsupported shell %q", args[0])
			}
		},
	}
}
