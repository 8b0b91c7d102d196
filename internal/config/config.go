// Package config loads tracexec's TOML profile (spec.md §6.3) and merges
// it with CLI flags: sections [ptrace], [debugger], [modifier], [tui],
// [log], keys mirroring the CLI flag surface 1:1. Grounded on
// original_source/crates/tracexec-core/src/cli/config.rs's section
// layout.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// SeccompMode mirrors the --seccomp-bpf flag's three-way choice.
type SeccompMode string

const (
	SeccompAuto SeccompMode = "auto"
	SeccompOn   SeccompMode = "on"
	SeccompOff  SeccompMode = "off"
)

// ExitHandling mirrors the TUI's --terminate-on-exit/--kill-on-exit pair.
type ExitHandling string

const (
	ExitWait      ExitHandling = "wait"
	ExitTerminate ExitHandling = "terminate"
	ExitKill      ExitHandling = "kill"
)

// Config is the parsed config.toml, every field optional since CLI flags
// take precedence and a key absent from the file just leaves the flag
// default in place.
type Config struct {
	Ptrace   *PtraceConfig   `toml:"ptrace"`
	Debugger *DebuggerConfig `toml:"debugger"`
	Modifier *ModifierConfig `toml:"modifier"`
	TUI      *TUIConfig      `toml:"tui"`
	Log      *LogConfig      `toml:"log"`
}

type PtraceConfig struct {
	SeccompBPF *SeccompMode `toml:"seccomp_bpf"`
}

type DebuggerConfig struct {
	DefaultExternalCommand *string `toml:"default_external_command"`
}

type ModifierConfig struct {
	SeccompBPF           *SeccompMode `toml:"seccomp_bpf"`
	SuccessfulOnly       *bool        `toml:"successful_only"`
	ResolveProcSelfExe   *bool        `toml:"resolve_proc_self_exe"`
	HideCloexecFds       *bool        `toml:"hide_cloexec_fds"`
	PollingIntervalMicro *int         `toml:"polling_interval"`
}

type TUIConfig struct {
	Follow               *bool         `toml:"follow"`
	ExitHandling         *ExitHandling `toml:"exit_handling"`
	ActivePane           *string       `toml:"active_pane"`
	Layout               *string       `toml:"layout"`
	FrameRate            *float64      `toml:"frame_rate"`
	MaxEvents            *uint64       `toml:"max_events"`
	DefaultExternalCmd   *string       `toml:"default_external_command"`
}

type LogConfig struct {
	ShowCmdline     *bool `toml:"show_cmdline"`
	ShowInterpreter *bool `toml:"show_interpreter"`
	ShowCwd         *bool `toml:"show_cwd"`
	ShowArgv        *bool `toml:"show_argv"`
	Timestamp       *bool `toml:"timestamp"`
}

// Load reads and parses the config file at path. An empty path resolves
// to $XDG_CONFIG_HOME/tracexec/config.toml, falling back to
// $HOME/.config/tracexec/config.toml, mirroring project_directory() in
// the original. A missing file at the resolved default location is not an
// error — it returns a zero Config, same as --no-profile — but a missing
// file at an explicitly given path is.
func Load(path string) (Config, error) {
	explicit := path != ""
	if !explicit {
		var err error
		path, err = defaultPath()
		if err != nil {
			return Config{}, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return Config{}, nil
		}
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if cfg.TUI != nil && cfg.TUI.FrameRate != nil {
		if r := *cfg.TUI.FrameRate; r != r || r <= 0 {
			return Config{}, fmt.Errorf("config: tui.frame_rate must be a positive number, got %v", r)
		}
	}
	return cfg, nil
}

func defaultPath() (string, error) {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "tracexec", "config.toml"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "tracexec", "config.toml"), nil
}
