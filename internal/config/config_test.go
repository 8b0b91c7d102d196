package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTemp(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadModifierSection(t *testing.T) {
	path := writeTemp(t, `
[modifier]
seccomp_bpf = "auto"
successful_only = true
hide_cloexec_fds = false
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Modifier == nil {
		t.Fatal("expected [modifier] section")
	}
	if got := SeccompModeOr(cfg.Modifier.SeccompBPF, SeccompOff); got != SeccompAuto {
		t.Fatalf("seccomp_bpf = %v, want auto", got)
	}
	if !BoolOr(cfg.Modifier.SuccessfulOnly, false) {
		t.Fatal("successful_only must be true")
	}
	if BoolOr(cfg.Modifier.HideCloexecFds, true) {
		t.Fatal("hide_cloexec_fds must be false")
	}
}

func TestLoadTUISection(t *testing.T) {
	path := writeTemp(t, `
[tui]
follow = true
frame_rate = 12.5
max_events = 100
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.TUI == nil {
		t.Fatal("expected [tui] section")
	}
	if got := Float64Or(cfg.TUI.FrameRate, 0); got != 12.5 {
		t.Fatalf("frame_rate = %v, want 12.5", got)
	}
	if got := Uint64Or(cfg.TUI.MaxEvents, 0); got != 100 {
		t.Fatalf("max_events = %v, want 100", got)
	}
}

func TestLoadInvalidFrameRate(t *testing.T) {
	path := writeTemp(t, "[tui]\nframe_rate = -1\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected a negative frame_rate to be rejected")
	}
}

func TestLoadDebuggerSection(t *testing.T) {
	path := writeTemp(t, `[debugger]
default_external_command = "echo hello"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if got := StringOr(cfg.Debugger.DefaultExternalCommand, ""); got != "echo hello" {
		t.Fatalf("default_external_command = %q, want %q", got, "echo hello")
	}
}

func TestLoadExplicitPathNotFoundIsError(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatal("expected an error for an explicitly named but missing config file")
	}
}

func TestLoadNoPathNoHomeReturnsEmptyConfig(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(t.TempDir(), "does-not-exist"))
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Modifier != nil || cfg.TUI != nil || cfg.Log != nil {
		t.Fatal("expected a zero Config when no profile exists")
	}
}
