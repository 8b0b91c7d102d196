package abi

import "runtime"

// Current returns the Arch this binary was built for. The tracer host and
// the tracee are assumed to run the same native architecture; compat-mode
// tracees (32-bit processes under a 64-bit kernel) are handled via BitMode,
// not a different Arch.
func Current() Arch {
	switch runtime.GOARCH {
	case "amd64":
		return ArchX86_64
	case "arm64":
		return ArchAarch64
	case "riscv64":
		return ArchRiscv64
	default:
		return ArchUnknown
	}
}
