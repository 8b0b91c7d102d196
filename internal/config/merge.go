package config

// BoolOr returns *p if set, else dflt — the "config value unless the CLI
// flag overrode it" merge a cobra command applies per flag.
func BoolOr(p *bool, dflt bool) bool {
	if p != nil {
		return *p
	}
	return dflt
}

// StringOr returns *p if set, else dflt.
func StringOr(p *string, dflt string) string {
	if p != nil {
		return *p
	}
	return dflt
}

// Float64Or returns *p if set, else dflt.
func Float64Or(p *float64, dflt float64) float64 {
	if p != nil {
		return *p
	}
	return dflt
}

// Uint64Or returns *p if set, else dflt.
func Uint64Or(p *uint64, dflt uint64) uint64 {
	if p != nil {
		return *p
	}
	return dflt
}

// SeccompModeOr returns *p if set, else dflt.
func SeccompModeOr(p *SeccompMode, dflt SeccompMode) SeccompMode {
	if p != nil {
		return *p
	}
	return dflt
}
