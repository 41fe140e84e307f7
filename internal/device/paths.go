package device

import "os"

// DefaultPaths lists the device nodes probed in order.
var DefaultPaths = []string{
	"/dev/simtemp",
	"/dev/nxp_simtemp",
}

// ResolvePath returns the first candidate that exists, or the first candidate
// when none do so the caller's open reports DeviceNotFound for it.
func ResolvePath(candidates ...string) string {
	if len(candidates) == 0 {
		candidates = DefaultPaths
	}

	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}

	return candidates[0]
}
