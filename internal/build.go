package internal

import (
	"runtime/debug"
	"time"
)

// Build information read from the VCS stamp of the binary. The values
// stay at their defaults for test binaries and builds outside a checkout.
var (
	BuildRevision      = "unknown"
	BuildRevisionTime  = time.Time{}
	BuildLocalModified = "unknown"
)

func init() {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}

	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			BuildRevision = setting.Value
		case "vcs.time":
			t, err := time.Parse(time.RFC3339, setting.Value)
			if err == nil {
				BuildRevisionTime = t
			}
		case "vcs.modified":
			BuildLocalModified = setting.Value
		}
	}
}

// Version is the short revision shown to users, marked when the
// binary was built from a modified checkout.
func Version() string {
	v := BuildRevision
	if len(v) > 12 {
		v = v[:12]
	}

	if BuildLocalModified == "true" {
		v += "-modified"
	}

	return v
}
