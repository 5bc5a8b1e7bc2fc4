package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Set at build time, for example:
//
//	-ldflags "-X guardian/internal/version.Version=v1.0.0 -X guardian/internal/version.Commit=abc1234"
var (
	Version = "dev"
	Commit  = ""
)

// Resolved returns Version, falling back to the module version recorded
// by `go install` when no ldflags were given.
func Resolved() string {
	if Version != "dev" && Version != "" {
		return Version
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		if v := info.Main.Version; v != "" && v != "(devel)" {
			return v
		}
	}
	return "dev"
}

func String() string {
	s := "guardian " + Resolved()
	if Commit != "" {
		s += " (" + Commit + ")"
	}
	return fmt.Sprintf("%s %s/%s %s", s, runtime.GOOS, runtime.GOARCH, runtime.Version())
}
