package config

import "fmt"

// The following vars are set at build time through ldflags, e.g.
// go build -ldflags="-X 'github/chapool/embedded-wallet/internal/config.Commit=$(git rev-parse HEAD)'"
var (
	ModuleName = "embedded-wallet"
	Commit     = "< 40 chars git commit hash via ldflags >"
	BuildDate  = "1970-01-01T00:00:00+00:00"
)

// GetFormattedBuildArgs returns ModuleName, Commit and BuildDate on one line.
func GetFormattedBuildArgs() string {
	return fmt.Sprintf("%v @ %v (%v)", ModuleName, Commit, BuildDate)
}
