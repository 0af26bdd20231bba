package version

import "strings"

// Version, Commit and BuildDate are set at build time using ldflags.
var (
	Version   = "0.1.0.dev1"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// Environment is reported with errors sent to Sentry.
func Environment() string {
	if strings.Contains(Version, "dev") {
		return "development"
	}
	return "production"
}
