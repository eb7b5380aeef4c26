package version

import "runtime"

// Name identifies the binary in logs and outbound requests.
const Name = "fee-tracker"

// Build metadata, overridden at link time with -ldflags "-X ...".
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// UserAgent is the default User-Agent for upstream requests.
func UserAgent() string {
	return Name + "/" + Version
}

// Info renders build metadata for the version command.
func Info() string {
	return "version: " + Version + "\n" +
		"commit: " + Commit + "\n" +
		"built: " + BuildDate + "\n" +
		"go: " + runtime.Version() + "\n"
}
