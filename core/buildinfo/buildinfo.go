package buildinfo

// These variables are intended to be set via -ldflags at build time:
//
//	-X 'github.com/m3rciful/volunteerbot/core/buildinfo.Version=v1.2.3'
//	-X 'github.com/m3rciful/volunteerbot/core/buildinfo.Commit=abcdef0'
//	-X 'github.com/m3rciful/volunteerbot/core/buildinfo.Date=2026-10-01T12:00:00Z'
//
// Default values are useful for local dev.
var (
	Version = "dev"
	Commit  = "local"
	// Date is the build timestamp in RFC3339 format.
	Date = ""
)
