// Package version holds build metadata injected with -ldflags.
package version

// Set at build time:
//
//	go build -ldflags "-X github.com/sydlexius/refrain/internal/version.Version=v0.3.0"
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// UserAgent returns the User-Agent sent to upstream metadata services. Several of
// them (MusicBrainz, Wikipedia) reject anonymous clients.
func UserAgent() string {
	return "Refrain/" + Version + " (https://github.com/sydlexius/refrain)"
}
