// Package version holds build information for kmerge.
package version

// Overridable at build time:
// go build -ldflags "-X kmerge/internal/version.Version=1.2.0 -X kmerge/internal/version.Commit=abc123"
var (
	Version   = "0.3.0"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// Info is the version with a short commit suffix when one is known.
func Info() string {
	if Commit != "unknown" && len(Commit) > 7 {
		return Version + " (" + Commit[:7] + ")"
	}
	return Version
}

// Full is the multi-line form printed by `kmerge version`.
func Full() string {
	return "kmerge " + Version + "\n" +
		"commit: " + Commit + "\n" +
		"built:  " + BuildDate
}
