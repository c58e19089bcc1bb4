package artifetch

// Version is the release version, overridden at build time with
// -ldflags "-X github.com/randalmurphal/artifetch.Version=...".
var Version = "dev"

// UserAgent is sent with every API request.
func UserAgent() string {
	return "artifetch/" + Version
}
