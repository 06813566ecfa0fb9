package version

// Version is set at build time with
// -ldflags "-X github.com/eudat-b2safe/b2handle/internal/version.Version=...".
var Version = "0.1.0-dev"
