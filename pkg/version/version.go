package version

// Version is the application version reported by the API and sent in the User-Agent.
// Overridden at build time with -ldflags "-X streetroll/pkg/version.Version=...".
var Version = "v0.3.1"
