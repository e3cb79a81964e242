package config

// Version is the bookvault binary version.
// Set at build time via: -ldflags "-X github.com/bookvault/bookvault/internal/config.Version=<tag>"
// Defaults to "dev" when built without ldflags.
var Version = "dev"
