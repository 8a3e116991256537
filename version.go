// Package snapraidrunner holds build metadata for the snapraid-runner binary.
package snapraidrunner

// Version is set at build time with -ldflags "-X github.com/deixis/snapraid-runner.Version=...".
var Version = "dev"
