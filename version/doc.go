// Package version provides build version information for PhotoFlow
// binaries.
//
// Version, git commit, branch, and build time are set at compile time
// via -ldflags:
//
//	go build -ldflags "-X github.com/sean-she/photoflow-storage/version.Version=1.0.0"
//
// When ldflags are absent the package falls back to the VCS stamps Go
// embeds in the build info, so "go install" builds still report a
// meaningful revision.
package version
