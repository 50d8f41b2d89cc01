// Package version reports the consulagent build.
//
// Version, commit and build time are set at link time:
//
//	go build -ldflags "-X github.com/kbukum/consulagent/version.Version=1.4.0" ./cmd/consulagent
//
// Unset values are filled from the module build info when available.
package version
