// Package process runs short-lived helper binaries, such as the instance
// metadata tool, with a bounded lifetime and captured output.
package process
