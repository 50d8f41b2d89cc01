// Package logger provides structured logging using zerolog.
//
// Diagnostics always go to stderr by default so that stdout stays reserved
// for command output (payloads, KV values, query results).
//
//	log := logger.New(&cfg, "consulagent").WithComponent("probe")
//	log.Warn("metadata probe degraded", logger.Fields("probe", "zone"))
package logger
