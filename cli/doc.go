// Package cli is the consulagent command dispatcher.
//
// Each invocation parses one command, loads configuration with the command's
// flags bound on top, runs the command against the local Consul agent and
// maps the outcome to an exit code:
//
//	0  the command completed, including backend failures printed as
//	   "<status> <reason>" followed by the request URL
//	1  the outbound address could not be probed or configuration failed to load
//	2  usage errors and invalid input
//
// Payloads, query results and KV values go to stdout. Diagnostics go through
// the logger, on stderr by default.
package cli
