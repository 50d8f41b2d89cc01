// Package registration builds the service descriptor consulagent submits to
// the Consul agent.
//
// A descriptor combines the probed host profile, the balance factor resolved
// from the weight table and the operator's overrides. Overrides are pointers:
// a non-nil override wins even when it holds the zero value.
package registration
