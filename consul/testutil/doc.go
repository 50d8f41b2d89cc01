// Package testutil provides an in-process fake of the Consul agent HTTP API
// for tests. It serves the KV, agent service, catalog and health endpoints
// consulagent uses, records every request, and can be told to fail any path
// with a given status.
package testutil
