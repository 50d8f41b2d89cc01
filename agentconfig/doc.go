// Package agentconfig renders the JSON configuration of a Consul client agent
// running on this host.
package agentconfig
