// Package consul is the Consul agent HTTP client used by consulagent.
//
// It wraps github.com/hashicorp/consul/api and converts every failure into an
// errors.AppError: BACKEND_REJECTED with the status and body for non-2xx
// answers, BACKEND_UNAVAILABLE when no answer arrived, and NOT_FOUND for a
// missing KV key. No call is retried.
package consul
