// Package probe reads the local environment a registration is derived from:
// the primary outbound address, the cloud instance class and availability
// zone, and the hostname.
//
// Only the address probe can fail. The other reads degrade to Unknown so a
// registration can still be published with partial metadata.
package probe
