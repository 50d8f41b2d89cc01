// Package balancer picks instances of a service by balance factor, preferring
// instances in the caller's availability zone.
//
// SmoothWeighted is the nginx smooth weighted round robin: over a cycle each
// item is chosen in proportion to its weight, interleaved rather than in runs.
// ZonePicker keeps one SmoothWeighted per zone side (local and other) built
// from the balanceFactor and zone metadata published at registration.
package balancer
