// Package balance resolves the balance factor published with a registration.
//
// The weight table maps instance classes to factors and lives in Consul KV.
// Fetching it never fails: any problem reading or decoding the key falls back
// to the built-in table, which weights every known class equally.
package balance
