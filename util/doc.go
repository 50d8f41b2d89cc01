// Package util holds small generic helpers shared by the agent packages.
package util
