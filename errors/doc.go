// Package errors defines the error taxonomy of the agent.
//
// Only a few failures are allowed to surface as errors at all. Metadata probes
// and the weight-table lookup degrade to sentinel values instead. What remains
// is classified by ErrorCode so the command layer can decide between aborting
// (local environment) and reporting the backend status to the operator.
package errors
