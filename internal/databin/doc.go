// Package databin implements the run-scoped value store that actions
// write their outputs into and later actions read their inputs from.
//
// A bin holds the latest formatted value for a (kind, name) pair.
// Columns are the measured quantities a run produces; parameters are
// named scratch values runs use for control flow; constants are fixed
// at run start and never written by actions. The store satisfies
// expr.Context, so marker expressions resolve directly against it.
//
// Writes notify subscribed observers. Telemetry recorders and the
// websocket feed attach as observers rather than polling.
package databin
