// Package progress tracks what a run is doing right now and what it
// has already done. Actions publish a transient "current" message
// while they work and post a permanent history entry when they finish;
// listeners attach callbacks to forward either stream to the API,
// MQTT, or logs.
//
// Monitors are scoped to a run through a Registry, which creates a
// monitor the first time a name is requested.
package progress
