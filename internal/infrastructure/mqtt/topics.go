package mqtt

import "fmt"

// Topic prefixes per the LabFlow MQTT layout.
//
// All topics use the flat scheme: labflow/{category}/{run_id}/{detail}
const (
	// TopicPrefix is the base for all LabFlow topics.
	TopicPrefix = "labflow"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "labflow/system"
)

// Topics provides builders for LabFlow MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	statusTopic := topics.RunStatus("run-42", "main")
//	// Returns: "labflow/status/run-42/main"
type Topics struct{}

// RunStatus returns the topic for status monitor updates of a run.
//
// Example: labflow/status/run-42/main
func (Topics) RunStatus(runID, monitor string) string {
	return fmt.Sprintf("%s/status/%s/%s", TopicPrefix, runID, monitor)
}

// RunEvent returns the topic for run lifecycle events.
//
// Example: labflow/run/run-42/finished
func (Topics) RunEvent(runID, event string) string {
	return fmt.Sprintf("%s/run/%s/%s", TopicPrefix, runID, event)
}

// RunReading returns the topic for data-bin updates of a run.
//
// Example: labflow/reading/run-42/column/T_sample
func (Topics) RunReading(runID, kind, name string) string {
	return fmt.Sprintf("%s/reading/%s/%s/%s", TopicPrefix, runID, kind, name)
}

// RunInterrupt returns the topic external callers publish to in order
// to raise the interrupt signal of a run.
//
// Example: labflow/interrupt/run-42
func (Topics) RunInterrupt(runID string) string {
	return fmt.Sprintf("%s/interrupt/%s", TopicPrefix, runID)
}

// SystemStatus returns the system status topic.
//
// Example: labflow/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// SystemShutdown returns the shutdown signal topic.
//
// Example: labflow/system/shutdown
func (Topics) SystemShutdown() string {
	return fmt.Sprintf("%s/shutdown", TopicPrefixSystem)
}

// =============================================================================
// Wildcard Patterns for Subscriptions
// =============================================================================

// AllRunStatus returns a pattern matching all status monitor updates.
//
// Pattern: labflow/status/+/+
func (Topics) AllRunStatus() string {
	return fmt.Sprintf("%s/status/+/+", TopicPrefix)
}

// AllRunInterrupts returns a pattern matching interrupt requests for
// every run.
//
// Pattern: labflow/interrupt/+
func (Topics) AllRunInterrupts() string {
	return fmt.Sprintf("%s/interrupt/+", TopicPrefix)
}

// AllRunEvents returns a pattern matching all run lifecycle events.
//
// Pattern: labflow/run/+/+
func (Topics) AllRunEvents() string {
	return fmt.Sprintf("%s/run/+/+", TopicPrefix)
}

// AllTopics returns a pattern matching all LabFlow topics.
// Use with caution - this receives ALL traffic.
//
// Pattern: labflow/#
func (Topics) AllTopics() string {
	return "labflow/#"
}
