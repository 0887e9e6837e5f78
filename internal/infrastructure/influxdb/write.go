package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteBinValue writes a single data-bin update to InfluxDB.
//
// This is the primary method for recording run telemetry: every numeric
// value an operation writes into a column or parameter bin lands here.
// The write is non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - runID: Identifier of the run the bin belongs to
//   - kind: Bin namespace, "column" or "parameter"
//   - name: Bin name (e.g., "T_sample")
//   - value: The numeric value to record
//
// Example:
//
//	client.WriteBinValue("run-42", "column", "T_sample", 4.21)
func (c *Client) WriteBinValue(runID, kind, name string, value float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"labflow_bin",
		map[string]string{
			"run":  runID,
			"kind": kind,
			"name": name,
		},
		map[string]interface{}{
			"value": value,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteGateReading writes one stability-gate sample.
//
// Used to reconstruct settling behaviour after a run: each poll of the
// gate's source operation is recorded against the setpoint it was
// waiting on.
//
// Parameters:
//   - runID: Identifier of the run
//   - path: Tree path of the scan node that owns the gate
//   - setpoint: The setpoint being settled towards
//   - value: The sampled reading
func (c *Client) WriteGateReading(runID, path string, setpoint, value float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"labflow_gate",
		map[string]string{
			"run":  runID,
			"path": path,
		},
		map[string]interface{}{
			"setpoint": setpoint,
			"value":    value,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for custom measurements that don't fit the helper methods.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
//
// Example:
//
//	client.WritePoint("system_stats",
//	    map[string]string{"host": "core-01"},
//	    map[string]interface{}{"cpu_percent": 45.2, "memory_mb": 512})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WritePointWithTime writes a custom point with a specific timestamp.
//
// Use this when the timestamp is not "now" (e.g., delayed data).
//
// Parameters:
//   - measurement: The measurement name
//   - tags: Key-value pairs for indexing
//   - fields: Key-value pairs for the data
//   - timestamp: The exact time for this data point
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
