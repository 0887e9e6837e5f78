// Package mqtt provides MQTT client connectivity for LabFlow Core.
//
// This package manages:
//   - Connection to Mosquitto broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// LabFlow uses MQTT as its outward-facing message bus. Status monitor
// updates and run lifecycle events are published for lab dashboards,
// and external tooling can raise a run's interrupt signal by
// publishing to its interrupt topic.
//
//	LabFlow Core ↔ MQTT Broker ↔ Lab dashboards / external tooling
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Anonymous access is only for local development
//   - Message payloads are not encrypted beyond TLS transport
//
// # Performance Characteristics
//
//   - Connection: <1 second to local broker
//   - Publish latency: <10ms for QoS 1 to local broker
//   - Reconnect: Exponential backoff 1s-60s with jitter
//   - Message throughput: Broker-limited (typically 10K+ msg/sec)
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Subscribe to interrupt requests for every run
//	err = client.Subscribe(mqtt.Topics{}.AllRunInterrupts(), 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("Received: %s = %s", topic, payload)
//	        return nil
//	    })
//
//	// Publish a status update
//	topic := mqtt.Topics{}.RunStatus("run-42", "main")
//	client.Publish(topic, []byte("Set output voltage to 0.500 V."), 1, false)
package mqtt
