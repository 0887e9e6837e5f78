package main

import (
	"fmt"
	"time"

	"github.com/nerrad567/labflow-core/internal/databin"
	"github.com/nerrad567/labflow-core/internal/instrument"
	"github.com/nerrad567/labflow-core/internal/instrument/sim"
	"github.com/nerrad567/labflow-core/internal/sequence"
)

// Simulated bench parameters. The meter observes the source through a
// nominal 1 kOhm sample, so a 0-1 V sweep reads back 0-1 mA.
const (
	sampleResistance = 1000.0 // Ohm
	meterNoise       = 1e-7   // A, standard deviation per reading
	cryostatInitial  = 295.0  // K, room temperature at startup
	cryostatTau      = 5 * time.Second
)

// buildBench assembles the simulated instrument bench. The same
// registry shape works against real hardware drivers; the simulators
// exist so the binary runs end to end with nothing attached.
func buildBench() (*instrument.Registry, error) {
	source := sim.NewSource("source")
	meter := sim.NewMeter("meter", func() float64 {
		return source.Voltage() / sampleResistance
	}, meterNoise)
	cryostat := sim.NewCryostat("cryostat", cryostatInitial, cryostatTau)

	registry := instrument.NewRegistry()
	for _, inst := range []instrument.Instrument{source, meter, cryostat} {
		if err := registry.Register(inst); err != nil {
			return nil, fmt.Errorf("registering %s: %w", inst.Name(), err)
		}
	}
	return registry, nil
}

// premadeSequences is the catalogue exposed over the API. Each entry
// exercises the bench built by buildBench.
func premadeSequences() []sequence.Sequence {
	return []sequence.Sequence{
		ivSweep(),
		cooldown(),
		stageSoak(),
		holdBias(),
		monitoredSweep(),
	}
}

// ivSweep steps the source through a voltage range, waiting after each
// setpoint for the meter reading to settle before moving on.
func ivSweep() sequence.Sequence {
	return sequence.Sequence{
		Name:        "iv sweep",
		Description: "Sweep bias 0-1 V and record the settled current at each point.",
		Constants:   map[string]string{"sample": "DUT-1"},
		Root: sequence.NodeSpec{
			Kind:      sequence.KindScan,
			Name:      "sweep bias",
			ScanInput: "voltage",
			Ranges:    []instrument.Range{{Start: 0, Stop: 1, Step: 0.1}},
			Gate: &sequence.GateSpec{
				Detector: sequence.DetectorSpec{
					Kind:       sequence.DetectBufferedTimer,
					BufferSize: 5,
					Stability:  1e-5,
					Timeout:    30 * time.Second,
				},
				Source: sequence.SourceSpec{
					Instrument: "meter",
					Operation:  "read value",
					Output:     0,
				},
			},
			Children: []sequence.NodeSpec{{
				Kind:       sequence.KindAction,
				Name:       "set bias",
				Instrument: "source",
				Operation:  "set voltage",
				Monitor:    "sweep",
			}},
		},
	}
}

// cooldown walks the cryostat down in stages, holding at each stage
// until the temperature sits within tolerance of the setpoint.
func cooldown() sequence.Sequence {
	return sequence.Sequence{
		Name:        "cooldown",
		Description: "Step the stage from ambient to 77 K, settling at each stage.",
		Root: sequence.NodeSpec{
			Kind:      sequence.KindScan,
			Name:      "cool stage",
			ScanInput: "temperature",
			Ranges: []instrument.Range{
				{Start: 295, Stop: 150, Step: -50},
				{Start: 120, Stop: 77, Step: -20},
			},
			Gate: &sequence.GateSpec{
				Detector: sequence.DetectorSpec{
					Kind:       sequence.DetectSetpoint,
					BufferSize: 10,
					Tolerance:  0.5,
					Timeout:    5 * time.Minute,
				},
				Source: sequence.SourceSpec{
					Instrument: "cryostat",
					Operation:  "read temperature",
					Output:     0,
				},
				Interval: time.Second,
			},
			Children: []sequence.NodeSpec{{
				Kind:       sequence.KindAction,
				Name:       "set stage",
				Instrument: "cryostat",
				Operation:  "set temperature",
				Monitor:    "cooldown",
			}},
		},
	}
}

// stageSoak logs the stage temperature for a fixed window, typically
// run after cooldown to confirm the stage is holding.
func stageSoak() sequence.Sequence {
	return sequence.Sequence{
		Name:        "stage soak",
		Description: "Log the stage temperature once a second for ten minutes.",
		Root: sequence.NodeSpec{
			Kind:     sequence.KindLoopDuration,
			Name:     "soak",
			Duration: 10 * time.Minute,
			Children: []sequence.NodeSpec{{
				Kind:       sequence.KindAction,
				Name:       "log stage",
				Instrument: "cryostat",
				Operation:  "read temperature",
				Outputs:    []databin.Ref{{Kind: databin.KindColumn, Name: "T_stage"}},
				Monitor:    "soak",
			}},
		},
	}
}

// holdBias keeps sampling the meter until an interrupt arrives over
// the API or MQTT.
func holdBias() sequence.Sequence {
	return sequence.Sequence{
		Name:        "hold bias",
		Description: "Monitor the current indefinitely; interrupt to stop.",
		Root: sequence.NodeSpec{
			Kind: sequence.KindLoopSignal,
			Name: "hold",
			Children: []sequence.NodeSpec{{
				Kind:       sequence.KindAction,
				Name:       "monitor current",
				Instrument: "meter",
				Operation:  "read value",
				Outputs:    []databin.Ref{{Kind: databin.KindColumn, Name: "I_monitor"}},
				Monitor:    "hold",
			}},
		},
	}
}

// monitoredSweep runs the bias sweep while a second branch logs the
// stage temperature, one branch per instrument group.
func monitoredSweep() sequence.Sequence {
	return sequence.Sequence{
		Name:        "monitored sweep",
		Description: "Bias sweep with concurrent stage-temperature logging.",
		Root: sequence.NodeSpec{
			Kind: sequence.KindConcurrent,
			Name: "sweep and monitor",
			Children: []sequence.NodeSpec{
				{
					Kind:      sequence.KindScan,
					Name:      "sweep bias",
					ScanInput: "voltage",
					Ranges:    []instrument.Range{{Start: 0, Stop: 1, Step: 0.2}},
					Children: []sequence.NodeSpec{{
						Kind:       sequence.KindAction,
						Name:       "set bias",
						Instrument: "source",
						Operation:  "set voltage",
						Monitor:    "sweep",
					}},
				},
				{
					Kind:  sequence.KindLoopCount,
					Name:  "log stage",
					Count: 30,
					Children: []sequence.NodeSpec{{
						Kind:       sequence.KindAction,
						Name:       "read stage",
						Instrument: "cryostat",
						Operation:  "read temperature",
						Outputs:    []databin.Ref{{Kind: databin.KindColumn, Name: "T_stage"}},
						Monitor:    "stage",
					}},
				},
			},
		},
	}
}
