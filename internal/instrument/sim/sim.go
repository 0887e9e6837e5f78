// Package sim provides simulated instruments for development and
// testing. Each simulator satisfies instrument.Instrument, so a run
// definition exercised against the bench works unchanged against the
// simulators.
package sim

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/nerrad567/labflow-core/internal/instrument"
)

// Source is a simulated programmable voltage source. Set values are
// read back exactly; a meter observing the source sees them through
// its own noise model.
type Source struct {
	*instrument.OperationSet

	mu      sync.Mutex
	voltage float64
}

// NewSource creates a simulated source with output at 0 V.
func NewSource(name string) *Source {
	s := &Source{}
	s.OperationSet = instrument.NewOperationSet(name,
		instrument.Operation{
			Spec: instrument.OperationSpec{
				Name:        "set voltage",
				Description: "Set the output voltage",
				Inputs: []instrument.ParameterSpec{
					{
						Name:        "voltage",
						Description: "Output voltage (V)",
						Format:      "%.6e",
						Default:     0.0,
						Ranges:      []instrument.Range{{Start: 0, Stop: 1, Step: 0.1}},
					},
				},
				Template: "Set output voltage to $(voltage) V.",
			},
			ArgNames: []string{"voltage"},
			Run: func(ctx context.Context, args map[string]any) ([]any, error) {
				s.mu.Lock()
				s.voltage = args["voltage"].(float64)
				s.mu.Unlock()
				return nil, nil
			},
		},
		instrument.Operation{
			Spec: instrument.OperationSpec{
				Name:        "read voltage",
				Description: "Read back the output voltage",
				Outputs: []instrument.ParameterSpec{
					{Name: "voltage", Description: "Output voltage (V)", Format: "%.6e"},
				},
				Template: "Read the output voltage.",
			},
			Run: func(ctx context.Context, args map[string]any) ([]any, error) {
				s.mu.Lock()
				v := s.voltage
				s.mu.Unlock()
				return []any{v}, nil
			},
		},
	)
	return s
}

// Voltage returns the current output voltage.
func (s *Source) Voltage() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.voltage
}

// Meter is a simulated voltmeter sampling an arbitrary signal with
// additive gaussian noise.
type Meter struct {
	*instrument.OperationSet

	signal func() float64
	noise  float64
	rng    *rand.Rand
	mu     sync.Mutex
}

// NewMeter creates a simulated meter reading the given signal. The
// noise argument is the standard deviation added to each sample; zero
// gives a noiseless meter.
func NewMeter(name string, signal func() float64, noise float64) *Meter {
	m := &Meter{
		signal: signal,
		noise:  noise,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	m.OperationSet = instrument.NewOperationSet(name,
		instrument.Operation{
			Spec: instrument.OperationSpec{
				Name:        "read value",
				Description: "Take one reading",
				Outputs: []instrument.ParameterSpec{
					{Name: "value", Description: "Measured value", Format: "%.6e"},
				},
				Template: "Take one reading.",
			},
			Run: func(ctx context.Context, args map[string]any) ([]any, error) {
				m.mu.Lock()
				v := m.signal()
				if m.noise > 0 {
					v += m.rng.NormFloat64() * m.noise
				}
				m.mu.Unlock()
				return []any{v}, nil
			},
		},
	)
	return m
}

// Cryostat simulates a temperature stage with first-order settling:
// after a setpoint change the temperature approaches the target
// exponentially with the configured time constant.
type Cryostat struct {
	*instrument.OperationSet

	mu       sync.Mutex
	setpoint float64
	origin   float64   // temperature when the setpoint last changed
	changed  time.Time // when the setpoint last changed
	tau      time.Duration

	now func() time.Time
}

// NewCryostat creates a simulated cryostat at the initial temperature
// with the given settling time constant.
func NewCryostat(name string, initial float64, tau time.Duration) *Cryostat {
	c := &Cryostat{
		setpoint: initial,
		origin:   initial,
		tau:      tau,
		now:      time.Now,
	}
	c.changed = c.now()
	c.OperationSet = instrument.NewOperationSet(name,
		instrument.Operation{
			Spec: instrument.OperationSpec{
				Name:        "set temperature",
				Description: "Set the stage temperature setpoint",
				Inputs: []instrument.ParameterSpec{
					{
						Name:        "temperature",
						Description: "Target temperature (K)",
						Format:      "%.4f",
						Default:     4.2,
						Ranges:      []instrument.Range{{Start: 4.2, Stop: 300, Step: 10}},
					},
				},
				Template: "Set stage temperature to $(temperature) K.",
			},
			ArgNames: []string{"temperature"},
			Run: func(ctx context.Context, args map[string]any) ([]any, error) {
				c.mu.Lock()
				c.origin = c.temperatureLocked()
				c.setpoint = args["temperature"].(float64)
				c.changed = c.now()
				c.mu.Unlock()
				return nil, nil
			},
		},
		instrument.Operation{
			Spec: instrument.OperationSpec{
				Name:        "read temperature",
				Description: "Read the stage temperature",
				Outputs: []instrument.ParameterSpec{
					{Name: "temperature", Description: "Stage temperature (K)", Format: "%.4f"},
				},
				Template: "Read the stage temperature.",
			},
			Run: func(ctx context.Context, args map[string]any) ([]any, error) {
				c.mu.Lock()
				v := c.temperatureLocked()
				c.mu.Unlock()
				return []any{v}, nil
			},
		},
	)
	return c
}

// temperatureLocked computes the instantaneous temperature. Callers
// must hold c.mu.
func (c *Cryostat) temperatureLocked() float64 {
	if c.tau <= 0 {
		return c.setpoint
	}
	dt := c.now().Sub(c.changed).Seconds()
	return c.setpoint + (c.origin-c.setpoint)*math.Exp(-dt/c.tau.Seconds())
}

// Temperature returns the instantaneous stage temperature.
func (c *Cryostat) Temperature() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.temperatureLocked()
}
