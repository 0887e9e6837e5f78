package sim

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/nerrad567/labflow-core/internal/instrument"
)

func TestSourceSetAndRead(t *testing.T) {
	src := NewSource("source")

	reg := instrument.NewRegistry()
	if err := reg.Register(src); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	ctx := context.Background()
	if _, err := reg.Invoke(ctx, "source", "set voltage", map[string]any{"voltage": 0.75}); err != nil {
		t.Fatalf("set voltage error = %v", err)
	}

	outputs, err := reg.Invoke(ctx, "source", "read voltage", nil)
	if err != nil {
		t.Fatalf("read voltage error = %v", err)
	}
	if outputs[0] != 0.75 {
		t.Fatalf("read voltage = %v, want 0.75", outputs[0])
	}
}

func TestMeterTracksSignal(t *testing.T) {
	level := 3.0
	meter := NewMeter("meter", func() float64 { return level }, 0)

	outputs, err := meter.Operations()[0].Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("read value error = %v", err)
	}
	if outputs[0] != 3.0 {
		t.Fatalf("read value = %v, want 3.0", outputs[0])
	}

	level = -1.5
	outputs, _ = meter.Operations()[0].Run(context.Background(), nil)
	if outputs[0] != -1.5 {
		t.Fatalf("read value = %v, want -1.5", outputs[0])
	}
}

func TestCryostatSettling(t *testing.T) {
	cryo := NewCryostat("cryostat", 4.2, time.Second)

	// Pin the simulator clock.
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cryo.now = func() time.Time { return now }
	cryo.changed = now

	op, ok := cryo.Operation("set temperature")
	if !ok {
		t.Fatal("set temperature not found")
	}
	if _, err := op.Run(context.Background(), map[string]any{"temperature": 10.0}); err != nil {
		t.Fatalf("set temperature error = %v", err)
	}

	// Immediately after the change the stage is still at its origin.
	if got := cryo.Temperature(); math.Abs(got-4.2) > 1e-9 {
		t.Fatalf("Temperature() = %g, want 4.2", got)
	}

	// One time constant later the gap has closed by 1 - 1/e.
	now = now.Add(time.Second)
	want := 10.0 + (4.2-10.0)*math.Exp(-1)
	if got := cryo.Temperature(); math.Abs(got-want) > 1e-9 {
		t.Fatalf("Temperature() after tau = %g, want %g", got, want)
	}

	// Long after the change the stage sits at the setpoint.
	now = now.Add(time.Minute)
	if got := cryo.Temperature(); math.Abs(got-10.0) > 1e-6 {
		t.Fatalf("settled Temperature() = %g, want 10.0", got)
	}
}
