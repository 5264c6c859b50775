package telemetry

import (
	"context"
	"testing"
)

func TestNewGauge(t *testing.T) {
	g, err := NewGauge(MetricOpts{
		Name:        "test_backlog",
		Description: "test gauge",
		Unit:        "1",
	})
	if err != nil {
		t.Fatalf("NewGauge() error = %v", err)
	}

	// Recording against the default provider is a no-op, not a panic
	g.Record(context.Background(), 42)
	g.Record(context.Background(), 0)
}

func TestGauge_NilSafe(t *testing.T) {
	var g *Gauge
	g.Record(context.Background(), 7)
}

func TestCounter_NilSafe(t *testing.T) {
	var c *Counter
	c.Inc(context.Background())
	c.Add(context.Background(), 3)
}
