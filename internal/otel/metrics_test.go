package otel

import (
	"context"
	"testing"
)

func TestNewMetrics_AllInstrumentsCreated(t *testing.T) {
	p, err := Init(context.Background(), Config{
		Enabled:  true,
		Exporter: "none",
	})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer p.Shutdown(context.Background())

	m, err := NewMetrics(p.Meter)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	if m.RunDuration == nil {
		t.Error("RunDuration is nil")
	}
	if m.RunsTotal == nil {
		t.Error("RunsTotal is nil")
	}
	if m.BlocksPerRun == nil {
		t.Error("BlocksPerRun is nil")
	}
	if m.CompletionCalls == nil {
		t.Error("CompletionCalls is nil")
	}
	if m.CompletionDuration == nil {
		t.Error("CompletionDuration is nil")
	}
	if m.MessagesIngested == nil {
		t.Error("MessagesIngested is nil")
	}
	if m.DigestRuns == nil {
		t.Error("DigestRuns is nil")
	}
}

func TestNewMetrics_NoopMeter(t *testing.T) {
	// Disabled OTel returns noop meter — metrics should still create without error.
	p, err := Init(context.Background(), Config{Enabled: false})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer p.Shutdown(context.Background())

	m, err := NewMetrics(p.Meter)
	if err != nil {
		t.Fatalf("NewMetrics with noop: %v", err)
	}
	if m == nil {
		t.Fatal("expected non-nil Metrics")
	}
}
