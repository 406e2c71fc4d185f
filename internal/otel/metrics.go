package otel

import "go.opentelemetry.io/otel/metric"

// Metrics holds all summarizer metric instruments.
type Metrics struct {
	RunDuration        metric.Float64Histogram
	RunsTotal          metric.Int64Counter
	BlocksPerRun       metric.Int64Histogram
	CompletionCalls    metric.Int64Counter
	CompletionDuration metric.Float64Histogram
	MessagesIngested   metric.Int64Counter
	DigestRuns         metric.Int64Counter
}

// NewMetrics creates all metric instruments from the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.RunDuration, err = meter.Float64Histogram("summarizer.run.duration",
		metric.WithDescription("End-to-end summarization run duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.RunsTotal, err = meter.Int64Counter("summarizer.runs",
		metric.WithDescription("Summarization runs by outcome"),
	)
	if err != nil {
		return nil, err
	}

	m.BlocksPerRun, err = meter.Int64Histogram("summarizer.run.blocks",
		metric.WithDescription("Completion blocks per summarization run"),
	)
	if err != nil {
		return nil, err
	}

	m.CompletionCalls, err = meter.Int64Counter("summarizer.llm.calls",
		metric.WithDescription("Completion-service calls by stage"),
	)
	if err != nil {
		return nil, err
	}

	m.CompletionDuration, err = meter.Float64Histogram("summarizer.llm.duration",
		metric.WithDescription("Completion-service call duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.MessagesIngested, err = meter.Int64Counter("summarizer.messages.ingested",
		metric.WithDescription("Chat messages appended to conversation buffers"),
	)
	if err != nil {
		return nil, err
	}

	m.DigestRuns, err = meter.Int64Counter("summarizer.digest.runs",
		metric.WithDescription("Scheduled digest deliveries by outcome"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}
