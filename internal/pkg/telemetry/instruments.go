package telemetry

import (
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Int64Counter creates a counter on the given meter. Instrument creation only
// fails on invalid names or a misbehaving provider; in that case a no-op
// counter is returned so callers never have to nil-check their instruments.
func Int64Counter(meter metric.Meter, name, description string) metric.Int64Counter {
	counter, err := meter.Int64Counter(name, metric.WithDescription(description))
	if err != nil || counter == nil {
		return noop.Int64Counter{}
	}

	return counter
}
