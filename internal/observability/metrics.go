// Package observability holds the OpenTelemetry instruments recorded by
// the resolver.
package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "comfydeps"

// Metrics records resolution counters. The zero value and a nil *Metrics
// record nothing.
type Metrics struct {
	resolutions     metric.Int64Counter
	registryFetches metric.Int64Counter
	liveLookups     metric.Int64Counter
	conflicts       metric.Int64Counter
	missingNodes    metric.Int64Counter
	duration        metric.Float64Histogram
}

// NewMetrics creates the instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	return NewMetricsWithMeter(otel.Meter(meterName))
}

// NewMetricsWithMeter creates the instruments on meter.
func NewMetricsWithMeter(meter metric.Meter) (*Metrics, error) {
	var (
		m   Metrics
		err error
	)
	if m.resolutions, err = meter.Int64Counter("comfydeps.resolutions",
		metric.WithDescription("Workflow resolutions by format and outcome")); err != nil {
		return nil, err
	}
	if m.registryFetches, err = meter.Int64Counter("comfydeps.registry.fetches",
		metric.WithDescription("Registry document fetches by document and outcome")); err != nil {
		return nil, err
	}
	if m.liveLookups, err = meter.Int64Counter("comfydeps.revision.live_lookups",
		metric.WithDescription("Live revision lookups by outcome")); err != nil {
		return nil, err
	}
	if m.conflicts, err = meter.Int64Counter("comfydeps.nodes.conflicts",
		metric.WithDescription("Node types claimed by more than one package")); err != nil {
		return nil, err
	}
	if m.missingNodes, err = meter.Int64Counter("comfydeps.nodes.missing",
		metric.WithDescription("Node types no package provides")); err != nil {
		return nil, err
	}
	if m.duration, err = meter.Float64Histogram("comfydeps.resolution.duration",
		metric.WithDescription("Resolution wall time"), metric.WithUnit("s")); err != nil {
		return nil, err
	}
	return &m, nil
}

func outcome(err error) attribute.KeyValue {
	if err != nil {
		return attribute.String("outcome", "error")
	}
	return attribute.String("outcome", "ok")
}

// RecordResolution counts one resolution run.
func (m *Metrics) RecordResolution(ctx context.Context, format string, seconds float64, err error) {
	if m == nil || m.resolutions == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("format", format), outcome(err))
	m.resolutions.Add(ctx, 1, attrs)
	m.duration.Record(ctx, seconds, attrs)
}

// RecordRegistryFetch counts one registry document fetch.
func (m *Metrics) RecordRegistryFetch(ctx context.Context, document string, err error) {
	if m == nil || m.registryFetches == nil {
		return
	}
	m.registryFetches.Add(ctx, 1, metric.WithAttributes(attribute.String("document", document), outcome(err)))
}

// RecordLiveLookup counts one live revision lookup.
func (m *Metrics) RecordLiveLookup(ctx context.Context, err error) {
	if m == nil || m.liveLookups == nil {
		return
	}
	m.liveLookups.Add(ctx, 1, metric.WithAttributes(outcome(err)))
}

// RecordNodeOutcome adds the conflict and missing-node counts of one run.
func (m *Metrics) RecordNodeOutcome(ctx context.Context, conflicts, missing int) {
	if m == nil || m.conflicts == nil {
		return
	}
	if conflicts > 0 {
		m.conflicts.Add(ctx, int64(conflicts))
	}
	if missing > 0 {
		m.missingNodes.Add(ctx, int64(missing))
	}
}
