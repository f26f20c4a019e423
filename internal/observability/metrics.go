package observability

import (
	"context"
	"fmt"
	"sort"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/upb/fleet-gateway/services/fallback"
)

const (
	meterName = "github.com/upb/fleet-gateway"

	// UpstreamResultsMetric counts upstream invocations by key and source.
	UpstreamResultsMetric = "fleet_gateway_upstream_results"
)

// MetricsProvider owns the meter provider. When disabled, instruments come
// from the global (no-op) provider and Collect reports nothing.
type MetricsProvider struct {
	meterProvider *sdkmetric.MeterProvider
	reader        *sdkmetric.ManualReader
}

// NewMetricsProvider creates a metrics provider backed by an in-process reader.
func NewMetricsProvider(enabled bool) *MetricsProvider {
	if !enabled {
		return &MetricsProvider{}
	}
	reader := sdkmetric.NewManualReader()
	return &MetricsProvider{
		meterProvider: sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)),
		reader:        reader,
	}
}

// Enabled reports whether metrics are being recorded.
func (p *MetricsProvider) Enabled() bool {
	return p != nil && p.meterProvider != nil
}

// Meter returns a meter with the given name.
func (p *MetricsProvider) Meter(name string, opts ...metric.MeterOption) metric.Meter {
	if !p.Enabled() {
		return otel.Meter(name, opts...)
	}
	return p.meterProvider.Meter(name, opts...)
}

// Shutdown flushes and stops the meter provider.
func (p *MetricsProvider) Shutdown(ctx context.Context) error {
	if !p.Enabled() {
		return nil
	}
	if err := p.meterProvider.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown meter: %w", err)
	}
	return nil
}

// UpstreamCount is one collected data point of UpstreamResultsMetric.
type UpstreamCount struct {
	Key    string `json:"key"`
	Source string `json:"source"`
	Count  int64  `json:"count"`
}

// Collect reads the current upstream result counters, ordered by key and source.
func (p *MetricsProvider) Collect(ctx context.Context) ([]UpstreamCount, error) {
	if !p.Enabled() {
		return nil, nil
	}

	var rm metricdata.ResourceMetrics
	if err := p.reader.Collect(ctx, &rm); err != nil {
		return nil, fmt.Errorf("collect metrics: %w", err)
	}

	var counts []UpstreamCount
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != UpstreamResultsMetric {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				key, _ := dp.Attributes.Value(attrKey)
				source, _ := dp.Attributes.Value(attrSource)
				counts = append(counts, UpstreamCount{
					Key:    key.AsString(),
					Source: source.AsString(),
					Count:  dp.Value,
				})
			}
		}
	}

	sort.Slice(counts, func(i, j int) bool {
		if counts[i].Key != counts[j].Key {
			return counts[i].Key < counts[j].Key
		}
		return counts[i].Source < counts[j].Source
	})
	return counts, nil
}

const (
	attrKey    = attribute.Key("key")
	attrSource = attribute.Key("source")
)

// UpstreamMetrics records how fallback invocations settle.
type UpstreamMetrics struct {
	results metric.Int64Counter
}

// NewUpstreamMetrics registers the upstream instruments on p's meter.
func NewUpstreamMetrics(p *MetricsProvider) (*UpstreamMetrics, error) {
	meter := p.Meter(meterName)
	results, err := meter.Int64Counter(UpstreamResultsMetric,
		metric.WithDescription("Upstream fleet calls by logical key and where the data came from"),
		metric.WithUnit("{call}"))
	if err != nil {
		return nil, fmt.Errorf("create %s counter: %w", UpstreamResultsMetric, err)
	}
	return &UpstreamMetrics{results: results}, nil
}

// Observer returns a fallback observer that increments the result counter.
func (m *UpstreamMetrics) Observer() fallback.Observer {
	return func(ctx context.Context, key string, outcome fallback.Outcome, _ error) {
		m.results.Add(ctx, 1, metric.WithAttributes(
			attrKey.String(key),
			attrSource.String(string(outcome)),
		))
	}
}
