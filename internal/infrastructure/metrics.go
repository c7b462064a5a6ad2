package infrastructure

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// PipelineMetrics holds the instruments recorded by the ledger pipeline
// and the HTTP layer.
type PipelineMetrics struct {
	HTTPRequestsTotal   metric.Int64Counter
	HTTPRequestDuration metric.Float64Histogram

	RowsRead         metric.Int64Counter
	RowsDropped      metric.Int64Counter
	RecordsProduced  metric.Int64Counter
	AnalysesTotal    metric.Int64Counter
	AnalysisDuration metric.Float64Histogram
	CacheHits        metric.Int64Counter
	CacheMisses      metric.Int64Counter
}

// NewPipelineMetrics creates the instruments on meter.
func NewPipelineMetrics(meter metric.Meter) (*PipelineMetrics, error) {
	var (
		m   PipelineMetrics
		err error
	)

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&m.HTTPRequestsTotal, "http_requests_total", "Total number of HTTP requests"},
		{&m.RowsRead, "ledger_rows_read_total", "Ledger rows read from uploaded sources"},
		{&m.RowsDropped, "ledger_rows_dropped_total", "Ledger rows dropped because a field could not be coerced"},
		{&m.RecordsProduced, "ledger_records_total", "Normalized trade records produced"},
		{&m.AnalysesTotal, "ledger_analyses_total", "Ledger analyses by outcome"},
		{&m.CacheHits, "ledger_cache_hits_total", "Analyses served from the result cache"},
		{&m.CacheMisses, "ledger_cache_misses_total", "Analyses computed because the cache had no entry"},
	}
	for _, c := range counters {
		*c.dst, err = meter.Int64Counter(c.name, metric.WithDescription(c.desc))
		if err != nil {
			return nil, err
		}
	}

	m.HTTPRequestDuration, err = meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.AnalysisDuration, err = meter.Float64Histogram(
		"ledger_analysis_duration_seconds",
		metric.WithDescription("Time to read, normalize and summarize a batch of ledgers"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &m, nil
}

// RecordHTTPRequest records one served request
func (m *PipelineMetrics) RecordHTTPRequest(ctx context.Context, method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("http.method", method),
		attribute.String("http.route", route),
		attribute.Int("http.status_code", status),
	)
	m.HTTPRequestsTotal.Add(ctx, 1, attrs)
	m.HTTPRequestDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordNormalization records row counts for one normalization pass
func (m *PipelineMetrics) RecordNormalization(ctx context.Context, rowsRead, dropped, records int) {
	if m == nil {
		return
	}
	m.RowsRead.Add(ctx, int64(rowsRead))
	m.RowsDropped.Add(ctx, int64(dropped))
	m.RecordsProduced.Add(ctx, int64(records))
}

// RecordAnalysis records the outcome and latency of one analysis
func (m *PipelineMetrics) RecordAnalysis(ctx context.Context, duration time.Duration, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	attrs := metric.WithAttributes(attribute.String("status", status))
	m.AnalysesTotal.Add(ctx, 1, attrs)
	m.AnalysisDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordCacheLookup counts a cache hit or miss
func (m *PipelineMetrics) RecordCacheLookup(ctx context.Context, hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheHits.Add(ctx, 1)
		return
	}
	m.CacheMisses.Add(ctx, 1)
}
