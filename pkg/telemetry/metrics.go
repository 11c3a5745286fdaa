// SPDX-License-Identifier: Apache-2.0
package telemetry

import (
	"context"
	stderrors "errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/jllopis/relay/pkg/errors"
)

// PipelineMetrics counts stage invocations, failures, fallbacks and session
// outcomes. A nil *PipelineMetrics is valid and records nothing.
type PipelineMetrics struct {
	invocations metric.Int64Counter
	failures    metric.Int64Counter
	fallbacks   metric.Int64Counter
	retries     metric.Int64Counter
	completed   metric.Int64Counter
	failed      metric.Int64Counter
}

// NewPipelineMetrics creates the counters on the global meter provider.
func NewPipelineMetrics() (*PipelineMetrics, error) {
	return NewPipelineMetricsWithMeter(otel.Meter("relay/pipeline"))
}

// NewPipelineMetricsWithMeter creates the counters on the given meter.
func NewPipelineMetricsWithMeter(meter metric.Meter) (*PipelineMetrics, error) {
	var (
		m   PipelineMetrics
		err error
	)
	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&m.invocations, "relay.stage.invocations", "Agent invocations by stage"},
		{&m.failures, "relay.stage.failures", "Failed agent results by stage and error code"},
		{&m.fallbacks, "relay.stage.fallbacks", "Stage results served from mock data"},
		{&m.retries, "relay.stage.retries", "Stage retries issued by the coordinator"},
		{&m.completed, "relay.sessions.completed", "Sessions that reached COMPLETE"},
		{&m.failed, "relay.sessions.failed", "Sessions that ended FAILED"},
	}
	for _, c := range counters {
		*c.dst, err = meter.Int64Counter(c.name, metric.WithDescription(c.desc))
		if err != nil {
			return nil, err
		}
	}
	return &m, nil
}

// RecordInvocation counts one agent invocation.
func (m *PipelineMetrics) RecordInvocation(ctx context.Context, domain, stage string) {
	if m == nil {
		return
	}
	m.invocations.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrSessionDomain, domain),
		attribute.String(AttrStageName, stage),
	))
}

// RecordFailure counts a failed stage result, labelled with its error code.
func (m *PipelineMetrics) RecordFailure(ctx context.Context, domain, stage string, err error) {
	if m == nil {
		return
	}
	code := "UNKNOWN"
	var re *errors.RelayError
	if stderrors.As(err, &re) {
		code = string(re.Code)
	}
	m.failures.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrSessionDomain, domain),
		attribute.String(AttrStageName, stage),
		attribute.String("error.code", code),
	))
}

// RecordFallback counts a stage served from mock data.
func (m *PipelineMetrics) RecordFallback(ctx context.Context, domain, stage string) {
	if m == nil {
		return
	}
	m.fallbacks.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrSessionDomain, domain),
		attribute.String(AttrStageName, stage),
	))
}

// RecordRetry counts a coordinator retry.
func (m *PipelineMetrics) RecordRetry(ctx context.Context, domain, stage string) {
	if m == nil {
		return
	}
	m.retries.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrSessionDomain, domain),
		attribute.String(AttrStageName, stage),
	))
}

// RecordSession counts a finished session by its final status.
func (m *PipelineMetrics) RecordSession(ctx context.Context, domain string, complete bool) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String(AttrSessionDomain, domain))
	if complete {
		m.completed.Add(ctx, 1, attrs)
		return
	}
	m.failed.Add(ctx, 1, attrs)
}
