package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/jllopis/relay/pkg/errors"
)

func TestSetupNone(t *testing.T) {
	shutdown, err := Setup(context.Background(), Config{ServiceName: "relay-test", Version: "v0.0.1", Exporter: "none"})
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown failed: %v", err)
	}
}

func TestSetupUnknownExporter(t *testing.T) {
	if _, err := Setup(context.Background(), Config{ServiceName: "relay-test", Exporter: "carrier-pigeon"}); err == nil {
		t.Fatal("expected error for unknown exporter")
	}
}

func TestSetupOTLPRequiresEndpoint(t *testing.T) {
	if _, err := Setup(context.Background(), Config{ServiceName: "relay-test", Exporter: "otlp"}); err == nil {
		t.Fatal("expected error without otlp endpoint")
	}
}

func TestResourceDescribesDeployment(t *testing.T) {
	res, err := newResource(context.Background(), Config{
		ServiceName: "relay",
		Version:     "v1.2.3",
		Domains:     []string{"travel", "game"},
	})
	if err != nil {
		t.Fatalf("newResource failed: %v", err)
	}
	got := map[string]string{}
	for _, kv := range res.Attributes() {
		got[string(kv.Key)] = kv.Value.Emit()
	}
	if got["service.name"] != "relay" || got["service.version"] != "v1.2.3" {
		t.Errorf("unexpected service attributes: %v", got)
	}
	if got[AttrDomains] != `["travel","game"]` {
		t.Errorf("expected domains attribute, got %q", got[AttrDomains])
	}
}

func TestConfigureSlogAddsTraceIDs(t *testing.T) {
	var buf bytes.Buffer
	logger := ConfigureSlog(&buf, "debug", "json")

	tp := sdktrace.NewTracerProvider()
	defer tp.Shutdown(context.Background())
	ctx, span := tp.Tracer("test").Start(context.Background(), "stage")
	logger.InfoContext(ctx, "stage finished", "stage", "booking")
	span.End()

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("invalid json log line %q: %v", buf.String(), err)
	}
	if rec["stage"] != "booking" {
		t.Fatalf("missing stage attr: %v", rec)
	}
	if rec["trace_id"] == nil || rec["span_id"] == nil {
		t.Fatalf("expected trace ids in %v", rec)
	}
}

func TestParseLogLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := ConfigureSlog(&buf, "warn", "text")
	logger.Info("hidden")
	logger.Warn("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Fatalf("unexpected output %q", buf.String())
	}
}

func TestConfigureSlogVar(t *testing.T) {
	var buf bytes.Buffer
	var level slog.LevelVar
	SetLevel(&level, "error")
	logger := ConfigureSlogVar(&buf, &level, "text")
	logger.Warn("before")

	SetLevel(&level, "debug")
	logger.Debug("after")
	if strings.Contains(buf.String(), "before") || !strings.Contains(buf.String(), "after") {
		t.Fatalf("unexpected output %q", buf.String())
	}
}

func TestPipelineMetrics(t *testing.T) {
	reader := metric.NewManualReader()
	mp := metric.NewMeterProvider(metric.WithReader(reader))
	defer mp.Shutdown(context.Background())

	m, err := NewPipelineMetricsWithMeter(mp.Meter("test"))
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	ctx := context.Background()
	m.RecordInvocation(ctx, "travel", "destination")
	m.RecordInvocation(ctx, "travel", "booking")
	m.RecordFailure(ctx, "travel", "booking", errors.New(errors.CodeQuota, "quota", nil))
	m.RecordFallback(ctx, "travel", "booking")
	m.RecordSession(ctx, "travel", true)

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	totals := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			if sum, ok := md.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range sum.DataPoints {
					totals[md.Name] += dp.Value
				}
			}
		}
	}
	if totals["relay.stage.invocations"] != 2 {
		t.Fatalf("expected 2 invocations, got %v", totals)
	}
	if totals["relay.stage.failures"] != 1 || totals["relay.stage.fallbacks"] != 1 {
		t.Fatalf("unexpected failure/fallback counts %v", totals)
	}
	if totals["relay.sessions.completed"] != 1 {
		t.Fatalf("expected one completed session, got %v", totals)
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *PipelineMetrics
	m.RecordInvocation(context.Background(), "game", "narrator")
	m.RecordSession(context.Background(), "game", false)
}
