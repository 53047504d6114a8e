package board

import (
	"context"
	"errors"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"boardsync/domain"
)

func setupTestTracer(t *testing.T) (*sdktrace.TracerProvider, *tracetest.InMemoryExporter, func()) {
	t.Helper()

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(sdktrace.NewSimpleSpanProcessor(exporter)),
	)
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)

	cleanup := func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			t.Logf("shutdown tracer provider: %v", err)
		}
		otel.SetTracerProvider(prev)
	}
	return tp, exporter, cleanup
}

func attributesToMap(attrs []attribute.KeyValue) map[string]any {
	out := make(map[string]any, len(attrs))
	for _, kv := range attrs {
		out[string(kv.Key)] = kv.Value.AsInterface()
	}
	return out
}

func TestLoadMetricsRecordsSpanAndLog(t *testing.T) {
	logger, hook := test.NewNullLogger()
	tp, exporter, restore := setupTestTracer(t)
	defer restore()

	metrics, _ := newLoadMetrics(context.Background(), logger, "b1")
	metrics.start = metrics.start.Add(-50 * time.Millisecond)
	metrics.ObserveBoardFetch(10 * time.Millisecond)
	metrics.ObserveTaskFetch(15 * time.Millisecond)
	metrics.SetTasksLoaded(4)
	metrics.Done(nil)

	if err := tp.ForceFlush(context.Background()); err != nil {
		t.Fatalf("force flush spans: %v", err)
	}

	entry := hook.LastEntry()
	if entry == nil || entry.Message != "board.load.metrics" {
		t.Fatalf("unexpected log entry: %+v", entry)
	}
	if entry.Level != log.InfoLevel {
		t.Fatalf("unexpected level: %v", entry.Level)
	}
	if entry.Data["tasks"] != 4 {
		t.Fatalf("unexpected tasks field: %#v", entry.Data["tasks"])
	}
	if total, ok := entry.Data["total_ms"].(float64); !ok || total <= 0 {
		t.Fatalf("unexpected total_ms: %#v", entry.Data["total_ms"])
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	span := spans[0]
	if span.Name != "board.load" {
		t.Fatalf("unexpected span name: %s", span.Name)
	}
	attrs := attributesToMap(span.Attributes)
	if attrs["board.id"] != "b1" {
		t.Fatalf("span board.id = %#v", attrs["board.id"])
	}
	if tasks, ok := attrs["board.tasks"].(int64); !ok || tasks != 4 {
		t.Fatalf("span board.tasks = %#v", attrs["board.tasks"])
	}
}

func TestLoadMetricsErrorSetsSpanStatus(t *testing.T) {
	logger, hook := test.NewNullLogger()
	tp, exporter, restore := setupTestTracer(t)
	defer restore()

	metrics, _ := newLoadMetrics(context.Background(), logger, "b1")
	metrics.SetErrorStage("fetch_tasks")
	metrics.Done(errors.New("connection refused"))

	if err := tp.ForceFlush(context.Background()); err != nil {
		t.Fatalf("force flush spans: %v", err)
	}

	entry := hook.LastEntry()
	if entry == nil || entry.Level != log.WarnLevel {
		t.Fatalf("expected warn entry, got %+v", entry)
	}
	if entry.Data["error_stage"] != "fetch_tasks" {
		t.Fatalf("error_stage = %#v", entry.Data["error_stage"])
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Status.Code != codes.Error {
		t.Fatalf("expected error span status, got %v", spans[0].Status.Code)
	}
}

func TestCommitMetricsRecordsBatchShape(t *testing.T) {
	logger, hook := test.NewNullLogger()
	tp, exporter, restore := setupTestTracer(t)
	defer restore()

	commit := Commit{
		TaskID: "A",
		Source: domain.ColumnTodo,
		Dest:   domain.ColumnInProgress,
		Batch: []domain.ReorderEntry{
			{ID: "A", Order: 0, Status: domain.StatusInProgress},
			{ID: "B", Order: 0, Status: domain.StatusTodo},
		},
	}
	metrics, _ := newCommitMetrics(context.Background(), logger, commit)
	metrics.Done(nil)

	if err := tp.ForceFlush(context.Background()); err != nil {
		t.Fatalf("force flush spans: %v", err)
	}

	entry := hook.LastEntry()
	if entry == nil || entry.Message != "board.reorder.metrics" {
		t.Fatalf("unexpected log entry: %+v", entry)
	}
	if entry.Data["batch_size"] != 2 || entry.Data["cross_column"] != true {
		t.Fatalf("fields = %+v", entry.Data)
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	attrs := attributesToMap(spans[0].Attributes)
	if attrs["task.id"] != "A" || attrs["cross_column"] != true {
		t.Fatalf("span attrs = %#v", attrs)
	}
}
