package board

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "boardsync/board"

type loadMetrics struct {
	logger        *log.Logger
	start         time.Time
	span          trace.Span
	boardDuration time.Duration
	tasksDuration time.Duration
	tasksLoaded   int
	errorStage    string
}

func newLoadMetrics(ctx context.Context, logger *log.Logger, boardID string) (*loadMetrics, context.Context) {
	spanCtx, span := otel.Tracer(tracerName).Start(ctx, "board.load",
		trace.WithAttributes(attribute.String("board.id", boardID)))
	return &loadMetrics{logger: logger, start: time.Now(), span: span}, spanCtx
}

func (m *loadMetrics) ObserveBoardFetch(d time.Duration) {
	if d > 0 {
		m.boardDuration = d
	}
}

func (m *loadMetrics) ObserveTaskFetch(d time.Duration) {
	if d > 0 {
		m.tasksDuration = d
	}
}

func (m *loadMetrics) SetTasksLoaded(n int) {
	if n > 0 {
		m.tasksLoaded = n
	}
}

func (m *loadMetrics) SetErrorStage(stage string) {
	if m.errorStage == "" {
		m.errorStage = stage
	}
}

func (m *loadMetrics) Done(err error) {
	if m == nil {
		return
	}
	if m.span != nil {
		if err != nil {
			m.span.RecordError(err)
			m.span.SetStatus(codes.Error, err.Error())
		}
		m.span.SetAttributes(attribute.Int("board.tasks", m.tasksLoaded))
		m.span.End()
	}
	if m.logger == nil {
		return
	}
	fields := log.Fields{
		"op":       "board.load",
		"total_ms": durationToMillis(time.Since(m.start)),
		"tasks":    m.tasksLoaded,
	}
	if m.boardDuration > 0 {
		fields["board_fetch_ms"] = durationToMillis(m.boardDuration)
	}
	if m.tasksDuration > 0 {
		fields["task_fetch_ms"] = durationToMillis(m.tasksDuration)
	}
	if m.errorStage != "" {
		fields["error_stage"] = m.errorStage
	}
	if err != nil {
		fields["error"] = err.Error()
		m.logger.WithFields(fields).Warn("board.load.metrics")
		return
	}
	m.logger.WithFields(fields).Info("board.load.metrics")
}

type commitMetrics struct {
	logger      *log.Logger
	start       time.Time
	span        trace.Span
	batchSize   int
	crossColumn bool
}

func newCommitMetrics(ctx context.Context, logger *log.Logger, c Commit) (*commitMetrics, context.Context) {
	spanCtx, span := otel.Tracer(tracerName).Start(ctx, "board.reorder",
		trace.WithAttributes(
			attribute.String("task.id", c.TaskID),
			attribute.Int("batch.size", len(c.Batch)),
			attribute.Bool("cross_column", c.CrossColumn()),
		))
	return &commitMetrics{
		logger:      logger,
		start:       time.Now(),
		span:        span,
		batchSize:   len(c.Batch),
		crossColumn: c.CrossColumn(),
	}, spanCtx
}

func (m *commitMetrics) Done(err error) {
	if m == nil {
		return
	}
	if m.span != nil {
		if err != nil {
			m.span.RecordError(err)
			m.span.SetStatus(codes.Error, err.Error())
		}
		m.span.End()
	}
	if m.logger == nil {
		return
	}
	fields := log.Fields{
		"op":           "board.reorder",
		"total_ms":     durationToMillis(time.Since(m.start)),
		"batch_size":   m.batchSize,
		"cross_column": m.crossColumn,
	}
	if err != nil {
		fields["error"] = err.Error()
		m.logger.WithFields(fields).Warn("board.reorder.metrics")
		return
	}
	m.logger.WithFields(fields).Info("board.reorder.metrics")
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
