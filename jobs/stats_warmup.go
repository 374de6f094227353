package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/stockroom/internal/jobs"
	"github.com/odyssey-erp/stockroom/internal/stock"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// StatisticsWarmer recomputes and caches collection statistics.
type StatisticsWarmer interface {
	WarmStatistics(ctx context.Context) (stock.Statistics, error)
}

// StatisticsWarmupJob keeps the statistics cache filled so list calls rarely
// pay for the aggregate query.
type StatisticsWarmupJob struct {
	Stocks  StatisticsWarmer
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	Timeout time.Duration
}

// NewStatisticsWarmupJob wires dependencies for the warmup handler.
func NewStatisticsWarmupJob(stocks StatisticsWarmer, logger *slog.Logger, metrics *jobmetrics.Metrics) *StatisticsWarmupJob {
	return &StatisticsWarmupJob{Stocks: stocks, Logger: logger, Metrics: metrics, Timeout: 30 * time.Second}
}

// Handle processes TaskStatisticsWarmup tasks.
func (j *StatisticsWarmupJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Stocks == nil {
		return errors.New("statistics warmup: handler not configured")
	}
	var payload StatisticsWarmupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskStatisticsWarmup)
	defer func() {
		err = tracker.End(err)
	}()

	logger := j.logger().With(slog.String("reason", payload.Reason))
	started := time.Now()

	runCtx := ctx
	if j.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, j.Timeout)
		defer cancel()
	}
	stats, err := j.Stocks.WarmStatistics(runCtx)
	if err != nil {
		logger.Error("statistics warmup failed", slog.Any("error", err))
		return err
	}
	j.metrics().SetInventory(jobmetrics.InventorySnapshot{
		TotalItems:      stats.TotalItems,
		TotalValue:      stats.TotalValue,
		LowStockItems:   stats.LowStockItems,
		OutOfStockItems: stats.OutOfStockItems,
	})
	logger.Info("statistics warmed",
		slog.Int("total_items", stats.TotalItems),
		slog.Int("low_stock", stats.LowStockItems),
		slog.Duration("duration", time.Since(started)))
	return nil
}

func (j *StatisticsWarmupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskStatisticsWarmup))
	}
	return slog.Default().With(slog.String("job", TaskStatisticsWarmup))
}

func (j *StatisticsWarmupJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
