package queue

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/hibiken/asynq"
)

type ServerConfig struct {
	Concurrency     int
	RetryBase       time.Duration
	ShutdownTimeout time.Duration
}

// maxRetryDelay caps RetryDelay so a large retry limit cannot park a job
// for days.
const maxRetryDelay = 10 * time.Minute

func NewServer(opt asynq.RedisConnOpt, cfg ServerConfig, logger *slog.Logger) *asynq.Server {
	return asynq.NewServer(opt, asynq.Config{
		Concurrency: cfg.Concurrency,
		Queues: map[string]int{
			QueueTransfers:     6,
			QueueNotifications: 3,
		},
		RetryDelayFunc:  RetryDelay(cfg.RetryBase),
		ShutdownTimeout: cfg.ShutdownTimeout,
		Logger:          &asynqLogger{logger: logger},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, t *asynq.Task, err error) {
			retry, _ := asynq.GetRetryCount(ctx)
			maxRetry, _ := asynq.GetMaxRetry(ctx)
			taskID, _ := asynq.GetTaskID(ctx)
			logger.Warn("task failed",
				"task_id", taskID,
				"type", t.Type(),
				"retry", retry,
				"max_retry", maxRetry,
				"error", err,
			)
		}),
	})
}

// RetryDelay waits base * 2^n before the nth redelivery.
func RetryDelay(base time.Duration) asynq.RetryDelayFunc {
	return func(n int, _ error, _ *asynq.Task) time.Duration {
		d := base
		for i := 0; i < n; i++ {
			d *= 2
			if d >= maxRetryDelay {
				return maxRetryDelay
			}
		}
		return d
	}
}

func NewServeMux(transfers, notifications asynq.Handler) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.Handle(TypeTransferProcess, transfers)
	mux.Handle(TypeTransferNotify, notifications)
	return mux
}

type asynqLogger struct {
	logger *slog.Logger
}

func (l *asynqLogger) Debug(args ...any) { l.logger.Debug(fmt.Sprint(args...), "component", "asynq") }
func (l *asynqLogger) Info(args ...any)  { l.logger.Info(fmt.Sprint(args...), "component", "asynq") }
func (l *asynqLogger) Warn(args ...any)  { l.logger.Warn(fmt.Sprint(args...), "component", "asynq") }
func (l *asynqLogger) Error(args ...any) { l.logger.Error(fmt.Sprint(args...), "component", "asynq") }

func (l *asynqLogger) Fatal(args ...any) {
	l.logger.Error(fmt.Sprint(args...), "component", "asynq")
	os.Exit(1)
}
