package mail

import (
	"context"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// Worker consumes the mail queue.
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
}

func NewWorker(redis asynq.RedisConnOpt, concurrency int, sender Sender, log *zap.Logger) *Worker {
	if concurrency <= 0 {
		concurrency = 10
	}
	log = log.Named("asynq")
	srv := asynq.NewServer(redis, asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{QueueName: 1},
		Logger:      log.Sugar(),
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			retried, _ := asynq.GetRetryCount(ctx)
			log.Error("task failed", zap.String("type", task.Type()), zap.Int("retried", retried), zap.Error(err))
		}),
	})
	mux := asynq.NewServeMux()
	mux.Handle(TypeEmailSend, NewTaskHandler(sender, log))
	return &Worker{server: srv, mux: mux}
}

// Run starts processing and blocks until ctx is canceled, then shuts down.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.server.Start(w.mux); err != nil {
		return err
	}
	<-ctx.Done()
	w.server.Shutdown()
	return nil
}
