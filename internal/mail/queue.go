package mail

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"designguard/internal/metrics"
)

const (
	TypeEmailSend = "email:send"
	QueueName     = "mail"

	maxRetry = 5
)

type EmailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}

// Enqueuer is the part of *asynq.Client the queue uses.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Queue renders account emails and hands them to the worker. It satisfies
// the user service's Mailer.
type Queue struct {
	client Enqueuer
	otpTTL time.Duration
	log    *zap.Logger
}

func NewQueue(client Enqueuer, otpTTL time.Duration, log *zap.Logger) *Queue {
	return &Queue{client: client, otpTTL: otpTTL, log: log.Named("mail")}
}

func (q *Queue) SendOTP(ctx context.Context, email, otp string) error {
	html, err := renderOTP(otp, int(q.otpTTL.Minutes()))
	if err != nil {
		return fmt.Errorf("mail: render otp: %w", err)
	}
	return q.enqueue(ctx, EmailPayload{To: email, Subject: subjectOTP, HTML: html})
}

func (q *Queue) SendPasswordReset(ctx context.Context, email, link string) error {
	html, err := renderReset(link)
	if err != nil {
		return fmt.Errorf("mail: render reset: %w", err)
	}
	return q.enqueue(ctx, EmailPayload{To: email, Subject: subjectReset, HTML: html})
}

func (q *Queue) enqueue(ctx context.Context, p EmailPayload) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return err
	}
	info, err := q.client.EnqueueContext(ctx, asynq.NewTask(TypeEmailSend, payload),
		asynq.Queue(QueueName), asynq.MaxRetry(maxRetry))
	if err != nil {
		metrics.Emails.WithLabelValues("failed").Inc()
		return fmt.Errorf("mail: enqueue: %w", err)
	}
	metrics.Emails.WithLabelValues("queued").Inc()
	q.log.Debug("email queued", zap.String("task_id", info.ID), zap.String("subject", p.Subject))
	return nil
}

// NewTaskHandler returns the worker-side handler for TypeEmailSend.
// Malformed payloads are not retried.
func NewTaskHandler(sender Sender, log *zap.Logger) asynq.HandlerFunc {
	log = log.Named("mail.worker")
	return func(ctx context.Context, t *asynq.Task) error {
		var p EmailPayload
		if err := json.Unmarshal(t.Payload(), &p); err != nil {
			return fmt.Errorf("mail: decode payload: %v: %w", err, asynq.SkipRetry)
		}
		if p.To == "" {
			return fmt.Errorf("mail: empty recipient: %w", asynq.SkipRetry)
		}
		if err := sender.Send(ctx, p.To, p.Subject, p.HTML); err != nil {
			metrics.Emails.WithLabelValues("failed").Inc()
			log.Warn("send failed", zap.String("subject", p.Subject), zap.Error(err))
			return err
		}
		metrics.Emails.WithLabelValues("sent").Inc()
		return nil
	}
}
