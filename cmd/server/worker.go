package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"designguard/internal/mail"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Deliver queued emails over SMTP",
	RunE:  runWorker,
}

func runWorker(cmd *cobra.Command, args []string) error {
	cfg, log, err := bootstrap()
	if err != nil {
		return err
	}
	defer log.Sync()

	sender, err := mail.NewSMTPSender(mail.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.MailFrom,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("mail worker starting", zap.String("redis", cfg.RedisAddr), zap.Int("concurrency", cfg.WorkerConcurrency))
	w := mail.NewWorker(asynq.RedisClientOpt{Addr: cfg.RedisAddr}, cfg.WorkerConcurrency, sender, log)
	if err := w.Run(ctx); err != nil {
		return err
	}
	log.Info("mail worker stopped")
	return nil
}
