/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bookfinder/apiserver/config"
	"github.com/bookfinder/apiserver/internal/mq"
	"github.com/bookfinder/apiserver/internal/notify"
	"github.com/spf13/cobra"
)

// workerCmd consumes queued notification emails.
var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Send queued notification emails",
	Long: `Consumes the notification queue and delivers emails through the
configured mail backend. Requires QUEUE_BACKEND=rabbitmq or pubsub.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		logger := newLogger()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		backend, err := mq.Open(ctx, cfg.Queue, logger)
		if err != nil {
			return err
		}
		if backend == nil {
			return fmt.Errorf("queue backend %q has no external consumer", cfg.Queue.Backend)
		}
		if _, ok := backend.(*mq.MemoryBackend); ok {
			return errors.New("the memory queue is drained by the server process")
		}
		defer backend.Close()

		mailer, err := notify.NewMailer(cfg.Mail, logger)
		if err != nil {
			return err
		}

		err = notify.NewWorker(backend, cfg.Queue.Name, mailer, logger).Run(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("worker: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}
