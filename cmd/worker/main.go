package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joinwarden/joinwarden/internal/setup"
	"github.com/joinwarden/joinwarden/internal/worker/reconcile"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		log.Printf("Error: %v", err)
		os.Exit(1)
	}
}

func run() error {
	app := &cli.Command{
		Name:  "worker",
		Usage: "Start the joinwarden reconciliation worker",
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "Run the reconciliation loop",
				Action: func(ctx context.Context, _ *cli.Command) error {
					return runWorker(ctx)
				},
			},
			{
				Name:  "status",
				Usage: "Perform a dry reconciliation run and print the counts",
				Flags: []cli.Flag{
					&cli.Int64Flag{
						Name:    "chat",
						Aliases: []string{"c"},
						Usage:   "Also print the derived status of this chat",
					},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					return runStatus(ctx, c.Int64("chat"))
				},
			},
		},
	}

	return app.Run(context.Background(), os.Args)
}

// runWorker starts the reconciliation loop and blocks until interrupted.
func runWorker(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := setup.InitializeApp(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer app.Cleanup()

	worker := reconcile.New(
		app.DB.Model().Event(),
		app.DB.Model().Setting(),
		app.Telegram,
		app.StatusClient,
		&app.Config.Worker,
		app.Logger,
	)

	runLoop(ctx, worker, app.Logger)

	return nil
}

// runLoop keeps the worker alive with panic recovery, the same containment
// the loop applies to individual runs.
func runLoop(ctx context.Context, worker *reconcile.Worker, logger *zap.Logger) {
	for {
		select {
		case <-ctx.Done():
			logger.Info("Context cancelled, stopping worker")
			return
		default:
			func() {
				defer func() {
					if r := recover(); r != nil {
						logger.Error("Worker execution failed", zap.Any("panic", r))
						logger.Info("Restarting worker in 5 seconds...")
						time.Sleep(5 * time.Second)
					}
				}()

				worker.Start(ctx)
			}()
		}
	}
}

// runStatus performs one dry run and prints what a real run would do.
func runStatus(ctx context.Context, chatID int64) error {
	app, err := setup.InitializeApp(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer app.Cleanup()

	worker := reconcile.New(
		app.DB.Model().Event(),
		app.DB.Model().Setting(),
		app.Telegram,
		nil,
		&app.Config.Worker,
		app.Logger,
	)

	counts, err := worker.Run(ctx, reconcile.TriggerDry)
	if err != nil {
		return fmt.Errorf("dry run failed: %w", err)
	}

	fmt.Printf("to notify: %d\nto ban: %d\nto deny and remove: %d\n",
		counts.ToNotify, counts.ToBan, counts.ToDenyAndRemove)

	if chatID != 0 {
		status, err := app.DB.Service().Status().GetChatStatus(ctx, chatID)
		if err != nil {
			return fmt.Errorf("failed to get chat status: %w", err)
		}

		fmt.Println(status.Render())
	}

	return nil
}
