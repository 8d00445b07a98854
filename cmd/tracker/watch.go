package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/spf13/cobra"

	"github.com/cuongbtq/application-tracker/internal/cache"
	"github.com/cuongbtq/application-tracker/internal/config"
	"github.com/cuongbtq/application-tracker/internal/events"
	"github.com/cuongbtq/application-tracker/internal/job"
	"github.com/cuongbtq/application-tracker/shared/rabbitmq"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow job changes made by other clients",
	Long:  "Subscribe to job change events and keep the local cache in sync, printing every change until interrupted.",
	RunE:  runWatch,
}

var watchAllUsers bool

func init() {
	watchCmd.Flags().BoolVar(&watchAllUsers, "all-users", false, "Apply events for every user instead of client.user_id")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, _ []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if !a.cfg.RabbitMQ.Enabled() {
		return errors.New("rabbitmq host is not configured")
	}

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	jobs, err := a.service.Jobs(ctx)
	if err != nil {
		return err
	}
	printJobs(out, jobs)

	rabbitClient, err := initSubscriber(&a.cfg.RabbitMQ, a.logger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
	}
	defer rabbitClient.Close()

	deliveries, err := rabbitClient.Consume("tracker-watch", a.cfg.RabbitMQ.Consumer.PrefetchCount)
	if err != nil {
		return err
	}

	var mu sync.Mutex
	unsubscribe := a.store.Subscribe(func(ev cache.Event) {
		mu.Lock()
		defer mu.Unlock()
		printChange(out, a.store, ev)
	})
	defer unsubscribe()

	userID := a.cfg.Client.UserID
	if watchAllUsers {
		userID = ""
	}

	a.logger.Info("Watching job events",
		slog.String("queue", rabbitClient.QueueName()),
		slog.String("user_id", userID),
	)

	err = events.NewSubscriber(a.service, userID, a.logger.Logger).Run(ctx, deliveries)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func printChange(w io.Writer, store *cache.Store, ev cache.Event) {
	switch {
	case ev.Kind == cache.EventAbsent:
		fmt.Fprintf(w, "- %s deleted\n", ev.Key.Param)

	case ev.Kind == cache.EventWritten && ev.Key.Op == cache.OpGetJobByID:
		e, ok := store.Read(ev.Key)
		if !ok {
			return
		}
		if r, ok := e.Value.(job.Resource); ok {
			fmt.Fprintf(w, "* %s %s at %s is %s\n", r.ID, r.Position, r.Company, r.CurrentStatus)
		}

	case ev.Kind == cache.EventWritten && ev.Key.Op == cache.OpGetJobs:
		e, ok := store.Read(ev.Key)
		if !ok {
			return
		}
		if jobs, ok := e.Value.([]job.Resource); ok {
			fmt.Fprintf(w, "= %d jobs\n", len(jobs))
		}
	}
}

// initSubscriber connects a client with its own queue bound to the job
// event routing keys
func initSubscriber(cfg *config.RabbitMQConfig, logger *slog.Logger) (*rabbitmq.Client, error) {
	bindingKeys := cfg.BindingKeys
	if len(bindingKeys) == 0 {
		bindingKeys = []string{events.RoutingPrefix + "*"}
	}

	return rabbitmq.NewClient(&rabbitmq.Config{
		Host:               cfg.Host,
		Port:               cfg.Port,
		User:               cfg.User,
		Password:           cfg.Password,
		VHost:              cfg.VHost,
		ExchangeName:       cfg.Exchange.Name,
		ExchangeType:       cfg.Exchange.Type,
		ExchangeDurable:    cfg.Exchange.Durable,
		ExchangeAutoDelete: cfg.Exchange.AutoDelete,
		QueueName:          cfg.Queue.Name,
		QueueDurable:       cfg.Queue.Durable,
		QueueAutoDelete:    cfg.Queue.AutoDelete,
		QueueExclusive:     cfg.Queue.Exclusive,
		BindingKeys:        bindingKeys,
		RetryAttempts:      cfg.Connection.RetryAttempts,
		RetryInterval:      cfg.Connection.RetryInterval,
		Heartbeat:          cfg.Connection.Heartbeat,
		ConnectionTimeout:  cfg.Connection.ConnectionTimeout,
	}, logger)
}
