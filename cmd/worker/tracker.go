package worker

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tembohq/sms-gateway/internal/config"
	"github.com/tembohq/sms-gateway/internal/db"
	"github.com/tembohq/sms-gateway/internal/dispatcher"
	"github.com/tembohq/sms-gateway/internal/kafka"
	"github.com/tembohq/sms-gateway/internal/logger"
	"github.com/tembohq/sms-gateway/internal/metrics"
	"github.com/tembohq/sms-gateway/internal/repository"
	"github.com/tembohq/sms-gateway/internal/service/delivery"
	"github.com/tembohq/sms-gateway/internal/worker"
)

var trackerCmd = &cobra.Command{
	Use:   "tracker",
	Short: "Run the delivery-status tracker",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfgPath, _ := cmd.Root().PersistentFlags().GetString("config")
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		metrics.MustRegister(prometheus.DefaultRegisterer)

		log, err := logger.New(cfg.Log.Level)
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		defer func() { _ = log.Sync() }()

		mysqlDB, err := db.NewMySQLConnection(cfg.MySQL.DSN, db.MySQLOpts{
			MaxOpenConns:    cfg.MySQL.MaxOpenConns,
			MaxIdleConns:    cfg.MySQL.MaxIdleConns,
			ConnMaxLifetime: cfg.MySQL.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.MySQL.ConnMaxIdleTime,
			PingTimeout:     cfg.MySQL.PingTimeout,
		})
		if err != nil {
			return fmt.Errorf("mysql connect: %w", err)
		}
		defer mysqlDB.Close()

		consumer := kafka.NewConsumerFromConfig(kafka.Config{
			Brokers:        cfg.Kafka.Brokers,
			Topic:          cfg.Tracker.Topic,
			GroupID:        cfg.Kafka.GroupID,
			MinBytes:       cfg.Kafka.MinBytes,
			MaxBytes:       cfg.Kafka.MaxBytes,
			CommitInterval: time.Duration(cfg.Kafka.CommitInterval) * time.Millisecond,
		})
		defer func() { _ = consumer.Close() }()

		producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Tracker.Topic)
		defer func() { _ = producer.Close() }()

		messagesRepo := repository.NewMessagesRepository(mysqlDB)
		reportsRepo := repository.NewDeliveryReportsRepository(mysqlDB)
		applier := delivery.NewApplier(mysqlDB, messagesRepo, reportsRepo, log)
		disp := dispatcher.NewDispatcher(dispatcher.FromConfig(cfg.Providers))

		tracker := worker.NewTracker(consumer, producer, disp, messagesRepo, applier, cfg.Tracker, log)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			sig := <-sigCh
			log.Info("signal received, shutting down", zap.String("signal", sig.String()))
			cancel()
		}()

		log.Info("delivery tracker starting",
			zap.String("topic", cfg.Tracker.Topic), zap.Int("workers", cfg.Tracker.Workers))
		tracker.Run(ctx)

		return nil
	},
}
