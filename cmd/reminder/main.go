// Standalone reminder dispatcher, for deployments that keep background work
// off the API instances. Run exactly one: the in-process overlap guard does
// not coordinate across processes.
package main

import (
	"context"
	"fmt"

	"github.com/tunetip/events-service/internal/config"
	"github.com/tunetip/events-service/internal/logger"
	"github.com/tunetip/events-service/internal/notify"
	"github.com/tunetip/events-service/internal/reminder"
	"github.com/tunetip/events-service/internal/repo"
	"github.com/tunetip/events-service/internal/service"

	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	cfg, err := config.Load("internal/config/config.yaml")
	if err != nil {
		panic(fmt.Errorf("load config: %w", err))
	}

	log, err := logger.New("info")
	if err != nil {
		panic(fmt.Errorf("init logger: %w", err))
	}
	defer log.Sync()

	gdb, err := gorm.Open(postgres.Open(cfg.Postgres.DSN), &gorm.Config{PrepareStmt: true, TranslateError: true})
	if err != nil {
		log.Fatalf("open postgres: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	kw := &kafka.Writer{
		Addr:     kafka.TCP(cfg.Kafka.Brokers...),
		Topic:    cfg.Kafka.Topic,
		Balancer: &kafka.LeastBytes{},
	}

	repository := repo.NewRepository(gdb, rdb, log)
	svc := service.NewEventsService(repository, log)
	gateway := notify.NewKafkaGateway(kw)

	dispatcher := reminder.NewDispatcher(svc, gateway, log, cfg.Reminder.GatewayTimeout)
	dispatcher.Run(context.Background(), cfg.Reminder.Cadence)
}
