package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/tunetip/events-service/internal/config"
	"github.com/tunetip/events-service/internal/logger"
	"github.com/tunetip/events-service/internal/model"
	"github.com/tunetip/events-service/internal/notify"
	"github.com/tunetip/events-service/internal/reminder"
	"github.com/tunetip/events-service/internal/repo"
	"github.com/tunetip/events-service/internal/service"
	httptransport "github.com/tunetip/events-service/internal/transport/http"

	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	// 1. load config
	cfg, err := config.Load("internal/config/config.yaml")
	if err != nil {
		panic(fmt.Errorf("load config: %w", err))
	}

	// 2. init logger
	log, err := logger.New("info")
	if err != nil {
		panic(fmt.Errorf("init logger: %w", err))
	}
	defer log.Sync()

	// 3. postgres
	gdb, err := gorm.Open(postgres.Open(cfg.Postgres.DSN), &gorm.Config{PrepareStmt: true, TranslateError: true})
	if err != nil {
		log.Fatalf("open postgres: %v", err)
	}
	if err := gdb.AutoMigrate(&model.Event{}, &model.RSVP{}); err != nil {
		log.Fatalf("auto-migrate: %v", err)
	}

	// 4. redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("redis ping: %v", err)
	}

	// 5. kafka writer for the notification gateway
	kw := &kafka.Writer{
		Addr:     kafka.TCP(cfg.Kafka.Brokers...),
		Topic:    cfg.Kafka.Topic,
		Balancer: &kafka.LeastBytes{},
	}

	// 6. repo & service
	repository := repo.NewRepository(gdb, rdb, log)
	svc := service.NewEventsService(repository, log)

	// 7. reminder dispatcher, in-process alongside the API
	gateway := notify.NewKafkaGateway(kw)
	dispatcher := reminder.NewDispatcher(svc, gateway, log, cfg.Reminder.GatewayTimeout)
	go dispatcher.Run(context.Background(), cfg.Reminder.Cadence)

	// 8. gin router
	router := httptransport.NewRouter(svc, cfg.RateLimit, log)

	// 9. serve
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Infof("events-server listening on %s", addr)
	if err := http.ListenAndServe(addr, router); err != nil {
		log.Fatalf("listen: %v", err)
	}
}
