// Command mirror-audit consumes schedule mirror drift events from RabbitMQ
// and appends them to a log file for later reconciliation.
package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/iliyamo/dayplanner/internal/queue"
)

func main() {
	_ = godotenv.Load()

	url := os.Getenv("RABBITMQ_URL")
	if url == "" {
		url = os.Getenv("AMQP_URL")
	}
	logPath := os.Getenv("MIRROR_LOG_PATH")
	if logPath == "" {
		logPath = "logs/mirror.log"
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf("mirror-audit: consuming %s into %s", queue.MirrorQueueName, logPath)
	if err := queue.StartMirrorConsumer(ctx, url, logPath); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("mirror-audit: %v", err)
	}
	log.Printf("mirror-audit: stopped")
}
