// Package notify defines the outbound reminder contract. The platform's
// actual push/email/in-app fan-out consumes the notifications topic; this
// service only publishes.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Gateway delivers one reminder to one attendee.
type Gateway interface {
	SendEventReminder(ctx context.Context, userID, eventID uint64, title string, startTime time.Time) error
}

// KafkaGateway publishes reminders to the notifications topic.
type KafkaGateway struct {
	writer *kafka.Writer
}

func NewKafkaGateway(w *kafka.Writer) *KafkaGateway {
	return &KafkaGateway{writer: w}
}

type reminderMessage struct {
	Type      string    `json:"type"`
	UserID    uint64    `json:"user_id"`
	EventID   uint64    `json:"event_id"`
	Title     string    `json:"title"`
	StartTime time.Time `json:"start_time"`
}

// SendEventReminder writes one message keyed by user so each attendee's
// notifications stay ordered within a partition.
func (g *KafkaGateway) SendEventReminder(ctx context.Context, userID, eventID uint64, title string, startTime time.Time) error {
	payload, err := json.Marshal(reminderMessage{
		Type:      "event_reminder",
		UserID:    userID,
		EventID:   eventID,
		Title:     title,
		StartTime: startTime,
	})
	if err != nil {
		return err
	}
	msg := kafka.Message{
		Key:   []byte(fmt.Sprintf("%d", userID)),
		Value: payload,
		Time:  time.Now(),
	}
	return g.writer.WriteMessages(ctx, msg)
}

// LogGateway logs instead of publishing; used when no broker is configured.
type LogGateway struct {
	log *zap.SugaredLogger
}

func NewLogGateway(logger *zap.SugaredLogger) *LogGateway {
	return &LogGateway{log: logger}
}

func (g *LogGateway) SendEventReminder(_ context.Context, userID, eventID uint64, title string, startTime time.Time) error {
	g.log.Infof("reminder -> user=%d event=%d %q starts %s", userID, eventID, title, startTime.Format(time.RFC3339))
	return nil
}
