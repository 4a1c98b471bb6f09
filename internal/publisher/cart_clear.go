package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

const EventTypeCartClear = "cart_clear"

// CartClearEvent asks the cart store to empty the cart of UserID.
type CartClearEvent struct {
	UserID      string    `json:"user_id"`
	RequestedAt time.Time `json:"requested_at"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// CartClearPublisher hands cart clearing to the cart store over Kafka.
type CartClearPublisher struct {
	writer messageWriter
	logger *slog.Logger
	now    func() time.Time
}

func NewCartClearPublisher(topic string, logger *slog.Logger, brokers ...string) *CartClearPublisher {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		RequiredAcks:           kafka.RequireOne,
	}
	return newCartClearPublisher(w, logger)
}

func newCartClearPublisher(w messageWriter, logger *slog.Logger) *CartClearPublisher {
	return &CartClearPublisher{writer: w, logger: logger, now: time.Now}
}

// ClearCart publishes a clear request keyed by user id so that requests for
// one user stay on one partition.
func (p *CartClearPublisher) ClearCart(ctx context.Context, userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return errors.New("user id is required")
	}

	payload, err := json.Marshal(CartClearEvent{UserID: userID, RequestedAt: p.now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal cart clear event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(userID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(EventTypeCartClear)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish cart clear: %w", err)
	}
	p.logger.Debug("cart clear published", "user_id", userID)
	return nil
}

func (p *CartClearPublisher) Close() error {
	return p.writer.Close()
}
