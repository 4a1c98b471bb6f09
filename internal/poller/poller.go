package poller

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/harshees/storefront/internal/publisher"
	"github.com/segmentio/kafka-go"
)

// CartClearer empties the cart of a user.
type CartClearer interface {
	ClearCart(ctx context.Context, userID string) error
}

// readBackoff pauses the loop after a failed read so an unreachable broker
// does not spin it.
const readBackoff = time.Second

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// Poller consumes cart clear requests and applies them to the cart store.
type Poller struct {
	carts   CartClearer
	reader  messageReader
	logger  *slog.Logger
	backoff time.Duration
}

func NewPoller(carts CartClearer, topic, groupID string, logger *slog.Logger, brokers ...string) *Poller {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MaxBytes: 10e6, // 10MB
	})
	return &Poller{carts: carts, reader: reader, logger: logger, backoff: readBackoff}
}

func (p *Poller) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		p.getMessageAndClearCart(ctx)
	}
}

func (p *Poller) Close() {
	if err := p.reader.Close(); err != nil {
		p.logger.Error("error closing kafka reader", "error", err)
	}
}

func (p *Poller) getMessageAndClearCart(ctx context.Context) {
	m, err := p.reader.ReadMessage(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return
		}
		p.logger.Error("error reading message", "error", err)
		p.wait(ctx)
		return
	}
	p.handle(ctx, m)
}

func (p *Poller) wait(ctx context.Context) {
	t := time.NewTimer(p.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// handle applies one message. Malformed messages are logged and skipped.
func (p *Poller) handle(ctx context.Context, m kafka.Message) {
	var event publisher.CartClearEvent
	if err := json.Unmarshal(m.Value, &event); err != nil {
		p.logger.Warn("error parsing cart clear message", "offset", m.Offset, "error", err)
		return
	}
	userID := strings.TrimSpace(event.UserID)
	if userID == "" {
		p.logger.Warn("cart clear message without user_id", "offset", m.Offset)
		return
	}

	if err := p.carts.ClearCart(ctx, userID); err != nil {
		p.logger.Error("failed to clear cart", "user_id", userID, "error", err)
		return
	}
	p.logger.Debug("cart cleared", "user_id", userID)
}
