package consumer

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// CartReconciler refetches the cart of a visitor held by this process. It
// reports false when the visitor is not loaded here.
type CartReconciler interface {
	ReconcileCart(ctx context.Context, sessionID string) (bool, error)
}

// Consumer refetches the carts this instance holds whenever any instance
// settles a checkout for the same visitor.
type Consumer struct {
	carts  CartReconciler
	reader *kafka.Reader
	logger zerolog.Logger
}

func NewConsumer(carts CartReconciler, logger zerolog.Logger, topic, groupID string, brokers ...string) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		Topic:       topic,
		GroupID:     groupID,
		StartOffset: kafka.LastOffset,
		MaxBytes:    10e6, // 10MB
	})
	return &Consumer{carts: carts, reader: reader, logger: logger}
}

func (c *Consumer) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		m, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			c.logger.Error().Err(err).Msg("error reading checkout event")
			continue
		}
		c.handle(ctx, m)
	}
}

func (c *Consumer) Close() {
	if err := c.reader.Close(); err != nil {
		c.logger.Error().Err(err).Msg("error closing kafka reader")
	}
}

func (c *Consumer) handle(ctx context.Context, m kafka.Message) {
	var event domain.CheckoutEvent
	if err := json.Unmarshal(m.Value, &event); err != nil {
		c.logger.Warn().Err(err).Str("key", string(m.Key)).Msg("error parsing checkout event")
		return
	}
	if event.SessionID == "" {
		return
	}

	log := c.logger.With().
		Str("session_id", event.SessionID).
		Str("client_mutation_id", event.ClientMutationID).
		Str("event_type", string(event.Type)).
		Logger()

	loaded, err := c.carts.ReconcileCart(ctx, event.SessionID)
	switch {
	case !loaded:
		log.Debug().Msg("checkout event for a visitor held elsewhere")
	case err != nil:
		log.Warn().Err(err).Msg("cart reconcile after checkout event failed")
	default:
		log.Debug().Msg("cart reconciled after checkout event")
	}
}
