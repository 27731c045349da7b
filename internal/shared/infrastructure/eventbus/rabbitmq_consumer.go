package eventbus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/felixgeelhaar/schedcache/pkg/observability"
)

// DefaultQueuePrefix names the per-instance queues when no prefix is
// configured.
const DefaultQueuePrefix = "schedcache.lookups"

// RabbitMQConsumer delivers broker messages to registered consumers.
//
// Every process holds its own exclusive, auto-deleted queue bound to the
// exchange, so each cache instance sees every invalidation. A message whose
// consumers fail is requeued once; a redelivery that fails again is
// dropped.
type RabbitMQConsumer struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	channel  *amqp.Channel
	queue    string
	exchange string
	registry *ConsumerRegistry
	logger   *slog.Logger
	metrics  observability.Metrics
	running  bool
	done     chan struct{}
}

// RabbitMQConsumerConfig configures the RabbitMQ consumer.
type RabbitMQConsumerConfig struct {
	URL string
	// QueuePrefix is joined with a random suffix to name this instance's
	// queue.
	QueuePrefix string
	Exchange    string
	Logger      *slog.Logger
	Metrics     observability.Metrics
}

// NewRabbitMQConsumer connects and declares this instance's queue. Routing
// keys are bound as consumers register.
func NewRabbitMQConsumer(cfg RabbitMQConsumerConfig, registry *ConsumerRegistry) (*RabbitMQConsumer, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observability.NoopMetrics{}
	}
	if cfg.QueuePrefix == "" {
		cfg.QueuePrefix = DefaultQueuePrefix
	}
	if cfg.Exchange == "" {
		cfg.Exchange = ExchangeName
	}
	if registry == nil {
		registry = NewConsumerRegistry(cfg.Logger)
	}

	conn, ch, err := dialTopic(cfg.URL, cfg.Exchange)
	if err != nil {
		return nil, err
	}

	name := InstanceQueueName(cfg.QueuePrefix)
	if _, err := ch.QueueDeclare(name, false, true, true, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare queue %s: %w", name, err)
	}

	cfg.Logger.Info("rabbitmq consumer connected",
		"queue", name,
		"exchange", cfg.Exchange,
	)
	return &RabbitMQConsumer{
		conn:     conn,
		channel:  ch,
		queue:    name,
		exchange: cfg.Exchange,
		registry: registry,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
		done:     make(chan struct{}),
	}, nil
}

// InstanceQueueName derives a queue name unique to this process.
func InstanceQueueName(prefix string) string {
	return prefix + "." + uuid.NewString()
}

// RegisterConsumer adds consumer to the registry and binds its routing keys
// to the instance queue.
func (c *RabbitMQConsumer) RegisterConsumer(consumer EventConsumer) error {
	c.registry.Register(consumer)

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range consumer.EventTypes() {
		if err := c.channel.QueueBind(c.queue, key, c.exchange, false, nil); err != nil {
			return fmt.Errorf("bind %s to %s: %w", c.queue, key, err)
		}
	}
	return nil
}

// Start consumes until ctx is cancelled or Close is called.
func (c *RabbitMQConsumer) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return errors.New("consumer already running")
	}
	c.running = true
	c.mu.Unlock()

	if err := c.channel.Qos(1, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}
	deliveries, err := c.channel.Consume(c.queue, "", false, true, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", c.queue, err)
	}

	c.logger.Info("consuming events", "queue", c.queue)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.done:
			return nil
		case msg, ok := <-deliveries:
			if !ok {
				return errors.New("delivery channel closed")
			}
			c.settle(ctx, msg, c.deliver(ctx, msg))
		}
	}
}

func (c *RabbitMQConsumer) deliver(ctx context.Context, msg amqp.Delivery) error {
	event, err := DecodeEnvelope(msg.RoutingKey, msg.Body)
	if err != nil {
		return err
	}

	if id := event.Metadata.CorrelationID; id != "" {
		ctx = observability.WithCorrelationID(ctx, id)
	} else if msg.CorrelationId != "" {
		ctx = observability.WithCorrelationID(ctx, msg.CorrelationId)
	}

	err = c.registry.Dispatch(ctx, event)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	c.metrics.Counter(observability.MetricEventsConsumed, 1,
		observability.T("routing_key", event.RoutingKey),
		observability.T("outcome", outcome),
	)
	return err
}

func (c *RabbitMQConsumer) settle(ctx context.Context, msg amqp.Delivery, err error) {
	var settleErr error
	switch {
	case err == nil:
		settleErr = msg.Ack(false)
	case errors.Is(err, ErrMalformedEnvelope):
		c.logger.ErrorContext(ctx, "dropping malformed event",
			"routing_key", msg.RoutingKey,
			"error", err,
		)
		settleErr = msg.Nack(false, false)
	default:
		c.logger.ErrorContext(ctx, "event delivery failed",
			"routing_key", msg.RoutingKey,
			"redelivered", msg.Redelivered,
			"error", err,
		)
		settleErr = msg.Nack(false, !msg.Redelivered)
	}
	if settleErr != nil {
		c.logger.ErrorContext(ctx, "failed to settle delivery", "error", settleErr)
	}
}

// Close stops Start and closes the connection. The broker deletes the
// instance queue.
func (c *RabbitMQConsumer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-c.done:
		return nil
	default:
		close(c.done)
	}
	c.running = false

	if err := c.channel.Close(); err != nil {
		c.logger.Warn("closing consumer channel", "error", err)
	}
	return c.conn.Close()
}
