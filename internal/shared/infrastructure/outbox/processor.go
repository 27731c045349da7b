package outbox

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/felixgeelhaar/schedcache/internal/shared/infrastructure/eventbus"
	"github.com/felixgeelhaar/schedcache/pkg/observability"
)

// ProcessorConfig holds configuration for the outbox processor.
type ProcessorConfig struct {
	PollInterval time.Duration
	BatchSize    int
	// MaxRetries counts publish attempts; the last failed one dead-letters.
	MaxRetries       int
	RetryBackoffBase time.Duration
	RetryBackoffMax  time.Duration
	// Retention is how long published messages are kept; zero keeps them.
	Retention time.Duration
}

// DefaultProcessorConfig returns the relay defaults.
func DefaultProcessorConfig() ProcessorConfig {
	return ProcessorConfig{
		PollInterval:     500 * time.Millisecond,
		BatchSize:        50,
		MaxRetries:       5,
		RetryBackoffBase: time.Second,
		RetryBackoffMax:  time.Minute,
		Retention:        7 * 24 * time.Hour,
	}
}

// Processor relays committed outbox messages to a Publisher.
type Processor struct {
	repo      Repository
	publisher eventbus.Publisher
	config    ProcessorConfig
	logger    *slog.Logger
	metrics   observability.Metrics

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	published atomic.Uint64
	failed    atomic.Uint64
	dead      atomic.Uint64

	lastMu        sync.Mutex
	lastErr       error
	lastErrAt     time.Time
	lastProcessed time.Time
}

// NewProcessor creates a stopped processor.
func NewProcessor(repo Repository, publisher eventbus.Publisher, config ProcessorConfig, logger *slog.Logger, metrics observability.Metrics) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = observability.NoopMetrics{}
	}
	return &Processor{
		repo:      repo,
		publisher: publisher,
		config:    config,
		logger:    logger,
		metrics:   metrics,
	}
}

// Start polls in the background until ctx ends or Stop is called. Starting
// a running processor does nothing.
func (p *Processor) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return
	}

	ctx, p.cancel = context.WithCancel(ctx)
	p.done = make(chan struct{})
	go p.poll(ctx, p.done)

	p.logger.Info("outbox relay started",
		"poll_interval", p.config.PollInterval,
		"batch_size", p.config.BatchSize,
	)
}

// Stop ends polling and waits for the current batch.
func (p *Processor) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	p.logger.Info("outbox relay stopped")
}

// IsRunning reports whether the poll loop is active.
func (p *Processor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancel != nil
}

func (p *Processor) poll(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.ProcessOnce(ctx); err != nil && ctx.Err() == nil {
				p.logger.Error("outbox batch failed", "error", err)
			}
		}
	}
}

// ProcessOnce relays one batch and returns how many messages were
// published. Only a failure to read the batch is returned; per-message
// failures are scheduled for retry.
func (p *Processor) ProcessOnce(ctx context.Context) (int, error) {
	batch, err := p.repo.GetUnpublished(ctx, p.config.BatchSize)
	if err != nil {
		p.noteError(err)
		return 0, err
	}

	n := 0
	for _, msg := range batch {
		if p.relay(ctx, msg) {
			n++
		}
	}

	p.published.Add(uint64(n))
	p.lastMu.Lock()
	p.lastProcessed = time.Now()
	p.lastMu.Unlock()
	return n, nil
}

func (p *Processor) relay(ctx context.Context, msg *Message) bool {
	if err := p.publisher.Publish(ctx, msg.RoutingKey, msg.Body); err != nil {
		p.reschedule(ctx, msg, err)
		return false
	}
	if err := p.repo.MarkPublished(ctx, msg.ID); err != nil {
		// consumers must tolerate the redelivery this causes
		p.logger.Error("published message not marked",
			"id", msg.ID,
			"event_id", msg.EventID,
			"error", err,
		)
		return false
	}
	p.metrics.Counter(observability.MetricEventsPublished, 1,
		observability.T("routing_key", msg.RoutingKey),
	)
	return true
}

func (p *Processor) reschedule(ctx context.Context, msg *Message, cause error) {
	p.noteError(cause)
	log := p.logger.With(
		"id", msg.ID,
		"routing_key", msg.RoutingKey,
		"event_id", msg.EventID,
		"attempt", msg.RetryCount+1,
		"error", cause,
	)

	if p.shouldDeadLetter(msg, cause) {
		p.dead.Add(1)
		log.Error("outbox message dead-lettered")
		if err := p.repo.MarkDead(ctx, msg.ID, cause.Error()); err != nil {
			log.Error("failed to dead-letter message", "mark_error", err)
		}
		return
	}

	p.failed.Add(1)
	next := time.Now().Add(p.retryBackoff(msg.RetryCount + 1))
	log.Warn("outbox publish failed, retrying", "next_retry_at", next)
	if err := p.repo.MarkFailed(ctx, msg.ID, cause.Error(), next); err != nil {
		log.Error("failed to schedule retry", "mark_error", err)
	}
}

// shouldDeadLetter reports whether msg has used up its retries. A body no
// transport can decode is dead on the first failure.
func (p *Processor) shouldDeadLetter(msg *Message, err error) bool {
	if errors.Is(err, eventbus.ErrMalformedEnvelope) || p.config.MaxRetries <= 0 {
		return true
	}
	return !msg.CanRetry(p.config.MaxRetries - 1)
}

// retryBackoff doubles from the base for each attempt, capped at the max.
func (p *Processor) retryBackoff(attempt int) time.Duration {
	delay, limit := p.config.RetryBackoffBase, p.config.RetryBackoffMax
	if delay <= 0 {
		delay = time.Second
	}
	if limit <= 0 {
		limit = time.Minute
	}
	for i := 1; i < attempt && delay < limit; i++ {
		delay *= 2
	}
	return min(delay, limit)
}

// Cleanup deletes published messages older than the retention period.
func (p *Processor) Cleanup(ctx context.Context) (int64, error) {
	if p.config.Retention <= 0 {
		return 0, nil
	}
	return p.repo.DeleteOld(ctx, p.config.Retention)
}

func (p *Processor) noteError(err error) {
	p.lastMu.Lock()
	defer p.lastMu.Unlock()
	p.lastErr = err
	p.lastErrAt = time.Now()
}

// Stats is a point-in-time view of the relay.
type Stats struct {
	IsRunning       bool       `json:"is_running"`
	PublishedCount  uint64     `json:"published_count"`
	FailedCount     uint64     `json:"failed_count"`
	DeadCount       uint64     `json:"dead_count"`
	LastError       string     `json:"last_error,omitempty"`
	LastErrorAt     *time.Time `json:"last_error_at,omitempty"`
	LastProcessedAt *time.Time `json:"last_processed_at,omitempty"`
}

// GetStats returns the relay counters.
func (p *Processor) GetStats() Stats {
	stats := Stats{
		IsRunning:      p.IsRunning(),
		PublishedCount: p.published.Load(),
		FailedCount:    p.failed.Load(),
		DeadCount:      p.dead.Load(),
	}

	p.lastMu.Lock()
	defer p.lastMu.Unlock()
	if p.lastErr != nil {
		at := p.lastErrAt
		stats.LastError = p.lastErr.Error()
		stats.LastErrorAt = &at
	}
	if !p.lastProcessed.IsZero() {
		at := p.lastProcessed
		stats.LastProcessedAt = &at
	}
	return stats
}
