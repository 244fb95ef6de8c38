package outbox

import (
	"context"
	"log/slog"
	"time"

	"checkout/internal/shared/events"
)

// Store is the persistence surface the dispatcher drives. Reserve must use
// lock-skip semantics so several dispatcher instances can poll the same
// table without blocking on or duplicating each other's rows.
type Store interface {
	// Reserve selects up to batchSize eligible rows oldest-first, stamps
	// the lease (lockedBy/lockedUntil) and increments attempt_count, all
	// inside one short transaction. Rows locked by a live transaction of
	// another instance are skipped, not awaited.
	Reserve(ctx context.Context, lockedBy string, batchSize int, leaseUntil, now time.Time) ([]Message, error)

	// MarkSent records terminal publication success and clears lease,
	// retry and error fields. sent_at is never cleared afterwards.
	MarkSent(ctx context.Context, outboxID string, sentAt time.Time) error

	// ScheduleRetry releases the lease so another instance may pick the
	// row up after nextAttemptAt, keeping the truncated error text.
	ScheduleRetry(ctx context.Context, outboxID string, lastError string, nextAttemptAt time.Time) error

	// Park terminally removes a poisoned row from rotation.
	Park(ctx context.Context, outboxID string, lastError string, parkedAt time.Time) error
}

// Publisher is the transport hop: fire-and-forget, at-least-once.
type Publisher interface {
	Publish(ctx context.Context, messageType string, event events.Event) error
}

// Clock is injected so tests can pin time.
type Clock interface {
	Now() time.Time
}

// Dispatcher drains outbox rows to the transport. Safe to run in several
// concurrent instances; coordination happens entirely through row leases.
type Dispatcher struct {
	Store      Store
	Publisher  Publisher
	Registry   *events.Registry
	Clock      Clock
	InstanceID string
	Config     Config
	Logger     *slog.Logger
}

// Run polls until ctx is cancelled. A non-empty batch loops immediately to
// drain backlog; an empty one sleeps a poll interval. Reserve errors pause
// the loop briefly instead of tearing the worker down.
func (d Dispatcher) Run(ctx context.Context) error {
	cfg := d.Config.normalized()
	logger := resolveLogger(d.Logger)

	logger.Info("outbox dispatcher started",
		"event", "outbox_dispatcher_started",
		"module", "internal/shared/outbox",
		"layer", "worker",
		"instance_id", d.InstanceID,
		"poll_interval", cfg.PollInterval.String(),
		"batch_size", cfg.BatchSize,
	)

	ticker := time.NewTicker(cfg.PollInterval)
	defer ticker.Stop()

	for {
		reserved, err := d.dispatchOnce(ctx, cfg, logger)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Error("outbox dispatch cycle failed",
				"event", "outbox_dispatch_cycle_failed",
				"module", "internal/shared/outbox",
				"layer", "worker",
				"instance_id", d.InstanceID,
				"error", err.Error(),
			)
			if !sleep(ctx, 2*time.Second) {
				return nil
			}
			continue
		}
		if reserved > 0 {
			// Backlog present: keep draining without waiting a tick.
			if ctx.Err() != nil {
				return nil
			}
			continue
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// DispatchOnce runs a single reserve/publish/settle cycle and returns how
// many rows were reserved. Exposed for tests and manual draining.
func (d Dispatcher) DispatchOnce(ctx context.Context) (int, error) {
	return d.dispatchOnce(ctx, d.Config.normalized(), resolveLogger(d.Logger))
}

func (d Dispatcher) dispatchOnce(ctx context.Context, cfg Config, logger *slog.Logger) (int, error) {
	now := d.now()
	batch, err := d.Store.Reserve(ctx, d.InstanceID, cfg.BatchSize, now.Add(cfg.LeaseDuration), now)
	if err != nil {
		return 0, err
	}
	if len(batch) == 0 {
		return 0, nil
	}

	for _, msg := range batch {
		if ctx.Err() != nil {
			// Shutdown mid-batch: leave remaining leases to expire.
			break
		}
		d.publishOne(ctx, cfg, logger, msg)
	}
	return len(batch), nil
}

// publishOne happens outside any store transaction; success and failure are
// settled in their own independent transactions so one message's outcome
// never affects its batch siblings.
func (d Dispatcher) publishOne(ctx context.Context, cfg Config, logger *slog.Logger, msg Message) {
	event, err := d.Registry.Decode(msg.MessageType, msg.Payload)
	if err != nil {
		// Registry miss or corrupt payload is a publish failure, not a
		// silent drop: the row stays observable through last_error.
		d.settleFailure(ctx, cfg, logger, msg, err)
		return
	}

	if err := d.Publisher.Publish(ctx, msg.MessageType, event); err != nil {
		d.settleFailure(ctx, cfg, logger, msg, err)
		return
	}

	if err := d.Store.MarkSent(ctx, msg.OutboxID, d.now()); err != nil {
		logger.Error("outbox mark sent failed; row will be republished",
			"event", "outbox_mark_sent_failed",
			"module", "internal/shared/outbox",
			"layer", "worker",
			"outbox_id", msg.OutboxID,
			"message_type", msg.MessageType,
			"error", err.Error(),
		)
	}
}

func (d Dispatcher) settleFailure(ctx context.Context, cfg Config, logger *slog.Logger, msg Message, cause error) {
	errText := truncateError(cause.Error(), cfg.MaxErrorLength)

	if msg.AttemptCount >= cfg.MaxAttempts {
		logger.Error("outbox message parked after exhausting attempts",
			"event", "outbox_message_parked",
			"module", "internal/shared/outbox",
			"layer", "worker",
			"outbox_id", msg.OutboxID,
			"message_id", msg.MessageID,
			"message_type", msg.MessageType,
			"attempt_count", msg.AttemptCount,
			"error", errText,
		)
		if err := d.Store.Park(ctx, msg.OutboxID, errText, d.now()); err != nil {
			logger.Error("outbox park failed",
				"event", "outbox_park_failed",
				"module", "internal/shared/outbox",
				"layer", "worker",
				"outbox_id", msg.OutboxID,
				"error", err.Error(),
			)
		}
		return
	}

	nextAttemptAt := d.now().Add(Backoff(msg.AttemptCount))
	logger.Warn("outbox publish failed; retry scheduled",
		"event", "outbox_publish_failed",
		"module", "internal/shared/outbox",
		"layer", "worker",
		"outbox_id", msg.OutboxID,
		"message_id", msg.MessageID,
		"message_type", msg.MessageType,
		"attempt_count", msg.AttemptCount,
		"next_attempt_at", nextAttemptAt.Format(time.RFC3339),
		"error", errText,
	)
	if err := d.Store.ScheduleRetry(ctx, msg.OutboxID, errText, nextAttemptAt); err != nil {
		logger.Error("outbox schedule retry failed",
			"event", "outbox_schedule_retry_failed",
			"module", "internal/shared/outbox",
			"layer", "worker",
			"outbox_id", msg.OutboxID,
			"error", err.Error(),
		)
	}
}

func (d Dispatcher) now() time.Time {
	if d.Clock != nil {
		return d.Clock.Now().UTC()
	}
	return time.Now().UTC()
}

func truncateError(text string, max int) string {
	if len(text) <= max {
		return text
	}
	return text[:max]
}

func sleep(ctx context.Context, delay time.Duration) bool {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func resolveLogger(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}
