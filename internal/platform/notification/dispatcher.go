package notification

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/islandmassage/booking/internal/platform/retry"
)

// Dispatcher delivers messages in the background. Callers never wait for or
// observe delivery failures; those are retried and then logged.
type Dispatcher struct {
	sender  Sender
	policy  retry.Policy
	timeout time.Duration
	logger  zerolog.Logger
	now     func() time.Time

	wg    sync.WaitGroup
	mu    sync.Mutex
	stats map[string]int
}

// DispatcherOption customizes a Dispatcher.
type DispatcherOption func(*Dispatcher)

func WithPolicy(p retry.Policy) DispatcherOption {
	return func(d *Dispatcher) { d.policy = p }
}

// WithSendTimeout bounds each delivery attempt.
func WithSendTimeout(t time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if t > 0 {
			d.timeout = t
		}
	}
}

func NewDispatcher(sender Sender, logger zerolog.Logger, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		sender:  sender,
		policy:  retry.DefaultPolicy,
		timeout: 10 * time.Second,
		logger:  logger,
		now:     time.Now,
		stats:   make(map[string]int),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Notify queues msg for delivery and returns immediately. The request context
// only contributes its values; its cancellation does not stop delivery.
func (d *Dispatcher) Notify(ctx context.Context, msg Message) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = d.now().UTC()
	}

	bg := context.WithoutCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.deliver(bg, msg)
	}()
}

// Deliver sends msg synchronously with retries. The worker uses it for
// messages read from Kafka.
func (d *Dispatcher) Deliver(ctx context.Context, msg Message) error {
	return d.deliver(ctx, msg)
}

func (d *Dispatcher) deliver(ctx context.Context, msg Message) error {
	attempt := 0
	err := retry.Do(ctx, d.policy, retry.WithTimeout(d.timeout, func(ctx context.Context) error {
		attempt++
		err := d.sender.Send(ctx, msg)
		if err != nil {
			d.logger.Warn().Err(err).
				Str("notification_id", msg.ID).
				Str("channel", string(msg.Channel)).
				Int("attempt", attempt).
				Msg("notification attempt failed")
		}
		return err
	}))

	d.mu.Lock()
	if err != nil {
		d.stats["failed"]++
	} else {
		d.stats["sent"]++
	}
	d.mu.Unlock()

	if err != nil {
		d.logger.Error().Err(err).
			Str("notification_id", msg.ID).
			Str("channel", string(msg.Channel)).
			Str("recipient", msg.Recipient).
			Str("booking_id", msg.BookingID).
			Msg("notification dropped")
	}
	return err
}

// Wait blocks until all queued deliveries have finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Stats returns delivery counts keyed by outcome.
func (d *Dispatcher) Stats() map[string]int {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string]int, len(d.stats))
	for k, v := range d.stats {
		out[k] = v
	}
	return out
}
