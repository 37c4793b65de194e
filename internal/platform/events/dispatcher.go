package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// maxLogEntries bounds the in-memory delivery log.
const maxLogEntries = 1000

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithMaxRetries sets the maximum number of delivery attempts per subscriber.
func WithMaxRetries(n int) DispatcherOption {
	return func(d *Dispatcher) { d.maxRetries = n }
}

// WithRetryDelay sets the delay between delivery attempts.
func WithRetryDelay(delay time.Duration) DispatcherOption {
	return func(d *Dispatcher) { d.retryDelay = delay }
}

// WithQueueSize sets the publish queue capacity.
func WithQueueSize(n int) DispatcherOption {
	return func(d *Dispatcher) { d.queueSize = n }
}

type subscription struct {
	subscriber Subscriber
	patterns   []string
}

// Dispatcher fans events out to subscribers on a background worker.
// A failing subscriber is retried a bounded number of times and never
// blocks the publisher or other subscribers.
type Dispatcher struct {
	mu         sync.RWMutex
	subs       []subscription
	deliveries []Delivery

	queue      chan Event
	queueSize  int
	maxRetries int
	retryDelay time.Duration

	logger zerolog.Logger
	wg     sync.WaitGroup
	closed chan struct{}
	once   sync.Once
}

func NewDispatcher(logger zerolog.Logger, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		queueSize:  256,
		maxRetries: 3,
		retryDelay: 100 * time.Millisecond,
		logger:     logger,
		closed:     make(chan struct{}),
	}
	for _, o := range opts {
		o(d)
	}
	d.queue = make(chan Event, d.queueSize)
	d.wg.Add(1)
	go d.run()
	return d
}

// Subscribe registers a subscriber for event types matching the given
// patterns. Must not be called after Close.
func (d *Dispatcher) Subscribe(sub Subscriber, patterns ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subs = append(d.subs, subscription{subscriber: sub, patterns: patterns})
}

// Publish enqueues an event for asynchronous delivery. Missing ID and
// Timestamp fields are filled in. Publish never blocks the caller: if the
// queue is full or the dispatcher is closed the event is dropped and
// logged. Delivery is therefore at-least-once only for accepted events;
// the queue bound trades completeness under sustained overload for never
// stalling a booking, triage update or payment.
func (d *Dispatcher) Publish(event Event) {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	select {
	case d.queue <- event:
	case <-d.closed:
		d.logger.Warn().Str("event_type", event.Type).Msg("dispatcher closed, event dropped")
	default:
		d.logger.Warn().Str("event_type", event.Type).Msg("event queue full, event dropped")
	}
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for {
		select {
		case event := <-d.queue:
			d.dispatch(event)
		case <-d.closed:
			// Drain anything already queued.
			for {
				select {
				case event := <-d.queue:
					d.dispatch(event)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) dispatch(event Event) {
	d.mu.RLock()
	subs := make([]subscription, len(d.subs))
	copy(subs, d.subs)
	d.mu.RUnlock()

	for _, s := range subs {
		if !d.subscriptionMatches(s, event.Type) {
			continue
		}
		d.deliverWithRetry(s.subscriber, event)
	}
}

func (d *Dispatcher) subscriptionMatches(s subscription, eventType string) bool {
	for _, pat := range s.patterns {
		if eventMatches(pat, eventType) {
			return true
		}
	}
	return false
}

func (d *Dispatcher) deliverWithRetry(sub Subscriber, event Event) {
	for attempt := 1; attempt <= d.maxRetries; attempt++ {
		err := d.deliver(sub, event, attempt)
		if err == nil {
			return
		}
		d.logger.Warn().
			Err(err).
			Str("subscriber", sub.Name()).
			Str("event_type", event.Type).
			Int("attempt", attempt).
			Msg("event delivery failed")
		if attempt < d.maxRetries {
			time.Sleep(d.retryDelay)
		}
	}
}

func (d *Dispatcher) deliver(sub Subscriber, event Event, attempt int) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{value: r}
		}
		d.record(Delivery{
			ID:         uuid.New().String(),
			EventID:    event.ID,
			EventType:  event.Type,
			Subscriber: sub.Name(),
			Attempt:    attempt,
			Status:     deliveryStatus(err),
			Error:      errString(err),
			CreatedAt:  time.Now().UTC(),
		})
	}()
	return sub.Handle(event)
}

func (d *Dispatcher) record(del Delivery) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.deliveries = append(d.deliveries, del)
	if len(d.deliveries) > maxLogEntries {
		d.deliveries = d.deliveries[len(d.deliveries)-maxLogEntries:]
	}
}

// Deliveries returns a page of the delivery log, newest first.
func (d *Dispatcher) Deliveries(limit, offset int) ([]Delivery, int) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	total := len(d.deliveries)
	if offset >= total {
		return []Delivery{}, total
	}

	out := make([]Delivery, 0, limit)
	for i := total - 1 - offset; i >= 0 && len(out) < limit; i-- {
		out = append(out, d.deliveries[i])
	}
	return out, total
}

// Close stops the worker after draining the queue. Safe to call more than
// once. Events published after Close are dropped.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.once.Do(func() { close(d.closed) })

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type panicError struct {
	value interface{}
}

func (e *panicError) Error() string {
	return "subscriber panicked"
}

func deliveryStatus(err error) string {
	if err != nil {
		return "failed"
	}
	return "success"
}

func errString(err error) string {
	if err != nil {
		return err.Error()
	}
	return ""
}
