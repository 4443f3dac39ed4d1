package queue

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/lotustrader/learningcore/internal/coreerr"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Handler processes one claimed item. Its error classifies the
// outcome: a coreerr.InputError or coreerr.SchemaError is parked
// immediately (not retried); anything else is retried with backoff up
// to the item's MaxAttempts.
type Handler func(ctx context.Context, item Item) error

// Dispatcher drains a Queue on a fixed poll interval, handing claimed
// items to Handler and resolving the outcome via Ack/Nack. Retry
// timing within a single handler invocation uses an exponential
// backoff policy rather than a fixed delay.
type Dispatcher struct {
	queue         Queue
	handler       Handler
	batchSize     int
	visibility    time.Duration
	poll          time.Duration
	retryInterval time.Duration
	concurrency   int
	log           zerolog.Logger
}

// SetConcurrency bounds how many claimed items a single batch processes
// in parallel (spec §4.11's worker pool). The default, 1, processes a
// batch sequentially; call this before Run to widen it.
func (d *Dispatcher) SetConcurrency(n int) {
	if n <= 0 {
		n = 1
	}
	d.concurrency = n
}

// NewDispatcher wires a Dispatcher. poll is how often it checks for
// newly-available work when the queue was empty; retryInterval seeds
// the exponential backoff between in-cycle retries of a single item.
func NewDispatcher(q Queue, h Handler, batchSize int, visibility, poll, retryInterval time.Duration, log zerolog.Logger) *Dispatcher {
	if retryInterval <= 0 {
		retryInterval = 200 * time.Millisecond
	}
	return &Dispatcher{
		queue:         q,
		handler:       h,
		batchSize:     batchSize,
		visibility:    visibility,
		poll:          poll,
		retryInterval: retryInterval,
		concurrency:   1,
		log:           log,
	}
}

// Run processes claimed batches until ctx is canceled.
func (d *Dispatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			n, err := d.drainOnce(ctx)
			if err != nil {
				d.log.Error().Err(err).Msg("dispatcher drain failed")
				continue
			}
			if n > 0 {
				d.log.Debug().Int("claimed", n).Msg("dispatcher batch processed")
			}
		}
	}
}

func (d *Dispatcher) drainOnce(ctx context.Context) (int, error) {
	items, err := d.queue.Claim(ctx, d.batchSize, d.visibility)
	if err != nil {
		return 0, err
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(d.concurrency)
	for _, item := range items {
		item := item
		eg.Go(func() error {
			d.process(egCtx, item)
			return nil
		})
	}
	_ = eg.Wait() // process never returns an error; Ack/Nack record the outcome per item

	return len(items), nil
}

func (d *Dispatcher) process(ctx context.Context, item Item) {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = d.retryInterval
	eb.MaxInterval = 10 * d.retryInterval
	remaining := item.MaxAttempts - item.Attempts
	if remaining < 0 {
		remaining = 0
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(remaining)), ctx)

	err := backoff.Retry(func() error {
		herr := d.handler(ctx, item)
		if herr == nil {
			return nil
		}
		switch herr.(type) {
		case *coreerr.InputError, *coreerr.SchemaError:
			return backoff.Permanent(herr)
		default:
			return herr
		}
	}, policy)

	if err == nil {
		if ackErr := d.queue.Ack(ctx, item.ID); ackErr != nil {
			d.log.Error().Err(ackErr).Str("item_id", item.ID).Msg("ack failed")
		}
		return
	}

	retryable := true
	reason := err.Error()
	if perm, ok := err.(*backoff.PermanentError); ok {
		retryable = false
		reason = perm.Err.Error()
	}
	if nackErr := d.queue.Nack(ctx, item.ID, reason, retryable); nackErr != nil {
		d.log.Error().Err(nackErr).Str("item_id", item.ID).Msg("nack failed")
	}
}
