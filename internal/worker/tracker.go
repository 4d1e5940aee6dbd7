// Package worker hosts the background consumers. The delivery tracker polls
// the upstream for delivery reports: the send path enqueues one check job per
// message through the outbox, and the tracker reschedules unresolved checks
// by republishing the job with a larger attempt counter.
package worker

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tembohq/sms-gateway/internal/config"
	"github.com/tembohq/sms-gateway/internal/dispatcher"
	"github.com/tembohq/sms-gateway/internal/kafka"
	"github.com/tembohq/sms-gateway/internal/metrics"
	"github.com/tembohq/sms-gateway/internal/model"
)

type consumer interface {
	Fetch(ctx context.Context) (kafka.Message, error)
	Commit(ctx context.Context, m kafka.Message) error
}

type producer interface {
	Publish(ctx context.Context, key string, value []byte) error
}

type statusFetcher interface {
	FetchDeliveryReport(ctx context.Context, providerName, trackingID, destAddr string) (dispatcher.DeliveryStatus, error)
}

type reportApplier interface {
	Apply(ctx context.Context, msg *model.Message, status dispatcher.DeliveryStatus, raw []byte) (bool, error)
}

type messageLoader interface {
	GetByID(ctx context.Context, id string) (*model.Message, error)
}

// Tracker consumes delivery-check jobs, honors their not-before delay, asks
// the dispatching provider for the delivery status and settles the message.
// Pending or failed checks are republished with exponential backoff until the
// attempt budget runs out, after which the message stays in sent.
type Tracker struct {
	consumer consumer
	producer producer
	fetcher  statusFetcher
	messages messageLoader
	applier  reportApplier
	cfg      config.TrackerConfig
	log      *zap.Logger
}

func NewTracker(
	c consumer,
	p producer,
	fetcher statusFetcher,
	messages messageLoader,
	applier reportApplier,
	cfg config.TrackerConfig,
	log *zap.Logger,
) *Tracker {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = time.Minute
	}
	return &Tracker{
		consumer: c,
		producer: p,
		fetcher:  fetcher,
		messages: messages,
		applier:  applier,
		cfg:      cfg,
		log:      log,
	}
}

// Run blocks until ctx is canceled. One fetcher goroutine feeds a bounded
// channel; cfg.Workers goroutines drain it.
func (t *Tracker) Run(ctx context.Context) {
	jobs := make(chan kafka.Message, t.cfg.Workers)

	go func() {
		defer close(jobs)
		for {
			m, err := t.consumer.Fetch(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				t.log.Error("fetch delivery-check job failed", zap.Error(err))
				continue
			}
			select {
			case jobs <- m:
			case <-ctx.Done():
				return
			}
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < t.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for m := range jobs {
				t.handle(ctx, m)
			}
		}()
	}
	wg.Wait()
}

func (t *Tracker) handle(ctx context.Context, m kafka.Message) {
	var job model.DeliveryCheckJob
	if err := json.Unmarshal(m.Value, &job); err != nil {
		// poison message, committing is the only way forward
		t.log.Error("unparseable delivery-check job, skipping",
			zap.ByteString("payload", m.Value), zap.Error(err))
		t.commit(ctx, m)
		return
	}

	if err := t.process(ctx, job); err != nil {
		if ctx.Err() != nil {
			return
		}
		// left uncommitted, redelivered after restart or rebalance
		t.log.Error("delivery check failed",
			zap.String("message_id", job.MessageID), zap.Int("attempt", job.Attempt), zap.Error(err))
		return
	}
	t.commit(ctx, m)
}

func (t *Tracker) process(ctx context.Context, job model.DeliveryCheckJob) error {
	if err := t.waitUntil(ctx, job.NotBefore); err != nil {
		return err
	}

	msg, err := t.messages.GetByID(ctx, job.MessageID)
	if err != nil {
		return err
	}
	if msg == nil || msg.Status != model.StatusSent {
		// already settled by the callback path, or gone
		return nil
	}

	status, err := t.fetcher.FetchDeliveryReport(ctx, job.Provider, job.TrackingID, job.DestAddr)
	if err != nil {
		metrics.DeliveryChecksTotal.WithLabelValues("error").Inc()
		t.log.Warn("delivery status lookup failed",
			zap.String("message_id", job.MessageID), zap.String("provider", job.Provider), zap.Error(err))
		return t.reschedule(ctx, job)
	}

	if status == dispatcher.DeliveryPending {
		metrics.DeliveryChecksTotal.WithLabelValues("pending").Inc()
		return t.reschedule(ctx, job)
	}

	if _, err := t.applier.Apply(ctx, msg, status, nil); err != nil {
		return err
	}
	if status == dispatcher.DeliveryDelivered {
		metrics.DeliveryChecksTotal.WithLabelValues("delivered").Inc()
	} else {
		metrics.DeliveryChecksTotal.WithLabelValues("undelivered").Inc()
	}
	return nil
}

// reschedule republishes the job with attempt+1 and a delay of
// backoff_base * 2^attempt, until the attempt budget is spent.
func (t *Tracker) reschedule(ctx context.Context, job model.DeliveryCheckJob) error {
	next := job
	next.Attempt++
	if next.Attempt >= t.cfg.MaxAttempts {
		metrics.DeliveryChecksTotal.WithLabelValues("exhausted").Inc()
		t.log.Info("delivery check attempts exhausted, leaving message in sent",
			zap.String("message_id", job.MessageID), zap.Int("attempts", next.Attempt))
		return nil
	}
	next.NotBefore = time.Now().Add(t.cfg.BackoffBase * (1 << job.Attempt))

	payload, err := json.Marshal(next)
	if err != nil {
		return err
	}
	return t.producer.Publish(ctx, next.MessageID, payload)
}

func (t *Tracker) waitUntil(ctx context.Context, at time.Time) error {
	d := time.Until(at)
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Tracker) commit(ctx context.Context, m kafka.Message) {
	if err := t.consumer.Commit(ctx, m); err != nil && ctx.Err() == nil {
		t.log.Error("commit delivery-check job failed", zap.Error(err))
	}
}
