// Package send orchestrates one outbound send: rate gate, sender resolution,
// encoding, credit reservation, dispatch and settlement. Credits are moved in
// two transactions around the provider call, so the balance row is never
// locked while a network request is in flight.
package send

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/tembohq/sms-gateway/internal/config"
	"github.com/tembohq/sms-gateway/internal/dispatcher"
	"github.com/tembohq/sms-gateway/internal/ledger"
	"github.com/tembohq/sms-gateway/internal/metrics"
	"github.com/tembohq/sms-gateway/internal/model"
	"github.com/tembohq/sms-gateway/internal/ratelimit"
	"github.com/tembohq/sms-gateway/internal/repository"
	"github.com/tembohq/sms-gateway/internal/smsenc"
	"github.com/tembohq/sms-gateway/internal/util"
)

var (
	ErrNoRecipients      = errors.New("no recipients")
	ErrTooManyRecipients = errors.New("too many recipients")
	ErrEmptyBody         = errors.New("empty message body")
	ErrMessageTooLong    = errors.New("message exceeds segment limit")
)

type rateGate interface {
	Check(ctx context.Context, credentialID string, overrides *ratelimit.Limits) error
}

type senderResolver interface {
	Resolve(ctx context.Context, tenantID int64, identifier string) (*model.SenderIdentity, error)
}

type creditLedger interface {
	ReserveTx(ctx context.Context, tx *sqlx.Tx, tenantID int64, batchID string, amount int64) (ledger.Reservation, error)
	CommitTx(ctx context.Context, tx *sqlx.Tx, res ledger.Reservation) error
	ReleaseTx(ctx context.Context, tx *sqlx.Tx, res ledger.Reservation) error
}

type messageDispatcher interface {
	Send(ctx context.Context, req dispatcher.SendRequest) (*dispatcher.Result, string, error)
}

// Request is one send on behalf of an authenticated credential.
type Request struct {
	Credential   *repository.Credential
	SenderID     string // empty selects the tenant's default identity
	Recipients   []string
	Body         string
	ScheduleTime *time.Time
}

// Response reports the accepted batch. MessageIDs are ordered like the
// request's recipients.
type Response struct {
	BatchID     string
	MessageIDs  []string
	Encoding    smsenc.Encoding
	Segments    int
	CostCredits int64
	Valid       int
	Invalid     int
	Duplicates  int
}

type Service struct {
	db       *sqlx.DB
	gate     rateGate
	senders  senderResolver
	messages repository.MessagesRepository
	outbox   repository.OutboxRepository
	credits  creditLedger
	disp     messageDispatcher
	sms      config.SMSConfig
	tracker  config.TrackerConfig
	log      *zap.Logger
}

func NewService(
	db *sqlx.DB,
	gate rateGate,
	senders senderResolver,
	messages repository.MessagesRepository,
	outbox repository.OutboxRepository,
	credits creditLedger,
	disp messageDispatcher,
	sms config.SMSConfig,
	tracker config.TrackerConfig,
	log *zap.Logger,
) *Service {
	return &Service{
		db:       db,
		gate:     gate,
		senders:  senders,
		messages: messages,
		outbox:   outbox,
		credits:  credits,
		disp:     disp,
		sms:      sms,
		tracker:  tracker,
		log:      log,
	}
}

// Send runs the full pipeline. The gate runs first so a limited request never
// touches sender or ledger state; a reservation that reached dispatch always
// ends in exactly one commit or release.
func (s *Service) Send(ctx context.Context, req Request) (*Response, error) {
	if len(req.Recipients) == 0 {
		return nil, ErrNoRecipients
	}
	if s.sms.MaxRecipients > 0 && len(req.Recipients) > s.sms.MaxRecipients {
		return nil, ErrTooManyRecipients
	}
	if req.Body == "" {
		return nil, ErrEmptyBody
	}

	if err := s.gate.Check(ctx, strconv.FormatInt(req.Credential.ID, 10), credentialLimits(req.Credential)); err != nil {
		var le *ratelimit.LimitedError
		if errors.As(err, &le) {
			metrics.RateLimitedTotal.WithLabelValues(string(le.Window)).Inc()
		}
		return nil, err
	}

	sender, err := s.senders.Resolve(ctx, req.Credential.TenantID, req.SenderID)
	if err != nil {
		return nil, err
	}

	enc, segments := smsenc.Encode(req.Body)
	if s.sms.MaxSegments > 0 && segments > s.sms.MaxSegments {
		return nil, ErrMessageTooLong
	}
	cost := int64(segments) * int64(len(req.Recipients))

	batchID := util.New()
	msgs := make([]model.Message, 0, len(req.Recipients))
	ids := make([]string, 0, len(req.Recipients))
	for _, raw := range req.Recipients {
		id := util.New()
		ids = append(ids, id)
		msgs = append(msgs, model.Message{
			ID:          id,
			BatchID:     batchID,
			TenantID:    req.Credential.TenantID,
			SenderID:    sender.ID,
			Sender:      sender.Identifier,
			DestAddr:    util.NormalizeDest(raw, req.Credential.CountryCode),
			Body:        req.Body,
			Encoding:    enc.String(),
			Segments:    segments,
			CostCredits: int64(segments),
			Status:      model.StatusQueued,
		})
	}

	res, err := s.reserveAndQueue(ctx, req.Credential.TenantID, batchID, cost, msgs)
	if err != nil {
		return nil, err
	}
	metrics.MessagesTotal.WithLabelValues("queued", enc.String()).Add(float64(len(msgs)))

	dreq := dispatcher.SendRequest{
		SourceAddr:   sender.Identifier,
		Body:         req.Body,
		Encoding:     enc,
		ScheduleTime: req.ScheduleTime,
		Recipients:   make([]dispatcher.Recipient, 0, len(msgs)),
	}
	for _, m := range msgs {
		dreq.Recipients = append(dreq.Recipients, dispatcher.Recipient{ID: m.ID, DestAddr: m.DestAddr})
	}

	result, providerName, sendErr := s.disp.Send(ctx, dreq)
	if sendErr != nil {
		if err := s.settleFailure(ctx, res, ids, sendErr); err != nil {
			s.log.Error("failed to settle after dispatch failure",
				zap.String("batch_id", batchID), zap.Error(err))
			return nil, err
		}
		metrics.MessagesTotal.WithLabelValues("failed", enc.String()).Add(float64(len(msgs)))
		return nil, sendErr
	}

	if err := s.settleSuccess(ctx, res, msgs, providerName, result.TrackingID); err != nil {
		s.log.Error("failed to settle after dispatch",
			zap.String("batch_id", batchID), zap.String("tracking_id", result.TrackingID), zap.Error(err))
		return nil, err
	}
	metrics.MessagesTotal.WithLabelValues("sent", enc.String()).Add(float64(len(msgs)))

	return &Response{
		BatchID:     batchID,
		MessageIDs:  ids,
		Encoding:    enc,
		Segments:    segments,
		CostCredits: cost,
		Valid:       result.Valid,
		Invalid:     result.Invalid,
		Duplicates:  result.Duplicates,
	}, nil
}

// reserveAndQueue debits the batch cost and persists the queued rows in one
// transaction, so an accepted batch always has its credits held.
func (s *Service) reserveAndQueue(ctx context.Context, tenantID int64, batchID string, cost int64, msgs []model.Message) (ledger.Reservation, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return ledger.Reservation{}, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := s.credits.ReserveTx(ctx, tx, tenantID, batchID, cost)
	if err != nil {
		return ledger.Reservation{}, err
	}
	if err := s.messages.InsertBatch(ctx, tx, msgs); err != nil {
		return ledger.Reservation{}, fmt.Errorf("queue messages: %w", err)
	}
	return res, tx.Commit()
}

// settleSuccess commits the reservation, marks the rows sent and enqueues one
// delivery-check job per message through the outbox, all atomically.
func (s *Service) settleSuccess(ctx context.Context, res ledger.Reservation, msgs []model.Message, providerName, trackingID string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.credits.CommitTx(ctx, tx, res); err != nil {
		return err
	}

	ids := make([]string, 0, len(msgs))
	for _, m := range msgs {
		ids = append(ids, m.ID)
	}
	if err := s.messages.MarkSent(ctx, tx, ids, providerName, trackingID); err != nil {
		return fmt.Errorf("mark sent: %w", err)
	}

	notBefore := time.Now().Add(s.tracker.InitialDelay)
	for _, m := range msgs {
		job := model.DeliveryCheckJob{
			MessageID:  m.ID,
			TenantID:   m.TenantID,
			Provider:   providerName,
			TrackingID: trackingID,
			DestAddr:   m.DestAddr,
			Attempt:    0,
			NotBefore:  notBefore,
		}
		payload, err := json.Marshal(job)
		if err != nil {
			return err
		}
		ev := model.OutboxEvent{
			Aggregate:   "message",
			AggregateID: m.ID,
			Topic:       s.tracker.Topic,
			Payload:     payload,
		}
		if err := s.outbox.Insert(ctx, tx, ev); err != nil {
			return fmt.Errorf("enqueue delivery check: %w", err)
		}
	}

	return tx.Commit()
}

// settleFailure refunds the reservation and fails the rows. The original
// dispatch error is what the caller reports; this only persists the outcome.
func (s *Service) settleFailure(ctx context.Context, res ledger.Reservation, ids []string, sendErr error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.credits.ReleaseTx(ctx, tx, res); err != nil {
		return err
	}

	code, msg := "DISPATCH_FAILED", sendErr.Error()
	var perr *dispatcher.ProviderError
	if errors.As(sendErr, &perr) {
		code, msg = perr.Code, perr.Message
	}
	if err := s.messages.MarkFailed(ctx, tx, ids, code, msg); err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}

	return tx.Commit()
}

func credentialLimits(c *repository.Credential) *ratelimit.Limits {
	if c.LimitPerMinute == nil && c.LimitPerHour == nil && c.LimitPerDay == nil {
		return nil
	}
	var l ratelimit.Limits
	if c.LimitPerMinute != nil {
		l.PerMinute = *c.LimitPerMinute
	}
	if c.LimitPerHour != nil {
		l.PerHour = *c.LimitPerHour
	}
	if c.LimitPerDay != nil {
		l.PerDay = *c.LimitPerDay
	}
	return &l
}
