// Package delivery applies provider delivery reports to messages. Both ingest
// paths land here: the tracker's polled lookups and the HTTP callback pushed
// by the upstream.
package delivery

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/tembohq/sms-gateway/internal/dispatcher"
	"github.com/tembohq/sms-gateway/internal/metrics"
	"github.com/tembohq/sms-gateway/internal/model"
	"github.com/tembohq/sms-gateway/internal/repository"
)

// Applier records delivery reports and moves messages to their terminal
// delivery state. Applying is idempotent: the report row dedupes on
// (message_id, status) and the status transition only fires from sent, so
// replays and late reports are absorbed without touching terminal rows.
type Applier struct {
	db       *sqlx.DB
	messages repository.MessagesRepository
	reports  repository.DeliveryReportsRepository
	log      *zap.Logger
}

func NewApplier(db *sqlx.DB, messages repository.MessagesRepository, reports repository.DeliveryReportsRepository, log *zap.Logger) *Applier {
	return &Applier{db: db, messages: messages, reports: reports, log: log}
}

// Apply records one report against the message and, for terminal statuses,
// transitions the row. Returns whether the message status changed.
func (a *Applier) Apply(ctx context.Context, msg *model.Message, status dispatcher.DeliveryStatus, raw []byte) (bool, error) {
	tx, err := a.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	trackingID := ""
	if msg.TrackingID != nil {
		trackingID = *msg.TrackingID
	}
	rep := model.DeliveryReport{
		MessageID:  msg.ID,
		TrackingID: trackingID,
		DestAddr:   msg.DestAddr,
		Status:     string(status),
		RawPayload: raw,
	}
	if err := a.reports.Insert(ctx, tx, rep); err != nil {
		return false, fmt.Errorf("record delivery report: %w", err)
	}

	var n int64
	switch status {
	case dispatcher.DeliveryDelivered:
		n, err = a.messages.MarkDelivered(ctx, tx, msg.ID)
	case dispatcher.DeliveryUndelivered:
		n, err = a.messages.MarkUndelivered(ctx, tx, msg.ID)
	default:
		// pending reports are journaled only
	}
	if err != nil {
		return false, fmt.Errorf("apply delivery status: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}

	if n > 0 {
		metrics.MessagesTotal.WithLabelValues(statusStage(status), msg.Encoding).Inc()
	} else if status != dispatcher.DeliveryPending {
		a.log.Debug("delivery report ignored, message already terminal",
			zap.String("message_id", msg.ID), zap.String("status", string(status)))
	}
	return n > 0, nil
}

// ApplyByTracking resolves the message from the provider's (tracking id,
// destination) pair, the key the callback path carries. Unknown pairs are
// dropped with a warning rather than erroring the upstream.
func (a *Applier) ApplyByTracking(ctx context.Context, trackingID, destAddr string, status dispatcher.DeliveryStatus, raw []byte) (bool, error) {
	msg, err := a.messages.GetByTracking(ctx, trackingID, destAddr)
	if err != nil {
		return false, err
	}
	if msg == nil {
		a.log.Warn("delivery report for unknown message",
			zap.String("tracking_id", trackingID), zap.String("dest_addr", destAddr))
		return false, nil
	}
	return a.Apply(ctx, msg, status, raw)
}

func statusStage(s dispatcher.DeliveryStatus) string {
	if s == dispatcher.DeliveryDelivered {
		return "delivered"
	}
	return "undelivered"
}
