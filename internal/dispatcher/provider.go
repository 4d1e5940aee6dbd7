package dispatcher

import (
	"context"
	"encoding/json"
	"time"

	"github.com/tembohq/sms-gateway/internal/smsenc"
)

// DeliveryStatus is the normalized outcome of a delivery-report lookup.
type DeliveryStatus string

const (
	DeliveryDelivered   DeliveryStatus = "DELIVERED"
	DeliveryUndelivered DeliveryStatus = "UNDELIVERED"
	DeliveryPending     DeliveryStatus = "PENDING"
)

// Recipient addresses one destination; ID is echoed back by the upstream in
// delivery reports.
type Recipient struct {
	ID       string
	DestAddr string
}

// SendRequest is the provider-agnostic send shape. The encoding was decided
// upstream and adapters must pass it through unchanged.
type SendRequest struct {
	SourceAddr   string
	Body         string
	Encoding     smsenc.Encoding
	Recipients   []Recipient
	ScheduleTime *time.Time
}

// Result is a normalized successful dispatch.
type Result struct {
	TrackingID string
	Valid      int
	Invalid    int
	Duplicates int
	Raw        json.RawMessage
}

// ProviderError is the single error shape every upstream failure is folded
// into: network faults, non-2xx responses and structured rejections alike.
type ProviderError struct {
	Code    string
	Message string
}

func (e *ProviderError) Error() string {
	return "provider error " + e.Code + ": " + e.Message
}

// Provider adapts one upstream carrier. Implementations own all
// upstream-specific request shaping: auth, destination formatting and payload
// field names. Ready/Acquire expose the adapter's circuit breaker to the
// dispatcher.
type Provider interface {
	Name() string
	Ready() bool
	Acquire() bool
	Send(ctx context.Context, req SendRequest) (*Result, error)
	FetchDeliveryReport(ctx context.Context, trackingID, destAddr string) (DeliveryStatus, error)
}
