package dispatcher

import (
	"context"
	"sync/atomic"

	"github.com/tembohq/sms-gateway/internal/config"
)

var (
	ErrNoHealthy = &ProviderError{Code: "NO_HEALTHY_PROVIDER", Message: "no healthy providers"}
	ErrNoAcquire = &ProviderError{Code: "PROVIDER_BUSY", Message: "provider breaker refused the request"}
	errUnknown   = &ProviderError{Code: "UNKNOWN_PROVIDER", Message: "message references an unknown provider"}
)

// Dispatcher selects a healthy provider round-robin and performs exactly one
// dispatch attempt. Sends are never retried here: a failed attempt is
// refunded and surfaced, since resending risks duplicate billing and
// duplicate delivery. Only the delivery-status path retries, in the tracker.
type Dispatcher struct {
	providers         []Provider
	roundRobinCounter atomic.Uint64
}

func NewDispatcher(provs []Provider) *Dispatcher {
	return &Dispatcher{providers: provs}
}

// FromConfig builds the enabled adapters. The HTTP server and the tracker
// worker both construct their set from here, so send and status lookups see
// the same providers.
func FromConfig(cfgs []config.ProviderConfig) []Provider {
	provs := make([]Provider, 0, len(cfgs))
	for _, p := range cfgs {
		if !p.Enabled {
			continue
		}
		provs = append(provs, NewBeemProvider(BeemConfig{
			Name:                 p.Name,
			SendURL:              p.SendURL,
			DeliveryURL:          p.DeliveryURL,
			APIKey:               p.APIKey,
			SecretKey:            p.SecretKey,
			CountryCode:          p.CountryCode,
			TimeoutMs:            p.TimeoutMs,
			BreakerFailThreshold: p.Breaker.FailThreshold,
			BreakerOpenForMs:     p.Breaker.OpenForMs,
		}))
	}
	return provs
}

func (d *Dispatcher) selectProvider() (Provider, error) {
	healthy := make([]Provider, 0, len(d.providers))
	for _, p := range d.providers {
		if p.Ready() {
			healthy = append(healthy, p)
		}
	}

	if len(healthy) == 0 {
		return nil, ErrNoHealthy
	}

	x := d.roundRobinCounter.Add(1)
	idx := int((x - 1) % uint64(len(healthy)))

	return healthy[idx], nil
}

// Send dispatches once via a healthy provider and returns the provider's name
// alongside the normalized result.
func (d *Dispatcher) Send(ctx context.Context, req SendRequest) (*Result, string, error) {
	p, err := d.selectProvider()
	if err != nil {
		return nil, "", err
	}

	if !p.Acquire() {
		return nil, p.Name(), ErrNoAcquire
	}

	res, err := p.Send(ctx, req)
	if err != nil {
		return nil, p.Name(), err
	}
	return res, p.Name(), nil
}

// FetchDeliveryReport routes a status lookup to the provider that handled the
// original dispatch.
func (d *Dispatcher) FetchDeliveryReport(ctx context.Context, providerName, trackingID, destAddr string) (DeliveryStatus, error) {
	for _, p := range d.providers {
		if p.Name() == providerName {
			return p.FetchDeliveryReport(ctx, trackingID, destAddr)
		}
	}
	return "", errUnknown
}
