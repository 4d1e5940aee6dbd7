package dispatcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tembohq/sms-gateway/internal/metrics"
	"github.com/tembohq/sms-gateway/internal/util"
)

// BeemConfig carries everything a BeemProvider needs at construction;
// adapters never read credentials from the environment themselves.
type BeemConfig struct {
	Name                 string
	SendURL              string
	DeliveryURL          string
	APIKey               string
	SecretKey            string
	CountryCode          string // default calling code for short local destinations
	TimeoutMs            int
	BreakerFailThreshold int
	BreakerOpenForMs     int
}

// BeemProvider speaks the Beem-style HTTP API: JSON over TLS with Basic auth,
// one send endpoint taking a recipient batch, and a delivery-report endpoint
// polled per (tracking id, destination).
type BeemProvider struct {
	name        string
	sendURL     string
	deliveryURL string
	apiKey      string
	secretKey   string
	countryCode string
	client      *http.Client
	br          *MicroBreaker
}

func NewBeemProvider(cfg BeemConfig) *BeemProvider {
	if cfg.TimeoutMs <= 0 {
		cfg.TimeoutMs = 30000
	}
	if cfg.BreakerFailThreshold <= 0 {
		cfg.BreakerFailThreshold = 3
	}
	if cfg.BreakerOpenForMs <= 0 {
		cfg.BreakerOpenForMs = 15000
	}
	name := cfg.Name
	if name == "" {
		name = "beem"
	}

	return &BeemProvider{
		name:        name,
		sendURL:     cfg.SendURL,
		deliveryURL: cfg.DeliveryURL,
		apiKey:      cfg.APIKey,
		secretKey:   cfg.SecretKey,
		countryCode: cfg.CountryCode,
		client:      &http.Client{Timeout: time.Duration(cfg.TimeoutMs) * time.Millisecond},
		br:          NewMicroBreaker(cfg.BreakerFailThreshold, time.Duration(cfg.BreakerOpenForMs)*time.Millisecond),
	}
}

func (p *BeemProvider) Name() string  { return p.name }
func (p *BeemProvider) Ready() bool   { return p.br.Ready() }
func (p *BeemProvider) Acquire() bool { return p.br.TryAcquire() }

type beemRecipient struct {
	RecipientID string `json:"recipient_id"`
	DestAddr    string `json:"dest_addr"`
}

type beemSendRequest struct {
	SourceAddr   string          `json:"source_addr"`
	Encoding     int             `json:"encoding"`
	Message      string          `json:"message"`
	Recipients   []beemRecipient `json:"recipients"`
	ScheduleTime string          `json:"schedule_time,omitempty"`
}

type beemSendResponse struct {
	Successful bool   `json:"successful"`
	RequestID  int64  `json:"request_id"`
	Code       int    `json:"code"`
	Message    string `json:"message"`
	Valid      int    `json:"valid"`
	Invalid    int    `json:"invalid"`
	Duplicates int    `json:"duplicates"`
}

func (p *BeemProvider) Send(ctx context.Context, req SendRequest) (*Result, error) {
	body := beemSendRequest{
		SourceAddr: req.SourceAddr,
		Encoding:   int(req.Encoding),
		Message:    req.Body,
		Recipients: make([]beemRecipient, 0, len(req.Recipients)),
	}
	for _, rc := range req.Recipients {
		body.Recipients = append(body.Recipients, beemRecipient{
			RecipientID: rc.ID,
			DestAddr:    util.NormalizeDest(rc.DestAddr, p.countryCode),
		})
	}
	if req.ScheduleTime != nil {
		body.ScheduleTime = req.ScheduleTime.UTC().Format("2006-01-02 15:04")
	}

	start := time.Now()
	raw, status, err := p.post(ctx, p.sendURL, body)
	outcome := "ok"
	if err != nil || status/100 != 2 {
		outcome = "error"
	}
	metrics.ProviderRequestDuration.WithLabelValues(p.name, "send", outcome).Observe(time.Since(start).Seconds())

	if err != nil {
		p.br.OnFailure()
		return nil, &ProviderError{Code: "NETWORK_ERROR", Message: err.Error()}
	}

	var resp beemSendResponse
	if jsonErr := json.Unmarshal(raw, &resp); jsonErr != nil && status/100 == 2 {
		p.br.OnFailure()
		return nil, &ProviderError{Code: "BAD_RESPONSE", Message: "unparseable provider response"}
	}

	if status/100 != 2 || !resp.Successful {
		p.br.OnFailure()
		code := "HTTP_" + strconv.Itoa(status)
		if resp.Code != 0 {
			code = strconv.Itoa(resp.Code)
		}
		msg := resp.Message
		if msg == "" {
			msg = fmt.Sprintf("upstream rejected send (status %d)", status)
		}
		return nil, &ProviderError{Code: code, Message: msg}
	}

	p.br.OnSuccess()
	return &Result{
		TrackingID: strconv.FormatInt(resp.RequestID, 10),
		Valid:      resp.Valid,
		Invalid:    resp.Invalid,
		Duplicates: resp.Duplicates,
		Raw:        raw,
	}, nil
}

type beemDeliveryResponse struct {
	DestAddr  string `json:"dest_addr"`
	RequestID int64  `json:"request_id"`
	Status    string `json:"status"`
}

func (p *BeemProvider) FetchDeliveryReport(ctx context.Context, trackingID, destAddr string) (DeliveryStatus, error) {
	q := url.Values{}
	q.Set("dest_addr", destAddr)
	q.Set("request_id", trackingID)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.deliveryURL+"?"+q.Encode(), nil)
	if err != nil {
		return "", &ProviderError{Code: "REQUEST_ERROR", Message: err.Error()}
	}
	httpReq.SetBasicAuth(p.apiKey, p.secretKey)
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	res, err := p.client.Do(httpReq)
	if err != nil {
		metrics.ProviderRequestDuration.WithLabelValues(p.name, "dlr", "error").Observe(time.Since(start).Seconds())
		return "", &ProviderError{Code: "NETWORK_ERROR", Message: err.Error()}
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		metrics.ProviderRequestDuration.WithLabelValues(p.name, "dlr", "error").Observe(time.Since(start).Seconds())
		return "", &ProviderError{Code: "NETWORK_ERROR", Message: err.Error()}
	}
	metrics.ProviderRequestDuration.WithLabelValues(p.name, "dlr", "ok").Observe(time.Since(start).Seconds())

	if res.StatusCode/100 != 2 {
		return "", &ProviderError{
			Code:    "HTTP_" + strconv.Itoa(res.StatusCode),
			Message: fmt.Sprintf("delivery report lookup failed (status %d)", res.StatusCode),
		}
	}

	// reports come back as a single object or a one-element array
	var rep beemDeliveryResponse
	if err := json.Unmarshal(raw, &rep); err != nil {
		var reps []beemDeliveryResponse
		if err := json.Unmarshal(raw, &reps); err != nil || len(reps) == 0 {
			return "", &ProviderError{Code: "BAD_RESPONSE", Message: "unparseable delivery report"}
		}
		rep = reps[0]
	}

	switch strings.ToUpper(rep.Status) {
	case "DELIVERED":
		return DeliveryDelivered, nil
	case "UNDELIVERED", "REJECTED", "EXPIRED":
		return DeliveryUndelivered, nil
	default:
		return DeliveryPending, nil
	}
}

func (p *BeemProvider) post(ctx context.Context, endpoint string, payload any) ([]byte, int, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(b))
	if err != nil {
		return nil, 0, err
	}
	req.SetBasicAuth(p.apiKey, p.secretKey)
	req.Header.Set("Content-Type", "application/json")

	res, err := p.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, 0, err
	}
	return raw, res.StatusCode, nil
}
