package dispatcher

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tembohq/sms-gateway/internal/smsenc"
)

func beemForTest(sendURL, dlrURL string) *BeemProvider {
	return NewBeemProvider(BeemConfig{
		Name:        "beem",
		SendURL:     sendURL,
		DeliveryURL: dlrURL,
		APIKey:      "key",
		SecretKey:   "secret",
		CountryCode: "255",
		TimeoutMs:   2000,
	})
}

func TestBeemProvider_Send_Success(t *testing.T) {
	var got beemSendRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "key", user)
		assert.Equal(t, "secret", pass)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		_ = json.NewEncoder(w).Encode(beemSendResponse{
			Successful: true,
			RequestID:  35462,
			Valid:      2,
			Invalid:    0,
			Duplicates: 0,
		})
	}))
	defer srv.Close()

	p := beemForTest(srv.URL, "")

	res, err := p.Send(context.Background(), SendRequest{
		SourceAddr: "TEMBO",
		Body:       "hello",
		Encoding:   smsenc.GSM7,
		Recipients: []Recipient{
			{ID: "1", DestAddr: "0712000111"},
			{ID: "2", DestAddr: "+255713000222"},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "35462", res.TrackingID)
	assert.Equal(t, 2, res.Valid)

	assert.Equal(t, "TEMBO", got.SourceAddr)
	assert.Equal(t, 0, got.Encoding)
	assert.Equal(t, "hello", got.Message)
	require.Len(t, got.Recipients, 2)
	assert.Equal(t, "255712000111", got.Recipients[0].DestAddr)
	assert.Equal(t, "255713000222", got.Recipients[1].DestAddr)
	assert.Empty(t, got.ScheduleTime)
}

func TestBeemProvider_Send_ScheduleTime(t *testing.T) {
	var got beemSendRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(beemSendResponse{Successful: true, RequestID: 1, Valid: 1})
	}))
	defer srv.Close()

	p := beemForTest(srv.URL, "")

	at := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	_, err := p.Send(context.Background(), SendRequest{
		SourceAddr:   "TEMBO",
		Body:         "later",
		Recipients:   []Recipient{{ID: "1", DestAddr: "255712000111"}},
		ScheduleTime: &at,
	})
	require.NoError(t, err)

	assert.Equal(t, "2026-03-14 09:30", got.ScheduleTime)
}

func TestBeemProvider_Send_StructuredRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(beemSendResponse{Code: 105, Message: "Invalid Sender ID"})
	}))
	defer srv.Close()

	p := beemForTest(srv.URL, "")

	_, err := p.Send(context.Background(), SendRequest{
		SourceAddr: "NOPE",
		Body:       "hi",
		Recipients: []Recipient{{ID: "1", DestAddr: "255712000111"}},
	})
	require.Error(t, err)

	var perr *ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "105", perr.Code)
	assert.Equal(t, "Invalid Sender ID", perr.Message)
}

func TestBeemProvider_Send_HTTPFailureWithoutBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	p := beemForTest(srv.URL, "")

	_, err := p.Send(context.Background(), SendRequest{
		SourceAddr: "TEMBO",
		Body:       "hi",
		Recipients: []Recipient{{ID: "1", DestAddr: "255712000111"}},
	})

	var perr *ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "HTTP_502", perr.Code)
}

func TestBeemProvider_Send_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	p := beemForTest(srv.URL, "")

	_, err := p.Send(context.Background(), SendRequest{
		SourceAddr: "TEMBO",
		Body:       "hi",
		Recipients: []Recipient{{ID: "1", DestAddr: "255712000111"}},
	})

	var perr *ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "NETWORK_ERROR", perr.Code)
}

func TestBeemProvider_BreakerOpensAfterFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := beemForTest(srv.URL, "")
	req := SendRequest{
		SourceAddr: "TEMBO",
		Body:       "hi",
		Recipients: []Recipient{{ID: "1", DestAddr: "255712000111"}},
	}

	for i := 0; i < 3; i++ {
		require.True(t, p.Ready())
		_, err := p.Send(context.Background(), req)
		require.Error(t, err)
	}

	assert.False(t, p.Ready())
}

func TestBeemProvider_FetchDeliveryReport(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status DeliveryStatus
	}{
		{"delivered", `{"dest_addr":"255712000111","request_id":35462,"status":"DELIVERED"}`, DeliveryDelivered},
		{"undelivered", `{"dest_addr":"255712000111","request_id":35462,"status":"UNDELIVERED"}`, DeliveryUndelivered},
		{"rejected maps to undelivered", `{"status":"REJECTED"}`, DeliveryUndelivered},
		{"pending", `{"status":"PENDING"}`, DeliveryPending},
		{"unknown maps to pending", `{"status":"IN_TRANSIT"}`, DeliveryPending},
		{"array form", `[{"dest_addr":"255712000111","request_id":35462,"status":"DELIVERED"}]`, DeliveryDelivered},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "255712000111", r.URL.Query().Get("dest_addr"))
				assert.Equal(t, "35462", r.URL.Query().Get("request_id"))
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			p := beemForTest("", srv.URL)

			st, err := p.FetchDeliveryReport(context.Background(), "35462", "255712000111")
			require.NoError(t, err)
			assert.Equal(t, tc.status, st)
		})
	}
}

func TestBeemProvider_FetchDeliveryReport_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	p := beemForTest("", srv.URL)

	_, err := p.FetchDeliveryReport(context.Background(), "1", "255712000111")

	var perr *ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "HTTP_404", perr.Code)
}
