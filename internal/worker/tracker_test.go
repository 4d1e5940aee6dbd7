package worker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tembohq/sms-gateway/internal/config"
	"github.com/tembohq/sms-gateway/internal/dispatcher"
	"github.com/tembohq/sms-gateway/internal/model"
)

type fakeProducer struct {
	published []model.DeliveryCheckJob
	keys      []string
}

func (f *fakeProducer) Publish(ctx context.Context, key string, value []byte) error {
	var job model.DeliveryCheckJob
	if err := json.Unmarshal(value, &job); err != nil {
		return err
	}
	f.published = append(f.published, job)
	f.keys = append(f.keys, key)
	return nil
}

type fakeFetcher struct {
	status dispatcher.DeliveryStatus
	err    error
	calls  int
}

func (f *fakeFetcher) FetchDeliveryReport(ctx context.Context, providerName, trackingID, destAddr string) (dispatcher.DeliveryStatus, error) {
	f.calls++
	return f.status, f.err
}

type fakeApplier struct {
	applied []dispatcher.DeliveryStatus
}

func (f *fakeApplier) Apply(ctx context.Context, msg *model.Message, status dispatcher.DeliveryStatus, raw []byte) (bool, error) {
	f.applied = append(f.applied, status)
	return true, nil
}

type fakeLoader struct {
	msg *model.Message
}

func (f *fakeLoader) GetByID(ctx context.Context, id string) (*model.Message, error) {
	return f.msg, nil
}

func sentMsg() *model.Message {
	tracking := "35462"
	return &model.Message{
		ID:         "01MSG",
		TenantID:   7,
		Provider:   "beem",
		DestAddr:   "255712000111",
		Status:     model.StatusSent,
		TrackingID: &tracking,
	}
}

func trackerForTest(fetcher *fakeFetcher, loader *fakeLoader, applier *fakeApplier, producer *fakeProducer) *Tracker {
	return NewTracker(nil, producer, fetcher, loader, applier, config.TrackerConfig{
		Workers:     1,
		BackoffBase: time.Minute,
		MaxAttempts: 3,
	}, zap.NewNop())
}

func job(attempt int) model.DeliveryCheckJob {
	return model.DeliveryCheckJob{
		MessageID:  "01MSG",
		TenantID:   7,
		Provider:   "beem",
		TrackingID: "35462",
		DestAddr:   "255712000111",
		Attempt:    attempt,
		NotBefore:  time.Now().Add(-time.Second),
	}
}

func TestTracker_Process_AppliesTerminalStatus(t *testing.T) {
	fetcher := &fakeFetcher{status: dispatcher.DeliveryDelivered}
	applier := &fakeApplier{}
	producer := &fakeProducer{}
	tr := trackerForTest(fetcher, &fakeLoader{msg: sentMsg()}, applier, producer)

	require.NoError(t, tr.process(context.Background(), job(0)))

	assert.Equal(t, []dispatcher.DeliveryStatus{dispatcher.DeliveryDelivered}, applier.applied)
	assert.Empty(t, producer.published)
}

func TestTracker_Process_PendingReschedulesWithBackoff(t *testing.T) {
	fetcher := &fakeFetcher{status: dispatcher.DeliveryPending}
	producer := &fakeProducer{}
	tr := trackerForTest(fetcher, &fakeLoader{msg: sentMsg()}, &fakeApplier{}, producer)

	before := time.Now()
	require.NoError(t, tr.process(context.Background(), job(1)))

	require.Len(t, producer.published, 1)
	next := producer.published[0]
	assert.Equal(t, 2, next.Attempt)
	assert.Equal(t, "01MSG", producer.keys[0])
	// attempt 1 reschedules after backoff_base * 2
	assert.WithinDuration(t, before.Add(2*time.Minute), next.NotBefore, 2*time.Second)
}

func TestTracker_Process_ExhaustedAttemptsStopRescheduling(t *testing.T) {
	fetcher := &fakeFetcher{status: dispatcher.DeliveryPending}
	producer := &fakeProducer{}
	tr := trackerForTest(fetcher, &fakeLoader{msg: sentMsg()}, &fakeApplier{}, producer)

	require.NoError(t, tr.process(context.Background(), job(2)))

	assert.Empty(t, producer.published)
}

func TestTracker_Process_LookupErrorReschedules(t *testing.T) {
	fetcher := &fakeFetcher{err: &dispatcher.ProviderError{Code: "NETWORK_ERROR", Message: "timeout"}}
	producer := &fakeProducer{}
	tr := trackerForTest(fetcher, &fakeLoader{msg: sentMsg()}, &fakeApplier{}, producer)

	require.NoError(t, tr.process(context.Background(), job(0)))

	require.Len(t, producer.published, 1)
	assert.Equal(t, 1, producer.published[0].Attempt)
}

func TestTracker_Process_SkipsSettledMessage(t *testing.T) {
	delivered := sentMsg()
	delivered.Status = model.StatusDelivered
	fetcher := &fakeFetcher{status: dispatcher.DeliveryDelivered}
	applier := &fakeApplier{}
	tr := trackerForTest(fetcher, &fakeLoader{msg: delivered}, applier, &fakeProducer{})

	require.NoError(t, tr.process(context.Background(), job(0)))

	assert.Zero(t, fetcher.calls)
	assert.Empty(t, applier.applied)
}

func TestTracker_Process_HonorsNotBefore(t *testing.T) {
	fetcher := &fakeFetcher{status: dispatcher.DeliveryDelivered}
	tr := trackerForTest(fetcher, &fakeLoader{msg: sentMsg()}, &fakeApplier{}, &fakeProducer{})

	j := job(0)
	j.NotBefore = time.Now().Add(50 * time.Millisecond)

	start := time.Now()
	require.NoError(t, tr.process(context.Background(), j))
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestTracker_Process_CancelWhileWaiting(t *testing.T) {
	fetcher := &fakeFetcher{status: dispatcher.DeliveryDelivered}
	tr := trackerForTest(fetcher, &fakeLoader{msg: sentMsg()}, &fakeApplier{}, &fakeProducer{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	j := job(0)
	j.NotBefore = time.Now().Add(time.Hour)

	err := tr.process(ctx, j)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, fetcher.calls)
}
