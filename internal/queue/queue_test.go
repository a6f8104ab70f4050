package queue_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/hyggeo/campaign-service/internal/errors"
	"github.com/hyggeo/campaign-service/internal/model"
	"github.com/hyggeo/campaign-service/internal/queue"
)

func newQueue() *queue.InMemoryQueue {
	q := queue.NewInMemoryQueue(zerolog.Nop())
	q.Backoff = time.Millisecond
	return q
}

func TestPublishWithoutSubscribers(t *testing.T) {
	q := newQueue()
	err := q.Publish(context.Background(), queue.CampaignSendsTopic, queue.SendJob{CampaignID: 1})
	assert.Error(t, err)
}

func TestInMemoryQueueRetriesUntilSuccess(t *testing.T) {
	q := newQueue()
	ctx := context.Background()

	var (
		mu       sync.Mutex
		attempts int
		got      queue.SendJob
	)
	require.NoError(t, q.Subscribe(ctx, queue.CampaignSendsTopic, func(ctx context.Context, body []byte) error {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		if attempts < 3 {
			return errors.New("database is starting up")
		}
		return json.Unmarshal(body, &got)
	}))

	require.NoError(t, q.Publish(ctx, queue.CampaignSendsTopic, queue.SendJob{CampaignID: 42}))
	require.NoError(t, q.Close())

	assert.Equal(t, 3, attempts)
	assert.Equal(t, int64(42), got.CampaignID)
}

func TestInMemoryQueueGivesUpAfterMaxRetries(t *testing.T) {
	q := newQueue()
	q.MaxRetries = 2
	ctx := context.Background()

	var (
		mu       sync.Mutex
		attempts int
	)
	require.NoError(t, q.Subscribe(ctx, "t", func(ctx context.Context, body []byte) error {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		return errors.New("always broken")
	}))

	require.NoError(t, q.Publish(ctx, "t", map[string]int{"x": 1}))
	require.NoError(t, q.Close())
	assert.Equal(t, 3, attempts)
}

// stubSender returns a fixed result.
type stubSender struct {
	mu    sync.Mutex
	calls []int64
	err   error
}

func (s *stubSender) SendCampaign(ctx context.Context, id int64) (*model.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, id)
	if s.err != nil {
		return nil, s.err
	}
	return &model.Campaign{ID: id, Status: model.CampaignSent}, nil
}

func TestSendJobHandler(t *testing.T) {
	ctx := context.Background()
	body := []byte(`{"campaign_id":7}`)

	tests := []struct {
		name    string
		body    []byte
		err     error
		wantErr bool
		calls   int
	}{
		{"success", body, nil, false, 1},
		{"malformed body is dropped", []byte(`not json`), nil, false, 0},
		{"missing id is dropped", []byte(`{}`), nil, false, 0},
		{"transition is permanent", body, &appErrors.InvalidTransitionError{CampaignID: 7, From: "sent", To: "sending"}, false, 1},
		{"empty audience is permanent", body, &appErrors.EmptyAudienceError{Audience: "all"}, false, 1},
		{"inactive template is permanent", body, &appErrors.TemplateInactiveError{TemplateID: 1}, false, 1},
		{"not found is permanent", body, appErrors.NewCampaignNotFound(7), false, 1},
		{"transient is retried", body, errors.New("connection refused"), true, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender := &stubSender{err: tt.err}
			h := queue.SendJobHandler(sender, zerolog.Nop())

			err := h(ctx, tt.body)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Len(t, sender.calls, tt.calls)
		})
	}
}

func TestStartCampaignSendSubscriber(t *testing.T) {
	q := newQueue()
	sender := &stubSender{}
	ctx := context.Background()

	require.NoError(t, queue.StartCampaignSendSubscriber(ctx, q, sender, zerolog.Nop()))
	require.NoError(t, q.Publish(ctx, queue.CampaignSendsTopic, queue.SendJob{CampaignID: 3}))
	require.NoError(t, q.Close())

	assert.Equal(t, []int64{3}, sender.calls)
}
