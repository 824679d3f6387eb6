package job

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paysync-backend/internal/domains/payment/model"
	"paysync-backend/internal/domains/payment/repository"
	"paysync-backend/internal/domains/payment/service"
	"paysync-backend/internal/domains/payment/session"
	"paysync-backend/internal/domains/payment/webhook"
	"paysync-backend/internal/infrastructure/email"
	"paysync-backend/internal/shared"
)

type fakeEnqueuer struct {
	tasks []*asynq.Task
	opts  [][]asynq.Option
	err   error
}

func (f *fakeEnqueuer) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	f.opts = append(f.opts, opts)
	return &asynq.TaskInfo{ID: "task-1", Type: task.Type()}, nil
}

func queueOf(opts []asynq.Option) string {
	for _, o := range opts {
		if o.Type() == asynq.QueueOpt {
			return o.Value().(string)
		}
	}
	return ""
}

type countingAlerter struct{ alerts []model.MerchantAlert }

func (a *countingAlerter) Alert(ctx context.Context, alert model.MerchantAlert) error {
	a.alerts = append(a.alerts, alert)
	return nil
}

func TestWebhookQueue_RoundTrip(t *testing.T) {
	ctx := context.Background()
	client := &fakeEnqueuer{}
	q := NewWebhookQueue(client)

	// spacing must survive untouched
	body := []byte(`{ "id": "WH-1",  "event_type": "PAYMENT.CAPTURE.COMPLETED", "resource": {"id": "CAP-9"} }`)
	require.NoError(t, q.Schedule(ctx, body, model.VerificationVerified))
	require.Len(t, client.tasks, 1)
	assert.Equal(t, shared.TypeDispatchWebhook, client.tasks[0].Type())
	assert.Equal(t, shared.QueueWebhooks, queueOf(client.opts[0]))

	var payload DispatchWebhookPayload
	require.NoError(t, json.Unmarshal(client.tasks[0].Payload(), &payload))
	assert.Equal(t, body, payload.Body)

	webhooks := repository.NewMemoryWebhookRepository()
	store := repository.NewMemoryTransactionStore()
	handler := NewDispatchWebhookHandler(webhook.NewDispatcher(store, webhooks))
	require.NoError(t, handler.ProcessTask(ctx, client.tasks[0]))

	rows, err := webhooks.ListRecent(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, model.VerificationVerified, rows[0].Verification)
}

func TestWebhookQueue_EnqueueFailure(t *testing.T) {
	q := NewWebhookQueue(&fakeEnqueuer{err: errors.New("redis down")})
	assert.Error(t, q.Schedule(context.Background(), []byte(`{}`), model.VerificationVerified))
}

func TestDispatchWebhookHandler_MalformedPayloadSkipsRetry(t *testing.T) {
	handler := NewDispatchWebhookHandler(webhook.NewDispatcher(
		repository.NewMemoryTransactionStore(), repository.NewMemoryWebhookRepository()))

	err := handler.ProcessTask(context.Background(), asynq.NewTask(shared.TypeDispatchWebhook, []byte("nope")))
	require.Error(t, err)
	assert.True(t, errors.Is(err, asynq.SkipRetry))
}

func TestQueueAlerter(t *testing.T) {
	alert := model.MerchantAlert{Kind: model.AlertPaymentDenied, OrderID: "1001", Message: "Capture denied."}

	t.Run("enqueues", func(t *testing.T) {
		client := &fakeEnqueuer{}
		fallback := &countingAlerter{}
		require.NoError(t, NewQueueAlerter(client, fallback).Alert(context.Background(), alert))
		require.Len(t, client.tasks, 1)
		assert.Equal(t, shared.TypeSendMerchantAlert, client.tasks[0].Type())
		assert.Equal(t, shared.QueueAlerts, queueOf(client.opts[0]))
		assert.Empty(t, fallback.alerts)
	})

	t.Run("falls back when the queue is down", func(t *testing.T) {
		fallback := &countingAlerter{}
		require.NoError(t, NewQueueAlerter(&fakeEnqueuer{err: errors.New("redis down")}, fallback).Alert(context.Background(), alert))
		require.Len(t, fallback.alerts, 1)
		assert.Equal(t, "1001", fallback.alerts[0].OrderID)
	})
}

type recordingMailer struct {
	sent []email.Message
	err  error
}

func (m *recordingMailer) Send(ctx context.Context, msg email.Message) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func alertTask(t *testing.T, alert model.MerchantAlert) *asynq.Task {
	t.Helper()
	data, err := json.Marshal(alert)
	require.NoError(t, err)
	return asynq.NewTask(shared.TypeSendMerchantAlert, data)
}

func TestMerchantAlertHandler(t *testing.T) {
	ctx := context.Background()
	alert := model.MerchantAlert{
		Kind:      model.AlertPaymentReversed,
		OrderID:   "2002",
		Message:   "PAYMENT.CAPTURE.REVERSED received for REF-1.",
		Details:   map[string]string{"webhook_id": "WH-4", "event_type": "PAYMENT.CAPTURE.REVERSED"},
		CreatedAt: time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC),
	}

	t.Run("emails recipients", func(t *testing.T) {
		mailer := &recordingMailer{}
		h := NewMerchantAlertHandler(mailer, []string{"ops@example.com"})
		require.NoError(t, h.ProcessTask(ctx, alertTask(t, alert)))

		require.Len(t, mailer.sent, 1)
		msg := mailer.sent[0]
		assert.Equal(t, []string{"ops@example.com"}, msg.To)
		assert.Equal(t, "Payment alert: payment reversed (order 2002)", msg.Subject)
		assert.Contains(t, msg.Body, "event_type: PAYMENT.CAPTURE.REVERSED\nwebhook_id: WH-4\n")
		assert.Contains(t, msg.Body, "2026-04-01T09:00:00Z")
	})

	t.Run("no recipients only logs", func(t *testing.T) {
		mailer := &recordingMailer{}
		require.NoError(t, NewMerchantAlertHandler(mailer, nil).ProcessTask(ctx, alertTask(t, alert)))
		assert.Empty(t, mailer.sent)
	})

	t.Run("mail failure is retried", func(t *testing.T) {
		mailer := &recordingMailer{err: errors.New("smtp: 421")}
		err := NewMerchantAlertHandler(mailer, []string{"ops@example.com"}).ProcessTask(ctx, alertTask(t, alert))
		require.Error(t, err)
		assert.False(t, errors.Is(err, asynq.SkipRetry))
	})
}

// openAuthStore serves a fixed list of orders and leaves the rest of the
// store unimplemented.
type openAuthStore struct {
	repository.TransactionStore
	orderIDs []string
	cutoff   time.Time
	limit    int
}

func (s *openAuthStore) ListOrdersWithOpenAuthorizations(ctx context.Context, createdBefore time.Time, limit int) ([]string, error) {
	s.cutoff, s.limit = createdBefore, limit
	return s.orderIDs, nil
}

type scriptedSyncer struct {
	scopes []session.Scope
	synced []string
	fail   map[string]bool
}

func (s *scriptedSyncer) Sync(ctx context.Context, scope session.Scope, orderID string) (*service.SyncResult, error) {
	s.scopes = append(s.scopes, scope)
	s.synced = append(s.synced, orderID)
	if s.fail[orderID] {
		return nil, errors.New("db unavailable")
	}
	return &service.SyncResult{Added: []model.Transaction{{OrderID: orderID}}}, nil
}

func TestReconcileOpenAuthorizations(t *testing.T) {
	now := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()

	t.Run("syncs every order and keeps going on errors", func(t *testing.T) {
		store := &openAuthStore{orderIDs: []string{"1", "2", "3"}}
		syncer := &scriptedSyncer{fail: map[string]bool{"2": true}}
		h := NewReconcileOpenAuthorizationsHandler(store, syncer)
		h.now = func() time.Time { return now }

		require.NoError(t, h.ProcessTask(ctx, asynq.NewTask(shared.TypeReconcileOpenAuthorizations, nil)))
		assert.Equal(t, []string{"1", "2", "3"}, syncer.synced)
		assert.Equal(t, now.AddDate(0, 0, -model.HonorPeriodDays), store.cutoff)
		assert.Equal(t, defaultBatchLimit, store.limit)
		for _, scope := range syncer.scopes {
			assert.Equal(t, model.SourceReconcile, scope.Source)
		}
	})

	t.Run("payload overrides", func(t *testing.T) {
		store := &openAuthStore{}
		h := NewReconcileOpenAuthorizationsHandler(store, &scriptedSyncer{})
		h.now = func() time.Time { return now }

		data, err := json.Marshal(ReconcileOpenAuthorizationsPayload{MinAgeDays: 20, Limit: 5})
		require.NoError(t, err)
		require.NoError(t, h.ProcessTask(ctx, asynq.NewTask(shared.TypeReconcileOpenAuthorizations, data)))
		assert.Equal(t, now.AddDate(0, 0, -20), store.cutoff)
		assert.Equal(t, 5, store.limit)
	})

	t.Run("all failing is retried", func(t *testing.T) {
		store := &openAuthStore{orderIDs: []string{"1"}}
		h := NewReconcileOpenAuthorizationsHandler(store, &scriptedSyncer{fail: map[string]bool{"1": true}})
		assert.Error(t, h.ProcessTask(ctx, asynq.NewTask(shared.TypeReconcileOpenAuthorizations, nil)))
	})
}
