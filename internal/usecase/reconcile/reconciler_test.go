package reconcile_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"farm-notify/internal/domain/entity"
	"farm-notify/internal/infra/adapter/persistence/memory"
	"farm-notify/internal/usecase/ledger"
	"farm-notify/internal/usecase/reconcile"
)

type recordingScheduler struct {
	mu        sync.Mutex
	scheduled map[string]time.Time
	canceled  []string
}

func newRecordingScheduler() *recordingScheduler {
	return &recordingScheduler{scheduled: make(map[string]time.Time)}
}

func (s *recordingScheduler) Schedule(id string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scheduled[id] = at
}

func (s *recordingScheduler) Cancel(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.scheduled, id)
	s.canceled = append(s.canceled, id)
}

func setup(t *testing.T, base time.Duration) (*ledger.Ledger, *memory.DeliveryAttemptRepo) {
	t.Helper()
	repo := memory.NewDeliveryAttemptRepo()
	l := ledger.New(repo, ledger.RetryPolicy{Base: base, MaxRetries: 3})
	_, err := l.Create(context.Background(), "m1", entity.ChannelSMS, entity.DeliveryPayload{
		EventID:   "ev-1",
		Category:  entity.CategoryWeatherAlert,
		Body:      "Hail expected tonight",
		Recipient: entity.Recipient{UserID: 3, Phone: "+254700000001"},
	})
	require.NoError(t, err)
	return l, repo
}

func webhook(status entity.DeliveryStatus, ts int64) entity.WebhookEvent {
	return entity.WebhookEvent{
		MessageID:         "m1",
		Provider:          entity.ChannelSMS,
		Event:             "delivery_report",
		Status:            status,
		ProviderTimestamp: time.UnixMilli(ts),
	}
}

// m1 is sent, then three failed callbacks arrive, each after the scheduled
// resend went out. The first two schedule a retry; the third is terminal.
func TestProcessEvent_FailedCallbacksRetryUntilExhausted(t *testing.T) {
	l, _ := setup(t, 10*time.Millisecond)
	ctx := context.Background()

	var mu sync.Mutex
	resent := 0
	scheduler := reconcile.NewRetryScheduler(reconcile.WithWorkers(1))
	require.NoError(t, scheduler.Start(ctx, func(ctx context.Context, id string) error {
		_, err := l.MarkResent(ctx, id)
		mu.Lock()
		resent++
		mu.Unlock()
		return err
	}))
	t.Cleanup(scheduler.Stop)

	r := reconcile.NewReconciler(l, memory.NewWebhookEventRepo(), scheduler, nil)
	resentCount := func() int {
		mu.Lock()
		defer mu.Unlock()
		return resent
	}

	// first failure: attempts 2, retry after base*2
	start := time.Now()
	res := r.ProcessEvent(ctx, webhook(entity.StatusFailed, 1))
	require.Equal(t, reconcile.OutcomeApplied, res.Outcome)
	assert.Equal(t, 2, res.Attempts)
	require.NotNil(t, res.RetryAt)
	assert.WithinDuration(t, start.Add(20*time.Millisecond), *res.RetryAt, 15*time.Millisecond)
	require.Eventually(t, func() bool { return resentCount() == 1 }, time.Second, 5*time.Millisecond)

	got, err := l.Get(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusSent, got.Status)

	// second failure
	res = r.ProcessEvent(ctx, webhook(entity.StatusFailed, 2))
	require.Equal(t, reconcile.OutcomeApplied, res.Outcome)
	assert.Equal(t, 3, res.Attempts)
	require.NotNil(t, res.RetryAt)
	require.Eventually(t, func() bool { return resentCount() == 2 }, time.Second, 5*time.Millisecond)

	// third failure exhausts the budget
	res = r.ProcessEvent(ctx, webhook(entity.StatusFailed, 3))
	require.Equal(t, reconcile.OutcomeApplied, res.Outcome)
	assert.True(t, res.Exhausted)
	assert.Nil(t, res.RetryAt)
	assert.Zero(t, scheduler.Len())

	got, err = l.Get(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusFailed, got.Status)
	assert.True(t, got.Terminal())
	assert.Equal(t, 3, got.Attempts)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 2, resentCount())
}

func TestProcessEvent_UnknownMessageIsDiscarded(t *testing.T) {
	l, repo := setup(t, time.Second)
	scheduler := newRecordingScheduler()
	r := reconcile.NewReconciler(l, memory.NewWebhookEventRepo(), scheduler, nil)
	ctx := context.Background()

	ev := webhook(entity.StatusDelivered, 1)
	ev.MessageID = "m-unknown"

	assert.NotPanics(t, func() {
		res := r.ProcessEvent(ctx, ev)
		assert.Equal(t, reconcile.OutcomeUnknown, res.Outcome)
		assert.ErrorIs(t, res.Err, entity.ErrUnknownMessage)
	})

	missing, err := repo.Get(ctx, "m-unknown")
	require.NoError(t, err)
	assert.Nil(t, missing)
	m1, err := l.Get(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusSent, m1.Status)
	assert.Empty(t, scheduler.scheduled)
}

func TestProcessEvent_DuplicateIsDropped(t *testing.T) {
	l, _ := setup(t, time.Second)
	scheduler := newRecordingScheduler()
	archive := memory.NewWebhookEventRepo()
	r := reconcile.NewReconciler(l, archive, scheduler, nil)
	ctx := context.Background()

	first := r.ProcessEvent(ctx, webhook(entity.StatusFailed, 100))
	second := r.ProcessEvent(ctx, webhook(entity.StatusFailed, 100))

	assert.Equal(t, reconcile.OutcomeApplied, first.Outcome)
	assert.Equal(t, reconcile.OutcomeDuplicate, second.Outcome)
	assert.ErrorIs(t, second.Err, entity.ErrDuplicateWebhook)

	got, _ := l.Get(ctx, "m1")
	assert.Equal(t, 2, got.Attempts)

	archived, err := archive.ListByMessage(ctx, "m1")
	require.NoError(t, err)
	assert.Len(t, archived, 1)
	assert.False(t, archived[0].ReceivedAt.IsZero())
}

// Without an archive, replays still cannot move the entry twice.
func TestProcessEvent_ReplayWithoutArchiveIsIdempotent(t *testing.T) {
	l, _ := setup(t, time.Second)
	r := reconcile.NewReconciler(l, nil, newRecordingScheduler(), nil)
	ctx := context.Background()

	first := r.ProcessEvent(ctx, webhook(entity.StatusDelivered, 1))
	once, _ := l.Get(ctx, "m1")
	second := r.ProcessEvent(ctx, webhook(entity.StatusDelivered, 2))
	twice, _ := l.Get(ctx, "m1")

	assert.Equal(t, reconcile.OutcomeApplied, first.Outcome)
	assert.Equal(t, reconcile.OutcomeIgnored, second.Outcome)
	assert.Equal(t, entity.StatusDelivered, second.Status)
	assert.ErrorIs(t, second.Err, entity.ErrInvalidTransition)
	assert.Equal(t, once, twice)
}

func TestProcessEvent_TerminalStatusCancelsRetry(t *testing.T) {
	l, _ := setup(t, time.Second)
	scheduler := newRecordingScheduler()
	scheduler.Schedule("m1", time.Now().Add(time.Hour))
	r := reconcile.NewReconciler(l, memory.NewWebhookEventRepo(), scheduler, nil)

	res := r.ProcessEvent(context.Background(), webhook(entity.StatusBounced, 1))

	assert.Equal(t, reconcile.OutcomeApplied, res.Outcome)
	assert.Equal(t, entity.StatusBounced, res.Status)
	assert.Equal(t, []string{"m1"}, scheduler.canceled)
	assert.Empty(t, scheduler.scheduled)
}

func TestProcessEvent_Invalid(t *testing.T) {
	l, _ := setup(t, time.Second)
	r := reconcile.NewReconciler(l, memory.NewWebhookEventRepo(), nil, nil)
	ctx := context.Background()

	tests := []struct {
		name string
		ev   entity.WebhookEvent
	}{
		{name: "missing message id", ev: entity.WebhookEvent{Status: entity.StatusDelivered}},
		{name: "unknown status", ev: entity.WebhookEvent{MessageID: "m1", Status: "lost"}},
		{name: "push is not a webhook provider", ev: entity.WebhookEvent{MessageID: "m1", Provider: entity.ChannelPush, Status: entity.StatusDelivered}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := r.ProcessEvent(ctx, tt.ev)
			assert.Equal(t, reconcile.OutcomeInvalid, res.Outcome)
			assert.ErrorIs(t, res.Err, entity.ErrValidationFailed)
		})
	}

	got, _ := l.Get(ctx, "m1")
	assert.Equal(t, entity.StatusSent, got.Status)
}

type panickingRepo struct {
	*memory.DeliveryAttemptRepo
}

func (panickingRepo) Get(context.Context, string) (*entity.DeliveryAttempt, error) {
	panic("storage driver bug")
}

func TestProcessEvent_RecoversPanic(t *testing.T) {
	l := ledger.New(panickingRepo{memory.NewDeliveryAttemptRepo()}, ledger.DefaultRetryPolicy())
	r := reconcile.NewReconciler(l, nil, nil, nil)

	var res reconcile.Result
	assert.NotPanics(t, func() {
		res = r.ProcessEvent(context.Background(), webhook(entity.StatusDelivered, 1))
	})
	assert.Equal(t, reconcile.OutcomeError, res.Outcome)
	assert.Error(t, res.Err)
}

// flakyRepo fails the first Update, as a dropped database connection would.
type flakyRepo struct {
	*memory.DeliveryAttemptRepo
	mu    sync.Mutex
	fails int
}

func (r *flakyRepo) Update(ctx context.Context, a *entity.DeliveryAttempt) error {
	r.mu.Lock()
	if r.fails > 0 {
		r.fails--
		r.mu.Unlock()
		return errors.New("connection reset by peer")
	}
	r.mu.Unlock()
	return r.DeliveryAttemptRepo.Update(ctx, a)
}

func TestProcessEvent_StoreErrorAllowsRedelivery(t *testing.T) {
	// Arrange
	repo := &flakyRepo{DeliveryAttemptRepo: memory.NewDeliveryAttemptRepo(), fails: 1}
	l := ledger.New(repo, ledger.RetryPolicy{Base: time.Second, MaxRetries: 3})
	ctx := context.Background()
	_, err := l.Create(ctx, "m1", entity.ChannelSMS, entity.DeliveryPayload{
		EventID:   "ev-1",
		Category:  entity.CategoryWeatherAlert,
		Body:      "Hail expected tonight",
		Recipient: entity.Recipient{UserID: 3, Phone: "+254700000001"},
	})
	require.NoError(t, err)
	scheduler := newRecordingScheduler()
	archive := memory.NewWebhookEventRepo()
	r := reconcile.NewReconciler(l, archive, scheduler, nil)
	ev := webhook(entity.StatusFailed, 100)

	// Act
	first := r.ProcessEvent(ctx, ev)

	// Assert: nothing was recorded, so the gateway's resend is not a duplicate
	require.Equal(t, reconcile.OutcomeError, first.Outcome)
	assert.Error(t, first.Err)
	archived, err := archive.ListByMessage(ctx, "m1")
	require.NoError(t, err)
	assert.Empty(t, archived)
	got, _ := l.Get(ctx, "m1")
	assert.Equal(t, entity.StatusSent, got.Status)
	assert.Empty(t, scheduler.scheduled)

	second := r.ProcessEvent(ctx, ev)

	require.Equal(t, reconcile.OutcomeApplied, second.Outcome)
	assert.Equal(t, 2, second.Attempts)
	require.NotNil(t, second.RetryAt)
	assert.Contains(t, scheduler.scheduled, "m1")
	archived, _ = archive.ListByMessage(ctx, "m1")
	assert.Len(t, archived, 1)
}

// Gateways that omit the report timestamp send identical payloads for the
// first failure and the failure of its resend.
func TestProcessEvent_FailedWithoutTimestampAfterResend(t *testing.T) {
	l, _ := setup(t, time.Hour)
	scheduler := newRecordingScheduler()
	archive := memory.NewWebhookEventRepo()
	r := reconcile.NewReconciler(l, archive, scheduler, nil)
	ctx := context.Background()

	ev := webhook(entity.StatusFailed, 0)
	ev.ProviderTimestamp = time.Time{}

	first := r.ProcessEvent(ctx, ev)
	require.Equal(t, reconcile.OutcomeApplied, first.Outcome)
	assert.Equal(t, 2, first.Attempts)

	// a replay before the resend is rejected and leaves no trace
	replay := r.ProcessEvent(ctx, ev)
	assert.Equal(t, reconcile.OutcomeIgnored, replay.Outcome)
	assert.ErrorIs(t, replay.Err, entity.ErrInvalidTransition)

	_, err := l.MarkResent(ctx, "m1")
	require.NoError(t, err)

	second := r.ProcessEvent(ctx, ev)
	require.Equal(t, reconcile.OutcomeApplied, second.Outcome)
	assert.Equal(t, 3, second.Attempts)
	require.NotNil(t, second.RetryAt)

	got, _ := l.Get(ctx, "m1")
	assert.Equal(t, entity.StatusFailed, got.Status)
	assert.Equal(t, 3, got.Attempts)
	archived, _ := archive.ListByMessage(ctx, "m1")
	assert.Len(t, archived, 2)
}
