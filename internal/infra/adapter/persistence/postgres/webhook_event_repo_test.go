package postgres_test

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/go-cmp/cmp"

	"farm-notify/internal/domain/entity"
	"farm-notify/internal/infra/adapter/persistence/postgres"
)

func sampleWebhook() *entity.WebhookEvent {
	return &entity.WebhookEvent{
		MessageID:         "m1",
		Provider:          entity.ChannelSMS,
		Event:             "status",
		Status:            entity.StatusFailed,
		Reason:            "carrier rejected",
		ProviderTimestamp: time.UnixMilli(1767225600000).UTC(),
		ReceivedAt:        time.Date(2026, 1, 1, 0, 0, 1, 0, time.UTC),
	}
}

func TestWebhookEventRepo_Append(t *testing.T) {
	tests := []struct {
		name     string
		affected int64
		want     bool
	}{
		{name: "first delivery is stored", affected: 1, want: true},
		{name: "replay is ignored", affected: 0, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, _ := sqlmock.New()
			defer func() { _ = db.Close() }()

			e := sampleWebhook()
			mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO webhook_events`)).
				WithArgs(e.DedupKey(), "m1", "sms", "status", "failed", "carrier rejected",
					e.ProviderTimestamp, e.ReceivedAt).
				WillReturnResult(sqlmock.NewResult(0, tt.affected))

			repo := postgres.NewWebhookEventRepo(db)
			got, err := repo.Append(context.Background(), e)
			if err != nil {
				t.Fatalf("Append err=%v", err)
			}
			if got != tt.want {
				t.Fatalf("Append stored=%v, want %v", got, tt.want)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Fatal(err)
			}
		})
	}
}

func TestWebhookEventRepo_ListByMessage(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	want := sampleWebhook()
	mock.ExpectQuery(`FROM webhook_events`).
		WithArgs("m1").
		WillReturnRows(sqlmock.NewRows([]string{
			"message_id", "provider", "event", "status", "reason", "provider_timestamp", "received_at",
		}).AddRow(
			want.MessageID, "sms", want.Event, "failed", want.Reason, want.ProviderTimestamp, want.ReceivedAt,
		))

	repo := postgres.NewWebhookEventRepo(db)
	got, err := repo.ListByMessage(context.Background(), "m1")
	if err != nil || len(got) != 1 {
		t.Fatalf("ListByMessage err=%v len=%d", err, len(got))
	}
	if diff := cmp.Diff(want, got[0]); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
}

func TestWebhookEventRepo_Remove(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM webhook_events WHERE dedup_key = $1`)).
		WithArgs("m1|failed|1767225600000").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM webhook_events`).
		WithArgs("m1|failed|a2").
		WillReturnError(errors.New("conn closed"))

	repo := postgres.NewWebhookEventRepo(db)
	if err := repo.Remove(context.Background(), "m1|failed|1767225600000"); err != nil {
		t.Fatalf("Remove err=%v", err)
	}
	err := repo.Remove(context.Background(), "m1|failed|a2")
	if err == nil || !strings.Contains(err.Error(), "Remove") {
		t.Fatalf("Remove err=%v, want wrapped error", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}
