package notifier

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/tmachado/agendly/services/notification-service/internal/sms"
	"github.com/tmachado/agendly/services/notification-service/internal/storage"
)

type sentMail struct {
	to, subject, body string
}

type fakeEmail struct {
	sent []sentMail
	err  error
}

func (f *fakeEmail) Send(to, subject, body string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMail{to, subject, body})
	return nil
}

type fakeSMS struct {
	sent []string
}

func (f *fakeSMS) ProviderID() string { return "sms-fake" }

func (f *fakeSMS) Send(_ context.Context, to, body string) error {
	f.sent = append(f.sent, to+": "+body)
	return nil
}

type fakeStore struct {
	tenants map[string]storage.TenantInfo
	records []storage.Notification
}

func (f *fakeStore) Insert(_ context.Context, n storage.Notification) error {
	f.records = append(f.records, n)
	return nil
}

func (f *fakeStore) GetTenantInfo(_ context.Context, slug string) (storage.TenantInfo, error) {
	if info, ok := f.tenants[slug]; ok {
		return info, nil
	}
	return storage.TenantInfo{Plan: "basic", Timezone: "UTC"}, nil
}

func testAppointment() Appointment {
	return Appointment{
		AppointmentID:     "appt-1",
		TenantSlug:        "glow-studio",
		ServiceName:       "Haircut",
		DurationMinutes:   30,
		ClientName:        "Ana",
		ClientEmail:       "ana@example.com",
		ClientPhone:       "+5511999990000",
		StartTime:         time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC),
		EndTime:           time.Date(2026, 3, 2, 12, 30, 0, 0, time.UTC),
		Status:            "pending",
		ConfirmationToken: "tok-abc",
	}
}

func newTestNotifier(email *fakeEmail, smsSender sms.Sender, store *fakeStore) *Notifier {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(email, smsSender, store, logger, Config{
		ConfirmBaseURL: "https://book.example.com/confirm",
		HoldMinutes:    10,
	})
}

func TestPendingEmailCarriesConfirmationLink(t *testing.T) {
	email := &fakeEmail{}
	store := &fakeStore{tenants: map[string]storage.TenantInfo{
		"glow-studio": {Plan: "basic", Timezone: "UTC"},
	}}
	n := newTestNotifier(email, nil, store)

	if err := n.HandlePending(context.Background(), testAppointment()); err != nil {
		t.Fatalf("HandlePending: %v", err)
	}
	if len(email.sent) != 1 {
		t.Fatalf("expected 1 email, got %d", len(email.sent))
	}
	body := email.sent[0].body
	if !strings.Contains(body, "tenant=glow-studio") || !strings.Contains(body, "token=tok-abc") {
		t.Errorf("confirmation link missing from body:\n%s", body)
	}
	if !strings.Contains(body, "10 minutes") {
		t.Errorf("hold window missing from body:\n%s", body)
	}
	if len(store.records) != 1 || store.records[0].Status != storage.StatusSent {
		t.Errorf("expected one sent record, got %+v", store.records)
	}
}

func TestPendingSentEvenOnBasicPlan(t *testing.T) {
	email := &fakeEmail{}
	store := &fakeStore{tenants: map[string]storage.TenantInfo{
		"glow-studio": {Plan: "basic", Timezone: "UTC"},
	}}
	n := newTestNotifier(email, nil, store)

	if err := n.HandlePending(context.Background(), testAppointment()); err != nil {
		t.Fatal(err)
	}
	if len(email.sent) != 1 {
		t.Fatal("confirmation email is transactional and must go out on basic plan")
	}
}

func TestConfirmedSkippedOnBasicPlan(t *testing.T) {
	email := &fakeEmail{}
	store := &fakeStore{tenants: map[string]storage.TenantInfo{
		"glow-studio": {Plan: "basic", Timezone: "UTC"},
	}}
	n := newTestNotifier(email, nil, store)

	appt := testAppointment()
	appt.Status = "confirmed"
	if err := n.HandleConfirmed(context.Background(), appt); err != nil {
		t.Fatal(err)
	}
	if len(email.sent) != 0 {
		t.Error("basic plan must not get courtesy confirmation email")
	}
}

func TestConfirmedSendsEmailAndSMSOnPremium(t *testing.T) {
	email := &fakeEmail{}
	smsSender := &fakeSMS{}
	store := &fakeStore{tenants: map[string]storage.TenantInfo{
		"glow-studio": {Plan: "premium", Timezone: "America/Sao_Paulo"},
	}}
	n := newTestNotifier(email, smsSender, store)

	appt := testAppointment()
	appt.Status = "confirmed"
	if err := n.HandleConfirmed(context.Background(), appt); err != nil {
		t.Fatal(err)
	}
	if len(email.sent) != 1 {
		t.Fatalf("expected 1 email, got %d", len(email.sent))
	}
	// 12:00 UTC is 09:00 in Sao Paulo.
	if !strings.Contains(email.sent[0].body, "09:00") {
		t.Errorf("time should render in tenant timezone:\n%s", email.sent[0].body)
	}
	if len(smsSender.sent) != 1 {
		t.Fatalf("expected 1 sms, got %d", len(smsSender.sent))
	}
	if len(store.records) != 2 {
		t.Errorf("expected email+sms records, got %d", len(store.records))
	}
}

func TestCancelledIncludesReason(t *testing.T) {
	email := &fakeEmail{}
	store := &fakeStore{tenants: map[string]storage.TenantInfo{
		"glow-studio": {Plan: "premium", Timezone: "UTC"},
	}}
	n := newTestNotifier(email, nil, store)

	appt := testAppointment()
	appt.Status = "cancelled"
	appt.CancelledBy = "system"
	appt.CancelledReason = "confirmation window expired"
	if err := n.HandleCancelled(context.Background(), appt); err != nil {
		t.Fatal(err)
	}
	if len(email.sent) != 1 {
		t.Fatalf("expected 1 email, got %d", len(email.sent))
	}
	if !strings.Contains(email.sent[0].body, "confirmation window expired") {
		t.Errorf("reason missing from body:\n%s", email.sent[0].body)
	}
}

func TestFailedSendRecordedNotRetried(t *testing.T) {
	email := &fakeEmail{err: errors.New("smtp down")}
	store := &fakeStore{tenants: map[string]storage.TenantInfo{
		"glow-studio": {Plan: "premium", Timezone: "UTC"},
	}}
	n := newTestNotifier(email, nil, store)

	appt := testAppointment()
	appt.Status = "confirmed"
	if err := n.HandleConfirmed(context.Background(), appt); err != nil {
		t.Fatalf("send failure should not bubble up as retryable: %v", err)
	}
	if len(store.records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(store.records))
	}
	if store.records[0].Status != storage.StatusFailed || store.records[0].ErrorReason == "" {
		t.Errorf("failure should be recorded with reason, got %+v", store.records[0])
	}
}
