// Package notifier turns appointment events into client-facing messages.
package notifier

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/tmachado/agendly/libs/plan"
	"github.com/tmachado/agendly/services/notification-service/internal/sms"
	"github.com/tmachado/agendly/services/notification-service/internal/storage"
)

// Appointment mirrors the JSON body of booking.appointment.*.v1 events.
type Appointment struct {
	AppointmentID   string    `json:"appointment_id"`
	TenantSlug      string    `json:"tenant_slug"`
	StaffID         string    `json:"staff_id"`
	ServiceID       string    `json:"service_id"`
	ServiceName     string    `json:"service_name"`
	DurationMinutes int       `json:"duration_minutes"`
	ClientName      string    `json:"client_name"`
	ClientEmail     string    `json:"client_email"`
	ClientPhone     string    `json:"client_phone"`
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
	Status          string    `json:"status"`

	ConfirmationToken string `json:"confirmation_token"`
	CancelledBy       string `json:"cancelled_by"`
	CancelledReason   string `json:"cancelled_reason"`
}

type EmailSender interface {
	Send(to, subject, body string) error
}

type Store interface {
	Insert(ctx context.Context, n storage.Notification) error
	GetTenantInfo(ctx context.Context, slug string) (storage.TenantInfo, error)
}

type Config struct {
	// ConfirmBaseURL is the public endpoint the confirmation link points at.
	ConfirmBaseURL string
	// HoldMinutes is mentioned in the confirmation email so clients know how
	// long the slot is held.
	HoldMinutes int
}

type Notifier struct {
	email  EmailSender
	sms    sms.Sender
	store  Store
	logger *slog.Logger
	cfg    Config
}

func New(email EmailSender, smsSender sms.Sender, store Store, logger *slog.Logger, cfg Config) *Notifier {
	if cfg.HoldMinutes <= 0 {
		cfg.HoldMinutes = 10
	}
	return &Notifier{
		email:  email,
		sms:    smsSender,
		store:  store,
		logger: logger,
		cfg:    cfg,
	}
}

// HandlePending sends the confirmation-link email. It is transactional mail:
// the booking flow depends on it, so it goes out on every plan.
func (n *Notifier) HandlePending(ctx context.Context, appt Appointment) error {
	if appt.ConfirmationToken == "" {
		n.logger.Warn("pending event without confirmation token", "appointment_id", appt.AppointmentID)
		return nil
	}
	info, err := n.store.GetTenantInfo(ctx, appt.TenantSlug)
	if err != nil {
		return err
	}

	link := n.confirmationLink(appt.TenantSlug, appt.ConfirmationToken)
	subject := fmt.Sprintf("Confirm your %s appointment", appt.ServiceName)
	body := fmt.Sprintf(
		"Hi %s,\n\nYour %s appointment on %s is being held for %d minutes.\n\nConfirm it here: %s\n\nIf you did not request this booking, you can ignore this email.\n",
		clientGreeting(appt.ClientName),
		appt.ServiceName,
		formatLocal(appt.StartTime, info.Timezone),
		n.cfg.HoldMinutes,
		link,
	)
	return n.sendEmail(ctx, appt, subject, body)
}

// HandleConfirmed sends the booked confirmation. Courtesy mail, so it
// respects the tenant's plan.
func (n *Notifier) HandleConfirmed(ctx context.Context, appt Appointment) error {
	info, err := n.store.GetTenantInfo(ctx, appt.TenantSlug)
	if err != nil {
		return err
	}
	if !plan.ForTier(info.Plan).EmailNotifications {
		n.logger.Info("email notifications not in plan, skipping",
			"tenant", appt.TenantSlug, "appointment_id", appt.AppointmentID)
		return nil
	}

	when := formatLocal(appt.StartTime, info.Timezone)
	subject := fmt.Sprintf("Your %s appointment is confirmed", appt.ServiceName)
	body := fmt.Sprintf(
		"Hi %s,\n\nYour %s appointment is confirmed for %s (%d minutes).\n\nSee you then!\n",
		clientGreeting(appt.ClientName),
		appt.ServiceName,
		when,
		appt.DurationMinutes,
	)
	if err := n.sendEmail(ctx, appt, subject, body); err != nil {
		return err
	}

	if n.sms != nil && strings.TrimSpace(appt.ClientPhone) != "" {
		text := fmt.Sprintf("Confirmed: %s on %s", appt.ServiceName, when)
		n.recordSMS(ctx, appt, n.sms.Send(ctx, appt.ClientPhone, text))
	}
	return nil
}

// HandleCancelled tells the client their appointment is gone. Lazy expiry of
// unconfirmed holds also lands here, with cancelled_by=system.
func (n *Notifier) HandleCancelled(ctx context.Context, appt Appointment) error {
	info, err := n.store.GetTenantInfo(ctx, appt.TenantSlug)
	if err != nil {
		return err
	}
	if !plan.ForTier(info.Plan).EmailNotifications {
		return nil
	}

	subject := fmt.Sprintf("Your %s appointment was cancelled", appt.ServiceName)
	body := fmt.Sprintf(
		"Hi %s,\n\nYour %s appointment on %s has been cancelled.\n",
		clientGreeting(appt.ClientName),
		appt.ServiceName,
		formatLocal(appt.StartTime, info.Timezone),
	)
	if reason := strings.TrimSpace(appt.CancelledReason); reason != "" {
		body += fmt.Sprintf("\nReason: %s\n", reason)
	}
	return n.sendEmail(ctx, appt, subject, body)
}

// sendEmail delivers and records the attempt. A failed send is recorded and
// swallowed: the reservation already happened, retrying the event would just
// duplicate the row.
func (n *Notifier) sendEmail(ctx context.Context, appt Appointment, subject, body string) error {
	sendErr := n.email.Send(appt.ClientEmail, subject, body)

	rec := storage.Notification{
		AppointmentID: appt.AppointmentID,
		TenantSlug:    appt.TenantSlug,
		Channel:       "email",
		Recipient:     appt.ClientEmail,
		Status:        storage.StatusSent,
	}
	if sendErr != nil {
		rec.Status = storage.StatusFailed
		rec.ErrorReason = sendErr.Error()
		n.logger.Error("email send failed", "err", sendErr,
			"appointment_id", appt.AppointmentID, "recipient", appt.ClientEmail)
	}
	return n.store.Insert(ctx, rec)
}

func (n *Notifier) recordSMS(ctx context.Context, appt Appointment, sendErr error) {
	rec := storage.Notification{
		AppointmentID: appt.AppointmentID,
		TenantSlug:    appt.TenantSlug,
		Channel:       "sms",
		Recipient:     appt.ClientPhone,
		Status:        storage.StatusSent,
	}
	if sendErr != nil {
		rec.Status = storage.StatusFailed
		rec.ErrorReason = sendErr.Error()
		n.logger.Error("sms send failed", "err", sendErr, "appointment_id", appt.AppointmentID)
	}
	if err := n.store.Insert(ctx, rec); err != nil {
		n.logger.Error("notification record failed", "err", err)
	}
}

func (n *Notifier) confirmationLink(tenantSlug, token string) string {
	base := strings.TrimRight(n.cfg.ConfirmBaseURL, "/")
	q := url.Values{}
	q.Set("tenant", tenantSlug)
	q.Set("token", token)
	return base + "?" + q.Encode()
}

func clientGreeting(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "there"
	}
	return name
}

func formatLocal(t time.Time, timezone string) string {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		loc = time.UTC
	}
	return t.In(loc).Format("Monday, 2 January 2006 at 15:04")
}
