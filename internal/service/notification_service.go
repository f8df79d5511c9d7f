package service

import (
	"context"
	"fmt"
	"log"
	"strings"

	"dovepay/config"
	"dovepay/internal/models"

	"github.com/wneessen/go-mail"
)

// NotificationService emails the merchant when a payment completes. Without
// SMTP settings it only logs.
type NotificationService struct {
	cfg config.SMTPConfig
}

func NewNotificationService(cfg config.SMTPConfig) *NotificationService {
	return &NotificationService{cfg: cfg}
}

func (s *NotificationService) enabled() bool {
	return s.cfg.Host != "" && s.cfg.From != "" && s.cfg.NotifyTo != ""
}

func (s *NotificationService) PaymentCompleted(ctx context.Context, t *models.Transaction) error {
	subject, body := completedEmail(t)
	if !s.enabled() {
		log.Printf("[NOTIFY] smtp not configured, skipping email: %s", subject)
		return nil
	}

	msg := mail.NewMsg()
	if err := msg.From(s.cfg.From); err != nil {
		return fmt.Errorf("from %q: %w", s.cfg.From, err)
	}
	if err := msg.To(strings.Split(s.cfg.NotifyTo, ",")...); err != nil {
		return fmt.Errorf("to %q: %w", s.cfg.NotifyTo, err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body)

	opts := []mail.Option{mail.WithPort(s.cfg.Port)}
	if s.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.cfg.Username),
			mail.WithPassword(s.cfg.Password),
		)
	}
	client, err := mail.NewClient(s.cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	log.Printf("[NOTIFY] payment email sent reference=%s", t.Reference)
	return nil
}

func completedEmail(t *models.Transaction) (subject, body string) {
	receipt := "-"
	if t.Receipt != nil && *t.Receipt != "" {
		receipt = *t.Receipt
	}
	subject = fmt.Sprintf("Payment received: KES %s from %s", t.Amount.StringFixed(0), t.Phone)
	var b strings.Builder
	fmt.Fprintf(&b, "A payment has been completed.\n\n")
	fmt.Fprintf(&b, "Reference:     %s\n", t.Reference)
	fmt.Fprintf(&b, "Amount:        KES %s\n", t.Amount.StringFixed(0))
	fmt.Fprintf(&b, "Phone:         %s\n", t.Phone)
	fmt.Fprintf(&b, "M-Pesa receipt: %s\n", receipt)
	fmt.Fprintf(&b, "Checkout ID:   %s\n", t.CorrelationID)
	fmt.Fprintf(&b, "Completed at:  %s\n", t.UpdatedAt.Format("2006-01-02 15:04:05 MST"))
	return subject, b.String()
}
