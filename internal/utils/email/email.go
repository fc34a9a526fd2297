package email

import (
	"fmt"
	"net/smtp"

	"github.com/jordan-wright/email"
	"github.com/sirupsen/logrus"

	"github.com/avolkov/bank-cards/internal/config"
)

// Sender handles sending emails via SMTP
type Sender struct {
	cfg    *config.Config
	logger *logrus.Logger
}

// NewSender creates a new email sender
func NewSender(cfg *config.Config, logger *logrus.Logger) *Sender {
	return &Sender{
		cfg:    cfg,
		logger: logger,
	}
}

// SendCardBlocked notifies the owner that a card was blocked.
func (s *Sender) SendCardBlocked(to, username, maskedNumber string) error {
	body := fmt.Sprintf(
		"Dear %s,\n\n"+
			"Your card %s has been blocked.\n"+
			"If you did not request this, please contact support immediately.\n"+
			"\nBest regards,\nBank Cards Service",
		username, maskedNumber,
	)
	return s.send(to, "Card Blocked Notification", body)
}

// SendCardExpired notifies the owner that a card has expired.
func (s *Sender) SendCardExpired(to, username, maskedNumber string) error {
	body := fmt.Sprintf(
		"Dear %s,\n\n"+
			"Your card %s has expired and can no longer be used.\n"+
			"Please issue a new card in your account.\n"+
			"\nBest regards,\nBank Cards Service",
		username, maskedNumber,
	)
	return s.send(to, "Card Expired Notification", body)
}

func (s *Sender) send(to, subject, body string) error {
	e := email.NewEmail()
	e.From = s.cfg.SenderEmail
	e.To = []string{to}
	e.Subject = subject
	e.Text = []byte(body)

	addr := fmt.Sprintf("%s:%s", s.cfg.SMTPHost, s.cfg.SMTPPort)
	auth := smtp.PlainAuth("", s.cfg.SMTPUsername, s.cfg.SMTPPassword, s.cfg.SMTPHost)
	if err := e.Send(addr, auth); err != nil {
		s.logger.Errorf("Failed to send email to %s: %v", to, err)
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Infof("Email sent to %s: %s", to, subject)
	return nil
}
