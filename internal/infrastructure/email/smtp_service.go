package email

// internal/infrastructure/email/smtp_service.go
import (
	"context"
	"errors"
	"fmt"
	"net/smtp"
	"strings"

	"paysync-backend/pkg/logger"
)

type EmailService interface {
	Send(ctx context.Context, msg Message) error
}

type SMTPConfig struct {
	Host     string
	Port     string
	Username string // empty for unauthenticated relays
	Password string
	From     string
}

type smtpEmailService struct {
	smtpAddr string
	smtpFrom string
	auth     smtp.Auth
	send     func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTPEmailService(cfg SMTPConfig) EmailService {
	s := &smtpEmailService{
		smtpAddr: cfg.Host + ":" + cfg.Port,
		smtpFrom: cfg.From,
		send:     smtp.SendMail,
	}
	if s.smtpFrom == "" {
		s.smtpFrom = "noreply@paysync.local"
	}
	if cfg.Username != "" {
		s.auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	return s
}

func (s *smtpEmailService) Send(ctx context.Context, msg Message) error {
	if len(msg.To) == 0 {
		return errors.New("email has no recipients")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	data := []byte(fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n%s",
		s.smtpFrom, strings.Join(msg.To, ", "), msg.Subject, msg.Body))

	if err := s.send(s.smtpAddr, s.auth, s.smtpFrom, msg.To, data); err != nil {
		logger.Info("Failed to send email", map[string]interface{}{
			"error":     err.Error(),
			"to":        msg.To,
			"smtp_addr": s.smtpAddr,
		})
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}
