package services

import (
	"errors"
	"fmt"
	"net/smtp"
	"strings"

	"estate_backoffice/internal/config"
)

// ErrSMTPNotConfigured is returned when SMTP credentials are missing
var ErrSMTPNotConfigured = errors.New("SMTP credentials not fully configured")

// EmailSender delivers a plain-text email
type EmailSender interface {
	SendEmail(to []string, subject, body string) error
}

type EmailService struct {
	host     string
	port     string
	user     string
	password string
	from     string
	send     func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewEmailService(cfg config.SMTPConfig) *EmailService {
	return &EmailService{
		host:     cfg.Host,
		port:     cfg.Port,
		user:     cfg.User,
		password: cfg.Password,
		from:     cfg.From,
		send:     smtp.SendMail,
	}
}

func (s *EmailService) SendEmail(to []string, subject, body string) error {
	if s.host == "" || s.port == "" || s.user == "" || s.password == "" {
		return ErrSMTPNotConfigured
	}
	if len(to) == 0 {
		return fmt.Errorf("no recipients")
	}

	auth := smtp.PlainAuth("", s.user, s.password, s.host)

	message := []byte(fmt.Sprintf("From: %s\r\n"+
		"To: %s\r\n"+
		"Subject: %s\r\n"+
		"Content-Type: text/plain; charset=UTF-8\r\n"+
		"\r\n"+
		"%s\r\n", s.from, strings.Join(to, ", "), subject, body))

	addr := fmt.Sprintf("%s:%s", s.host, s.port)

	if err := s.send(addr, auth, s.from, to, message); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	return nil
}
