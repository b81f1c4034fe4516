package utils

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"

	"dripmail/models"
	"dripmail/scheduler"

	"gopkg.in/gomail.v2"
)

func dialerFor(sender *models.Sender) *gomail.Dialer {
	port := sender.SMTPPort
	if port == 0 {
		port = 587
	}

	dialer := gomail.NewDialer(sender.SMTPHost, port, sender.SMTPUsername, sender.SMTPPassword)
	switch strings.ToLower(sender.Encryption) {
	case models.EncryptionSSL:
		dialer.SSL = true
	case models.EncryptionNone:
		// plaintext, test servers only
	default:
		dialer.TLSConfig = &tls.Config{ServerName: sender.SMTPHost}
	}
	return dialer
}

// ProbeSMTP connects and authenticates against the sender's SMTP server
// without transmitting a message, then disconnects.
func ProbeSMTP(ctx context.Context, sender *models.Sender) error {
	done := make(chan error, 1)
	go func() {
		closer, err := dialerFor(sender).Dial()
		if err != nil {
			done <- err
			return
		}
		done <- closer.Close()
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("smtp probe %s:%d: %w", sender.SMTPHost, sender.SMTPPort, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("smtp probe %s:%d: %w", sender.SMTPHost, sender.SMTPPort, ctx.Err())
	}
}

// SMTPMailer transmits rendered sequence emails through the sequence's
// sender account. It implements scheduler.Gateway.
type SMTPMailer struct{}

func NewSMTPMailer() *SMTPMailer {
	return &SMTPMailer{}
}

func (m *SMTPMailer) Send(ctx context.Context, d scheduler.Dispatch) error {
	msg := gomail.NewMessage()
	msg.SetAddressHeader("From", d.Sender.FromEmail, d.Sender.FromName)
	msg.SetHeader("To", d.To)
	msg.SetHeader("Subject", d.Subject)
	msg.SetHeader("Message-ID", d.MessageID)
	if d.TextBody != "" {
		msg.SetBody("text/plain", d.TextBody)
		if d.HTMLBody != "" {
			msg.AddAlternative("text/html", d.HTMLBody)
		}
	} else {
		msg.SetBody("text/html", d.HTMLBody)
	}

	dialer := dialerFor(&d.Sender)

	// gomail has no context support; the dial runs in a goroutine and the
	// caller's deadline decides how long we wait for it.
	done := make(chan error, 1)
	go func() {
		done <- dialer.DialAndSend(msg)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("smtp send to %s: %w", d.To, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("smtp send to %s: %w", d.To, ctx.Err())
	}
}
