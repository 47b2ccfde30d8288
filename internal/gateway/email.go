package gateway

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"github.com/smartdevs17/notification-engine/internal/config"
	"github.com/smartdevs17/notification-engine/internal/models"
)

// EmailSender delivers messages over SMTP
type EmailSender struct {
	config *config.EmailConfig
	logger *GatewayLogger
}

// NewEmailSender creates a new email sender
func NewEmailSender(cfg *config.EmailConfig, logger *GatewayLogger) *EmailSender {
	return &EmailSender{
		config: cfg,
		logger: logger.WithField("component", "email_sender"),
	}
}

// Type returns the channel type this sender serves
func (es *EmailSender) Type() string {
	return models.ChannelEmail
}

// ValidateRecipient checks the recipient is a plausible email address
func (es *EmailSender) ValidateRecipient(recipient string) error {
	if !IsValidEmail(recipient) {
		return NewPermanentError(fmt.Sprintf("invalid email address: %s", recipient), nil)
	}
	return nil
}

// Send delivers a single email
func (es *EmailSender) Send(ctx context.Context, req *SendRequest) (*SendResult, error) {
	startTime := time.Now()

	es.logger.LogSendAttempt(models.ChannelEmail, req.Recipient)

	if err := es.validate(req); err != nil {
		es.logger.LogSendResult(models.ChannelEmail, req.Recipient, false, time.Since(startTime), err)
		return nil, err
	}

	message := es.buildEmailMessage(req)

	var err error
	if es.config.UseTLS {
		err = es.sendTLS(req.Recipient, message)
	} else {
		err = es.sendPlain(req.Recipient, message)
	}

	duration := time.Since(startTime)
	es.logger.LogSendResult(models.ChannelEmail, req.Recipient, err == nil, duration, err)

	if err != nil {
		return nil, NewTransientError("failed to send email", err)
	}

	return &SendResult{Duration: duration}, nil
}

// Test sends a probe email to the configured from address
func (es *EmailSender) Test(ctx context.Context) error {
	_, err := es.Send(ctx, &SendRequest{
		Recipient: es.config.FromEmail,
		Subject:   "Gateway configuration test",
		Body:      "If you received this, the SMTP gateway is configured correctly.",
	})
	return err
}

func (es *EmailSender) validate(req *SendRequest) error {
	if es.config.SMTPHost == "" {
		return NewConfigError("SMTP host is not configured", nil)
	}
	if req.Subject == "" {
		return NewPermanentError("email subject is required", nil)
	}
	return es.ValidateRecipient(req.Recipient)
}

func (es *EmailSender) auth() smtp.Auth {
	if es.config.Username != "" && es.config.Password != "" {
		return smtp.PlainAuth("", es.config.Username, es.config.Password, es.config.SMTPHost)
	}
	return nil
}

// sendTLS sends email over an implicit TLS connection
func (es *EmailSender) sendTLS(to string, message string) error {
	addr := fmt.Sprintf("%s:%d", es.config.SMTPHost, es.config.SMTPPort)

	tlsConfig := &tls.Config{
		ServerName: es.config.SMTPHost,
	}

	conn, err := tls.Dial("tcp", addr, tlsConfig)
	if err != nil {
		return fmt.Errorf("failed to connect with TLS: %w", err)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, es.config.SMTPHost)
	if err != nil {
		return fmt.Errorf("failed to create SMTP client: %w", err)
	}
	defer client.Close()

	if auth := es.auth(); auth != nil {
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("authentication failed: %w", err)
		}
	}

	if err := client.Mail(es.config.FromEmail); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("failed to set recipient %s: %w", to, err)
	}

	writer, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to open data writer: %w", err)
	}
	defer writer.Close()

	if _, err := writer.Write([]byte(message)); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}

	return nil
}

// sendPlain sends email without implicit TLS; STARTTLS is negotiated by
// smtp.SendMail when the server offers it
func (es *EmailSender) sendPlain(to string, message string) error {
	addr := fmt.Sprintf("%s:%d", es.config.SMTPHost, es.config.SMTPPort)
	return smtp.SendMail(addr, es.auth(), es.config.FromEmail, []string{to}, []byte(message))
}

// buildEmailMessage builds the raw RFC 5322 message
func (es *EmailSender) buildEmailMessage(req *SendRequest) string {
	var message strings.Builder

	message.WriteString(fmt.Sprintf("From: %s <%s>\r\n", es.config.FromName, es.config.FromEmail))
	message.WriteString(fmt.Sprintf("To: %s\r\n", req.Recipient))
	message.WriteString(fmt.Sprintf("Subject: %s\r\n", req.Subject))
	message.WriteString("MIME-Version: 1.0\r\n")
	if req.HTML {
		message.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	} else {
		message.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	}
	message.WriteString(fmt.Sprintf("Date: %s\r\n", time.Now().Format(time.RFC1123Z)))
	message.WriteString("\r\n")
	message.WriteString(req.Body)

	return message.String()
}
