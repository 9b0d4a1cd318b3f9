package services

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"
)

// EmailService sends notifications through SendGrid
type EmailService struct {
	client    *sendgrid.Client
	fromEmail string
	fromName  string
}

func NewEmailService(apiKey, fromEmail, fromName string) *EmailService {
	return &EmailService{
		client:    sendgrid.NewSendClient(apiKey),
		fromEmail: fromEmail,
		fromName:  fromName,
	}
}

// Send delivers one notification as a plain + HTML email
func (s *EmailService) Send(ctx context.Context, n Notification) error {
	from := mail.NewEmail(s.fromName, s.fromEmail)
	to := mail.NewEmail("", n.Recipient)
	htmlContent := fmt.Sprintf("<p>%s</p>", strings.ReplaceAll(html.EscapeString(n.Body), "\n", "<br>"))

	message := mail.NewSingleEmail(from, n.Subject, to, n.Body, htmlContent)
	response, err := s.client.SendWithContext(ctx, message)
	if err != nil {
		return err
	}

	if response.StatusCode >= 400 {
		return fmt.Errorf("failed to send email to %s: %d", n.Recipient, response.StatusCode)
	}
	return nil
}

// LogSender only logs notifications. Used when no email provider is configured.
type LogSender struct {
	log *zap.Logger
}

func NewLogSender(log *zap.Logger) *LogSender {
	return &LogSender{log: log}
}

func (s *LogSender) Send(_ context.Context, n Notification) error {
	s.log.Info("Email disabled, notification logged only",
		zap.String("course_id", n.CourseID),
		zap.String("recipient", n.Recipient),
		zap.String("subject", n.Subject),
		zap.String("body", n.Body),
	)
	return nil
}
