package mailer

import (
	"fmt"
	"html"
	"strings"

	"logistics-admin-be/internal/model"
	"logistics-admin-be/internal/pkg/logger"

	"gopkg.in/gomail.v2"
)

type IEmailService interface {
	SendNotification(toEmail, fullName string, notification model.Notification) error
}

type dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

type emailService struct {
	dialer      dialer
	senderEmail string
	senderName  string
	consoleURL  string
	logger      logger.Logger
}

func NewEmailService(host string, port int, username, password, senderEmail, senderName, consoleURL string, log logger.Logger) IEmailService {
	return &emailService{
		dialer:      gomail.NewDialer(host, port, username, password),
		senderEmail: senderEmail,
		senderName:  senderName,
		consoleURL:  strings.TrimRight(consoleURL, "/"),
		logger:      log,
	}
}

// SendNotification mails the notification to a recipient who opted in to the
// email channel.
func (s *emailService) SendNotification(toEmail, fullName string, notification model.Notification) error {
	m := s.buildMessage(toEmail, fullName, notification)

	if err := s.dialer.DialAndSend(m); err != nil {
		s.logger.Error("Mailer", "Failed to send notification email", map[string]interface{}{
			"to":              toEmail,
			"notification_id": notification.ID,
			"error":           err.Error(),
		})
		return err
	}

	s.logger.Info("Mailer", "Notification email sent", map[string]interface{}{"to": toEmail, "notification_id": notification.ID})
	return nil
}

func (s *emailService) buildMessage(toEmail, fullName string, n model.Notification) *gomail.Message {
	m := gomail.NewMessage()
	m.SetAddressHeader("From", s.senderEmail, s.senderName)
	m.SetHeader("To", toEmail)
	m.SetHeader("Subject", n.Title)

	greeting := "Hello"
	if fullName != "" {
		greeting = "Hello " + html.EscapeString(fullName)
	}
	link := fmt.Sprintf("%s/notifications?highlight=%s", s.consoleURL, n.ID)

	body := fmt.Sprintf(`
		<div style="font-family: Arial, sans-serif; padding: 20px; color: #333;">
			<p>%s,</p>
			<h2>%s</h2>
			<p>%s</p>
			<a href="%s" style="background-color: #1F6FEB; color: white; padding: 10px 20px; text-decoration: none; border-radius: 5px; display: inline-block;">Open in console</a>
			<p style="color: #888; font-size: 12px;">You can turn off email notifications in your profile settings.</p>
		</div>
	`, greeting, html.EscapeString(n.Title), html.EscapeString(n.Message), link)

	m.SetBody("text/html", body)
	return m
}
