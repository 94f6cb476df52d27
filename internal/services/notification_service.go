// internal/services/notification_service.go
package services

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/smtp"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/vendormatch-backend/internal/config"
	"github.com/javajoker/vendormatch-backend/internal/i18n"
	"github.com/javajoker/vendormatch-backend/internal/metrics"
	"github.com/javajoker/vendormatch-backend/internal/models"
)

// Message is one outbound email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Notifier delivers a message. Callers treat delivery as best effort.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPNotifier sends HTML email through the configured relay. Without a host
// it only logs, which is the local development mode.
type SMTPNotifier struct {
	config config.EmailConfig
}

func NewSMTPNotifier(cfg config.EmailConfig) *SMTPNotifier {
	return &SMTPNotifier{config: cfg}
}

func (n *SMTPNotifier) Send(ctx context.Context, msg Message) error {
	if n.config.SMTPHost == "" {
		// Email not configured, just log
		logrus.WithFields(logrus.Fields{
			"to":      msg.To,
			"subject": msg.Subject,
		}).Info("Email would be sent")
		return nil
	}

	// Setup authentication
	auth := smtp.PlainAuth("", n.config.SMTPUsername, n.config.SMTPPassword, n.config.SMTPHost)

	// Compose message
	from := n.config.FromEmail
	if n.config.FromName != "" {
		from = fmt.Sprintf("%s <%s>", n.config.FromName, n.config.FromEmail)
	}
	body := []byte(fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nContent-Type: text/html; charset=\"UTF-8\"\r\n\r\n%s", from, msg.To, msg.Subject, msg.Body))

	// Send email
	addr := fmt.Sprintf("%s:%s", n.config.SMTPHost, n.config.SMTPPort)
	return smtp.SendMail(addr, auth, n.config.FromEmail, []string{msg.To}, body)
}

type NotificationService struct {
	notifier Notifier
	config   *config.Config
}

func NewNotificationService(notifier Notifier, config *config.Config) *NotificationService {
	return &NotificationService{
		notifier: notifier,
		config:   config,
	}
}

// SendUnlockNotification tells the client which contacts were just unlocked.
// Failures are logged and swallowed.
func (s *NotificationService) SendUnlockNotification(ctx context.Context, transaction *models.Transaction, added []models.UnlockedOffering) {
	if len(added) == 0 {
		return
	}

	data := map[string]interface{}{
		"Offerings":      added,
		"TransactionURL": fmt.Sprintf("%s/transactions/%s", s.config.Frontend.BaseURL, transaction.SessionID),
	}
	s.dispatch(ctx, transaction, "unlock", data)
}

// SendSimilarUnlockNotification covers a paid similarity upsell.
func (s *NotificationService) SendSimilarUnlockNotification(ctx context.Context, transaction *models.Transaction, entry models.SimilarUnlock) {
	paid := make(map[uuid.UUID]bool, len(entry.UnlockedIDs))
	for _, id := range entry.UnlockedIDs {
		paid[id] = true
	}
	var items []models.SimilarItem
	for _, item := range entry.Items {
		if paid[item.OfferingID] {
			items = append(items, item)
		}
	}
	if len(items) == 0 {
		return
	}

	data := map[string]interface{}{
		"Items":          items,
		"TransactionURL": fmt.Sprintf("%s/transactions/%s", s.config.Frontend.BaseURL, transaction.SessionID),
	}
	s.dispatch(ctx, transaction, "similar_unlock", data)
}

func (s *NotificationService) dispatch(ctx context.Context, transaction *models.Transaction, templateType string, data map[string]interface{}) {
	logger := logrus.WithFields(logrus.Fields{
		"transaction_id": transaction.ID,
		"template":       templateType,
	})

	if transaction.ClientEmail == "" {
		logger.Debug("No client email, skipping notification")
		metrics.Notifications.WithLabelValues("skipped").Inc()
		return
	}

	body, err := s.renderTemplate(emailTemplates[templateType], data)
	if err != nil {
		logger.WithError(err).Error("Failed to render email template")
		metrics.Notifications.WithLabelValues("failed").Inc()
		return
	}

	msg := Message{
		To:      transaction.ClientEmail,
		Subject: i18n.T(s.config.I18n.DefaultLocale, i18n.KeyNotificationSubject),
		Body:    body,
	}
	if err := s.notifier.Send(ctx, msg); err != nil {
		logger.WithError(err).Warn("Failed to send notification")
		metrics.Notifications.WithLabelValues("failed").Inc()
		return
	}

	metrics.Notifications.WithLabelValues("sent").Inc()
}

func (s *NotificationService) renderTemplate(templateStr string, data interface{}) (string, error) {
	tmpl, err := template.New("email").Parse(templateStr)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}

	return buf.String(), nil
}

var emailTemplates = map[string]string{
	"unlock": `
<!DOCTYPE html>
<html>
<body>
	<h2>Your contacts are unlocked</h2>
	{{range .Offerings}}
	<h3>{{.Name}}</h3>
	<p>{{.Description}}</p>
	<ul>
		{{with .Contact.Email}}<li>Email: {{.}}</li>{{end}}
		{{with .Contact.Phone}}<li>Phone: {{.}}</li>{{end}}
		{{with .Contact.Whatsapp}}<li>WhatsApp: {{.}}</li>{{end}}
		{{with .Contact.Site}}<li>Site: {{.}}</li>{{end}}
	</ul>
	{{end}}
	<a href="{{.TransactionURL}}">View your results</a>
</body>
</html>`,
	"similar_unlock": `
<!DOCTYPE html>
<html>
<body>
	<h2>Your similar vendors are unlocked</h2>
	{{range .Items}}
	<h3>{{.Name}}</h3>
	<p>{{.Rationale}}</p>
	{{with .Contact}}
	<ul>
		{{with .Email}}<li>Email: {{.}}</li>{{end}}
		{{with .Site}}<li>Site: {{.}}</li>{{end}}
		{{with .Whatsapp}}<li>WhatsApp: {{.}}</li>{{end}}
	</ul>
	{{end}}
	{{end}}
	<a href="{{.TransactionURL}}">View your results</a>
</body>
</html>`,
}
