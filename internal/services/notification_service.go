// internal/services/notification_service.go
package services

import (
	"bytes"
	"context"
	"fmt"
	htmltemplate "html/template"
	texttemplate "text/template"

	"github.com/go-mail/mail/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/javajoker/wildlife-licensing/internal/config"
	"github.com/javajoker/wildlife-licensing/internal/metrics"
	"github.com/javajoker/wildlife-licensing/internal/models"
)

// Notifier delivers workflow emails and reports a delivery record for each attempt.
type Notifier interface {
	Notify(ctx context.Context, msg *Message) (*models.EmailLog, error)
}

type Attachment struct {
	Filename string
	Data     []byte
}

type Message struct {
	Template     string
	To           []string
	CC           []string
	Data         map[string]interface{}
	ResourceType models.ResourceType
	ResourceID   uint
	Attachments  []Attachment
}

type EmailTemplate struct {
	Subject string
	Body    string
}

// Transport sends composed messages. The SMTP dialer is the production transport.
type Transport func(msgs ...*mail.Message) error

type NotificationService struct {
	db        *gorm.DB
	config    *config.Config
	transport Transport
	metrics   *metrics.Metrics
}

func NewNotificationService(db *gorm.DB, cfg *config.Config, m *metrics.Metrics) *NotificationService {
	s := &NotificationService{
		db:      db,
		config:  cfg,
		metrics: m,
	}
	if cfg.Email.SMTPHost != "" {
		dialer := mail.NewDialer(cfg.Email.SMTPHost, cfg.Email.SMTPPort, cfg.Email.SMTPUsername, cfg.Email.SMTPPassword)
		s.transport = dialer.DialAndSend
	}
	return s
}

// SetTransport replaces the delivery mechanism. A nil transport records messages as skipped.
func (s *NotificationService) SetTransport(t Transport) {
	s.transport = t
}

func (s *NotificationService) Notify(ctx context.Context, msg *Message) (*models.EmailLog, error) {
	tmpl, ok := s.getEmailTemplate(msg.Template)
	if !ok {
		return nil, fmt.Errorf("unknown email template %q", msg.Template)
	}

	data := map[string]interface{}{
		"PlatformName": s.config.Email.FromName,
		"BaseURL":      s.config.Frontend.BaseURL,
	}
	for k, v := range msg.Data {
		data[k] = v
	}

	subject, err := renderText(tmpl.Subject, data)
	if err != nil {
		return nil, fmt.Errorf("failed to render email subject: %w", err)
	}
	body, err := s.renderTemplate(tmpl.Body, data)
	if err != nil {
		return nil, fmt.Errorf("failed to render email template: %w", err)
	}

	entry := &models.EmailLog{
		Template:     msg.Template,
		Subject:      subject,
		Recipients:   msg.To,
		CC:           msg.CC,
		ResourceType: msg.ResourceType,
		ResourceID:   msg.ResourceID,
	}

	var sendErr error
	switch {
	case len(msg.To) == 0:
		entry.Status = models.DeliveryStatusSkipped
		entry.Error = "no recipients"
	case s.transport == nil:
		// Email not configured, just log
		entry.Status = models.DeliveryStatusSkipped
		logrus.WithFields(logrus.Fields{
			"template": msg.Template,
			"to":       msg.To,
			"subject":  subject,
		}).Info("Email would be sent")
	default:
		sendErr = s.transport(s.compose(subject, body, msg))
		if sendErr != nil {
			entry.Status = models.DeliveryStatusFailed
			entry.Error = sendErr.Error()
		} else {
			entry.Status = models.DeliveryStatusSent
		}
	}

	s.metrics.IncNotification(msg.Template, string(entry.Status))

	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		logrus.WithError(err).WithField("template", msg.Template).Error("Failed to record email log")
	}

	if sendErr != nil {
		return entry, fmt.Errorf("failed to send %s email: %w", msg.Template, sendErr)
	}
	return entry, nil
}

func (s *NotificationService) compose(subject, body string, msg *Message) *mail.Message {
	m := mail.NewMessage()
	m.SetAddressHeader("From", s.config.Email.FromEmail, s.config.Email.FromName)
	m.SetHeader("To", msg.To...)
	if len(msg.CC) > 0 {
		m.SetHeader("Cc", msg.CC...)
	}
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", body)

	for _, a := range msg.Attachments {
		m.AttachReader(a.Filename, bytes.NewReader(a.Data))
	}
	return m
}

func (s *NotificationService) renderTemplate(templateStr string, data interface{}) (string, error) {
	tmpl, err := htmltemplate.New("email").Parse(templateStr)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}

	return buf.String(), nil
}

func renderText(templateStr string, data interface{}) (string, error) {
	tmpl, err := texttemplate.New("subject").Parse(templateStr)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const (
	TemplateProposalSubmitted = "proposal_submitted"
	TemplateApproverReview    = "approver_review"
	TemplateProposalDeclined  = "proposal_declined"
	TemplateProposalApproved  = "proposal_approved"
	TemplateAmendmentRequest  = "amendment_request"
	TemplateReferralSent      = "referral_sent"
	TemplateReferralReminder  = "referral_reminder"
	TemplateReferralRecalled  = "referral_recalled"
	TemplateReferralComplete  = "referral_complete"
)

func (s *NotificationService) getEmailTemplate(templateType string) (EmailTemplate, bool) {
	templates := map[string]EmailTemplate{
		TemplateProposalSubmitted: {
			Subject: "A new proposal {{.Reference}} has been submitted",
			Body: `
<!DOCTYPE html>
<html>
<body>
	<p>Proposal {{.Reference}} ({{.Title}}) has been submitted and is ready for assessment.</p>
	<a href="{{.BaseURL}}/internal/proposal/{{.ProposalID}}">Open proposal</a>
</body>
</html>`,
		},
		TemplateApproverReview: {
			Subject: "Proposal {{.Reference}} is ready for approver review",
			Body: `
<!DOCTYPE html>
<html>
<body>
	<p>The assessor has {{.Recommendation}} proposal {{.Reference}}.</p>
	<a href="{{.BaseURL}}/internal/proposal/{{.ProposalID}}">Review proposal</a>
</body>
</html>`,
		},
		TemplateProposalDeclined: {
			Subject: "Your proposal {{.Reference}} has been declined",
			Body: `
<!DOCTYPE html>
<html>
<body>
	<p>Your proposal {{.Reference}} ({{.Title}}) has been declined.</p>
	<p>Reason: {{.Reason}}</p>
	<p>Regards,<br>{{.PlatformName}}</p>
</body>
</html>`,
		},
		TemplateProposalApproved: {
			Subject: "Your proposal {{.Reference}} has been approved",
			Body: `
<!DOCTYPE html>
<html>
<body>
	<p>Your proposal {{.Reference}} ({{.Title}}) has been approved.</p>
	<p>The licence is valid from {{.StartDate}} until {{.ExpiryDate}} and is attached to this email.</p>
	<p>{{.Details}}</p>
	<p>Regards,<br>{{.PlatformName}}</p>
</body>
</html>`,
		},
		TemplateAmendmentRequest: {
			Subject: "An amendment has been requested for proposal {{.Reference}}",
			Body: `
<!DOCTYPE html>
<html>
<body>
	<p>The department requires amendments to proposal {{.Reference}} before it can be assessed.</p>
	<p>Reason: {{.Reason}}</p>
	<p>{{.Text}}</p>
	<a href="{{.BaseURL}}/external/proposal/{{.ProposalID}}">Amend proposal</a>
</body>
</html>`,
		},
		TemplateReferralSent: {
			Subject: "A referral for proposal {{.Reference}} has been sent to you",
			Body: `
<!DOCTYPE html>
<html>
<body>
	<p>{{.SenderName}} has asked you to review proposal {{.Reference}}.</p>
	<p>{{.Text}}</p>
	<a href="{{.BaseURL}}/internal/proposal/{{.ProposalID}}/referral/{{.ReferralID}}">Open referral</a>
</body>
</html>`,
		},
		TemplateReferralReminder: {
			Subject: "Reminder: referral for proposal {{.Reference}}",
			Body: `
<!DOCTYPE html>
<html>
<body>
	<p>This is a reminder that your referral for proposal {{.Reference}} is still outstanding.</p>
	<a href="{{.BaseURL}}/internal/proposal/{{.ProposalID}}/referral/{{.ReferralID}}">Open referral</a>
</body>
</html>`,
		},
		TemplateReferralRecalled: {
			Subject: "Referral for proposal {{.Reference}} has been recalled",
			Body: `
<!DOCTYPE html>
<html>
<body>
	<p>The referral for proposal {{.Reference}} has been recalled. No further action is required.</p>
</body>
</html>`,
		},
		TemplateReferralComplete: {
			Subject: "Referral for proposal {{.Reference}} has been completed",
			Body: `
<!DOCTYPE html>
<html>
<body>
	<p>{{.ReferralName}} has completed the referral for proposal {{.Reference}}.</p>
	<a href="{{.BaseURL}}/internal/proposal/{{.ProposalID}}">Open proposal</a>
</body>
</html>`,
		},
	}

	tmpl, ok := templates[templateType]
	return tmpl, ok
}
