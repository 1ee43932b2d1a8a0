package utils

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"time"

	"adveri/config"

	"gopkg.in/gomail.v2"
)

type EmailData struct {
	Subject  string
	To       []string
	Template string
	Data     interface{}
}

// Mailer delivers rendered notification emails.
type Mailer interface {
	Send(ctx context.Context, data EmailData) error
}

// ReminderData feeds the daily_reminder template.
type ReminderData struct {
	Username string
	Role     string
	Year     int
}

// CampaignExpenditure is one row of a monthly report.
type CampaignExpenditure struct {
	Name        string
	StartDate   time.Time
	Budget      float64
	Expenditure float64
}

// MonthlyReportData feeds the monthly_report template.
type MonthlyReportData struct {
	Username   string
	EntityName string
	Month      string
	Campaigns  []CampaignExpenditure
	Total      float64
	Year       int
}

// Embedded email templates
var emailTemplates = map[string]string{
	"daily_reminder": `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>We miss you on AdVeri</title>
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { color: #2c3e50; border-bottom: 1px solid #eee; padding-bottom: 10px; }
        .footer { margin-top: 30px; font-size: 12px; color: #7f8c8d; text-align: center; }
    </style>
</head>
<body>
    <div class="header">
        <h2>Hello {{.Username}},</h2>
    </div>
    <p>You have not visited AdVeri in the last day.
    {{if eq .Role "sponsor"}}New influencers may be waiting for your campaign offers.{{else}}New campaigns and ad requests may be waiting for you.{{end}}</p>
    <p>Sign in to check your pending requests.</p>
    <div class="footer">
        <p>© {{.Year}} AdVeri. All rights reserved.</p>
    </div>
</body>
</html>`,

	"monthly_report": `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Monthly campaign report</title>
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        table { width: 100%; border-collapse: collapse; }
        th, td { border-bottom: 1px solid #eee; padding: 6px; text-align: left; }
        .footer { margin-top: 30px; font-size: 12px; color: #7f8c8d; text-align: center; }
    </style>
</head>
<body>
    <h2>{{.Month}} report for {{.EntityName}}</h2>
    <p>Hello {{.Username}}, here is the spend on your running campaigns.</p>
    <table>
        <tr><th>Campaign</th><th>Started</th><th>Budget</th><th>Expenditure</th></tr>
        {{range .Campaigns}}<tr><td>{{.Name}}</td><td>{{.StartDate.Format "2006-01-02"}}</td><td>{{printf "%.2f" .Budget}}</td><td>{{printf "%.2f" .Expenditure}}</td></tr>
        {{else}}<tr><td colspan="4">No campaigns older than 30 days.</td></tr>{{end}}
    </table>
    <p><strong>Total expenditure: {{printf "%.2f" .Total}}</strong></p>
    <div class="footer">
        <p>© {{.Year}} AdVeri. All rights reserved.</p>
    </div>
</body>
</html>`,
}

var parsedTemplates = func() map[string]*template.Template {
	out := make(map[string]*template.Template, len(emailTemplates))
	for name, body := range emailTemplates {
		out[name] = template.Must(template.New(name).Parse(body))
	}
	return out
}()

// RenderTemplate executes one of the embedded email templates.
func RenderTemplate(name string, data interface{}) (string, error) {
	tmpl, ok := parsedTemplates[name]
	if !ok {
		return "", fmt.Errorf("template '%s' not found", name)
	}
	var body bytes.Buffer
	if err := tmpl.Execute(&body, data); err != nil {
		return "", fmt.Errorf("error executing template: %w", err)
	}
	return body.String(), nil
}

// SMTPMailer sends mail through an SMTP relay.
type SMTPMailer struct {
	dialer   *gomail.Dialer
	from     string
	fromName string
}

func NewSMTPMailer(cfg config.SMTPConfig) *SMTPMailer {
	return &SMTPMailer{
		dialer:   gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:     cfg.From,
		fromName: cfg.FromName,
	}
}

func (m *SMTPMailer) Send(ctx context.Context, data EmailData) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(data.To) == 0 {
		return fmt.Errorf("email has no recipients")
	}

	body, err := RenderTemplate(data.Template, data.Data)
	if err != nil {
		return err
	}

	msg := gomail.NewMessage()
	msg.SetAddressHeader("From", m.from, m.fromName)
	msg.SetHeader("To", data.To...)
	msg.SetHeader("Subject", data.Subject)
	msg.SetBody("text/html", body)

	if err := m.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("error sending email: %w", err)
	}
	return nil
}
