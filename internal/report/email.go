package report

import (
	"fmt"
	"io"

	"callsight/internal/calls"

	"gopkg.in/gomail.v2"
)

// Mailer delivers a rendered report. Implementations must be safe for
// concurrent use; dispatch runs on background goroutines.
type Mailer interface {
	SendCallReport(c calls.Call, pdf []byte) error
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string

	From string
	// To is the staff address that receives every completed-call report.
	To string
}

// SMTPMailer sends call reports with the PDF attached.
type SMTPMailer struct {
	cfg    SMTPConfig
	dialer *gomail.Dialer
}

func NewSMTPMailer(cfg SMTPConfig) *SMTPMailer {
	return &SMTPMailer{
		cfg:    cfg,
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
	}
}

func (m *SMTPMailer) SendCallReport(c calls.Call, pdf []byte) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.cfg.From)
	msg.SetHeader("To", m.cfg.To)
	msg.SetHeader("Subject", fmt.Sprintf("Call Report - %s - %s", c.PhoneNumber, c.CreatedAt.Format("2006-01-02")))
	msg.SetBody("text/html", reportBody(c))

	filename := fmt.Sprintf("call-report-%s-%s.pdf", c.PhoneNumber, c.CreatedAt.Format("2006-01-02"))
	msg.Attach(filename, gomail.SetCopyFunc(func(w io.Writer) error {
		_, err := w.Write(pdf)
		return err
	}))

	if err := m.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("report: send mail: %w", err)
	}
	return nil
}

func reportBody(c calls.Call) string {
	body := fmt.Sprintf(
		"<h2>Call Report Generated</h2>"+
			"<p>A report has been generated for the call made to <strong>%s</strong>.</p>"+
			"<p><strong>Date:</strong> %s</p>"+
			"<p><strong>Status:</strong> %s</p>",
		c.PhoneNumber, c.CreatedAt.Format("2006-01-02 15:04:05"), c.Status,
	)
	if c.DurationSeconds > 0 {
		body += fmt.Sprintf("<p><strong>Duration:</strong> %s</p>", formatDuration(c.DurationSeconds))
	}
	body += "<p>The detailed report is attached as a PDF.</p>"
	return body
}
