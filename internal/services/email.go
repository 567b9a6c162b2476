package services

import (
	"crypto/tls"
	"fmt"
	"html"
	"log"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"cater/internal/config"
)

// DefaultSMTPTimeout bounds one SMTP session when none is configured
const DefaultSMTPTimeout = 10 * time.Second

// EmailService handles sending emails
type EmailService struct {
	cfg *config.EmailConfig
}

// NewEmailService creates a new email service
func NewEmailService(cfg *config.EmailConfig) *EmailService {
	return &EmailService{cfg: cfg}
}

// FollowUpAlert is the content of a low-rating email to staff
type FollowUpAlert struct {
	Summary   string
	Customer  string
	Phone     string
	Event     string
	Rating    int
	Comments  string
	DueAt     time.Time
	Reference string
}

// SendFollowUpAlert emails a staff member about a low rating
func (s *EmailService) SendFollowUpAlert(to string, alert FollowUpAlert) error {
	if !s.cfg.Enabled {
		// In development mode, just log
		log.Printf("[EMAIL] Follow-up alert would be sent to %s: %s", to, alert.Summary)
		return nil
	}

	comments := alert.Comments
	if comments == "" {
		comments = "(no comment)"
	}
	textBody := fmt.Sprintf(`
Hello,

%s left a %d/5 rating for %s (%s).

Comments: %s

Phone: %s
Please follow up by %s.

Catering Team
`, alert.Customer, alert.Rating, alert.Event, alert.Reference, comments, alert.Phone, alert.DueAt.Format("Monday, January 2"))

	return s.SendHTMLEmail(to, alert.Summary, s.generateFollowUpHTML(alert, comments), textBody)
}

// generateFollowUpHTML renders the HTML version of a follow-up alert
func (s *EmailService) generateFollowUpHTML(alert FollowUpAlert, comments string) string {
	stars := strings.Repeat("&#9733;", alert.Rating) + strings.Repeat("&#9734;", 5-alert.Rating)
	currentYear := time.Now().Format("2006")

	return fmt.Sprintf(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>%s</title>
</head>
<body style="margin: 0; padding: 0; background-color: #F8FAFC; font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, Arial, sans-serif;">
    <table role="presentation" cellspacing="0" cellpadding="0" border="0" width="100%%">
        <tr>
            <td style="padding: 40px 20px;">
                <table role="presentation" cellspacing="0" cellpadding="0" border="0" width="600" style="margin: 0 auto; background-color: #FFFFFF; border-radius: 12px; overflow: hidden;">
                    <tr>
                        <td style="padding: 24px 32px; background-color: #B45309; color: #FFFFFF; font-size: 20px; font-weight: 700;">Customer follow-up needed</td>
                    </tr>
                    <tr>
                        <td style="padding: 32px;">
                            <p style="margin: 0 0 16px; font-size: 16px; color: #334155;"><strong>%s</strong> rated <strong>%s</strong> (booking %s).</p>
                            <p style="margin: 0 0 24px; font-size: 28px; color: #B45309;">%s</p>
                            <table role="presentation" cellspacing="0" cellpadding="0" border="0" width="100%%" style="margin: 0 0 24px;">
                                <tr>
                                    <td style="padding: 16px; background-color: #F1F5F9; border-left: 4px solid #B45309; border-radius: 6px; font-size: 15px; color: #334155;">%s</td>
                                </tr>
                            </table>
                            <p style="margin: 0; font-size: 14px; color: #64748B;">Phone: %s<br>Please follow up by <strong>%s</strong>.</p>
                        </td>
                    </tr>
                    <tr>
                        <td style="padding: 20px 32px; background-color: #F8FAFC; font-size: 12px; color: #94A3B8;">Automated message from the catering feedback service. &copy; %s</td>
                    </tr>
                </table>
            </td>
        </tr>
    </table>
</body>
</html>`, html.EscapeString(alert.Summary), html.EscapeString(alert.Customer), html.EscapeString(alert.Event),
		html.EscapeString(alert.Reference), stars, html.EscapeString(comments), html.EscapeString(alert.Phone),
		alert.DueAt.Format("Monday, January 2"), currentYear)
}

// SendEmail sends a generic email (plain text)
func (s *EmailService) SendEmail(to, subject, body string) error {
	return s.SendHTMLEmail(to, subject, "", body)
}

// SendHTMLEmail sends an HTML email with plain text fallback
func (s *EmailService) SendHTMLEmail(to, subject, htmlBody, textBody string) error {
	if !s.cfg.Enabled {
		log.Printf("[EMAIL] Would send to %s: %s", to, subject)
		return nil
	}

	// Validate configuration
	if s.cfg.SMTPHost == "" || s.cfg.Username == "" || s.cfg.Password == "" {
		return fmt.Errorf("email service not properly configured")
	}

	// Set up authentication
	auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.SMTPHost)

	// Create email message
	from := s.cfg.FromEmail
	if s.cfg.FromName != "" {
		from = fmt.Sprintf("%s <%s>", s.cfg.FromName, s.cfg.FromEmail)
	}

	// Build multipart message
	boundary := fmt.Sprintf("----=_NextPart_%d", time.Now().UnixNano())

	headers := fmt.Sprintf("From: %s\r\n", from) +
		fmt.Sprintf("To: %s\r\n", to) +
		fmt.Sprintf("Subject: %s\r\n", subject) +
		"MIME-Version: 1.0\r\n" +
		fmt.Sprintf("Content-Type: multipart/alternative; boundary=\"%s\"\r\n", boundary) +
		"\r\n"

	// Plain text part
	message := headers +
		fmt.Sprintf("--%s\r\n", boundary) +
		"Content-Type: text/plain; charset=UTF-8\r\n" +
		"Content-Transfer-Encoding: quoted-printable\r\n" +
		"\r\n" +
		textBody + "\r\n"

	// HTML part (if provided)
	if htmlBody != "" {
		message += fmt.Sprintf("--%s\r\n", boundary) +
			"Content-Type: text/html; charset=UTF-8\r\n" +
			"Content-Transfer-Encoding: quoted-printable\r\n" +
			"\r\n" +
			htmlBody + "\r\n"
	}

	message += fmt.Sprintf("--%s--\r\n", boundary)

	// Send email
	if err := s.deliver(auth, to, []byte(message)); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	return nil
}

// deliver runs one SMTP session under a single deadline covering dial and
// every command, so an unresponsive server fails the send instead of
// holding the caller.
func (s *EmailService) deliver(auth smtp.Auth, to string, msg []byte) error {
	timeout := s.cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultSMTPTimeout
	}

	addr := net.JoinHostPort(s.cfg.SMTPHost, strconv.Itoa(s.cfg.SMTPPort))
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		return err
	}

	c, err := smtp.NewClient(conn, s.cfg.SMTPHost)
	if err != nil {
		return err
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: s.cfg.SMTPHost}); err != nil {
			return err
		}
	}
	if ok, _ := c.Extension("AUTH"); ok && auth != nil {
		if err := c.Auth(auth); err != nil {
			return err
		}
	}
	if err := c.Mail(s.cfg.FromEmail); err != nil {
		return err
	}
	if err := c.Rcpt(to); err != nil {
		return err
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}

// IsEnabled returns whether email service is enabled
func (s *EmailService) IsEnabled() bool {
	return s.cfg.Enabled
}
