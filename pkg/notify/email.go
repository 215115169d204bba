package notify

import (
	"fmt"
	"net/smtp"
	"strings"
)

// Email sends notifications via an authenticated SMTP relay with STARTTLS.
type Email struct {
	SMTPServer string
	Port       int
	Username   string
	Password   string
	From       string
	To         []string
}

// Notify implements Notifier.
func (e *Email) Notify(title, message string, _ int) error {
	addr := fmt.Sprintf("%s:%d", e.SMTPServer, e.Port)
	auth := smtp.PlainAuth("", e.Username, e.Password, e.SMTPServer)

	body := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n",
		e.From, strings.Join(e.To, ", "), title, message)

	if err := smtp.SendMail(addr, auth, e.From, e.To, []byte(body)); err != nil {
		return fmt.Errorf("notify: send email: %w", err)
	}
	return nil
}
