// Package mailnotify delivers a best-effort out-of-band notification when a
// notify run fails fatally. Delivery failure is only logged, never
// escalated: the run already failed and the mail is a courtesy.
package mailnotify

import (
	"fmt"
	"net/smtp"
	"strings"

	"github.com/rs/zerolog/log"
)

// Notifier sends plain-text mail through one SMTP endpoint.
type Notifier struct {
	// Addr is the SMTP host:port. Empty disables the notifier.
	Addr string
	From string
	To   string
}

// Enabled reports whether the notifier is configured to deliver anything.
func (n *Notifier) Enabled() bool {
	return n != nil && n.Addr != "" && n.To != ""
}

// Notify delivers subject/body to the contact address. Best effort: any
// failure is logged and swallowed.
func (n *Notifier) Notify(subject, body string) {
	if !n.Enabled() {
		return
	}

	from := n.From
	if from == "" {
		from = "reftrack@localhost"
	}

	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", from)
	fmt.Fprintf(&msg, "To: %s\r\n", n.To)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("\r\n")
	msg.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))

	if err := smtp.SendMail(n.Addr, nil, from, []string{n.To}, []byte(msg.String())); err != nil {
		log.Warn().Err(err).Str("to", n.To).Msg("failed to deliver failure notification")
	}
}
