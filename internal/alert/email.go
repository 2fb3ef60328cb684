package alert

import (
	"context"
	"fmt"
	"net/smtp"

	"github.com/amirlehmam/flashloan/internal/market"
)

// EmailSink sends signals over SMTP with PLAIN auth. The password is
// injected at construction (cmd wiring reads it from the environment).
type EmailSink struct {
	host     string
	port     int
	from     string
	to       string
	password string
	// send is swappable for tests.
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewEmailSink builds an SMTP-backed sink.
func NewEmailSink(host string, port int, from, to, password string) *EmailSink {
	return &EmailSink{
		host:     host,
		port:     port,
		from:     from,
		to:       to,
		password: password,
		send:     smtp.SendMail,
	}
}

// Name identifies the sink in metrics and logs.
func (*EmailSink) Name() string { return "email" }

// Deliver sends one message per signal. smtp.SendMail has no context
// hook; the dispatcher's timeout bounds the goroutine, not the dial.
func (e *EmailSink) Deliver(ctx context.Context, sig market.Signal) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: Arbitrage Opportunity Detected (%s)\r\n\r\n%s\r\n",
		e.from, e.to, sig.Asset, FormatMessage(sig),
	)
	auth := smtp.PlainAuth("", e.from, e.password, e.host)
	addr := fmt.Sprintf("%s:%d", e.host, e.port)
	if err := e.send(addr, auth, e.from, []string{e.to}, []byte(msg)); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}
