// Package notify sends report notifications by email. Delivery is fire and
// forget: failures are logged and never reach the request that caused them.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/wneessen/go-mail"
)

// DefaultTimeout bounds a single delivery attempt.
const DefaultTimeout = 30 * time.Second

// Message is one outbound notification.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Notifier delivers messages.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPConfig holds the mail relay settings.
type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
}

// Enabled reports whether a relay is configured.
func (c SMTPConfig) Enabled() bool {
	return c.Host != "" && c.From != ""
}

// Sender delivers composed messages. *mail.Client satisfies it.
type Sender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// SMTPNotifier sends messages through an SMTP relay with PLAIN auth.
type SMTPNotifier struct {
	cfg       SMTPConfig
	newSender func(SMTPConfig) (Sender, error)
}

// NewSMTP creates an SMTP notifier.
func NewSMTP(cfg SMTPConfig) *SMTPNotifier {
	return &SMTPNotifier{cfg: cfg, newSender: newClient}
}

// WithSender replaces the transport, for tests.
func (n *SMTPNotifier) WithSender(s Sender) *SMTPNotifier {
	n.newSender = func(SMTPConfig) (Sender, error) { return s, nil }
	return n
}

// newClient builds a relay client. A mail.Client is not safe for
// concurrent sends, so each message gets its own.
func newClient(cfg SMTPConfig) (Sender, error) {
	port := cfg.Port
	if port == 0 {
		port = 587
	}

	opts := []mail.Option{
		mail.WithPort(port),
		mail.WithTimeout(DefaultTimeout),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if cfg.User != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.User),
			mail.WithPassword(cfg.Password),
		)
	}

	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to configure mail relay %s: %w", cfg.Host, err)
	}
	return client, nil
}

// Send implements Notifier. The context bounds the dial and the transfer.
func (n *SMTPNotifier) Send(ctx context.Context, msg Message) error {
	if msg.To == "" {
		return fmt.Errorf("message has no recipient")
	}

	m, err := n.compose(msg)
	if err != nil {
		return err
	}

	sender, err := n.newSender(n.cfg)
	if err != nil {
		return err
	}
	if err := sender.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("failed to send mail to %s: %w", msg.To, err)
	}
	return nil
}

func (n *SMTPNotifier) compose(msg Message) (*mail.Msg, error) {
	m := mail.NewMsg()
	if err := m.From(n.cfg.From); err != nil {
		return nil, fmt.Errorf("invalid sender address %q: %w", n.cfg.From, err)
	}
	if err := m.To(msg.To); err != nil {
		return nil, fmt.Errorf("invalid recipient address %q: %w", msg.To, err)
	}
	m.Subject(sanitizeHeader(msg.Subject))
	m.SetBodyString(mail.TypeTextPlain, msg.Body)
	return m, nil
}

func sanitizeHeader(s string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
}

// LogNotifier writes messages to a logger instead of sending them.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLog creates a log notifier.
func NewLog(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Send implements Notifier.
func (n *LogNotifier) Send(_ context.Context, msg Message) error {
	n.logger.Info("notification", "to", msg.To, "subject", msg.Subject)
	return nil
}

// Dispatcher sends messages in the background.
type Dispatcher struct {
	notifier Notifier
	logger   *slog.Logger
	timeout  time.Duration
	wg       sync.WaitGroup
}

// NewDispatcher creates a dispatcher. A zero timeout uses DefaultTimeout.
func NewDispatcher(n Notifier, logger *slog.Logger, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Dispatcher{notifier: n, logger: logger, timeout: timeout}
}

// Dispatch sends msg without waiting for the result.
func (d *Dispatcher) Dispatch(msg Message) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		if err := d.notifier.Send(ctx, msg); err != nil {
			d.logger.Error("notification failed", "to", msg.To, "subject", msg.Subject, "error", err)
			return
		}
		d.logger.Debug("notification sent", "to", msg.To, "subject", msg.Subject)
	}()
}

// Wait blocks until every dispatched message has been handled.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
