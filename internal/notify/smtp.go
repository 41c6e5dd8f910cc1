package notify

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gopkg.in/mail.v2"

	"meeting-reminders/internal/meeting"
)

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Timeout  time.Duration
}

type sender interface {
	DialAndSend(m ...*mail.Message) error
}

// SMTPDispatcher sends one plain-text email per dispatch, addressed to every
// recipient as given.
type SMTPDispatcher struct {
	sender sender
	from   string
	log    *zap.Logger
}

func NewSMTPDispatcher(cfg SMTPConfig, log *zap.Logger) *SMTPDispatcher {
	d := mail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	if cfg.Timeout > 0 {
		d.Timeout = cfg.Timeout
	}
	return newSMTPDispatcher(d, cfg.From, log)
}

func newSMTPDispatcher(s sender, from string, log *zap.Logger) *SMTPDispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &SMTPDispatcher{
		sender: s,
		from:   from,
		log:    log.With(zap.String("component", "smtp")),
	}
}

func (s *SMTPDispatcher) Dispatch(ctx context.Context, recipients []string, msg meeting.Message) error {
	if len(recipients) == 0 {
		s.log.Debug("no recipients, skipping", zap.String("subject", msg.Subject))
		return nil
	}

	m := mail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", recipients...)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/plain", msg.Body)

	// The dialer has no context support; give up waiting when ctx ends.
	errc := make(chan error, 1)
	go func() { errc <- s.sender.DialAndSend(m) }()

	select {
	case err := <-errc:
		if err != nil {
			return failed("smtp send %q: %v", msg.Subject, err)
		}
		s.log.Debug("email sent", zap.Int("recipients", len(recipients)), zap.String("subject", msg.Subject))
		return nil
	case <-ctx.Done():
		return failed("smtp send %q: %v", msg.Subject, ctx.Err())
	}
}
