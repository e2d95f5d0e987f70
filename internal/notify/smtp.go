package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"html/template"
	"net"
	"strconv"
	"time"

	"github.com/labstack/gommon/log"
	"github.com/wneessen/go-mail"

	"github.com/Tyrowin/groupchat/internal/config"
)

var templates = template.Must(template.New("verification").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: sans-serif; background-color: #f5f5f5; padding: 40px 0;">
  <div style="max-width: 600px; margin: 0 auto; background: #ffffff; border-radius: 8px; padding: 40px;">
    <h2 style="text-align: center;">Email verification code</h2>
    <p style="text-align: center;">Use the following code to finish registering with {{.SenderName}}:</p>
    <div style="font-size: 40px; font-weight: bold; letter-spacing: 10px; text-align: center; font-family: monospace;">{{.Code}}</div>
    <p style="color: #666666; font-size: 14px;">The code is valid for 10 minutes. Do not share it with anyone. If you did not request it, ignore this email.</p>
    <p style="text-align: center;"><a href="{{.SiteURL}}">Continue registration</a></p>
  </div>
</body>
</html>`))

func init() {
	template.Must(templates.New("approval").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: sans-serif; background-color: #f5f5f5; padding: 40px 0;">
  <div style="max-width: 600px; margin: 0 auto; background: #ffffff; border-radius: 8px; padding: 40px;">
    <h2 style="text-align: center;">Registration approved</h2>
    <p>Hello {{.Username}}, an administrator has approved your registration. You can sign in now.</p>
    <p style="text-align: center;"><a href="{{.SiteURL}}">Sign in</a></p>
  </div>
</body>
</html>`))
	template.Must(templates.New("rejection").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: sans-serif; background-color: #f5f5f5; padding: 40px 0;">
  <div style="max-width: 600px; margin: 0 auto; background: #ffffff; border-radius: 8px; padding: 40px;">
    <h2 style="text-align: center;">Registration declined</h2>
    <p>Your registration with {{.SenderName}} was reviewed and declined by an administrator.</p>
  </div>
</body>
</html>`))
}

// SMTP delivers HTML mail through an SMTP relay. Port 465 uses implicit TLS;
// other ports upgrade with STARTTLS when the server offers it.
type SMTP struct {
	cfg     config.SMTPConfig
	timeout time.Duration
}

func NewSMTP(cfg config.SMTPConfig) *SMTP {
	return &SMTP{cfg: cfg, timeout: 30 * time.Second}
}

type mailData struct {
	SenderName string
	SiteURL    string
	Code       string
	Username   string
}

func (s *SMTP) SendVerificationCode(ctx context.Context, email, code string) error {
	return s.send(ctx, email, "Email verification code", "verification", mailData{Code: code})
}

func (s *SMTP) SendApprovalNotice(ctx context.Context, email, username string) error {
	return s.send(ctx, email, "Registration approved", "approval", mailData{Username: username})
}

func (s *SMTP) SendRejectionNotice(ctx context.Context, email string) error {
	return s.send(ctx, email, "Registration declined", "rejection", mailData{})
}

func (s *SMTP) send(ctx context.Context, to, subject, tmpl string, data mailData) error {
	data.SenderName = s.cfg.SenderName
	data.SiteURL = s.cfg.SiteURL

	msg, err := s.compose(to, subject, tmpl, data)
	if err != nil {
		return err
	}

	client, err := s.client()
	if err != nil {
		return err
	}

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := client.DialWithContext(ctx); err != nil {
		return fmt.Errorf("connecting to %s: %w", addr, err)
	}
	if err := client.Send(msg); err != nil {
		_ = client.Close()
		return fmt.Errorf("sending mail to %s: %w", to, err)
	}
	// The relay has accepted the message once Send returns; a failed QUIT
	// does not undo delivery.
	if err := client.Close(); err != nil {
		log.Warnf("Closing SMTP session with %s after delivery: %v", addr, err)
	}
	return nil
}

func (s *SMTP) compose(to, subject, tmpl string, data mailData) (*mail.Msg, error) {
	msg := mail.NewMsg(mail.WithEncoding(mail.NoEncoding))
	if err := msg.FromFormat(s.cfg.SenderName, s.cfg.Sender); err != nil {
		return nil, fmt.Errorf("invalid sender %q: %w", s.cfg.Sender, err)
	}
	if err := msg.To(to); err != nil {
		return nil, fmt.Errorf("invalid recipient %q: %w", to, err)
	}
	msg.Subject(subject)
	msg.SetDate()
	msg.SetMessageID()

	if err := msg.SetBodyHTMLTemplate(templates.Lookup(tmpl), data); err != nil {
		return nil, fmt.Errorf("rendering %s mail: %w", tmpl, err)
	}
	return msg, nil
}

func (s *SMTP) client() (*mail.Client, error) {
	opts := []mail.Option{
		mail.WithPort(s.cfg.Port),
		mail.WithTimeout(s.timeout),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
		mail.WithTLSConfig(&tls.Config{ServerName: s.cfg.Host, MinVersion: tls.VersionTLS12}),
	}
	if s.cfg.Port == 465 {
		opts = append(opts, mail.WithSSL())
	}
	if s.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.cfg.Username),
			mail.WithPassword(s.cfg.Password),
		)
	}

	client, err := mail.NewClient(s.cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("configuring smtp client: %w", err)
	}
	return client, nil
}

// New returns the SMTP notifier when mail is configured and the logging
// notifier otherwise.
func New(cfg *config.Config) Notifier {
	if cfg.MailEnabled() {
		return NewSMTP(cfg.SMTP)
	}
	return Log{}
}
