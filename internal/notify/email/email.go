package email

import (
	"bytes"
	"crypto/tls"
	"embed"
	"fmt"
	"html/template"
	"time"

	"github.com/charmbracelet/log"
	"github.com/jon4hz/chartwise/internal/config"
	mail "github.com/xhit/go-simple-mail/v2"
)

// Service sends account emails.
type Service struct {
	config *config.EmailConfig
}

// PasswordReset contains the data for a password reset email.
type PasswordReset struct {
	UserEmail string
	UserName  string
	ResetURL  string
	ExpiresIn time.Duration
}

// New creates a new email service.
func New(cfg *config.EmailConfig) *Service {
	return &Service{
		config: cfg,
	}
}

// Enabled reports whether emails are actually sent.
func (s *Service) Enabled() bool {
	return s != nil && s.config != nil && s.config.Enabled
}

// SendPasswordReset sends the reset link to the user.
func (s *Service) SendPasswordReset(reset PasswordReset) error {
	if !s.Enabled() {
		log.Warn("Email is disabled, password reset mail not sent", "to", reset.UserEmail)
		return nil
	}

	body, err := generateBody("reset_password.html", reset)
	if err != nil {
		return fmt.Errorf("failed to generate email body: %w", err)
	}

	return s.sendEmail(reset.UserEmail, "[Chartwise] Reset your password", body)
}

//go:embed templates/*.html
var templatesFS embed.FS

var templates = template.Must(template.New("").Funcs(template.FuncMap{
	"minutes": func(d time.Duration) int { return int(d.Minutes()) },
}).ParseFS(templatesFS, "templates/*.html"))

// generateBody renders the named HTML template.
func generateBody(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// sendEmail sends an email using go-simple-mail library.
func (s *Service) sendEmail(to, subject, body string) error {
	server := mail.NewSMTPClient()
	server.Host = s.config.SMTPHost
	server.Port = s.config.SMTPPort
	server.Username = s.config.Username
	server.Password = s.config.Password

	// Configure encryption
	if s.config.UseSSL {
		server.Encryption = mail.EncryptionSSLTLS
	} else if s.config.UseTLS {
		server.Encryption = mail.EncryptionSTARTTLS
	} else {
		server.Encryption = mail.EncryptionNone
	}

	if s.config.InsecureSkipVerify {
		server.TLSConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}

	server.KeepAlive = false
	server.ConnectTimeout = 10 * time.Second
	server.SendTimeout = 10 * time.Second

	smtpClient, err := server.Connect()
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer func() {
		if closeErr := smtpClient.Close(); closeErr != nil {
			log.Warn("Failed to close SMTP client", "error", closeErr)
		}
	}()

	fromName := s.config.FromName
	if fromName == "" {
		fromName = "Chartwise"
	}

	email := mail.NewMSG()
	email.SetFrom(fmt.Sprintf("%s <%s>", fromName, s.config.FromEmail))
	email.AddTo(to)
	email.SetSubject(subject)
	email.SetBody(mail.TextHTML, body)

	if email.Error != nil {
		return fmt.Errorf("failed to build email: %w", email.Error)
	}

	if err := email.Send(smtpClient); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	log.Info("Email sent", "to", to, "subject", subject)
	return nil
}
