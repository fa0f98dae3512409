package messaging

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"pasientflyt/backend/internal/config"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// SMTPSender delivers email through plain SMTP with auth. SMTP has no
// provider message id, so a local id is generated for the send log.
type SMTPSender struct {
	cfg    config.SMTPConfig
	db     *gorm.DB
	logger *zap.Logger

	// sendMail is swappable for tests.
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTPSender(cfg config.SMTPConfig, db *gorm.DB, logger *zap.Logger) *SMTPSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SMTPSender{
		cfg:      cfg,
		db:       db,
		logger:   logger,
		sendMail: smtp.SendMail,
	}
}

// SendEmail sends one message and returns the generated message id.
func (s *SMTPSender) SendEmail(ctx context.Context, to, subject, body string) (string, error) {
	if to == "" {
		return "", fmt.Errorf("email recipient must not be empty")
	}

	from := s.cfg.FromAddress
	if s.cfg.FromName != "" {
		from = fmt.Sprintf("%s <%s>", s.cfg.FromName, s.cfg.FromAddress)
	}

	var msg strings.Builder
	msg.WriteString("From: " + from + "\r\n")
	msg.WriteString("To: " + to + "\r\n")
	msg.WriteString("Subject: " + subject + "\r\n")
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	msg.WriteString("Date: " + time.Now().UTC().Format(time.RFC1123Z) + "\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(body)

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)

	// smtp.SendMail has no context support; honour cancellation by racing
	// the send against ctx in a goroutine.
	done := make(chan error, 1)
	go func() {
		done <- s.sendMail(addr, auth, s.cfg.FromAddress, []string{to}, []byte(msg.String()))
	}()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}

	externalID := ""
	if err == nil {
		externalID = "smtp-" + uuid.New().String()
	}

	if logErr := recordSend(s.db, ChannelEmail, to, subject, externalID, err); logErr != nil {
		s.logger.Error("write email send log failed", zap.Error(logErr))
	}

	if err != nil {
		return "", fmt.Errorf("smtp send: %w", err)
	}
	return externalID, nil
}
