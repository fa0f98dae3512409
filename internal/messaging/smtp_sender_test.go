package messaging

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"pasientflyt/backend/internal/config"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&MessageLog{}))
	return db
}

func testSMTPConfig() config.SMTPConfig {
	return config.SMTPConfig{
		Host:        "localhost",
		Port:        1025,
		FromAddress: "noreply@pasientflyt.local",
		FromName:    "Pasientflyt",
	}
}

func TestSendEmailBuildsMessageAndLogs(t *testing.T) {
	db := newTestDB(t)
	s := NewSMTPSender(testSMTPConfig(), db, nil)

	var gotTo []string
	var gotMsg string
	s.sendMail = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		require.Equal(t, "localhost:1025", addr)
		require.Equal(t, "noreply@pasientflyt.local", from)
		gotTo = to
		gotMsg = string(msg)
		return nil
	}

	id, err := s.SendEmail(context.Background(), "kari@example.no", "Påminnelse", "Hei Kari!")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(id, "smtp-"))
	require.Equal(t, []string{"kari@example.no"}, gotTo)
	require.Contains(t, gotMsg, "Subject: Påminnelse\r\n")
	require.Contains(t, gotMsg, "From: Pasientflyt <noreply@pasientflyt.local>\r\n")
	require.True(t, strings.HasSuffix(gotMsg, "\r\nHei Kari!"))

	var logs []MessageLog
	require.NoError(t, db.Find(&logs).Error)
	require.Len(t, logs, 1)
	require.Equal(t, ChannelEmail, logs[0].Channel)
	require.Equal(t, "sent", logs[0].Status)
	require.Equal(t, id, logs[0].ExternalID)
}

func TestSendEmailFailureIsLogged(t *testing.T) {
	db := newTestDB(t)
	s := NewSMTPSender(testSMTPConfig(), db, nil)
	s.sendMail = func(string, smtp.Auth, string, []string, []byte) error {
		return errors.New("connection refused")
	}

	_, err := s.SendEmail(context.Background(), "kari@example.no", "Hei", "Hei")
	require.Error(t, err)

	var logs []MessageLog
	require.NoError(t, db.Find(&logs).Error)
	require.Len(t, logs, 1)
	require.Equal(t, "failed", logs[0].Status)
	require.Contains(t, logs[0].ErrorMessage, "connection refused")
}

func TestSendEmailRejectsEmptyRecipient(t *testing.T) {
	s := NewSMTPSender(testSMTPConfig(), newTestDB(t), nil)
	_, err := s.SendEmail(context.Background(), "", "Hei", "Hei")
	require.Error(t, err)
}
