package messaging

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Channel identifies the delivery medium of a send log row.
type Channel string

const (
	ChannelSMS   Channel = "SMS"
	ChannelEmail Channel = "EMAIL"
)

// MessageLog is the audit row written for every outbound send attempt.
type MessageLog struct {
	ID           string     `json:"id" gorm:"primaryKey;type:uuid"`
	Channel      Channel    `json:"channel" gorm:"size:10;index"`
	Recipient    string     `json:"recipient" gorm:"size:255;index"`
	Summary      string     `json:"summary" gorm:"size:500"` // body for SMS, subject for email
	ExternalID   string     `json:"externalId" gorm:"size:100"`
	Status       string     `json:"status" gorm:"size:20;index"` // sent, failed
	ErrorMessage string     `json:"errorMessage" gorm:"type:text"`
	SentAt       *time.Time `json:"sentAt"`
	CreatedAt    time.Time  `json:"createdAt" gorm:"autoCreateTime;index"`
}

func (MessageLog) TableName() string {
	return "message_logs"
}

func recordSend(db *gorm.DB, channel Channel, recipient, summary, externalID string, sendErr error) error {
	if db == nil {
		return nil
	}

	entry := &MessageLog{
		ID:         uuid.New().String(),
		Channel:    channel,
		Recipient:  recipient,
		Summary:    truncate(summary, 500),
		ExternalID: externalID,
	}

	if sendErr != nil {
		entry.Status = "failed"
		entry.ErrorMessage = sendErr.Error()
	} else {
		entry.Status = "sent"
		now := time.Now().UTC()
		entry.SentAt = &now
	}

	return db.Create(entry).Error
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
