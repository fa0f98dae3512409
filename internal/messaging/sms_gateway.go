package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"pasientflyt/backend/internal/config"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// SMSGateway sends text messages through an HTTP SMS provider and records a
// send log row per attempt.
type SMSGateway struct {
	cfg    config.SMSConfig
	client *http.Client
	db     *gorm.DB
	logger *zap.Logger
}

func NewSMSGateway(cfg config.SMSConfig, db *gorm.DB, logger *zap.Logger) *SMSGateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &SMSGateway{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		db:     db,
		logger: logger,
	}
}

// SendSMS posts the message to the gateway and returns its message id.
func (g *SMSGateway) SendSMS(ctx context.Context, to, body string) (string, error) {
	if to == "" {
		return "", fmt.Errorf("sms recipient must not be empty")
	}

	payload, _ := json.Marshal(map[string]string{
		"to":   to,
		"from": g.cfg.SenderName,
		"body": body,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.GatewayURL, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build sms request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)

	resp, err := g.client.Do(req)
	if err != nil {
		g.logResult(to, body, "", err)
		return "", fmt.Errorf("sms gateway request: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)

	var result struct {
		MessageID string `json:"message_id"`
		Error     string `json:"error"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		err = fmt.Errorf("parse sms gateway response: %w", err)
		g.logResult(to, body, "", err)
		return "", err
	}

	if resp.StatusCode >= 300 || result.Error != "" {
		err = fmt.Errorf("sms gateway rejected message [%d]: %s", resp.StatusCode, result.Error)
		g.logResult(to, body, "", err)
		return "", err
	}

	g.logResult(to, body, result.MessageID, nil)
	return result.MessageID, nil
}

func (g *SMSGateway) logResult(to, body, externalID string, err error) {
	if logErr := recordSend(g.db, ChannelSMS, to, body, externalID, err); logErr != nil {
		g.logger.Error("write sms send log failed", zap.Error(logErr))
	}
}
