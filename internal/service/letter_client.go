package service

import (
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"quarters-data/internal/config"
)

// AllocationLetter is the payload pushed to the external dispatch endpoint
// when a request is approved. The receiving side renders and delivers the
// physical letter.
type AllocationLetter struct {
	LetterID   string `json:"letterId"`
	SvcNo      string `json:"svcNo"`
	FullName   string `json:"fullName"`
	Rank       string `json:"rank"`
	UnitLabel  string `json:"unitLabel"`
	ApprovedBy string `json:"approvedBy"`
	ApprovedAt string `json:"approvedAt"`
}

// LetterClient 分配函下发客户端。A nil-safe, optional integration: when no
// webhook URL is configured the client is disabled and Dispatch is a no-op.
type LetterClient struct {
	httpClient *resty.Client
	logger     *zap.Logger
	enabled    bool
}

// NewLetterClient 创建分配函客户端
func NewLetterClient(cfg config.LetterConfig, logger *zap.Logger) *LetterClient {
	if cfg.WebhookURL == "" {
		logger.Info("Letter dispatch disabled: no webhook URL configured")
		return &LetterClient{logger: logger}
	}

	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := resty.New().
		SetBaseURL(cfg.WebhookURL).
		SetTimeout(timeout).
		SetRetryCount(3).
		SetRetryWaitTime(1*time.Second).
		SetRetryMaxWaitTime(5*time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if cfg.AuthToken != "" {
		client.SetHeader("Authorization", "Bearer "+cfg.AuthToken)
	}

	return &LetterClient{httpClient: client, logger: logger, enabled: true}
}

// Dispatch pushes one approval letter. Failures are logged, never returned:
// letter delivery must not fail the approval it announces.
func (c *LetterClient) Dispatch(letter AllocationLetter) {
	if !c.enabled {
		return
	}

	go func() {
		resp, err := c.httpClient.R().
			SetBody(letter).
			Post("/letters")
		if err != nil {
			c.logger.Error("Letter dispatch failed",
				zap.String("letter_id", letter.LetterID),
				zap.Error(err),
			)
			return
		}
		if resp.IsError() {
			c.logger.Error("Letter dispatch rejected",
				zap.String("letter_id", letter.LetterID),
				zap.Int("status_code", resp.StatusCode()),
				zap.String("body", fmt.Sprintf("%.200s", resp.String())),
			)
			return
		}
		c.logger.Info("Dispatched allocation letter",
			zap.String("letter_id", letter.LetterID),
			zap.String("svc_no", letter.SvcNo),
		)
	}()
}
