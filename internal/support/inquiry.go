package support

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/blues/fps/internal/config"
)

// MilestoneSnapshot 申诉工单里的单阶段状态快照
type MilestoneSnapshot struct {
	Stage           int    `json:"stage"`
	Amount          int64  `json:"amount"`
	ChainApproved   bool   `json:"chain_approved"`
	ChainClaimed    bool   `json:"chain_claimed"`
	MirrorStatus    string `json:"mirror_status"`
	PaymentReleased bool   `json:"payment_released"`
}

// Inquiry 人工回收申诉
type Inquiry struct {
	JobId      string              `json:"job_id"`
	Requester  string              `json:"requester"`
	Milestones []MilestoneSnapshot `json:"milestones"`
	CreatedAt  time.Time           `json:"created_at"`
}

// Sink 申诉受理方
//
// 对核心来说是发后不理：提交失败会被上报但不阻塞决策结果。
type Sink interface {
	Submit(ctx context.Context, inquiry *Inquiry) error
}

// WebhookSink 通过 HTTP 把工单转发到客服系统
type WebhookSink struct {
	url    string
	client *http.Client
}

// NewSink 根据配置创建申诉受理方，未配置地址时仅落库不转发
func NewSink(cfg config.SupportConfig) Sink {
	if cfg.WebhookUrl == "" {
		return &NoopSink{}
	}
	return &WebhookSink{
		url:    cfg.WebhookUrl,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Submit 转发申诉工单
func (s *WebhookSink) Submit(ctx context.Context, inquiry *Inquiry) error {
	body, err := json.Marshal(inquiry)
	if err != nil {
		return fmt.Errorf("failed to encode inquiry: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build inquiry request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to deliver inquiry: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("inquiry sink responded with status %d", resp.StatusCode)
	}
	return nil
}

// NoopSink 未配置客服系统时的占位实现
type NoopSink struct{}

func (s *NoopSink) Submit(ctx context.Context, inquiry *Inquiry) error {
	return nil
}
