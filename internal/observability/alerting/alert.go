package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	xerrors "SwarmFlow/internal/errors"
	"SwarmFlow/pkg/logger"
)

// Channel 表示通知渠道。
type Channel string

// 支持的通知渠道
const (
	ChannelLog     Channel = "log"
	ChannelWebhook Channel = "webhook"
)

// Alert 描述一次需要告警的故障。
type Alert struct {
	Code       xerrors.Code      `json:"code"`
	Message    string            `json:"message"`
	Severity   xerrors.Severity  `json:"severity"`
	Component  string            `json:"component"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// FromError 将统一错误转换为告警。
func FromError(component string, err error) Alert {
	alert := Alert{
		Code:       xerrors.CodeOf(err),
		Message:    err.Error(),
		Severity:   xerrors.SeverityCritical,
		Component:  component,
		OccurredAt: time.Now().UTC(),
	}
	if e, ok := xerrors.From(err); ok {
		alert.Severity = e.Severity()
		alert.Metadata = e.Metadata()
	}
	return alert
}

// Notifier 负责将告警发送到指定渠道。
type Notifier interface {
	Channel() Channel
	Notify(ctx context.Context, alert Alert) error
}

// Dispatcher 将告警广播给多个通知器。
type Dispatcher interface {
	Notify(ctx context.Context, alert Alert) error
}

// FanoutDispatcher 实现将告警投递到多个通知器的逻辑。
type FanoutDispatcher struct {
	notifiers map[Channel]Notifier
}

// NewFanout 创建一个新的 FanoutDispatcher。
func NewFanout(notifiers ...Notifier) *FanoutDispatcher {
	set := make(map[Channel]Notifier, len(notifiers))
	for _, n := range notifiers {
		if n == nil {
			continue
		}
		set[n.Channel()] = n
	}
	return &FanoutDispatcher{notifiers: set}
}

// Notify 将告警广播至所有注册渠道。
func (d *FanoutDispatcher) Notify(ctx context.Context, alert Alert) error {
	if d == nil {
		return nil
	}
	var errs []error
	for _, notifier := range d.notifiers {
		if err := notifier.Notify(ctx, alert); err != nil {
			errs = append(errs, fmt.Errorf("channel %s: %w", notifier.Channel(), err))
		}
	}
	return errors.Join(errs...)
}

// NotifyError 仅在错误码要求告警时通知，返回是否发送。
func NotifyError(ctx context.Context, d Dispatcher, component string, err error) bool {
	if d == nil || err == nil || !xerrors.ShouldAlert(err) {
		return false
	}
	if nerr := d.Notify(ctx, FromError(component, err)); nerr != nil {
		logger.L().Warn("告警发送失败", slog.String("component", component), slog.Any("error", nerr))
	}
	return true
}

// LogNotifier 将告警写入审计日志。
type LogNotifier struct{}

// Channel 返回日志渠道。
func (LogNotifier) Channel() Channel { return ChannelLog }

// Notify 记录告警。
func (LogNotifier) Notify(_ context.Context, alert Alert) error {
	logger.Audit().Error("告警",
		slog.String("code", string(alert.Code)),
		slog.String("severity", string(alert.Severity)),
		slog.String("component", alert.Component),
		slog.String("message", alert.Message),
	)
	return nil
}

// WebhookNotifier 以 JSON POST 的方式发送告警。
type WebhookNotifier struct {
	URL    string
	Client *http.Client
}

// Channel 返回 Webhook 渠道。
func (n *WebhookNotifier) Channel() Channel { return ChannelWebhook }

// Notify 发送告警。
func (n *WebhookNotifier) Notify(ctx context.Context, alert Alert) error {
	if n == nil || n.URL == "" {
		logger.L().Warn("WebhookNotifier 未正确配置，跳过发送", slog.String("code", string(alert.Code)))
		return nil
	}
	body, err := json.Marshal(alert)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	client := n.Client
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook 返回状态码 %d", resp.StatusCode)
	}
	return nil
}
