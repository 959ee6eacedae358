package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"funding-arb/internal/config"
	"funding-arb/internal/execution"
	"funding-arb/internal/risk"
)

const telegramAPIBase = "https://api.telegram.org"

// Notifier 通过 Telegram Bot API 推送关键事件。
// 未配置 token 或 chat_id 时所有方法静默返回。
type Notifier struct {
	cfg    config.TelegramConfig
	client *http.Client
	logger *zap.Logger
}

// NewNotifier 创建通知器。
func NewNotifier(cfg config.TelegramConfig, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}
}

// Enabled 判断通知是否配置完整。
func (n *Notifier) Enabled() bool {
	return n.cfg.BotToken != "" && n.cfg.ChatID != ""
}

// SendMessage 发送一条 HTML 格式消息。发送失败只记日志，不向上传播。
func (n *Notifier) SendMessage(ctx context.Context, text string) {
	if !n.Enabled() {
		return
	}

	payload := map[string]string{
		"chat_id":    n.cfg.ChatID,
		"text":       text,
		"parse_mode": "HTML",
	}

	body, err := json.Marshal(payload)
	if err != nil {
		n.logger.Warn("序列化通知消息失败", zap.Error(err))
		return
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", telegramAPIBase, n.cfg.BotToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		n.logger.Warn("构造通知请求失败", zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		n.logger.Warn("发送 Telegram 通知失败", zap.Error(err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		n.logger.Warn("Telegram API 返回异常状态",
			zap.Int("status", resp.StatusCode),
		)
	}
}

// NotifyActions 推送一轮规则动作摘要。
func (n *Notifier) NotifyActions(ctx context.Context, symbol string, actions []risk.ActionEvent) {
	if !n.Enabled() || len(actions) == 0 {
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "<b>规则动作</b> %s\n", symbol)
	for _, action := range actions {
		marker := "•"
		if action.Type.FullClose() {
			marker = "‼️"
		}
		line := fmt.Sprintf("%s %s: %s", marker, action.Type, action.Reason)
		if action.Quantity > 0 {
			line += fmt.Sprintf(" (qty=%.4f)", action.Quantity)
		}
		if action.RealizedProfit != 0 {
			line += fmt.Sprintf(" 已实现 %.2f USDT", action.RealizedProfit)
		}
		if action.Error != "" {
			line += " [执行失败]"
		}
		if action.NoOp {
			line += " [数量过小，跳过]"
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	n.SendMessage(ctx, b.String())
}

// NotifyExecutionReport 推送建仓完成摘要。
func (n *Notifier) NotifyExecutionReport(ctx context.Context, report execution.ExecutionReport) {
	if !n.Enabled() {
		return
	}

	text := fmt.Sprintf(
		"<b>建仓完成</b> (%s)\n现货 %s: 买卖 %.4f, 花费 %.2f USDT, %d 笔\n合约 %s: 对冲 %.4f, %d 笔",
		report.Mode,
		report.Spot.Symbol, report.Spot.TotalExecutedQty, report.Spot.TotalQuoteSpent, len(report.Spot.Orders),
		report.Futures.Symbol, report.Futures.TotalExecutedQty, len(report.Futures.Orders),
	)
	n.SendMessage(ctx, text)
}

// NotifyStartup 推送启动消息。
func (n *Notifier) NotifyStartup(ctx context.Context, symbol string, interval time.Duration) {
	n.SendMessage(ctx, fmt.Sprintf("<b>funding-arb 已启动</b>\n标的: %s\n检查间隔: %s", symbol, interval))
}

// NotifyShutdown 推送停止消息。
func (n *Notifier) NotifyShutdown(ctx context.Context, reason string, totalRealized float64) {
	n.SendMessage(ctx, fmt.Sprintf("<b>funding-arb 已停止</b>\n原因: %s\n累计已实现收益: %.2f USDT", reason, totalRealized))
}

// NotifyError 推送异常告警。
func (n *Notifier) NotifyError(ctx context.Context, message string, err error) {
	if err != nil {
		message = fmt.Sprintf("%s: %v", message, err)
	}
	n.SendMessage(ctx, "<b>异常告警</b>\n"+message)
}
