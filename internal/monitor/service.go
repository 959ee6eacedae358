package monitor

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"funding-arb/internal/exchange"
	"funding-arb/internal/execution"
	"funding-arb/internal/risk"
	"funding-arb/internal/store"
)

// Service 负责持久化运行期事件，写入失败只告警不影响主流程。
type Service struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewService 初始化监控服务，创建所需表结构。
func NewService(store *store.Store, logger *zap.Logger) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("monitor: store 不能为空")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Service{
		db:     store.DB(),
		logger: logger,
	}

	if err := s.initSchema(); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Service) initSchema() error {
	stmt := `
CREATE TABLE IF NOT EXISTS monitor_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	event_type TEXT NOT NULL,
	payload TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_monitor_events_type ON monitor_events(event_type);
`
	if _, err := s.db.Exec(stmt); err != nil {
		return fmt.Errorf("monitor: 初始化表失败: %w", err)
	}
	return nil
}

// Record 写入单个事件。
func (s *Service) Record(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("monitor: 序列化事件失败: %w", err)
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO monitor_events (event_type, payload, created_at) VALUES (?, ?, ?)`,
		string(event.Type), string(payload), event.Timestamp.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("monitor: 写入事件失败: %w", err)
	}

	return nil
}

// RecordActions 记录规则引擎的一轮动作。
func (s *Service) RecordActions(ctx context.Context, symbol string, actions []risk.ActionEvent) {
	if len(actions) == 0 {
		return
	}
	if err := s.Record(ctx, Event{
		Type:      EventAction,
		Timestamp: time.Now().UTC(),
		Payload:   ActionPayload{Symbol: symbol, Actions: actions},
	}); err != nil {
		s.logger.Warn("记录规则动作失败", zap.Error(err))
	}
}

// RecordExecution 记录建仓执行报告。
func (s *Service) RecordExecution(ctx context.Context, report execution.ExecutionReport) {
	if err := s.Record(ctx, Event{
		Type:      EventExecution,
		Timestamp: time.Now().UTC(),
		Payload:   ExecutionPayload{Report: report},
	}); err != nil {
		s.logger.Warn("记录执行报告失败", zap.Error(err))
	}
}

// RecordPosition 记录仓位与账户快照。
func (s *Service) RecordPosition(ctx context.Context, position exchange.PositionSnapshot, account exchange.AccountSnapshot, funding exchange.FundingSnapshot) {
	if err := s.Record(ctx, Event{
		Type:      EventPosition,
		Timestamp: time.Now().UTC(),
		Payload:   PositionPayload{Position: position, Account: account, Funding: funding},
	}); err != nil {
		s.logger.Warn("记录仓位事件失败", zap.Error(err))
	}
}

// RecordError 记录异常。
func (s *Service) RecordError(ctx context.Context, msg string, err error, ctxMap map[string]interface{}) {
	payload := ErrorPayload{
		Message: msg,
		Context: ctxMap,
	}
	if err != nil {
		payload.Error = err.Error()
	}
	if recErr := s.Record(ctx, Event{
		Type:      EventError,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}); recErr != nil {
		s.logger.Warn("记录异常事件失败", zap.Error(recErr))
	}
}

// ListEvents 按类型检索最近事件，时间倒序。
func (s *Service) ListEvents(ctx context.Context, eventType EventType, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT event_type, payload, created_at FROM monitor_events WHERE event_type = ? ORDER BY id DESC LIMIT ?`,
		string(eventType), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("monitor: 查询事件失败: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			typ       string
			payload   string
			createdAt string
		)
		if err := rows.Scan(&typ, &payload, &createdAt); err != nil {
			return nil, fmt.Errorf("monitor: 读取事件失败: %w", err)
		}

		ts, _ := time.Parse(time.RFC3339, createdAt)
		var decoded interface{}
		if err := json.Unmarshal([]byte(payload), &decoded); err != nil {
			decoded = payload
		}

		events = append(events, Event{
			Type:      EventType(typ),
			Timestamp: ts,
			Payload:   decoded,
		})
	}

	return events, rows.Err()
}
