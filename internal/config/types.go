package config

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
)

// Config 聚合了系统运行所需的全部配置项。
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Exchange  ExchangeConfig  `mapstructure:"exchange"`
	Execution ExecutionConfig `mapstructure:"execution"`
	Rules     RulesConfig     `mapstructure:"rules"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
}

// AppConfig 控制应用级参数。
type AppConfig struct {
	Environment string `mapstructure:"environment"`
}

// ExchangeConfig 描述交易所连接信息，现货与合约共用同一组密钥。
type ExchangeConfig struct {
	APIKey     string      `mapstructure:"api_key"`
	APISecret  string      `mapstructure:"api_secret"`
	UseSandbox bool        `mapstructure:"use_sandbox"`
	RecvWindow int         `mapstructure:"recv_window"`
	Retry      RetryConfig `mapstructure:"retry"`
}

// RetryConfig 统一控制重试机制。
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	MinDelay    time.Duration `mapstructure:"min_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
}

// ExecutionConfig 控制分批建仓行为。
type ExecutionConfig struct {
	Capital       float64        `mapstructure:"capital"`
	BatchQuote    float64        `mapstructure:"batch_quote"`
	SpotSymbol    string         `mapstructure:"spot_symbol"`
	FuturesSymbol string         `mapstructure:"futures_symbol"`
	BatchDelay    time.Duration  `mapstructure:"batch_delay"`
	Mode          string         `mapstructure:"mode"`
	FillPoll      FillPollConfig `mapstructure:"fill_poll"`
}

// FillPollConfig 控制订单成交确认的轮询节奏。
type FillPollConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	Interval    time.Duration `mapstructure:"interval"`
}

// LadderRung 表示一档分批止盈目标。
type LadderRung struct {
	Threshold  float64 `mapstructure:"threshold"`
	Percentage float64 `mapstructure:"percentage"`
}

// RulesConfig 管理持仓规则参数。
type RulesConfig struct {
	ProfitTargets    []LadderRung  `mapstructure:"profit_targets"`
	StopLoss         float64       `mapstructure:"stop_loss"`
	TrailingStop     bool          `mapstructure:"trailing_stop"`
	TrailingDistance float64       `mapstructure:"trailing_distance"`
	MaxDrawdown      float64       `mapstructure:"max_drawdown"`
	MarginLimit      float64       `mapstructure:"margin_limit"`
	Funding          FundingConfig `mapstructure:"funding"`
}

// FundingConfig 描述资金费率相关阈值。
type FundingConfig struct {
	NegativeThreshold float64 `mapstructure:"negative_threshold"`
	VeryNegative      float64 `mapstructure:"very_negative"`
}

// SchedulerConfig 控制主循环节奏。
type SchedulerConfig struct {
	CheckInterval time.Duration `mapstructure:"check_interval"`
}

// DatabaseConfig 管理数据库连接。
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	InMemory        bool          `mapstructure:"in_memory"`
}

// LoggingConfig 控制日志输出。
type LoggingConfig struct {
	Level            string   `mapstructure:"level"`
	Encoding         string   `mapstructure:"encoding"`
	Development      bool     `mapstructure:"development"`
	OutputPaths      []string `mapstructure:"output_paths"`
	ErrorOutputPaths []string `mapstructure:"error_output_paths"`
}

// TelegramConfig 控制通知推送，未配置时自动关闭。
type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
}

// 建仓方向模式。
const (
	ModeBuySpotShortFutures = "buy_spot_short_futures"
	ModeSellSpotLongFutures = "sell_spot_long_futures"
)

// Validate 对配置进行基本校验。
func (c *Config) Validate() error {
	var err error

	if c.App.Environment == "" {
		err = multierr.Append(err, errors.New("app.environment 不能为空"))
	}
	if c.Exchange.Retry.MaxAttempts <= 0 {
		err = multierr.Append(err, errors.New("exchange.retry.max_attempts 必须大于0"))
	}
	if c.Exchange.Retry.MinDelay <= 0 || c.Exchange.Retry.MaxDelay <= 0 {
		err = multierr.Append(err, errors.New("exchange.retry.delay 必须为正"))
	}
	if c.Exchange.Retry.MinDelay > c.Exchange.Retry.MaxDelay {
		err = multierr.Append(err, errors.New("exchange.retry.min_delay 不能大于 max_delay"))
	}
	if c.Exchange.RecvWindow <= 0 {
		err = multierr.Append(err, errors.New("exchange.recv_window 必须大于0"))
	}
	if c.Execution.SpotSymbol == "" {
		err = multierr.Append(err, errors.New("execution.spot_symbol 不能为空"))
	}
	if c.Execution.FuturesSymbol == "" {
		err = multierr.Append(err, errors.New("execution.futures_symbol 不能为空"))
	}
	if c.Execution.Mode != ModeBuySpotShortFutures && c.Execution.Mode != ModeSellSpotLongFutures {
		err = multierr.Append(err, fmt.Errorf("execution.mode 不支持: %q", c.Execution.Mode))
	}
	if c.Execution.BatchDelay < 0 {
		err = multierr.Append(err, errors.New("execution.batch_delay 不能为负"))
	}
	if c.Execution.FillPoll.MaxAttempts <= 0 {
		err = multierr.Append(err, errors.New("execution.fill_poll.max_attempts 必须大于0"))
	}
	if c.Execution.FillPoll.Interval <= 0 {
		err = multierr.Append(err, errors.New("execution.fill_poll.interval 必须大于0"))
	}
	if len(c.Rules.ProfitTargets) == 0 {
		err = multierr.Append(err, errors.New("rules.profit_targets 至少包含一档"))
	}
	for i, rung := range c.Rules.ProfitTargets {
		if rung.Threshold <= 0 {
			err = multierr.Append(err, fmt.Errorf("rules.profit_targets[%d].threshold 必须大于0", i))
		}
		if rung.Percentage <= 0 || rung.Percentage > 1 {
			err = multierr.Append(err, fmt.Errorf("rules.profit_targets[%d].percentage 必须位于(0,1]", i))
		}
		if i > 0 && rung.Threshold <= c.Rules.ProfitTargets[i-1].Threshold {
			err = multierr.Append(err, errors.New("rules.profit_targets 阈值必须严格递增"))
		}
	}
	if c.Rules.StopLoss >= 0 {
		err = multierr.Append(err, errors.New("rules.stop_loss 必须为负"))
	}
	if c.Rules.TrailingStop && c.Rules.TrailingDistance <= 0 {
		err = multierr.Append(err, errors.New("rules.trailing_distance 必须大于0"))
	}
	if c.Rules.MaxDrawdown <= 0 {
		err = multierr.Append(err, errors.New("rules.max_drawdown 必须大于0"))
	}
	if c.Rules.MarginLimit <= 0 || c.Rules.MarginLimit > 1 {
		err = multierr.Append(err, errors.New("rules.margin_limit 必须位于(0,1]"))
	}
	if c.Rules.Funding.VeryNegative >= 0 {
		err = multierr.Append(err, errors.New("rules.funding.very_negative 必须为负"))
	}
	if c.Rules.Funding.NegativeThreshold <= c.Rules.Funding.VeryNegative {
		err = multierr.Append(err, errors.New("rules.funding.negative_threshold 必须大于 very_negative"))
	}
	if c.Scheduler.CheckInterval <= 0 {
		err = multierr.Append(err, errors.New("scheduler.check_interval 必须大于0"))
	}
	if c.Database.Path == "" && !c.Database.InMemory {
		err = multierr.Append(err, errors.New("database.path 不能为空"))
	}
	if c.Database.MaxOpenConns <= 0 {
		err = multierr.Append(err, errors.New("database.max_open_conns 必须大于0"))
	}
	if c.Database.MaxIdleConns < 0 {
		err = multierr.Append(err, errors.New("database.max_idle_conns 不能为负"))
	}
	if c.Database.ConnMaxLifetime < 0 {
		err = multierr.Append(err, errors.New("database.conn_max_lifetime 不能为负"))
	}
	if c.Logging.Level == "" {
		err = multierr.Append(err, errors.New("logging.level 不能为空"))
	}
	if c.Logging.Encoding == "" {
		err = multierr.Append(err, errors.New("logging.encoding 不能为空"))
	}
	if len(c.Logging.OutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.output_paths 至少包含一个输出目标"))
	}
	if len(c.Logging.ErrorOutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.error_output_paths 至少包含一个输出目标"))
	}

	if err != nil {
		return fmt.Errorf("配置校验失败: %w", err)
	}

	return nil
}
