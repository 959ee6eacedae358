package config

import (
	"errors"
	"fmt"
	"strings"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const (
	defaultConfigPath = "configs/config.yaml"
	envPrefix         = "farb"
)

// Load 读取配置文件并结合环境变量返回 Config。
func Load(path string) (*Config, error) {
	v := viper.New()

	if path == "" {
		path = defaultConfigPath
	}

	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix(envPrefix)
	replacer := strings.NewReplacer(".", "_")
	v.SetEnvKeyReplacer(replacer)
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil, fmt.Errorf("未找到配置文件 %q: %w", path, err)
		}
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.environment", "development")

	v.SetDefault("exchange.api_key", "")
	v.SetDefault("exchange.api_secret", "")
	v.SetDefault("exchange.use_sandbox", false)
	v.SetDefault("exchange.recv_window", 5000)
	v.SetDefault("exchange.retry.max_attempts", 5)
	v.SetDefault("exchange.retry.min_delay", "500ms")
	v.SetDefault("exchange.retry.max_delay", "5s")

	v.SetDefault("execution.capital", 200000.0)
	v.SetDefault("execution.batch_quote", 200.0)
	v.SetDefault("execution.spot_symbol", "ASTER/USDT")
	v.SetDefault("execution.futures_symbol", "ASTER/USDT:USDT")
	v.SetDefault("execution.batch_delay", "1s")
	v.SetDefault("execution.mode", ModeBuySpotShortFutures)
	v.SetDefault("execution.fill_poll.max_attempts", 5)
	v.SetDefault("execution.fill_poll.interval", "1s")

	v.SetDefault("rules.profit_targets", []map[string]interface{}{
		{"threshold": 10.0, "percentage": 0.25},
		{"threshold": 25.0, "percentage": 0.30},
		{"threshold": 50.0, "percentage": 0.40},
		{"threshold": 100.0, "percentage": 1.0},
	})
	v.SetDefault("rules.stop_loss", -20.0)
	v.SetDefault("rules.trailing_stop", true)
	v.SetDefault("rules.trailing_distance", 10.0)
	v.SetDefault("rules.max_drawdown", 15.0)
	v.SetDefault("rules.margin_limit", 0.35)
	v.SetDefault("rules.funding.negative_threshold", -0.002)
	v.SetDefault("rules.funding.very_negative", -0.005)

	v.SetDefault("scheduler.check_interval", "1m")

	v.SetDefault("database.path", "data/funding_arb.db")
	v.SetDefault("database.max_open_conns", 4)
	v.SetDefault("database.max_idle_conns", 4)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.in_memory", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.encoding", "console")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.output_paths", []string{"stdout"})
	v.SetDefault("logging.error_output_paths", []string{"stderr"})

	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.chat_id", "")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}
