package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"scalper/internal/logger"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tidwall/gjson"
)

// legacySchema 描述旧版 config_live.json 的结构。
const legacySchema = `{
  "type": "object",
  "required": ["bot_settings", "strategy_parameters", "risk_management", "time_settings"],
  "properties": {
    "exchange": {
      "type": "object",
      "properties": {
        "name": {"type": "string"},
        "testnet": {"type": "boolean"}
      }
    },
    "bot_settings": {
      "type": "object",
      "required": ["symbol", "initial_balance"],
      "properties": {
        "symbol": {"type": "string", "minLength": 1},
        "paper_trading": {"type": "boolean"},
        "initial_balance": {"type": "number", "exclusiveMinimum": 0}
      }
    },
    "strategy_parameters": {
      "type": "object",
      "properties": {
        "risk_per_trade": {"type": "number", "exclusiveMinimum": 0, "maximum": 1},
        "reward_ratio": {"type": "number", "exclusiveMinimum": 0},
        "trading_timeframe": {"type": "string"},
        "range_timeframe": {"type": "string"}
      }
    },
    "risk_management": {
      "type": "object",
      "properties": {
        "max_daily_trades": {"type": "integer", "minimum": 0},
        "max_daily_loss_usd": {"type": "number", "minimum": 0},
        "max_position_size_usd": {"type": "number", "minimum": 0}
      }
    },
    "time_settings": {
      "type": "object",
      "required": ["timezone"],
      "properties": {
        "timezone": {"type": "string"},
        "range_start_time": {"type": "string", "pattern": "^[0-9]{2}:[0-9]{2}$"},
        "range_end_time": {"type": "string", "pattern": "^[0-9]{2}:[0-9]{2}$"},
        "entry_cutoff_time": {"type": "string", "pattern": "^[0-9]{2}:[0-9]{2}$"},
        "market_open": {"type": "string", "pattern": "^[0-9]{2}:[0-9]{2}$"},
        "market_close": {"type": "string", "pattern": "^[0-9]{2}:[0-9]{2}$"}
      }
    },
    "logging": {
      "type": "object",
      "properties": {"log_file": {"type": "string"}}
    }
  }
}`

// legacyFields 将旧 JSON 路径映射到新配置 key。
var legacyFields = []struct {
	from string
	to   string
}{
	{"exchange.name", "market.exchange"},
	{"bot_settings.symbol", "market.symbol"},
	{"bot_settings.paper_trading", "live.paper_trading"},
	{"bot_settings.initial_balance", "risk.initial_balance"},
	{"strategy_parameters.risk_per_trade", "risk.risk_per_trade"},
	{"strategy_parameters.reward_ratio", "strategy.reward_ratio"},
	{"strategy_parameters.trading_timeframe", "market.trading_timeframe"},
	{"strategy_parameters.range_timeframe", "market.range_timeframe"},
	{"risk_management.max_daily_trades", "risk.max_daily_trades"},
	{"risk_management.max_daily_loss_usd", "risk.max_daily_loss_usd"},
	{"risk_management.max_position_size_usd", "risk.max_position_size_usd"},
	{"time_settings.timezone", "session.timezone"},
	{"time_settings.range_start_time", "session.range_start_time"},
	{"time_settings.range_end_time", "session.range_end_time"},
	{"time_settings.entry_cutoff_time", "session.entry_cutoff_time"},
	{"time_settings.market_open", "session.market_open"},
	{"time_settings.market_close", "session.market_close"},
	{"logging.log_file", "live.trade_log"},
}

// LoadLegacyJSON 读取旧版 JSON 配置（range FVG 实盘机器人格式）并转换为 Config。
func LoadLegacyJSON(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read legacy config failed: %w", err)
	}
	return ParseLegacyJSON(raw)
}

func ParseLegacyJSON(raw []byte) (*Config, error) {
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("legacy config is not valid json")
	}
	if err := validateLegacy(raw); err != nil {
		return nil, err
	}
	doc := gjson.ParseBytes(raw)
	settings := map[string]any{
		"strategy": map[string]any{"name": "range_fvg"},
		"session":  map[string]any{"enabled": true},
	}
	for _, f := range legacyFields {
		res := doc.Get(f.from)
		if !res.Exists() {
			continue
		}
		setPath(settings, f.to, res.Value())
	}
	if key := doc.Get("exchange.api_key").String(); key != "" && !doc.Get("bot_settings.paper_trading").Bool() {
		logger.Warnf("legacy config requests live trading; api keys are ignored and the bot runs in paper mode")
		setPath(settings, "live.paper_trading", true)
	}
	return decode(settings)
}

func validateLegacy(raw []byte) error {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("legacy.json", strings.NewReader(legacySchema)); err != nil {
		return err
	}
	schema, err := compiler.Compile("legacy.json")
	if err != nil {
		return err
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return err
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("legacy config invalid: %w", err)
	}
	return nil
}

func setPath(root map[string]any, path string, val any) {
	parts := strings.Split(path, ".")
	node := root
	for _, p := range parts[:len(parts)-1] {
		next, ok := node[p].(map[string]any)
		if !ok {
			next = make(map[string]any)
			node[p] = next
		}
		node = next
	}
	node[parts[len(parts)-1]] = val
}
