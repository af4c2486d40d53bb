package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

const (
	// EnvConfigPath 覆盖默认配置文件路径。
	EnvConfigPath = "SCALPER_CONFIG"
	DefaultPath   = "configs/config.yaml"

	// 敏感字段可以不写进文件，改由环境变量提供。
	EnvTelegramToken = "SCALPER_TELEGRAM_BOT_TOKEN"
	EnvTelegramChat  = "SCALPER_TELEGRAM_CHAT_ID"
)

// ResolvePath 按 flag > 环境变量 > 默认值 的顺序选择配置文件。
func ResolvePath(flagPath string) string {
	for _, p := range []string{flagPath, os.Getenv(EnvConfigPath)} {
		if p = strings.TrimSpace(p); p != "" {
			return p
		}
	}
	return DefaultPath
}

// Load 读取 YAML 配置并合并 include 链（被 include 的文件先合并，当前文件覆盖），
// 之后补齐默认值并校验。
func Load(path string) (*Config, error) {
	chain, err := includeChain(path)
	if err != nil {
		return nil, err
	}
	merged := viper.New()
	merged.SetConfigType("yaml")
	for _, file := range chain {
		part, err := readYAML(file)
		if err != nil {
			return nil, fmt.Errorf("reading config file failed (%s): %w", file, err)
		}
		if err := merged.MergeConfigMap(part.AllSettings()); err != nil {
			return nil, fmt.Errorf("merging config file failed (%s): %w", file, err)
		}
	}
	return decode(merged.AllSettings())
}

// decode 解码 settings，记录文件中显式出现的键，再补默认值与校验。
func decode(settings map[string]any) (*Config, error) {
	var cfg Config
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
		Result:           &cfg,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(settings); err != nil {
		return nil, fmt.Errorf("parsing config failed: %w", err)
	}
	set := make(keySet)
	markKeys("", settings, set)
	cfg.applyEnv()
	cfg.applyDefaults(set)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	if v := strings.TrimSpace(os.Getenv(EnvTelegramToken)); v != "" {
		c.Notify.Telegram.BotToken = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvTelegramChat)); v != "" {
		c.Notify.Telegram.ChatID = v
	}
}

func readYAML(path string) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	return v, nil
}

// includeChain 深度优先展开 include，返回按合并顺序排列的绝对路径。
func includeChain(path string) ([]string, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("config path cannot be empty")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	const (
		visiting = 1
		done     = 2
	)
	state := make(map[string]int)
	var out []string
	var walk func(string) error
	walk = func(p string) error {
		p = filepath.Clean(p)
		switch state[p] {
		case visiting:
			return fmt.Errorf("include cycle detected: %s", p)
		case done:
			return nil
		}
		state[p] = visiting
		v, err := readYAML(p)
		if err != nil {
			return fmt.Errorf("parsing include failed (%s): %w", p, err)
		}
		incs, err := includeList(v.Get("include"))
		if err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
		for _, inc := range incs {
			if !filepath.IsAbs(inc) {
				inc = filepath.Join(filepath.Dir(p), inc)
			}
			if err := walk(inc); err != nil {
				return err
			}
		}
		state[p] = done
		out = append(out, p)
		return nil
	}
	if err := walk(abs); err != nil {
		return nil, err
	}
	return out, nil
}

func includeList(raw any) ([]string, error) {
	var items []string
	switch val := raw.(type) {
	case nil:
		return nil, nil
	case string:
		items = []string{val}
	case []string:
		items = val
	case []any:
		for _, item := range val {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("include only supports strings")
			}
			items = append(items, s)
		}
	default:
		return nil, fmt.Errorf("include must be a string array")
	}
	out := items[:0:0]
	for _, s := range items {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out, nil
}

// markKeys 把嵌套 settings 展开为 a.b.c 形式写入 dest。
func markKeys(prefix string, node any, dest keySet) {
	m, ok := node.(map[string]any)
	if !ok {
		if prefix != "" {
			dest.mark(prefix)
		}
		return
	}
	for k, v := range m {
		key := strings.ToLower(strings.TrimSpace(k))
		if key == "" {
			continue
		}
		if prefix != "" {
			key = prefix + "." + key
		}
		markKeys(key, v, dest)
	}
}
