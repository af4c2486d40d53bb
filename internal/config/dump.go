package config

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Dump 将生效配置渲染为 YAML；敏感字段会被遮蔽。
func Dump(cfg *Config) ([]byte, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}
	masked := *cfg
	if masked.Notify.Telegram.BotToken != "" {
		masked.Notify.Telegram.BotToken = "***"
	}
	return encodeYAML(&masked)
}

// DumpRaw 与 Dump 相同但保留敏感字段，用于转换旧配置文件。
func DumpRaw(cfg *Config) ([]byte, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}
	return encodeYAML(cfg)
}

func encodeYAML(cfg *Config) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return nil, fmt.Errorf("encode config failed: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
