package notifier

import (
	"fmt"
	"strings"
	"time"
)

// Telegram 单条消息上限 4096，留出 Markdown 包裹的余量。
const maxMessageLen = 3800

// Field 是消息体中的一行 label/value。
type Field struct {
	Label string
	Value string
}

// StructuredMessage 是成交、平仓与回测汇总共用的推送格式：
// 标题行 + 等宽代码块中的字段 + 可选 footer 与时间戳。
type StructuredMessage struct {
	Icon      string
	Title     string
	Fields    []Field
	Footer    string
	Timestamp time.Time
}

// Add 追加一行字段；value 为空时忽略。
func (m *StructuredMessage) Add(label, format string, args ...any) *StructuredMessage {
	value := strings.TrimSpace(fmt.Sprintf(format, args...))
	if value == "" {
		return m
	}
	m.Fields = append(m.Fields, Field{Label: strings.TrimSpace(label), Value: value})
	return m
}

func (m StructuredMessage) RenderMarkdown() string {
	var b strings.Builder
	if header := strings.TrimSpace(m.Icon + " " + m.Title); header != "" {
		b.WriteString(header)
		b.WriteString("\n\n")
	}
	b.WriteString(renderFields(m.Fields))
	if footer := strings.TrimSpace(m.Footer); footer != "" {
		b.WriteString(escapeFence(footer))
		b.WriteString("\n")
	}
	if !m.Timestamp.IsZero() {
		b.WriteString("Time: ")
		b.WriteString(m.Timestamp.Format("2006-01-02 15:04:05 MST"))
	}
	body := strings.TrimSpace(b.String())
	if len(body) > maxMessageLen {
		body = body[:maxMessageLen] + "..."
	}
	return body
}

func renderFields(fields []Field) string {
	width := 0
	kept := fields[:0:0]
	for _, f := range fields {
		if strings.TrimSpace(f.Value) == "" {
			continue
		}
		kept = append(kept, f)
		if n := len([]rune(f.Label)); n > width {
			width = n
		}
	}
	if len(kept) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("```\n")
	for _, f := range kept {
		if f.Label == "" {
			b.WriteString(escapeFence(f.Value))
		} else {
			fmt.Fprintf(&b, "%-*s %s", width+1, f.Label+":", escapeFence(f.Value))
		}
		b.WriteString("\n")
	}
	b.WriteString("```\n\n")
	return b.String()
}

func escapeFence(s string) string {
	return strings.ReplaceAll(s, "```", "'''")
}
