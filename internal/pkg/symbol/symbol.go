// Package symbol converts trading pairs between the internal concatenated
// form (BTCUSDT) and exchange-specific spellings.
package symbol

import (
	"strings"
)

type Symbol struct {
	Base  string
	Quote string
}

// Internal 是配置与存储使用的形式（无分隔符，大写）。
func (s Symbol) Internal() string {
	if s.Base == "" || s.Quote == "" {
		return ""
	}
	return s.Base + s.Quote
}

// Gate 返回 gate.io 合约名（BTC_USDT）。
func (s Symbol) Gate() string {
	if s.Base == "" || s.Quote == "" {
		return ""
	}
	return s.Base + "_" + s.Quote
}

var quoteCurrencies = []string{"USDT", "BUSD", "USDC", "TUSD", "FDUSD", "BTC", "ETH", "BNB"}

// Parse 接受 BTCUSDT、BTC/USDT、btc_usdt、BTC-USDT 等写法。
func Parse(s string) Symbol {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return Symbol{}
	}
	if idx := strings.Index(s, ":"); idx >= 0 {
		s = s[:idx]
	}
	for _, sep := range []string{"/", "_", "-"} {
		if parts := strings.SplitN(s, sep, 2); len(parts) == 2 {
			base, quote := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
			if base == "" || quote == "" {
				return Symbol{}
			}
			return Symbol{Base: base, Quote: quote}
		}
	}
	for _, quote := range quoteCurrencies {
		if strings.HasSuffix(s, quote) && len(s) > len(quote) {
			return Symbol{Base: s[:len(s)-len(quote)], Quote: quote}
		}
	}
	return Symbol{}
}

// Normalize 返回内部形式；无法识别计价币时退化为去分隔符的大写串。
func Normalize(s string) string {
	if norm := Parse(s).Internal(); norm != "" {
		return norm
	}
	r := strings.NewReplacer("/", "", "_", "", "-", "", " ", "")
	return strings.ToUpper(r.Replace(strings.TrimSpace(s)))
}

// ToGate 把内部形式转换为 gate.io 合约名。
func ToGate(s string) string {
	if g := Parse(s).Gate(); g != "" {
		return g
	}
	return Normalize(s)
}

func IsValid(s string) bool {
	sym := Parse(s)
	return sym.Base != "" && sym.Quote != ""
}
