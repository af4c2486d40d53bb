package symbol

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"BTCUSDT":   "BTCUSDT",
		"btc/usdt":  "BTCUSDT",
		"eth_usdt":  "ETHUSDT",
		" sol-usdc": "SOLUSDC",
		"ETHBTC":    "ETHBTC",
		"foo/":      "FOO",
		"":          "",
	}
	for in, want := range cases {
		t.Run(in, func(t *testing.T) {
			assert.Equal(t, want, Normalize(in))
		})
	}
}

func TestToGate(t *testing.T) {
	assert.Equal(t, "BTC_USDT", ToGate("BTCUSDT"))
	assert.Equal(t, "ETH_USDC", ToGate("eth/usdc"))
	assert.Equal(t, "XYZ", ToGate("xyz"))
	assert.True(t, IsValid("BTCUSDT"))
	assert.False(t, IsValid("USDT"))
}
