package alert

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEventRenderPutsOrderFirstAndErrorLast(t *testing.T) {
	ev := Event{
		Name: "order_unresolved",
		App:  "cexcheck",
		At:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Fields: map[string]string{
			"error":       "lookup exhausted",
			"attempts":    "3",
			"vol":         "2",
			"price":       "65000.5",
			"symbol":      "BTC_USDT",
			"source":      "mexc/futures",
			"externalOid": "ext-1",
			"side":        "1",
		},
	}
	msg := ev.Render()
	require.Equal(t, strings.Join([]string{
		"[cexcheck] order_unresolved",
		"at 2026-03-01T12:00:00Z",
		"order:",
		"  source: mexc/futures",
		"  symbol: BTC_USDT",
		"  side: 1",
		"  price: 65000.5",
		"  vol: 2",
		"  externalOid: ext-1",
		"details:",
		"  attempts: 3",
		"error: lookup exhausted",
	}, "\n"), msg)
}

func TestEventRenderClipsLongMessages(t *testing.T) {
	ev := Event{Name: "x", App: "a", Fields: map[string]string{"error": strings.Repeat("e", 5000)}}
	msg := ev.Render()
	require.Len(t, []rune(msg), maxMessageLen)
	require.True(t, strings.HasSuffix(msg, "..."))
}
