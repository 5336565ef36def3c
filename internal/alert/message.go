package alert

import (
	"sort"
	"strings"
	"time"
)

// maxMessageLen keeps a rendered alert inside a single Telegram message.
const maxMessageLen = 4000

// orderKeys are rendered first, in this order, so the submitted order reads top to bottom.
var orderKeys = []string{
	"source",
	"symbol", "contract", "currency_pair",
	"side", "trade_type",
	"price",
	"quantity", "amount", "vol", "size",
	"leverage",
	"externalOid", "text", "client_order_id",
}

// Event is one alert as queued by Manager.
type Event struct {
	Name   string
	App    string
	At     time.Time
	Fields map[string]string
}

// Render formats the event as plain text: header, order parameters, other fields, then the error.
func (e Event) Render() string {
	var b strings.Builder
	b.WriteString("[" + e.App + "] " + e.Name + "\n")
	b.WriteString("at " + e.At.Format(time.RFC3339) + "\n")

	seen := make(map[string]bool, len(e.Fields))
	var order []string
	for _, k := range orderKeys {
		if v, ok := e.Fields[k]; ok {
			order = append(order, "  "+k+": "+v)
			seen[k] = true
		}
	}
	seen["error"] = true
	var rest []string
	for k, v := range e.Fields {
		if !seen[k] {
			rest = append(rest, "  "+k+": "+v)
		}
	}
	sort.Strings(rest)

	if len(order) > 0 {
		b.WriteString("order:\n" + strings.Join(order, "\n") + "\n")
	}
	if len(rest) > 0 {
		b.WriteString("details:\n" + strings.Join(rest, "\n") + "\n")
	}
	if errText, ok := e.Fields["error"]; ok {
		b.WriteString("error: " + errText + "\n")
	}
	return clip(strings.TrimRight(b.String(), "\n"), maxMessageLen)
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
