// Package alert carries events that need an operator, such as orders whose outcome could not be determined.
package alert

import (
	"context"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/chia4/cex-api/internal/logging"
)

// Alerter is the operator-visible channel. Important must not block the caller.
type Alerter interface {
	Important(event string, fields map[string]string)
}

// Notifier delivers one rendered alert.
type Notifier interface {
	Notify(ctx context.Context, msg string) error
}

// LogAlerter writes alerts to the log only; used when no notifier is configured.
type LogAlerter struct {
	Log *logrus.Entry
}

func (a LogAlerter) Important(event string, fields map[string]string) {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	entry := logging.Component(a.Log, "alert").WithField("event", event)
	for _, k := range keys {
		entry = entry.WithField(k, fields[k])
	}
	entry.Error("operator attention required")
}
