package alerts

import (
	"context"

	"github.com/sirupsen/logrus"
)

// LogSender writes alerts to the logger
type LogSender struct {
	log *logrus.Logger
}

// NewLogSender creates a new log sender
func NewLogSender(log *logrus.Logger) *LogSender {
	return &LogSender{log: log}
}

func (s *LogSender) Name() string { return "log" }

// Send logs the alert
func (s *LogSender) Send(ctx context.Context, alert *Alert) error {
	fields := logrus.Fields{
		"alert_id":    alert.ID,
		"kind":        alert.Kind,
		"destination": alert.Destination,
		"contract":    alert.ContractID,
	}
	if alert.Kind == KindGrowth {
		fields["multiplier"] = alert.Multiplier
	}
	s.log.WithFields(fields).Info("Alert generated")
	return nil
}
