package alerts

import (
	"context"
	"errors"
	"fmt"

	"github.com/liamashdown/tokenradar/internal/metrics"
	"github.com/sirupsen/logrus"
)

// MultiSender fans an alert out to several transports. Required senders
// decide the outcome: if any of them fails the alert counts as not
// delivered and mirrors are skipped. Mirror failures are only logged. With
// no required senders the alert is delivered when at least one mirror
// accepted it.
type MultiSender struct {
	required []NamedSender
	mirrors  []NamedSender
	log      *logrus.Logger
}

// NewMultiSender creates a new multi-sender
func NewMultiSender(log *logrus.Logger, required []NamedSender, mirrors ...NamedSender) *MultiSender {
	return &MultiSender{
		required: required,
		mirrors:  mirrors,
		log:      log,
	}
}

// Send sends the alert to all configured senders
func (s *MultiSender) Send(ctx context.Context, alert *Alert) error {
	for _, sender := range s.required {
		if err := sender.Send(ctx, alert); err != nil {
			metrics.SenderErrors.WithLabelValues(sender.Name()).Inc()
			return fmt.Errorf("%s: %w", sender.Name(), err)
		}
	}

	var errs []error
	for _, sender := range s.mirrors {
		if err := sender.Send(ctx, alert); err != nil {
			metrics.SenderErrors.WithLabelValues(sender.Name()).Inc()
			s.log.WithError(err).WithFields(logrus.Fields{
				"sender":   sender.Name(),
				"kind":     alert.Kind,
				"contract": alert.ContractID,
			}).Warn("Mirror sender failed")
			errs = append(errs, fmt.Errorf("%s: %w", sender.Name(), err))
		}
	}

	if len(s.required) == 0 && len(s.mirrors) > 0 && len(errs) == len(s.mirrors) {
		return fmt.Errorf("all senders failed: %w", errors.Join(errs...))
	}
	return nil
}
