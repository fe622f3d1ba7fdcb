package ingest

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/liamashdown/tokenradar/internal/metrics"
	"github.com/liamashdown/tokenradar/internal/telegram"
	"github.com/sirupsen/logrus"
)

// UpdatesClient is the getUpdates half of the Bot API client
type UpdatesClient interface {
	GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]telegram.Update, error)
}

// TelegramSource long-polls the Bot API and pushes every channel post and
// message with text onto the queue. The chat id is the source id.
type TelegramSource struct {
	client      UpdatesClient
	queue       *Queue
	log         *logrus.Logger
	pollTimeout time.Duration
	backoff     *backoff
}

// NewTelegramSource creates a new Telegram source
func NewTelegramSource(client UpdatesClient, queue *Queue, log *logrus.Logger) *TelegramSource {
	return &TelegramSource{
		client:      client,
		queue:       queue,
		log:         log,
		pollTimeout: 30 * time.Second,
		backoff:     newBackoff(InitialBackoff, MaxBackoff),
	}
}

// Run polls until ctx is cancelled
func (s *TelegramSource) Run(ctx context.Context) error {
	var offset int64
	s.log.Info("Telegram ingest started")

	for {
		if ctx.Err() != nil {
			return nil
		}

		updates, err := s.client.GetUpdates(ctx, offset, s.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			var floor time.Duration
			var apiErr *telegram.APIError
			if errors.As(err, &apiErr) {
				floor = apiErr.RetryAfter
			}
			s.log.WithError(err).Warn("getUpdates failed, backing off")
			if !s.backoff.wait(ctx, floor) {
				return nil
			}
			continue
		}
		s.backoff.reset()

		for i := range updates {
			u := &updates[i]
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
			post := u.Post()
			if post == nil || post.Body() == "" {
				continue
			}

			s.queue.Push(Event{
				SourceID:  strconv.FormatInt(post.Chat.ID, 10),
				Text:      post.Body(),
				Timestamp: time.Unix(post.Date, 0).UTC(),
			})
			metrics.EventsIngested.WithLabelValues("telegram").Inc()
		}
	}
}
