package email

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitedSender wraps a Sender and limits the rate at which
// messages are handed to it. Callers block until they are allowed to send
// or until their context is done.
type RateLimitedSender struct {
	next    Sender
	limiter *rate.Limiter
}

// NewRateLimitedSender allows one message per interval, with bursts of up to burst messages.
func NewRateLimitedSender(next Sender, interval time.Duration, burst int) *RateLimitedSender {
	return &RateLimitedSender{
		next:    next,
		limiter: rate.NewLimiter(rate.Every(interval), burst),
	}
}

func (s *RateLimitedSender) Send(ctx context.Context, msg Message) (string, error) {
	err := s.limiter.Wait(ctx)
	if err != nil {
		return "", err
	}

	return s.next.Send(ctx, msg)
}
