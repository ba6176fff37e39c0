package receipt

import (
	"context"
	"errors"
	"time"

	"golang.org/x/time/rate"

	"github.com/qs3c/bravo_premium_server/internal/model"
)

// LiveVerifier routes each request to the store that issued it.
type LiveVerifier struct {
	apple   *AppleClient
	google  *GoogleClient
	limiter *rate.Limiter
	timeout time.Duration
}

func NewLiveVerifier(apple *AppleClient, google *GoogleClient, limiter *rate.Limiter, timeout time.Duration) *LiveVerifier {
	return &LiveVerifier{
		apple:   apple,
		google:  google,
		limiter: limiter,
		timeout: timeout,
	}
}

func (v *LiveVerifier) Verify(ctx context.Context, req Request) (*Result, error) {
	if v.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, v.timeout)
		defer cancel()
	}

	switch req.Platform {
	case model.PlatformIOS:
		if v.apple == nil || !v.apple.Configured() {
			return rejected("apple credentials not configured"), nil
		}
		if err := v.wait(ctx); err != nil {
			return nil, err
		}
		res, err := v.apple.Verify(ctx, req)
		return res, classify(err)
	case model.PlatformAndroid:
		if v.google == nil || !v.google.Configured() {
			return rejected("google credentials not configured"), nil
		}
		if err := v.wait(ctx); err != nil {
			return nil, err
		}
		res, err := v.google.Verify(ctx, req)
		return res, classify(err)
	default:
		return rejected("unsupported platform"), nil
	}
}

// wait holds the call until the outbound store quota allows it.
func (v *LiveVerifier) wait(ctx context.Context) error {
	if v.limiter == nil {
		return nil
	}
	if err := v.limiter.Wait(ctx); err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return ctx.Err()
		}
		// Wait also fails early when the deadline cannot be met.
		return ErrTimeout
	}
	return nil
}
