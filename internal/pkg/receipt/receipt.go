// Package receipt verifies store purchase receipts with Apple and Google.
//
// A Verifier never reports success unless the store itself confirmed the
// purchase. Errors mean the store could not be asked (network failure,
// timeout, bad credentials) and callers must treat them as unverified.
package receipt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/qs3c/bravo_premium_server/config"
	"github.com/qs3c/bravo_premium_server/internal/model"
)

var (
	// ErrTimeout is returned when the store did not answer in time.
	ErrTimeout = errors.New("receipt: store verification timed out")
	// ErrTestModeInRelease guards against shipping the simulated verifier.
	ErrTestModeInRelease = errors.New("receipt: test mode is not allowed in release mode")
)

// Request describes one purchase as reported by the client.
// For Google Play, ReceiptData carries the purchase token.
type Request struct {
	Platform      model.Platform
	ReceiptData   string
	ProductID     string
	TransactionID string
}

// Result is the store's verdict.
type Result struct {
	Verified           bool
	SubscriptionStatus string
	ExpiresAt          *time.Time
	Reason             string
	Raw                map[string]interface{}
}

func rejected(reason string) *Result {
	return &Result{Verified: false, Reason: reason}
}

// Verifier checks a purchase with the issuing store.
type Verifier interface {
	Verify(ctx context.Context, req Request) (*Result, error)
}

// New picks the verifier for cfg. The simulated verifier is only
// returned when premium.test_mode is on, and never in release mode
// unless premium.allow_test_mode_in_release is also set.
func New(ctx context.Context, cfg *config.Config) (Verifier, error) {
	if cfg.Premium.TestMode {
		if cfg.IsRelease() && !cfg.Premium.AllowTestModeInRelease {
			return nil, ErrTestModeInRelease
		}
		slog.Warn("receipt verification running in test mode, every receipt is accepted")
		return NewSimulatedVerifier(), nil
	}

	httpClient := &http.Client{Timeout: cfg.Premium.VerifyTimeout}

	apple, err := NewAppleClient(cfg.Premium.Apple, httpClient)
	if err != nil {
		return nil, fmt.Errorf("apple client: %w", err)
	}
	google, err := NewGoogleClient(ctx, cfg.Premium.Google, httpClient)
	if err != nil {
		return nil, fmt.Errorf("google client: %w", err)
	}

	return NewLiveVerifier(apple, google, storeLimiter(cfg.Premium), cfg.Premium.VerifyTimeout), nil
}

func storeLimiter(cfg config.PremiumConfig) *rate.Limiter {
	limit := rate.Limit(cfg.StoreRequestsPerSecond)
	if cfg.StoreRequestsPerSecond <= 0 {
		limit = rate.Inf
	}
	burst := cfg.StoreBurst
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(limit, burst)
}

// classify folds every flavour of deadline error into ErrTimeout.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrTimeout) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}
