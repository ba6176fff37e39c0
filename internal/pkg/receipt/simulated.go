package receipt

import (
	"context"
	"time"
)

const simulatedPeriod = 30 * 24 * time.Hour

// SimulatedVerifier accepts every receipt. Development and tests only.
type SimulatedVerifier struct {
	now func() time.Time
}

func NewSimulatedVerifier() *SimulatedVerifier {
	return &SimulatedVerifier{now: time.Now}
}

func (v *SimulatedVerifier) Verify(ctx context.Context, _ Request) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, classify(err)
	}
	expires := v.now().UTC().Add(simulatedPeriod)
	return &Result{
		Verified:           true,
		SubscriptionStatus: "active",
		ExpiresAt:          &expires,
		Raw:                map[string]interface{}{"testMode": true},
	}, nil
}
