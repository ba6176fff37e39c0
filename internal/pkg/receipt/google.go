package receipt

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/qs3c/bravo_premium_server/config"
)

const androidPublisherScope = "https://www.googleapis.com/auth/androidpublisher"

// 订阅状态，见 purchases.subscriptionsv2
const (
	googleStateActive        = "SUBSCRIPTION_STATE_ACTIVE"
	googleStateInGracePeriod = "SUBSCRIPTION_STATE_IN_GRACE_PERIOD"
)

// GoogleClient reads subscription purchases from the Android Publisher API.
type GoogleClient struct {
	baseURL     string
	packageName string
	httpClient  *http.Client
}

// NewGoogleClient builds an authorised client from a service account key.
// Without a key or package name it returns an unconfigured client.
func NewGoogleClient(ctx context.Context, cfg config.GoogleConfig, base *http.Client) (*GoogleClient, error) {
	keyJSON := []byte(cfg.ServiceAccountJSON)
	if len(keyJSON) == 0 && cfg.ServiceAccountKeyPath != "" {
		data, err := os.ReadFile(cfg.ServiceAccountKeyPath)
		if err != nil {
			return nil, fmt.Errorf("read google service account: %w", err)
		}
		keyJSON = data
	}
	if len(keyJSON) == 0 || cfg.PackageName == "" {
		return &GoogleClient{baseURL: cfg.APIBase, packageName: cfg.PackageName}, nil
	}

	jwtConfig, err := google.JWTConfigFromJSON(keyJSON, androidPublisherScope)
	if err != nil {
		return nil, fmt.Errorf("parse google service account: %w", err)
	}
	if base == nil {
		base = http.DefaultClient
	}
	tokenCtx := context.WithValue(ctx, oauth2.HTTPClient, base)
	return NewGoogleClientWithTokenSource(cfg.APIBase, cfg.PackageName, jwtConfig.TokenSource(tokenCtx), base), nil
}

// NewGoogleClientWithTokenSource is NewGoogleClient with the token source
// supplied by the caller.
func NewGoogleClientWithTokenSource(baseURL, packageName string, ts oauth2.TokenSource, base *http.Client) *GoogleClient {
	if base == nil {
		base = http.DefaultClient
	}
	return &GoogleClient{
		baseURL:     strings.TrimRight(baseURL, "/"),
		packageName: packageName,
		httpClient: &http.Client{
			Timeout: base.Timeout,
			Transport: &oauth2.Transport{
				Source: oauth2.ReuseTokenSource(nil, ts),
				Base:   base.Transport,
			},
		},
	}
}

func (c *GoogleClient) Configured() bool {
	return c.httpClient != nil && c.packageName != ""
}

type googleLineItem struct {
	ProductID  string `json:"productId"`
	ExpiryTime string `json:"expiryTime"`
}

type googleSubscriptionPurchase struct {
	SubscriptionState    string           `json:"subscriptionState"`
	LatestOrderID        string           `json:"latestOrderId"`
	AcknowledgementState string           `json:"acknowledgementState"`
	LineItems            []googleLineItem `json:"lineItems"`
}

func (c *GoogleClient) Verify(ctx context.Context, req Request) (*Result, error) {
	if req.ReceiptData == "" {
		return rejected("missing purchase token"), nil
	}

	endpoint := fmt.Sprintf("%s/androidpublisher/v3/applications/%s/purchases/subscriptionsv2/tokens/%s",
		c.baseURL, url.PathEscape(c.packageName), url.PathEscape(req.ReceiptData))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("google lookup: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read google response: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound, http.StatusGone, http.StatusBadRequest:
		return rejected("purchase token not found"), nil
	default:
		return nil, fmt.Errorf("google lookup: unexpected status %d", resp.StatusCode)
	}

	var purchase googleSubscriptionPurchase
	if err := json.Unmarshal(body, &purchase); err != nil {
		return nil, fmt.Errorf("decode google response: %w", err)
	}
	return evaluateGoogle(&purchase, req), nil
}

func evaluateGoogle(p *googleSubscriptionPurchase, req Request) *Result {
	raw := map[string]interface{}{
		"subscriptionState": p.SubscriptionState,
		"latestOrderId":     p.LatestOrderID,
	}

	var item *googleLineItem
	for i := range p.LineItems {
		if p.LineItems[i].ProductID == req.ProductID {
			item = &p.LineItems[i]
			break
		}
	}
	if item == nil {
		return &Result{Verified: false, Reason: "product id mismatch", Raw: raw}
	}

	res := &Result{Raw: raw}
	if t, err := time.Parse(time.RFC3339, item.ExpiryTime); err == nil {
		t = t.UTC()
		res.ExpiresAt = &t
	}

	switch p.SubscriptionState {
	case googleStateActive:
		res.Verified = true
		res.SubscriptionStatus = "active"
	case googleStateInGracePeriod:
		res.Verified = true
		res.SubscriptionStatus = "grace_period"
	default:
		res.SubscriptionStatus = strings.ToLower(strings.TrimPrefix(p.SubscriptionState, "SUBSCRIPTION_STATE_"))
		res.Reason = "subscription not active"
	}
	return res
}
