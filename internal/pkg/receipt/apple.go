package receipt

import (
	"context"
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/qs3c/bravo_premium_server/config"
)

const (
	appleAudience   = "appstoreconnect-v1"
	appleTokenTTL   = 5 * time.Minute
	appleLookupPath = "/inApps/v1/transactions/"
)

// AppleClient looks transactions up through the App Store Server API and
// checks the signed transaction against the Apple root certificate.
type AppleClient struct {
	baseURL    string
	issuerID   string
	keyID      string
	bundleID   string
	key        *ecdsa.PrivateKey
	roots      *x509.CertPool
	httpClient *http.Client
	now        func() time.Time
}

// NewAppleClient returns an unconfigured client, not an error, when
// credentials are absent; Verify then rejects every iOS receipt.
func NewAppleClient(cfg config.AppleConfig, httpClient *http.Client) (*AppleClient, error) {
	c := &AppleClient{
		baseURL:    strings.TrimRight(cfg.APIBase, "/"),
		issuerID:   cfg.IssuerID,
		keyID:      cfg.KeyID,
		bundleID:   cfg.BundleID,
		httpClient: httpClient,
		now:        time.Now,
	}

	if cfg.PrivateKey != "" {
		key, err := jwt.ParseECPrivateKeyFromPEM([]byte(cfg.PrivateKey))
		if err != nil {
			return nil, fmt.Errorf("parse apple private key: %w", err)
		}
		c.key = key
	}

	rootPEM := []byte(cfg.RootCertPEM)
	if len(rootPEM) == 0 && cfg.RootCertPath != "" {
		data, err := os.ReadFile(cfg.RootCertPath)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read apple root cert: %w", err)
		}
		rootPEM = data
	}
	if len(rootPEM) > 0 {
		roots, err := parseRoots(rootPEM)
		if err != nil {
			return nil, err
		}
		c.roots = roots
	}

	return c, nil
}

// parseRoots accepts PEM or raw DER (Apple ships the root as .cer).
func parseRoots(data []byte) (*x509.CertPool, error) {
	pool := x509.NewCertPool()
	if block, _ := pem.Decode(data); block != nil {
		if !pool.AppendCertsFromPEM(data) {
			return nil, errors.New("apple root cert: no certificates in PEM")
		}
		return pool, nil
	}
	cert, err := x509.ParseCertificate(data)
	if err != nil {
		return nil, fmt.Errorf("apple root cert: %w", err)
	}
	pool.AddCert(cert)
	return pool, nil
}

func (c *AppleClient) Configured() bool {
	return c.issuerID != "" && c.keyID != "" && c.key != nil && c.roots != nil
}

func (c *AppleClient) token() (string, error) {
	now := c.now()
	claims := jwt.MapClaims{
		"iss": c.issuerID,
		"iat": now.Unix(),
		"exp": now.Add(appleTokenTTL).Unix(),
		"aud": appleAudience,
	}
	if c.bundleID != "" {
		claims["bid"] = c.bundleID
	}
	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	token.Header["kid"] = c.keyID
	return token.SignedString(c.key)
}

type appleLookupResponse struct {
	SignedTransactionInfo string `json:"signedTransactionInfo"`
}

type appleErrorResponse struct {
	ErrorCode    int    `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

// appleTransaction is the JWS payload of a signed transaction.
type appleTransaction struct {
	TransactionID         string `json:"transactionId"`
	OriginalTransactionID string `json:"originalTransactionId"`
	BundleID              string `json:"bundleId"`
	ProductID             string `json:"productId"`
	PurchaseDate          int64  `json:"purchaseDate"`
	ExpiresDate           int64  `json:"expiresDate"`
	RevocationDate        int64  `json:"revocationDate"`
	Type                  string `json:"type"`
	Environment           string `json:"environment"`
	jwt.RegisteredClaims
}

func (c *AppleClient) Verify(ctx context.Context, req Request) (*Result, error) {
	if req.TransactionID == "" {
		return rejected("missing transaction id"), nil
	}

	bearer, err := c.token()
	if err != nil {
		return nil, fmt.Errorf("sign apple api token: %w", err)
	}

	endpoint := c.baseURL + appleLookupPath + url.PathEscape(req.TransactionID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+bearer)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("apple lookup: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read apple response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusBadRequest:
		var apiErr appleErrorResponse
		_ = json.Unmarshal(body, &apiErr)
		return &Result{
			Verified: false,
			Reason:   "transaction not found",
			Raw:      map[string]interface{}{"errorCode": apiErr.ErrorCode, "errorMessage": apiErr.ErrorMessage},
		}, nil
	default:
		return nil, fmt.Errorf("apple lookup: unexpected status %d", resp.StatusCode)
	}

	var lookup appleLookupResponse
	if err := json.Unmarshal(body, &lookup); err != nil {
		return nil, fmt.Errorf("decode apple response: %w", err)
	}

	txn, err := c.parseSignedTransaction(lookup.SignedTransactionInfo)
	if err != nil {
		return rejected("invalid transaction signature"), nil
	}

	return c.evaluate(txn, req), nil
}

func (c *AppleClient) evaluate(txn *appleTransaction, req Request) *Result {
	raw := map[string]interface{}{
		"transactionId":         txn.TransactionID,
		"originalTransactionId": txn.OriginalTransactionID,
		"productId":             txn.ProductID,
		"environment":           txn.Environment,
		"type":                  txn.Type,
	}

	if c.bundleID != "" && txn.BundleID != c.bundleID {
		return &Result{Verified: false, Reason: "bundle id mismatch", Raw: raw}
	}
	if txn.ProductID != req.ProductID {
		return &Result{Verified: false, Reason: "product id mismatch", Raw: raw}
	}
	if txn.RevocationDate > 0 {
		return &Result{Verified: false, SubscriptionStatus: "revoked", Reason: "transaction revoked", Raw: raw}
	}

	res := &Result{Verified: true, SubscriptionStatus: "active", Raw: raw}
	if txn.ExpiresDate > 0 {
		expires := time.UnixMilli(txn.ExpiresDate).UTC()
		res.ExpiresAt = &expires
		if !expires.After(c.now()) {
			res.Verified = false
			res.SubscriptionStatus = "expired"
			res.Reason = "subscription expired"
		}
	}
	return res
}

// parseSignedTransaction verifies the JWS against the certificate chain
// in its x5c header, which must lead to a configured root.
func (c *AppleClient) parseSignedTransaction(signed string) (*appleTransaction, error) {
	txn := &appleTransaction{}
	_, err := jwt.ParseWithClaims(signed, txn, c.chainKey, jwt.WithValidMethods([]string{"ES256"}))
	if err != nil {
		return nil, err
	}
	return txn, nil
}

func (c *AppleClient) chainKey(token *jwt.Token) (interface{}, error) {
	rawChain, ok := token.Header["x5c"].([]interface{})
	if !ok || len(rawChain) == 0 {
		return nil, errors.New("missing x5c header")
	}

	certs := make([]*x509.Certificate, 0, len(rawChain))
	for _, raw := range rawChain {
		s, ok := raw.(string)
		if !ok {
			return nil, errors.New("malformed x5c entry")
		}
		der, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("decode x5c: %w", err)
		}
		cert, err := x509.ParseCertificate(der)
		if err != nil {
			return nil, fmt.Errorf("parse x5c: %w", err)
		}
		certs = append(certs, cert)
	}

	intermediates := x509.NewCertPool()
	for _, cert := range certs[1:] {
		intermediates.AddCert(cert)
	}

	leaf := certs[0]
	_, err := leaf.Verify(x509.VerifyOptions{
		Roots:         c.roots,
		Intermediates: intermediates,
		CurrentTime:   c.now(),
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	})
	if err != nil {
		return nil, fmt.Errorf("verify x5c chain: %w", err)
	}

	pub, ok := leaf.PublicKey.(*ecdsa.PublicKey)
	if !ok {
		return nil, errors.New("leaf certificate is not ECDSA")
	}
	return pub, nil
}
