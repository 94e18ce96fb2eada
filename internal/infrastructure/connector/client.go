// Package connector implements the HTTP client for the external
// inventory system's API. Requests are signed with HMAC-SHA256 over the
// method, path and timestamp; the secret never leaves this package.
package connector

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	syncdomain "github.com/invsync/backend/internal/domain/sync"
)

// maxResponseSize caps API response bodies (10MB).
const maxResponseSize = 10 * 1024 * 1024

// CredentialSource supplies the current API credentials. The live
// credential repository satisfies this, so credential updates take
// effect without restarting the client.
type CredentialSource interface {
	Get(ctx context.Context) (syncdomain.Credentials, error)
}

// StaticCredentials adapts a fixed credential set to CredentialSource.
type StaticCredentials syncdomain.Credentials

// Get returns the fixed credential set.
func (s StaticCredentials) Get(context.Context) (syncdomain.Credentials, error) {
	return syncdomain.Credentials(s), nil
}

// Client talks to the external inventory system. It implements both the
// record fetch interface and the connection probe.
type Client struct {
	creds      CredentialSource
	httpClient *http.Client
	now        func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithClock replaces the timestamp source, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// NewClient creates a connector client reading credentials from src.
func NewClient(src CredentialSource, opts ...Option) *Client {
	c := &Client{
		creds:      src,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchVendors retrieves all vendor records.
func (c *Client) FetchVendors(ctx context.Context) ([]syncdomain.VendorRecord, error) {
	var payload vendorListResponse
	if err := c.getJSON(ctx, "vendors", &payload); err != nil {
		return nil, err
	}
	records := make([]syncdomain.VendorRecord, 0, len(payload.Vendors))
	for _, v := range payload.Vendors {
		records = append(records, v.toRecord())
	}
	return records, nil
}

// FetchInventory retrieves all inventory item records.
func (c *Client) FetchInventory(ctx context.Context) ([]syncdomain.ItemRecord, error) {
	var payload itemListResponse
	if err := c.getJSON(ctx, "items", &payload); err != nil {
		return nil, err
	}
	records := make([]syncdomain.ItemRecord, 0, len(payload.Items))
	for _, it := range payload.Items {
		records = append(records, it.toRecord())
	}
	return records, nil
}

// FetchBOMs retrieves all bill-of-materials records.
func (c *Client) FetchBOMs(ctx context.Context) ([]syncdomain.BOMRecord, error) {
	var payload bomListResponse
	if err := c.getJSON(ctx, "boms", &payload); err != nil {
		return nil, err
	}
	records := make([]syncdomain.BOMRecord, 0, len(payload.BOMs))
	for _, b := range payload.BOMs {
		records = append(records, b.toRecord())
	}
	return records, nil
}

// FetchPurchaseOrders retrieves all purchase order records.
func (c *Client) FetchPurchaseOrders(ctx context.Context) ([]syncdomain.PurchaseOrderRecord, error) {
	var payload purchaseOrderListResponse
	if err := c.getJSON(ctx, "purchase-orders", &payload); err != nil {
		return nil, err
	}
	records := make([]syncdomain.PurchaseOrderRecord, 0, len(payload.Orders))
	for _, o := range payload.Orders {
		rec, err := o.toRecord()
		if err != nil {
			return nil, syncdomain.NewValidationError(err.Error())
		}
		records = append(records, rec)
	}
	return records, nil
}

// Probe checks reachability and auth with the given credentials without
// touching the stored credential set.
func (c *Client) Probe(ctx context.Context, creds syncdomain.Credentials) syncdomain.ProbeResult {
	start := c.now()
	if err := creds.Validate(); err != nil {
		return syncdomain.ProbeResult{OK: false, Message: err.Error()}
	}

	body, err := c.doRequest(ctx, creds, "ping")
	latency := c.now().Sub(start)
	if err != nil {
		return syncdomain.ProbeResult{OK: false, Message: err.Error(), Latency: latency}
	}

	var pong pingResponse
	if err := json.Unmarshal(body, &pong); err != nil || !pong.OK {
		return syncdomain.ProbeResult{OK: false, Message: "unexpected ping response", Latency: latency}
	}
	return syncdomain.ProbeResult{OK: true, Message: "connection ok", Latency: latency}
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	creds, err := c.creds.Get(ctx)
	if err != nil {
		return syncdomain.NewConfigurationError("credentials not configured")
	}
	if err := creds.Validate(); err != nil {
		return err
	}

	body, err := c.doRequest(ctx, creds, endpoint)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return syncdomain.NewValidationError(fmt.Sprintf("malformed %s response: %v", endpoint, err))
	}
	return nil
}

func (c *Client) doRequest(ctx context.Context, creds syncdomain.Credentials, endpoint string) ([]byte, error) {
	reqURL, err := buildURL(creds, endpoint)
	if err != nil {
		return nil, syncdomain.NewConfigurationError(err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, syncdomain.NewConnectivityError("build request", err)
	}

	timestamp := strconv.FormatInt(c.now().Unix(), 10)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Api-Key", creds.APIKey)
	req.Header.Set("X-Timestamp", timestamp)
	req.Header.Set("X-Signature", sign(creds.APISecret, http.MethodGet, req.URL.Path, timestamp))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, syncdomain.NewConnectivityError("request "+endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, syncdomain.NewConnectivityError("read response", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		// Auth rejection mid-run counts as failing to reach the
		// external system, same as a network fault.
		return nil, syncdomain.NewConnectivityError(fmt.Sprintf("authentication rejected (HTTP %d)", resp.StatusCode), nil)
	case resp.StatusCode >= 500:
		return nil, syncdomain.NewConnectivityError(fmt.Sprintf("upstream error (HTTP %d)", resp.StatusCode), nil)
	case resp.StatusCode >= 400:
		return nil, syncdomain.NewValidationError(fmt.Sprintf("request rejected (HTTP %d)", resp.StatusCode))
	}

	return body, nil
}

func buildURL(creds syncdomain.Credentials, endpoint string) (string, error) {
	base, err := url.Parse(creds.BaseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base url: %w", err)
	}
	base.Path = strings.TrimSuffix(base.Path, "/") + "/" +
		strings.Trim(creds.AccountPath, "/") + "/" + endpoint
	return base.String(), nil
}

// sign computes the request signature: HMAC-SHA256 of
// "METHOD\nPATH\nTIMESTAMP" keyed with the API secret, hex encoded.
func sign(secret, method, path, timestamp string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%s\n%s\n%s", method, path, timestamp)
	return hex.EncodeToString(mac.Sum(nil))
}
