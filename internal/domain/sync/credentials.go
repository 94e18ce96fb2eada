package sync

import (
	"context"
	"net/url"
	"strings"
	"time"
)

// Credentials connect the service to the external inventory system.
// APISecret is opaque to every component except the connection probe
// and the raw fetch call; it is never logged and never serialized in
// full by any read API.
type Credentials struct {
	APIKey      string
	APISecret   string
	AccountPath string
	BaseURL     string
}

// Validate checks the credential fields.
func (c Credentials) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return NewConfigurationError("api key is required")
	}
	if strings.TrimSpace(c.APISecret) == "" {
		return NewConfigurationError("api secret is required")
	}
	if strings.TrimSpace(c.AccountPath) == "" {
		return NewConfigurationError("account path is required")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return NewConfigurationError("base url must be an absolute http(s) url")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return NewConfigurationError("base url must be an absolute http(s) url")
	}
	return nil
}

// MaskedCredentials is the only credential shape returned to callers
// outside the credential store.
type MaskedCredentials struct {
	APIKey      string `json:"api_key"`
	APISecret   string `json:"api_secret"`
	AccountPath string `json:"account_path"`
	BaseURL     string `json:"base_url"`
	Configured  bool   `json:"configured"`
}

// Masked returns a partial form safe to display: the key keeps its
// first four and last two characters, the secret only its length class.
func (c Credentials) Masked() MaskedCredentials {
	return MaskedCredentials{
		APIKey:      maskToken(c.APIKey, 4, 2),
		APISecret:   maskToken(c.APISecret, 2, 2),
		AccountPath: c.AccountPath,
		BaseURL:     c.BaseURL,
		Configured:  c.APIKey != "" && c.APISecret != "",
	}
}

func maskToken(token string, head, tail int) string {
	if token == "" {
		return ""
	}
	if len(token) <= head+tail {
		return strings.Repeat("*", len(token))
	}
	return token[:head] + strings.Repeat("*", len(token)-head-tail) + token[len(token)-tail:]
}

// CredentialRepository stores the single credential set, encrypting the
// secret at rest.
type CredentialRepository interface {
	Get(ctx context.Context) (Credentials, error)
	Set(ctx context.Context, creds Credentials) error
	Clear(ctx context.Context) error
}

// ProbeResult is the outcome of a connection probe.
type ProbeResult struct {
	OK      bool          `json:"ok"`
	Message string        `json:"message"`
	Latency time.Duration `json:"latency"`
}

// ConnectionProbe performs a lightweight reachability and auth check
// against the external system with the given credentials.
type ConnectionProbe interface {
	Probe(ctx context.Context, creds Credentials) ProbeResult
}
